// Package queue defines the contract for enqueuing and consuming pipeline jobs.
//
// The in-memory implementation is a bounded channel shared by the workers of
// one pipeline stage.
package queue

import (
	"context"
	"fmt"
	"sync"

	"github.com/okian/curator/pkg/metrics"
)

// Default queue configuration constants.
const (
	defaultQueueCapacity = 1024
	defaultName          = "jobs"
)

// Queue provides enqueue and channel-based dequeue semantics.
type Queue[T any] interface {
	// Put adds a job, blocking until there is room or ctx is done.
	Put(ctx context.Context, job T) error

	// Dequeue returns a channel that will receive jobs as they become available.
	// The channel will be closed when the queue is closed and drained.
	Dequeue(ctx context.Context) <-chan T

	// Len returns the current number of queued jobs.
	Len(ctx context.Context) int

	// Close stops accepting jobs. Already queued jobs are still delivered.
	Close() error

	// IsClosed returns true if the queue has been closed.
	IsClosed() bool
}

// InMemoryQueue implements Queue using a buffered channel.
type InMemoryQueue[T any] struct {
	name     string
	jobs     chan T
	capacity int
	mu       sync.RWMutex
	closed   bool
}

// NewInMemoryQueue creates a new in-memory queue with configuration options.
func NewInMemoryQueue[T any](opts ...Option) *InMemoryQueue[T] {
	cfg := options{
		capacity: defaultQueueCapacity,
		name:     defaultName,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	q := &InMemoryQueue[T]{
		name:     cfg.name,
		capacity: cfg.capacity,
		jobs:     make(chan T, cfg.capacity),
	}

	metrics.UpdateQueueCapacity(q.name, q.capacity)
	metrics.UpdateQueueSize(q.name, 0)

	return q
}

// Name returns the queue name used in metrics.
func (q *InMemoryQueue[T]) Name() string {
	return q.name
}

// Put adds a job, waiting for room. Close blocks while a Put is in flight, so
// consumers must be running when producers can block.
func (q *InMemoryQueue[T]) Put(ctx context.Context, job T) error {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		metrics.RecordQueueEnqueueError(q.name, "closed")
		return fmt.Errorf("%s: %w", q.name, ErrClosed)
	}

	select {
	case q.jobs <- job:
		metrics.RecordQueueEnqueue(q.name)
		metrics.UpdateQueueSize(q.name, len(q.jobs))
		return nil
	case <-ctx.Done():
		metrics.RecordQueueEnqueueError(q.name, "context_cancelled")
		return fmt.Errorf("%s: %w", q.name, ctx.Err())
	}
}

// Dequeue returns a channel that will receive jobs as they become available.
func (q *InMemoryQueue[T]) Dequeue(ctx context.Context) <-chan T {
	// Wrap the channel to track dequeue metrics
	out := make(chan T)
	go func() {
		defer close(out)
		for job := range q.jobs {
			select {
			case out <- job:
				metrics.RecordQueueDequeue(q.name)
				metrics.UpdateQueueSize(q.name, len(q.jobs))
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

// Len returns the current number of queued jobs.
func (q *InMemoryQueue[T]) Len(_ context.Context) int {
	size := len(q.jobs)
	metrics.UpdateQueueSize(q.name, size)
	return size
}

// Close gracefully shuts down the queue.
func (q *InMemoryQueue[T]) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}

	close(q.jobs)
	q.closed = true

	return nil
}

// IsClosed returns true if the queue has been closed.
func (q *InMemoryQueue[T]) IsClosed() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.closed
}
