// Package worker runs pipeline stage handlers over a shared job queue.
package worker

import (
	"context"
	"fmt"
	"runtime"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/okian/curator/pkg/logger"
	"github.com/okian/curator/pkg/metrics"
)

const defaultStage = "stage"

// Handler processes one job. A returned error is logged and counted; it never
// stops the worker.
type Handler[T any] interface {
	Handle(ctx context.Context, job T) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc[T any] func(ctx context.Context, job T) error

// Handle calls f.
func (f HandlerFunc[T]) Handle(ctx context.Context, job T) error { return f(ctx, job) }

// Queue defines how workers receive jobs.
type Queue[T any] interface {
	Dequeue(ctx context.Context) <-chan T
}

// Worker processes jobs using the provided handler.
type Worker interface {
	// Run starts the worker loop until ctx is canceled or the queue is drained.
	Run(ctx context.Context)
}

// InMemoryWorker implements Worker for one pipeline stage.
type InMemoryWorker[T any] struct {
	queue   Queue[T]
	handler Handler[T]
	name    string
	stage   string

	processed *atomic.Int64
	failed    *atomic.Int64

	done chan struct{}

	logger logger.Logger
}

// NewInMemoryWorker creates a new worker with configuration options.
func NewInMemoryWorker[T any](q Queue[T], h Handler[T], opts ...Option) *InMemoryWorker[T] {
	cfg := newOptions(opts)
	w := &InMemoryWorker[T]{
		queue:     q,
		handler:   h,
		name:      cfg.name,
		stage:     cfg.stage,
		processed: &atomic.Int64{},
		failed:    &atomic.Int64{},
		done:      make(chan struct{}),
		logger:    cfg.logger,
	}
	if w.logger == nil {
		w.logger = logger.Get().Named(w.stage)
	}
	w.logger = w.logger.Named(w.name)
	return w
}

// Run starts the worker loop.
func (w *InMemoryWorker[T]) Run(ctx context.Context) {
	defer close(w.done)

	jobs := w.queue.Dequeue(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case job, ok := <-jobs:
			if !ok {
				// Queue closed and drained.
				return
			}
			if err := w.process(ctx, job); err != nil {
				w.logger.Error(ctx, "error processing job", logger.Error(err))
			}
		}
	}
}

// Done is closed when Run returns.
func (w *InMemoryWorker[T]) Done() <-chan struct{} {
	return w.done
}

func (w *InMemoryWorker[T]) process(ctx context.Context, job T) error {
	start := time.Now()
	defer func() {
		metrics.RecordStageDuration(w.stage, time.Since(start).Seconds())
	}()

	if err := w.handler.Handle(ctx, job); err != nil {
		w.failed.Add(1)
		metrics.RecordStageError(w.stage)
		return fmt.Errorf("%s: %w", w.stage, err)
	}
	w.processed.Add(1)
	return nil
}

// Pool manages the workers of one stage.
type Pool[T any] struct {
	workers []*InMemoryWorker[T]
	stage   string

	processed atomic.Int64
	failed    atomic.Int64

	logger logger.Logger
}

// NewPool creates a worker pool. A workerCount below one uses runtime.NumCPU().
func NewPool[T any](workerCount int, q Queue[T], h Handler[T], opts ...Option) *Pool[T] {
	if workerCount < 1 {
		workerCount = runtime.NumCPU()
	}
	cfg := newOptions(opts)

	pool := &Pool[T]{
		workers: make([]*InMemoryWorker[T], workerCount),
		stage:   cfg.stage,
		logger:  cfg.logger,
	}
	if pool.logger == nil {
		pool.logger = logger.Get().Named(cfg.stage)
	}

	for i := 0; i < workerCount; i++ {
		w := NewInMemoryWorker[T](q, h,
			WithName("worker-"+strconv.Itoa(i)),
			WithStage(cfg.stage),
			WithLogger(pool.logger),
		)
		w.processed = &pool.processed
		w.failed = &pool.failed
		pool.workers[i] = w
	}

	return pool
}

// Start starts all workers in the pool.
func (p *Pool[T]) Start(ctx context.Context) {
	metrics.UpdateActiveWorkers(p.stage, len(p.workers))
	for _, w := range p.workers {
		go w.Run(ctx)
	}
}

// Wait blocks until every worker has returned, which happens once the queue
// is closed and drained or ctx is canceled.
func (p *Pool[T]) Wait() {
	for _, w := range p.workers {
		<-w.done
	}
	metrics.UpdateActiveWorkers(p.stage, 0)
}

// Processed returns the number of jobs handled without error.
func (p *Pool[T]) Processed() int64 {
	return p.processed.Load()
}

// Failed returns the number of jobs whose handler returned an error.
func (p *Pool[T]) Failed() int64 {
	return p.failed.Load()
}
