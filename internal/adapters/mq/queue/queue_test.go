package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

type job struct {
	ID   string
	Path string
}

func TestInMemoryQueue_BasicOperations(t *testing.T) {
	q := NewInMemoryQueue[job](WithCapacity(2), WithName("basic"))
	ctx := context.Background()

	if q.Name() != "basic" {
		t.Errorf("expected name basic, got %s", q.Name())
	}

	// Test empty queue
	if l := q.Len(ctx); l != 0 {
		t.Errorf("expected length 0, got %d", l)
	}

	if err := q.Put(ctx, job{ID: "job1", Path: "raw/minor/a.jpg"}); err != nil {
		t.Errorf("expected put to succeed, got %v", err)
	}

	if l := q.Len(ctx); l != 1 {
		t.Errorf("expected length 1, got %d", l)
	}

	got := <-q.Dequeue(ctx)
	if got.ID != "job1" {
		t.Errorf("expected job1, got %v", got.ID)
	}

	if l := q.Len(ctx); l != 0 {
		t.Errorf("expected length 0, got %d", l)
	}
}

func TestInMemoryQueue_Capacity(t *testing.T) {
	q := NewInMemoryQueue[job](WithCapacity(2))
	ctx := context.Background()

	for _, id := range []string{"job1", "job2"} {
		if err := q.Put(ctx, job{ID: id}); err != nil {
			t.Errorf("expected put to succeed, got %v", err)
		}
	}

	// A full queue holds the producer until its deadline.
	short, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	if err := q.Put(short, job{ID: "job3"}); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected context.DeadlineExceeded when full, got %v", err)
	}

	if l := q.Len(ctx); l != 2 {
		t.Errorf("expected length 2, got %d", l)
	}
}

func TestInMemoryQueue_PutBlocksUntilRoom(t *testing.T) {
	q := NewInMemoryQueue[job](WithCapacity(1))
	ctx := context.Background()

	if err := q.Put(ctx, job{ID: "first"}); err != nil {
		t.Fatalf("expected put to succeed, got %v", err)
	}

	// A full queue with a cancelled context returns the context error.
	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	if err := q.Put(cancelled, job{ID: "dropped"}); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- q.Put(ctx, job{ID: "second"}) }()

	jobs := q.Dequeue(ctx)
	if got := <-jobs; got.ID != "first" {
		t.Errorf("expected first, got %s", got.ID)
	}

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("expected blocked put to succeed, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("put did not unblock after a dequeue")
	}

	if got := <-jobs; got.ID != "second" {
		t.Errorf("expected second, got %s", got.ID)
	}
}

func TestInMemoryQueue_ConcurrentAccess(t *testing.T) {
	q := NewInMemoryQueue[job](WithCapacity(100))
	ctx := context.Background()
	numGoroutines := 10
	numJobs := 100

	var producers sync.WaitGroup
	for i := 0; i < numGoroutines; i++ {
		producers.Add(1)
		go func(id int) {
			defer producers.Done()
			for j := 0; j < numJobs; j++ {
				if err := q.Put(ctx, job{ID: fmt.Sprintf("job%d_%d", id, j)}); err != nil {
					t.Errorf("put failed: %v", err)
					return
				}
			}
		}(i)
	}

	var consumers sync.WaitGroup
	var mu sync.Mutex
	seen := make(map[string]bool)
	for i := 0; i < numGoroutines; i++ {
		consumers.Add(1)
		go func() {
			defer consumers.Done()
			for j := range q.Dequeue(ctx) {
				mu.Lock()
				seen[j.ID] = true
				mu.Unlock()
			}
		}()
	}

	producers.Wait()
	if err := q.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}
	consumers.Wait()

	if len(seen) != numGoroutines*numJobs {
		t.Errorf("expected %d distinct jobs, got %d", numGoroutines*numJobs, len(seen))
	}
	if l := q.Len(ctx); l != 0 {
		t.Errorf("expected final length 0, got %d", l)
	}
}

func TestInMemoryQueue_GracefulShutdown(t *testing.T) {
	q := NewInMemoryQueue[job](WithCapacity(10))
	ctx := context.Background()

	for _, id := range []string{"job1", "job2"} {
		if err := q.Put(ctx, job{ID: id}); err != nil {
			t.Errorf("expected put to succeed, got %v", err)
		}
	}

	if q.IsClosed() {
		t.Error("expected queue to be open initially")
	}

	if err := q.Close(); err != nil {
		t.Errorf("expected close to succeed, got error: %v", err)
	}

	if !q.IsClosed() {
		t.Error("expected queue to be closed after Close()")
	}

	if err := q.Put(ctx, job{ID: "late"}); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}

	// Jobs queued before Close are still delivered, then the channel closes.
	var drained []string
	timeout := time.After(time.Second)
	jobs := q.Dequeue(ctx)
	for {
		select {
		case j, ok := <-jobs:
			if !ok {
				if len(drained) != 2 {
					t.Errorf("expected 2 drained jobs, got %v", drained)
				}
				if err := q.Close(); err != nil {
					t.Errorf("expected second close to succeed, got error: %v", err)
				}
				return
			}
			drained = append(drained, j.ID)
		case <-timeout:
			t.Fatal("expected dequeue channel to be closed within timeout")
		}
	}
}
