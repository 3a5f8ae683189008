package idempotency

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestCoordinatorRunsWorkOnceForConcurrentCallers(t *testing.T) {
	c := NewCoordinator(NewMemoryStore())
	var calls int32

	work := func(ctx context.Context) (any, error) {
		atomic.AddInt32(&calls, 1)
		time.Sleep(10 * time.Millisecond)
		return "result", nil
	}

	var wg sync.WaitGroup
	results := make([]any, 5)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			r, err := c.Run(context.Background(), "key-1", work)
			if err != nil {
				t.Errorf("unexpected error: %v", err)
				return
			}
			results[i] = r
		}(i)
	}
	wg.Wait()

	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Fatalf("expected work to run exactly once, ran %d times", got)
	}
	for i, r := range results {
		if r != "result" {
			t.Errorf("result %d: expected %q, got %v", i, "result", r)
		}
	}
}

func TestCoordinatorReturnsPersistedResultWithoutRerunning(t *testing.T) {
	store := NewMemoryStore()
	c := NewCoordinator(store)
	var calls int32

	work := func(ctx context.Context) (any, error) {
		atomic.AddInt32(&calls, 1)
		return "first", nil
	}

	if _, err := c.Run(context.Background(), "key-1", work); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	result, err := c.Run(context.Background(), "key-1", func(ctx context.Context) (any, error) {
		atomic.AddInt32(&calls, 1)
		return "second", nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != "first" {
		t.Fatalf("expected persisted result %q, got %v", "first", result)
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Fatalf("expected work to run exactly once across calls, ran %d times", got)
	}
}

func TestCoordinatorPropagatesWorkError(t *testing.T) {
	c := NewCoordinator(NewMemoryStore())
	sentinel := context.DeadlineExceeded

	_, err := c.Run(context.Background(), "key-err", func(ctx context.Context) (any, error) {
		return nil, sentinel
	})
	if err != sentinel {
		t.Fatalf("expected sentinel error, got %v", err)
	}

	// A failed attempt must not be persisted: a retry with the same key runs
	// work again.
	var calls int32
	_, err = c.Run(context.Background(), "key-err", func(ctx context.Context) (any, error) {
		atomic.AddInt32(&calls, 1)
		return "recovered", nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Fatalf("expected retry after failure to run work, ran %d times", got)
	}
}
