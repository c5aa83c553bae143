package parallel

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/YuminosukeSato/lurcv/pkg/errors"
)

func TestParallelizeCoversEveryItem(t *testing.T) {
	tests := []struct {
		name    string
		items   int
		workers int
	}{
		{"empty", 0, 4},
		{"fewer items than workers", 3, 8},
		{"uneven chunks", 101, 4},
		{"default workers", 1000, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seen := make([]int32, tt.items)
			ParallelizeN(tt.items, tt.workers, func(start, end int) {
				for i := start; i < end; i++ {
					atomic.AddInt32(&seen[i], 1)
				}
			})
			for i, c := range seen {
				if c != 1 {
					t.Fatalf("item %d visited %d times", i, c)
				}
			}
		})
	}
}

func TestParallelizeWithThresholdSequential(t *testing.T) {
	calls := 0
	ParallelizeWithThreshold(10, 100, func(start, end int) {
		calls++
		if start != 0 || end != 10 {
			t.Errorf("expected single range [0,10), got [%d,%d)", start, end)
		}
	})
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}

type recordingObserver struct {
	mu       sync.Mutex
	started  int
	finished int
	failed   int
}

func (o *recordingObserver) TaskStarted(int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.started++
}

func (o *recordingObserver) TaskFinished(_ int, _ time.Duration, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.finished++
	if err != nil {
		o.failed++
	}
}

func TestPoolIsolatesFailures(t *testing.T) {
	obs := &recordingObserver{}
	pool := NewPool(3, WithObserver(obs))

	errs := pool.Run(context.Background(), 10, func(ctx context.Context, task int) error {
		switch task {
		case 2:
			return fmt.Errorf("task %d failed", task)
		case 5:
			panic("boom")
		}
		return nil
	})

	if len(errs) != 10 {
		t.Fatalf("expected 10 results, got %d", len(errs))
	}
	for i, err := range errs {
		switch i {
		case 2:
			if err == nil {
				t.Errorf("task 2 should fail")
			}
		case 5:
			var panicErr *errors.PanicError
			if !errors.As(err, &panicErr) {
				t.Errorf("task 5 should report a PanicError, got %v", err)
			}
		default:
			if err != nil {
				t.Errorf("task %d: unexpected error %v", i, err)
			}
		}
	}
	if obs.started != 10 || obs.finished != 10 || obs.failed != 2 {
		t.Errorf("observer saw started=%d finished=%d failed=%d", obs.started, obs.finished, obs.failed)
	}
}

func TestPoolRespectsWorkerLimit(t *testing.T) {
	const workers = 2
	pool := NewPool(workers)

	var running, peak int32
	pool.Run(context.Background(), 12, func(ctx context.Context, task int) error {
		cur := atomic.AddInt32(&running, 1)
		for {
			old := atomic.LoadInt32(&peak)
			if cur <= old || atomic.CompareAndSwapInt32(&peak, old, cur) {
				break
			}
		}
		time.Sleep(2 * time.Millisecond)
		atomic.AddInt32(&running, -1)
		return nil
	})

	if peak > workers {
		t.Errorf("peak concurrency %d exceeds %d workers", peak, workers)
	}
}

func TestPoolSkipsTasksAfterCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var calls int32
	errs := NewPool(2).Run(ctx, 5, func(ctx context.Context, task int) error {
		atomic.AddInt32(&calls, 1)
		return nil
	})

	if calls != 0 {
		t.Errorf("expected no task to run, got %d", calls)
	}
	for i, err := range errs {
		if !errors.Is(err, context.Canceled) {
			t.Errorf("task %d: expected context.Canceled, got %v", i, err)
		}
	}
}

func TestNewPoolDefaultsWorkers(t *testing.T) {
	if NewPool(0).Workers() < 1 {
		t.Error("expected at least one worker")
	}
}
