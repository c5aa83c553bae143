package parallel

import (
	"context"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/YuminosukeSato/lurcv/pkg/errors"
)

// Observer receives task lifecycle events from a Pool. Calls may come from
// several goroutines at once.
type Observer interface {
	TaskStarted(task int)
	TaskFinished(task int, elapsed time.Duration, err error)
}

// Pool runs independent tasks on a bounded number of goroutines.
//
// Submitting blocks while every worker is busy. A task error or panic is
// reported for that task only; the other tasks keep running.
type Pool struct {
	workers  int
	observer Observer
}

// PoolOption configures a Pool.
type PoolOption func(*Pool)

// WithObserver registers an Observer for task events.
func WithObserver(o Observer) PoolOption {
	return func(p *Pool) {
		p.observer = o
	}
}

// NewPool creates a pool with the given worker count; workers <= 0 means
// runtime.NumCPU().
func NewPool(workers int, opts ...PoolOption) *Pool {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	p := &Pool{workers: workers}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Workers returns the number of concurrent workers.
func (p *Pool) Workers() int {
	return p.workers
}

// Run executes fn for every task index in [0, n) and blocks until all of them
// returned. The result slice holds the error of each task, nil on success.
// Tasks not yet started when ctx is done are skipped with ctx.Err().
func (p *Pool) Run(ctx context.Context, n int, fn func(ctx context.Context, task int) error) []error {
	errs := make([]error, n)
	if n == 0 {
		return errs
	}

	var g errgroup.Group
	g.SetLimit(p.workers)

	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			errs[i] = errors.WithStack(err)
			continue
		}
		task := i
		g.Go(func() error {
			errs[task] = p.runTask(ctx, task, fn)
			return nil
		})
	}
	// tasks never return errors to the group
	_ = g.Wait()
	return errs
}

func (p *Pool) runTask(ctx context.Context, task int, fn func(ctx context.Context, task int) error) error {
	if p.observer != nil {
		p.observer.TaskStarted(task)
	}
	start := time.Now()
	err := errors.SafeExecute("parallel.Pool task", func() error {
		return fn(ctx, task)
	})
	if p.observer != nil {
		p.observer.TaskFinished(task, time.Since(start), err)
	}
	return err
}
