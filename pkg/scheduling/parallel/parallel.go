// Package parallel runs a function over an index range on a bounded number
// of goroutines.
package parallel

import (
	"context"
	"runtime"
	"sync"

	"golang.org/x/sync/errgroup"

	tperrors "github.com/vnykmshr/threadpool/pkg/common/errors"
	"github.com/vnykmshr/threadpool/pkg/scheduling/workerpool"
)

type options struct {
	threads int
}

// Option configures For.
type Option func(*options)

// WithThreads sets the number of goroutines For uses. Values below 1 or
// above runtime.NumCPU() are clamped.
func WithThreads(n int) Option {
	return func(o *options) {
		o.threads = n
	}
}

// Threads returns the number of goroutines For would start for size
// indexes with the requested thread count.
func Threads(size, requested int) int {
	n := requested
	if cpus := runtime.NumCPU(); n < 1 || n > cpus {
		n = cpus
	}
	return max(min(n, size), 1)
}

// For calls fn for every index in [0, size). Goroutine t handles indexes
// t, t+n, t+2n, ... where n is the thread count. The first error cancels
// the remaining iterations and is returned.
func For(ctx context.Context, size int, fn func(i int) error, opts ...Option) error {
	if fn == nil {
		return tperrors.NewValidationError("parallel", "fn", nil, "cannot be nil")
	}
	if size <= 0 {
		return nil
	}

	o := options{threads: runtime.NumCPU()}
	for _, opt := range opts {
		opt(&o)
	}
	n := Threads(size, o.threads)

	g, ctx := errgroup.WithContext(ctx)
	for t := 0; t < n; t++ {
		t := t
		g.Go(func() error {
			return stride(ctx, t, n, size, fn)
		})
	}
	return g.Wait()
}

// ForPool is For executed on pool, using one task per worker.
// Submission fails with errors.ErrInvalidState if the pool is stopping.
func ForPool(ctx context.Context, pool *workerpool.Pool, size int, fn func(i int) error) error {
	if fn == nil {
		return tperrors.NewValidationError("parallel", "fn", nil, "cannot be nil")
	}
	if size <= 0 {
		return nil
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		once     sync.Once
		firstErr error
	)
	fail := func(err error) {
		once.Do(func() {
			firstErr = err
			cancel()
		})
	}

	n := max(min(pool.NumWorkers(), size), 1)
	futures := make([]*workerpool.Future[struct{}], 0, n)
	for t := 0; t < n; t++ {
		t := t
		f, err := workerpool.Enqueue(pool, func() (struct{}, error) {
			err := stride(ctx, t, n, size, fn)
			if err != nil {
				fail(err)
			}
			return struct{}{}, err
		})
		if err != nil {
			fail(err)
			break
		}
		futures = append(futures, f)
	}

	for _, f := range futures {
		_ = f.Wait()
	}
	return firstErr
}

func stride(ctx context.Context, start, step, size int, fn func(i int) error) error {
	for i := start; i < size; i += step {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(i); err != nil {
			return err
		}
	}
	return nil
}
