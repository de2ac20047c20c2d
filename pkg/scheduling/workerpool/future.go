package workerpool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	tperrors "github.com/vnykmshr/threadpool/pkg/common/errors"
)

// Future is the result handle of a submitted task. The worker that runs the
// task fulfils it exactly once; any number of goroutines may read it.
//
// A Future does not reference its pool and stays valid after the pool stops.
type Future[T any] struct {
	id    uint64
	done  chan struct{}
	once  sync.Once
	value T
	err   error
}

func newFuture[T any]() *Future[T] {
	return &Future[T]{done: make(chan struct{})}
}

// complete stores the outcome. Only the first call has an effect.
func (f *Future[T]) complete(value T, err error) {
	f.once.Do(func() {
		if err == nil {
			f.value = value
		}
		f.err = err
		close(f.done)
	})
}

// ID returns the task's submission sequence number. IDs start at 1 and
// increase in queue order.
func (f *Future[T]) ID() uint64 {
	return f.id
}

// Done returns a channel that is closed once the task has finished.
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// Ready reports whether the task has finished, without blocking.
func (f *Future[T]) Ready() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

// Get blocks until the task finishes and returns its value. If the task
// returned an error or panicked, the error is a *errors.TaskError wrapping
// the cause and the value is the zero value of T.
func (f *Future[T]) Get() (T, error) {
	<-f.done
	return f.value, f.err
}

// Wait blocks until the task finishes and returns only its error.
func (f *Future[T]) Wait() error {
	_, err := f.Get()
	return err
}

// GetContext is Get bounded by ctx. When ctx ends first it returns ctx.Err();
// the task keeps running and the Future can be read again later.
func (f *Future[T]) GetContext(ctx context.Context) (T, error) {
	if f.Ready() {
		return f.Get()
	}
	select {
	case <-f.done:
		return f.Get()
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// GetTimeout is Get bounded by timeout. On expiry the error matches
// errors.ErrTimeout.
func (f *Future[T]) GetTimeout(timeout time.Duration) (T, error) {
	if f.Ready() {
		return f.Get()
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-f.done:
		return f.Get()
	case <-timer.C:
		var zero T
		return zero, fmt.Errorf("task %d: result not ready after %v: %w", f.id, timeout, tperrors.ErrTimeout)
	}
}

// TryGet returns the outcome if the task has finished. ready is false while
// the task is still queued or running.
func (f *Future[T]) TryGet() (value T, ready bool, err error) {
	if !f.Ready() {
		return value, false, nil
	}
	value, err = f.Get()
	return value, true, err
}

// Collect waits for every future and returns their values in the order
// given. Task failures are joined into the returned error and leave a zero
// value in their slot. If ctx ends first, Collect returns the values gathered
// so far together with ctx.Err().
func Collect[T any](ctx context.Context, futures []*Future[T]) ([]T, error) {
	values := make([]T, 0, len(futures))
	var errs []error

	for _, f := range futures {
		if !f.Ready() {
			select {
			case <-f.done:
			case <-ctx.Done():
				return values, ctx.Err()
			}
		}
		v, err := f.Get()
		if err != nil {
			errs = append(errs, err)
		}
		values = append(values, v)
	}

	return values, errors.Join(errs...)
}
