package workerpool

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	tperrors "github.com/vnykmshr/threadpool/pkg/common/errors"
)

// Enqueue submits fn and returns a Future for its result.
// It fails with errors.ErrInvalidState once the pool has begun stopping,
// in which case nothing is queued.
func Enqueue[T any](p *Pool, fn func() (T, error)) (*Future[T], error) {
	if fn == nil {
		return nil, tperrors.NewValidationError("workerpool", "task", nil, "cannot be nil")
	}

	f := newFuture[T]()
	var value T
	j := &job{
		call: func(context.Context) error {
			v, err := fn()
			value = v
			return err
		},
		settle: func(err error) {
			f.complete(value, err)
		},
	}

	id, err := p.enqueue(j)
	if err != nil {
		return nil, err
	}
	f.id = id
	return f, nil
}

// EnqueueValue submits a task that cannot fail other than by panicking.
func EnqueueValue[T any](p *Pool, fn func() T) (*Future[T], error) {
	if fn == nil {
		return nil, tperrors.NewValidationError("workerpool", "task", nil, "cannot be nil")
	}
	return Enqueue(p, func() (T, error) {
		return fn(), nil
	})
}

// Go submits a task without a result. The returned Future resolves when the
// task finishes and carries a panic, if any; ignoring it is allowed.
func (p *Pool) Go(fn func()) (*Future[struct{}], error) {
	if fn == nil {
		return nil, tperrors.NewValidationError("workerpool", "task", nil, "cannot be nil")
	}
	return Enqueue(p, func() (struct{}, error) {
		fn()
		return struct{}{}, nil
	})
}

// Submit adds a task to the pool for execution. The task receives a context
// bounded by Config.TaskTimeout.
func (p *Pool) Submit(task Task) (*Future[struct{}], error) {
	if task == nil {
		return nil, tperrors.NewValidationError("workerpool", "task", nil, "cannot be nil")
	}

	f := newFuture[struct{}]()
	j := &job{
		call: task.Execute,
		settle: func(err error) {
			f.complete(struct{}{}, err)
		},
	}

	id, err := p.enqueue(j)
	if err != nil {
		return nil, err
	}
	f.id = id
	return f, nil
}

// enqueue appends j to the queue and wakes one waiting worker.
func (p *Pool) enqueue(j *job) (uint64, error) {
	p.mu.Lock()
	if p.state != StateRunning {
		state := p.state
		p.mu.Unlock()

		p.totalRejected.Add(1)
		p.metrics.rejected()
		err := fmt.Errorf("cannot submit task: worker pool is %s: %w", state, tperrors.ErrInvalidState)
		p.reporter.Report(err)
		return 0, err
	}

	p.nextID++
	j.id = p.nextID
	j.enqueued = time.Now()
	p.queue.push(j)
	p.metrics.submitted(p.queue.len())
	p.mu.Unlock()

	p.cond.Signal()
	p.totalSubmitted.Add(1)
	return j.id, nil
}

// Shutdown begins a graceful shutdown and returns a channel that is closed
// once every worker has drained the queue and exited. New submissions fail
// from the moment Shutdown is first called. Later calls return the same
// channel.
func (p *Pool) Shutdown() <-chan struct{} {
	p.stopOnce.Do(func() {
		p.mu.Lock()
		p.state = StateStopping
		pending := p.queue.len()
		p.mu.Unlock()

		// Every waiting worker must re-check the stop condition.
		p.cond.Broadcast()
		p.logger.Info("worker pool stopping", "pool", p.name, "pending", pending)

		go func() {
			p.workerWg.Wait()

			p.mu.Lock()
			p.state = StateStopped
			p.mu.Unlock()

			p.logger.Info("worker pool stopped", "pool", p.name,
				"completed", p.totalCompleted.Load(),
				"failed", p.totalFailed.Load())
			close(p.stopped)
		}()
	})

	return p.stopped
}

// Stop shuts the pool down and blocks until every accepted task has run and
// all workers have exited. It is safe to call more than once and from
// several goroutines. Calling Stop from inside a task deadlocks.
func (p *Pool) Stop() {
	<-p.Shutdown()
}

// StopContext is Stop bounded by ctx. If ctx ends first the drain continues
// in the background and the error wraps both errors.ErrTimeout and ctx.Err().
func (p *Pool) StopContext(ctx context.Context) error {
	select {
	case <-p.Shutdown():
		return nil
	case <-ctx.Done():
		return fmt.Errorf("worker pool %s did not stop: %w: %w", p.name, tperrors.ErrTimeout, ctx.Err())
	}
}

// Close implements io.Closer by calling Stop.
func (p *Pool) Close() error {
	p.Stop()
	return nil
}

// Name returns the pool's label.
func (p *Pool) Name() string {
	return p.name
}

// NumWorkers returns the number of workers in the pool.
func (p *Pool) NumWorkers() int {
	return len(p.workers)
}

// IdleCount returns the number of workers waiting for work. The value is
// read under the queue lock but may be stale as soon as it is returned.
func (p *Pool) IdleCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.idle
}

// Idle reports whether every worker is waiting for work.
func (p *Pool) Idle() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.idle == len(p.workers)
}

// QueueSize returns the current number of queued tasks waiting for execution.
func (p *Pool) QueueSize() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.queue.len()
}

// State returns the lifecycle state.
func (p *Pool) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Stats returns a snapshot of the pool's gauges and counters.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	s := Stats{
		State:   p.state,
		Workers: len(p.workers),
		Idle:    p.idle,
		Queued:  p.queue.len(),
	}
	p.mu.Unlock()

	s.Submitted = p.totalSubmitted.Load()
	s.Completed = p.totalCompleted.Load()
	s.Failed = p.totalFailed.Load()
	s.Rejected = p.totalRejected.Load()
	return s
}

// run is the main loop for a worker.
func (w *worker) run() {
	p := w.pool
	defer p.workerWg.Done()

	if p.config.OnWorkerStart != nil {
		p.safeHook("OnWorkerStart", func() { p.config.OnWorkerStart(w.id) })
	}

	for {
		j := w.next()
		if j == nil {
			break
		}
		w.execute(j)
	}

	if p.config.OnWorkerStop != nil {
		p.safeHook("OnWorkerStop", func() { p.config.OnWorkerStop(w.id) })
	}
	p.logger.Debug("worker exited", "pool", p.name, "worker_id", w.id)
}

// next moves the worker back to waitingForWork, blocks until there is a job
// or the pool is stopping, and returns the head of the queue. It returns nil
// only when the queue is empty and the pool is stopping, after which the
// worker is exited for good.
func (w *worker) next() *job {
	p := w.pool
	p.mu.Lock()

	if w.state == executing {
		w.state = waitingForWork
		p.idle++
		p.metrics.state(p.idle, p.queue.len())
	}

	for p.queue.len() == 0 && p.state == StateRunning {
		p.cond.Wait()
	}

	if p.queue.len() == 0 {
		w.state = exited
		p.idle--
		p.metrics.state(p.idle, 0)
		p.mu.Unlock()
		return nil
	}

	j := p.queue.pop()
	w.state = executing
	p.idle--
	p.metrics.state(p.idle, p.queue.len())
	p.mu.Unlock()
	return j
}

// execute runs one job outside the pool lock and settles its Future.
func (w *worker) execute(j *job) {
	p := w.pool
	start := time.Now()

	if p.config.OnTaskStart != nil {
		p.safeHook("OnTaskStart", func() { p.config.OnTaskStart(w.id, j.id) })
	}

	err := w.invoke(j)
	if err != nil {
		err = &tperrors.TaskError{TaskID: j.id, Err: err}
	}

	result := Result{
		TaskID:    j.id,
		WorkerID:  w.id,
		Error:     err,
		Duration:  time.Since(start),
		QueueWait: start.Sub(j.enqueued),
	}
	if err != nil {
		p.totalFailed.Add(1)
	} else {
		p.totalCompleted.Add(1)
	}
	p.metrics.finished(result)

	j.settle(err)

	if err != nil {
		p.reporter.Report(err)
	}
	if p.config.OnTaskComplete != nil {
		p.safeHook("OnTaskComplete", func() { p.config.OnTaskComplete(w.id, result) })
	}
}

// invoke calls the task, converting a panic into a *errors.PanicError.
func (w *worker) invoke(j *job) (err error) {
	p := w.pool

	defer func() {
		if r := recover(); r != nil {
			err = &tperrors.PanicError{Value: r, Stack: debug.Stack()}
			if p.config.PanicHandler != nil {
				p.safeHook("PanicHandler", func() { p.config.PanicHandler(j.id, r) })
			}
		}
	}()

	ctx := context.Background()
	if p.config.TaskTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.config.TaskTimeout)
		defer cancel()
	}

	return j.call(ctx)
}

// safeHook runs a user callback, logging instead of crashing the worker if
// it panics.
func (p *Pool) safeHook(name string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("worker pool hook panicked", "pool", p.name, "hook", name, "panic", r)
		}
	}()
	fn()
}
