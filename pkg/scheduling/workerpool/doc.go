/*
Package workerpool provides a fixed-size worker pool whose submissions return
futures.

A pool owns a fixed number of worker goroutines and an unbounded FIFO task
queue guarded by one mutex and one condition variable. Submitting never
blocks: the task is appended to the queue, one waiting worker is woken, and
the caller gets a Future that resolves when some worker has run the task.

Basic usage:

	pool := workerpool.New(4) // 4 workers; 0 means one per CPU
	defer pool.Stop()

	square, err := workerpool.EnqueueValue(pool, func() int {
		return 7 * 7
	})
	if err != nil {
		log.Printf("Failed to submit: %v", err)
		return
	}

	v, err := square.Get() // 49, nil

Submission Methods:

	// Value and error
	f, err := workerpool.Enqueue(pool, func() (string, error) { ... })

	// Value only
	f, err := workerpool.EnqueueValue(pool, func() int { ... })

	// No result; the Future still reports panics
	f, err := pool.Go(func() { ... })

	// Context-aware Task, bounded by Config.TaskTimeout
	f, err := pool.Submit(workerpool.TaskFunc(func(ctx context.Context) error { ... }))

Every submission fails with an error matching errors.ErrInvalidState once
Stop or Shutdown has been called. A rejected task is never queued.

Futures:

	v, err := f.Get()                   // block
	v, err := f.GetContext(ctx)         // block until ctx ends
	v, err := f.GetTimeout(time.Second) // block at most one second
	v, ready, err := f.TryGet()         // poll
	<-f.Done()                          // select on completion

	values, err := workerpool.Collect(ctx, futures)

A task that returns an error or panics never affects the pool or other
tasks. Its Future holds a *errors.TaskError whose cause is the returned
error or a *errors.PanicError with the stack trace. Nobody is required to
read a Future; fire-and-forget submissions are fine.

Ordering:

Tasks are dequeued in submission order across the whole pool. With one
worker they also run in that order; with more, completion order is
unspecified.

Lifecycle:

The pool moves through StateRunning, StateStopping and StateStopped.
Stop is idempotent: it rejects new work, lets the workers drain everything
already queued, and returns once all of them have exited.

	<-pool.Shutdown()                // same as Stop, as a channel
	err := pool.StopContext(ctx)     // bounded wait; the drain continues
	defer pool.Close()               // io.Closer

Each worker runs an explicit state machine:

	waiting for work → executing → waiting for work → … → exited

A worker exits only when it wakes to an empty queue while the pool is
stopping, so every accepted task runs before Stop returns.

Introspection:

	pool.NumWorkers()
	pool.IdleCount() // workers waiting for work
	pool.Idle()      // IdleCount() == NumWorkers()
	pool.QueueSize()
	pool.Stats()

Idle counts are maintained under the queue lock, so each read is
consistent with the queue at that instant; they can change as soon as the
call returns.

Configuration:

	pool, err := workerpool.NewWithConfig(workerpool.Config{
		WorkerCount: 8,
		Name:        "thumbnails",
		TaskTimeout: 30 * time.Second,
		Logger:      logger,
		Reporter:    workerpool.ReporterFunc(func(err error) { ... }),
		Metrics:     metrics.NewRegistry(prometheus.DefaultRegisterer),
		OnTaskComplete: func(workerID int, result workerpool.Result) {
			log.Printf("task %d took %v", result.TaskID, result.Duration)
		},
	})

Rejected submissions and task failures are also passed to the Reporter.
The default reporter logs them through the pool's slog.Logger.
*/
package workerpool
