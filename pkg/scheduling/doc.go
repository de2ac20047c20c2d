/*
Package scheduling groups the task execution packages of threadpool.

  - workerpool: fixed-size worker pool with a FIFO queue and futures
  - scheduler: time, interval and cron based submission into a pool
  - parallel: bounded parallel loops over an index range
  - resultstore: Redis ledger of task outcomes

Worker Pool:

	pool := workerpool.New(4) // 4 workers
	defer pool.Stop()

	f, err := workerpool.EnqueueValue(pool, func() int { return 7 * 7 })
	if err != nil {
		return err
	}
	v, err := f.Get() // 49, nil

Task Scheduler:

	s, _ := scheduler.NewWithConfig(scheduler.Config{Pool: pool})
	s.Start()
	defer func() { <-s.Stop() }()

	s.ScheduleAfter("once", task, time.Minute)
	s.ScheduleRepeating("hourly", task, time.Hour)
	s.ScheduleCron("weekdays", "0 0 9 * * MON-FRI", task)

Parallel Loops:

	err := parallel.For(ctx, len(items), func(i int) error {
		return process(items[i])
	}, parallel.WithThreads(8))

Stopping a pool drains its queue: every task accepted before Stop runs to
completion, and submissions after Stop fail with errors.ErrInvalidState.
*/
package scheduling
