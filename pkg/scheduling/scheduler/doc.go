// Package scheduler submits tasks to a worker pool at a given time, at fixed
// intervals, or on cron schedules.
//
// The scheduler does not run tasks itself. A tick loop wakes every
// TickInterval, collects the tasks that are due, and submits them to a
// workerpool.Pool in due order. Timing is therefore accurate to one tick.
//
// Basic Usage:
//
//	s := scheduler.New()
//	defer func() { <-s.Stop() }()
//
//	if err := s.Start(); err != nil {
//		log.Fatal(err)
//	}
//
//	task := workerpool.TaskFunc(func(ctx context.Context) error {
//		fmt.Println("Task executed!")
//		return nil
//	})
//
//	// One-time task
//	s.Schedule("my-task", task, time.Now().Add(time.Second))
//
//	// Repeating task, every 30 seconds
//	s.ScheduleRepeating("report", task, 30*time.Second)
//
//	// Cron task, every 5 seconds on weekdays
//	s.ScheduleCron("poll", "*/5 * * * * 1-5", task)
//
// An empty id is replaced by a generated UUID; every Schedule method returns
// the id it used, which is the handle for Cancel and Next.
//
// Sharing a Pool:
//
//	pool := workerpool.New(8)
//	defer pool.Stop()
//
//	s, err := scheduler.NewWithConfig(scheduler.Config{
//		Pool:         pool,
//		TickInterval: 10 * time.Millisecond,
//		Location:     time.UTC,
//	})
//
// A scheduler given a pool never stops it. Without one it creates a pool of
// one worker per CPU and stops it in Stop. If the pool has stopped, due tasks
// are dropped and logged at Warn.
//
// Cron Expressions:
//
// Expressions have six fields, seconds first, or a descriptor:
//
//	"0 30 14 * * 1-5"  2:30 PM on weekdays
//	"@hourly"          Every hour
//	"@every 90s"       Every 90 seconds
//
// Use ValidateCron to check an expression and DescribeCron to preview its
// next run times. CronOptions limit the number of runs and set a time zone.
//
// Retries:
//
// BackoffTask wraps a task and retries it with exponential backoff inside a
// single pool slot.
//
// Lifecycle:
//
// Start may be called once. Stop halts the tick loop and returns a channel
// that closes when the loop has exited and, for an owned pool, when the pool
// has drained. A stopped scheduler cannot be restarted.
package scheduler
