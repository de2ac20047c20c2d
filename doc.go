/*
Package threadpool provides a fixed-size worker pool for Go applications,
with futures, a cron scheduler and parallel loops built on top.

Task Execution (pkg/scheduling):
  - workerpool: Worker pool with FIFO queue, futures and graceful stop
  - scheduler: Delayed, repeating and cron scheduling into a pool
  - parallel: Bounded parallel for-loops
  - resultstore: Task outcome ledger in Redis

Support packages:
  - config: YAML/JSON configuration with environment overrides
  - metrics: Prometheus instrumentation
  - common/errors, common/validation, common/logging

Example usage:

	import "github.com/vnykmshr/threadpool/pkg/scheduling/workerpool"

	pool := workerpool.New(0) // one worker per CPU
	defer pool.Stop()

	square, _ := workerpool.EnqueueValue(pool, func() int { return 7 * 7 })
	v, _ := square.Get()
*/
package threadpool
