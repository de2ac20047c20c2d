// Package integration contains integration tests that verify cross-package functionality.
// These tests ensure that different components work together correctly in realistic scenarios.
package integration

import (
	"context"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/goleak"

	"github.com/vnykmshr/threadpool/internal/testutil"
	"github.com/vnykmshr/threadpool/pkg/config"
	"github.com/vnykmshr/threadpool/pkg/scheduling/parallel"
	"github.com/vnykmshr/threadpool/pkg/scheduling/scheduler"
	"github.com/vnykmshr/threadpool/pkg/scheduling/workerpool"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const deployment = `
pool:
  workers: 3
  name: integration
metrics:
  enabled: true
  namespace: integration
logging:
  level: error
scheduler:
  tick_interval: 5ms
  timezone: UTC
  jobs:
    - id: every-second
      cron: "* * * * * *"
      max_runs: 1
`

// TestConfiguredPoolSchedulerAndLoop wires a pool, a scheduler and a
// parallel loop from one config document and checks that every submission
// is accounted for once everything has stopped.
func TestConfiguredPoolSchedulerAndLoop(t *testing.T) {
	cfg, err := config.Parse([]byte(deployment), config.FormatYAML)
	testutil.AssertNoError(t, err)
	testutil.AssertNoError(t, cfg.Validate())

	logger, err := cfg.NewLogger(io.Discard)
	testutil.AssertNoError(t, err)
	registry := cfg.MetricsRegistry(prometheus.NewRegistry())

	pool, err := workerpool.NewWithConfig(cfg.WorkerPool(logger, registry))
	testutil.AssertNoError(t, err)
	defer pool.Stop()

	schedCfg, err := cfg.SchedulerConfig(pool, logger, registry)
	testutil.AssertNoError(t, err)
	sched, err := scheduler.NewWithConfig(schedCfg)
	testutil.AssertNoError(t, err)

	var cronRuns, intervalRuns int32
	for _, job := range cfg.Scheduler.Jobs {
		_, err := sched.ScheduleCronWithOptions(job.ID, job.Cron, workerpool.TaskFunc(func(context.Context) error {
			atomic.AddInt32(&cronRuns, 1)
			return nil
		}), scheduler.CronOptions{MaxRuns: job.MaxRuns})
		testutil.AssertNoError(t, err)
	}
	_, err = sched.ScheduleRepeating("interval", workerpool.TaskFunc(func(context.Context) error {
		atomic.AddInt32(&intervalRuns, 1)
		return nil
	}), 10*time.Millisecond)
	testutil.AssertNoError(t, err)
	testutil.AssertNoError(t, sched.Start())

	// A parallel loop shares the pool with the scheduled work.
	var loopSum int64
	err = parallel.ForPool(context.Background(), pool, 1000, func(i int) error {
		atomic.AddInt64(&loopSum, int64(i))
		return nil
	})
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, atomic.LoadInt64(&loopSum), int64(999*1000/2))

	testutil.WaitForInt32(t, &cronRuns, 1, 3*time.Second)
	testutil.Eventually(t, func() bool {
		return atomic.LoadInt32(&intervalRuns) >= 3
	}, time.Second, 5*time.Millisecond)

	<-sched.Stop()
	pool.Stop()

	stats := pool.Stats()
	testutil.AssertEqual(t, stats.State, workerpool.StateStopped)
	testutil.AssertEqual(t, stats.Failed, int64(0))
	testutil.AssertEqual(t, stats.Submitted, stats.Completed)

	firings := promtestutil.ToFloat64(registry.ScheduledFirings.WithLabelValues("integration", "submitted"))
	parallelTasks := float64(pool.NumWorkers())
	testutil.AssertEqual(t, promtestutil.ToFloat64(registry.TasksSubmitted.WithLabelValues("integration")), firings+parallelTasks)
	testutil.AssertEqual(t, firings, float64(atomic.LoadInt32(&cronRuns)+atomic.LoadInt32(&intervalRuns)))
}

// TestSchedulerOutlivesPool checks that due tasks are dropped, not run or
// panicked on, once the shared pool has stopped.
func TestSchedulerOutlivesPool(t *testing.T) {
	cfg := config.Default()
	logger, err := cfg.NewLogger(io.Discard)
	testutil.AssertNoError(t, err)

	pool, err := workerpool.NewWithConfig(workerpool.Config{WorkerCount: 1, Logger: logger})
	testutil.AssertNoError(t, err)

	sched, err := scheduler.NewWithConfig(scheduler.Config{Pool: pool, Logger: logger, TickInterval: 5 * time.Millisecond})
	testutil.AssertNoError(t, err)
	testutil.AssertNoError(t, sched.Start())
	defer func() { <-sched.Stop() }()

	var runs int32
	_, err = sched.ScheduleRepeating("", workerpool.TaskFunc(func(context.Context) error {
		atomic.AddInt32(&runs, 1)
		return nil
	}), 5*time.Millisecond)
	testutil.AssertNoError(t, err)

	testutil.Eventually(t, func() bool { return atomic.LoadInt32(&runs) > 0 }, time.Second, 5*time.Millisecond)
	pool.Stop()
	after := atomic.LoadInt32(&runs)

	testutil.Eventually(t, func() bool { return pool.Stats().Rejected > 0 }, time.Second, 5*time.Millisecond)
	testutil.AssertEqual(t, atomic.LoadInt32(&runs), after)
}
