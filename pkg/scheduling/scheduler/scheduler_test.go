package scheduler

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/vnykmshr/threadpool/internal/testutil"
	tperrors "github.com/vnykmshr/threadpool/pkg/common/errors"
	"github.com/vnykmshr/threadpool/pkg/common/logging"
	"github.com/vnykmshr/threadpool/pkg/metrics"
	"github.com/vnykmshr/threadpool/pkg/scheduling/workerpool"
)

func newTestScheduler(t *testing.T, cfg Config) Scheduler {
	t.Helper()
	if cfg.Logger == nil {
		cfg.Logger = logging.Discard()
	}
	if cfg.TickInterval == 0 {
		cfg.TickInterval = 5 * time.Millisecond
	}
	s, err := NewWithConfig(cfg)
	testutil.AssertNoError(t, err)
	t.Cleanup(func() { <-s.Stop() })
	return s
}

func countingTask(counter *int32) workerpool.Task {
	return workerpool.TaskFunc(func(_ context.Context) error {
		atomic.AddInt32(counter, 1)
		return nil
	})
}

func TestScheduler_BasicScheduling(t *testing.T) {
	s := newTestScheduler(t, Config{})
	testutil.AssertNoError(t, s.Start())

	var executed int32
	task := countingTask(&executed)

	// Immediate scheduling
	_, err := s.Schedule("test1", task, time.Now())
	testutil.AssertNoError(t, err)

	// Delayed scheduling
	_, err = s.ScheduleAfter("test2", task, 50*time.Millisecond)
	testutil.AssertNoError(t, err)

	testutil.WaitForInt32(t, &executed, 2, time.Second)

	// One-time tasks are removed once submitted.
	testutil.AssertEventually(t, func() bool { return len(s.List()) == 0 })
}

func TestScheduler_DelayIsHonoured(t *testing.T) {
	s := newTestScheduler(t, Config{})
	testutil.AssertNoError(t, s.Start())

	ran := make(chan time.Time, 1)
	start := time.Now()
	_, err := s.ScheduleAfter("later", workerpool.TaskFunc(func(context.Context) error {
		ran <- time.Now()
		return nil
	}), 40*time.Millisecond)
	testutil.AssertNoError(t, err)

	select {
	case at := <-ran:
		if at.Sub(start) < 40*time.Millisecond {
			t.Errorf("task ran after %v, want >= 40ms", at.Sub(start))
		}
	case <-time.After(testutil.TestTimeout):
		t.Fatal("task never ran")
	}
}

func TestScheduler_RepeatingTask(t *testing.T) {
	s := newTestScheduler(t, Config{})
	testutil.AssertNoError(t, s.Start())

	var executed int32
	_, err := s.ScheduleRepeating("repeat", countingTask(&executed), 20*time.Millisecond)
	testutil.AssertNoError(t, err)

	testutil.Eventually(t, func() bool {
		return atomic.LoadInt32(&executed) >= 3
	}, time.Second, 10*time.Millisecond)

	tasks := s.List()
	testutil.AssertEqual(t, len(tasks), 1)
	testutil.AssertEqual(t, tasks[0].Interval, 20*time.Millisecond)
	testutil.AssertEqual(t, tasks[0].Runs >= 3, true)
}

func TestScheduler_GeneratedID(t *testing.T) {
	s := newTestScheduler(t, Config{})

	var executed int32
	id1, err := s.Schedule("", countingTask(&executed), time.Now().Add(time.Hour))
	testutil.AssertNoError(t, err)
	id2, err := s.Schedule("", countingTask(&executed), time.Now().Add(time.Hour))
	testutil.AssertNoError(t, err)

	testutil.AssertEqual(t, len(id1), 36)
	testutil.AssertNotEqual(t, id1, id2)

	_, ok := s.Next(id1)
	testutil.AssertEqual(t, ok, true)
	testutil.AssertEqual(t, s.Cancel(id2), true)
}

func TestScheduler_TaskManagement(t *testing.T) {
	s := newTestScheduler(t, Config{})

	var executed int32
	task := countingTask(&executed)
	later := time.Now().Add(time.Hour)

	_, err := s.Schedule("dup", task, later)
	testutil.AssertNoError(t, err)

	_, err = s.Schedule("dup", task, later)
	testutil.AssertErrorIs(t, err, tperrors.ErrInvalidConfiguration)

	tasks := s.List()
	testutil.AssertEqual(t, len(tasks), 1)
	testutil.AssertEqual(t, tasks[0].ID, "dup")

	next, ok := s.Next("dup")
	testutil.AssertEqual(t, ok, true)
	testutil.AssertEqual(t, next.Equal(later), true)

	testutil.AssertEqual(t, s.Cancel("dup"), true)
	testutil.AssertEqual(t, s.Cancel("nonexistent"), false)

	_, ok = s.Next("dup")
	testutil.AssertEqual(t, ok, false)

	for _, id := range []string{"a", "b", "c"} {
		_, err := s.Schedule(id, task, later)
		testutil.AssertNoError(t, err)
	}
	s.CancelAll()
	testutil.AssertEqual(t, len(s.List()), 0)
}

func TestScheduler_ListSortedByRunTime(t *testing.T) {
	s := newTestScheduler(t, Config{})

	var executed int32
	now := time.Now()
	for id, offset := range map[string]time.Duration{"third": 3 * time.Hour, "first": time.Hour, "second": 2 * time.Hour} {
		_, err := s.Schedule(id, countingTask(&executed), now.Add(offset))
		testutil.AssertNoError(t, err)
	}

	tasks := s.List()
	testutil.AssertEqual(t, len(tasks), 3)
	testutil.AssertEqual(t, tasks[0].ID, "first")
	testutil.AssertEqual(t, tasks[1].ID, "second")
	testutil.AssertEqual(t, tasks[2].ID, "third")
}

func TestScheduler_CancelBeforeRun(t *testing.T) {
	s := newTestScheduler(t, Config{})
	testutil.AssertNoError(t, s.Start())

	var executed int32
	_, err := s.ScheduleAfter("cancelled", countingTask(&executed), 50*time.Millisecond)
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, s.Cancel("cancelled"), true)

	time.Sleep(100 * time.Millisecond)
	testutil.AssertEqual(t, atomic.LoadInt32(&executed), int32(0))
}

func TestScheduler_Validation(t *testing.T) {
	s := newTestScheduler(t, Config{})

	var executed int32
	task := countingTask(&executed)

	tests := []struct {
		name string
		call func() error
	}{
		{"nil task", func() error {
			_, err := s.Schedule("x", nil, time.Now())
			return err
		}},
		{"zero run time", func() error {
			_, err := s.Schedule("x", task, time.Time{})
			return err
		}},
		{"id too long", func() error {
			_, err := s.Schedule(strings.Repeat("x", 256), task, time.Now())
			return err
		}},
		{"negative delay", func() error {
			_, err := s.ScheduleAfter("x", task, -time.Second)
			return err
		}},
		{"zero interval", func() error {
			_, err := s.ScheduleRepeating("x", task, 0)
			return err
		}},
		{"empty cron", func() error {
			_, err := s.ScheduleCron("x", "", task)
			return err
		}},
		{"bad cron", func() error {
			_, err := s.ScheduleCron("x", "not a cron", task)
			return err
		}},
		{"negative max runs", func() error {
			_, err := s.ScheduleCronWithOptions("x", "@hourly", task, CronOptions{MaxRuns: -1})
			return err
		}},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			testutil.AssertErrorIs(t, tt.call(), tperrors.ErrInvalidConfiguration)
		})
	}

	testutil.AssertEqual(t, len(s.List()), 0)
}

func TestScheduler_InvalidConfig(t *testing.T) {
	_, err := NewWithConfig(Config{TickInterval: -time.Second})
	testutil.AssertErrorIs(t, err, tperrors.ErrInvalidConfiguration)

	_, err = NewWithConfig(Config{MaxTasks: -1})
	testutil.AssertErrorIs(t, err, tperrors.ErrInvalidConfiguration)
}

func TestScheduler_MaxTasks(t *testing.T) {
	s := newTestScheduler(t, Config{MaxTasks: 2})

	var executed int32
	later := time.Now().Add(time.Hour)
	for _, id := range []string{"a", "b"} {
		_, err := s.Schedule(id, countingTask(&executed), later)
		testutil.AssertNoError(t, err)
	}

	_, err := s.Schedule("c", countingTask(&executed), later)
	testutil.AssertError(t, err)
	var opErr *tperrors.OperationError
	testutil.AssertEqual(t, errors.As(err, &opErr), true)
}

func TestScheduler_Lifecycle(t *testing.T) {
	s, err := NewWithConfig(Config{Logger: logging.Discard()})
	testutil.AssertNoError(t, err)

	testutil.AssertNoError(t, s.Start())
	testutil.AssertErrorIs(t, s.Start(), tperrors.ErrInvalidState)

	stopped := s.Stop()
	select {
	case <-stopped:
	case <-time.After(testutil.TestTimeout):
		t.Fatal("Stop did not complete")
	}

	// Stop is idempotent and the scheduler cannot be reused.
	<-s.Stop()
	testutil.AssertErrorIs(t, s.Start(), tperrors.ErrInvalidState)

	var executed int32
	_, err = s.Schedule("late", countingTask(&executed), time.Now())
	testutil.AssertErrorIs(t, err, tperrors.ErrInvalidState)
}

func TestScheduler_StopWithoutStart(t *testing.T) {
	s, err := NewWithConfig(Config{Logger: logging.Discard()})
	testutil.AssertNoError(t, err)

	select {
	case <-s.Stop():
	case <-time.After(testutil.TestTimeout):
		t.Fatal("Stop did not complete")
	}
}

func TestScheduler_SharedPoolNotStopped(t *testing.T) {
	pool, err := workerpool.NewWithConfig(workerpool.Config{WorkerCount: 2, Logger: logging.Discard()})
	testutil.AssertNoError(t, err)
	defer pool.Stop()

	s, err := NewWithConfig(Config{Pool: pool, Logger: logging.Discard(), TickInterval: 5 * time.Millisecond})
	testutil.AssertNoError(t, err)
	testutil.AssertNoError(t, s.Start())

	var executed int32
	_, err = s.Schedule("shared", countingTask(&executed), time.Now())
	testutil.AssertNoError(t, err)
	testutil.WaitForInt32(t, &executed, 1, time.Second)

	<-s.Stop()
	testutil.AssertEqual(t, pool.State(), workerpool.StateRunning)
}

func TestScheduler_RejectedSubmissionLogged(t *testing.T) {
	var buf bytes.Buffer
	var mu sync.Mutex
	logger, err := logging.New(logging.Config{Level: "warn"}, &lockedWriter{mu: &mu, w: &buf})
	testutil.AssertNoError(t, err)

	reg := metrics.NewRegistry(prometheus.NewRegistry())
	pool, err := workerpool.NewWithConfig(workerpool.Config{
		WorkerCount: 1,
		Name:        "stopped",
		Logger:      logging.Discard(),
	})
	testutil.AssertNoError(t, err)
	pool.Stop()

	s := newTestScheduler(t, Config{Pool: pool, Logger: logger, Metrics: reg})
	testutil.AssertNoError(t, s.Start())

	var executed int32
	_, err = s.Schedule("dropped", countingTask(&executed), time.Now())
	testutil.AssertNoError(t, err)

	testutil.AssertEventually(t, func() bool {
		return promtestutil.ToFloat64(reg.ScheduledFirings.WithLabelValues("stopped", "rejected")) == 1
	})

	mu.Lock()
	out := buf.String()
	mu.Unlock()
	if !strings.Contains(out, "scheduled task not submitted") || !strings.Contains(out, "task=dropped") {
		t.Errorf("expected rejection to be logged, got:\n%s", out)
	}
	testutil.AssertEqual(t, atomic.LoadInt32(&executed), int32(0))
}

func TestScheduler_FiringsMetric(t *testing.T) {
	reg := metrics.NewRegistry(prometheus.NewRegistry())
	s := newTestScheduler(t, Config{Metrics: reg})
	testutil.AssertNoError(t, s.Start())

	var executed int32
	for _, id := range []string{"a", "b", "c"} {
		_, err := s.Schedule(id, countingTask(&executed), time.Now())
		testutil.AssertNoError(t, err)
	}
	testutil.WaitForInt32(t, &executed, 3, time.Second)

	testutil.AssertEqual(t, promtestutil.ToFloat64(reg.ScheduledFirings.WithLabelValues("scheduler", "submitted")), float64(3))
}

func TestBackoffTask(t *testing.T) {
	tests := []struct {
		name         string
		failures     int32
		maxRetries   int
		wantErr      bool
		wantAttempts int32
	}{
		{"succeeds first time", 0, 3, false, 1},
		{"succeeds after retries", 2, 3, false, 3},
		{"exhausts retries", 10, 2, true, 3},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			var attempts int32
			bt := BackoffTask{
				Task: workerpool.TaskFunc(func(context.Context) error {
					if atomic.AddInt32(&attempts, 1) <= tt.failures {
						return errors.New("transient")
					}
					return nil
				}),
				MaxRetries:   tt.maxRetries,
				InitialDelay: time.Millisecond,
				MaxDelay:     4 * time.Millisecond,
			}

			err := bt.Execute(context.Background())
			if tt.wantErr {
				testutil.AssertError(t, err)
			} else {
				testutil.AssertNoError(t, err)
			}
			testutil.AssertEqual(t, atomic.LoadInt32(&attempts), tt.wantAttempts)
		})
	}
}

func TestBackoffTask_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	bt := BackoffTask{
		Task: workerpool.TaskFunc(func(context.Context) error {
			cancel()
			return errors.New("fail")
		}),
		MaxRetries:   5,
		InitialDelay: time.Hour,
	}

	testutil.AssertErrorIs(t, bt.Execute(ctx), context.Canceled)
}

type lockedWriter struct {
	mu *sync.Mutex
	w  *bytes.Buffer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}
