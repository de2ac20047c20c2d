package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	tperrors "github.com/vnykmshr/threadpool/pkg/common/errors"
	"github.com/vnykmshr/threadpool/pkg/common/logging"
	"github.com/vnykmshr/threadpool/pkg/common/validation"
	"github.com/vnykmshr/threadpool/pkg/metrics"
	"github.com/vnykmshr/threadpool/pkg/scheduling/workerpool"
)

const maxIDLength = 255

// Task describes a scheduled task.
type Task struct {
	ID       string
	RunAt    time.Time
	Interval time.Duration // Zero for one-time and cron tasks
	Cron     string        // Empty unless scheduled with ScheduleCron
	Runs     int           // Number of times the task has been submitted
	Created  time.Time
}

// Scheduler submits tasks to a worker pool at given times, at fixed
// intervals, or on cron schedules.
type Scheduler interface {
	// Basic scheduling. An empty id is replaced by a generated one; the
	// id actually used is returned.
	Schedule(id string, task workerpool.Task, runAt time.Time) (string, error)
	ScheduleAfter(id string, task workerpool.Task, delay time.Duration) (string, error)
	ScheduleRepeating(id string, task workerpool.Task, interval time.Duration) (string, error)

	// Cron scheduling
	ScheduleCron(id string, cronExpr string, task workerpool.Task) (string, error)
	ScheduleCronWithOptions(id string, cronExpr string, task workerpool.Task, options CronOptions) (string, error)

	// Task management
	Cancel(id string) bool
	CancelAll()
	List() []Task
	Next(id string) (time.Time, bool)

	// Lifecycle
	Start() error
	Stop() <-chan struct{}
}

// BackoffTask wraps a task with retry logic.
type BackoffTask struct {
	Task         workerpool.Task
	MaxRetries   int
	InitialDelay time.Duration
	MaxDelay     time.Duration
}

// Execute implements workerpool.Task with exponential backoff.
func (bt BackoffTask) Execute(ctx context.Context) error {
	var lastErr error
	delay := bt.InitialDelay

	for attempt := 0; attempt <= bt.MaxRetries; attempt++ {
		if attempt > 0 {
			timer := time.NewTimer(delay)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			}
		}

		lastErr = bt.Task.Execute(ctx)
		if lastErr == nil {
			return nil
		}

		// Double delay for next attempt
		delay *= 2
		if bt.MaxDelay > 0 && delay > bt.MaxDelay {
			delay = bt.MaxDelay
		}
	}

	return lastErr
}

// Config holds scheduler configuration.
type Config struct {
	// Pool runs the tasks. If nil the scheduler creates its own pool and
	// stops it in Stop.
	Pool *workerpool.Pool

	Location     *time.Location // For cron scheduling (default: time.Local)
	TickInterval time.Duration  // How often to check for ready tasks (default: 50ms)
	MaxTasks     int            // Maximum number of scheduled tasks (default: 10000)

	// Logger receives rejected submissions and recovered panics.
	Logger *slog.Logger

	// Metrics counts firings by outcome. Nil disables metrics.
	Metrics *metrics.Registry
}

type scheduledTask struct {
	id       string
	task     workerpool.Task
	runAt    time.Time
	interval time.Duration
	cronExpr string
	schedule cron.Schedule
	location *time.Location
	maxRuns  int
	runs     int
	created  time.Time
}

type scheduler struct {
	pool         *workerpool.Pool
	ownPool      bool
	location     *time.Location
	tickInterval time.Duration
	maxTasks     int
	logger       *slog.Logger
	metrics      *metrics.Registry

	mu       sync.RWMutex
	tasks    map[string]*scheduledTask
	done     chan struct{}
	running  bool
	stopped  bool
	loopDone sync.WaitGroup
	stopOnce sync.Once
	stopCh   chan struct{}
}

// New creates a scheduler with default configuration.
func New() Scheduler {
	s, err := NewWithConfig(Config{})
	if err != nil {
		// Unreachable: the zero Config is valid.
		panic(err)
	}
	return s
}

// NewWithConfig creates a scheduler with custom configuration.
func NewWithConfig(cfg Config) (Scheduler, error) {
	if err := validation.ValidateNonNegativeDuration("scheduler", "TickInterval", cfg.TickInterval); err != nil {
		return nil, err
	}
	if err := validation.ValidateNonNegative("scheduler", "MaxTasks", cfg.MaxTasks); err != nil {
		return nil, err
	}

	logger := logging.OrDefault(cfg.Logger)

	pool := cfg.Pool
	ownPool := false
	if pool == nil {
		var err error
		pool, err = workerpool.NewWithConfig(workerpool.Config{
			Name:    "scheduler",
			Logger:  logger,
			Metrics: cfg.Metrics,
		})
		if err != nil {
			return nil, err
		}
		ownPool = true
	}

	location := cfg.Location
	if location == nil {
		location = time.Local
	}

	tickInterval := cfg.TickInterval
	if tickInterval == 0 {
		tickInterval = 50 * time.Millisecond
	}

	maxTasks := cfg.MaxTasks
	if maxTasks == 0 {
		maxTasks = 10000
	}

	return &scheduler{
		pool:         pool,
		ownPool:      ownPool,
		location:     location,
		tickInterval: tickInterval,
		maxTasks:     maxTasks,
		logger:       logger,
		metrics:      cfg.Metrics,
		tasks:        make(map[string]*scheduledTask),
		done:         make(chan struct{}),
		stopCh:       make(chan struct{}),
	}, nil
}

// checkTask validates the common arguments and fills in a missing id.
func checkTask(id string, task workerpool.Task) (string, error) {
	if task == nil {
		return "", tperrors.NewValidationError("scheduler", "task", nil, "cannot be nil")
	}
	if id == "" {
		return uuid.NewString(), nil
	}
	if len(id) > maxIDLength {
		return "", tperrors.NewValidationError("scheduler", "id", len(id), "too long").
			WithHint(fmt.Sprintf("use at most %d characters", maxIDLength))
	}
	return id, nil
}

// add stores st unless its id is taken or the scheduler is full.
func (s *scheduler) add(st *scheduledTask) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return fmt.Errorf("cannot schedule task %q: scheduler is stopped: %w", st.id, tperrors.ErrInvalidState)
	}
	if _, exists := s.tasks[st.id]; exists {
		return tperrors.NewValidationError("scheduler", "id", st.id, "already scheduled").
			WithHint("use a different ID or cancel the existing task first")
	}
	if len(s.tasks) >= s.maxTasks {
		return tperrors.NewOperationError("scheduler", "schedule",
			fmt.Errorf("maximum number of tasks (%d) reached", s.maxTasks))
	}

	s.tasks[st.id] = st
	return nil
}

func (s *scheduler) Schedule(id string, task workerpool.Task, runAt time.Time) (string, error) {
	id, err := checkTask(id, task)
	if err != nil {
		return "", err
	}
	if runAt.IsZero() {
		return "", tperrors.NewValidationError("scheduler", "runAt", runAt, "cannot be zero")
	}

	if err := s.add(&scheduledTask{
		id:      id,
		task:    task,
		runAt:   runAt,
		maxRuns: 1,
		created: time.Now(),
	}); err != nil {
		return "", err
	}
	return id, nil
}

func (s *scheduler) ScheduleAfter(id string, task workerpool.Task, delay time.Duration) (string, error) {
	if err := validation.ValidateNonNegativeDuration("scheduler", "delay", delay); err != nil {
		return "", err
	}
	return s.Schedule(id, task, time.Now().Add(delay))
}

func (s *scheduler) ScheduleRepeating(id string, task workerpool.Task, interval time.Duration) (string, error) {
	id, err := checkTask(id, task)
	if err != nil {
		return "", err
	}
	if err := validation.ValidatePositiveDuration("scheduler", "interval", interval); err != nil {
		return "", err
	}

	now := time.Now()
	if err := s.add(&scheduledTask{
		id:       id,
		task:     task,
		runAt:    now,
		interval: interval,
		created:  now,
	}); err != nil {
		return "", err
	}
	return id, nil
}

func (s *scheduler) ScheduleCron(id string, cronExpr string, task workerpool.Task) (string, error) {
	return s.ScheduleCronWithOptions(id, cronExpr, task, CronOptions{})
}

func (s *scheduler) Cancel(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.tasks[id]; exists {
		delete(s.tasks, id)
		return true
	}
	return false
}

func (s *scheduler) CancelAll() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.tasks = make(map[string]*scheduledTask)
}

func (s *scheduler) List() []Task {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tasks := make([]Task, 0, len(s.tasks))
	for _, t := range s.tasks {
		tasks = append(tasks, Task{
			ID:       t.id,
			RunAt:    t.runAt,
			Interval: t.interval,
			Cron:     t.cronExpr,
			Runs:     t.runs,
			Created:  t.created,
		})
	}

	// Sort by run time
	sort.Slice(tasks, func(i, j int) bool {
		return tasks[i].RunAt.Before(tasks[j].RunAt)
	})

	return tasks
}

func (s *scheduler) Next(id string) (time.Time, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.tasks[id]
	if !ok {
		return time.Time{}, false
	}
	return t.runAt, true
}

func (s *scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return fmt.Errorf("scheduler cannot be restarted after Stop: %w", tperrors.ErrInvalidState)
	}
	if s.running {
		return fmt.Errorf("scheduler already running: %w", tperrors.ErrInvalidState)
	}

	s.running = true
	s.loopDone.Add(1)
	go s.run(time.NewTicker(s.tickInterval))
	return nil
}

// Stop halts the tick loop. Tasks already handed to the pool still run.
// When the scheduler owns its pool, the returned channel closes after the
// pool has drained; otherwise once the loop has exited.
func (s *scheduler) Stop() <-chan struct{} {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		s.stopped = true
		wasRunning := s.running
		s.running = false
		s.mu.Unlock()

		if wasRunning {
			close(s.done)
		}

		go func() {
			defer close(s.stopCh)
			s.loopDone.Wait()
			if s.ownPool {
				s.pool.Stop()
			}
			s.logger.Debug("scheduler stopped")
		}()
	})

	return s.stopCh
}

func (s *scheduler) run(ticker *time.Ticker) {
	defer s.loopDone.Done()
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case now := <-ticker.C:
			s.tick(now)
		}
	}
}

// tick keeps the loop alive if processing a batch panics.
func (s *scheduler) tick(now time.Time) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("scheduler tick panicked", "panic", r)
		}
	}()
	s.processReadyTasks(now)
}

func (s *scheduler) processReadyTasks(now time.Time) {
	s.mu.Lock()
	if len(s.tasks) == 0 {
		s.mu.Unlock()
		return
	}

	var ready []*scheduledTask
	for _, task := range s.tasks {
		if !task.runAt.After(now) {
			ready = append(ready, task)
		}
	}

	// Submit in due order.
	sort.Slice(ready, func(i, j int) bool {
		return ready[i].runAt.Before(ready[j].runAt)
	})

	for _, task := range ready {
		task.runs++
		switch {
		case task.maxRuns > 0 && task.runs >= task.maxRuns:
			delete(s.tasks, task.id)
		case task.interval > 0:
			task.runAt = now.Add(task.interval)
		case task.schedule != nil:
			task.runAt = task.schedule.Next(now.In(task.location))
			if task.runAt.IsZero() {
				// The expression has no further matching time.
				delete(s.tasks, task.id)
				s.logger.Info("cron task exhausted", "task", task.id, "cron", task.cronExpr)
			}
		}
	}
	s.mu.Unlock()

	for _, task := range ready {
		s.submit(task)
	}
}

func (s *scheduler) submit(task *scheduledTask) {
	outcome := "submitted"
	if _, err := s.pool.Submit(task.task); err != nil {
		outcome = "rejected"
		s.logger.Warn("scheduled task not submitted", "task", task.id, "error", err)
	}
	if s.metrics != nil {
		s.metrics.ScheduledFirings.WithLabelValues(s.pool.Name(), outcome).Inc()
	}
}
