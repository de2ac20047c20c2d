package workerpool

import (
	"context"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vnykmshr/threadpool/pkg/common/logging"
	"github.com/vnykmshr/threadpool/pkg/common/validation"
	"github.com/vnykmshr/threadpool/pkg/metrics"
)

// DefaultName labels pools created without a Name.
const DefaultName = "default"

// Task represents a unit of work that can be executed by a worker.
type Task interface {
	// Execute runs the task with the given context.
	// The context carries the pool's TaskTimeout, if configured.
	Execute(ctx context.Context) error
}

// TaskFunc is a function type that implements the Task interface.
type TaskFunc func(ctx context.Context) error

// Execute implements the Task interface for TaskFunc.
func (f TaskFunc) Execute(ctx context.Context) error {
	return f(ctx)
}

// Result describes one finished task. It is passed to Config.OnTaskComplete.
type Result struct {
	// TaskID is the submission sequence number, equal to Future.ID.
	TaskID uint64

	// WorkerID identifies which worker executed the task
	WorkerID int

	// Error is nil on success, otherwise a *errors.TaskError
	Error error

	// Duration is how long the task took to execute
	Duration time.Duration

	// QueueWait is how long the task waited before a worker picked it up
	QueueWait time.Duration
}

// Stats is a snapshot of pool counters.
type Stats struct {
	State     State
	Workers   int
	Idle      int
	Queued    int
	Submitted int64
	Completed int64
	Failed    int64
	Rejected  int64
}

// Config holds configuration options for creating a worker pool.
type Config struct {
	// WorkerCount is the number of workers in the pool.
	// Zero selects DefaultWorkerCount(). Negative values are rejected.
	WorkerCount int

	// Name labels log records and metrics. Defaults to DefaultName.
	Name string

	// TaskTimeout bounds the context handed to Task.Execute.
	// Zero means no timeout. Plain function tasks ignore it.
	TaskTimeout time.Duration

	// Logger receives lifecycle records. Defaults to slog.Default().
	Logger *slog.Logger

	// Reporter receives rejected submissions and task failures.
	// Defaults to NewLogReporter(Logger, Name).
	Reporter ErrorReporter

	// Metrics enables Prometheus instrumentation when non-nil.
	Metrics *metrics.Registry

	// PanicHandler is called with the recovered value when a task panics.
	// The failure is still stored in the task's Future.
	PanicHandler func(taskID uint64, recovered interface{})

	// OnWorkerStart is called when a worker starts.
	// Useful for per-worker initialization (e.g., database connections).
	OnWorkerStart func(workerID int)

	// OnWorkerStop is called when a worker stops.
	// Useful for per-worker cleanup.
	OnWorkerStop func(workerID int)

	// OnTaskStart is called before a task begins execution.
	OnTaskStart func(workerID int, taskID uint64)

	// OnTaskComplete is called after a task completes (success or failure).
	// It may run after the task's Future has resolved.
	OnTaskComplete func(workerID int, result Result)
}

// Pool is a fixed set of workers consuming a FIFO task queue.
//
// Workers are started by the constructor and run until Stop. Submissions
// never block. Stop drains every accepted task before returning.
type Pool struct {
	config   Config
	name     string
	logger   *slog.Logger
	reporter ErrorReporter
	metrics  *instrumentation

	// mu guards everything below up to workers, and each worker's state.
	mu      sync.Mutex
	cond    *sync.Cond
	queue   taskQueue
	state   State
	idle    int
	nextID  uint64
	workers []*worker

	workerWg sync.WaitGroup
	stopOnce sync.Once
	stopped  chan struct{}

	totalSubmitted atomic.Int64
	totalCompleted atomic.Int64
	totalFailed    atomic.Int64
	totalRejected  atomic.Int64
}

// worker represents a single worker in the pool.
type worker struct {
	id    int
	pool  *Pool
	state workerState
}

// DefaultWorkerCount returns the number of logical CPUs, at least 1.
func DefaultWorkerCount() int {
	if n := runtime.NumCPU(); n > 0 {
		return n
	}
	return 1
}

// New creates a pool with size workers. A size below 1 selects
// DefaultWorkerCount().
func New(size int) *Pool {
	if size < 1 {
		size = 0
	}
	pool, err := NewWithConfig(Config{WorkerCount: size})
	if err != nil {
		// Unreachable: the only validated field is non-negative here.
		panic(err)
	}
	return pool
}

// NewWithConfig creates a new worker pool with the specified configuration.
// On a validation error no worker is started.
func NewWithConfig(config Config) (*Pool, error) {
	if err := validation.ValidateNonNegative("workerpool", "WorkerCount", config.WorkerCount); err != nil {
		return nil, err
	}
	if err := validation.ValidateNonNegativeDuration("workerpool", "TaskTimeout", config.TaskTimeout); err != nil {
		return nil, err
	}

	if config.WorkerCount == 0 {
		config.WorkerCount = DefaultWorkerCount()
	}
	if config.Name == "" {
		config.Name = DefaultName
	}
	logger := logging.OrDefault(config.Logger)
	reporter := config.Reporter
	if reporter == nil {
		reporter = NewLogReporter(logger, config.Name)
	}

	pool := &Pool{
		config:   config,
		name:     config.Name,
		logger:   logger,
		reporter: reporter,
		metrics:  newInstrumentation(config.Metrics, config.Name, config.WorkerCount),
		stopped:  make(chan struct{}),
		// Workers are waiting for work from the moment they exist.
		idle: config.WorkerCount,
	}
	pool.cond = sync.NewCond(&pool.mu)

	// Create and start workers
	pool.workers = make([]*worker, config.WorkerCount)
	for i := range pool.workers {
		pool.workers[i] = &worker{id: i, pool: pool, state: waitingForWork}
	}
	pool.workerWg.Add(len(pool.workers))
	for _, w := range pool.workers {
		go w.run()
	}

	logger.Debug("worker pool started", "pool", pool.name, "workers", config.WorkerCount)
	return pool, nil
}
