// Package config loads threadpool configuration from YAML or JSON files
// with environment variable overrides.
package config

import (
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	tperrors "github.com/vnykmshr/threadpool/pkg/common/errors"
	"github.com/vnykmshr/threadpool/pkg/common/logging"
	"github.com/vnykmshr/threadpool/pkg/metrics"
	"github.com/vnykmshr/threadpool/pkg/scheduling/resultstore"
	"github.com/vnykmshr/threadpool/pkg/scheduling/scheduler"
	"github.com/vnykmshr/threadpool/pkg/scheduling/workerpool"
)

// EnvPrefix prefixes every environment override, e.g. THREADPOOL_POOL_WORKERS.
const EnvPrefix = "THREADPOOL"

// Config is the file representation of a threadpool deployment.
type Config struct {
	Pool        PoolConfig        `yaml:"pool" json:"pool"`
	Logging     logging.Config    `yaml:"logging" json:"logging"`
	Metrics     MetricsConfig     `yaml:"metrics" json:"metrics"`
	ResultStore ResultStoreConfig `yaml:"result_store" json:"result_store"`
	Scheduler   SchedulerConfig   `yaml:"scheduler" json:"scheduler"`
}

// PoolConfig configures the worker pool.
type PoolConfig struct {
	// Workers is the number of worker goroutines; 0 means one per CPU.
	Workers     int      `yaml:"workers" json:"workers"`
	Name        string   `yaml:"name" json:"name"`
	TaskTimeout Duration `yaml:"task_timeout" json:"task_timeout"`
}

// MetricsConfig configures Prometheus metrics.
type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled" json:"enabled"`
	Namespace string `yaml:"namespace" json:"namespace"`
	// Address is where an application may serve /metrics, e.g. ":9090".
	Address string `yaml:"address" json:"address"`
}

// ResultStoreConfig configures the Redis result store.
type ResultStoreConfig struct {
	Enabled    bool     `yaml:"enabled" json:"enabled"`
	Address    string   `yaml:"address" json:"address"`
	Password   string   `yaml:"password" json:"password"`
	DB         int      `yaml:"db" json:"db"`
	Prefix     string   `yaml:"prefix" json:"prefix"`
	TTL        Duration `yaml:"ttl" json:"ttl"`
	InstanceID string   `yaml:"instance_id" json:"instance_id"`
	Timeout    Duration `yaml:"timeout" json:"timeout"`
}

// SchedulerConfig configures the scheduler and its cron jobs.
type SchedulerConfig struct {
	TickInterval Duration `yaml:"tick_interval" json:"tick_interval"`
	// Timezone is an IANA name such as "Europe/Berlin"; empty means local.
	Timezone string `yaml:"timezone" json:"timezone"`
	MaxTasks int    `yaml:"max_tasks" json:"max_tasks"`
	Jobs     []Job  `yaml:"jobs" json:"jobs"`
}

// Job is one cron entry. What a job does is up to the application.
type Job struct {
	ID      string `yaml:"id" json:"id"`
	Cron    string `yaml:"cron" json:"cron"`
	MaxRuns int    `yaml:"max_runs" json:"max_runs"`
}

// Default returns the configuration used for fields a file leaves out.
func Default() Config {
	return Config{
		Pool: PoolConfig{
			Name: workerpool.DefaultName,
		},
		Logging: logging.Config{
			Level:  "info",
			Format: "text",
		},
		Metrics: MetricsConfig{
			Namespace: metrics.DefaultNamespace,
			Address:   ":9090",
		},
		ResultStore: ResultStoreConfig{
			Address: "localhost:6379",
			Prefix:  "threadpool",
			TTL:     Duration(time.Hour),
			Timeout: Duration(500 * time.Millisecond),
		},
		Scheduler: SchedulerConfig{
			TickInterval: Duration(50 * time.Millisecond),
		},
	}
}

// Validate checks every section and returns the first problem found.
func (c Config) Validate() error {
	if c.Pool.Workers < 0 {
		return tperrors.NewValidationError("config", "pool.workers", c.Pool.Workers, "must be non-negative").
			WithHint("use 0 for one worker per CPU")
	}
	if c.Pool.TaskTimeout < 0 {
		return tperrors.NewValidationError("config", "pool.task_timeout", c.Pool.TaskTimeout, "must be non-negative")
	}

	if _, err := logging.New(c.Logging, io.Discard); err != nil {
		return err
	}

	if c.ResultStore.Enabled && c.ResultStore.Address == "" {
		return tperrors.NewValidationError("config", "result_store.address", "", "required when the result store is enabled")
	}
	if c.ResultStore.TTL < 0 {
		return tperrors.NewValidationError("config", "result_store.ttl", c.ResultStore.TTL, "must be non-negative")
	}
	if c.ResultStore.Timeout < 0 {
		return tperrors.NewValidationError("config", "result_store.timeout", c.ResultStore.Timeout, "must be non-negative")
	}

	return c.Scheduler.validate()
}

func (s SchedulerConfig) validate() error {
	if s.TickInterval < 0 {
		return tperrors.NewValidationError("config", "scheduler.tick_interval", s.TickInterval, "must be non-negative")
	}
	if s.MaxTasks < 0 {
		return tperrors.NewValidationError("config", "scheduler.max_tasks", s.MaxTasks, "must be non-negative")
	}
	if _, err := s.location(); err != nil {
		return err
	}

	seen := make(map[string]bool, len(s.Jobs))
	for i, job := range s.Jobs {
		field := fmt.Sprintf("scheduler.jobs[%d]", i)
		if job.ID != "" {
			if seen[job.ID] {
				return tperrors.NewValidationError("config", field+".id", job.ID, "duplicate job id")
			}
			seen[job.ID] = true
		}
		if err := scheduler.ValidateCron(job.Cron); err != nil {
			return fmt.Errorf("%s: %w", field, err)
		}
		if job.MaxRuns < 0 {
			return tperrors.NewValidationError("config", field+".max_runs", job.MaxRuns, "must be non-negative")
		}
	}
	return nil
}

func (s SchedulerConfig) location() (*time.Location, error) {
	if s.Timezone == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		return nil, tperrors.NewValidationError("config", "scheduler.timezone", s.Timezone, err.Error())
	}
	return loc, nil
}

// NewLogger builds the logger described by the logging section.
func (c Config) NewLogger(w io.Writer) (*slog.Logger, error) {
	return logging.New(c.Logging, w)
}

// MetricsRegistry builds the metrics registry, or returns nil when metrics
// are disabled. A nil reg uses the Prometheus default registerer.
func (c Config) MetricsRegistry(reg prometheus.Registerer) *metrics.Registry {
	return metrics.Config{
		Enabled:   c.Metrics.Enabled,
		Registry:  reg,
		Namespace: c.Metrics.Namespace,
	}.Build()
}

// WorkerPool converts the pool section into a workerpool.Config.
func (c Config) WorkerPool(logger *slog.Logger, registry *metrics.Registry) workerpool.Config {
	return workerpool.Config{
		WorkerCount: c.Pool.Workers,
		Name:        c.Pool.Name,
		TaskTimeout: time.Duration(c.Pool.TaskTimeout),
		Logger:      logger,
		Metrics:     registry,
	}
}

// SchedulerConfig converts the scheduler section into a scheduler.Config
// running on pool.
func (c Config) SchedulerConfig(pool *workerpool.Pool, logger *slog.Logger, registry *metrics.Registry) (scheduler.Config, error) {
	loc, err := c.Scheduler.location()
	if err != nil {
		return scheduler.Config{}, err
	}
	return scheduler.Config{
		Pool:         pool,
		Location:     loc,
		TickInterval: time.Duration(c.Scheduler.TickInterval),
		MaxTasks:     c.Scheduler.MaxTasks,
		Logger:       logger,
		Metrics:      registry,
	}, nil
}

// RedisOptions returns client options for the result store.
func (r ResultStoreConfig) RedisOptions() *redis.Options {
	return &redis.Options{
		Addr:     r.Address,
		Password: r.Password,
		DB:       r.DB,
	}
}

// OpenResultStore creates the result store with a new Redis client. It
// returns nil, nil when the store is disabled.
func (c Config) OpenResultStore(logger *slog.Logger) (*resultstore.Store, error) {
	if !c.ResultStore.Enabled {
		return nil, nil
	}
	return resultstore.New(resultstore.Config{
		Redis:      redis.NewClient(c.ResultStore.RedisOptions()),
		Prefix:     c.ResultStore.Prefix,
		TTL:        time.Duration(c.ResultStore.TTL),
		InstanceID: c.ResultStore.InstanceID,
		Timeout:    time.Duration(c.ResultStore.Timeout),
		Logger:     logger,
	})
}
