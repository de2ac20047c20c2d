package resultstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	tperrors "github.com/vnykmshr/threadpool/pkg/common/errors"
	"github.com/vnykmshr/threadpool/pkg/common/logging"
	"github.com/vnykmshr/threadpool/pkg/common/validation"
	"github.com/vnykmshr/threadpool/pkg/scheduling/workerpool"
)

// ErrNotFound is returned by Get when no result is stored for a task.
var ErrNotFound = errors.New("result not found")

// Status is the outcome of a task.
type Status string

const (
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Entry is one stored task outcome.
type Entry struct {
	TaskID     uint64
	Status     Status
	Error      string
	WorkerID   int
	Duration   time.Duration
	QueueWait  time.Duration
	FinishedAt time.Time
}

// Stats holds the counters of one instance.
type Stats struct {
	InstanceID string
	Completed  int64
	Failed     int64
}

// Config holds configuration for a Store.
type Config struct {
	// Redis client used for storage. Required.
	Redis redis.UniversalClient

	// Prefix is the first key segment (default "threadpool").
	Prefix string

	// TTL is how long stored keys live (default 1 hour).
	TTL time.Duration

	// InstanceID separates this process's keys from other instances.
	// Defaults to a random UUID.
	InstanceID string

	// Timeout bounds each Redis call made by Hook (default 500ms).
	Timeout time.Duration

	// Logger receives recording failures from Hook.
	Logger *slog.Logger
}

// DefaultConfig returns a configuration with every default filled in
// except Redis.
func DefaultConfig() Config {
	return Config{
		Prefix:     "threadpool",
		TTL:        time.Hour,
		InstanceID: uuid.NewString(),
		Timeout:    500 * time.Millisecond,
	}
}

// Store writes task outcomes to Redis.
type Store struct {
	client   redis.UniversalClient
	prefix   string
	instance string
	ttl      time.Duration
	timeout  time.Duration
	logger   *slog.Logger
}

// New creates a Store. It does not contact Redis.
func New(cfg Config) (*Store, error) {
	if cfg.Redis == nil {
		return nil, tperrors.NewValidationError("resultstore", "Redis", nil, "cannot be nil")
	}
	if err := validation.ValidateNonNegativeDuration("resultstore", "TTL", cfg.TTL); err != nil {
		return nil, err
	}
	if err := validation.ValidateNonNegativeDuration("resultstore", "Timeout", cfg.Timeout); err != nil {
		return nil, err
	}

	defaults := DefaultConfig()
	if cfg.Prefix == "" {
		cfg.Prefix = defaults.Prefix
	}
	if cfg.TTL == 0 {
		cfg.TTL = defaults.TTL
	}
	if cfg.InstanceID == "" {
		cfg.InstanceID = defaults.InstanceID
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaults.Timeout
	}

	return &Store{
		client:   cfg.Redis,
		prefix:   cfg.Prefix,
		instance: cfg.InstanceID,
		ttl:      cfg.TTL,
		timeout:  cfg.Timeout,
		logger:   logging.OrDefault(cfg.Logger),
	}, nil
}

// InstanceID returns the instance segment of this store's keys.
func (s *Store) InstanceID() string {
	return s.instance
}

// namespace is a Redis Cluster hash tag, so all keys of an instance live in
// one slot and Record's transaction and Reset's DEL never cross slots.
func (s *Store) namespace() string {
	return "{" + s.prefix + ":" + s.instance + "}"
}

func (s *Store) taskKey(taskID uint64) string {
	return s.namespace() + ":task:" + strconv.FormatUint(taskID, 10)
}

func (s *Store) statsKey() string {
	return s.namespace() + ":stats"
}

// Record stores result and bumps the instance counters in one transaction.
func (s *Store) Record(ctx context.Context, result workerpool.Result) error {
	status := StatusCompleted
	if result.Error != nil {
		status = StatusFailed
	}
	taskKey := s.taskKey(result.TaskID)
	statsKey := s.statsKey()

	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, taskKey, resultFields(result, time.Now()))
		pipe.Expire(ctx, taskKey, s.ttl)
		pipe.HIncrBy(ctx, statsKey, string(status), 1)
		pipe.Expire(ctx, statsKey, s.ttl)
		return nil
	})
	if err != nil {
		return tperrors.NewOperationError("resultstore", "record", err).
			WithContext(fmt.Sprintf("task %d", result.TaskID))
	}
	return nil
}

// Get returns the stored outcome of taskID, or ErrNotFound.
func (s *Store) Get(ctx context.Context, taskID uint64) (*Entry, error) {
	fields, err := s.client.HGetAll(ctx, s.taskKey(taskID)).Result()
	if err != nil {
		return nil, tperrors.NewOperationError("resultstore", "get", err).
			WithContext(fmt.Sprintf("task %d", taskID))
	}
	if len(fields) == 0 {
		return nil, fmt.Errorf("task %d: %w", taskID, ErrNotFound)
	}

	entry, err := entryFromFields(taskID, fields)
	if err != nil {
		return nil, tperrors.NewOperationError("resultstore", "get", err).
			WithContext(fmt.Sprintf("task %d", taskID))
	}
	return entry, nil
}

// Stats returns this instance's counters.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	fields, err := s.client.HGetAll(ctx, s.statsKey()).Result()
	if err != nil {
		return Stats{}, tperrors.NewOperationError("resultstore", "stats", err)
	}

	stats := Stats{InstanceID: s.instance}
	if stats.Completed, err = parseCounter(fields, string(StatusCompleted)); err != nil {
		return Stats{}, tperrors.NewOperationError("resultstore", "stats", err)
	}
	if stats.Failed, err = parseCounter(fields, string(StatusFailed)); err != nil {
		return Stats{}, tperrors.NewOperationError("resultstore", "stats", err)
	}
	return stats, nil
}

// Reset deletes every key of this instance. On a cluster client every
// master is scanned.
func (s *Store) Reset(ctx context.Context) error {
	keys, err := s.scanKeys(ctx)
	if err != nil {
		return tperrors.NewOperationError("resultstore", "reset", err)
	}
	if len(keys) == 0 {
		return nil
	}

	if err := s.client.Del(ctx, keys...).Err(); err != nil {
		return tperrors.NewOperationError("resultstore", "reset", err)
	}
	return nil
}

func (s *Store) scanKeys(ctx context.Context) ([]string, error) {
	pattern := s.namespace() + ":*"

	cluster, ok := s.client.(*redis.ClusterClient)
	if !ok {
		return scanNode(ctx, s.client, pattern)
	}

	var (
		mu   sync.Mutex
		keys []string
	)
	err := cluster.ForEachMaster(ctx, func(ctx context.Context, node *redis.Client) error {
		found, err := scanNode(ctx, node, pattern)
		if err != nil {
			return err
		}
		mu.Lock()
		keys = append(keys, found...)
		mu.Unlock()
		return nil
	})
	return keys, err
}

func scanNode(ctx context.Context, c redis.Cmdable, pattern string) ([]string, error) {
	var keys []string
	iter := c.Scan(ctx, 0, pattern, 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	return keys, iter.Err()
}

// Hook returns a workerpool.Config.OnTaskComplete callback that records
// every result.
func (s *Store) Hook() func(workerID int, result workerpool.Result) {
	return func(_ int, result workerpool.Result) {
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()

		if err := s.Record(ctx, result); err != nil {
			s.logger.Warn("failed to record task result", "task_id", result.TaskID, "error", err)
		}
	}
}

// Close closes the Redis client.
func (s *Store) Close() error {
	return s.client.Close()
}
