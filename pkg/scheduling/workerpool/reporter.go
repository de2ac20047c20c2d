package workerpool

import (
	"errors"
	"log/slog"

	tperrors "github.com/vnykmshr/threadpool/pkg/common/errors"
)

// ErrorReporter receives errors the pool cannot hand back directly:
// rejected submissions and task failures. Implementations must be safe for
// concurrent use; they are called from submitting goroutines and workers.
type ErrorReporter interface {
	Report(err error)
}

// ReporterFunc adapts a function to ErrorReporter.
type ReporterFunc func(err error)

// Report implements ErrorReporter.
func (f ReporterFunc) Report(err error) {
	f(err)
}

// NewLogReporter returns an ErrorReporter that writes to logger.
// Rejections are logged at Warn, panics at Error, and ordinary task
// failures at Debug since the caller sees them through the Future.
func NewLogReporter(logger *slog.Logger, poolName string) ErrorReporter {
	return &logReporter{logger: logger, pool: poolName}
}

type logReporter struct {
	logger *slog.Logger
	pool   string
}

func (r *logReporter) Report(err error) {
	switch {
	case errors.Is(err, tperrors.ErrInvalidState):
		r.logger.Warn("task rejected", "pool", r.pool, "error", err)
	case tperrors.IsPanic(err):
		var te *tperrors.TaskError
		var id uint64
		if errors.As(err, &te) {
			id = te.TaskID
		}
		r.logger.Error("task panicked", "pool", r.pool, "task_id", id, "error", err)
	default:
		r.logger.Debug("task failed", "pool", r.pool, "error", err)
	}
}
