// Package logging builds the structured loggers used by threadpool components.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	tperrors "github.com/vnykmshr/threadpool/pkg/common/errors"
)

// Config selects level and output format.
type Config struct {
	// Level is one of "debug", "info", "warn", "error". Empty means "info".
	Level string `yaml:"level" json:"level"`

	// Format is "text" or "json". Empty means "text".
	Format string `yaml:"format" json:"format"`
}

// ParseLevel maps a level name to a slog.Level.
func ParseLevel(level string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, tperrors.NewValidationError("logging", "Level", level, "unknown level").
			WithHint("use debug, info, warn or error")
	}
}

// New creates a logger writing to w (os.Stderr when nil).
func New(cfg Config, w io.Writer) (*slog.Logger, error) {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	if w == nil {
		w = os.Stderr
	}

	opts := &slog.HandlerOptions{Level: level}
	switch strings.ToLower(cfg.Format) {
	case "", "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	default:
		return nil, tperrors.NewValidationError("logging", "Format", cfg.Format, "unknown format").
			WithHint("use text or json")
	}
}

// Discard returns a logger that drops every record.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}

// OrDefault returns l, or slog.Default() when l is nil.
func OrDefault(l *slog.Logger) *slog.Logger {
	if l == nil {
		return slog.Default()
	}
	return l
}
