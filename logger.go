package mvgo

import (
	"log/slog"
	"os"

	"github.com/hupe1980/mvgo/core"
)

// Logger wraps slog.Logger with mvgo-specific context.
// This provides structured logging with consistent field names.
type Logger struct {
	*slog.Logger
}

// NewLogger creates a new Logger with the given handler.
// If handler is nil, uses default text handler to stderr.
func NewLogger(handler slog.Handler) *Logger {
	if handler == nil {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		})
	}
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewJSONLogger creates a Logger that outputs JSON-formatted logs.
// level sets the minimum log level (e.g., slog.LevelDebug, slog.LevelInfo).
func NewJSONLogger(level slog.Level) *Logger {
	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewTextLogger creates a Logger that outputs human-readable text logs.
func NewTextLogger(level slog.Level) *Logger {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NoopLogger creates a Logger that discards all log output.
// Use this to disable logging entirely.
func NoopLogger() *Logger {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.Level(1000), // Unreachable level
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// WithPath adds the store path field to the logger.
func (l *Logger) WithPath(path string) *Logger {
	return &Logger{
		Logger: l.Logger.With("path", path),
	}
}

// WithVersion adds a version field to the logger.
func (l *Logger) WithVersion(v core.Version) *Logger {
	return &Logger{
		Logger: l.Logger.With("version_seq", v.Seq, "version_gen", v.Gen),
	}
}

// LogOpen logs a database open.
func (l *Logger) LogOpen(path string, readOnly bool, err error) {
	if err != nil {
		l.Error("open failed",
			"path", path,
			"read_only", readOnly,
			"error", err,
		)
	} else {
		l.Debug("database opened",
			"path", path,
			"read_only", readOnly,
		)
	}
}

// LogWrite logs a committed write transaction.
func (l *Logger) LogWrite(path string, v core.Version, err error) {
	if err != nil {
		l.Error("write failed",
			"path", path,
			"error", err,
		)
	} else {
		l.Debug("write committed",
			"path", path,
			"version_seq", v.Seq,
		)
	}
}

// LogRefresh logs a refresh to the converged version.
func (l *Logger) LogRefresh(path string, v core.Version, err error) {
	if err != nil {
		l.Error("refresh failed",
			"path", path,
			"error", err,
		)
	} else {
		l.Debug("refresh completed",
			"path", path,
			"version_seq", v.Seq,
		)
	}
}

// LogClearCache logs a cache clear.
func (l *Logger) LogClearCache() {
	l.Info("coordinator cache cleared")
}
