package dictgo

import (
	"log/slog"
	"os"
)

// Logger wraps slog.Logger with dictgo-specific helpers.
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

// WithKey adds a key field to the logger.
func (l *Logger) WithKey(key string) *Logger {
	return &Logger{
		Logger: l.Logger.With("key", key),
	}
}

// WithSlot adds a slot index field to the logger.
func (l *Logger) WithSlot(slot int) *Logger {
	return &Logger{
		Logger: l.Logger.With("slot", slot),
	}
}

// LogSet logs a set operation.
func (l *Logger) LogSet(key string, slot int, overwrite bool) {
	l.WithKey(key).WithSlot(slot).Debug("set completed",
		"overwrite", overwrite,
	)
}

// LogDelete logs a delete operation.
func (l *Logger) LogDelete(key string, slot int) {
	l.WithKey(key).WithSlot(slot).Debug("delete completed")
}

// LogGrow logs a storage growth step.
func (l *Logger) LogGrow(oldCap, newCap int) {
	l.Debug("storage grown",
		"old_capacity", oldCap,
		"new_capacity", newCap,
	)
}
