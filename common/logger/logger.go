package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"
)

// Package logger is a thin printf facade over log/slog so call sites stay
// terse. Components that need structured attributes can grab the underlying
// handler via Slog().

var current atomic.Pointer[slog.Logger]

func init() {
	current.Store(slog.New(slog.NewTextHandler(os.Stderr, nil)))
}

// Init configures the process logger. Level is one of debug, info, warn,
// error (case insensitive); anything else falls back to info. When json is
// true log lines are emitted as JSON objects.
func Init(level string, json bool) {
	InitWithWriter(os.Stderr, level, json)
}

// InitWithWriter is Init with an explicit destination. Tests use it to
// capture output.
func InitWithWriter(w io.Writer, level string, json bool) {
	opts := &slog.HandlerOptions{Level: parseLevel(level)}
	var h slog.Handler
	if json {
		h = slog.NewJSONHandler(w, opts)
	} else {
		h = slog.NewTextHandler(w, opts)
	}
	current.Store(slog.New(h))
}

// Disable routes all logging to io.Discard.
func Disable() {
	InitWithWriter(io.Discard, "error", false)
}

// Slog returns the underlying structured logger.
func Slog() *slog.Logger {
	return current.Load()
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Debugf logs a debug message
func Debugf(format string, args ...interface{}) {
	current.Load().Debug(fmt.Sprintf(format, args...))
}

// Infof logs an info message
func Infof(format string, args ...interface{}) {
	current.Load().Info(fmt.Sprintf(format, args...))
}

// Warnf logs a warning message
func Warnf(format string, args ...interface{}) {
	current.Load().Warn(fmt.Sprintf(format, args...))
}

// Errorf logs an error message
func Errorf(format string, args ...interface{}) {
	current.Load().Error(fmt.Sprintf(format, args...))
}
