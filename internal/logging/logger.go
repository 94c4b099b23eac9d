// Package logging provides the component logger used throughout the control
// plane. It follows the teacher codebase's convention of a small printf-style
// wrapper (utils.NewComponentLogger) over the standard library's structured
// logger, rather than pulling in a third third-party logging stack.
package logging

import (
	"fmt"
	"log/slog"
	"os"
	"sync"
)

var (
	defaultHandlerMu sync.Mutex
	defaultHandler   slog.Handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo})
)

// SetLevel adjusts the process-wide default log level. Agents call this once
// at startup from config.Config.LogLevel.
func SetLevel(level slog.Level) {
	defaultHandlerMu.Lock()
	defer defaultHandlerMu.Unlock()
	defaultHandler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
}

// Logger is a named, printf-style wrapper around slog, matching the call
// shape used across the control plane: logger.Error("claim failed: %v", err).
type Logger struct {
	inner *slog.Logger
	name  string
}

// NewComponentLogger returns a Logger tagged with the given component name,
// e.g. NewComponentLogger("clerk") or NewComponentLogger("PostgresRequestStore").
func NewComponentLogger(name string) *Logger {
	defaultHandlerMu.Lock()
	h := defaultHandler
	defaultHandlerMu.Unlock()
	return &Logger{inner: slog.New(h).With("component", name), name: name}
}

func (l *Logger) Debug(format string, args ...any) { l.inner.Debug(fmt.Sprintf(format, args...)) }
func (l *Logger) Info(format string, args ...any)  { l.inner.Info(fmt.Sprintf(format, args...)) }
func (l *Logger) Warn(format string, args ...any)  { l.inner.Warn(fmt.Sprintf(format, args...)) }
func (l *Logger) Error(format string, args ...any) { l.inner.Error(fmt.Sprintf(format, args...)) }

// Critical logs at error level with a "critical" marker; the control plane
// never lets a critical error escape a handler (§7), it only surfaces it here.
func (l *Logger) Critical(format string, args ...any) {
	l.inner.Error("CRITICAL: " + fmt.Sprintf(format, args...))
}

// With returns a derived Logger carrying additional structured fields.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{inner: l.inner.With(args...), name: l.name}
}
