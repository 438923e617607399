// Package slogadapter bridges Go's standard log/slog package to the
// circulation observability interfaces, for users who want structured
// logging without implementing the interfaces themselves.
package slogadapter

import (
	"context"
	"log/slog"

	"github.com/openlibra/circulation-engine/circulation"
)

// Logger implements circulation.Logger and circulation.ContextualLogger on
// top of a *slog.Logger.
type Logger struct {
	logger *slog.Logger
}

// New creates a Logger around the given slog logger; nil uses slog.Default.
func New(logger *slog.Logger) *Logger {
	if logger == nil {
		logger = slog.Default()
	}

	return &Logger{logger: logger}
}

// NewWithHandler creates a Logger from a slog.Handler.
func NewWithHandler(handler slog.Handler) *Logger {
	return &Logger{logger: slog.New(handler)}
}

// Debug logs a debug message.
func (l *Logger) Debug(msg string, args ...any) {
	l.logger.Debug(msg, args...)
}

// Info logs an info message.
func (l *Logger) Info(msg string, args ...any) {
	l.logger.Info(msg, args...)
}

// Warn logs a warning message.
func (l *Logger) Warn(msg string, args ...any) {
	l.logger.Warn(msg, args...)
}

// Error logs an error message.
func (l *Logger) Error(msg string, args ...any) {
	l.logger.Error(msg, args...)
}

// DebugContext logs a debug message with context.
func (l *Logger) DebugContext(ctx context.Context, msg string, args ...any) {
	l.logger.DebugContext(ctx, msg, args...)
}

// InfoContext logs an info message with context.
func (l *Logger) InfoContext(ctx context.Context, msg string, args ...any) {
	l.logger.InfoContext(ctx, msg, args...)
}

// WarnContext logs a warning message with context.
func (l *Logger) WarnContext(ctx context.Context, msg string, args ...any) {
	l.logger.WarnContext(ctx, msg, args...)
}

// ErrorContext logs an error message with context.
func (l *Logger) ErrorContext(ctx context.Context, msg string, args ...any) {
	l.logger.ErrorContext(ctx, msg, args...)
}

// Ensure Logger implements both logging interfaces.
var (
	_ circulation.Logger           = (*Logger)(nil)
	_ circulation.ContextualLogger = (*Logger)(nil)
)
