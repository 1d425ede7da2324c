package log

import (
	"context"
	"log/slog"
	"os"
	"sync"
)

var (
	defaultMu     sync.RWMutex
	defaultOpts   []Option
	defaultLogger = Make(os.Stderr)
)

// Default returns the process-wide logger. It writes to stderr until
// reconfigured with Config.
func Default() Logger {
	defaultMu.RLock()
	defer defaultMu.RUnlock()

	return defaultLogger
}

// Config reconfigures the process-wide logger. Options accumulate
// across calls, so flag parsing can apply them one at a time as flags
// are encountered.
func Config(opts ...Option) {
	defaultMu.Lock()
	defer defaultMu.Unlock()

	defaultOpts = append(defaultOpts, opts...)
	defaultLogger = Make(os.Stderr, defaultOpts...)
}

// TraceContext logs to the default logger at Trace level.
func TraceContext(ctx context.Context, msg string, attrs ...slog.Attr) {
	Default().TraceContext(ctx, msg, attrs...)
}

// Trace logs to the default logger at Trace level.
func Trace(msg string, attrs ...slog.Attr) {
	Default().TraceContext(context.Background(), msg, attrs...)
}

// DebugContext logs to the default logger at Debug level.
func DebugContext(ctx context.Context, msg string, attrs ...slog.Attr) {
	Default().DebugContext(ctx, msg, attrs...)
}

// Debug logs to the default logger at Debug level.
func Debug(msg string, attrs ...slog.Attr) {
	Default().DebugContext(context.Background(), msg, attrs...)
}

// InfoContext logs to the default logger at Info level.
func InfoContext(ctx context.Context, msg string, attrs ...slog.Attr) {
	Default().InfoContext(ctx, msg, attrs...)
}

// Info logs to the default logger at Info level.
func Info(msg string, attrs ...slog.Attr) {
	Default().InfoContext(context.Background(), msg, attrs...)
}

// WarnContext logs to the default logger at Warn level.
func WarnContext(ctx context.Context, msg string, attrs ...slog.Attr) {
	Default().WarnContext(ctx, msg, attrs...)
}

// Warn logs to the default logger at Warn level.
func Warn(msg string, attrs ...slog.Attr) {
	Default().WarnContext(context.Background(), msg, attrs...)
}

// ErrorContext logs to the default logger at Error level.
func ErrorContext(ctx context.Context, msg string, attrs ...slog.Attr) {
	Default().ErrorContext(ctx, msg, attrs...)
}

// Error logs to the default logger at Error level.
func Error(msg string, attrs ...slog.Attr) {
	Default().ErrorContext(context.Background(), msg, attrs...)
}
