package hybridgo

import (
	"context"
	"log/slog"
	"os"
)

// Logger wraps slog.Logger with hybridgo-specific context.
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
	return &Logger{
		Logger: slog.New(slog.DiscardHandler),
	}
}

// LogRetrieve logs a hybrid retrieval operation.
func (l *Logger) LogRetrieve(ctx context.Context, k, vectorHits, graphHits, fused int, provenance string, err error) {
	if err != nil {
		l.ErrorContext(ctx, "retrieve failed",
			"k", k,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "retrieve completed",
			"k", k,
			"vector_hits", vectorHits,
			"graph_hits", graphHits,
			"fused", fused,
			"provenance", provenance,
		)
	}
}

// LogSourceTimeout logs a per-source timeout that degraded the result.
func (l *Logger) LogSourceTimeout(ctx context.Context, source string) {
	l.WarnContext(ctx, "source timed out, serving partial result",
		"source", source,
	)
}

// LogSetWeights logs a fusion weight change.
func (l *Logger) LogSetWeights(ctx context.Context, vector, graph float64) {
	l.InfoContext(ctx, "fusion weights updated",
		"vector", vector,
		"graph", graph,
	)
}
