// Package ctxlog carries a request-scoped slog.Logger in a context.
package ctxlog

import (
	"context"
	"log/slog"
)

type ctxKey struct{}

// FromContext returns the logger stored in ctx, or slog.Default().
func FromContext(ctx context.Context) *slog.Logger {
	if logger, ok := ctx.Value(ctxKey{}).(*slog.Logger); ok {
		return logger
	}
	return slog.Default()
}

// WithLogger stores logger in ctx.
func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, logger)
}

// With derives a logger from base with args added and stores it in ctx.
// A nil base uses the logger already in ctx.
func With(ctx context.Context, base *slog.Logger, args ...any) (context.Context, *slog.Logger) {
	if base == nil {
		base = FromContext(ctx)
	}
	logger := base.With(args...)
	return WithLogger(ctx, logger), logger
}
