// This file provides utilities for attaching a logger to a context object, and
// retrieving a logger from a context object.
//
// It also provides ContextWith for attaching new attrs to the context logger,
// so they'll be included in all subsequent log lines.

package blog

import (
	"context"
	"log/slog"
)

// sloggerCtxKeyType exists to ensure that sloggerCtxKey is a wholly unique
// singleton that cannot collide with context keys used by other packages.
type sloggerCtxKeyType struct{}

// sloggerCtxKey is the unique key used by this package to store and retrieve
// the logger on a context.Context.
var sloggerCtxKey = sloggerCtxKeyType{}

// NewContext returns a copy of ctx carrying the given logger.
func NewContext(ctx context.Context, slogger *slog.Logger) context.Context {
	return context.WithValue(ctx, sloggerCtxKey, slogger)
}

// WithDefault returns ctx unchanged if it already carries a logger, and
// otherwise a copy of ctx carrying fallback. Library entry points use it so
// that callers who set up their own context logger keep their attrs.
func WithDefault(ctx context.Context, fallback *slog.Logger) context.Context {
	if slogger, ok := ctx.Value(sloggerCtxKey).(*slog.Logger); ok && slogger != nil {
		return ctx
	}
	return NewContext(ctx, fallback)
}

// fromContext retrieves the logger from the context. It panics if there is
// no logger attached.
func fromContext(ctx context.Context) *slog.Logger {
	slogger, ok := ctx.Value(sloggerCtxKey).(*slog.Logger)
	if slogger == nil || !ok {
		panic("context not initialized with slogger")
	}
	return slogger
}

// ContextWith returns a new context whose attached slogger will subsequently
// include the provided slog.Attrs in its log output.
func ContextWith(ctx context.Context, attrs ...slog.Attr) context.Context {
	// slog.Logger.With takes a []any rather than a []slog.Attr, and Go won't
	// convert between the two for us.
	args := make([]any, len(attrs))
	for i, attr := range attrs {
		args[i] = attr
	}
	return NewContext(ctx, fromContext(ctx).With(args...))
}
