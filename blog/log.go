// This file contains all of the helper functions for emitting log messages. It
// is the primary public interface of this package. Each function extracts the
// logger from the context and uses it to log the given message and additional
// attrs.

package blog

import (
	"context"
	"log/slog"
)

// Error logs the given message, error, and other key-value pairs at error
// level. The error will be included in the attrs under the key "error".
func Error(ctx context.Context, msg string, err error, attrs ...slog.Attr) {
	slogger := fromContext(ctx).With(slog.Any("error", err))
	slogger.LogAttrs(ctx, slog.LevelError, msg, attrs...)
}

// Warn logs the given message and other key-value pairs at warning level.
func Warn(ctx context.Context, msg string, attrs ...slog.Attr) {
	fromContext(ctx).LogAttrs(ctx, slog.LevelWarn, msg, attrs...)
}

// Info logs the given message and other key-value pairs at info level.
func Info(ctx context.Context, msg string, attrs ...slog.Attr) {
	fromContext(ctx).LogAttrs(ctx, slog.LevelInfo, msg, attrs...)
}

// Debug logs the given message and other key-value pairs at debug level.
func Debug(ctx context.Context, msg string, attrs ...slog.Attr) {
	fromContext(ctx).LogAttrs(ctx, slog.LevelDebug, msg, attrs...)
}

// AuditError logs the given message, error, and other key-value pairs at error
// level and with the audit tag. The error will be included in the attrs under
// the key "error".
func AuditError(ctx context.Context, msg string, err error, attrs ...slog.Attr) {
	slogger := fromContext(ctx).With(slog.Any("error", err))
	slogger.LogAttrs(ctx, slog.LevelError, msg, withAudit(attrs)...)
}

// AuditInfo logs the given message and other key-value pairs at info level and
// with the audit tag.
func AuditInfo(ctx context.Context, msg string, attrs ...slog.Attr) {
	fromContext(ctx).LogAttrs(ctx, slog.LevelInfo, msg, withAudit(attrs)...)
}

// withAudit prepends the audit attr. It has to travel on the Record itself
// rather than through Logger.With, because auditHandler.Handle only inspects
// Record attrs.
func withAudit(attrs []slog.Attr) []slog.Attr {
	out := make([]slog.Attr, 0, len(attrs)+1)
	out = append(out, auditAttr)
	return append(out, attrs...)
}
