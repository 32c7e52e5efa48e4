// This file provides the scaffolding necessary to differentiate audit logs from
// non-audit logs:
//
//  1. A singleton slog.Attr which the Audit helper functions attach to records.
//  2. A Handler which holds two sub-handlers and dispatches each Record to one
//     of them depending on whether the Record carries the audit Attr.
//  3. An io.Writer which prepends the text `[AUDIT] ` to all messages written
//     to it.

package blog

import (
	"bytes"
	"context"
	"io"
	"log/slog"
)

// auditKey is the key used to identify the auditAttr.
const auditKey = "audit"

// auditAttr is added to Records by AuditError and AuditInfo, and detected by
// auditHandler.Handle to decide which sub-Handler the Record goes to.
var auditAttr = slog.Bool(auditKey, true)

// auditWriter implements the io.Writer interface. It prepends the string
// `[AUDIT] ` to each line written to it.
type auditWriter struct {
	inner io.Writer
}

var _ io.Writer = (*auditWriter)(nil)

// Write prepends the audit tag to its input and forwards the result to the
// inner io.Writer in a single call. slog guarantees one Write per Handle, so
// each audit line is tagged exactly once.
func (w *auditWriter) Write(in []byte) (int, error) {
	out := bytes.Buffer{}
	out.WriteString("[AUDIT] ")
	out.Write(in)
	size, err := out.WriteTo(w.inner)
	return int(size), err
}

// newAuditHandler creates an auditHandler, using the given constructor to
// build both sub-handlers. The audit sub-handler writes through an
// auditWriter. It is generic because Go can't convert a
// `func(...) *slog.TextHandler` to a `func(...) slog.Handler`.
func newAuditHandler[T slog.Handler](constructor func(io.Writer, *slog.HandlerOptions) T, w io.Writer, opts *slog.HandlerOptions) *auditHandler {
	origReplaceAttr := opts.ReplaceAttr
	opts.ReplaceAttr = func(groups []string, attr slog.Attr) slog.Attr {
		// The auditWriter already tags the line, so drop the attr itself. Only
		// exact matches are dropped, so a stray slog.String("audit", ...) is
		// still logged.
		if attr.Equal(auditAttr) {
			return slog.Attr{}
		}
		if origReplaceAttr != nil {
			return origReplaceAttr(groups, attr)
		}
		return attr
	}

	return &auditHandler{
		audit: constructor(&auditWriter{inner: w}, opts),
		plain: constructor(w, opts),
	}
}

// auditHandler forwards Enabled, WithAttrs and WithGroup to both wrapped
// Handlers, but sends each Record to exactly one of them.
type auditHandler struct {
	audit slog.Handler
	plain slog.Handler
}

var _ slog.Handler = (*auditHandler)(nil)

func (h *auditHandler) Enabled(ctx context.Context, l slog.Level) bool {
	return h.audit.Enabled(ctx, l) || h.plain.Enabled(ctx, l)
}

// Handle calls Handle on the audit Handler if the Record has an attr with the
// audit key, and on the plain Handler otherwise.
func (h *auditHandler) Handle(ctx context.Context, r slog.Record) error {
	handler := h.plain
	r.Attrs(func(attr slog.Attr) bool {
		if attr.Key == auditKey {
			handler = h.audit
			return false
		}
		return true
	})
	return handler.Handle(ctx, r)
}

func (h *auditHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &auditHandler{
		audit: h.audit.WithAttrs(attrs),
		plain: h.plain.WithAttrs(attrs),
	}
}

func (h *auditHandler) WithGroup(name string) slog.Handler {
	return &auditHandler{
		audit: h.audit.WithGroup(name),
		plain: h.plain.WithGroup(name),
	}
}
