// This file contains helper functions that ensure commonly-logged values
// always have the same key name and value type.
//
// Note that several other attr keys are reserved and should not be used:
//   - "time": used by the slog package
//   - "level": used by the slog package
//   - "msg": used by the slog package
//   - "source": used by the slog package
//   - "error": used by our blog.Error and blog.AuditError helpers
//   - "audit": used by our blog.AuditError and blog.AuditInfo helpers

package blog

import "log/slog"

// Category returns a slog.Attr whose key is "category". Every error event from
// the store path uses the category "database".
func Category(name string) slog.Attr {
	return slog.String("category", name)
}

// Ref returns a slog.Attr whose key is "ref" and whose value is the reference
// handed to the caller alongside a redacted error.
func Ref(ref string) slog.Attr {
	return slog.String("ref", ref)
}

// ErrorType returns a slog.Attr whose key is "error_type". It takes a
// fmt.Stringer so that this package need not import the errors package.
func ErrorType(t interface{ String() string }) slog.Attr {
	return slog.String("error_type", t.String())
}

// Op returns a slog.Attr whose key is "op" and whose value names the
// operation being performed, e.g. "query" or "open".
func Op(op string) slog.Attr {
	return slog.String("op", op)
}

// Template returns a slog.Attr whose key is "template". Only templates are
// ever logged; substituted statements carry caller data and never are.
func Template(tmpl string) slog.Attr {
	return slog.String("template", tmpl)
}

// MySQLErrno returns a slog.Attr whose key is "mysql_errno".
func MySQLErrno(n uint16) slog.Attr {
	return slog.Int("mysql_errno", int(n))
}
