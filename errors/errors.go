// Package errors provides the typed errors used throughout querysafe. Each
// QueryError carries a coarse ErrorType, a detail string meant for the log,
// and an optional reference that ties a caller-facing error to its log line.
package errors

import (
	"errors"
	"fmt"
)

// ErrorType provides a coarse category for QueryErrors
type ErrorType int

const (
	// Connection errors happen while reaching the store and are terminal for
	// the instance that produced them.
	Connection ErrorType = iota
	Encoding
	Template
	Guard
	Execution
	Shape
)

func (t ErrorType) String() string {
	switch t {
	case Connection:
		return "connection"
	case Encoding:
		return "encoding"
	case Template:
		return "template"
	case Guard:
		return "guard"
	case Execution:
		return "execution"
	case Shape:
		return "shape"
	default:
		return fmt.Sprintf("unknown(%d)", int(t))
	}
}

// genericDetail is the only text a redacted error of the given type carries.
var genericDetail = map[ErrorType]string{
	Connection: "database unavailable",
	Encoding:   "invalid query parameter",
	Template:   "invalid query template",
	Guard:      "statement not permitted",
	Execution:  "query failed",
	Shape:      "unexpected number of rows",
}

// QueryError represents internal querysafe errors
type QueryError struct {
	Type   ErrorType
	Detail string
	// Ref is empty for internal errors. Redacted errors carry the reference
	// under which the internal detail was logged.
	Ref string
	// err is the wrapped cause, if any. It is never copied by Redact.
	err error
}

func (qe *QueryError) Error() string {
	if qe.Ref != "" {
		return fmt.Sprintf("%s (ref %s)", qe.Detail, qe.Ref)
	}
	return qe.Detail
}

func (qe *QueryError) Unwrap() error {
	return qe.err
}

// Is lets errors.Is match a QueryError against a bare *QueryError whose only
// populated field is Type, e.g. errors.Is(err, &QueryError{Type: Guard}).
func (qe *QueryError) Is(target error) bool {
	t, ok := target.(*QueryError)
	if !ok {
		return false
	}
	return t.Detail == "" && t.Ref == "" && t.err == nil && t.Type == qe.Type
}

// New is a convenience function for creating a new QueryError
func New(errType ErrorType, msg string, args ...interface{}) error {
	return &QueryError{
		Type:   errType,
		Detail: fmt.Sprintf(msg, args...),
	}
}

// Wrap creates a QueryError of the given type whose cause is err. The detail
// is msg followed by the cause's text.
func Wrap(errType ErrorType, err error, msg string, args ...interface{}) error {
	return &QueryError{
		Type:   errType,
		Detail: fmt.Sprintf("%s: %s", fmt.Sprintf(msg, args...), err),
		err:    err,
	}
}

func ConnectionError(msg string, args ...interface{}) error {
	return New(Connection, msg, args...)
}

func EncodingError(msg string, args ...interface{}) error {
	return New(Encoding, msg, args...)
}

func TemplateError(msg string, args ...interface{}) error {
	return New(Template, msg, args...)
}

func GuardError(msg string, args ...interface{}) error {
	return New(Guard, msg, args...)
}

func ShapeError(msg string, args ...interface{}) error {
	return New(Shape, msg, args...)
}

// Is is a convenience function for testing the internal type of a QueryError
// anywhere in err's chain.
func Is(err error, errType ErrorType) bool {
	var qErr *QueryError
	if !errors.As(err, &qErr) {
		return false
	}
	return qErr.Type == errType
}

// TypeOf returns the ErrorType of the first QueryError in err's chain. Errors
// that carry no QueryError are reported as Execution errors.
func TypeOf(err error) ErrorType {
	var qErr *QueryError
	if errors.As(err, &qErr) {
		return qErr.Type
	}
	return Execution
}

// Redact returns a QueryError with the same type as err but with a generic
// detail, tagged with ref. Nothing from err other than its type survives.
func Redact(err error, ref string) *QueryError {
	errType := TypeOf(err)
	return &QueryError{
		Type:   errType,
		Detail: genericDetail[errType],
		Ref:    ref,
	}
}
