package db

import (
	"context"
	"database/sql"

	"github.com/querysafe/querysafe/literal"
)

// These interfaces exist to aid in mocking database operations for unit tests.
//
// Statements handed to them are complete: values have already been encoded
// into the text, so none of them take arguments.

// A Execer is anything that provides an `ExecContext` function
type Execer interface {
	ExecContext(ctx context.Context, query string) (sql.Result, error)
}

// Queryer offers the QueryContext method. The caller must close the returned
// rows.
type Queryer interface {
	QueryContext(ctx context.Context, query string) (*sql.Rows, error)
}

// Store is a single owned connection to a MySQL-compatible database, together
// with the string-literal escaping mode its session uses. Statements must be
// built with that mode. Close releases the connection; it is safe to call more
// than once.
type Store interface {
	Execer
	Queryer
	Escaping() literal.Mode
	Close() error
}
