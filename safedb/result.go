package safedb

import (
	"database/sql"

	"github.com/querysafe/querysafe/guard"
)

// Row maps column names to values. Text and binary columns are returned as
// strings, SQL NULL as nil, and other types as the driver reports them.
type Row map[string]any

// Result is the outcome of one statement. It belongs to the caller.
type Result struct {
	Kind guard.Kind
	// Rows and Columns are only set for retrieval statements. Columns keeps
	// the order the store returned them in.
	Rows    []Row
	Columns []string
	// RowCount is the number of rows returned by a retrieval statement, or
	// the number of rows affected by any other statement.
	RowCount int64
	// LastInsertID is only set for insertions. For a statement inserting
	// several rows it is the single id the store reports for the statement.
	LastInsertID int64
}

// readRows drains rows into Row maps. When two columns share a name the
// later one wins.
func readRows(rows *sql.Rows) ([]string, []Row, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, nil, err
	}

	var out []Row
	for rows.Next() {
		raw := make([]any, len(cols))
		dest := make([]any, len(cols))
		for i := range raw {
			dest[i] = &raw[i]
		}
		err := rows.Scan(dest...)
		if err != nil {
			return nil, nil, err
		}
		row := make(Row, len(cols))
		for i, col := range cols {
			row[col] = columnValue(raw[i])
		}
		out = append(out, row)
	}
	err = rows.Err()
	if err != nil {
		return nil, nil, err
	}
	return cols, out, nil
}

func columnValue(v any) any {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}
