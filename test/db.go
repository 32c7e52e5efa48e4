package test

import (
	"database/sql"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
)

// NewMockDB returns a *sql.DB backed by sqlmock. Statements are matched
// exactly, so expectations read like the statements under test. When the test
// finishes, the mock is checked for unmet expectations and closed.
func NewMockDB(t testing.TB) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	if err != nil {
		t.Fatalf("creating sqlmock: %s", err)
	}
	t.Cleanup(func() {
		err := mock.ExpectationsWereMet()
		if err != nil {
			t.Errorf("unmet sqlmock expectations: %s", err)
		}
		_ = db.Close()
	})
	return db, mock
}

// NewProbingMockDB is NewMockDB with the session probe already expected,
// answering with the given sql_mode and a utf8mb4 client character set.
func NewProbingMockDB(t testing.TB, sqlMode string) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock := NewMockDB(t)
	ExpectProbe(mock, sqlMode, "utf8mb4")
	return db, mock
}

// ExpectProbe adds an expectation for the session probe every store
// connection runs before it is handed out.
func ExpectProbe(mock sqlmock.Sqlmock, sqlMode, charset string) {
	mock.ExpectQuery("SELECT @@SESSION.sql_mode, @@SESSION.character_set_client").
		WillReturnRows(sqlmock.NewRows([]string{"@@SESSION.sql_mode", "@@SESSION.character_set_client"}).
			AddRow(sqlMode, charset))
}
