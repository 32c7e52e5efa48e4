package db

import (
	"context"
	"database/sql/driver"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"

	berrors "github.com/querysafe/querysafe/errors"
	"github.com/querysafe/querysafe/literal"
	"github.com/querysafe/querysafe/test"
)

func TestMySQLConfig(t *testing.T) {
	m, err := mysqlConfig(Config{
		DSN:         "app:secret@tcp(db.internal:3306)/app?multiStatements=true&interpolateParams=true",
		Database:    "reporting",
		ReadTimeout: 3 * time.Second,
		DialTimeout: time.Second,
	})
	test.AssertNotError(t, err, "building mysql config")
	test.AssertEquals(t, m.DBName, "reporting")
	test.AssertEquals(t, m.Addr, "db.internal:3306")
	test.AssertEquals(t, m.ReadTimeout, 3*time.Second)
	test.AssertEquals(t, m.Timeout, time.Second)
	test.Assert(t, !m.MultiStatements, "multi-statements must be off")
	test.Assert(t, !m.InterpolateParams, "client-side interpolation must be off")
	test.AssertEquals(t, m.Params["charset"], "utf8mb4")

	m, err = mysqlConfig(Config{DSN: "app@tcp(db.internal:3306)/app?charset=latin1"})
	test.AssertNotError(t, err, "building mysql config")
	test.AssertEquals(t, m.DBName, "app")
	test.AssertEquals(t, m.Params["charset"], "latin1")
}

func TestOpenBadDSN(t *testing.T) {
	_, err := Open(context.Background(), Config{DSN: "not a dsn"})
	test.AssertError(t, err, "Open should fail on a malformed DSN")
	test.Assert(t, berrors.Is(err, berrors.Connection), "expected a Connection error")
}

func TestModeFromSQLMode(t *testing.T) {
	testCases := []struct {
		sqlMode  string
		expected literal.Mode
	}{
		{"", literal.Backslash},
		{"STRICT_TRANS_TABLES,NO_ENGINE_SUBSTITUTION", literal.Backslash},
		{"NO_BACKSLASH_ESCAPES", literal.QuoteDoubling},
		{"STRICT_TRANS_TABLES, no_backslash_escapes", literal.QuoteDoubling},
		{"NO_BACKSLASH_ESCAPES_NOT_REALLY", literal.Backslash},
	}
	for _, tc := range testCases {
		t.Run(tc.sqlMode, func(t *testing.T) {
			test.AssertEquals(t, ModeFromSQLMode(tc.sqlMode), tc.expected)
		})
	}
}

func TestNewConnProbesSession(t *testing.T) {
	testCases := []struct {
		name     string
		sqlMode  string
		expected literal.Mode
	}{
		{"default mode", "STRICT_TRANS_TABLES", literal.Backslash},
		{"no backslash escapes", "STRICT_TRANS_TABLES,NO_BACKSLASH_ESCAPES", literal.QuoteDoubling},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			dbHandle, mock := test.NewMockDB(t)
			test.ExpectProbe(mock, tc.sqlMode, "utf8mb4")
			mock.ExpectClose()

			conn, err := NewConn(context.Background(), dbHandle)
			test.AssertNotError(t, err, "NewConn failed")
			test.AssertEquals(t, conn.Escaping(), tc.expected)

			test.AssertNotError(t, conn.Close(), "closing conn")
			test.AssertNotError(t, conn.Close(), "second close should be a no-op")
		})
	}
}

func TestNewConnRejectsUnsafeCharset(t *testing.T) {
	dbHandle, mock := test.NewMockDB(t)
	test.ExpectProbe(mock, "", "gbk")
	mock.ExpectClose()

	_, err := NewConn(context.Background(), dbHandle)
	test.AssertError(t, err, "gbk sessions must be refused")
	test.Assert(t, berrors.Is(err, berrors.Connection), "expected a Connection error")
	test.AssertContains(t, err.Error(), "gbk")
}

func TestNewConnProbeFailure(t *testing.T) {
	dbHandle, mock := test.NewMockDB(t)
	mock.ExpectQuery(probeQuery).WillReturnError(errors.New("server has gone away"))
	mock.ExpectClose()

	_, err := NewConn(context.Background(), dbHandle)
	test.AssertError(t, err, "probe failure should fail NewConn")
	test.Assert(t, berrors.Is(err, berrors.Connection), "expected a Connection error")
	test.AssertErrorWraps(t, err, &ErrDatabaseOp{})
}

func newTestConn(t *testing.T) (*Conn, sqlmock.Sqlmock) {
	t.Helper()
	dbHandle, mock := test.NewProbingMockDB(t, "")
	conn, err := NewConn(context.Background(), dbHandle)
	test.AssertNotError(t, err, "NewConn failed")
	return conn, mock
}

func TestConnExec(t *testing.T) {
	conn, mock := newTestConn(t)
	mock.ExpectExec("INSERT INTO users (name) VALUES ('bob')").
		WillReturnResult(sqlmock.NewResult(7, 1))
	mock.ExpectExec("UPDATE users SET name='x' WHERE id=99").
		WillReturnError(&mysql.MySQLError{Number: 1146, Message: "Table 'app.users' doesn't exist"})

	res, err := conn.ExecContext(context.Background(), "INSERT INTO users (name) VALUES ('bob')")
	test.AssertNotError(t, err, "exec failed")
	id, err := res.LastInsertId()
	test.AssertNotError(t, err, "LastInsertId failed")
	test.AssertEquals(t, id, int64(7))

	_, err = conn.ExecContext(context.Background(), "UPDATE users SET name='x' WHERE id=99")
	test.AssertError(t, err, "exec should have failed")
	var dbErr ErrDatabaseOp
	test.Assert(t, errors.As(err, &dbErr), "expected an ErrDatabaseOp")
	test.AssertEquals(t, dbErr.Op, "exec")
	test.AssertEquals(t, dbErr.Table, "users")
	number, ok := MySQLErrorNumber(err)
	test.Assert(t, ok, "expected a MySQL error number")
	test.AssertEquals(t, number, uint16(1146))
}

func TestConnQuery(t *testing.T) {
	conn, mock := newTestConn(t)
	mock.ExpectQuery("SELECT id, name FROM users").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).AddRow(1, "bob").AddRow(2, "alice"))
	mock.ExpectQuery("SELECT id FROM gone").WillReturnError(driver.ErrBadConn)

	rows, err := conn.QueryContext(context.Background(), "SELECT id, name FROM users")
	test.AssertNotError(t, err, "query failed")
	n := 0
	for rows.Next() {
		n++
	}
	test.AssertNotError(t, rows.Err(), "iterating rows")
	test.AssertNotError(t, rows.Close(), "closing rows")
	test.AssertEquals(t, n, 2)

	_, err = conn.QueryContext(context.Background(), "SELECT id FROM gone")
	test.AssertError(t, err, "query should have failed")
	test.Assert(t, IsConnectionLost(err), "bad conn should be reported as lost")
}
