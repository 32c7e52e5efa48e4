package db

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"

	berrors "github.com/querysafe/querysafe/errors"
	"github.com/querysafe/querysafe/literal"
)

// probeQuery reads the two session settings that decide how string literals
// must be escaped.
const probeQuery = "SELECT @@SESSION.sql_mode, @@SESSION.character_set_client"

// safeCharsets are the client character sets in which no multibyte sequence
// can end in a byte that looks like a backslash or a quote.
var safeCharsets = map[string]bool{
	"utf8mb4": true,
	"utf8mb3": true,
	"utf8":    true,
	"latin1":  true,
	"ascii":   true,
	"binary":  true,
}

// Config describes how to reach the database.
type Config struct {
	// DSN is a go-sql-driver/mysql data source name, e.g.
	// "user:pass@tcp(localhost:3306)/app".
	DSN string
	// Database, if set, replaces the schema named in the DSN.
	Database string

	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// mysqlConfig parses the DSN and applies the settings every connection needs.
// Multi-statement support and client-side interpolation stay off whatever the
// DSN says, and the connection charset defaults to utf8mb4.
func mysqlConfig(conf Config) (*mysql.Config, error) {
	m, err := mysql.ParseDSN(conf.DSN)
	if err != nil {
		return nil, err
	}
	if conf.Database != "" {
		m.DBName = conf.Database
	}
	if conf.DialTimeout != 0 {
		m.Timeout = conf.DialTimeout
	}
	if conf.ReadTimeout != 0 {
		m.ReadTimeout = conf.ReadTimeout
	}
	if conf.WriteTimeout != 0 {
		m.WriteTimeout = conf.WriteTimeout
	}
	m.MultiStatements = false
	m.InterpolateParams = false
	if m.Params == nil {
		m.Params = map[string]string{}
	}
	if _, ok := m.Params["charset"]; !ok {
		m.Params["charset"] = "utf8mb4"
	}
	return m, nil
}

// Conn is a Store backed by one pinned MySQL connection.
type Conn struct {
	db     *sql.DB
	conn   *sql.Conn
	mode   literal.Mode
	closed bool
}

// Open connects to the database described by conf and returns a Conn holding
// exactly one connection. Errors are Connection errors.
func Open(ctx context.Context, conf Config) (*Conn, error) {
	m, err := mysqlConfig(conf)
	if err != nil {
		return nil, berrors.Wrap(berrors.Connection, err, "parsing DSN")
	}
	connector, err := mysql.NewConnector(m)
	if err != nil {
		return nil, berrors.Wrap(berrors.Connection, err, "creating connector")
	}
	return NewConn(ctx, sql.OpenDB(connector))
}

// NewConn takes ownership of dbHandle, caps its pool at one connection,
// acquires that connection and probes its session. On error dbHandle has been
// closed.
func NewConn(ctx context.Context, dbHandle *sql.DB) (*Conn, error) {
	dbHandle.SetMaxOpenConns(1)
	dbHandle.SetMaxIdleConns(1)

	conn, err := dbHandle.Conn(ctx)
	if err != nil {
		_ = dbHandle.Close()
		return nil, berrors.Wrap(berrors.Connection, ErrDatabaseOp{Op: "connect", Err: err}, "acquiring connection")
	}

	mode, err := probe(ctx, conn)
	if err != nil {
		_ = conn.Close()
		_ = dbHandle.Close()
		return nil, err
	}

	return &Conn{
		db:   dbHandle,
		conn: conn,
		mode: mode,
	}, nil
}

// probe reads the session settings and derives the escaping mode from them.
func probe(ctx context.Context, conn *sql.Conn) (literal.Mode, error) {
	var sqlMode, charset string
	err := conn.QueryRowContext(ctx, probeQuery).Scan(&sqlMode, &charset)
	if err != nil {
		return 0, berrors.Wrap(berrors.Connection, ErrDatabaseOp{Op: "probe session", Err: err}, "probing session")
	}
	if !safeCharsets[strings.ToLower(charset)] {
		return 0, berrors.ConnectionError("client character set %q is not supported", charset)
	}
	return ModeFromSQLMode(sqlMode), nil
}

// ModeFromSQLMode returns the escaping mode implied by a sql_mode value.
func ModeFromSQLMode(sqlMode string) literal.Mode {
	for _, m := range strings.Split(sqlMode, ",") {
		if strings.EqualFold(strings.TrimSpace(m), "NO_BACKSLASH_ESCAPES") {
			return literal.QuoteDoubling
		}
	}
	return literal.Backslash
}

// Escaping returns the escaping mode of the connection's session.
func (c *Conn) Escaping() literal.Mode {
	return c.mode
}

func (c *Conn) ExecContext(ctx context.Context, query string) (sql.Result, error) {
	res, err := c.conn.ExecContext(ctx, query)
	if err != nil {
		return nil, errForQuery(query, "exec", err)
	}
	return res, nil
}

func (c *Conn) QueryContext(ctx context.Context, query string) (*sql.Rows, error) {
	rows, err := c.conn.QueryContext(ctx, query)
	if err != nil {
		return nil, errForQuery(query, "select", err)
	}
	return rows, nil
}

// Close returns the pinned connection and closes the pool behind it. Only the
// first call does anything.
func (c *Conn) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	connErr := c.conn.Close()
	dbErr := c.db.Close()
	if connErr != nil && !IsConnectionLost(connErr) {
		return ErrDatabaseOp{Op: "close connection", Err: connErr}
	}
	if dbErr != nil {
		return ErrDatabaseOp{Op: "close database", Err: dbErr}
	}
	return nil
}
