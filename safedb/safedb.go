// Package safedb runs templated statements against a single MySQL
// connection. Replacement values are encoded and substituted into the
// template, the result is checked against a command allow-list, and only then
// is it sent to the database. Errors handed back to callers are redacted: the
// detail goes to the audit log under a reference that the returned error
// carries.
//
// A DB is meant to be used by one goroutine at a time.
package safedb

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jmhodges/clock"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/querysafe/querysafe/blog"
	"github.com/querysafe/querysafe/db"
	berrors "github.com/querysafe/querysafe/errors"
	"github.com/querysafe/querysafe/guard"
	"github.com/querysafe/querysafe/literal"
	"github.com/querysafe/querysafe/metrics"
	"github.com/querysafe/querysafe/sqltmpl"
)

// Config configures a DB. Only Open uses the DB section; New is handed a
// store that is already connected.
type Config struct {
	DB    db.Config
	Guard guard.Config
}

type options struct {
	logger *slog.Logger
	stats  prometheus.Registerer
	clk    clock.Clock
}

// Option customizes a DB.
type Option func(*options)

// WithLogger sets the logger used when the caller's context does not carry
// one.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithRegisterer sets where the DB registers its metrics.
func WithRegisterer(stats prometheus.Registerer) Option {
	return func(o *options) {
		o.stats = stats
	}
}

// WithClock sets the clock used to time statements.
func WithClock(clk clock.Clock) Option {
	return func(o *options) {
		o.clk = clk
	}
}

func buildOptions(opts []Option) options {
	o := options{
		logger: blog.Discard(),
		stats:  metrics.NoopRegisterer,
		clk:    clock.New(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// DB is a templated-statement runner over one owned store connection.
type DB struct {
	store   db.Store
	mode    literal.Mode
	engine  *sqltmpl.Engine
	guard   *guard.Guard
	logger  *slog.Logger
	clk     clock.Clock
	metrics *queryMetrics

	closed bool
	// lost is set once the store reports that its connection is gone.
	lost bool
}

// Open connects to the database described by cfg.DB. It holds exactly one
// connection until Close. Errors are redacted Connection errors.
func Open(ctx context.Context, cfg Config, opts ...Option) (*DB, error) {
	o := buildOptions(opts)
	ctx = blog.WithDefault(ctx, o.logger)

	store, err := db.Open(ctx, cfg.DB)
	if err != nil {
		return nil, report(ctx, "open", "", err)
	}
	d := newDB(store, cfg, o)
	blog.Info(ctx, "Opened database connection", blog.Op("open"), slog.String("escaping", d.mode.String()))
	return d, nil
}

// New returns a DB over store, which it takes ownership of.
func New(store db.Store, cfg Config, opts ...Option) *DB {
	return newDB(store, cfg, buildOptions(opts))
}

func newDB(store db.Store, cfg Config, o options) *DB {
	mode := store.Escaping()
	return &DB{
		store:   store,
		mode:    mode,
		engine:  sqltmpl.New(literal.NewEncoder(mode)),
		guard:   guard.New(cfg.Guard, mode),
		logger:  o.logger,
		clk:     o.clk,
		metrics: newQueryMetrics(o.stats),
	}
}

// Query substitutes vals into tmpl, checks the resulting statement and runs
// it exactly once. vals may hold nil, bool, any integer type, float32,
// float64, string, json.Number or literal.Value.
func (d *DB) Query(ctx context.Context, tmpl string, vals ...any) (*Result, error) {
	ctx = blog.WithDefault(ctx, d.logger)
	res, err := d.query(ctx, tmpl, vals)
	if err != nil {
		return nil, report(ctx, "query", tmpl, err)
	}
	return res, nil
}

// QuerySingleRow is Query for retrieval statements that must return exactly
// one row. Any other row count, or a statement that is not a retrieval, is a
// Shape error. A non-retrieval statement is refused before it runs.
func (d *DB) QuerySingleRow(ctx context.Context, tmpl string, vals ...any) (Row, error) {
	ctx = blog.WithDefault(ctx, d.logger)
	row, err := d.singleRow(ctx, tmpl, vals)
	if err != nil {
		return nil, report(ctx, "query single row", tmpl, err)
	}
	return row, nil
}

// QueryColumn is QuerySingleRow followed by a lookup of column in the row. A
// column missing from the result is a Shape error.
func (d *DB) QueryColumn(ctx context.Context, column, tmpl string, vals ...any) (any, error) {
	ctx = blog.WithDefault(ctx, d.logger)
	row, err := d.singleRow(ctx, tmpl, vals)
	if err != nil {
		return nil, report(ctx, "query column", tmpl, err)
	}
	v, ok := row[column]
	if !ok {
		return nil, report(ctx, "query column", tmpl, berrors.ShapeError("column %q is not in the result", column))
	}
	return v, nil
}

// UnescapeForDisplay undoes the connection's string escaping on encoded,
// which may or may not still carry its surrounding quotes. The result is
// meant for display and must never be used to build a statement.
func (d *DB) UnescapeForDisplay(encoded string) (string, error) {
	return literal.Unescape(d.mode, encoded)
}

// Escaping returns the string-literal escaping mode of the connection.
func (d *DB) Escaping() literal.Mode {
	return d.mode
}

// Close releases the connection. Only the first call does anything; later
// calls return nil.
func (d *DB) Close() error {
	if d.closed {
		return nil
	}
	d.closed = true
	ctx := blog.NewContext(context.Background(), d.logger)
	err := d.store.Close()
	if err != nil {
		return report(ctx, "close", "", berrors.Wrap(berrors.Connection, err, "closing store"))
	}
	blog.AuditInfo(ctx, "Closed database connection", blog.Op("close"))
	return nil
}

func (d *DB) query(ctx context.Context, tmpl string, vals []any) (*Result, error) {
	kind, stmt, err := d.prepare(tmpl, vals)
	if err != nil {
		return nil, err
	}
	return d.run(ctx, kind, stmt)
}

func (d *DB) singleRow(ctx context.Context, tmpl string, vals []any) (Row, error) {
	kind, stmt, err := d.prepare(tmpl, vals)
	if err != nil {
		return nil, err
	}
	if !kind.Retrieval() {
		return nil, berrors.ShapeError("%s statement returns no rows", kind)
	}
	res, err := d.run(ctx, kind, stmt)
	if err != nil {
		return nil, err
	}
	if len(res.Rows) != 1 {
		return nil, berrors.ShapeError("expected exactly one row, found %d", len(res.Rows))
	}
	return res.Rows[0], nil
}

// prepare builds and classifies the statement. Nothing reaches the store.
func (d *DB) prepare(tmpl string, vals []any) (guard.Kind, string, error) {
	err := d.usable()
	if err != nil {
		return 0, "", err
	}
	kind, stmt, err := d.build(tmpl, vals)
	if err != nil {
		d.metrics.rejected.WithLabelValues(berrors.TypeOf(err).String()).Inc()
		return 0, "", err
	}
	return kind, stmt, nil
}

func (d *DB) build(tmpl string, vals []any) (guard.Kind, string, error) {
	values, err := literal.Values(vals...)
	if err != nil {
		return 0, "", err
	}
	stmt, err := d.engine.Substitute(tmpl, values)
	if err != nil {
		return 0, "", err
	}
	kind, err := d.guard.Classify(stmt)
	if err != nil {
		return 0, "", err
	}
	return kind, stmt, nil
}

// run sends stmt to the store once and shapes the outcome.
func (d *DB) run(ctx context.Context, kind guard.Kind, stmt string) (*Result, error) {
	start := d.clk.Now()
	res, err := d.execute(ctx, kind, stmt)
	took := d.clk.Now().Sub(start)
	if err != nil {
		errType := berrors.Execution
		if db.IsConnectionLost(err) {
			d.lost = true
			errType = berrors.Connection
			blog.Warn(ctx, "Database connection lost, refusing further statements", slog.String("kind", kind.String()))
		}
		d.metrics.observe(kind.String(), errType.String(), took)
		return nil, berrors.Wrap(errType, err, "running %s statement", kind)
	}
	d.metrics.observe(kind.String(), "success", took)
	blog.Debug(ctx, "Statement executed",
		slog.String("kind", kind.String()),
		slog.Int64("rows", res.RowCount),
		slog.Duration("took", took))
	return res, nil
}

func (d *DB) execute(ctx context.Context, kind guard.Kind, stmt string) (*Result, error) {
	if kind.Retrieval() {
		rows, err := d.store.QueryContext(ctx, stmt)
		if err != nil {
			return nil, err
		}
		defer rows.Close()
		cols, out, err := readRows(rows)
		if err != nil {
			return nil, err
		}
		return &Result{
			Kind:     kind,
			Rows:     out,
			Columns:  cols,
			RowCount: int64(len(out)),
		}, nil
	}

	sqlRes, err := d.store.ExecContext(ctx, stmt)
	if err != nil {
		return nil, err
	}
	affected, err := sqlRes.RowsAffected()
	if err != nil {
		return nil, err
	}
	res := &Result{
		Kind:     kind,
		RowCount: affected,
	}
	if kind == guard.Insert {
		res.LastInsertID, err = sqlRes.LastInsertId()
		if err != nil {
			return nil, err
		}
	}
	return res, nil
}

// usable refuses work on a closed DB or one whose connection was lost.
func (d *DB) usable() error {
	if d.closed {
		return berrors.ConnectionError("database handle is closed")
	}
	if d.lost {
		return berrors.ConnectionError("connection was lost by an earlier statement")
	}
	return nil
}

// report writes err to the audit log under a fresh reference and returns the
// redacted error for the caller.
func report(ctx context.Context, op, tmpl string, err error) error {
	ref := uuid.NewString()
	errType := berrors.TypeOf(err)
	attrs := []slog.Attr{
		blog.Category("database"),
		blog.ErrorType(errType),
		blog.Ref(ref),
		blog.Op(op),
	}
	if tmpl != "" {
		attrs = append(attrs, blog.Template(tmpl))
	}
	if n, ok := db.MySQLErrorNumber(err); ok {
		attrs = append(attrs, blog.MySQLErrno(n))
	}
	blog.AuditError(ctx, "Database operation failed", err, attrs...)
	return berrors.Redact(err, ref)
}
