package dbconn

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/phrazzld/dbtestkit/internal/csvfix"
)

var errNoTransaction = errors.New("no transaction is open")

// Stats accumulates the timing of the queries run on a Conn.
type Stats struct {
	Elapsed time.Duration
	Queries int
}

// Seconds returns the cumulative elapsed time in seconds.
func (s Stats) Seconds() float64 {
	return s.Elapsed.Seconds()
}

// Stmt is a prepared statement bound to the Conn that prepared it.
type Stmt struct {
	stmt  *sql.Stmt
	query string
}

// Query returns the statement text.
func (s *Stmt) Query() string {
	return s.query
}

// Close releases the statement.
func (s *Stmt) Close() error {
	return s.stmt.Close()
}

// Conn is a lazily established, pinned database session. Every query method
// connects on first use, runs the dialect session setup exactly once per
// physical connection, times the call and appends it to the query log when a
// log path is set.
//
// A Conn serializes its callers.
type Conn struct {
	params  Params
	dialect Dialect
	open    Opener
	label   string
	logger  *slog.Logger
	now     func() time.Time

	mu      sync.Mutex
	db      *sql.DB
	conn    *sql.Conn
	tx      *sql.Tx
	stats   Stats
	logPath string
}

// Params returns the parameters the connection was created with.
func (c *Conn) Params() Params {
	return c.params
}

// Dialect returns the dialect of the connection's driver kind.
func (c *Conn) Dialect() Dialect {
	return c.dialect
}

// Stats returns the cumulative timing of successful operations.
func (c *Conn) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

// SetQueryLogPath sets the file every timed operation is appended to. An
// empty path disables the log.
func (c *Conn) SetQueryLogPath(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.logPath = path
}

// QueryLogPath returns the current query log path.
func (c *Conn) QueryLogPath() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.logPath
}

// Connected reports whether a physical connection is established.
func (c *Conn) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// Exec runs query and returns the number of affected rows.
func (c *Conn) Exec(ctx context.Context, query string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	q, err := c.querier(ctx)
	if err != nil {
		return 0, err
	}

	start := c.now()
	res, err := q.ExecContext(ctx, query)
	if err != nil {
		return 0, newQueryError(query, nil, err)
	}
	// DDL and multi-statement scripts report no count on some drivers.
	n, err := res.RowsAffected()
	if err != nil {
		n = 0
	}
	c.record(query, start)
	return n, nil
}

// FetchAll runs query and returns every row in result order.
func (c *Conn) FetchAll(ctx context.Context, query string) ([]csvfix.Row, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	q, err := c.querier(ctx)
	if err != nil {
		return nil, err
	}

	start := c.now()
	rows, err := c.queryRows(ctx, q, query, 0)
	if err != nil {
		return nil, err
	}
	c.record(query, start)
	return rows, nil
}

// FetchOne runs query and returns its first row. The boolean is false when
// the query returns no rows.
func (c *Conn) FetchOne(ctx context.Context, query string) (csvfix.Row, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	q, err := c.querier(ctx)
	if err != nil {
		return csvfix.Row{}, false, err
	}

	start := c.now()
	rows, err := c.queryRows(ctx, q, query, 1)
	if err != nil {
		return csvfix.Row{}, false, err
	}
	c.record(query, start)
	if len(rows) == 0 {
		return csvfix.Row{}, false, nil
	}
	return rows[0], true, nil
}

// FetchScalar runs query and returns the given 0-indexed column of its first
// row. It returns ErrNoRows when the query yields nothing.
func (c *Conn) FetchScalar(ctx context.Context, query string, column int) (any, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	q, err := c.querier(ctx)
	if err != nil {
		return nil, err
	}

	start := c.now()
	rows, err := c.queryRows(ctx, q, query, 1)
	if err != nil {
		return nil, err
	}
	c.record(query, start)

	if len(rows) == 0 {
		return nil, ErrNoRows
	}
	if column < 0 || column >= rows[0].Len() {
		return nil, newQueryError(query, nil,
			fmt.Errorf("column %d out of range, result has %d columns", column, rows[0].Len()))
	}
	return rows[0].Values[column], nil
}

// Prepare prepares query on the pinned connection. Preparation is not timed.
func (c *Conn) Prepare(ctx context.Context, query string) (*Stmt, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	q, err := c.querier(ctx)
	if err != nil {
		return nil, err
	}
	stmt, err := q.PrepareContext(ctx, query)
	if err != nil {
		return nil, newQueryError(query, nil, err)
	}
	return &Stmt{stmt: stmt, query: query}, nil
}

// ExecStmt executes a prepared statement with values. It is logged as
// "query => [v1, v2]".
func (c *Conn) ExecStmt(ctx context.Context, stmt *Stmt, values ...any) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if values == nil {
		values = []any{}
	}
	if _, err := c.querier(ctx); err != nil {
		return false, err
	}

	s := stmt.stmt
	if c.tx != nil {
		s = c.tx.StmtContext(ctx, s)
	}

	start := c.now()
	if _, err := s.ExecContext(ctx, values...); err != nil {
		return false, newQueryError(stmt.query, values, err)
	}
	c.record(stmt.query+" => "+formatValues(values), start)
	return true, nil
}

// LastInsertID returns the id generated by the last insert, or the current
// value of sequence when one is named.
func (c *Conn) LastInsertID(ctx context.Context, sequence string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	q, err := c.querier(ctx)
	if err != nil {
		return "", err
	}

	query, args := c.dialect.LastInsertIDQuery(sequence)
	var id any
	if err := q.QueryRowContext(ctx, query, args...).Scan(&id); err != nil {
		return "", newQueryError(query, args, err)
	}
	return valueText(normalizeScanned(id)), nil
}

// Begin opens a transaction. Queries issued until Commit or Rollback run
// inside it.
func (c *Conn) Begin(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.connect(ctx); err != nil {
		return err
	}
	if c.tx != nil {
		return newQueryError("BEGIN", nil, errors.New("a transaction is already open"))
	}
	tx, err := c.conn.BeginTx(ctx, nil)
	if err != nil {
		return newQueryError("BEGIN", nil, err)
	}
	c.tx = tx
	return nil
}

// Commit commits the open transaction.
func (c *Conn) Commit() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.finishTx("COMMIT", (*sql.Tx).Commit)
}

// Rollback aborts the open transaction.
func (c *Conn) Rollback() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.finishTx("ROLLBACK", (*sql.Tx).Rollback)
}

// InTx reports whether a transaction is open.
func (c *Conn) InTx() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tx != nil
}

func (c *Conn) finishTx(verb string, fn func(*sql.Tx) error) error {
	if c.tx == nil {
		return newQueryError(verb, nil, errNoTransaction)
	}
	tx := c.tx
	c.tx = nil
	if err := fn(tx); err != nil {
		return newQueryError(verb, nil, err)
	}
	return nil
}

// Quote renders value as a literal using the dialect. When the dialect cannot
// quote for hint, value is returned unchanged.
func (c *Conn) Quote(value string, hint ParamType) string {
	quoted, err := c.dialect.Quote(value, hint)
	if err != nil {
		return value
	}
	return quoted
}

// FormatValue renders v as an SQL literal: nil becomes NULL, booleans become
// 't' or 'f', and anything else is converted to UTF-8 text and quoted.
func (c *Conn) FormatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return "NULL"
	case bool:
		if x {
			return "'t'"
		}
		return "'f'"
	}
	return c.Quote(toUTF8(valueText(v)), ParamString)
}

// Reconnect drops the physical connection, discarding any open transaction,
// and establishes a new one.
func (c *Conn) Reconnect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.disconnect()
	return c.connect(ctx)
}

// Close releases the physical connection. The Conn reconnects on next use.
func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.disconnect()
}

func (c *Conn) querier(ctx context.Context) (Querier, error) {
	if err := c.connect(ctx); err != nil {
		return nil, err
	}
	if c.tx != nil {
		return c.tx, nil
	}
	return c.conn, nil
}

func (c *Conn) connect(ctx context.Context) error {
	if c.conn != nil {
		return nil
	}

	target := c.params.Key()
	db, err := c.open(c.params)
	if err != nil {
		return &ConnectError{Target: target, Err: err}
	}

	conn, err := db.Conn(ctx)
	if err != nil {
		_ = db.Close()
		return &ConnectError{Target: target, Err: err}
	}

	if err := c.dialect.Setup(ctx, conn, c.label); err != nil {
		_ = conn.Close()
		_ = db.Close()
		return &ConnectError{Target: target, Err: fmt.Errorf("session setup: %w", err)}
	}

	c.db = db
	c.conn = conn
	c.logger.Debug("database connection established",
		slog.String("target", target),
		slog.String("driver", string(c.params.Driver)))
	return nil
}

func (c *Conn) disconnect() error {
	var errs []error
	if c.tx != nil {
		if err := c.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			errs = append(errs, err)
		}
		c.tx = nil
	}
	if c.conn != nil {
		if err := c.conn.Close(); err != nil && !errors.Is(err, sql.ErrConnDone) {
			errs = append(errs, err)
		}
		c.conn = nil
	}
	if c.db != nil {
		if err := c.db.Close(); err != nil {
			errs = append(errs, err)
		}
		c.db = nil
	}
	if err := errors.Join(errs...); err != nil {
		c.logger.Debug("error while closing database connection",
			slog.String("target", c.params.Key()),
			slog.String("error", err.Error()))
		return err
	}
	return nil
}

// queryRows runs query and scans up to limit rows, or all rows when limit is
// 0.
func (c *Conn) queryRows(ctx context.Context, q Querier, query string, limit int) ([]csvfix.Row, error) {
	rs, err := q.QueryContext(ctx, query)
	if err != nil {
		return nil, newQueryError(query, nil, err)
	}
	defer func() {
		_ = rs.Close()
	}()

	columns, err := rs.Columns()
	if err != nil {
		return nil, newQueryError(query, nil, err)
	}

	var out []csvfix.Row
	for rs.Next() {
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rs.Scan(ptrs...); err != nil {
			return nil, newQueryError(query, nil, err)
		}
		for i, v := range values {
			values[i] = normalizeScanned(v)
		}
		out = append(out, csvfix.Row{Columns: columns, Values: values})
		if limit > 0 && len(out) == limit {
			break
		}
	}
	if err := rs.Err(); err != nil {
		return nil, newQueryError(query, nil, err)
	}
	return out, nil
}

// record adds one timed operation to the stats and the query log.
func (c *Conn) record(text string, start time.Time) {
	elapsed := c.now().Sub(start)
	c.stats.Elapsed += elapsed
	c.stats.Queries++

	c.logger.Debug("SQL",
		slog.Int("seq", c.stats.Queries),
		slog.String("query", text),
		slog.Duration("elapsed", elapsed))

	if c.logPath == "" {
		return
	}
	line := FormatQueryLogLine(c.stats.Queries, start, elapsed, text)
	if err := appendQueryLog(c.logPath, line); err != nil {
		c.logger.Warn("failed to append to query log", slog.String("error", err.Error()))
	}
}
