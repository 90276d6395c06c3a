package testdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strings"
	"testing"

	"github.com/phrazzld/dbtestkit/internal/csvfix"
	"github.com/phrazzld/dbtestkit/internal/dbconn"
	"github.com/stretchr/testify/assert"
)

// Database is a built test database and its managed connection.
type Database struct {
	Name   string
	Params dbconn.Params
	// Pruned lists the generations dropped after the first build.
	Pruned []string
	// PruneErr is the pruning error, if any. Pruning failures do not fail
	// the build.
	PruneErr error

	conn *dbconn.Conn
}

// Conn returns the managed connection.
func (d *Database) Conn() *dbconn.Conn {
	return d.conn
}

// AssertNoRows fails t if query returns any row, including a row whose
// columns are all NULL.
func (d *Database) AssertNoRows(t testing.TB, query string) bool {
	t.Helper()
	row, found, err := d.conn.FetchOne(context.Background(), query)
	if !assert.NoError(t, err, "query failed: %s", query) {
		return false
	}
	return assert.False(t, found, "expected no rows from %s, got %v", query, row.Map())
}

// AssertResultMatchesCSV fails t unless the CSV encoding of the result of
// query equals the content of path. Surrounding whitespace of the file is
// ignored.
func (d *Database) AssertResultMatchesCSV(t testing.TB, query, path string, opts ...csvfix.Option) bool {
	t.Helper()
	want, err := os.ReadFile(path)
	if !assert.NoError(t, err, "cannot read expected CSV") {
		return false
	}
	got, err := d.QueryCSV(context.Background(), query, opts...)
	if !assert.NoError(t, err, "query failed: %s", query) {
		return false
	}
	return assert.Equal(t, strings.TrimSpace(string(want)), strings.TrimSuffix(got, "\n"),
		"result of %s does not match %s", query, path)
}

// AssertConstraintViolation fails t unless stmt violates a constraint of
// the given kind. stmt runs in a transaction that is always rolled back.
func (d *Database) AssertConstraintViolation(t testing.TB, stmt string, kind dbconn.Constraint) bool {
	t.Helper()
	ctx := context.Background()
	if err := d.conn.Begin(ctx); err != nil {
		return assert.NoError(t, err, "cannot begin transaction")
	}
	_, err := d.conn.Exec(ctx, stmt)
	if rbErr := d.conn.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
		t.Logf("Warning: failed to rollback transaction: %v", rbErr)
	}

	if !assert.Error(t, err, "expected %s violation from %s", kind, stmt) {
		return false
	}
	got, _ := dbconn.ConstraintViolation(err)
	return assert.Equal(t, kind, got, "expected %s violation from %s, got %s: %v", kind, stmt, got, err)
}

// QueryCSV runs query and encodes its result as CSV.
func (d *Database) QueryCSV(ctx context.Context, query string, opts ...csvfix.Option) (string, error) {
	rows, err := d.conn.FetchAll(ctx, query)
	if err != nil {
		return "", err
	}
	return csvfix.Encode(rows, opts...), nil
}

// ExportCSV writes the CSV encoding of the result of query to path. It is
// the usual way to produce the expected file of AssertResultMatchesCSV.
func (d *Database) ExportCSV(ctx context.Context, query, path string, opts ...csvfix.Option) error {
	rows, err := d.conn.FetchAll(ctx, query)
	if err != nil {
		return err
	}
	return csvfix.WriteFile(path, rows, opts...)
}

// LoadSQLFile executes the SQL statements in path.
func (d *Database) LoadSQLFile(ctx context.Context, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read SQL file: %w", err)
	}
	_, err = d.conn.Exec(ctx, string(data))
	return err
}

// WithTx runs fn inside a transaction on the managed connection and rolls it
// back afterwards, so fn can modify data without affecting other tests.
func (d *Database) WithTx(t testing.TB, fn func(conn *dbconn.Conn)) {
	t.Helper()
	if err := d.conn.Begin(context.Background()); err != nil {
		t.Fatalf("Failed to begin transaction: %v", err)
		return
	}

	defer func() {
		r := recover()
		if d.conn.InTx() {
			if err := d.conn.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
				t.Logf("Warning: failed to rollback transaction: %v", err)
			}
		}
		if r != nil {
			// ALLOW-PANIC
			panic(r)
		}
	}()

	fn(d.conn)
}
