package dbconn

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// ParamType is a quoting hint passed to Quote.
type ParamType int

// Quoting hints.
const (
	ParamString ParamType = iota
	ParamInt
	ParamBool
	ParamNull
	ParamBinary
)

// Querier is the subset of *sql.Conn and *sql.Tx used by Conn. Queries are
// routed through the open transaction when there is one.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	PrepareContext(ctx context.Context, query string) (*sql.Stmt, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Dialect holds the driver-specific behaviour of a DriverKind.
type Dialect interface {
	// Kind returns the driver kind served by the dialect.
	Kind() DriverKind

	// Open returns a database handle for p. It does not dial.
	Open(p Params) (*sql.DB, error)

	// Setup runs session statements on a freshly established connection.
	Setup(ctx context.Context, q Querier, label string) error

	// Quote renders value as a string literal, or returns ErrQuoteUnsupported.
	Quote(value string, hint ParamType) (string, error)

	// LastInsertIDQuery returns the statement reporting the last generated id,
	// with its arguments.
	LastInsertIDQuery(sequence string) (string, []any)

	// ListDatabasesQuery returns a query whose first column lists every
	// database name visible on the server.
	ListDatabasesQuery() (string, error)

	// DropDatabase returns an idempotent drop statement for name.
	DropDatabase(name string) (string, error)
}

// DialectFor returns the dialect for kind.
func DialectFor(kind DriverKind) (Dialect, error) {
	switch kind {
	case Postgres:
		return postgresDialect{}, nil
	case MySQL:
		return mysqlDialect{}, nil
	case SQLite:
		return sqliteDialect{}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnsupportedDriver, kind)
}

// OpenDB opens p through its dialect. It is the default Opener of a Registry.
func OpenDB(p Params) (*sql.DB, error) {
	d, err := DialectFor(p.Driver)
	if err != nil {
		return nil, err
	}
	return d.Open(p)
}

// quoteStandard doubles single quotes, following the SQL standard.
func quoteStandard(value string) string {
	return "'" + strings.ReplaceAll(value, "'", "''") + "'"
}
