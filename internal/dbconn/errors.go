package dbconn

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/phrazzld/dbtestkit/internal/redact"
)

var (
	// ErrConnect is returned when a physical connection cannot be established
	// or its session setup fails.
	ErrConnect = errors.New("cannot connect to database")

	// ErrQueryExecution is returned when a query, statement or transaction
	// call fails on an established connection.
	ErrQueryExecution = errors.New("query execution failed")

	// ErrUnsupportedDriver is returned when an operation has no implementation
	// for the requested driver kind.
	ErrUnsupportedDriver = errors.New("unsupported driver")

	// ErrQuoteUnsupported is reported by a dialect that cannot quote a value
	// for the given type hint. Conn.Quote then returns the raw value.
	ErrQuoteUnsupported = errors.New("quoting not supported")

	// ErrNoRows is returned by FetchScalar when the query returns nothing.
	ErrNoRows = errors.New("query returned no rows")
)

// ConnectError describes a failed connection attempt.
type ConnectError struct {
	Target string // Params.Key of the connection
	Err    error
}

// Error implements the error interface. Credentials echoed back by a driver
// are redacted.
func (e *ConnectError) Error() string {
	return fmt.Sprintf("%v to %s: %s", ErrConnect, e.Target, redact.Credentials(errString(e.Err)))
}

// Unwrap returns the driver error.
func (e *ConnectError) Unwrap() error {
	return e.Err
}

// Is makes errors.Is(err, ErrConnect) hold for every ConnectError.
func (e *ConnectError) Is(target error) bool {
	return target == ErrConnect
}

// QueryError carries the failing query text and, for prepared statements, the
// bound values.
type QueryError struct {
	Query  string
	Values []any
	Err    error
}

// Error implements the error interface.
func (e *QueryError) Error() string {
	var sb strings.Builder
	sb.WriteString(ErrQueryExecution.Error())
	sb.WriteString(": ")
	sb.WriteString(errString(e.Err))
	if detail := pgDetail(e.Err); detail != "" {
		sb.WriteString(" (")
		sb.WriteString(detail)
		sb.WriteString(")")
	}
	sb.WriteString(". Query was: ")
	sb.WriteString(e.Query)
	if e.Values != nil {
		sb.WriteString(". Values were: ")
		sb.WriteString(formatValues(e.Values))
	}
	return sb.String()
}

// Unwrap returns the driver error.
func (e *QueryError) Unwrap() error {
	return e.Err
}

// Is makes errors.Is(err, ErrQueryExecution) hold for every QueryError.
func (e *QueryError) Is(target error) bool {
	return target == ErrQueryExecution
}

// SQLState returns the SQLSTATE code of a PostgreSQL error, or "".
func (e *QueryError) SQLState() string {
	var pgErr *pgconn.PgError
	if errors.As(e.Err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

func newQueryError(query string, values []any, err error) error {
	return &QueryError{Query: query, Values: values, Err: err}
}

func pgDetail(err error) string {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return ""
	}
	var parts []string
	if pgErr.Detail != "" {
		parts = append(parts, pgErr.Detail)
	}
	if pgErr.Hint != "" {
		parts = append(parts, "hint: "+pgErr.Hint)
	}
	return strings.Join(parts, "; ")
}

func errString(err error) string {
	if err == nil {
		return "<nil>"
	}
	return err.Error()
}
