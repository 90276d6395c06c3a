package dbconn

import (
	"context"
	"database/sql"
	"fmt"
	"maps"
	"net"
	"net/url"
	"slices"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
)

const (
	// pgApplicationNameMinVersion is the first server_version_num accepting
	// SET application_name.
	pgApplicationNameMinVersion = 90000

	pgConnectTimeoutSeconds = 5
)

type postgresDialect struct{}

func (postgresDialect) Kind() DriverKind { return Postgres }

func (postgresDialect) Open(p Params) (*sql.DB, error) {
	cfg, err := pgx.ParseConfig(postgresURL(p))
	if err != nil {
		return nil, err
	}
	if p.Password != "" {
		cfg.Password = p.Password
	}
	return stdlib.OpenDB(*cfg), nil
}

// postgresURL builds a connection URL without the password, which is applied
// to the parsed config instead.
func postgresURL(p Params) string {
	u := url.URL{
		Scheme: "postgres",
		Host:   p.Host,
		Path:   "/" + p.Database,
	}
	if p.Port != 0 {
		u.Host = net.JoinHostPort(p.Host, strconv.Itoa(p.Port))
	}
	if p.User != "" {
		u.User = url.User(p.User)
	}

	q := url.Values{}
	q.Set("connect_timeout", strconv.Itoa(pgConnectTimeoutSeconds))
	for _, k := range slices.Sorted(maps.Keys(p.Options)) {
		q.Set(k, p.Options[k])
	}
	u.RawQuery = q.Encode()
	return u.String()
}

func (postgresDialect) Setup(ctx context.Context, q Querier, label string) error {
	if _, err := q.ExecContext(ctx, "SET NAMES 'UTF8'"); err != nil {
		return err
	}

	var raw string
	if err := q.QueryRowContext(ctx, "SHOW server_version_num").Scan(&raw); err != nil {
		return err
	}
	version, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("unexpected server_version_num %q: %w", raw, err)
	}

	if version >= pgApplicationNameMinVersion && label != "" {
		if _, err := q.ExecContext(ctx, "SET application_name TO "+quoteStandard(label)); err != nil {
			return err
		}
	}
	return nil
}

func (postgresDialect) Quote(value string, hint ParamType) (string, error) {
	if hint == ParamBinary {
		return "", ErrQuoteUnsupported
	}
	if strings.ContainsRune(value, '\x00') {
		return "", ErrQuoteUnsupported
	}
	return quoteStandard(value), nil
}

func (postgresDialect) LastInsertIDQuery(sequence string) (string, []any) {
	if sequence == "" {
		return "SELECT lastval()", nil
	}
	return "SELECT currval($1)", []any{sequence}
}

func (postgresDialect) ListDatabasesQuery() (string, error) {
	return "SELECT datname FROM pg_database WHERE NOT datistemplate ORDER BY datname", nil
}

func (postgresDialect) DropDatabase(name string) (string, error) {
	return "DROP DATABASE IF EXISTS " + pgx.Identifier{name}.Sanitize(), nil
}
