package dbconn

import (
	"context"
	"database/sql"
	"fmt"
	"maps"
	"net/url"
	"slices"
	"strings"

	_ "modernc.org/sqlite" // registers the "sqlite" driver
)

type sqliteDialect struct{}

func (sqliteDialect) Kind() DriverKind { return SQLite }

func (sqliteDialect) Open(p Params) (*sql.DB, error) {
	if p.Host == "" {
		return nil, fmt.Errorf("sqlite requires a database file path in Host")
	}
	dsn := p.Host
	if len(p.Options) > 0 {
		q := url.Values{}
		for _, k := range slices.Sorted(maps.Keys(p.Options)) {
			q.Add(k, p.Options[k])
		}
		sep := "?"
		if strings.Contains(dsn, "?") {
			sep = "&"
		}
		dsn += sep + q.Encode()
	}
	return sql.Open("sqlite", dsn)
}

func (sqliteDialect) Setup(context.Context, Querier, string) error {
	return nil
}

func (sqliteDialect) Quote(value string, hint ParamType) (string, error) {
	if hint == ParamBinary {
		return "", ErrQuoteUnsupported
	}
	return quoteStandard(value), nil
}

func (sqliteDialect) LastInsertIDQuery(string) (string, []any) {
	return "SELECT last_insert_rowid()", nil
}

func (sqliteDialect) ListDatabasesQuery() (string, error) {
	return "", fmt.Errorf("%w: sqlite has no database catalog", ErrUnsupportedDriver)
}

func (sqliteDialect) DropDatabase(string) (string, error) {
	return "", fmt.Errorf("%w: sqlite databases are files", ErrUnsupportedDriver)
}
