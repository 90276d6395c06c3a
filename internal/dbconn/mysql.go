package dbconn

import (
	"context"
	"database/sql"
	"maps"
	"net"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
)

type mysqlDialect struct{}

func (mysqlDialect) Kind() DriverKind { return MySQL }

func (mysqlDialect) Open(p Params) (*sql.DB, error) {
	cfg := mysql.NewConfig()
	cfg.User = p.User
	cfg.Passwd = p.Password
	cfg.Net = "tcp"
	cfg.Addr = p.Host
	if p.Port != 0 {
		cfg.Addr = net.JoinHostPort(p.Host, strconv.Itoa(p.Port))
	}
	cfg.DBName = p.Database
	cfg.Timeout = 5 * time.Second
	cfg.MultiStatements = true

	// Options may name DSN parameters such as parseTime as well as session
	// variables, so they go through the DSN parser.
	dsn := cfg.FormatDSN()
	if len(p.Options) > 0 {
		q := url.Values{}
		for _, k := range slices.Sorted(maps.Keys(p.Options)) {
			q.Set(k, p.Options[k])
		}
		sep := "?"
		if strings.Contains(dsn, "?") {
			sep = "&"
		}
		dsn += sep + q.Encode()
	}
	parsed, err := mysql.ParseDSN(dsn)
	if err != nil {
		return nil, err
	}

	connector, err := mysql.NewConnector(parsed)
	if err != nil {
		return nil, err
	}
	return sql.OpenDB(connector), nil
}

func (mysqlDialect) Setup(ctx context.Context, q Querier, _ string) error {
	for _, stmt := range []string{
		"SET NAMES 'UTF8'",
		"SET time_zone = '+00:00'",
		"SET SESSION time_zone = '+00:00'",
	} {
		if _, err := q.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

var mysqlEscaper = strings.NewReplacer(
	`\`, `\\`,
	`'`, `\'`,
	`"`, `\"`,
	"\x00", `\0`,
	"\n", `\n`,
	"\r", `\r`,
	"\x1a", `\Z`,
)

func (mysqlDialect) Quote(value string, hint ParamType) (string, error) {
	if hint == ParamBinary {
		return "", ErrQuoteUnsupported
	}
	return "'" + mysqlEscaper.Replace(value) + "'", nil
}

func (mysqlDialect) LastInsertIDQuery(string) (string, []any) {
	return "SELECT LAST_INSERT_ID()", nil
}

func (mysqlDialect) ListDatabasesQuery() (string, error) {
	return "SELECT schema_name FROM information_schema.schemata ORDER BY schema_name", nil
}

func (mysqlDialect) DropDatabase(name string) (string, error) {
	return "DROP DATABASE IF EXISTS `" + strings.ReplaceAll(name, "`", "``") + "`", nil
}
