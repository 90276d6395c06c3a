package testdb

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"slices"
	"strings"

	"github.com/phrazzld/dbtestkit/internal/dbconn"
	"github.com/phrazzld/dbtestkit/internal/platform/logger"
)

var generationName = regexp.MustCompile(`^(.*)_([0-9]+)$`)

// GenerationPrefix splits a generation name such as "app_12" into its
// prefix. ok is false for names without a numeric suffix.
func GenerationPrefix(name string) (prefix string, ok bool) {
	m := generationName.FindStringSubmatch(name)
	if m == nil || m[1] == "" {
		return "", false
	}
	return m[1], true
}

type generation struct {
	name   string
	number string
}

// compareGenerations orders by numeric suffix without parsing, so suffixes
// of any length compare correctly.
func compareGenerations(a, b generation) int {
	an := strings.TrimLeft(a.number, "0")
	bn := strings.TrimLeft(b.number, "0")
	if c := cmp.Compare(len(an), len(bn)); c != 0 {
		return c
	}
	if c := cmp.Compare(an, bn); c != 0 {
		return c
	}
	return cmp.Compare(a.name, b.name)
}

// Prune drops old generations of params.Database through conn, keeping the
// newest max(1, retention). Names that do not follow <prefix>_<integer> are
// never touched, and neither is params.Database itself. It returns the
// dropped names in the order they were dropped.
//
// Drivers that cannot list databases yield dbconn.ErrUnsupportedDriver.
func Prune(ctx context.Context, conn *dbconn.Conn, params dbconn.Params, retention int) ([]string, error) {
	log := logger.FromContextOrDefault(ctx)

	prefix, ok := GenerationPrefix(params.Database)
	if !ok {
		log.DebugContext(ctx, "database name has no generation suffix, nothing to prune",
			slog.String("database", params.Database))
		return nil, nil
	}

	d := conn.Dialect()
	listQuery, err := d.ListDatabasesQuery()
	if err != nil {
		return nil, err
	}
	rows, err := conn.FetchAll(ctx, listQuery)
	if err != nil {
		return nil, err
	}

	pattern := regexp.MustCompile(`^` + regexp.QuoteMeta(prefix) + `_([0-9]+)$`)
	var gens []generation
	for _, row := range rows {
		if row.Len() == 0 {
			continue
		}
		name := fmt.Sprint(row.Values[0])
		if m := pattern.FindStringSubmatch(name); m != nil {
			gens = append(gens, generation{name: name, number: m[1]})
		}
	}
	slices.SortFunc(gens, compareGenerations)

	keep := max(1, retention)
	if len(gens) <= keep {
		return nil, nil
	}

	var dropped []string
	for _, g := range gens[:len(gens)-keep] {
		if g.name == params.Database {
			continue
		}
		stmt, err := d.DropDatabase(g.name)
		if err != nil {
			return dropped, err
		}
		if _, err := conn.Exec(ctx, stmt); err != nil {
			return dropped, err
		}
		log.InfoContext(ctx, "dropped old database generation",
			slog.String("database", g.name),
			slog.String("prefix", prefix),
			slog.Int("retention", keep))
		dropped = append(dropped, g.name)
	}
	return dropped, nil
}
