package dbconn

import (
	"maps"
	"slices"
	"strings"
)

var hstoreEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`)

// HstoreLiteral renders m as a PostgreSQL hstore literal, for example
// '"a" => "1", "b" => NULL'::hstore. Keys are sorted; a nil value is NULL.
func HstoreLiteral(m map[string]*string) string {
	pairs := make([]string, 0, len(m))
	for _, k := range slices.Sorted(maps.Keys(m)) {
		key := `"` + hstoreEscaper.Replace(k) + `"`
		v := m[k]
		if v == nil {
			pairs = append(pairs, key+" => NULL")
			continue
		}
		pairs = append(pairs, key+` => "`+hstoreEscaper.Replace(*v)+`"`)
	}
	body := strings.ReplaceAll(strings.Join(pairs, ", "), "'", "''")
	return "'" + body + "'::hstore"
}
