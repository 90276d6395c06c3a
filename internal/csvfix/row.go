// Package csvfix converts query result rows to and from the CSV text used for
// test fixtures and expectations.
//
// The dialect follows the fixture files already in use: configurable
// delimiter and enclosure (defaults "," and '"'), backslash as the escape
// character, and a small token table giving NULL and booleans a textual form
// ("∅", "t" and "f").
package csvfix

// Row is one result row with its columns in query order.
type Row struct {
	Columns []string
	Values  []any
}

// NewRow builds a Row from alternating column names and values.
// It panics if kv has odd length or a name is not a string.
func NewRow(kv ...any) Row {
	if len(kv)%2 != 0 {
		panic("csvfix: NewRow needs column/value pairs")
	}
	row := Row{
		Columns: make([]string, 0, len(kv)/2),
		Values:  make([]any, 0, len(kv)/2),
	}
	for i := 0; i < len(kv); i += 2 {
		name, ok := kv[i].(string)
		if !ok {
			panic("csvfix: NewRow column name must be a string")
		}
		row.Columns = append(row.Columns, name)
		row.Values = append(row.Values, kv[i+1])
	}
	return row
}

// Get returns the value of the named column.
func (r Row) Get(column string) (any, bool) {
	for i, c := range r.Columns {
		if c == column {
			return r.Values[i], true
		}
	}
	return nil, false
}

// Map returns the row as a map keyed by column name.
func (r Row) Map() map[string]any {
	m := make(map[string]any, len(r.Columns))
	for i, c := range r.Columns {
		m[c] = r.Values[i]
	}
	return m
}

// Len returns the number of columns.
func (r Row) Len() int {
	return len(r.Columns)
}
