package csvfix

import "sort"

// NullToken is the fixture spelling of SQL NULL.
const NullToken = "∅"

// TokenTable maps exact field text to the typed value it decodes to.
// Fields not present in the table decode to their text.
type TokenTable map[string]any

// DefaultTokens is the table used unless WithTokens overrides it.
var DefaultTokens = TokenTable{
	NullToken: nil,
	"t":       true,
	"f":       false,
}

// Coerce converts a decoded field using the table.
func (tt TokenTable) Coerce(field string) any {
	if v, ok := tt[field]; ok {
		return v
	}
	return field
}

// tokenFor returns the text for nil or a bool value. When several tokens map
// to the same value the lexically smallest one wins.
func (tt TokenTable) tokenFor(v any) (string, bool) {
	keys := make([]string, 0, len(tt))
	for k := range tt {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if tt[k] == v {
			return k, true
		}
	}
	return "", false
}
