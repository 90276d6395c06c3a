package rowmock

import (
	"errors"
	"fmt"
	"os"
	"sort"

	"github.com/phrazzld/dbtestkit/internal/csvfix"
	"github.com/phrazzld/dbtestkit/internal/sqlnorm"
)

var (
	// ErrUnmatchedQuery is returned when no fixture key matches a query.
	ErrUnmatchedQuery = errors.New("query not handled by fixtures")

	// ErrMalformedFixture is returned when fixture data is neither a callback
	// nor a readable CSV file, or when the file content cannot be decoded.
	ErrMalformedFixture = errors.New("malformed fixture")
)

// Fixtures maps raw queries to their canned results. A value may be:
//
//   - a FetchFunc or func() (csvfix.Row, bool, error)
//   - a func() (csvfix.Row, bool)
//   - a *Cursor
//   - a string holding the path of a CSV fixture file
//
// Keys are compared after sqlnorm.Normalize, so formatting and comments do
// not matter.
type Fixtures map[string]any

// Lookup resolves the cursor for query.
func Lookup(query string, fixtures Fixtures, opts ...csvfix.Option) (*Cursor, error) {
	normalized := sqlnorm.Normalize(query)

	var matched []string
	for raw := range fixtures {
		if sqlnorm.Normalize(raw) == normalized {
			matched = append(matched, raw)
		}
	}

	switch len(matched) {
	case 0:
		return nil, fmt.Errorf("%w: '%s'", ErrUnmatchedQuery, normalized)
	case 1:
	default:
		sort.Strings(matched)
		return nil, fmt.Errorf("%w: keys %q normalize to the same query", ErrMalformedFixture, matched)
	}

	return resolve(normalized, fixtures[matched[0]], opts)
}

func resolve(key string, value any, opts []csvfix.Option) (*Cursor, error) {
	switch v := value.(type) {
	case FetchFunc:
		return FromFunc(v), nil
	case func() (csvfix.Row, bool, error):
		return FromFunc(v), nil
	case func() (csvfix.Row, bool):
		return FromFunc(func() (csvfix.Row, bool, error) {
			row, ok := v()
			return row, ok, nil
		}), nil
	case *Cursor:
		if v == nil {
			break
		}
		return v, nil
	case string:
		info, err := os.Stat(v)
		if err != nil || info.IsDir() {
			break
		}
		return FromFile(v, opts...)
	}
	return nil, fmt.Errorf("%w: value of key '%s' misformed: '%v'", ErrMalformedFixture, key, value)
}
