package rowmock_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/phrazzld/dbtestkit/internal/csvfix"
	"github.com/phrazzld/dbtestkit/internal/rowmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFixture(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fixture.csv")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestFromFileStepsThroughRows(t *testing.T) {
	path := writeFixture(t, "id,name\n1,FR\n\n2,GB\n")

	c, err := rowmock.FromFile(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "name"}, c.Columns())

	row, ok, err := c.Fetch()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, csvfix.NewRow("id", "1", "name", "FR"), row)

	row, ok, err = c.Fetch()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, csvfix.NewRow("id", "2", "name", "GB"), row)

	_, ok, err = c.Fetch()
	require.NoError(t, err)
	assert.False(t, ok, "third fetch must signal end-of-data")

	_, ok, err = c.Fetch()
	require.NoError(t, err)
	assert.False(t, ok, "exhausted cursor must stay exhausted")

	assert.Equal(t, rowmock.State{Position: 2, Exhausted: true, Remaining: 0}, c.State())
}

func TestFromFileCoercesTokens(t *testing.T) {
	path := writeFixture(t, "a,b,c,d\n∅,t,f,text\n")

	c, err := rowmock.FromFile(path)
	require.NoError(t, err)

	rows, err := c.All()
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, []any{nil, true, false, "text"}, rows[0].Values)
}

func TestFromFileCustomTokens(t *testing.T) {
	path := writeFixture(t, "a;b\nNULL;x\n")

	c, err := rowmock.FromFile(path,
		csvfix.WithDelimiter(';'),
		csvfix.WithTokens(csvfix.TokenTable{"NULL": nil}),
	)
	require.NoError(t, err)

	rows, err := c.All()
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, []any{nil, "x"}, rows[0].Values)
}

func TestFromFileEmptyFile(t *testing.T) {
	path := writeFixture(t, "\n\n")

	c, err := rowmock.FromFile(path)
	require.NoError(t, err)

	_, ok, err := c.Fetch()
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestFromFileFieldCountMismatch(t *testing.T) {
	path := writeFixture(t, "a,b\n1,2,3\n")

	c, err := rowmock.FromFile(path)
	require.NoError(t, err)

	_, _, err = c.Fetch()
	assert.ErrorIs(t, err, rowmock.ErrMalformedFixture)
}

func TestFromFuncForwardsCalls(t *testing.T) {
	i := 0
	c := rowmock.FromFunc(func() (csvfix.Row, bool, error) {
		i++
		if i > 3 {
			return csvfix.Row{}, false, nil
		}
		return csvfix.NewRow("n", i), true, nil
	})

	rows, err := c.All()
	require.NoError(t, err)
	assert.Len(t, rows, 3)
	assert.Equal(t, 3, c.State().Position)
	assert.Equal(t, -1, c.State().Remaining)
	assert.True(t, c.State().Exhausted)
}

func TestFromFuncPropagatesErrors(t *testing.T) {
	boom := errors.New("boom")
	c := rowmock.FromFunc(func() (csvfix.Row, bool, error) {
		return csvfix.Row{}, false, boom
	})

	_, _, err := c.Fetch()
	assert.ErrorIs(t, err, boom)
}

func TestLookup(t *testing.T) {
	path := writeFixture(t, "iso_a3,name\nFRA,France\n")

	fixtures := rowmock.Fixtures{
		"SELECT iso_a3, name\n  FROM country -- all countries\n": path,
		"SELECT 1": func() (csvfix.Row, bool) {
			return csvfix.Row{}, false
		},
		"SELECT 2":       42,
		"SELECT 3":       filepath.Join(t.TempDir(), "missing.csv"),
		"SELECT   4":     "",
		"SELECT /*x*/ 5": (*rowmock.Cursor)(nil),
	}

	t.Run("file fixture matched after normalization", func(t *testing.T) {
		c, err := rowmock.Lookup("SELECT iso_a3, name FROM country", fixtures)
		require.NoError(t, err)

		rows, err := c.All()
		require.NoError(t, err)
		require.Len(t, rows, 1)
		assert.Equal(t, csvfix.NewRow("iso_a3", "FRA", "name", "France"), rows[0])
	})

	t.Run("callback fixture", func(t *testing.T) {
		c, err := rowmock.Lookup("SELECT 1", fixtures)
		require.NoError(t, err)

		_, ok, err := c.Fetch()
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("unmatched query", func(t *testing.T) {
		_, err := rowmock.Lookup("SELECT 99", fixtures)
		assert.ErrorIs(t, err, rowmock.ErrUnmatchedQuery)
		assert.Contains(t, err.Error(), "SELECT 99")
	})

	malformed := []string{"SELECT 2", "SELECT 3", "SELECT 4", "SELECT 5"}
	for _, q := range malformed {
		t.Run("malformed "+q, func(t *testing.T) {
			_, err := rowmock.Lookup(q, fixtures)
			assert.ErrorIs(t, err, rowmock.ErrMalformedFixture)
		})
	}
}

func TestLookupAmbiguousKeys(t *testing.T) {
	fixtures := rowmock.Fixtures{
		"SELECT 1":        func() (csvfix.Row, bool) { return csvfix.Row{}, false },
		"SELECT 1 -- dup": func() (csvfix.Row, bool) { return csvfix.Row{}, false },
	}

	_, err := rowmock.Lookup("SELECT 1", fixtures)
	assert.ErrorIs(t, err, rowmock.ErrMalformedFixture)
}

func TestExpectLookup(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	path := writeFixture(t, "id,name,active\n1,FR,t\n2,GB,∅\n")
	query := "SELECT id, name, active FROM country"

	_, err = rowmock.ExpectLookup(mock, query, rowmock.Fixtures{query: path})
	require.NoError(t, err)

	rows, err := db.Query(query)
	require.NoError(t, err)
	defer rows.Close()

	type country struct {
		id     string
		name   string
		active *bool
	}
	var got []country
	for rows.Next() {
		var c country
		require.NoError(t, rows.Scan(&c.id, &c.name, &c.active))
		got = append(got, c)
	}
	require.NoError(t, rows.Err())

	require.Len(t, got, 2)
	assert.Equal(t, "FR", got[0].name)
	require.NotNil(t, got[0].active)
	assert.True(t, *got[0].active)
	assert.Nil(t, got[1].active)

	assert.NoError(t, mock.ExpectationsWereMet())
}
