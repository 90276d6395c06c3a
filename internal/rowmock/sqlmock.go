package rowmock

import (
	"database/sql/driver"
	"regexp"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/phrazzld/dbtestkit/internal/csvfix"
)

// ExpectQuery registers query on mock and answers it with every row left in
// c. The expectation matches the query text literally under sqlmock's default
// regexp matcher.
func ExpectQuery(mock sqlmock.Sqlmock, query string, c *Cursor) (*sqlmock.ExpectedQuery, error) {
	rows, err := c.All()
	if err != nil {
		return nil, err
	}

	columns := c.Columns()
	if len(rows) > 0 {
		columns = rows[0].Columns
	}

	result := sqlmock.NewRows(columns)
	for _, row := range rows {
		values := make([]driver.Value, len(columns))
		for i, col := range columns {
			v, _ := row.Get(col)
			values[i] = v
		}
		result.AddRow(values...)
	}

	return mock.ExpectQuery(regexp.QuoteMeta(query)).WillReturnRows(result), nil
}

// ExpectLookup resolves query against fixtures and registers the result with
// ExpectQuery.
func ExpectLookup(
	mock sqlmock.Sqlmock,
	query string,
	fixtures Fixtures,
	opts ...csvfix.Option,
) (*sqlmock.ExpectedQuery, error) {
	c, err := Lookup(query, fixtures, opts...)
	if err != nil {
		return nil, err
	}
	return ExpectQuery(mock, query, c)
}
