// Package rowmock replays canned result rows as a stepped cursor so that code
// reading query results can be unit tested without a database.
//
// A Cursor is fed either by a callback or by a CSV fixture file. File cursors
// are small state machines: each Fetch decodes the next data line, and once
// the lines run out the cursor stays exhausted.
package rowmock

import (
	"fmt"
	"os"
	"strings"

	"github.com/phrazzld/dbtestkit/internal/csvfix"
)

// FetchFunc produces the next row. It returns false once there is no more
// data.
type FetchFunc func() (csvfix.Row, bool, error)

// State is a snapshot of a cursor's progress.
type State struct {
	// Position is the number of rows returned so far.
	Position int
	// Exhausted reports whether end-of-data has been signalled.
	Exhausted bool
	// Remaining is the number of rows left, or -1 for callback cursors.
	Remaining int
}

// Cursor replays rows one Fetch at a time.
type Cursor struct {
	fetch FetchFunc

	header    []string
	lines     []string
	opts      csvfix.Options
	optList   []csvfix.Option
	pos       int
	exhausted bool
	source    string
}

// FromFunc returns a cursor that forwards every Fetch to fn.
func FromFunc(fn FetchFunc) *Cursor {
	return &Cursor{fetch: fn, source: "callback"}
}

// FromFile returns a cursor over the CSV fixture at path. The file is read
// once; blank lines are dropped and the first remaining line is the header.
func FromFile(path string, opts ...csvfix.Option) (*Cursor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: cannot read %s: %v", ErrMalformedFixture, path, err)
	}

	var lines []string
	for _, line := range strings.Split(string(data), "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		lines = append(lines, line)
	}

	c := &Cursor{
		opts:    csvfix.NewOptions(opts...),
		optList: opts,
		source:  path,
	}
	if len(lines) == 0 {
		c.exhausted = true
		return c, nil
	}

	header, err := csvfix.DecodeLine(lines[0], opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: bad header in %s: %v", ErrMalformedFixture, path, err)
	}
	c.header = header
	c.lines = lines[1:]
	return c, nil
}

// Columns returns the header of a file cursor, or nil for callback cursors.
func (c *Cursor) Columns() []string {
	return c.header
}

// Fetch returns the next row. The boolean is false at end-of-data.
func (c *Cursor) Fetch() (csvfix.Row, bool, error) {
	if c.fetch != nil {
		row, ok, err := c.fetch()
		if err != nil {
			return csvfix.Row{}, false, err
		}
		if !ok {
			c.exhausted = true
			return csvfix.Row{}, false, nil
		}
		c.pos++
		return row, true, nil
	}

	if c.exhausted || c.pos >= len(c.lines) {
		c.exhausted = true
		return csvfix.Row{}, false, nil
	}

	line := c.lines[c.pos]
	fields, err := csvfix.DecodeLine(line, c.optList...)
	if err != nil {
		return csvfix.Row{}, false, fmt.Errorf("%w: %s record %d: %v", ErrMalformedFixture, c.source, c.pos+1, err)
	}
	if len(fields) != len(c.header) {
		return csvfix.Row{}, false, fmt.Errorf(
			"%w: %s record %d has %d fields, header has %d",
			ErrMalformedFixture, c.source, c.pos+1, len(fields), len(c.header),
		)
	}
	c.pos++

	row := csvfix.Row{Columns: c.header, Values: make([]any, len(fields))}
	for i, f := range fields {
		row.Values[i] = c.opts.Tokens.Coerce(f)
	}
	return row, true, nil
}

// All drains the cursor.
func (c *Cursor) All() ([]csvfix.Row, error) {
	var rows []csvfix.Row
	for {
		row, ok, err := c.Fetch()
		if err != nil {
			return nil, err
		}
		if !ok {
			return rows, nil
		}
		rows = append(rows, row)
	}
}

// State reports the cursor's progress.
func (c *Cursor) State() State {
	remaining := -1
	if c.fetch == nil {
		remaining = len(c.lines) - c.pos
	}
	return State{Position: c.pos, Exhausted: c.exhausted, Remaining: remaining}
}
