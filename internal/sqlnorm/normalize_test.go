package sqlnorm_test

import (
	"testing"

	"github.com/phrazzld/dbtestkit/internal/sqlnorm"
	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "empty string",
			input:    "",
			expected: "",
		},
		{
			name:     "already normalized",
			input:    "SELECT 1 FROM t;",
			expected: "SELECT 1 FROM t;",
		},
		{
			name:     "line comment and extra whitespace",
			input:    "SELECT 1 -- comment\n  FROM  t;",
			expected: "SELECT 1 FROM t;",
		},
		{
			name:     "hash comment",
			input:    "SELECT a # trailing\nFROM b",
			expected: "SELECT a FROM b",
		},
		{
			name:     "hash operator starts a comment",
			input:    "SELECT data #> '{a}' FROM t\nWHERE id = 1",
			expected: "SELECT data WHERE id = 1",
		},
		{
			name:     "block comment spanning lines",
			input:    "SELECT /* first\n second */ id\n\tFROM users",
			expected: "SELECT id FROM users",
		},
		{
			name:     "unterminated block comment",
			input:    "SELECT 1 /* never closed",
			expected: "SELECT 1",
		},
		{
			name:     "comment marker inside single quotes",
			input:    "SELECT '-- not a comment' AS x",
			expected: "SELECT '-- not a comment' AS x",
		},
		{
			name:     "block comment marker inside double quotes",
			input:    `SELECT "/* col */" FROM t`,
			expected: `SELECT "/* col */" FROM t`,
		},
		{
			name:     "whitespace inside literal preserved",
			input:    "SELECT   'a   b\n c'  FROM t",
			expected: "SELECT 'a   b\n c' FROM t",
		},
		{
			name:     "escaped quote inside literal",
			input:    `SELECT 'it\'s -- fine' -- gone`,
			expected: `SELECT 'it\'s -- fine'`,
		},
		{
			name:     "doubled quote inside literal",
			input:    "SELECT 'it''s # fine' # gone",
			expected: "SELECT 'it''s # fine'",
		},
		{
			name:     "leading and trailing comments",
			input:    "-- header\n\nSELECT 1;\n-- footer\n",
			expected: "SELECT 1;",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, sqlnorm.Normalize(tt.input))
		})
	}
}

func TestNormalizeEquivalentQueries(t *testing.T) {
	a := sqlnorm.Normalize("SELECT 1 -- comment\n  FROM  t;")
	b := sqlnorm.Normalize("SELECT 1\nFROM t;")
	assert.Equal(t, a, b)
}

func TestSingleLine(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "multi-line query with indentation",
			input:    "SELECT id,\n       name\n  FROM users\n WHERE id = 1",
			expected: "SELECT id, name FROM users WHERE id = 1",
		},
		{
			name:     "inline spacing kept",
			input:    "SELECT  1",
			expected: "SELECT  1",
		},
		{
			name:     "comments stripped",
			input:    "SELECT 1 -- one\nFROM t /* tbl */",
			expected: "SELECT 1 FROM t",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, sqlnorm.SingleLine(tt.input))
		})
	}
}
