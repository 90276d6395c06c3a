// Package directive builds test databases from an ordered list of build
// directives. Each directive names the user and database to run as and a
// payload: either literal SQL or the path of a .sql or .gz file.
//
// Directives run strictly in order and the first failure aborts the run.
// Literal SQL and small SQL files run in-process through a dbconn.Conn; large
// files are handed to an external Loader such as psql.
package directive

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

var (
	// ErrMalformedDirective is returned for directives that do not have the
	// (user, database, payload) shape or have an empty payload.
	ErrMalformedDirective = errors.New("malformed build directive")

	// ErrExternalLoad is matched by every *LoadError.
	ErrExternalLoad = errors.New("external load failed")
)

// Directive is one build step.
type Directive struct {
	User     string
	Database string
	Payload  string
}

// String renders the directive for logs and errors.
func (d Directive) String() string {
	return fmt.Sprintf("%s@%s: %s", d.User, d.Database, d.Payload)
}

// Kind classifies a payload.
type Kind int

// Payload kinds.
const (
	Literal Kind = iota
	SQLFile
	GzipFile
)

func (k Kind) String() string {
	switch k {
	case SQLFile:
		return "sql file"
	case GzipFile:
		return "gzip file"
	default:
		return "literal"
	}
}

var filePayload = regexp.MustCompile(`(?i)\.(sql|gz)$`)

// Classify reports whether payload is literal SQL or a file reference. A
// payload ending in .sql or .gz, in any case, is a file.
func Classify(payload string) Kind {
	p := strings.TrimSpace(payload)
	if !filePayload.MatchString(p) {
		return Literal
	}
	if strings.HasSuffix(strings.ToLower(p), ".gz") {
		return GzipFile
	}
	return SQLFile
}

// Terminate appends a semicolon to sql unless it already ends with one.
func Terminate(sql string) string {
	if strings.HasSuffix(sql, ";") {
		return sql
	}
	return sql + ";"
}
