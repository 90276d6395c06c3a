// Package sqlnorm strips comments and redundant whitespace from SQL text so that
// queries differing only in formatting compare equal.
//
// The scanner understands single- and double-quoted literals (with backslash
// escapes and doubled quotes), so comment markers and whitespace inside a
// literal are preserved verbatim.
package sqlnorm

import "strings"

// Normalize removes `--` and `#` line comments and `/* */` block comments,
// collapses every whitespace run outside quoted literals to a single space
// and trims the result.
//
// A `#` outside a quoted literal always starts a comment, so PostgreSQL
// operators such as `#>`, `#>>` and `#-` truncate the line they appear on.
// Queries compared through Normalize should use the function forms
// (jsonb_extract_path and friends) instead.
func Normalize(raw string) string {
	return scan(raw, true)
}

// SingleLine renders a query on one line for log output. Comments are
// removed and line breaks (with their surrounding indentation) become a
// single space; whitespace runs without a line break are kept as written.
func SingleLine(raw string) string {
	return scan(raw, false)
}

type scanner struct {
	src         []rune
	pos         int
	out         strings.Builder
	ws          strings.Builder
	collapseAll bool
}

func scan(raw string, collapseAll bool) string {
	s := &scanner{src: []rune(raw), collapseAll: collapseAll}
	for s.pos < len(s.src) {
		r := s.src[s.pos]
		switch {
		case r == '\'' || r == '"':
			s.flushSpace()
			s.literal(r)
		case r == '-' && s.peek(1) == '-', r == '#':
			s.lineComment()
		case r == '/' && s.peek(1) == '*':
			s.blockComment()
		case isSpace(r):
			s.ws.WriteRune(r)
			s.pos++
		default:
			s.flushSpace()
			s.out.WriteRune(r)
			s.pos++
		}
	}
	return strings.TrimSpace(s.out.String())
}

func (s *scanner) peek(offset int) rune {
	if s.pos+offset >= len(s.src) {
		return 0
	}
	return s.src[s.pos+offset]
}

// flushSpace emits the pending whitespace run, if any, before a token.
func (s *scanner) flushSpace() {
	if s.ws.Len() == 0 {
		return
	}
	run := s.ws.String()
	s.ws.Reset()
	if s.out.Len() == 0 {
		return
	}
	if s.collapseAll || strings.ContainsAny(run, "\r\n") {
		s.out.WriteByte(' ')
		return
	}
	s.out.WriteString(run)
}

// literal copies a quoted literal, including its quotes, unchanged.
func (s *scanner) literal(quote rune) {
	s.out.WriteRune(quote)
	s.pos++
	for s.pos < len(s.src) {
		r := s.src[s.pos]
		s.out.WriteRune(r)
		s.pos++
		switch {
		case r == '\\' && s.pos < len(s.src):
			s.out.WriteRune(s.src[s.pos])
			s.pos++
		case r == quote && s.peek(0) == quote:
			s.out.WriteRune(quote)
			s.pos++
		case r == quote:
			return
		}
	}
}

func (s *scanner) lineComment() {
	for s.pos < len(s.src) && s.src[s.pos] != '\n' {
		s.pos++
	}
	// The comment reads as whitespace so adjacent tokens stay separated.
	s.ws.WriteByte(' ')
}

func (s *scanner) blockComment() {
	s.pos += 2
	for s.pos < len(s.src) {
		if s.src[s.pos] == '*' && s.peek(1) == '/' {
			s.pos += 2
			break
		}
		if s.src[s.pos] == '\n' {
			s.ws.WriteByte('\n')
		}
		s.pos++
	}
	s.ws.WriteByte(' ')
}

func isSpace(r rune) bool {
	switch r {
	case ' ', '\t', '\n', '\r', '\f', '\v':
		return true
	}
	return false
}
