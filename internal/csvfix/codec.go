package csvfix

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// ErrUnterminatedField is returned when an enclosed field has no closing
// enclosure before the end of input.
var ErrUnterminatedField = errors.New("unterminated enclosed field")

// TimeLayout is the text form used for time.Time values, matching the
// PostgreSQL timestamptz output format.
const TimeLayout = "2006-01-02 15:04:05.999999-07"

// Options controls the CSV dialect.
type Options struct {
	Delimiter rune
	Enclosure rune
	Escape    rune
	Tokens    TokenTable
}

// Option mutates Options.
type Option func(*Options)

// WithDelimiter sets the field delimiter.
func WithDelimiter(r rune) Option {
	return func(o *Options) { o.Delimiter = r }
}

// WithEnclosure sets the field enclosure character.
func WithEnclosure(r rune) Option {
	return func(o *Options) { o.Enclosure = r }
}

// WithTokens replaces the token table used for NULL and booleans.
func WithTokens(tt TokenTable) Option {
	return func(o *Options) { o.Tokens = tt }
}

// NewOptions applies opts over the defaults.
func NewOptions(opts ...Option) Options {
	o := Options{
		Delimiter: ',',
		Enclosure: '"',
		Escape:    '\\',
		Tokens:    DefaultTokens,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Encode renders rows as CSV text. The header is taken from the first row;
// later rows are written in that column order. The result has no trailing
// newline, and is empty when rows is empty.
func Encode(rows []Row, opts ...Option) string {
	if len(rows) == 0 {
		return ""
	}
	o := NewOptions(opts...)

	var sb strings.Builder
	header := rows[0].Columns
	o.writeRecord(&sb, header)
	for _, row := range rows {
		fields := make([]string, len(header))
		for i, col := range header {
			v, _ := row.Get(col)
			fields[i] = o.format(v)
		}
		o.writeRecord(&sb, fields)
	}
	return strings.TrimSuffix(sb.String(), "\n")
}

// WriteFile encodes rows and writes them to path followed by a newline.
func WriteFile(path string, rows []Row, opts ...Option) error {
	text := Encode(rows, opts...)
	if text != "" {
		text += "\n"
	}
	if err := os.WriteFile(path, []byte(text), 0o644); err != nil {
		return fmt.Errorf("failed to write CSV file %s: %w", path, err)
	}
	return nil
}

// DecodeLine splits one CSV record into its raw fields.
func DecodeLine(line string, opts ...Option) ([]string, error) {
	o := NewOptions(opts...)
	line = strings.TrimRight(line, "\r\n")
	fields, _, err := o.readRecord([]rune(line), 0)
	return fields, err
}

// Decode parses CSV text produced by Encode back into rows, applying the token
// table to every field. Blank lines are ignored.
func Decode(text string, opts ...Option) ([]Row, error) {
	o := NewOptions(opts...)
	src := []rune(text)

	var header []string
	var rows []Row
	for pos := 0; pos < len(src); {
		if src[pos] == '\n' || src[pos] == '\r' {
			pos++
			continue
		}
		fields, next, err := o.readRecord(src, pos)
		if err != nil {
			return nil, err
		}
		pos = next
		if header == nil {
			header = fields
			continue
		}
		if len(fields) != len(header) {
			return nil, fmt.Errorf("record has %d fields, header has %d", len(fields), len(header))
		}
		row := Row{Columns: header, Values: make([]any, len(fields))}
		for i, f := range fields {
			row.Values[i] = o.Tokens.Coerce(f)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// readRecord reads fields starting at pos up to an unenclosed line break and
// returns the position following that break.
func (o Options) readRecord(src []rune, pos int) ([]string, int, error) {
	var fields []string
	var field strings.Builder
	for {
		field.Reset()
		if pos < len(src) && src[pos] == o.Enclosure {
			pos++
			closed := false
			for pos < len(src) && !closed {
				r := src[pos]
				switch {
				case r == o.Escape && pos+1 < len(src) && src[pos+1] == o.Enclosure &&
					(pos+2 >= len(src) || src[pos+2] == o.Enclosure || o.isBreak(src[pos+2])):
					// A trailing escape, or one before a doubled enclosure,
					// is literal.
					field.WriteRune(r)
					pos++
				case r == o.Escape && pos+1 < len(src):
					field.WriteRune(r)
					field.WriteRune(src[pos+1])
					pos += 2
				case r == o.Enclosure && pos+1 < len(src) && src[pos+1] == o.Enclosure:
					field.WriteRune(r)
					pos += 2
				case r == o.Enclosure:
					closed = true
					pos++
				default:
					field.WriteRune(r)
					pos++
				}
			}
			if !closed {
				return nil, pos, ErrUnterminatedField
			}
		}
		for pos < len(src) && src[pos] != o.Delimiter && src[pos] != '\n' {
			if src[pos] != '\r' {
				field.WriteRune(src[pos])
			}
			pos++
		}
		fields = append(fields, field.String())
		if pos >= len(src) {
			return fields, pos, nil
		}
		if src[pos] == '\n' {
			return fields, pos + 1, nil
		}
		pos++ // delimiter
	}
}

func (o Options) writeRecord(sb *strings.Builder, fields []string) {
	for i, f := range fields {
		if i > 0 {
			sb.WriteRune(o.Delimiter)
		}
		o.writeField(sb, f)
	}
	sb.WriteByte('\n')
}

func (o Options) writeField(sb *strings.Builder, f string) {
	if !o.needsEnclosure(f) {
		sb.WriteString(f)
		return
	}
	sb.WriteRune(o.Enclosure)
	runes := []rune(f)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		switch {
		case r == o.Escape && i+1 < len(runes) && o.escapes(runes, i+1):
			sb.WriteRune(r)
			sb.WriteRune(runes[i+1])
			i++
		case r == o.Enclosure:
			sb.WriteRune(r)
			sb.WriteRune(r)
		default:
			sb.WriteRune(r)
		}
	}
	sb.WriteRune(o.Enclosure)
}

// escapes reports whether the escape before runes[i] pairs with it. An escaped
// enclosure must be followed by a rune the reader cannot mistake for the end
// of the field; otherwise the escape is written literally and the enclosure
// doubled.
func (o Options) escapes(runes []rune, i int) bool {
	if runes[i] != o.Enclosure {
		return true
	}
	if i+1 >= len(runes) {
		return false
	}
	next := runes[i+1]
	return next != o.Enclosure && !o.isBreak(next)
}

func (o Options) isBreak(r rune) bool {
	return r == o.Delimiter || r == '\n' || r == '\r'
}

func (o Options) needsEnclosure(f string) bool {
	for _, r := range f {
		switch r {
		case o.Delimiter, o.Enclosure, o.Escape, '\n', '\r', '\t', ' ':
			return true
		}
	}
	return false
}

// format renders a scanned value as field text.
func (o Options) format(v any) string {
	switch val := v.(type) {
	case nil:
		if tok, ok := o.Tokens.tokenFor(nil); ok {
			return tok
		}
		return ""
	case bool:
		if tok, ok := o.Tokens.tokenFor(val); ok {
			return tok
		}
		return strconv.FormatBool(val)
	case string:
		return val
	case []byte:
		return string(val)
	case int:
		return strconv.Itoa(val)
	case int32:
		return strconv.FormatInt(int64(val), 10)
	case int64:
		return strconv.FormatInt(val, 10)
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case time.Time:
		return val.Format(TimeLayout)
	case fmt.Stringer:
		return val.String()
	default:
		return fmt.Sprint(val)
	}
}
