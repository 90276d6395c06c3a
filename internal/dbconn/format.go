package dbconn

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
)

// toUTF8 returns s unchanged when it is valid UTF-8 and otherwise decodes it
// as ISO-8859-1, which maps every byte to a rune.
func toUTF8(s string) string {
	if utf8.ValidString(s) {
		return s
	}
	decoded, err := charmap.ISO8859_1.NewDecoder().String(s)
	if err != nil {
		return strings.ToValidUTF8(s, "�")
	}
	return decoded
}

func valueText(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case []byte:
		return string(x)
	case time.Time:
		return x.Format("2006-01-02 15:04:05.999999-07:00")
	case fmt.Stringer:
		return x.String()
	default:
		return fmt.Sprint(v)
	}
}

// formatValues renders bound values for log lines and error messages.
func formatValues(values []any) string {
	parts := make([]string, len(values))
	for i, v := range values {
		if v == nil {
			parts[i] = "NULL"
			continue
		}
		parts[i] = valueText(v)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

// normalizeScanned converts driver values into the types exposed in rows.
func normalizeScanned(v any) any {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}
