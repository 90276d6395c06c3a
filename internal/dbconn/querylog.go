package dbconn

import (
	"fmt"
	"math"
	"os"
	"strconv"
	"time"

	"github.com/phrazzld/dbtestkit/internal/sqlnorm"
)

// QueryLogTimeLayout is the timestamp layout of query log lines.
const QueryLogTimeLayout = "2006-01-02 15:04:05.000-0700"

// FormatQueryLogLine renders one query log line, newline included:
//
//	{seq};{start};{elapsed ms, 1 decimal};{single-line query}
func FormatQueryLogLine(seq int, start time.Time, elapsed time.Duration, query string) string {
	ms := math.Round(float64(elapsed)/float64(time.Millisecond)*10) / 10
	return fmt.Sprintf("%d;%s;%s;%s\n",
		seq,
		start.Format(QueryLogTimeLayout),
		strconv.FormatFloat(ms, 'f', -1, 64),
		sqlnorm.SingleLine(query),
	)
}

func appendQueryLog(path, line string) error {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open query log %s: %w", path, err)
	}
	if _, err := f.WriteString(line); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to write query log %s: %w", path, err)
	}
	return f.Close()
}
