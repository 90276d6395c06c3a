package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestLogBuffer collects handler output. Handlers may write from several
// goroutines, so every method locks.
type TestLogBuffer struct {
	buf bytes.Buffer
	mu  sync.Mutex
}

// Write implements io.Writer.
func (b *TestLogBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

// String returns everything written so far.
func (b *TestLogBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// Reset discards everything written so far.
func (b *TestLogBuffer) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf.Reset()
}

// GetLogEntries parses the buffer contents as JSON log entries, one per line.
func (b *TestLogBuffer) GetLogEntries() ([]map[string]any, error) {
	lines := strings.Split(b.String(), "\n")
	entries := make([]map[string]any, 0, len(lines))
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		var entry map[string]any
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// EntriesWithMessage returns the parsed entries whose msg equals msg.
func (b *TestLogBuffer) EntriesWithMessage(msg string) ([]map[string]any, error) {
	entries, err := b.GetLogEntries()
	if err != nil {
		return nil, err
	}
	var out []map[string]any
	for _, e := range entries {
		if e[slog.MessageKey] == msg {
			out = append(out, e)
		}
	}
	return out, nil
}

// GetTestLogger creates a debug-level JSON logger writing to a new buffer.
func GetTestLogger(t testing.TB) (*slog.Logger, *TestLogBuffer) {
	t.Helper()
	logBuf := &TestLogBuffer{}
	logger := slog.New(slog.NewJSONHandler(logBuf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	return logger, logBuf
}

// CaptureLogs runs fn with a test logger and returns everything it logged.
func CaptureLogs(t testing.TB, fn func(*slog.Logger)) string {
	t.Helper()
	logger, logBuf := GetTestLogger(t)
	fn(logger)
	return logBuf.String()
}

// LogCaptureContext bundles a context carrying a capturing logger.
type LogCaptureContext struct {
	Context context.Context
	Logger  *slog.Logger
	Buffer  *TestLogBuffer
}

// NewLogCaptureContext returns a context whose logger writes to Buffer. The
// test name is stored as the run id.
func NewLogCaptureContext(t testing.TB) *LogCaptureContext {
	t.Helper()
	logger, logBuf := GetTestLogger(t)
	ctx := WithRunID(WithLogger(context.Background(), logger), "test-"+t.Name())
	return &LogCaptureContext{Context: ctx, Logger: logger, Buffer: logBuf}
}

// AssertLogContains fails the test unless the buffer contains content.
func AssertLogContains(t testing.TB, logBuf *TestLogBuffer, content string) bool {
	t.Helper()
	return assert.Contains(t, logBuf.String(), content, "log output is missing %q", content)
}

// AssertLogField fails the test unless some entry has field set to expected.
// JSON numbers decode as float64.
func AssertLogField(t testing.TB, logBuf *TestLogBuffer, field string, expected any) bool {
	t.Helper()
	entries, err := logBuf.GetLogEntries()
	if !assert.NoError(t, err, "log output is not JSON lines") || !assert.NotEmpty(t, entries, "nothing was logged") {
		return false
	}
	values := make([]any, 0, len(entries))
	for _, entry := range entries {
		if v, ok := entry[field]; ok {
			if v == expected {
				return true
			}
			values = append(values, v)
		}
	}
	return assert.Fail(t, "log field mismatch",
		"no entry has %s=%v; values seen: %v", field, expected, values)
}
