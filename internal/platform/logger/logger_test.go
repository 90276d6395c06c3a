package logger_test

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/phrazzld/dbtestkit/internal/config"
	"github.com/phrazzld/dbtestkit/internal/platform/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearCIEnv(t *testing.T) {
	t.Helper()
	for _, name := range []string{"CI", "GITHUB_ACTIONS", "GITHUB_WORKSPACE", "GITLAB_CI", "CI_PROJECT_DIR", "JENKINS_URL", "TRAVIS", "CIRCLECI"} {
		t.Setenv(name, "")
	}
}

func restoreDefault(t *testing.T) {
	t.Helper()
	original := slog.Default()
	t.Cleanup(func() { slog.SetDefault(original) })
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		name  string
		want  slog.Level
		valid bool
	}{
		{"debug", slog.LevelDebug, true},
		{"INFO", slog.LevelInfo, true},
		{"warn", slog.LevelWarn, true},
		{"error", slog.LevelError, true},
		{"verbose", slog.LevelInfo, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := logger.ParseLevel(tt.name)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.valid, ok)
		})
	}
}

func TestSetupJSON(t *testing.T) {
	clearCIEnv(t)
	restoreDefault(t)
	buf := &logger.TestLogBuffer{}

	l, err := logger.SetupWithWriter(config.LogConfig{Level: "warn", Format: "json"}, buf)
	require.NoError(t, err)
	require.NotNil(t, l)
	assert.Same(t, l, slog.Default(), "Setup installs the default logger")

	l.Info("dropped")
	l.Warn("kept", "database", "app_1")

	entries, err := buf.GetLogEntries()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "kept", entries[0]["msg"])
	assert.Equal(t, "app_1", entries[0]["database"])
	assert.NotContains(t, entries[0], "ci_provider")
}

func TestSetupText(t *testing.T) {
	clearCIEnv(t)
	restoreDefault(t)
	var buf bytes.Buffer

	l, err := logger.SetupWithWriter(config.LogConfig{Level: "debug", Format: "text"}, &buf)
	require.NoError(t, err)
	l.Debug("hello", "n", 1)
	assert.Contains(t, buf.String(), "msg=hello n=1")
}

func TestSetupInvalidLevelFallsBackToInfo(t *testing.T) {
	clearCIEnv(t)
	restoreDefault(t)
	buf := &logger.TestLogBuffer{}

	l, err := logger.SetupWithWriter(config.LogConfig{Level: "loud", Format: "json"}, buf)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "invalid log level configured")

	buf.Reset()
	l.Debug("hidden")
	l.Info("shown")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
}

func TestSetupUnsupportedFormat(t *testing.T) {
	restoreDefault(t)
	_, err := logger.SetupWithWriter(config.LogConfig{Level: "info", Format: "xml"}, &bytes.Buffer{})
	assert.Error(t, err)
}

func TestSetupInCIAddsMetadata(t *testing.T) {
	clearCIEnv(t)
	restoreDefault(t)
	t.Setenv("GITHUB_ACTIONS", "true")
	t.Setenv("GITHUB_WORKSPACE", "/work")
	t.Setenv("GITHUB_SHA", "abc123")
	buf := &logger.TestLogBuffer{}

	l, err := logger.SetupWithWriter(config.LogConfig{Level: "info", Format: "json"}, buf)
	require.NoError(t, err)
	l.With("database", "app_1").Info("built")

	logger.AssertLogField(t, buf, "ci_provider", "github_actions")
	logger.AssertLogField(t, buf, "ci_commit", "abc123")
	logger.AssertLogField(t, buf, "database", "app_1")
}

func TestContextHelpers(t *testing.T) {
	_, ok := logger.FromContext(context.Background())
	assert.False(t, ok)
	assert.Same(t, slog.Default(), logger.FromContextOrDefault(context.Background()))

	capture := logger.NewLogCaptureContext(t)
	got, ok := logger.FromContext(capture.Context)
	require.True(t, ok)
	assert.Same(t, capture.Logger, got)
	assert.Equal(t, "test-"+t.Name(), logger.RunIDFromContext(capture.Context))

	logger.FromContextOrDefault(capture.Context).Info("dropping generation")
	logger.AssertLogField(t, capture.Buffer, "run_id", "test-"+t.Name())
	logger.AssertLogContains(t, capture.Buffer, "dropping generation")
}

func TestCaptureLogs(t *testing.T) {
	out := logger.CaptureLogs(t, func(l *slog.Logger) {
		l.Debug("SQL", "query", "SELECT 1")
	})
	assert.Contains(t, out, `"query":"SELECT 1"`)
}

func TestEntriesWithMessage(t *testing.T) {
	l, buf := logger.GetTestLogger(t)
	l.Info("drop", "name", "app_1")
	l.Info("keep", "name", "app_2")
	l.Info("drop", "name", "app_3")

	entries, err := buf.EntriesWithMessage("drop")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "app_3", entries[1]["name"])
}
