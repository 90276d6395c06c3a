package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/phrazzld/dbtestkit/internal/ciutil"
	"github.com/phrazzld/dbtestkit/internal/config"
)

// ParseLevel maps a configured level name onto a slog.Level. The second
// result is false for unknown names, which map to info.
func ParseLevel(name string) (slog.Level, bool) {
	switch strings.ToLower(name) {
	case "debug":
		return slog.LevelDebug, true
	case "info":
		return slog.LevelInfo, true
	case "warn":
		return slog.LevelWarn, true
	case "error":
		return slog.LevelError, true
	}
	return slog.LevelInfo, false
}

// Setup initializes the logging system from cfg, writing to stderr so that
// stdout stays free for command output. The logger is also installed as the
// slog default.
func Setup(cfg config.LogConfig) (*slog.Logger, error) {
	return SetupWithWriter(cfg, os.Stderr)
}

// SetupWithWriter is Setup writing to out.
func SetupWithWriter(cfg config.LogConfig, out io.Writer) (*slog.Logger, error) {
	name := cfg.Level
	if name == "" {
		name = ciutil.DefaultLogLevel
	}
	level, ok := ParseLevel(name)
	if !ok {
		tmpLogger := slog.New(slog.NewTextHandler(out, nil))
		tmpLogger.Warn("invalid log level configured, using default level",
			"configured_level", cfg.Level,
			"default_level", "info")
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	switch strings.ToLower(cfg.Format) {
	case "", "json":
		if ciutil.IsCI() {
			handler = NewCIHandler(out, opts)
		} else {
			handler = slog.NewJSONHandler(out, opts)
		}
	case "text":
		handler = slog.NewTextHandler(out, opts)
	default:
		return nil, fmt.Errorf("unsupported log format %q", cfg.Format)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger, nil
}
