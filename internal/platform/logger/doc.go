// Package logger provides structured logging for dbtestkit using the standard
// library log/slog package.
//
// Setup builds the process logger from config.LogConfig. Library packages
// accept a *slog.Logger or pull one from the context with
// FromContextOrDefault; the build run id travels in the context and is
// attached to every record logged that way.
package logger
