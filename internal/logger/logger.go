// Package logger provides structured logging setup for codevet.
package logger

import (
	"log/slog"
	"os"
	"strings"

	"github.com/codevet/codevet/internal/config"
)

// Closer flushes and stops the logging pipeline.
type Closer interface {
	Close()
}

// nopCloser is a no-op Closer for synchronous mode.
type nopCloser struct{}

func (nopCloser) Close() {}

// New creates a *slog.Logger from the given Logging config. Output is JSON
// to stderr with a "service" attribute on every record. Log output must not
// touch stdout: the MCP tool server owns stdout for protocol framing.
// When cfg.Async is set the records are handed off to a background drainer;
// the returned Closer flushes it on shutdown.
func New(cfg config.Logging) (*slog.Logger, Closer) {
	level := parseLevel(cfg.Level)

	var handler slog.Handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})

	closer := Closer(nopCloser{})
	if cfg.Async {
		ah := NewAsyncHandler(handler, 1024)
		handler = ah
		closer = ah
	}

	return slog.New(handler).With("service", cfg.Service), closer
}

// parseLevel converts a string log level to slog.Level.
func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
