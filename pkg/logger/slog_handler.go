// Package logger configures the process-wide structured logger.
package logger

import (
	"log/slog"
	"os"
	"strings"

	"github.com/dusted-go/logging/prettylog"
)

// New builds a slog handler for the given format. "pretty" renders
// human-readable output for interactive use, "json" and "text" are for
// service deployments behind a log collector.
func New(format string, logOpts slog.HandlerOptions) slog.Handler {
	switch strings.ToLower(format) {
	case "json":
		return slog.NewJSONHandler(os.Stdout, &logOpts)
	case "text":
		return slog.NewTextHandler(os.Stdout, &logOpts)
	default:
		return prettylog.New(&logOpts, prettylog.WithDestinationWriter(os.Stdout))
	}
}

// Setup installs the default logger. Unknown level names fall back to info.
func Setup(level, format string) {
	slog.SetDefault(slog.New(New(format, slog.HandlerOptions{Level: ParseLevel(level)})))
}

// ParseLevel maps a level name onto its slog level.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
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
