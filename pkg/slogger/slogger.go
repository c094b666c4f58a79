// Package slogger configures the process-wide slog logger from LOG_LEVEL.
//
// Valid LOG_LEVEL values: "debug", "info", "warn", "error". Default: "info".
package slogger

import (
	"io"
	"log/slog"
	"strings"
)

// Init installs a text handler writing to w as the default logger.
func Init(w io.Writer, levelName string) {
	handler := slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: ParseLevel(levelName),
	})
	slog.SetDefault(slog.New(handler))
}

// ParseLevel converts a level name to slog.Level, falling back to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
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
