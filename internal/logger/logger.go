// ABOUTME: Structured logger construction
// ABOUTME: Builds a slog.Logger from level and format settings
package logger

import (
	"io"
	"log/slog"
	"strings"
)

// New returns a structured logger writing to w.
// level: "debug", "info", "warn", "error" (default "info").
// format: "json" or "text" (default "text").
func New(w io.Writer, level, format string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: lvl}

	var h slog.Handler
	if strings.ToLower(format) == "json" {
		h = slog.NewJSONHandler(w, opts)
	} else {
		h = slog.NewTextHandler(w, opts)
	}

	return slog.New(h)
}
