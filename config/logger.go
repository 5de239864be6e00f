package config

import (
	"io"
	"log/slog"
	"strings"

	"github.com/go-logr/logr"
)

// NewLogger builds a slog handler from cfg writing to w and exposes it as
// a logr.Logger. Debug level enables the tracer's V(1) messages.
func (c LogConfig) NewLogger(w io.Writer) logr.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(c.Level)}

	var h slog.Handler = slog.NewJSONHandler(w, opts)
	if c.Format == "text" {
		h = slog.NewTextHandler(w, opts)
	}
	return logr.FromSlogHandler(h)
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
