// Package logging configures the process-wide structured logger.
package logging

import (
	"io"
	"log/slog"
	"os"
)

// New builds a slog.Logger. When json is true (typically because stdout is
// not a terminal, or the operator asked for it explicitly) records are
// emitted as JSON; otherwise a human-readable text handler is used.
func New(w io.Writer, level slog.Level, json bool) *slog.Logger {
	if w == nil {
		w = os.Stderr
	}
	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if json {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler)
}

// Default returns a logger writing text to stderr at Info level, suitable
// for use before configuration has been loaded.
func Default() *slog.Logger {
	return New(os.Stderr, slog.LevelInfo, false)
}
