package internal

import (
	"io"
	"log/slog"
)

// NewLogger builds the structured logger used across the engine. Command
// output goes to stdout; diagnostics go here.
func NewLogger(w io.Writer, verbose bool) *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}
