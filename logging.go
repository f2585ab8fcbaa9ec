package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
)

// newLogger returns a text logger writing to w. Info is the default level;
// verbose selects Debug.
func newLogger(w io.Writer, verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// logOutput picks the log destination. A named file always wins; otherwise
// logs go to fallback, or nowhere while the terminal UI owns the screen.
func logOutput(logFile string, fallback io.Writer, interactive bool) (io.Writer, func() error, error) {
	nop := func() error { return nil }
	switch {
	case logFile != "":
		f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644) //nolint:gosec // User-provided log path is intentional
		if err != nil {
			return nil, nop, fmt.Errorf("open log file: %w", err)
		}
		return f, f.Close, nil
	case interactive:
		return io.Discard, nop, nil
	default:
		return fallback, nop, nil
	}
}
