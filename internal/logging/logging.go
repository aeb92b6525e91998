// Package logging installs the process-wide slog handler.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Setup points slog at stderr plus the given log file, at the level
// selected by the LOG_LEVEL environment variable (default INFO).
// Returns a close function for the log file.
func Setup(logFile string) func() error {
	level := parseLevel(os.Getenv("LOG_LEVEL"))

	var w io.Writer = os.Stderr
	closeFn := func() error { return nil }
	if logFile != "" {
		f, err := os.OpenFile(logFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			slog.Warn("logging: cannot open log file, using stderr only", "path", logFile, "error", err)
		} else {
			w = io.MultiWriter(os.Stderr, f)
			closeFn = f.Close
		}
	}

	logger := slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)
	return closeFn
}

func parseLevel(s string) slog.Level {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
