package logger

import (
	"log/slog"
	"os"
)

// New returns the structured JSON logger services log through. Level defaults
// to info; CREDENCE_LOG_LEVEL=debug enables debug output.
func New() *slog.Logger {
	level := slog.LevelInfo
	if os.Getenv("CREDENCE_LOG_LEVEL") == "debug" {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
}
