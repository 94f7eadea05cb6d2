package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Setup creates a configured *slog.Logger, sets it as the default, and returns it.
// The level parameter accepts: "debug", "info", "warn", "error" (case-insensitive).
// Defaults to info if the level string is unrecognized. format "json" selects
// the JSON handler; anything else logs text.
func Setup(level, format string) *slog.Logger {
	logger := New(os.Stderr, level, format)
	slog.SetDefault(logger)
	return logger
}

// New builds a logger writing to w without touching the default.
func New(w io.Writer, level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: ParseLevel(level)}

	var handler slog.Handler
	if strings.EqualFold(strings.TrimSpace(format), "json") {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	return slog.New(handler)
}

func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
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
