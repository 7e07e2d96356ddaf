package app

import (
	"log/slog"
	"os"
	"strings"
)

// Logger is the app-wide logger type (slog).
type Logger = *slog.Logger

// NewLogger builds the process logger and installs it as the slog default.
// ATELIER_LOG_FORMAT selects the output: "json" (the default) for
// machine-readable lines, "pretty" for the colorized single-line form used
// during local development. ATELIER_LOG_COLOR disables color for terminals
// that cannot render it.
func NewLogger(level string) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level:     parseLogLevel(level),
		AddSource: true,
	}

	var h slog.Handler
	switch strings.ToLower(EnvString("ATELIER_LOG_FORMAT", "json")) {
	case "pretty":
		h = newPrettyHandler(os.Stdout, opts, EnvBool("ATELIER_LOG_COLOR", true))
	default:
		h = slog.NewJSONHandler(os.Stdout, opts)
	}

	log := slog.New(h)
	slog.SetDefault(log)
	return log
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
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
