package app

import (
	"context"
	"log/slog"
	"testing"
)

func TestParseLogLevel(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		want slog.Level
	}{
		{in: "debug", want: slog.LevelDebug},
		{in: "INFO", want: slog.LevelInfo},
		{in: " warn ", want: slog.LevelWarn},
		{in: "warning", want: slog.LevelWarn},
		{in: "Error", want: slog.LevelError},
		{in: "verbose", want: slog.LevelInfo},
		{in: "", want: slog.LevelInfo},
	}

	for _, tc := range cases {
		if got := parseLogLevel(tc.in); got != tc.want {
			t.Fatalf("parseLogLevel(%q)=%v want=%v", tc.in, got, tc.want)
		}
	}
}

func TestNewLoggerFormatSelection(t *testing.T) {
	t.Setenv("ATELIER_LOG_FORMAT", "pretty")
	t.Setenv("ATELIER_LOG_COLOR", "false")
	if _, ok := NewLogger("debug").Handler().(*prettyHandler); !ok {
		t.Fatal("pretty format did not select the pretty handler")
	}

	t.Setenv("ATELIER_LOG_FORMAT", "json")
	if _, ok := NewLogger("info").Handler().(*prettyHandler); ok {
		t.Fatal("json format selected the pretty handler")
	}
}

func TestNewLoggerAppliesLevel(t *testing.T) {
	t.Setenv("ATELIER_LOG_FORMAT", "json")

	log := NewLogger("warn")
	if log.Enabled(context.Background(), slog.LevelInfo) {
		t.Fatal("info enabled at warn threshold")
	}
	if !log.Enabled(context.Background(), slog.LevelError) {
		t.Fatal("error disabled at warn threshold")
	}
}
