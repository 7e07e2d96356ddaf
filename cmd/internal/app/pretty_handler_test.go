package app

import (
	"context"
	"io"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"testing"
)

var ansiSeq = regexp.MustCompile(`\x1b\[[0-9;]*m`)

func stripANSI(s string) string { return ansiSeq.ReplaceAllString(s, "") }

func TestPrettyHandlerLineShape(t *testing.T) {
	t.Parallel()

	var buf strings.Builder
	h := newPrettyHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}, false)

	slog.New(h).Info("server.start", "addr", "0.0.0.0:8080", "db_enabled", true)

	line := strings.TrimSuffix(buf.String(), "\n")
	if !strings.Contains(line, "[INFO] server.start") {
		t.Fatalf("line=%q", line)
	}
	if !strings.Contains(line, "addr=0.0.0.0:8080") {
		t.Fatalf("line=%q", line)
	}
	if !strings.Contains(line, "db_enabled=true") {
		t.Fatalf("line=%q", line)
	}
	if strings.Contains(line, "\x1b[") {
		t.Fatalf("color codes with color disabled: %q", line)
	}
}

func TestPrettyHandlerGroupsAndQuoting(t *testing.T) {
	t.Parallel()

	var buf strings.Builder
	h := newPrettyHandler(&buf, nil, false)

	log := slog.New(h).WithGroup("ws").With("conn_id", "c1")
	log.Warn("client.drop", "reason", "slow consumer")

	line := buf.String()
	if !strings.Contains(line, "[WARN] client.drop") {
		t.Fatalf("line=%q", line)
	}
	if !strings.Contains(line, "ws.conn_id=c1") {
		t.Fatalf("line=%q", line)
	}
	if !strings.Contains(line, `ws.reason="slow consumer"`) {
		t.Fatalf("line=%q", line)
	}
}

func TestPrettyHandlerColorsFailures(t *testing.T) {
	t.Parallel()

	var buf strings.Builder
	h := newPrettyHandler(&buf, nil, true)

	slog.New(h).Error("store.close.fail", "err", "boom")

	line := buf.String()
	if !strings.Contains(line, ansiRed+"[ERROR]"+ansiReset) {
		t.Fatalf("level tag not red: %q", line)
	}
	if !strings.Contains(line, "err="+ansiRed+"boom"+ansiReset) {
		t.Fatalf("err value not red: %q", line)
	}
	if got := stripANSI(line); !strings.Contains(got, "[ERROR] store.close.fail err=boom") {
		t.Fatalf("stripped line=%q", got)
	}
}

func TestPrettyHandlerStatusPalette(t *testing.T) {
	t.Parallel()

	cases := []struct {
		code int
		want string
	}{
		{200, ansiGreen},
		{302, ansiCyan},
		{404, ansiYellow},
		{503, ansiRed},
	}
	for _, tc := range cases {
		var buf strings.Builder
		h := newPrettyHandler(&buf, nil, true)
		slog.New(h).Info("http.request", "status", tc.code)

		want := "status=" + tc.want + strconv.Itoa(tc.code) + ansiReset
		if !strings.Contains(buf.String(), want) {
			t.Fatalf("status %d: line=%q want segment %q", tc.code, buf.String(), want)
		}
	}
}

func TestPrettyHandlerEnabled(t *testing.T) {
	t.Parallel()

	h := newPrettyHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelWarn}, false)
	if h.Enabled(context.Background(), slog.LevelInfo) {
		t.Fatal("info enabled at warn threshold")
	}
	if !h.Enabled(context.Background(), slog.LevelError) {
		t.Fatal("error disabled at warn threshold")
	}
}

func TestQuoteIfNeeded(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		want string
	}{
		{"", `""`},
		{"plain", "plain"},
		{"has space", `"has space"`},
		{"key=val", `"key=val"`},
	}
	for _, tc := range cases {
		if got := quoteIfNeeded(tc.in); got != tc.want {
			t.Fatalf("quoteIfNeeded(%q)=%q want=%q", tc.in, got, tc.want)
		}
	}
}
