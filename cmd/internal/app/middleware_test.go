package app

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestRequestLogLevel(t *testing.T) {
	t.Parallel()

	cases := []struct {
		path   string
		status int
		want   slog.Level
	}{
		{"/api/rooms/tenant:t1/messages", 200, slog.LevelInfo},
		{"/ws", 401, slog.LevelWarn},
		{"/api/rooms/x/messages", 500, slog.LevelError},
		{"/healthz", 200, slog.LevelDebug},
		{"/metrics", 200, slog.LevelDebug},
		{"/readyz", 503, slog.LevelError},
	}

	for _, tc := range cases {
		if got := requestLogLevel(tc.path, tc.status); got != tc.want {
			t.Fatalf("requestLogLevel(%q, %d)=%v want=%v", tc.path, tc.status, got, tc.want)
		}
	}
}

func TestWithRequestLoggingEmitsRequestLine(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	body := []byte("short and stout")
	h := WithRequestLogging(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		_, _ = w.Write(body)
	}), log)

	req := httptest.NewRequest(http.MethodGet, "/api/rooms/tenant:t1/messages", nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("decode log line: %v (%q)", err, buf.String())
	}
	if line["msg"] != "http.request" {
		t.Fatalf("msg=%v", line["msg"])
	}
	if line["level"] != "WARN" {
		t.Fatalf("level=%v", line["level"])
	}
	if line["method"] != http.MethodGet {
		t.Fatalf("method=%v", line["method"])
	}
	if line["path"] != "/api/rooms/tenant:t1/messages" {
		t.Fatalf("path=%v", line["path"])
	}
	if line["status"] != float64(http.StatusTeapot) {
		t.Fatalf("status=%v", line["status"])
	}
	if line["bytes"] != float64(len(body)) {
		t.Fatalf("bytes=%v want=%d", line["bytes"], len(body))
	}
}

func TestWithRequestLoggingDefaultsTo200(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := slog.New(slog.NewJSONHandler(&buf, nil))

	h := WithRequestLogging(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}), log)

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/rooms/r/messages", nil))

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("decode log line: %v", err)
	}
	if line["status"] != float64(http.StatusOK) {
		t.Fatalf("status=%v want=200", line["status"])
	}
	if line["level"] != "INFO" {
		t.Fatalf("level=%v", line["level"])
	}
}

func TestResponseRecorderHijackRequiresSupport(t *testing.T) {
	t.Parallel()

	rec := &responseRecorder{ResponseWriter: httptest.NewRecorder()}
	if _, _, err := rec.Hijack(); err == nil {
		t.Fatal("expected error when the underlying writer cannot hijack")
	}
}

func TestResponseRecorderUnwrap(t *testing.T) {
	t.Parallel()

	under := httptest.NewRecorder()
	rec := &responseRecorder{ResponseWriter: under}
	if rec.Unwrap() != under {
		t.Fatal("Unwrap must return the wrapped writer")
	}
}
