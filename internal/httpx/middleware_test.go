package httpx

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
)

func captureLogs(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
	t.Cleanup(func() { slog.SetDefault(prev) })
	return &buf
}

func TestLogRequestsRecordsStatus(t *testing.T) {
	buf := captureLogs(t)
	h := LogRequests(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		_, _ = w.Write([]byte("short and stout"))
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/auth/me", nil))

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("decode log line: %v (%s)", err, buf.String())
	}
	if line["status"] != float64(http.StatusTeapot) || line["path"] != "/api/v1/auth/me" {
		t.Fatalf("unexpected log line: %v", line)
	}
	if line["bytes"] != float64(len("short and stout")) {
		t.Fatalf("unexpected byte count: %v", line["bytes"])
	}
	if line["level"] != "INFO" {
		t.Fatalf("expected INFO, got %v", line["level"])
	}
}

func TestLogRequestsLevels(t *testing.T) {
	tests := []struct {
		path   string
		status int
		level  string
	}{
		{path: "/healthz", status: http.StatusOK, level: "DEBUG"},
		{path: "/api/v1/auth/refresh", status: http.StatusInternalServerError, level: "ERROR"},
		{path: "/api/v1/auth/login/password", status: http.StatusUnauthorized, level: "INFO"},
	}
	for _, tc := range tests {
		t.Run(tc.path, func(t *testing.T) {
			buf := captureLogs(t)
			h := LogRequests(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
			}))
			h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, tc.path, nil))

			var line map[string]any
			if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
				t.Fatalf("decode log line: %v", err)
			}
			if line["level"] != tc.level {
				t.Fatalf("expected %s, got %v", tc.level, line["level"])
			}
		})
	}
}
