package trace

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	applog "finboard/internal/log"
)

func TestMiddlewareAssignsRequestID(t *testing.T) {
	var buf bytes.Buffer
	logger := applog.New(applog.Config{Level: slog.LevelDebug, Component: applog.ComponentHTTP, Output: &buf})
	m := NewMiddleware(func(*http.Request) string { return "10.0.0.1" }, logger)

	var seen string
	h := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
		applog.FromContext(r.Context()).Info("handler ran")
		w.WriteHeader(http.StatusNotFound)
	}))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/charts/nope", nil))

	if !strings.HasPrefix(seen, "req_") {
		t.Fatalf("request id = %q", seen)
	}
	if got := rr.Header().Get(HeaderRequestID); got != seen {
		t.Errorf("echoed id = %q, want %q", got, seen)
	}
	out := buf.String()
	for _, want := range []string{
		"HTTP request started",
		"handler ran",
		"level=WARN msg=\"HTTP request completed\"",
		"status_code=404",
		"request_id=" + seen,
		"client_ip=10.0.0.1",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("log missing %q:\n%s", want, out)
		}
	}
	if got := m.GetMetrics().TotalRequests; got != 1 {
		t.Errorf("TotalRequests = %d", got)
	}
}

func TestMiddlewareHonorsClientRequestID(t *testing.T) {
	m := NewMiddleware(nil, applog.New(applog.Config{Output: &bytes.Buffer{}}))
	h := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	tests := []struct {
		name, header string
		keep         bool
	}{
		{"valid", "report-42_a", true},
		{"spaces", "bad id", false},
		{"too long", strings.Repeat("a", 65), false},
		{"injection", "id\r\nX-Evil: 1", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
			req.Header.Set(HeaderRequestID, tt.header)
			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, req)
			got := rr.Header().Get(HeaderRequestID)
			if tt.keep && got != tt.header {
				t.Errorf("id = %q, want %q", got, tt.header)
			}
			if !tt.keep && !strings.HasPrefix(got, "req_") {
				t.Errorf("id = %q, want generated", got)
			}
		})
	}
}

func TestResponseWriterKeepsFirstStatus(t *testing.T) {
	rw := &responseWriter{ResponseWriter: httptest.NewRecorder(), statusCode: http.StatusOK}
	_, _ = rw.Write([]byte("x"))
	rw.WriteHeader(http.StatusInternalServerError)
	if rw.statusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", rw.statusCode)
	}
}
