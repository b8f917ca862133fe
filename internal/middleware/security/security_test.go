package security

import (
	"crypto/tls"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestInspect(t *testing.T) {
	d := NewDetector()
	tests := []struct {
		name   string
		method string
		target string
		ua     string
		xff    string
		want   Reason
	}{
		{"clean chart", http.MethodGet, "/api/charts/expense-pie?filter=last30days", "finboard-report/1", "", ReasonNone},
		{"go client", http.MethodGet, "/api/transactions", "Go-http-client/1.1", "", ReasonNone},
		{"curl", http.MethodGet, "/api/budgets", "curl/8.4.0", "", ReasonNone},
		{"traversal", http.MethodGet, "/api/../.env", "", "", ReasonPattern},
		{"query injection", http.MethodGet, "/api/transactions?filter=1%20union%20select", "", "", ReasonPattern},
		{"scanner", http.MethodGet, "/", "sqlmap/1.7", "", ReasonUserAgent},
		{"trace method", "TRACE", "/", "", "", ReasonMethod},
		{"long url", http.MethodGet, "/api/charts/x?q=" + strings.Repeat("a", 2100), "", "", ReasonLongURL},
		{"proxy chain", http.MethodGet, "/", "", "1.1.1.1,2.2.2.2,3.3.3.3,4.4.4.4,5.5.5.5,6.6.6.6,7.7.7.7", ReasonProxyChains},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(tt.method, "http://localhost"+tt.target, nil)
			r.Header.Set("User-Agent", tt.ua)
			if tt.xff != "" {
				r.Header.Set("X-Forwarded-For", tt.xff)
			}
			if got := d.Inspect(r); got != tt.want {
				t.Errorf("Inspect = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestExtractClientIP(t *testing.T) {
	d := NewDetector()
	tests := []struct {
		name, remote, xff, xri, want string
	}{
		{"direct public", "203.0.113.9:5000", "1.2.3.4", "", "203.0.113.9"},
		{"trusted proxy xff", "10.1.2.3:80", "198.51.100.7, 10.1.2.3", "", "198.51.100.7"},
		{"trusted proxy real ip", "127.0.0.1:80", "", "198.51.100.8", "198.51.100.8"},
		{"trusted proxy garbage", "192.168.1.1:80", "not-an-ip", "", "192.168.1.1"},
		{"unparseable remote", "pipe", "", "", "pipe"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.RemoteAddr = tt.remote
			if tt.xff != "" {
				r.Header.Set("X-Forwarded-For", tt.xff)
			}
			if tt.xri != "" {
				r.Header.Set("X-Real-IP", tt.xri)
			}
			if got := d.ExtractClientIP(r); got != tt.want {
				t.Errorf("ExtractClientIP = %q, want %q", got, tt.want)
			}
		})
	}
	if d.GetMetrics().InvalidIPAttempts != 2 {
		t.Errorf("invalid ip attempts = %d, want 2", d.GetMetrics().InvalidIPAttempts)
	}
}

func TestAddTrustedProxy(t *testing.T) {
	d := NewDetector()
	if err := d.AddTrustedProxy("nope"); err == nil {
		t.Fatal("expected error for bad CIDR")
	}
	if err := d.AddTrustedProxy("203.0.113.0/24"); err != nil {
		t.Fatal(err)
	}
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "203.0.113.5:443"
	r.Header.Set("X-Forwarded-For", "198.51.100.1")
	if got := d.ExtractClientIP(r); got != "198.51.100.1" {
		t.Errorf("got %q", got)
	}
}

func TestDetectorMiddleware(t *testing.T) {
	d := NewDetector()
	h := d.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	tests := []struct {
		method, target, ua string
		want               int
	}{
		{http.MethodGet, "/api/transactions", "", http.StatusNoContent},
		{http.MethodGet, "/.git/config", "", http.StatusBadRequest},
		{"TRACE", "/", "", http.StatusBadRequest},
		{http.MethodGet, "/api/transactions", "nikto", http.StatusNoContent},
	}
	for _, tt := range tests {
		r := httptest.NewRequest(tt.method, tt.target, nil)
		r.Header.Set("User-Agent", tt.ua)
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, r)
		if rr.Code != tt.want {
			t.Errorf("%s %s: status %d, want %d", tt.method, tt.target, rr.Code, tt.want)
		}
	}
	m := d.GetMetrics()
	if m.SuspiciousRequests != 3 || m.BlockedRequests != 2 {
		t.Errorf("metrics = %+v", m)
	}
}

func TestHeadersMiddleware(t *testing.T) {
	h := NewHeadersMiddleware(DefaultHeadersConfig()).Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/budgets", nil))
	for name, want := range map[string]string{
		"X-Content-Type-Options":  "nosniff",
		"X-Frame-Options":         "DENY",
		"Content-Security-Policy": "default-src 'none'; frame-ancestors 'none'; base-uri 'none'",
		"Cache-Control":           "no-store",
	} {
		if got := rr.Header().Get(name); got != want {
			t.Errorf("%s = %q, want %q", name, got, want)
		}
	}
	if rr.Header().Get("Strict-Transport-Security") != "" {
		t.Error("HSTS set on plain HTTP")
	}

	rr = httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	r.TLS = &tls.ConnectionState{}
	h.ServeHTTP(rr, r)
	if got := rr.Header().Get("Strict-Transport-Security"); got != "max-age=31536000; includeSubDomains" {
		t.Errorf("HSTS = %q", got)
	}
	if rr.Header().Get("Cache-Control") != "" {
		t.Error("no-store outside /api/")
	}
}
