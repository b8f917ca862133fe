// Package security resolves client addresses behind trusted proxies, flags
// probing traffic and sets response hardening headers.
package security

import (
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"

	applog "finboard/internal/log"
)

// DetectionMetrics tracks security detection events
type DetectionMetrics struct {
	SuspiciousRequests int64 `json:"suspiciousRequests"`
	BlockedRequests    int64 `json:"blockedRequests"`
	InvalidIPAttempts  int64 `json:"invalidIpAttempts"`
}

// Detector handles suspicious request detection
type Detector struct {
	suspicious atomic.Int64
	blocked    atomic.Int64
	invalidIP  atomic.Int64

	mu             sync.RWMutex
	trustedProxies []*net.IPNet
}

// NewDetector trusts loopback and private networks as proxies.
func NewDetector() *Detector {
	return &Detector{
		trustedProxies: []*net.IPNet{
			parseCIDR("127.0.0.0/8"),
			parseCIDR("10.0.0.0/8"),
			parseCIDR("172.16.0.0/12"),
			parseCIDR("192.168.0.0/16"),
			parseCIDR("::1/128"),
		},
	}
}

func parseCIDR(cidr string) *net.IPNet {
	_, network, err := net.ParseCIDR(cidr)
	if err != nil {
		panic(fmt.Sprintf("failed to parse trusted proxy CIDR %s: %v", cidr, err))
	}
	return network
}

var suspiciousPatterns = []string{
	"../", "..\\", ".env", "wp-admin", "phpmyadmin",
	"admin.php", "config.php", ".git", ".ssh",
	"eval(", "javascript:", "<script", "union select",
	"etc/passwd", "cmd.exe",
}

// Scanner user agents. Plain HTTP clients are expected: the report CLI and
// scripts talk to the API directly.
var suspiciousAgents = []string{
	"sqlmap", "nmap", "nikto", "gobuster", "dirb", "masscan", "zgrab",
}

var unusualMethods = map[string]bool{
	"TRACE": true, "TRACK": true, "DEBUG": true, "CONNECT": true,
}

// Reason explains why a request was flagged. Empty means clean.
type Reason string

const (
	ReasonNone        Reason = ""
	ReasonPattern     Reason = "attack_pattern"
	ReasonUserAgent   Reason = "scanner_user_agent"
	ReasonMethod      Reason = "unusual_method"
	ReasonLongURL     Reason = "long_url"
	ReasonProxyChains Reason = "forwarding_chain"
)

// Inspect classifies a request. The first matching rule wins.
func (d *Detector) Inspect(r *http.Request) Reason {
	path := strings.ToLower(r.URL.Path)
	query := strings.ToLower(r.URL.RawQuery)
	if q, err := url.QueryUnescape(query); err == nil {
		query = q
	}
	for _, p := range suspiciousPatterns {
		if strings.Contains(path, p) || strings.Contains(query, p) {
			return ReasonPattern
		}
	}
	ua := strings.ToLower(r.Header.Get("User-Agent"))
	for _, a := range suspiciousAgents {
		if strings.Contains(ua, a) {
			return ReasonUserAgent
		}
	}
	if unusualMethods[r.Method] {
		return ReasonMethod
	}
	if len(r.URL.String()) > 2048 {
		return ReasonLongURL
	}
	if strings.Count(r.Header.Get("X-Forwarded-For"), ",") > 5 {
		return ReasonProxyChains
	}
	return ReasonNone
}

// DetectSuspiciousRequest reports whether Inspect flags r and counts it.
func (d *Detector) DetectSuspiciousRequest(r *http.Request) bool {
	if d.Inspect(r) == ReasonNone {
		return false
	}
	d.suspicious.Add(1)
	return true
}

// ExtractClientIP returns the connecting address, or the first valid
// forwarded address when the connection comes from a trusted proxy.
func (d *Detector) ExtractClientIP(r *http.Request) string {
	directIP, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		directIP = r.RemoteAddr
	}

	parsedDirectIP := net.ParseIP(directIP)
	if parsedDirectIP == nil {
		d.invalidIP.Add(1)
		return directIP
	}

	if d.isTrustedProxy(parsedDirectIP) {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			first, _, _ := strings.Cut(xff, ",")
			first = strings.TrimSpace(first)
			if net.ParseIP(first) != nil {
				return first
			}
			d.invalidIP.Add(1)
		}
		if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
			if net.ParseIP(xri) != nil {
				return xri
			}
			d.invalidIP.Add(1)
		}
	}
	return directIP
}

func (d *Detector) isTrustedProxy(ip net.IP) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, network := range d.trustedProxies {
		if network.Contains(ip) {
			return true
		}
	}
	return false
}

// GetMetrics returns current security metrics
func (d *Detector) GetMetrics() DetectionMetrics {
	return DetectionMetrics{
		SuspiciousRequests: d.suspicious.Load(),
		BlockedRequests:    d.blocked.Load(),
		InvalidIPAttempts:  d.invalidIP.Load(),
	}
}

// AddTrustedProxy adds a trusted proxy network
func (d *Detector) AddTrustedProxy(cidr string) error {
	_, network, err := net.ParseCIDR(cidr)
	if err != nil {
		return fmt.Errorf("invalid CIDR %s: %w", cidr, err)
	}
	d.mu.Lock()
	d.trustedProxies = append(d.trustedProxies, network)
	d.mu.Unlock()
	return nil
}

// Middleware logs flagged requests. Unusual methods and attack patterns are
// answered with 400 before reaching next; the other reasons are only logged.
func (d *Detector) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reason := d.Inspect(r)
		if reason == ReasonNone {
			next.ServeHTTP(w, r)
			return
		}
		d.suspicious.Add(1)
		logger := applog.FromContext(r.Context()).WithComponent(applog.ComponentSecurity)
		logger.WarnContext(r.Context(), "Suspicious request",
			"reason", string(reason),
			applog.FieldMethod, r.Method,
			applog.FieldPath, r.URL.Path,
			applog.FieldClientIP, d.ExtractClientIP(r))

		if reason == ReasonMethod || reason == ReasonPattern {
			d.blocked.Add(1)
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"request rejected"}`))
			return
		}
		next.ServeHTTP(w, r)
	})
}
