package http

import (
	"context"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"finboard/internal/core"
)

// appMetrics counts API activity for /metrics.
type appMetrics struct {
	uptime           time.Time
	statementsParsed atomic.Int64
	statementsImport atomic.Int64
	rowsImported     atomic.Int64
	chartsRendered   atomic.Int64
	preferencesAdded atomic.Int64
}

func newAppMetrics() *appMetrics {
	return &appMetrics{uptime: time.Now()}
}

// handleHealth performs basic liveness check
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if !allowMethods(w, r, http.MethodGet, http.MethodHead) {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"uptime":    time.Since(s.metrics.uptime).Round(time.Second).String(),
	})
}

// handleReady checks that the transaction store answers.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if !allowMethods(w, r, http.MethodGet, http.MethodHead) {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	status := "ready"
	httpStatus := http.StatusOK
	checks := make(map[string]any)

	if s.store == nil {
		checks["store"] = "not_configured"
		status, httpStatus = "not_ready", http.StatusServiceUnavailable
	} else if _, err := s.store.ListBudgets(ctx, core.FilterAllTime); err != nil {
		checks["store"] = fmt.Sprintf("failed: %v", err)
		status, httpStatus = "not_ready", http.StatusServiceUnavailable
	} else {
		checks["store"] = "ok"
	}

	checks["cache"] = map[string]any{
		"transaction_lists": s.transactions.Stats().Size,
		"status":            "ok",
	}
	checks["rate_limiter"] = map[string]any{
		"active_clients": s.rateLimiter.ActiveClients(),
		"status":         "ok",
	}
	checks["preferences"] = map[string]any{
		"pending": s.preferences.Pending(),
	}

	writeJSON(w, httpStatus, map[string]any{
		"status":    status,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"checks":    checks,
	})
}

// handleMetrics provides application and security metrics in plain text format
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if !allowMethods(w, r, http.MethodGet) {
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")

	securityMetrics := s.detector.GetMetrics()
	rateLimitMetrics := s.rateLimiter.GetMetrics()
	traceMetrics := s.tracer.GetMetrics()
	cacheStats := s.transactions.Stats()

	w.WriteHeader(http.StatusOK)

	counter := func(name, help string, v int64) {
		fmt.Fprintf(w, "# HELP %s %s\n# TYPE %s counter\n%s %d\n\n", name, help, name, name, v)
	}
	gauge := func(name, help string, v int64) {
		fmt.Fprintf(w, "# HELP %s %s\n# TYPE %s gauge\n%s %d\n\n", name, help, name, name, v)
	}

	counter("http_requests_total", "Total number of HTTP requests", traceMetrics.TotalRequests)
	gauge("http_response_time_avg_microseconds", "Average response time", traceMetrics.AverageResponseTime)
	counter("statements_parsed_total", "Statement files parsed", s.metrics.statementsParsed.Load())
	counter("statements_imported_total", "Statements imported", s.metrics.statementsImport.Load())
	counter("transactions_imported_total", "Transaction rows imported", s.metrics.rowsImported.Load())
	counter("charts_rendered_total", "Chart responses rendered", s.metrics.chartsRendered.Load())
	counter("preferences_accepted_total", "Category preferences accepted", s.metrics.preferencesAdded.Load())
	counter("cache_hits_total", "Transaction cache hits", cacheStats.Hits)
	counter("cache_misses_total", "Transaction cache misses", cacheStats.Misses)
	gauge("cache_entries", "Cached transaction lists", int64(cacheStats.Size))
	counter("rate_limit_rejections_total", "Requests rejected by the rate limiter", rateLimitMetrics.Rejected)
	gauge("active_rate_limit_clients", "Currently tracked rate limit clients", rateLimitMetrics.ClientCount)
	counter("suspicious_requests_total", "Suspicious requests detected", securityMetrics.SuspiciousRequests)
	counter("blocked_requests_total", "Suspicious requests rejected", securityMetrics.BlockedRequests)
	gauge("uptime_seconds", "Application uptime in seconds", int64(time.Since(s.metrics.uptime).Seconds()))
}
