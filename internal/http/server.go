package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"finboard/internal/analytics"
	"finboard/internal/archive"
	"finboard/internal/backend"
	"finboard/internal/cache"
	"finboard/internal/kv"
	applog "finboard/internal/log"
	"finboard/internal/middleware/ratelimit"
	"finboard/internal/middleware/security"
	"finboard/internal/middleware/trace"
	"finboard/internal/services"
	"finboard/internal/statements"
)

// Deps are the collaborators behind the API. Only Store is required; the
// rest default to in-process implementations built on Store.
type Deps struct {
	Store       backend.Backend
	KV          kv.Store
	Budgets     *services.BudgetService
	Preferences *services.PreferenceBatcher
	Importer    *statements.Importer
	Archive     archive.Archive
	Logger      *applog.Logger
}

// Options tunes limits and caching.
type Options struct {
	RateLimitPerMinute int
	MaxUploadBytes     int64
	CacheSize          int
	CacheTTL           time.Duration
	CleanupInterval    time.Duration
	PreferenceDelay    time.Duration
}

func (o Options) withDefaults() Options {
	if o.MaxUploadBytes <= 0 {
		o.MaxUploadBytes = 10 << 20
	}
	if o.CacheSize <= 0 {
		o.CacheSize = 100
	}
	if o.CacheTTL <= 0 {
		o.CacheTTL = 5 * time.Minute
	}
	if o.CleanupInterval <= 0 {
		o.CleanupInterval = 10 * time.Minute
	}
	if o.PreferenceDelay <= 0 {
		o.PreferenceDelay = 2 * time.Second
	}
	return o
}

type Server struct {
	http.Server

	store       backend.Backend
	kv          kv.Store
	budgets     *services.BudgetService
	preferences *services.PreferenceBatcher
	importer    *statements.Importer
	archive     archive.Archive
	visibility  *analytics.VisibilityStore
	tiers       *analytics.TierStore
	logger      *applog.Logger
	opts        Options

	transactions *transactionCache
	caches       *cache.Manager
	rateLimiter  *ratelimit.Limiter
	detector     *security.Detector
	tracer       *trace.Middleware
	metrics      *appMetrics

	shutdownOnce sync.Once
}

// NewServer wires routes and middleware, returning a ready-to-run server.
func NewServer(addr string, deps Deps, opts Options) *Server {
	opts = opts.withDefaults()
	logger := deps.Logger
	if logger == nil {
		logger = applog.FromContext(context.Background())
	}
	logger = logger.WithComponent(applog.ComponentHTTP)

	store := deps.KV
	if store == nil {
		store = kv.NewMemory()
	}
	budgets := deps.Budgets
	if budgets == nil {
		budgets = services.NewBudgetService(deps.Store, store)
	}
	prefs := deps.Preferences
	if prefs == nil {
		prefs = services.NewPreferenceBatcher(deps.Store, opts.PreferenceDelay)
	}
	importer := deps.Importer
	if importer == nil {
		importer = statements.NewImporter(deps.Store, nil, nil)
	}
	arch := deps.Archive
	if arch == nil {
		arch = archive.Nop{}
	}

	mux := http.NewServeMux()
	s := &Server{
		Server: http.Server{
			Addr:              addr,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       60 * time.Second,
			WriteTimeout:      60 * time.Second,
			IdleTimeout:       120 * time.Second,
		},
		store:        deps.Store,
		kv:           store,
		budgets:      budgets,
		preferences:  prefs,
		importer:     importer,
		archive:      arch,
		visibility:   analytics.NewVisibilityStore(store),
		tiers:        analytics.NewTierStore(store),
		logger:       logger,
		opts:         opts,
		transactions: newTransactionCache(deps.Store, opts.CacheSize, opts.CacheTTL),
		caches:       cache.NewManager(),
		rateLimiter:  ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: opts.RateLimitPerMinute}),
		detector:     security.NewDetector(),
		metrics:      newAppMetrics(),
	}
	s.tracer = trace.NewMiddleware(s.detector.ExtractClientIP, logger)

	s.caches.Register(s.transactions.Cleaner())
	if c, ok := store.(*kv.Cached); ok {
		s.caches.Register(c.Cleaner())
	}
	s.caches.StartCleanup(opts.CleanupInterval)

	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/readyz", s.handleReady)
	mux.HandleFunc("/metrics", s.handleMetrics)

	mux.HandleFunc("/api/transactions", s.handleTransactions)
	mux.HandleFunc("/api/transactions/preferences", s.handlePreferences)
	mux.HandleFunc("/api/budgets", s.handleBudgets)
	mux.HandleFunc("/api/statements/parse", s.handleParseStatement)
	mux.HandleFunc("/api/statements/import", s.handleImportStatement)

	mux.HandleFunc("/api/charts/{chart}", s.handleChart)
	mux.HandleFunc("/api/visibility/{chart}", s.handleVisibility)
	mux.HandleFunc("/api/visibility/{chart}/toggle", s.handleVisibilityToggle)
	mux.HandleFunc("/api/tiers/overrides", s.handleTierOverrides)
	mux.HandleFunc("/api/tiers/overrides/{category}", s.handleTierOverride)
	mux.HandleFunc("/api/rings/categories", s.handleRingCategories)
	mux.HandleFunc("/api/layout", s.handleLayout)

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		NotFoundError("not found").Write(w)
	})

	limited := s.rateLimiter.Middleware(s.detector.ExtractClientIP, s.onRateLimited,
		http.MethodPost, http.MethodPut, http.MethodDelete)
	headers := security.NewHeadersMiddleware(security.DefaultHeadersConfig())

	var h http.Handler = mux
	h = limited(h)
	h = headers.Middleware(h)
	h = s.detector.Middleware(h)
	h = s.tracer.Middleware(h)
	s.Handler = h

	return s
}

func (s *Server) onRateLimited(w http.ResponseWriter, r *http.Request) {
	applog.FromContext(r.Context()).WarnContext(r.Context(), "Rate limit exceeded",
		applog.FieldComponent, applog.ComponentRateLimit,
		applog.FieldClientIP, s.detector.ExtractClientIP(r),
		applog.FieldMethod, r.Method,
		applog.FieldPath, r.URL.Path)
	ErrorResponse(http.StatusTooManyRequests, "rate limit exceeded, try again later").Write(w)
}

// Shutdown stops the listener, flushes pending preferences and stops the
// background sweepers. It is safe to call more than once.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		shutdownErr = s.Server.Shutdown(ctx)
		if err := s.preferences.Close(ctx); err != nil {
			s.logger.WarnContext(ctx, "Failed to flush preferences on shutdown", applog.FieldError, err)
		}
		s.caches.Stop()
		s.rateLimiter.Stop()
	})
	return shutdownErr
}

// InvalidateTransactions drops cached transaction lists. Imports call it; so
// does anything else that writes transactions behind the server's back.
func (s *Server) InvalidateTransactions() {
	s.transactions.Invalidate()
}
