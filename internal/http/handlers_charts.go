package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"

	"golang.org/x/sync/errgroup"

	"finboard/internal/analytics"
	"finboard/internal/core"
	"finboard/internal/kv"
	applog "finboard/internal/log"
)

// errInvalidInput marks well-formed requests whose content is rejected.
var errInvalidInput = errors.New("invalid input")

// chartResponse is the body of a single chart request.
type chartResponse struct {
	Chart    string                     `json:"chart"`
	Filter   string                     `json:"filter"`
	Data     any                        `json:"data"`
	Controls analytics.CategoryControls `json:"controls"`
}

func knownChart(id string) bool {
	return slices.Contains(analytics.Charts, id)
}

// chartID reads the {chart} path value. The dashboard id is accepted only
// when allowDashboard is set.
func chartID(r *http.Request, allowDashboard bool) (string, error) {
	id := strings.ToLower(strings.TrimSpace(r.PathValue("chart")))
	if knownChart(id) || (allowDashboard && id == analytics.ChartDashboard) {
		return id, nil
	}
	return "", fmt.Errorf("%w: %q", analytics.ErrUnknownChart, id)
}

// loadInputs fetches everything a render needs in parallel. Only the
// transaction fetch can fail; the stores fall back to defaults.
func (s *Server) loadInputs(ctx context.Context, p QueryParams, charts []string) (analytics.Inputs, error) {
	in := analytics.Inputs{
		Filter: p.Filter,
		Scheme: p.Scheme,
		Hidden: make(map[string]analytics.HiddenSet, len(charts)),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		txs, err := s.transactions.List(gctx, p.ChartQuery())
		in.Transactions = txs
		return err
	})
	g.Go(func() error {
		in.Limits = s.budgets.Limits(gctx, p.Filter)
		return nil
	})
	g.Go(func() error {
		in.RingCategories = kv.Load[[]string](gctx, s.kv, kv.KeyRingCategories, nil)
		return nil
	})
	g.Go(func() error {
		in.TierOverrides = s.tiers.Load(gctx)
		return nil
	})
	hidden := make([]analytics.HiddenSet, len(charts))
	for i, c := range charts {
		g.Go(func() error {
			if p.HasHidden {
				hidden[i] = p.Hidden
				return nil
			}
			hidden[i] = s.visibility.Load(gctx, c, p.Scope)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return in, err
	}
	for i, c := range charts {
		in.Hidden[c] = hidden[i]
	}
	return in, nil
}

// handleChart renders one chart, or every chart for the dashboard id.
func (s *Server) handleChart(w http.ResponseWriter, r *http.Request) {
	if !allowMethods(w, r, http.MethodGet) {
		return
	}
	id, err := chartID(r, true)
	if err != nil {
		writeError(w, r, err, "")
		return
	}
	p, err := ParseQueryParams(r.URL.Query())
	if err != nil {
		writeError(w, r, err, "")
		return
	}

	charts := []string{id}
	if id == analytics.ChartDashboard {
		charts = analytics.Charts
	}
	in, err := s.loadInputs(r.Context(), p, charts)
	if err != nil {
		writeError(w, r, err, "failed to load transactions")
		return
	}

	data, err := analytics.Chart(in, id)
	if err != nil {
		writeError(w, r, err, "failed to render chart")
		return
	}
	s.metrics.chartsRendered.Add(1)
	applog.FromContext(r.Context()).DebugContext(r.Context(), "Chart rendered",
		applog.FieldChart, id, applog.FieldFilter, p.Filter.String(), applog.FieldRows, len(in.Transactions))

	if id == analytics.ChartDashboard {
		writeJSON(w, http.StatusOK, data)
		return
	}
	writeJSON(w, http.StatusOK, chartResponse{
		Chart:    id,
		Filter:   p.Filter.String(),
		Data:     data,
		Controls: analytics.BuildCategoryControls(analytics.CategoriesFor(in.Transactions, id), in.Hidden[id], analytics.ControlOptions{}),
	})
}

type visibilityRequest struct {
	Hidden []string `json:"hidden"`
}

type toggleRequest struct {
	Category string `json:"category"`
}

// visibilityControls builds the legend for chart from the current filter's
// transactions and the given hidden set.
func (s *Server) visibilityControls(ctx context.Context, chart string, p QueryParams, hidden analytics.HiddenSet) (analytics.CategoryControls, error) {
	txs, err := s.transactions.List(ctx, p.ChartQuery())
	if err != nil {
		return analytics.CategoryControls{}, err
	}
	return analytics.BuildCategoryControls(analytics.CategoriesFor(txs, chart), hidden, analytics.ControlOptions{}), nil
}

// handleVisibility reads (GET), replaces (PUT) or clears (DELETE) the hidden
// categories of one chart in ?scope=.
func (s *Server) handleVisibility(w http.ResponseWriter, r *http.Request) {
	if !allowMethods(w, r, http.MethodGet, http.MethodPut, http.MethodDelete) {
		return
	}
	chart, err := chartID(r, false)
	if err != nil {
		writeError(w, r, err, "")
		return
	}
	p, err := ParseQueryParams(r.URL.Query())
	if err != nil {
		writeError(w, r, err, "")
		return
	}
	ctx := r.Context()

	var hidden analytics.HiddenSet
	switch r.Method {
	case http.MethodGet:
		hidden = s.visibility.Load(ctx, chart, p.Scope)
	case http.MethodPut:
		var req visibilityRequest
		if err := decodeJSON(w, r, &req, maxJSONBody); err != nil {
			writeError(w, r, err, "")
			return
		}
		hidden = analytics.NewHiddenSet(splitList(req.Hidden)...)
		if err := s.visibility.Set(ctx, chart, p.Scope, hidden); err != nil {
			writeError(w, r, err, "failed to save visibility")
			return
		}
	case http.MethodDelete:
		if err := s.visibility.Clear(ctx, chart, p.Scope); err != nil {
			writeError(w, r, err, "failed to clear visibility")
			return
		}
		NoContent().Write(w)
		return
	}

	controls, err := s.visibilityControls(ctx, chart, p, hidden)
	if err != nil {
		writeError(w, r, err, "failed to load transactions")
		return
	}
	writeJSON(w, http.StatusOK, controls)
}

// handleVisibilityToggle flips one category of a chart.
func (s *Server) handleVisibilityToggle(w http.ResponseWriter, r *http.Request) {
	if !allowMethods(w, r, http.MethodPost) {
		return
	}
	chart, err := chartID(r, false)
	if err != nil {
		writeError(w, r, err, "")
		return
	}
	p, err := ParseQueryParams(r.URL.Query())
	if err != nil {
		writeError(w, r, err, "")
		return
	}
	var req toggleRequest
	if err := decodeJSON(w, r, &req, maxJSONBody); err != nil {
		writeError(w, r, err, "")
		return
	}
	hidden, err := s.visibility.Toggle(r.Context(), chart, p.Scope, sanitizeInput(req.Category))
	if err != nil {
		writeError(w, r, err, "failed to save visibility")
		return
	}
	controls, err := s.visibilityControls(r.Context(), chart, p, hidden)
	if err != nil {
		writeError(w, r, err, "failed to load transactions")
		return
	}
	writeJSON(w, http.StatusOK, controls)
}

// handleTierOverrides reads or replaces every tier override.
func (s *Server) handleTierOverrides(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, s.tiers.Load(r.Context()))
	case http.MethodPut:
		var req map[string]string
		if err := decodeJSON(w, r, &req, maxJSONBody); err != nil {
			writeError(w, r, err, "")
			return
		}
		overrides := make(analytics.TierOverrides, len(req))
		for cat, t := range req {
			overrides[sanitizeInput(cat)] = analytics.Tier(t)
		}
		if err := s.tiers.Replace(r.Context(), overrides); err != nil {
			writeError(w, r, err, "failed to save tier overrides")
			return
		}
		writeJSON(w, http.StatusOK, s.tiers.Load(r.Context()))
	default:
		MethodNotAllowedError("GET, PUT").Write(w)
	}
}

type tierRequest struct {
	Tier string `json:"tier"`
}

// handleTierOverride sets (PUT) or removes (DELETE) the override of one
// category.
func (s *Server) handleTierOverride(w http.ResponseWriter, r *http.Request) {
	if !allowMethods(w, r, http.MethodPut, http.MethodDelete) {
		return
	}
	category := sanitizeInput(r.PathValue("category"))
	if category == "" {
		writeError(w, r, core.ErrEmptyCategory, "")
		return
	}

	var (
		overrides analytics.TierOverrides
		err       error
	)
	if r.Method == http.MethodPut {
		var req tierRequest
		if err := decodeJSON(w, r, &req, maxJSONBody); err != nil {
			writeError(w, r, err, "")
			return
		}
		tier, perr := analytics.ParseTier(req.Tier)
		if perr != nil {
			writeError(w, r, perr, "")
			return
		}
		overrides, err = s.tiers.Set(r.Context(), category, tier)
	} else {
		overrides, err = s.tiers.Remove(r.Context(), category)
	}
	if err != nil {
		writeError(w, r, err, "failed to save tier overrides")
		return
	}
	writeJSON(w, http.StatusOK, overrides)
}

type ringCategoriesRequest struct {
	Categories []string `json:"categories"`
}

// handleRingCategories reads or replaces the user's ring selection. An empty
// list restores the automatic top categories.
func (s *Server) handleRingCategories(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		cats := kv.Load[[]string](r.Context(), s.kv, kv.KeyRingCategories, nil)
		if cats == nil {
			cats = []string{}
		}
		writeJSON(w, http.StatusOK, ringCategoriesRequest{Categories: cats})
	case http.MethodPut:
		var req ringCategoriesRequest
		if err := decodeJSON(w, r, &req, maxJSONBody); err != nil {
			writeError(w, r, err, "")
			return
		}
		cats := make([]string, 0, len(req.Categories))
		for _, c := range splitList(req.Categories) {
			c = core.NormalizeCategory(c)
			if !slices.Contains(cats, c) {
				cats = append(cats, c)
			}
		}
		if len(cats) > analytics.DefaultRingCount {
			writeError(w, r, fmt.Errorf("%w: at most %d ring categories", errInvalidInput, analytics.DefaultRingCount), "")
			return
		}
		if err := kv.Save(r.Context(), s.kv, kv.KeyRingCategories, cats); err != nil {
			writeError(w, r, err, "failed to save ring categories")
			return
		}
		writeJSON(w, http.StatusOK, ringCategoriesRequest{Categories: cats})
	default:
		MethodNotAllowedError("GET, PUT").Write(w)
	}
}

// ChartLayout is the persisted dashboard arrangement.
type ChartLayout struct {
	Order []string          `json:"order"`
	Sizes map[string]string `json:"sizes"`
}

var layoutSizes = []string{"small", "medium", "large"}

// normalize validates ids and sizes and appends charts missing from Order in
// their default position.
func (l ChartLayout) normalize() (ChartLayout, error) {
	out := ChartLayout{Order: make([]string, 0, len(analytics.Charts)), Sizes: map[string]string{}}
	for _, id := range l.Order {
		if !knownChart(id) {
			return ChartLayout{}, fmt.Errorf("%w: unknown chart %q in layout", errInvalidInput, id)
		}
		if !slices.Contains(out.Order, id) {
			out.Order = append(out.Order, id)
		}
	}
	for _, id := range analytics.Charts {
		if !slices.Contains(out.Order, id) {
			out.Order = append(out.Order, id)
		}
	}
	for id, size := range l.Sizes {
		if !knownChart(id) {
			return ChartLayout{}, fmt.Errorf("%w: unknown chart %q in layout", errInvalidInput, id)
		}
		size = strings.ToLower(strings.TrimSpace(size))
		if !slices.Contains(layoutSizes, size) {
			return ChartLayout{}, fmt.Errorf("%w: size %q for %s", errInvalidInput, size, id)
		}
		out.Sizes[id] = size
	}
	return out, nil
}

func (s *Server) loadLayout(ctx context.Context) ChartLayout {
	l := kv.Load(ctx, s.kv, kv.KeyChartLayout, ChartLayout{})
	norm, err := l.normalize()
	if err != nil {
		applog.FromContext(ctx).WarnContext(ctx, "Stored layout invalid, using default", applog.FieldError, err)
		norm, _ = ChartLayout{}.normalize()
	}
	return norm
}

// handleLayout reads or replaces the dashboard layout.
func (s *Server) handleLayout(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, s.loadLayout(r.Context()))
	case http.MethodPut:
		var req ChartLayout
		if err := decodeJSON(w, r, &req, maxJSONBody); err != nil {
			writeError(w, r, err, "")
			return
		}
		l, err := req.normalize()
		if err != nil {
			writeError(w, r, err, "")
			return
		}
		if err := kv.Save(r.Context(), s.kv, kv.KeyChartLayout, l); err != nil {
			writeError(w, r, err, "failed to save layout")
			return
		}
		writeJSON(w, http.StatusOK, l)
	default:
		MethodNotAllowedError("GET, PUT").Write(w)
	}
}
