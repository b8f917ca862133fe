package analytics

import (
	"context"
	"slices"
	"strings"

	"finboard/internal/core"
	"finboard/internal/kv"
)

// DefaultScope is used when a caller does not name a storage scope.
const DefaultScope = "default"

// VisibilityStore persists a HiddenSet per (chart, scope).
type VisibilityStore struct {
	store kv.Store
}

func NewVisibilityStore(s kv.Store) *VisibilityStore {
	return &VisibilityStore{store: s}
}

// VisibilityKey is the KV key for a chart's hidden set.
func VisibilityKey(chartID, scope string) string {
	scope = strings.TrimSpace(scope)
	if scope == "" {
		scope = DefaultScope
	}
	return kv.KeyVisibilityPrefix + scope + ":" + chartID
}

func (v *VisibilityStore) Load(ctx context.Context, chartID, scope string) HiddenSet {
	names := kv.Load[[]string](ctx, v.store, VisibilityKey(chartID, scope), nil)
	return NewHiddenSet(names...)
}

func (v *VisibilityStore) Set(ctx context.Context, chartID, scope string, hidden HiddenSet) error {
	return kv.Save(ctx, v.store, VisibilityKey(chartID, scope), hidden.Sorted())
}

// Toggle flips one category and returns the resulting set.
func (v *VisibilityStore) Toggle(ctx context.Context, chartID, scope, category string) (HiddenSet, error) {
	hidden := v.Load(ctx, chartID, scope)
	cat := core.NormalizeCategory(category)
	if _, ok := hidden[cat]; ok {
		delete(hidden, cat)
	} else {
		hidden[cat] = struct{}{}
	}
	if err := v.Set(ctx, chartID, scope, hidden); err != nil {
		return nil, err
	}
	return hidden, nil
}

// Clear shows every category again.
func (v *VisibilityStore) Clear(ctx context.Context, chartID, scope string) error {
	return v.store.Delete(ctx, VisibilityKey(chartID, scope))
}

type ControlOptions struct {
	// Palette colors controls by position. DefaultPalette when empty.
	Palette []string
	// Sort orders controls alphabetically instead of by input order.
	Sort bool
}

type CategoryControl struct {
	Category string `json:"category"`
	Hidden   bool   `json:"hidden"`
	Color    string `json:"color"`
}

// CategoryControls describes the legend toggles for one chart.
type CategoryControls struct {
	Controls     []CategoryControl `json:"controls"`
	Total        int               `json:"total"`
	HiddenCount  int               `json:"hiddenCount"`
	VisibleCount int               `json:"visibleCount"`
	AllHidden    bool              `json:"allHidden"`
}

// BuildCategoryControls builds a toggle per category. Hidden categories that
// no longer appear in the data are appended so they can still be shown
// again.
func BuildCategoryControls(categories []string, hidden HiddenSet, opts ControlOptions) CategoryControls {
	seen := make(map[string]bool, len(categories))
	names := make([]string, 0, len(categories)+len(hidden))
	for _, c := range categories {
		c = core.NormalizeCategory(c)
		if !seen[c] {
			seen[c] = true
			names = append(names, c)
		}
	}
	for _, c := range hidden.Sorted() {
		if !seen[c] {
			seen[c] = true
			names = append(names, c)
		}
	}
	if opts.Sort {
		slices.Sort(names)
	}

	palette := opts.Palette
	if len(palette) == 0 {
		palette = DefaultPalette
	}
	out := CategoryControls{Controls: make([]CategoryControl, 0, len(names)), Total: len(names)}
	for i, c := range names {
		h := hidden.Has(c)
		if h {
			out.HiddenCount++
		}
		out.Controls = append(out.Controls, CategoryControl{
			Category: c,
			Hidden:   h,
			Color:    palette[i%len(palette)],
		})
	}
	out.VisibleCount = out.Total - out.HiddenCount
	out.AllHidden = out.Total > 0 && out.HiddenCount == out.Total
	return out
}
