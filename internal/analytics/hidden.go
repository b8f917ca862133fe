package analytics

import (
	"slices"

	"finboard/internal/core"
)

// HiddenSet is the set of normalized category names a chart hides. A nil or
// empty set hides nothing.
type HiddenSet map[string]struct{}

func NewHiddenSet(categories ...string) HiddenSet {
	h := make(HiddenSet, len(categories))
	for _, c := range categories {
		h[core.NormalizeCategory(c)] = struct{}{}
	}
	return h
}

func (h HiddenSet) Has(category string) bool {
	if len(h) == 0 {
		return false
	}
	_, ok := h[core.NormalizeCategory(category)]
	return ok
}

// Sorted returns the hidden categories in ascending order.
func (h HiddenSet) Sorted() []string {
	out := make([]string, 0, len(h))
	for c := range h {
		out = append(out, c)
	}
	slices.Sort(out)
	return out
}

func (h HiddenSet) visible(tx core.Transaction) bool {
	return !h.Has(tx.Category)
}
