package analytics

import (
	"github.com/shopspring/decimal"

	"finboard/internal/core"
)

// Scheme is the UI color scheme.
type Scheme string

const (
	SchemeLight Scheme = "light"
	SchemeDark  Scheme = "dark"
)

// ParseScheme defaults to light for anything but "dark".
func ParseScheme(s string) Scheme {
	if Scheme(s) == SchemeDark {
		return SchemeDark
	}
	return SchemeLight
}

// DefaultRingCount is how many rings are shown when no categories are chosen.
const DefaultRingCount = 5

// DefaultPalette is the ring palette in light mode.
var DefaultPalette = []string{"#fa114f", "#92e82a", "#1eeaef", "#ff9500", "#af52de"}

// darkRemap reorders palette slots in dark mode so adjacent rings keep
// contrast against a dark background.
var darkRemap = []int{2, 0, 4, 1, 3}

type RingOptions struct {
	// RingCategories, when non-empty, fixes the rings shown and their order.
	RingCategories []string
	// Limits maps normalized category to a spending limit. Non-positive
	// entries are treated as unset.
	Limits       map[string]decimal.Decimal
	DefaultLimit decimal.Decimal
	Hidden       HiddenSet
	Scheme       Scheme
	Palette      []string
}

type Ring struct {
	Category string          `json:"category"`
	Spent    decimal.Decimal `json:"spent"`
	Limit    decimal.Decimal `json:"limit"`
	Value    float64         `json:"value"`
	Color    string          `json:"color"`
}

// BuildRingData computes one ring per selected category with its progress
// against the limit, clamped to [0, 1].
func BuildRingData(txs []core.Transaction, opts RingOptions) []Ring {
	spent := AggregateByCategory(txs, CategoryOptions{Sign: SignExpense, Hidden: opts.Hidden})

	var categories []string
	if len(opts.RingCategories) > 0 {
		seen := make(map[string]bool, len(opts.RingCategories))
		for _, c := range opts.RingCategories {
			c = core.NormalizeCategory(c)
			if seen[c] || opts.Hidden.Has(c) {
				continue
			}
			seen[c] = true
			categories = append(categories, c)
		}
	} else {
		for _, ct := range spent.TopN(DefaultRingCount, "") {
			categories = append(categories, ct.Category)
		}
	}

	palette := opts.Palette
	if len(palette) == 0 {
		palette = DefaultPalette
	}
	rings := make([]Ring, 0, len(categories))
	for i, cat := range categories {
		limit := ResolveLimit(opts.Limits, cat, opts.DefaultLimit)
		s := spent.Get(cat)
		rings = append(rings, Ring{
			Category: cat,
			Spent:    s,
			Limit:    limit,
			Value:    ringValue(s, limit),
			Color:    ringColor(i, opts.Scheme, palette),
		})
	}
	return rings
}

// ResolveLimit returns the positive limit for category, else fallback.
func ResolveLimit(limits map[string]decimal.Decimal, category string, fallback decimal.Decimal) decimal.Decimal {
	if l, ok := limits[category]; ok && l.IsPositive() {
		return l
	}
	return fallback
}

func ringValue(spent, limit decimal.Decimal) float64 {
	if !limit.IsPositive() || !spent.IsPositive() {
		return 0
	}
	v := spent.Div(limit).InexactFloat64()
	if v > 1 {
		return 1
	}
	return v
}

func ringColor(i int, scheme Scheme, palette []string) string {
	if len(palette) == 0 {
		return ""
	}
	idx := i % len(palette)
	if scheme == SchemeDark && idx < len(darkRemap) && darkRemap[idx] < len(palette) {
		idx = darkRemap[idx]
	}
	return palette[idx]
}
