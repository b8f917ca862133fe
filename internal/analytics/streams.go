package analytics

import (
	"slices"

	"github.com/shopspring/decimal"

	"finboard/internal/core"
)

// DefaultStreamCategories is the number of named layers in a streamgraph.
const DefaultStreamCategories = 6

type StreamOptions struct {
	Bucket BucketFunc
	Hidden HiddenSet
	TopN   int
}

type StreamPoint struct {
	Period string                     `json:"period"`
	Values map[string]decimal.Decimal `json:"values"`
}

// StreamSeries is a dense per-period expense matrix. Every point carries a
// value for every key.
type StreamSeries struct {
	Keys   []string      `json:"keys"`
	Points []StreamPoint `json:"points"`
}

// BuildStream splits expenses per period across the TopN categories over the
// whole range, folding every other category into one remainder layer.
func BuildStream(txs []core.Transaction, opts StreamOptions) StreamSeries {
	n := opts.TopN
	if n <= 0 {
		n = DefaultStreamCategories
	}
	series := SeriesOptions{Bucket: opts.Bucket, Hidden: opts.Hidden}
	bucket := series.bucket()

	totals := AggregateByCategory(txs, CategoryOptions{Sign: SignExpense, Hidden: opts.Hidden})
	keys := make([]string, 0, n+1)
	top := make(map[string]bool, n)
	for _, ct := range totals.TopN(n, "") {
		keys = append(keys, ct.Category)
		top[ct.Category] = true
	}
	rest := remainderKey(top)
	if totals.Len() > n {
		keys = append(keys, rest)
	}

	byPeriod := make(map[string]map[string]decimal.Decimal)
	for _, tx := range txs {
		if !tx.IsExpense() || !opts.Hidden.visible(tx) {
			continue
		}
		d, ok := tx.ParsedDate()
		if !ok {
			continue
		}
		period := bucket(d)
		values, ok := byPeriod[period]
		if !ok {
			values = make(map[string]decimal.Decimal, len(keys))
			for _, k := range keys {
				values[k] = decimal.Zero
			}
			byPeriod[period] = values
		}
		cat := tx.NormalizedCategory()
		if !top[cat] {
			cat = rest
		}
		values[cat] = values[cat].Add(tx.Amount.Abs())
	}

	periods := make([]string, 0, len(byPeriod))
	for p := range byPeriod {
		periods = append(periods, p)
	}
	slices.Sort(periods)
	out := StreamSeries{Keys: keys, Points: make([]StreamPoint, 0, len(periods))}
	for _, p := range periods {
		out.Points = append(out.Points, StreamPoint{Period: p, Values: byPeriod[p]})
	}
	return out
}

// StreamRestKey labels the remainder layer when a real "Other" category is
// itself among the top layers.
const StreamRestKey = "Other categories"

func remainderKey(top map[string]bool) string {
	key := core.OtherCategory
	if top[key] {
		key = StreamRestKey
	}
	for top[key] {
		key += " (rest)"
	}
	return key
}
