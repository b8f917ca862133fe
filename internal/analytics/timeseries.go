package analytics

import (
	"slices"
	"time"

	"github.com/shopspring/decimal"

	"finboard/internal/core"
)

// BucketFunc maps a transaction date to its period key. Keys must sort
// lexicographically in chronological order.
type BucketFunc func(time.Time) string

// BucketBy returns the BucketFunc for a granularity.
func BucketBy(g core.Granularity) BucketFunc {
	return func(t time.Time) string { return core.BucketKey(t, g) }
}

type SeriesOptions struct {
	// Bucket defaults to monthly buckets when nil.
	Bucket BucketFunc
	Hidden HiddenSet
}

func (o SeriesOptions) bucket() BucketFunc {
	if o.Bucket == nil {
		return BucketBy(core.Month)
	}
	return o.Bucket
}

// PeriodFlow is the money in and out of one period. Expense is positive.
type PeriodFlow struct {
	Period  string          `json:"period"`
	Income  decimal.Decimal `json:"income"`
	Expense decimal.Decimal `json:"expense"`
}

func (p PeriodFlow) Net() decimal.Decimal {
	return p.Income.Sub(p.Expense)
}

// TrendPoint is one sample of a cumulative series.
type TrendPoint struct {
	Period string          `json:"period"`
	Value  decimal.Decimal `json:"value"`
}

type periodAcc struct {
	flow       PeriodFlow
	balance    decimal.Decimal
	hasBalance bool
}

// foldPeriods buckets visible transactions with a parseable date. Rows with
// bad dates are skipped.
func foldPeriods(txs []core.Transaction, opts SeriesOptions) []*periodAcc {
	bucket := opts.bucket()
	byKey := make(map[string]*periodAcc)
	for _, tx := range txs {
		if !opts.Hidden.visible(tx) {
			continue
		}
		d, ok := tx.ParsedDate()
		if !ok {
			continue
		}
		key := bucket(d)
		acc, ok := byKey[key]
		if !ok {
			acc = &periodAcc{flow: PeriodFlow{Period: key}}
			byKey[key] = acc
		}
		switch {
		case tx.IsIncome():
			acc.flow.Income = acc.flow.Income.Add(tx.Amount)
		case tx.IsExpense():
			acc.flow.Expense = acc.flow.Expense.Add(tx.Amount.Abs())
		}
		if tx.Balance.Valid {
			acc.balance = tx.Balance.Decimal
			acc.hasBalance = true
		}
	}
	out := make([]*periodAcc, 0, len(byKey))
	for _, acc := range byKey {
		out = append(out, acc)
	}
	slices.SortFunc(out, func(a, b *periodAcc) int {
		switch {
		case a.flow.Period < b.flow.Period:
			return -1
		case a.flow.Period > b.flow.Period:
			return 1
		}
		return 0
	})
	return out
}

// AggregateTimeSeries returns one row per period present in the data,
// sorted by period.
func AggregateTimeSeries(txs []core.Transaction, opts SeriesOptions) []PeriodFlow {
	periods := foldPeriods(txs, opts)
	out := make([]PeriodFlow, 0, len(periods))
	for _, p := range periods {
		out = append(out, p.flow)
	}
	return out
}

// CountInvalidDates counts transactions whose date does not parse.
func CountInvalidDates(txs []core.Transaction) int {
	n := 0
	for _, tx := range txs {
		if _, ok := tx.ParsedDate(); !ok {
			n++
		}
	}
	return n
}

func cumulative(flows []PeriodFlow, pick func(PeriodFlow) decimal.Decimal) []TrendPoint {
	out := make([]TrendPoint, 0, len(flows))
	acc := decimal.Zero
	for _, f := range flows {
		acc = acc.Add(pick(f))
		out = append(out, TrendPoint{Period: f.Period, Value: acc})
	}
	return out
}

// CumulativeIncome is the running total of income across flows.
func CumulativeIncome(flows []PeriodFlow) []TrendPoint {
	return cumulative(flows, func(f PeriodFlow) decimal.Decimal { return f.Income })
}

// CumulativeExpense is the running total of expense across flows.
func CumulativeExpense(flows []PeriodFlow) []TrendPoint {
	return cumulative(flows, func(f PeriodFlow) decimal.Decimal { return f.Expense })
}

// NetWorthTrend tracks net worth per period. A period that carries a
// reported balance resets the running value to the last balance seen in it;
// other periods add their net flow.
func NetWorthTrend(txs []core.Transaction, opts SeriesOptions) []TrendPoint {
	periods := foldPeriods(txs, opts)
	out := make([]TrendPoint, 0, len(periods))
	acc := decimal.Zero
	for _, p := range periods {
		if p.hasBalance {
			acc = p.balance
		} else {
			acc = acc.Add(p.flow.Net())
		}
		out = append(out, TrendPoint{Period: p.flow.Period, Value: acc})
	}
	return out
}
