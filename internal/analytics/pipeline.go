package analytics

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"finboard/internal/core"
)

// Chart identifiers, also used as visibility keys.
const (
	ChartExpensePie   = "expense-pie"
	ChartIncomePie    = "income-pie"
	ChartTreemap      = "treemap"
	ChartStream       = "stream"
	ChartPolar        = "polar"
	ChartCashFlow     = "cash-flow"
	ChartIncomeTrend  = "income-trend"
	ChartExpenseTrend = "expense-trend"
	ChartNetWorth     = "net-worth"
	ChartFunnel       = "funnel"
	ChartRings        = "rings"
	ChartNeedsWants   = "needs-wants"
	ChartDashboard    = "dashboard"
)

// Charts lists every chart Compute renders, in dashboard order.
var Charts = []string{
	ChartExpensePie, ChartIncomePie, ChartTreemap, ChartStream, ChartPolar,
	ChartCashFlow, ChartIncomeTrend, ChartExpenseTrend, ChartNetWorth,
	ChartFunnel, ChartRings, ChartNeedsWants,
}

var ErrUnknownChart = errors.New("unknown chart")

// polarCategories is the number of bars in the polar chart.
const polarCategories = 8

// Inputs is everything a dashboard render depends on.
type Inputs struct {
	Transactions []core.Transaction
	Filter       core.DateFilter
	// Hidden holds the hidden set per chart id.
	Hidden         map[string]HiddenSet
	Limits         map[string]decimal.Decimal
	RingCategories []string
	TierOverrides  TierOverrides
	Scheme         Scheme
	Palette        []string
}

func (in Inputs) hidden(chart string) HiddenSet {
	return in.Hidden[chart]
}

func (in Inputs) bucket() BucketFunc {
	return BucketBy(in.Filter.Granularity())
}

// Dashboard is the output of every chart for one set of inputs.
type Dashboard struct {
	Filter       string           `json:"filter"`
	Granularity  core.Granularity `json:"granularity"`
	InvalidDates int              `json:"invalidDates"`
	ExpensePie   []CategoryTotal  `json:"expensePie"`
	IncomePie    []CategoryTotal  `json:"incomePie"`
	Treemap      HierarchyNode    `json:"treemap"`
	Stream       StreamSeries     `json:"stream"`
	Polar        []CategoryTotal  `json:"polar"`
	CashFlow     []PeriodFlow     `json:"cashFlow"`
	IncomeTrend  []TrendPoint     `json:"incomeTrend"`
	ExpenseTrend []TrendPoint     `json:"expenseTrend"`
	NetWorth     []TrendPoint     `json:"netWorth"`
	Funnel       []FunnelStage    `json:"funnel"`
	Rings        []Ring           `json:"rings"`
	NeedsWants   []TierTotal      `json:"needsWants"`
	Generated    time.Time        `json:"generated"`
}

// Compute renders every chart. It is a pure function of in apart from the
// Generated timestamp.
func Compute(in Inputs) Dashboard {
	d := Dashboard{
		Filter:       in.Filter.String(),
		Granularity:  in.Filter.Granularity(),
		InvalidDates: CountInvalidDates(in.Transactions),
		Generated:    time.Now().UTC(),
	}
	for _, chart := range Charts {
		v, _ := Chart(in, chart)
		switch chart {
		case ChartExpensePie:
			d.ExpensePie = v.([]CategoryTotal)
		case ChartIncomePie:
			d.IncomePie = v.([]CategoryTotal)
		case ChartTreemap:
			d.Treemap = v.(HierarchyNode)
		case ChartStream:
			d.Stream = v.(StreamSeries)
		case ChartPolar:
			d.Polar = v.([]CategoryTotal)
		case ChartCashFlow:
			d.CashFlow = v.([]PeriodFlow)
		case ChartIncomeTrend:
			d.IncomeTrend = v.([]TrendPoint)
		case ChartExpenseTrend:
			d.ExpenseTrend = v.([]TrendPoint)
		case ChartNetWorth:
			d.NetWorth = v.([]TrendPoint)
		case ChartFunnel:
			d.Funnel = v.([]FunnelStage)
		case ChartRings:
			d.Rings = v.([]Ring)
		case ChartNeedsWants:
			d.NeedsWants = v.([]TierTotal)
		}
	}
	return d
}

// Chart renders a single chart by id.
func Chart(in Inputs, chart string) (any, error) {
	h := in.hidden(chart)
	switch chart {
	case ChartExpensePie:
		return AggregateByCategory(in.Transactions, CategoryOptions{Sign: SignExpense, Hidden: h}).Ranked(), nil
	case ChartIncomePie:
		return AggregateByCategory(in.Transactions, CategoryOptions{Sign: SignIncome, Hidden: h}).Ranked(), nil
	case ChartTreemap:
		return BuildHierarchy(in.Transactions, h, DefaultHierarchyLeaves), nil
	case ChartStream:
		return BuildStream(in.Transactions, StreamOptions{Bucket: in.bucket(), Hidden: h}), nil
	case ChartPolar:
		return TopCategories(in.Transactions, polarCategories, h), nil
	case ChartCashFlow:
		return AggregateTimeSeries(in.Transactions, SeriesOptions{Bucket: in.bucket(), Hidden: h}), nil
	case ChartIncomeTrend:
		return CumulativeIncome(AggregateTimeSeries(in.Transactions, SeriesOptions{Bucket: in.bucket(), Hidden: h})), nil
	case ChartExpenseTrend:
		return CumulativeExpense(AggregateTimeSeries(in.Transactions, SeriesOptions{Bucket: in.bucket(), Hidden: h})), nil
	case ChartNetWorth:
		return NetWorthTrend(in.Transactions, SeriesOptions{Bucket: in.bucket(), Hidden: h}), nil
	case ChartFunnel:
		return BuildFunnel(in.Transactions, h), nil
	case ChartRings:
		return BuildRingData(in.Transactions, RingOptions{
			RingCategories: in.RingCategories,
			Limits:         in.Limits,
			DefaultLimit:   in.Filter.DefaultRingLimit(),
			Hidden:         h,
			Scheme:         in.Scheme,
			Palette:        in.Palette,
		}), nil
	case ChartNeedsWants:
		return AggregateByTier(in.Transactions, h, in.TierOverrides), nil
	case ChartDashboard:
		return Compute(in), nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownChart, chart)
}

// CategoriesFor lists the categories a chart can toggle, in ranked order.
func CategoriesFor(txs []core.Transaction, chart string) []string {
	sign := SignExpense
	if chart == ChartIncomePie {
		sign = SignIncome
	}
	ranked := AggregateByCategory(txs, CategoryOptions{Sign: sign}).Ranked()
	out := make([]string, 0, len(ranked))
	for _, ct := range ranked {
		out = append(out, ct.Category)
	}
	return out
}
