// Package analytics folds transaction lists into the shapes each dashboard
// chart consumes. Every function here is pure: it takes the full input and
// recomputes from scratch, applying category normalization and the caller's
// hidden-category set before bucketing.
package analytics

import (
	"slices"

	"github.com/shopspring/decimal"

	"finboard/internal/core"
)

// Sign selects which transactions a category aggregation counts.
type Sign string

const (
	// SignExpense counts negative amounts by absolute value.
	SignExpense Sign = "expense"
	// SignIncome counts positive amounts.
	SignIncome Sign = "income"
	// SignAll counts every amount with its sign.
	SignAll Sign = "all"
)

type CategoryOptions struct {
	Sign   Sign
	Hidden HiddenSet
}

// CategoryTotal is one ranked bucket.
type CategoryTotal struct {
	Category string          `json:"category"`
	Total    decimal.Decimal `json:"total"`
}

// CategoryTotals is an insertion-ordered map from normalized category to a
// running total.
type CategoryTotals struct {
	order  []string
	totals map[string]decimal.Decimal
}

func newCategoryTotals() *CategoryTotals {
	return &CategoryTotals{totals: make(map[string]decimal.Decimal)}
}

func (c *CategoryTotals) add(category string, amount decimal.Decimal) {
	cur, ok := c.totals[category]
	if !ok {
		c.order = append(c.order, category)
	}
	c.totals[category] = cur.Add(amount)
}

// Len returns the number of distinct categories.
func (c *CategoryTotals) Len() int {
	return len(c.order)
}

// Get returns the total for category, or zero when absent.
func (c *CategoryTotals) Get(category string) decimal.Decimal {
	return c.totals[category]
}

// Categories returns the categories in first-seen order.
func (c *CategoryTotals) Categories() []string {
	return slices.Clone(c.order)
}

// Sum adds every bucket.
func (c *CategoryTotals) Sum() decimal.Decimal {
	sum := decimal.Zero
	for _, cat := range c.order {
		sum = sum.Add(c.totals[cat])
	}
	return sum
}

// Ranked returns buckets sorted by total, largest first. Ties keep
// first-seen order.
func (c *CategoryTotals) Ranked() []CategoryTotal {
	out := make([]CategoryTotal, 0, len(c.order))
	for _, cat := range c.order {
		out = append(out, CategoryTotal{Category: cat, Total: c.totals[cat]})
	}
	slices.SortStableFunc(out, func(a, b CategoryTotal) int {
		return b.Total.Cmp(a.Total)
	})
	return out
}

// TopN returns the n largest buckets followed by a remainderLabel bucket
// holding the rest. The remainder is omitted when it is not positive or when
// remainderLabel is empty.
func (c *CategoryTotals) TopN(n int, remainderLabel string) []CategoryTotal {
	ranked := c.Ranked()
	if n < 0 {
		n = 0
	}
	if len(ranked) <= n {
		return ranked
	}
	out := slices.Clone(ranked[:n])
	if remainderLabel == "" {
		return out
	}
	rest := decimal.Zero
	for _, ct := range ranked[n:] {
		rest = rest.Add(ct.Total)
	}
	if rest.IsPositive() {
		out = append(out, CategoryTotal{Category: remainderLabel, Total: rest})
	}
	return out
}

// signedValue maps a transaction amount to the value counted under sign.
func signedValue(amount decimal.Decimal, sign Sign) (decimal.Decimal, bool) {
	switch sign {
	case SignExpense:
		if amount.IsNegative() {
			return amount.Abs(), true
		}
	case SignIncome:
		if amount.IsPositive() {
			return amount, true
		}
	case SignAll:
		return amount, true
	}
	return decimal.Zero, false
}

// AggregateByCategory folds transactions into per-category totals.
func AggregateByCategory(txs []core.Transaction, opts CategoryOptions) *CategoryTotals {
	totals := newCategoryTotals()
	for _, tx := range txs {
		v, ok := signedValue(tx.Amount, opts.Sign)
		if !ok {
			continue
		}
		cat := tx.NormalizedCategory()
		if opts.Hidden.Has(cat) {
			continue
		}
		totals.add(cat, v)
	}
	return totals
}

// TopCategories returns the n largest expense categories without a
// remainder bucket.
func TopCategories(txs []core.Transaction, n int, hidden HiddenSet) []CategoryTotal {
	return AggregateByCategory(txs, CategoryOptions{Sign: SignExpense, Hidden: hidden}).TopN(n, "")
}
