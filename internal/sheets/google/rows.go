package google

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"finboard/internal/core"
)

// Tab layouts, first row optionally a header:
//
//	Transactions: Date | Description | Amount | Balance | Category | Statement
//	Budgets:      Filter | Category | Amount
//	Preferences:  Description | Category

// cellString renders a cell the way it was typed. Numbers come back from
// UNFORMATTED_VALUE reads as float64.
func cellString(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case string:
		return strings.TrimSpace(x)
	default:
		return strings.TrimSpace(fmt.Sprint(x))
	}
}

func toStrings(in []any) []string {
	out := make([]string, len(in))
	for i, v := range in {
		out[i] = cellString(v)
	}
	return out
}

func safeGet(arr []string, idx int) string {
	if idx < 0 || idx >= len(arr) {
		return ""
	}
	return arr[idx]
}

func isHeader(cols []string, first string) bool {
	return len(cols) > 0 && strings.EqualFold(cols[0], first)
}

func parseTransactions(ctx context.Context, values [][]any) []core.Transaction {
	out := make([]core.Transaction, 0, len(values))
	for i, row := range values {
		cols := toStrings(row)
		if len(cols) == 0 || isHeader(cols, "date") {
			continue
		}
		if strings.Join(cols, "") == "" {
			continue
		}
		amount, err := core.ParseAmount(safeGet(cols, 2))
		if err != nil {
			slog.WarnContext(ctx, "Skipping sheet row with invalid amount", "row", i+1, "value", safeGet(cols, 2))
			continue
		}
		t := core.Transaction{
			ID:          int64(i + 1),
			Date:        safeGet(cols, 0),
			Description: safeGet(cols, 1),
			Amount:      amount,
			Category:    safeGet(cols, 4),
		}
		if d, ok := t.ParsedDate(); ok {
			t.Date = d.Format("2006-01-02")
		}
		if bal, err := core.ParseAmount(safeGet(cols, 3)); err == nil {
			t.Balance = decimal.NewNullDecimal(bal)
		}
		out = append(out, t)
	}
	return out
}

func transactionRow(t core.Transaction, statementID string) []any {
	balance := ""
	if t.Balance.Valid {
		balance = t.Balance.Decimal.String()
	}
	return []any{t.Date, t.Description, t.Amount.String(), balance, t.Category, statementID}
}

func parseBudgets(values [][]any) []core.Budget {
	var out []core.Budget
	for _, row := range values {
		cols := toStrings(row)
		if len(cols) < 3 || isHeader(cols, "filter") {
			continue
		}
		amount, err := core.ParseAmount(cols[2])
		if err != nil || !amount.IsPositive() {
			continue
		}
		out = append(out, core.Budget{
			Filter:   budgetFilter(cols[0]),
			Category: core.NormalizeCategory(cols[1]),
			Amount:   amount,
		})
	}
	return out
}

// budgetFilter maps the sheet's "all" cell back to the all-time filter.
func budgetFilter(s string) core.DateFilter {
	if strings.EqualFold(s, "all") {
		return core.FilterAllTime
	}
	return core.DateFilter(strings.ToLower(s))
}

func budgetRow(b core.Budget) []any {
	return []any{b.Filter.String(), b.Category, b.Amount.String()}
}

// findBudgetRow returns the 1-based sheet row holding (filter, category), or 0.
func findBudgetRow(values [][]any, filter core.DateFilter, category string) int {
	for i, row := range values {
		cols := toStrings(row)
		if len(cols) < 2 || isHeader(cols, "filter") {
			continue
		}
		if budgetFilter(cols[0]) == filter && strings.EqualFold(core.NormalizeCategory(cols[1]), category) {
			return i + 1
		}
	}
	return 0
}

func parsePreferences(values [][]any) []core.CategoryPreference {
	var out []core.CategoryPreference
	for _, row := range values {
		cols := toStrings(row)
		if len(cols) < 2 || isHeader(cols, "description") {
			continue
		}
		p := core.CategoryPreference{Description: cols[0], Category: cols[1]}
		if p.Validate() != nil {
			continue
		}
		out = append(out, p)
	}
	return out
}

// preferenceRows maps preference keys to their 1-based sheet row. Later rows
// win, matching how the sheet is read.
func preferenceRows(values [][]any) map[string]int {
	out := make(map[string]int)
	for i, row := range values {
		cols := toStrings(row)
		if len(cols) == 0 || cols[0] == "" || isHeader(cols, "description") {
			continue
		}
		out[core.PreferenceKey(cols[0])] = i + 1
	}
	return out
}

// dedupePreferences keeps the last valid entry per key, in first-seen order.
func dedupePreferences(prefs []core.CategoryPreference) []core.CategoryPreference {
	idx := make(map[string]int)
	var out []core.CategoryPreference
	for _, p := range prefs {
		if p.Validate() != nil {
			continue
		}
		key := core.PreferenceKey(p.Description)
		if i, ok := idx[key]; ok {
			out[i] = p
			continue
		}
		idx[key] = len(out)
		out = append(out, p)
	}
	return out
}
