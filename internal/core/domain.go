package core

import (
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type (
	// Transaction is one ledger row as served by the transaction store.
	// Date is kept as received; use ParsedDate for time-based work.
	Transaction struct {
		ID          int64               `json:"id"`
		Date        string              `json:"date"`
		Description string              `json:"description"`
		Amount      decimal.Decimal     `json:"amount"`
		Balance     decimal.NullDecimal `json:"balance"`
		Category    string              `json:"category"`
	}

	// Budget is a spending limit for one category under one date filter.
	Budget struct {
		Category string
		Amount   decimal.Decimal
		Filter   DateFilter
	}

	// CategoryPreference records the category a user picked for a description.
	CategoryPreference struct {
		Description string `json:"description"`
		Category    string `json:"category"`
	}

	// TransactionQuery selects transactions from a store. Without All the
	// result is capped to the newest DefaultTransactionLimit rows.
	TransactionQuery struct {
		Filter DateFilter
		All    bool
	}

	// StatementMeta describes an uploaded statement file.
	StatementMeta struct {
		FileID   string `json:"fileId"`
		FileName string `json:"fileName"`
		Source   string `json:"source,omitempty"`
	}

	// ImportResult reports what a statement import wrote.
	ImportResult struct {
		Inserted            int `json:"inserted"`
		SkippedInvalidDates int `json:"skippedInvalidDates"`
	}
)

// DefaultTransactionLimit caps transaction queries that do not ask for all rows.
const DefaultTransactionLimit = 1000

// Limit returns the row cap for q, or 0 when uncapped.
func (q TransactionQuery) Limit() int {
	if q.All {
		return 0
	}
	return DefaultTransactionLimit
}

var (
	ErrInvalidDate      = errors.New("invalid date")
	ErrInvalidAmount    = errors.New("invalid amount")
	ErrEmptyDescription = errors.New("empty description")
	ErrEmptyCategory    = errors.New("empty category")
	ErrInvalidBudget    = errors.New("budget must be positive")
)

// dateLayouts lists the ISO-8601 shapes accepted for Transaction.Date.
var dateLayouts = []string{
	"2006-01-02",
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// ParseISODate parses an ISO-8601 date or timestamp. The result is the
// calendar date in UTC.
func ParseISODate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			y, m, d := t.Date()
			return time.Date(y, m, d, 0, 0, 0, 0, time.UTC), true
		}
	}
	return time.Time{}, false
}

// ParsedDate returns the transaction date, or false when it does not parse.
func (t Transaction) ParsedDate() (time.Time, bool) {
	return ParseISODate(t.Date)
}

// IsExpense reports whether the transaction is money going out.
func (t Transaction) IsExpense() bool {
	return t.Amount.IsNegative()
}

// IsIncome reports whether the transaction is money coming in.
func (t Transaction) IsIncome() bool {
	return t.Amount.IsPositive()
}

// NormalizedCategory returns the bucket key used by every aggregation.
func (t Transaction) NormalizedCategory() string {
	return NormalizeCategory(t.Category)
}

func (t Transaction) Validate() error {
	if _, ok := t.ParsedDate(); !ok {
		return ErrInvalidDate
	}
	if len(strings.TrimSpace(t.Description)) == 0 {
		return ErrEmptyDescription
	}
	if len(t.Description) > 500 {
		return errors.New("description too long (max 500 characters)")
	}
	return nil
}

func (b Budget) Validate() error {
	if strings.TrimSpace(b.Category) == "" {
		return ErrEmptyCategory
	}
	if !b.Amount.IsPositive() {
		return ErrInvalidBudget
	}
	return nil
}

func (p CategoryPreference) Validate() error {
	if strings.TrimSpace(p.Description) == "" {
		return ErrEmptyDescription
	}
	if strings.TrimSpace(p.Category) == "" {
		return ErrEmptyCategory
	}
	return nil
}

// PreferenceKey is the lookup key for a learned preference.
func PreferenceKey(description string) string {
	return strings.ToLower(strings.Join(strings.Fields(description), " "))
}
