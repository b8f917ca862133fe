package core

import (
	"cmp"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Granularity is the width of a time bucket.
type Granularity string

const (
	Day   Granularity = "day"
	Week  Granularity = "week"
	Month Granularity = "month"
)

// DateFilter is the date-range token shared by the transactions and budgets
// endpoints. The zero value means all time.
type DateFilter string

const (
	FilterAllTime     DateFilter = ""
	FilterLast7Days   DateFilter = "last7days"
	FilterLast30Days  DateFilter = "last30days"
	FilterLast3Months DateFilter = "last3months"
	FilterLast6Months DateFilter = "last6months"
	FilterLastYear    DateFilter = "lastyear"
)

var ErrInvalidFilter = errors.New("invalid date filter")

var (
	longRangeRingLimit  = decimal.NewFromInt(5000)
	shortRangeRingLimit = decimal.NewFromInt(2000)
)

// ParseDateFilter validates a filter token. A bare 4-digit year is accepted.
func ParseDateFilter(s string) (DateFilter, error) {
	f := DateFilter(strings.TrimSpace(strings.ToLower(s)))
	switch f {
	case FilterAllTime, FilterLast7Days, FilterLast30Days, FilterLast3Months, FilterLast6Months, FilterLastYear:
		return f, nil
	}
	if _, ok := f.Year(); ok {
		return f, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidFilter, s)
}

// Year returns the calendar year when the filter is a bare 4-digit year.
func (f DateFilter) Year() (int, bool) {
	if len(f) != 4 {
		return 0, false
	}
	y, err := strconv.Atoi(string(f))
	if err != nil || y < 1000 {
		return 0, false
	}
	return y, true
}

func (f DateFilter) String() string {
	if f == FilterAllTime {
		return "all"
	}
	return string(f)
}

// Granularity picks the bucket width for time series under this filter.
func (f DateFilter) Granularity() Granularity {
	switch f {
	case FilterLast7Days:
		return Day
	case FilterLast30Days, FilterLast3Months:
		return Week
	default:
		return Month
	}
}

// DefaultRingLimit is the spending limit used for categories without an
// explicit budget. Long ranges get the larger default.
func (f DateFilter) DefaultRingLimit() decimal.Decimal {
	if _, isYear := f.Year(); isYear || f == FilterAllTime || f == FilterLastYear {
		return longRangeRingLimit
	}
	return shortRangeRingLimit
}

// Range returns the half-open interval [start, end) covered by the filter,
// relative to now. bounded is false for all time.
func (f DateFilter) Range(now time.Time) (start, end time.Time, bounded bool) {
	y, m, d := now.UTC().Date()
	end = time.Date(y, m, d, 0, 0, 0, 0, time.UTC).AddDate(0, 0, 1)
	switch f {
	case FilterLast7Days:
		return end.AddDate(0, 0, -7), end, true
	case FilterLast30Days:
		return end.AddDate(0, 0, -30), end, true
	case FilterLast3Months:
		return end.AddDate(0, -3, 0), end, true
	case FilterLast6Months:
		return end.AddDate(0, -6, 0), end, true
	case FilterLastYear:
		return end.AddDate(-1, 0, 0), end, true
	}
	if year, ok := f.Year(); ok {
		start = time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
		return start, start.AddDate(1, 0, 0), true
	}
	return time.Time{}, time.Time{}, false
}

// Contains reports whether t falls inside the filter range.
func (f DateFilter) Contains(t, now time.Time) bool {
	start, end, bounded := f.Range(now)
	if !bounded {
		return true
	}
	return !t.Before(start) && t.Before(end)
}

// BucketKey derives the aggregation key for t. Keys are zero-padded so that
// lexicographic order matches chronological order. Weeks start on Sunday.
func BucketKey(t time.Time, g Granularity) string {
	switch g {
	case Day:
		return t.Format("2006-01-02")
	case Week:
		y, m, d := t.Date()
		day := time.Date(y, m, d, 0, 0, 0, 0, t.Location())
		return day.AddDate(0, 0, -int(day.Weekday())).Format("2006-01-02")
	default:
		return t.Format("2006-01")
	}
}

// FilterTransactions keeps the transactions inside the filter range. Rows
// with unparseable dates are kept only for the all-time filter.
func FilterTransactions(txs []Transaction, f DateFilter, now time.Time) []Transaction {
	if _, _, bounded := f.Range(now); !bounded {
		return txs
	}
	out := make([]Transaction, 0, len(txs))
	for _, tx := range txs {
		d, ok := tx.ParsedDate()
		if !ok {
			continue
		}
		if f.Contains(d, now) {
			out = append(out, tx)
		}
	}
	return out
}

// SelectTransactions applies q to an in-memory list: the filter range, then
// chronological order by date and id, then the row cap keeping the newest rows.
func SelectTransactions(txs []Transaction, q TransactionQuery, now time.Time) []Transaction {
	out := slices.Clone(FilterTransactions(txs, q.Filter, now))
	slices.SortStableFunc(out, func(a, b Transaction) int {
		if c := cmp.Compare(a.Date, b.Date); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	if limit := q.Limit(); limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out
}
