// Package statements turns bank CSV exports into canonical transactions and
// imports reviewed canonical CSV into the transaction store.
package statements

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"finboard/internal/core"
)

var (
	ErrNoHeader = errors.New("no recognizable header row")
	ErrNoRows   = errors.New("no transaction rows")
)

// DateOrder resolves ambiguous numeric dates such as 03/04/2025.
type DateOrder int

const (
	DayFirst DateOrder = iota
	MonthFirst
)

// headerScanRows is how many leading rows may precede the header.
const headerScanRows = 15

type Options struct {
	DateOrder DateOrder
	// Preferences maps core.PreferenceKey(description) to a category.
	Preferences map[string]string
}

// PreferenceIndex builds the Options.Preferences lookup.
func PreferenceIndex(prefs []core.CategoryPreference) map[string]string {
	idx := make(map[string]string, len(prefs))
	for _, p := range prefs {
		if p.Validate() == nil {
			idx[core.PreferenceKey(p.Description)] = core.NormalizeCategory(p.Category)
		}
	}
	return idx
}

// Warning codes.
const (
	WarnUncategorized   = "uncategorized"
	WarnBalanceMismatch = "balance_mismatch"
	WarnInvalidDate     = "invalid_date"
	WarnInvalidAmount   = "invalid_amount"
)

// Warning is a parse-quality problem. It never blocks an import.
type Warning struct {
	Code    string `json:"code"`
	Line    int    `json:"line"`
	Message string `json:"message"`
}

type Result struct {
	Transactions  []core.Transaction
	Warnings      []Warning
	Uncategorized int
}

// WarningSummary renders warning counts as "code=n" pairs sorted by code.
func (r *Result) WarningSummary() string {
	counts := make(map[string]int)
	for _, w := range r.Warnings {
		counts[w.Code]++
	}
	codes := make([]string, 0, len(counts))
	for c := range counts {
		codes = append(codes, c)
	}
	sort.Strings(codes)
	parts := make([]string, 0, len(codes))
	for _, c := range codes {
		parts = append(parts, fmt.Sprintf("%s=%d", c, counts[c]))
	}
	return strings.Join(parts, "; ")
}

type column int

const (
	colDate column = iota
	colDescription
	colAmount
	colDebit
	colCredit
	colBalance
	colCategory
	numColumns
)

var columnAliases = [numColumns][]string{
	colDate:        {"date", "transaction date", "booking date", "posting date", "posted date", "value date", "data", "data operazione"},
	colDescription: {"description", "details", "memo", "narrative", "payee", "merchant", "name", "reference", "descrizione"},
	colAmount:      {"amount", "transaction amount", "importo"},
	colDebit:       {"debit", "debits", "withdrawal", "withdrawals", "money out", "paid out", "uscite", "addebiti"},
	colCredit:      {"credit", "credits", "deposit", "deposits", "money in", "paid in", "entrate", "accrediti"},
	colBalance:     {"balance", "running balance", "saldo"},
	colCategory:    {"category", "categoria"},
}

type layout [numColumns]int

func matchHeader(rec []string) (layout, bool) {
	var l layout
	for i := range l {
		l[i] = -1
	}
	for i, raw := range rec {
		h := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(raw, "\ufeff")))
		if h == "" {
			continue
		}
		for c := column(0); c < numColumns; c++ {
			if l[c] >= 0 {
				continue
			}
			if aliasMatch(h, columnAliases[c]) {
				l[c] = i
				break
			}
		}
	}
	hasAmount := l[colAmount] >= 0 || l[colDebit] >= 0 || l[colCredit] >= 0
	return l, l[colDate] >= 0 && hasAmount
}

// aliasMatch accepts an exact alias or an alias followed by a qualifier,
// as in "amount (eur)".
func aliasMatch(h string, aliases []string) bool {
	for _, a := range aliases {
		if h == a || strings.HasPrefix(h, a+" ") || strings.HasPrefix(h, a+"(") {
			return true
		}
	}
	return false
}

// sniffDelimiter picks the most frequent candidate separator on the first
// non-empty line.
func sniffDelimiter(data []byte) rune {
	line := data
	for len(line) > 0 {
		i := bytes.IndexByte(line, '\n')
		first := line
		if i >= 0 {
			first = line[:i]
		}
		if len(bytes.TrimSpace(first)) > 0 {
			line = first
			break
		}
		if i < 0 {
			break
		}
		line = line[i+1:]
	}
	best, bestCount := ',', 0
	for _, d := range []rune{',', ';', '\t', '|'} {
		if n := bytes.Count(line, []byte(string(d))); n > bestCount {
			best, bestCount = d, n
		}
	}
	return best
}

// Parse reads a bank export. It fails only when no header or no data row
// can be found; every other quality problem becomes a Warning.
func Parse(r io.Reader, opts Options) (*Result, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read statement: %w", err)
	}
	cr := csv.NewReader(bytes.NewReader(data))
	cr.Comma = sniffDelimiter(data)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.TrimLeadingSpace = true
	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read csv: %w", err)
	}

	headerAt := -1
	var cols layout
	for i := 0; i < len(records) && i < headerScanRows; i++ {
		if l, ok := matchHeader(records[i]); ok {
			headerAt, cols = i, l
			break
		}
	}
	if headerAt < 0 {
		return nil, ErrNoHeader
	}

	res := &Result{}
	var lines []int
	for i := headerAt + 1; i < len(records); i++ {
		rec := records[i]
		line := i + 1
		if isBlank(rec) {
			continue
		}
		get := func(c column) string {
			idx := cols[c]
			if idx < 0 || idx >= len(rec) {
				return ""
			}
			return strings.TrimSpace(rec[idx])
		}

		amount, ok := rowAmount(get(colAmount), get(colDebit), get(colCredit))
		if !ok {
			res.Warnings = append(res.Warnings, Warning{
				Code: WarnInvalidAmount, Line: line,
				Message: "row skipped: no parseable amount",
			})
			continue
		}

		t := core.Transaction{
			Description: strings.Join(strings.Fields(get(colDescription)), " "),
			Amount:      amount,
			Category:    get(colCategory),
		}
		rawDate := get(colDate)
		if d, ok := ParseDate(rawDate, opts.DateOrder); ok {
			t.Date = d.Format("2006-01-02")
		} else {
			t.Date = rawDate
			res.Warnings = append(res.Warnings, Warning{
				Code: WarnInvalidDate, Line: line,
				Message: fmt.Sprintf("unrecognized date %q", rawDate),
			})
		}
		if b := get(colBalance); b != "" {
			if bal, err := core.ParseAmount(b); err == nil {
				t.Balance = decimal.NewNullDecimal(bal)
			}
		}
		if t.Category == "" {
			if cat, ok := opts.Preferences[core.PreferenceKey(t.Description)]; ok {
				t.Category = cat
			}
		}
		if t.Category == "" {
			res.Uncategorized++
			res.Warnings = append(res.Warnings, Warning{
				Code: WarnUncategorized, Line: line,
				Message: fmt.Sprintf("no category for %q", t.Description),
			})
		}
		res.Transactions = append(res.Transactions, t)
		lines = append(lines, line)
	}
	if len(res.Transactions) == 0 {
		return nil, ErrNoRows
	}
	res.Warnings = append(res.Warnings, balanceWarnings(res.Transactions, lines)...)
	return res, nil
}

func rowAmount(amount, debit, credit string) (decimal.Decimal, bool) {
	if amount != "" {
		d, err := core.ParseAmount(amount)
		return d, err == nil
	}
	var (
		total decimal.Decimal
		found bool
	)
	if credit != "" {
		if d, err := core.ParseAmount(credit); err == nil {
			total = total.Add(d.Abs())
			found = true
		}
	}
	if debit != "" {
		if d, err := core.ParseAmount(debit); err == nil {
			total = total.Sub(d.Abs())
			found = true
		}
	}
	return total, found
}

// balanceWarnings checks the running balance between adjacent rows that both
// carry one. Exports come oldest-first or newest-first, so both orientations
// are tried and the one with more consistent pairs is trusted.
func balanceWarnings(txs []core.Transaction, lines []int) []Warning {
	var forward, backward []int
	pairs := 0
	for i := 1; i < len(txs); i++ {
		prev, cur := txs[i-1], txs[i]
		if !prev.Balance.Valid || !cur.Balance.Valid {
			continue
		}
		pairs++
		if !prev.Balance.Decimal.Add(cur.Amount).Equal(cur.Balance.Decimal) {
			forward = append(forward, i)
		}
		if !cur.Balance.Decimal.Add(prev.Amount).Equal(prev.Balance.Decimal) {
			backward = append(backward, i)
		}
	}
	if pairs == 0 {
		return nil
	}
	bad := forward
	if len(backward) < len(forward) {
		bad = backward
	}
	out := make([]Warning, 0, len(bad))
	for _, i := range bad {
		out = append(out, Warning{
			Code: WarnBalanceMismatch, Line: lines[i],
			Message: fmt.Sprintf("balance %s does not follow from previous row", txs[i].Balance.Decimal),
		})
	}
	return out
}

var isoLayouts = []string{
	"2006-01-02",
	"2006/01/02",
	"2006.01.02",
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

var dayFirstLayouts = []string{
	"02/01/2006", "2/1/2006", "02-01-2006", "2-1-2006", "02.01.2006", "2.1.2006",
	"02/01/06", "2/1/06", "02-01-06",
}

var monthFirstLayouts = []string{
	"01/02/2006", "1/2/2006", "01-02-2006", "1-2-2006", "01.02.2006",
	"01/02/06", "1/2/06", "01-02-06",
}

var namedMonthLayouts = []string{
	"2 Jan 2006", "02 Jan 2006", "2 January 2006", "02-Jan-2006", "2-Jan-2006",
	"Jan 2, 2006", "January 2, 2006", "02 Jan 06",
}

// ParseDate recognizes the date formats found in bank exports. Time of day is
// dropped.
func ParseDate(s string, order DateOrder) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	numeric := dayFirstLayouts
	if order == MonthFirst {
		numeric = monthFirstLayouts
	}
	for _, group := range [][]string{isoLayouts, numeric, namedMonthLayouts} {
		for _, l := range group {
			if t, err := time.Parse(l, s); err == nil {
				y, m, d := t.Date()
				return time.Date(y, m, d, 0, 0, 0, 0, time.UTC), true
			}
		}
	}
	// "02/01/2006 10:30" style timestamps.
	if i := strings.IndexByte(s, ' '); i > 0 && strings.ContainsAny(s[i:], ":") {
		return ParseDate(s[:i], order)
	}
	return time.Time{}, false
}
