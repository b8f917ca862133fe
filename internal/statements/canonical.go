package statements

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/shopspring/decimal"

	"finboard/internal/core"
)

// CanonicalHeader is the column order of the canonical CSV exchanged between
// the parse and import endpoints.
var CanonicalHeader = []string{"date", "description", "amount", "balance", "category"}

var ErrInvalidCSV = errors.New("invalid canonical csv")

// WriteCanonical renders txs as canonical CSV.
func WriteCanonical(w io.Writer, txs []core.Transaction) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(CanonicalHeader); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for _, t := range txs {
		balance := ""
		if t.Balance.Valid {
			balance = t.Balance.Decimal.String()
		}
		if err := cw.Write([]string{t.Date, t.Description, t.Amount.String(), balance, t.Category}); err != nil {
			return fmt.Errorf("write row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadCanonical parses canonical CSV. Columns may appear in any order;
// balance and category are optional. Dates are returned as written.
func ReadCanonical(r io.Reader) ([]core.Transaction, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("%w: empty input", ErrInvalidCSV)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCSV, err)
	}
	cols := make(map[string]int, len(header))
	for i, h := range header {
		cols[strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))] = i
	}
	for _, required := range []string{"date", "description", "amount"} {
		if _, ok := cols[required]; !ok {
			return nil, fmt.Errorf("%w: missing %q column", ErrInvalidCSV, required)
		}
	}
	field := func(rec []string, name string) string {
		i, ok := cols[name]
		if !ok || i >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[i])
	}

	var out []core.Transaction
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", ErrInvalidCSV, line, err)
		}
		if isBlank(rec) {
			continue
		}
		amount, err := core.ParseAmount(field(rec, "amount"))
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", ErrInvalidCSV, line, err)
		}
		t := core.Transaction{
			Date:        field(rec, "date"),
			Description: field(rec, "description"),
			Amount:      amount,
			Category:    field(rec, "category"),
		}
		if b := field(rec, "balance"); b != "" {
			bal, err := core.ParseAmount(b)
			if err != nil {
				return nil, fmt.Errorf("%w: line %d: balance: %v", ErrInvalidCSV, line, err)
			}
			t.Balance = decimal.NewNullDecimal(bal)
		}
		out = append(out, t)
	}
	return out, nil
}

func isBlank(rec []string) bool {
	for _, f := range rec {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}
