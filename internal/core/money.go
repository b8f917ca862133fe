// Package core provides money parsing and handling utilities.
//
// This file contains functions for parsing signed amounts as they appear in
// bank exports and for formatting decimals for display.
package core

import (
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
)

func init() {
	// Amounts travel as JSON numbers on the wire.
	decimal.MarshalJSONWithoutQuotes = true
}

// ParseAmount converts a bank-export amount string to a signed decimal.
//
// It accepts an optional sign, accounting-style parentheses for negatives,
// currency symbols, and either dot or comma as the decimal separator. When
// both separators appear, the last one is the decimal separator and the
// other is a thousands separator. A separator that appears more than once is
// always a thousands separator.
//
// Examples:
//
//	ParseAmount("-12.34")     -> -12.34
//	ParseAmount("(1,234.50)") -> -1234.50
//	ParseAmount("€ 1.234,50") -> 1234.50
//	ParseAmount("12,5")       -> 12.5
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, ErrInvalidAmount
	}

	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = s[1 : len(s)-1]
	}

	// Drop currency symbols, letters and spaces; keep digits, separators and sign.
	var b strings.Builder
	for _, r := range s {
		switch {
		case unicode.IsDigit(r), r == '.', r == ',':
			b.WriteRune(r)
		case r == '-' || r == '−':
			// Leading or trailing ("12.00-") minus both flip the sign.
			negative = !negative
		case r == '+':
		case unicode.IsSpace(r), unicode.IsLetter(r), unicode.Is(unicode.Sc, r), r == '\'':
		default:
			return decimal.Zero, ErrInvalidAmount
		}
	}
	num := b.String()
	if num == "" {
		return decimal.Zero, ErrInvalidAmount
	}

	num = normalizeSeparators(num)
	d, err := decimal.NewFromString(num)
	if err != nil {
		return decimal.Zero, ErrInvalidAmount
	}
	if negative {
		d = d.Neg()
	}
	return d, nil
}

func normalizeSeparators(num string) string {
	dots := strings.Count(num, ".")
	commas := strings.Count(num, ",")
	switch {
	case dots > 0 && commas > 0:
		if strings.LastIndex(num, ",") > strings.LastIndex(num, ".") {
			num = strings.ReplaceAll(num, ".", "")
			return strings.Replace(num, ",", ".", 1)
		}
		return strings.ReplaceAll(num, ",", "")
	case commas > 1:
		return strings.ReplaceAll(num, ",", "")
	case commas == 1:
		return strings.Replace(num, ",", ".", 1)
	case dots > 1:
		return strings.ReplaceAll(num, ".", "")
	}
	return num
}

// FormatAmount renders a decimal with two fraction digits for display.
func FormatAmount(d decimal.Decimal) string {
	return d.StringFixed(2)
}
