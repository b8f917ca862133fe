package main

import (
	"context"
	"errors"
	"slices"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"finboard/internal/analytics"
	"finboard/internal/core"
)

type fakeSource struct {
	txs     []core.Transaction
	limits  map[string]decimal.Decimal
	txErr   error
	gotFrom core.DateFilter
}

func (f *fakeSource) ListTransactions(_ context.Context, q core.TransactionQuery) ([]core.Transaction, error) {
	return f.txs, f.txErr
}

func (f *fakeSource) ListBudgets(_ context.Context, filter core.DateFilter) (map[string]decimal.Decimal, error) {
	f.gotFrom = filter
	return f.limits, nil
}

func tx(date, desc, amount, category string) core.Transaction {
	return core.Transaction{
		Date:        date,
		Description: desc,
		Amount:      decimal.RequireFromString(amount),
		Category:    category,
	}
}

func TestFetchInputs(t *testing.T) {
	src := &fakeSource{
		txs: []core.Transaction{
			tx("2024-01-05", "Salary", "3000", "Salary"),
			tx("2024-01-06", "Rent", "-1200", "Rent"),
		},
		limits: map[string]decimal.Decimal{"Rent": decimal.NewFromInt(1500)},
	}

	in, err := fetchInputs(context.Background(), src, core.TransactionQuery{Filter: "2024"})
	if err != nil {
		t.Fatalf("fetchInputs: %v", err)
	}
	if len(in.Transactions) != 2 {
		t.Errorf("transactions = %d, want 2", len(in.Transactions))
	}
	if !in.Limits["Rent"].Equal(decimal.NewFromInt(1500)) {
		t.Errorf("Rent limit = %s", in.Limits["Rent"])
	}
	if src.gotFrom != "2024" || in.Filter != "2024" {
		t.Errorf("filter not propagated: budgets %q, inputs %q", src.gotFrom, in.Filter)
	}
}

func TestFetchInputs_Error(t *testing.T) {
	src := &fakeSource{txErr: errors.New("connection refused")}

	_, err := fetchInputs(context.Background(), src, core.TransactionQuery{Filter: core.FilterAllTime})
	if err == nil || !strings.Contains(err.Error(), "list transactions") {
		t.Fatalf("err = %v, want wrapped list error", err)
	}
}

func TestSplitCategories(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"", nil},
		{" , ,", nil},
		{" Rent, ,Food,Rent", []string{"Rent", "Food"}},
		{"a,b,c,d,e,f", []string{"a", "b", "c", "d", "e"}},
	}
	for _, tt := range tests {
		if got := splitCategories(tt.in); !slices.Equal(got, tt.want) {
			t.Errorf("splitCategories(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestWriteReport(t *testing.T) {
	d := analytics.Compute(analytics.Inputs{
		Filter: core.FilterAllTime,
		Transactions: []core.Transaction{
			tx("2024-01-05", "Salary", "3000", "Salary"),
			tx("2024-01-06", "Rent", "-1200", "Rent"),
			tx("2024-01-10", "Supermarket", "-150.50", "Groceries"),
		},
		Limits: map[string]decimal.Decimal{"Rent": decimal.NewFromInt(1500)},
	})

	var out strings.Builder
	if err := writeReport(&out, d); err != nil {
		t.Fatalf("writeReport: %v", err)
	}
	got := out.String()
	for _, want := range []string{"Expenses by category", "Rent", "1200.00", "150.50", "Cash flow", "Budget rings"} {
		if !strings.Contains(got, want) {
			t.Errorf("report missing %q:\n%s", want, got)
		}
	}
}

func TestWriteReport_Empty(t *testing.T) {
	var out strings.Builder
	if err := writeReport(&out, analytics.Compute(analytics.Inputs{Filter: core.FilterAllTime})); err != nil {
		t.Fatalf("writeReport: %v", err)
	}
	if strings.Contains(out.String(), "Expenses by category") {
		t.Errorf("empty sections should be skipped:\n%s", out.String())
	}
}

func TestDefaultRingsUseTopSpend(t *testing.T) {
	in := analytics.Inputs{
		Filter: core.FilterAllTime,
		Transactions: []core.Transaction{
			tx("2024-01-06", "Rent", "-1200", "Rent"),
			tx("2024-01-10", "Supermarket", "-150", "Groceries"),
		},
		RingCategories: splitCategories(""),
	}
	rings := analytics.Compute(in).Rings
	if len(rings) != 2 || rings[0].Category != "Rent" || rings[1].Category != "Groceries" {
		t.Errorf("rings = %+v, want top spenders Rent and Groceries", rings)
	}
}
