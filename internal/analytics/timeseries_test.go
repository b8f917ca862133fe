package analytics

import (
	"testing"

	"github.com/shopspring/decimal"

	"finboard/internal/core"
)

func TestAggregateTimeSeriesSkipsInvalidDates(t *testing.T) {
	txs := []core.Transaction{
		tx("2025-02-03", "Dining", "-60"),
		tx("not-a-date", "Travel", "-300"),
		tx("2025-01-05", "Rent", "-900"),
		tx("2025-02-01", "Salary", "2500"),
	}
	flows := AggregateTimeSeries(txs, SeriesOptions{})
	if len(flows) != 2 {
		t.Fatalf("expected 2 periods, got %+v", flows)
	}
	if flows[0].Period != "2025-01" || flows[1].Period != "2025-02" {
		t.Fatalf("periods not sorted: %+v", flows)
	}
	if !flows[1].Income.Equal(dec("2500")) || !flows[1].Expense.Equal(dec("60")) {
		t.Errorf("feb flow = %+v", flows[1])
	}
	if n := CountInvalidDates(txs); n != 1 {
		t.Errorf("CountInvalidDates = %d, want 1", n)
	}
}

func TestAggregateTimeSeriesWeekly(t *testing.T) {
	txs := []core.Transaction{
		tx("2025-01-01", "A", "-1"), // Wednesday
		tx("2024-12-29", "A", "-2"), // Sunday, same week
		tx("2025-01-05", "A", "-4"), // next Sunday
	}
	flows := AggregateTimeSeries(txs, SeriesOptions{Bucket: BucketBy(core.Week)})
	if len(flows) != 2 {
		t.Fatalf("got %+v", flows)
	}
	if flows[0].Period != "2024-12-29" || !flows[0].Expense.Equal(dec("3")) {
		t.Errorf("first week = %+v", flows[0])
	}
	if flows[1].Period != "2025-01-05" {
		t.Errorf("second week = %+v", flows[1])
	}
}

func TestCumulativeSeries(t *testing.T) {
	flows := []PeriodFlow{
		{Period: "2025-01", Income: dec("100"), Expense: dec("40")},
		{Period: "2025-02", Income: dec("0"), Expense: dec("10")},
		{Period: "2025-03", Income: dec("50"), Expense: dec("0")},
	}
	inc := CumulativeIncome(flows)
	exp := CumulativeExpense(flows)
	wantInc := []string{"100", "100", "150"}
	wantExp := []string{"40", "50", "50"}
	for i := range flows {
		if !inc[i].Value.Equal(dec(wantInc[i])) {
			t.Errorf("income[%d] = %s", i, inc[i].Value)
		}
		if !exp[i].Value.Equal(dec(wantExp[i])) {
			t.Errorf("expense[%d] = %s", i, exp[i].Value)
		}
	}
}

func TestNetWorthTrend(t *testing.T) {
	withBalance := func(t core.Transaction, b string) core.Transaction {
		t.Balance = decimal.NewNullDecimal(dec(b))
		return t
	}
	txs := []core.Transaction{
		tx("2025-01-02", "Salary", "1000"),
		tx("2025-01-10", "Rent", "-400"),
		withBalance(tx("2025-02-01", "Rent", "-100"), "5000"),
		withBalance(tx("2025-02-15", "Food", "-50"), "4950"),
		tx("2025-03-01", "Food", "-20"),
	}
	got := NetWorthTrend(txs, SeriesOptions{})
	want := []string{"600", "4950", "4930"}
	if len(got) != len(want) {
		t.Fatalf("got %+v", got)
	}
	for i, w := range want {
		if !got[i].Value.Equal(dec(w)) {
			t.Errorf("period %s = %s, want %s", got[i].Period, got[i].Value, w)
		}
	}
}

func TestBuildStream(t *testing.T) {
	txs := []core.Transaction{
		tx("2025-01-01", "A", "-30"),
		tx("2025-01-02", "B", "-20"),
		tx("2025-02-01", "C", "-10"),
		tx("2025-02-02", "A", "-5"),
	}
	s := BuildStream(txs, StreamOptions{TopN: 2})
	if len(s.Keys) != 3 || s.Keys[0] != "A" || s.Keys[1] != "B" || s.Keys[2] != core.OtherCategory {
		t.Fatalf("keys = %v", s.Keys)
	}
	if len(s.Points) != 2 {
		t.Fatalf("points = %+v", s.Points)
	}
	feb := s.Points[1]
	if !feb.Values[core.OtherCategory].Equal(dec("10")) || !feb.Values["B"].IsZero() || !feb.Values["A"].Equal(dec("5")) {
		t.Errorf("feb values = %v", feb.Values)
	}
}

func TestBuildStreamRealOtherCategory(t *testing.T) {
	txs := []core.Transaction{
		tx("2025-01-01", core.OtherCategory, "-10"),
		tx("2025-01-02", "A", "-3"),
		tx("2025-01-03", "B", "-2"),
	}
	s := BuildStream(txs, StreamOptions{TopN: 1})
	if len(s.Keys) != 2 || s.Keys[0] != core.OtherCategory || s.Keys[1] != StreamRestKey {
		t.Fatalf("keys = %v", s.Keys)
	}
	jan := s.Points[0]
	if !jan.Values[core.OtherCategory].Equal(dec("10")) || !jan.Values[StreamRestKey].Equal(dec("5")) {
		t.Errorf("jan values = %v", jan.Values)
	}
}

func TestBuildHierarchy(t *testing.T) {
	txs := []core.Transaction{
		{Date: "2025-01-01", Description: "Market  A", Amount: dec("-10"), Category: "Food"},
		{Date: "2025-01-02", Description: "Market A", Amount: dec("-15"), Category: "Food"},
		{Date: "2025-01-03", Description: "Bakery", Amount: dec("-5"), Category: "Food"},
		{Date: "2025-01-04", Description: "", Amount: dec("-7"), Category: "Misc"},
	}
	root := BuildHierarchy(txs, nil, 1)
	if !root.Value.Equal(dec("37")) || len(root.Children) != 2 {
		t.Fatalf("root = %+v", root)
	}
	food := root.Children[0]
	if food.Name != "Food" || len(food.Children) != 2 {
		t.Fatalf("food = %+v", food)
	}
	if food.Children[0].Name != "Market A" || !food.Children[0].Value.Equal(dec("25")) {
		t.Errorf("leaf = %+v", food.Children[0])
	}
	if food.Children[1].Name != core.OtherCategory || !food.Children[1].Value.Equal(dec("5")) {
		t.Errorf("remainder = %+v", food.Children[1])
	}
	if root.Children[1].Children[0].Name != "Unknown" {
		t.Errorf("empty description leaf = %+v", root.Children[1])
	}
}
