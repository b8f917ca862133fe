package analytics

import (
	"github.com/shopspring/decimal"

	"finboard/internal/core"
)

// funnelCategories is how many expense categories get their own stage.
const funnelCategories = 2

const (
	FunnelIncomeID  = "income"
	FunnelOthersID  = "others"
	FunnelSavingsID = "savings"

	// funnelCategoryPrefix keeps category stage ids apart from the fixed ones.
	funnelCategoryPrefix = "category:"
)

// FunnelCategoryID is the stage id of an expense category.
func FunnelCategoryID(category string) string {
	return funnelCategoryPrefix + category
}

type FunnelStage struct {
	ID    string          `json:"id"`
	Label string          `json:"label"`
	Value decimal.Decimal `json:"value"`
}

// BuildFunnel lays out income flowing into the two biggest expense
// categories, the remaining expenses and savings. Stages with a non-positive
// value are dropped.
func BuildFunnel(txs []core.Transaction, hidden HiddenSet) []FunnelStage {
	income := AggregateByCategory(txs, CategoryOptions{Sign: SignIncome, Hidden: hidden}).Sum()
	expenses := AggregateByCategory(txs, CategoryOptions{Sign: SignExpense, Hidden: hidden})

	stages := make([]FunnelStage, 0, funnelCategories+3)
	if income.IsPositive() {
		stages = append(stages, FunnelStage{ID: FunnelIncomeID, Label: "Income", Value: income})
	}
	ranked := expenses.Ranked()
	cut := min(funnelCategories, len(ranked))
	for _, ct := range ranked[:cut] {
		stages = append(stages, FunnelStage{ID: FunnelCategoryID(ct.Category), Label: ct.Category, Value: ct.Total})
	}
	others := decimal.Zero
	for _, ct := range ranked[cut:] {
		others = others.Add(ct.Total)
	}
	if others.IsPositive() {
		stages = append(stages, FunnelStage{ID: FunnelOthersID, Label: "Others", Value: others})
	}
	if savings := income.Sub(expenses.Sum()); savings.IsPositive() {
		stages = append(stages, FunnelStage{ID: FunnelSavingsID, Label: "Savings", Value: savings})
	}
	return stages
}
