package analytics

import (
	"strings"

	"github.com/shopspring/decimal"

	"finboard/internal/core"
)

// DefaultHierarchyLeaves caps the description leaves under each category.
const DefaultHierarchyLeaves = 5

// HierarchyNode is a node of the expense tree used by the treemap and circle
// packing charts.
type HierarchyNode struct {
	Name     string          `json:"name"`
	Value    decimal.Decimal `json:"value"`
	Children []HierarchyNode `json:"children,omitempty"`
}

// BuildHierarchy groups expenses as root, then category, then description.
// Each category keeps its maxLeaves largest descriptions and folds the rest
// into an "Other" leaf.
func BuildHierarchy(txs []core.Transaction, hidden HiddenSet, maxLeaves int) HierarchyNode {
	if maxLeaves <= 0 {
		maxLeaves = DefaultHierarchyLeaves
	}
	byCategory := AggregateByCategory(txs, CategoryOptions{Sign: SignExpense, Hidden: hidden})
	leaves := make(map[string]*CategoryTotals, byCategory.Len())
	for _, tx := range txs {
		if !tx.IsExpense() || !hidden.visible(tx) {
			continue
		}
		cat := tx.NormalizedCategory()
		lt, ok := leaves[cat]
		if !ok {
			lt = newCategoryTotals()
			leaves[cat] = lt
		}
		desc := strings.Join(strings.Fields(tx.Description), " ")
		if desc == "" {
			desc = "Unknown"
		}
		lt.add(desc, tx.Amount.Abs())
	}

	root := HierarchyNode{Name: "Expenses", Value: byCategory.Sum(), Children: []HierarchyNode{}}
	for _, ct := range byCategory.Ranked() {
		node := HierarchyNode{Name: ct.Category, Value: ct.Total}
		for _, leaf := range leaves[ct.Category].TopN(maxLeaves, core.OtherCategory) {
			node.Children = append(node.Children, HierarchyNode{Name: leaf.Category, Value: leaf.Total})
		}
		root.Children = append(root.Children, node)
	}
	return root
}
