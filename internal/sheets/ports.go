package sheets

import (
	"context"

	"github.com/shopspring/decimal"

	"finboard/internal/core"
)

// Ports for outbound adapters.
type (
	TransactionReader interface {
		// ListTransactions returns transactions matching q, oldest first.
		ListTransactions(ctx context.Context, q core.TransactionQuery) ([]core.Transaction, error)
	}

	TransactionWriter interface {
		// InsertTransactions stores txs and returns how many were written.
		InsertTransactions(ctx context.Context, txs []core.Transaction, statementID string) (int, error)
	}

	// BudgetStore holds per-filter category limits.
	BudgetStore interface {
		ListBudgets(ctx context.Context, filter core.DateFilter) (map[string]decimal.Decimal, error)
		SaveBudget(ctx context.Context, b core.Budget) error
	}

	// PreferenceStore holds learned description to category mappings.
	PreferenceStore interface {
		ListPreferences(ctx context.Context) ([]core.CategoryPreference, error)
		SavePreferences(ctx context.Context, prefs []core.CategoryPreference) error
	}
)
