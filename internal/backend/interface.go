package backend

import (
	"context"

	"finboard/internal/kv"
	"finboard/internal/sheets"
	"finboard/internal/statements"
)

// Backend is the transaction store behind the API: transactions, budgets and
// learned preferences.
type Backend interface {
	sheets.TransactionReader
	sheets.TransactionWriter
	sheets.BudgetStore
	sheets.PreferenceStore
}

// CleanupFunc represents a cleanup function for resources
type CleanupFunc func() error

// BackendResult contains the backend instance and optional cleanup function
type BackendResult struct {
	Backend Backend
	// Ledger records statement bookkeeping. Only the sqlite backend has one.
	Ledger statements.Ledger
	// KV is the dashboard state store chosen by the KV type.
	KV      kv.Store
	Cleanup CleanupFunc
}

// Close runs Cleanup when set.
func (r *BackendResult) Close() error {
	if r == nil || r.Cleanup == nil {
		return nil
	}
	return r.Cleanup()
}

// Factory creates backends based on configuration
type Factory interface {
	CreateBackend(ctx context.Context, config Config) (*BackendResult, error)
}

// BackendType represents the type of backend
type BackendType string

const (
	MemoryBackend BackendType = "memory"
	SQLiteBackend BackendType = "sqlite"
	SheetsBackend BackendType = "sheets"
	RemoteBackend BackendType = "remote"
)

// KVType selects where dashboard state lives.
type KVType string

const (
	MemoryKV KVType = "memory"
	SQLiteKV KVType = "sqlite"
)

// String implements fmt.Stringer
func (bt BackendType) String() string {
	return string(bt)
}

// IsValid returns true if the backend type is valid
func (bt BackendType) IsValid() bool {
	switch bt {
	case MemoryBackend, SQLiteBackend, SheetsBackend, RemoteBackend:
		return true
	default:
		return false
	}
}

func (k KVType) IsValid() bool {
	return k == MemoryKV || k == SQLiteKV
}
