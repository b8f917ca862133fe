package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"finboard/internal/core"
	"finboard/internal/kv"
	"finboard/internal/sheets"
)

// BudgetService serves ring limits per date filter. The budget store is the
// source of truth; the KV copy keeps the last known limits available when the
// store is unreachable.
type BudgetService struct {
	store sheets.BudgetStore
	cache kv.Store
}

func NewBudgetService(store sheets.BudgetStore, cache kv.Store) *BudgetService {
	return &BudgetService{store: store, cache: cache}
}

// RingLimitsKey is the KV key holding cached limits for filter.
func RingLimitsKey(filter core.DateFilter) string {
	return kv.KeyRingLimitsPrefix + filter.String()
}

// Limits returns the limits for filter. A store failure falls back to the
// cached copy and is only logged.
func (s *BudgetService) Limits(ctx context.Context, filter core.DateFilter) map[string]decimal.Decimal {
	key := RingLimitsKey(filter)
	if s.store != nil {
		limits, err := s.store.ListBudgets(ctx, filter)
		if err == nil {
			if s.cache != nil {
				if err := kv.Save(ctx, s.cache, key, limits); err != nil {
					slog.WarnContext(ctx, "Failed to refresh budget cache", "filter", filter.String(), "error", err)
				}
			}
			return limits
		}
		slog.WarnContext(ctx, "Budget store unavailable, using cached limits", "filter", filter.String(), "error", err)
	}
	if s.cache == nil {
		return map[string]decimal.Decimal{}
	}
	limits := kv.Load(ctx, s.cache, key, map[string]decimal.Decimal{})
	if limits == nil {
		return map[string]decimal.Decimal{}
	}
	return limits
}

// Save writes the limit to the cache and then persists it. A persist failure
// is returned but leaves the cached value in place.
func (s *BudgetService) Save(ctx context.Context, b core.Budget) error {
	b.Category = core.NormalizeCategory(b.Category)
	if err := b.Validate(); err != nil {
		return err
	}

	if s.cache != nil {
		key := RingLimitsKey(b.Filter)
		limits := kv.Load(ctx, s.cache, key, map[string]decimal.Decimal{})
		if limits == nil {
			limits = map[string]decimal.Decimal{}
		}
		limits[b.Category] = b.Amount
		if err := kv.Save(ctx, s.cache, key, limits); err != nil {
			slog.WarnContext(ctx, "Failed to cache budget", "category", b.Category, "error", err)
		}
	}

	if s.store == nil {
		return nil
	}
	if err := s.store.SaveBudget(ctx, b); err != nil {
		slog.WarnContext(ctx, "Failed to persist budget, cached value kept",
			"category", b.Category,
			"filter", b.Filter.String(),
			"error", err)
		return fmt.Errorf("persist budget: %w", err)
	}

	slog.InfoContext(ctx, "Budget saved", "category", b.Category, "filter", b.Filter.String(), "amount", b.Amount.String())
	return nil
}
