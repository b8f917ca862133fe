package analytics

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"finboard/internal/core"
	"finboard/internal/kv"
)

// Tier groups spending categories by how discretionary they are.
type Tier string

const (
	TierEssentials Tier = "Essentials"
	TierMandatory  Tier = "Mandatory"
	TierWants      Tier = "Wants"
)

// tierOrder is the display order of tiers and the order keyword lists are
// checked in.
var tierOrder = []Tier{TierEssentials, TierMandatory, TierWants}

var tierKeywords = map[Tier][]string{
	TierEssentials: {
		"rent", "mortgage", "grocer", "supermarket", "utilit", "electric", "water",
		"heating", "gas", "health", "medical", "pharma", "doctor", "dental",
		"transport", "transit", "fuel", "taxi", "childcare", "internet", "phone",
	},
	TierMandatory: {
		"insurance", "tax", "loan", "debt", "interest", "fees", "bank",
		"government", "pension", "alimony", "tuition",
	},
	TierWants: {
		"dining", "restaurant", "takeaway", "coffee", "bar", "entertainment",
		"shopping", "clothing", "travel", "holiday", "subscription", "streaming",
		"hobby", "gift", "games", "sport",
	},
}

var ErrInvalidTier = errors.New("invalid tier")

// ParseTier matches a tier name case-insensitively.
func ParseTier(s string) (Tier, error) {
	for _, t := range tierOrder {
		if strings.EqualFold(strings.TrimSpace(s), string(t)) {
			return t, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidTier, s)
}

// TierOverrides maps a lowercased category name to a user-chosen tier.
type TierOverrides map[string]Tier

func tierKey(category string) string {
	return strings.ToLower(core.NormalizeCategory(category))
}

func (o TierOverrides) Lookup(category string) (Tier, bool) {
	t, ok := o[tierKey(category)]
	return t, ok
}

// ClassifyTier resolves a category to its tier: an override wins, then the
// first keyword list with a substring match, then Wants.
func ClassifyTier(category string, overrides TierOverrides) Tier {
	if t, ok := overrides.Lookup(category); ok {
		return t
	}
	name := tierKey(category)
	for _, t := range tierOrder {
		for _, kw := range tierKeywords[t] {
			if strings.Contains(name, kw) {
				return t
			}
		}
	}
	return TierWants
}

type TierTotal struct {
	Tier       Tier            `json:"tier"`
	Total      decimal.Decimal `json:"total"`
	Categories []string        `json:"categories"`
}

// AggregateByTier folds expense totals into tiers. Tiers without spending are
// omitted.
func AggregateByTier(txs []core.Transaction, hidden HiddenSet, overrides TierOverrides) []TierTotal {
	byCategory := AggregateByCategory(txs, CategoryOptions{Sign: SignExpense, Hidden: hidden})
	totals := make(map[Tier]*TierTotal, len(tierOrder))
	for _, ct := range byCategory.Ranked() {
		t := ClassifyTier(ct.Category, overrides)
		tt, ok := totals[t]
		if !ok {
			tt = &TierTotal{Tier: t}
			totals[t] = tt
		}
		tt.Total = tt.Total.Add(ct.Total)
		tt.Categories = append(tt.Categories, ct.Category)
	}
	out := make([]TierTotal, 0, len(totals))
	for _, t := range tierOrder {
		if tt, ok := totals[t]; ok {
			out = append(out, *tt)
		}
	}
	return out
}

// TierStore persists tier overrides.
type TierStore struct {
	store kv.Store
}

func NewTierStore(s kv.Store) *TierStore {
	return &TierStore{store: s}
}

func (s *TierStore) Load(ctx context.Context) TierOverrides {
	o := kv.Load(ctx, s.store, kv.KeyTierOverrides, TierOverrides{})
	if o == nil {
		return TierOverrides{}
	}
	return o
}

// Replace stores overrides as given, rekeyed to lowercase.
func (s *TierStore) Replace(ctx context.Context, overrides TierOverrides) error {
	clean := make(TierOverrides, len(overrides))
	for cat, t := range overrides {
		parsed, err := ParseTier(string(t))
		if err != nil {
			return fmt.Errorf("override for %q: %w", cat, err)
		}
		clean[tierKey(cat)] = parsed
	}
	return kv.Save(ctx, s.store, kv.KeyTierOverrides, clean)
}

// Set records one override and returns the updated map.
func (s *TierStore) Set(ctx context.Context, category string, t Tier) (TierOverrides, error) {
	o := s.Load(ctx)
	o[tierKey(category)] = t
	if err := s.Replace(ctx, o); err != nil {
		return nil, err
	}
	return o, nil
}

// Remove drops the override for category.
func (s *TierStore) Remove(ctx context.Context, category string) (TierOverrides, error) {
	o := s.Load(ctx)
	delete(o, tierKey(category))
	if err := kv.Save(ctx, s.store, kv.KeyTierOverrides, o); err != nil {
		return nil, err
	}
	return o, nil
}
