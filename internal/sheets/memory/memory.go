package memory

import (
	"bufio"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"finboard/internal/core"
	"finboard/internal/statements"
)

// Store keeps transactions, budgets and preferences in process memory.
type Store struct {
	mu      sync.Mutex
	nextID  int64
	items   []core.Transaction
	budgets map[core.DateFilter]map[string]decimal.Decimal
	prefs   map[string]core.CategoryPreference
	now     func() time.Time
}

func New(txs []core.Transaction) *Store {
	s := &Store{
		budgets: make(map[core.DateFilter]map[string]decimal.Decimal),
		prefs:   make(map[string]core.CategoryPreference),
		now:     time.Now,
	}
	for _, t := range txs {
		s.add(t)
	}
	return s
}

// NewFromFiles seeds the store from base/transactions.csv (canonical CSV) and
// base/seed_preferences.txt ("description|category" per line). Missing files
// leave the store empty.
func NewFromFiles(base string) *Store {
	s := New(nil)
	if f, err := os.Open(filepath.Join(base, "transactions.csv")); err == nil {
		txs, err := statements.ReadCanonical(f)
		f.Close()
		if err != nil {
			slog.Warn("Ignoring unreadable seed transactions", "path", f.Name(), "error", err)
		}
		for _, t := range txs {
			s.add(t)
		}
	}
	var prefs []core.CategoryPreference
	for _, line := range readLines(filepath.Join(base, "seed_preferences.txt")) {
		desc, cat, ok := strings.Cut(line, "|")
		if !ok {
			continue
		}
		prefs = append(prefs, core.CategoryPreference{Description: strings.TrimSpace(desc), Category: strings.TrimSpace(cat)})
	}
	_ = s.SavePreferences(context.Background(), prefs)
	return s
}

func (s *Store) add(t core.Transaction) {
	s.nextID++
	t.ID = s.nextID
	s.items = append(s.items, t)
}

func (s *Store) ListTransactions(_ context.Context, q core.TransactionQuery) ([]core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return core.SelectTransactions(s.items, q, s.now()), nil
}

// InsertTransactions stores txs with fresh ids.
func (s *Store) InsertTransactions(_ context.Context, txs []core.Transaction, _ string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range txs {
		s.add(t)
	}
	return len(txs), nil
}

func (s *Store) ListBudgets(_ context.Context, filter core.DateFilter) (map[string]decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]decimal.Decimal, len(s.budgets[filter]))
	for k, v := range s.budgets[filter] {
		out[k] = v
	}
	return out, nil
}

func (s *Store) SaveBudget(_ context.Context, b core.Budget) error {
	if err := b.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.budgets[b.Filter]
	if !ok {
		m = make(map[string]decimal.Decimal)
		s.budgets[b.Filter] = m
	}
	m[core.NormalizeCategory(b.Category)] = b.Amount
	return nil
}

func (s *Store) ListPreferences(_ context.Context) ([]core.CategoryPreference, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.CategoryPreference, 0, len(s.prefs))
	for _, p := range s.prefs {
		out = append(out, p)
	}
	return out, nil
}

// SavePreferences upserts by normalized description; invalid entries are skipped.
func (s *Store) SavePreferences(_ context.Context, prefs []core.CategoryPreference) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range prefs {
		if p.Validate() != nil {
			continue
		}
		p.Category = core.NormalizeCategory(p.Category)
		s.prefs[core.PreferenceKey(p.Description)] = p
	}
	return nil
}

func readLines(path string) []string {
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()
	var out []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, line)
	}
	return out
}
