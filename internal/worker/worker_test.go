package worker

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/shopspring/decimal"

	"finboard/internal/amqp"
	"finboard/internal/core"
	"finboard/internal/storage"
)

type fakePrefs struct {
	saved []core.CategoryPreference
	err   error
}

func (f *fakePrefs) SavePreferences(_ context.Context, prefs []core.CategoryPreference) error {
	f.saved = append(f.saved, prefs...)
	return f.err
}

type fakeLedger struct {
	marked  map[string]int
	rows    []core.Transaction
	markErr error
}

func (f *fakeLedger) MarkStatementImported(_ context.Context, id string, inserted int) error {
	if f.markErr != nil {
		return f.markErr
	}
	if f.marked == nil {
		f.marked = map[string]int{}
	}
	f.marked[id] = inserted
	return nil
}

func (f *fakeLedger) ListStatementTransactions(context.Context, string) ([]core.Transaction, error) {
	return f.rows, nil
}

type fakeMirror struct {
	rows int
	err  error
}

func (f *fakeMirror) InsertTransactions(_ context.Context, txs []core.Transaction, _ string) (int, error) {
	if f.err != nil {
		return 0, f.err
	}
	f.rows += len(txs)
	return len(txs), nil
}

func TestHandlePreferenceBatch(t *testing.T) {
	prefs := &fakePrefs{}
	w := New(prefs, &fakeLedger{}, nil)
	msg := amqp.NewPreferenceBatchMessage([]core.CategoryPreference{{Description: "Coffee", Category: "Dining"}})
	if err := w.HandlePreferenceBatch(context.Background(), msg); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if len(prefs.saved) != 1 {
		t.Fatalf("saved = %+v", prefs.saved)
	}

	prefs.err = errors.New("locked")
	if err := w.HandlePreferenceBatch(context.Background(), msg); err == nil {
		t.Fatal("expected error so the message is requeued")
	}
}

func TestHandleStatementImported(t *testing.T) {
	ctx := context.Background()
	rows := []core.Transaction{{Date: "2025-01-01", Description: "x", Amount: decimal.NewFromInt(-1)}}
	msg := amqp.NewStatementImportedMessage(core.StatementMeta{FileID: "f1"}, core.ImportResult{Inserted: 1})

	t.Run("marks and mirrors", func(t *testing.T) {
		ledger := &fakeLedger{rows: rows}
		mirror := &fakeMirror{}
		if err := New(&fakePrefs{}, ledger, mirror).HandleStatementImported(ctx, msg); err != nil {
			t.Fatalf("handle: %v", err)
		}
		if ledger.marked["f1"] != 1 || mirror.rows != 1 {
			t.Fatalf("marked=%v mirrored=%d", ledger.marked, mirror.rows)
		}
	})

	t.Run("unknown statement is dropped", func(t *testing.T) {
		ledger := &fakeLedger{markErr: fmt.Errorf("mark: %w", storage.ErrStatementNotFound)}
		if err := New(&fakePrefs{}, ledger, nil).HandleStatementImported(ctx, msg); err != nil {
			t.Fatalf("expected nil for unknown statement, got %v", err)
		}
	})

	t.Run("mirror failure requeues", func(t *testing.T) {
		ledger := &fakeLedger{rows: rows}
		mirror := &fakeMirror{err: errors.New("quota")}
		if err := New(&fakePrefs{}, ledger, mirror).HandleStatementImported(ctx, msg); err == nil {
			t.Fatal("expected error")
		}
		if ledger.marked["f1"] != 1 {
			t.Fatal("statement should be marked before mirroring")
		}
	})
}
