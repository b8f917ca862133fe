package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"finboard/internal/amqp"
	"finboard/internal/core"
	"finboard/internal/services"
	"finboard/internal/sheets"
	"finboard/internal/storage"
)

// StatementLedger is the statement bookkeeping the worker updates.
type StatementLedger interface {
	MarkStatementImported(ctx context.Context, id string, inserted int) error
	ListStatementTransactions(ctx context.Context, statementID string) ([]core.Transaction, error)
}

// Worker handles messages published by the API server: it persists
// coalesced preference batches and finishes statement imports, optionally
// mirroring imported rows to a spreadsheet.
type Worker struct {
	prefs  services.PreferenceSink
	ledger StatementLedger
	mirror sheets.TransactionWriter
}

var _ amqp.Handler = (*Worker)(nil)

// New builds a worker. mirror may be nil.
func New(prefs services.PreferenceSink, ledger StatementLedger, mirror sheets.TransactionWriter) *Worker {
	return &Worker{prefs: prefs, ledger: ledger, mirror: mirror}
}

// HandlePreferenceBatch persists one batch of learned preferences.
func (w *Worker) HandlePreferenceBatch(ctx context.Context, msg *amqp.PreferenceBatchMessage) error {
	slog.InfoContext(ctx, "Processing preference batch",
		"count", len(msg.Entries),
		"timestamp", msg.Timestamp)

	if err := w.prefs.SavePreferences(ctx, msg.Entries); err != nil {
		return fmt.Errorf("save preferences: %w", err)
	}
	return nil
}

// HandleStatementImported stamps the statement as imported, then mirrors its
// rows. Marking is idempotent, so a requeued message after a mirror failure
// is safe to process again.
func (w *Worker) HandleStatementImported(ctx context.Context, msg *amqp.StatementImportedMessage) error {
	id := msg.Statement.FileID
	slog.InfoContext(ctx, "Processing statement import",
		"statement_id", id,
		"inserted", msg.Inserted,
		"skipped_invalid_dates", msg.SkippedInvalidDates)

	if err := w.ledger.MarkStatementImported(ctx, id, msg.Inserted); err != nil {
		if errors.Is(err, storage.ErrStatementNotFound) {
			slog.WarnContext(ctx, "Dropping import event for unknown statement", "statement_id", id)
			return nil
		}
		return fmt.Errorf("mark statement imported: %w", err)
	}

	if w.mirror == nil {
		return nil
	}
	rows, err := w.ledger.ListStatementTransactions(ctx, id)
	if err != nil {
		return fmt.Errorf("load statement rows: %w", err)
	}
	n, err := w.mirror.InsertTransactions(ctx, rows, id)
	if err != nil {
		return fmt.Errorf("mirror statement rows: %w", err)
	}
	slog.InfoContext(ctx, "Mirrored statement rows", "statement_id", id, "rows", n)
	return nil
}
