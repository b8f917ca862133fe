package statements

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"finboard/internal/core"
	"finboard/internal/sheets"
)

// Ledger records statement bookkeeping.
type Ledger interface {
	SaveStatement(ctx context.Context, meta core.StatementMeta, rowCount int) error
	MarkStatementImported(ctx context.Context, id string, inserted int) error
}

// Notifier announces a finished import to asynchronous consumers.
type Notifier interface {
	PublishStatementImported(ctx context.Context, meta core.StatementMeta, result core.ImportResult) error
}

// Importer writes reviewed canonical CSV into the transaction store.
type Importer struct {
	writer   sheets.TransactionWriter
	ledger   Ledger
	notifier Notifier
}

// NewImporter wires an importer. ledger and notifier are optional. With a
// notifier the statement is marked imported by whoever consumes the event;
// otherwise the importer marks it directly.
func NewImporter(w sheets.TransactionWriter, ledger Ledger, notifier Notifier) *Importer {
	return &Importer{writer: w, ledger: ledger, notifier: notifier}
}

// Import inserts every row with a valid date. Rows with unparseable dates are
// counted, not inserted.
func (im *Importer) Import(ctx context.Context, csvText string, meta core.StatementMeta) (core.ImportResult, error) {
	var res core.ImportResult
	rows, err := ReadCanonical(strings.NewReader(csvText))
	if err != nil {
		return res, err
	}

	valid := make([]core.Transaction, 0, len(rows))
	for _, t := range rows {
		d, ok := t.ParsedDate()
		if !ok {
			res.SkippedInvalidDates++
			continue
		}
		t.Date = d.Format("2006-01-02")
		if err := t.Validate(); err != nil {
			if errors.Is(err, core.ErrEmptyDescription) {
				t.Description = "Unknown"
			} else {
				slog.WarnContext(ctx, "Skipping invalid row", "component", "importer", "error", err)
				continue
			}
		}
		t.Category = strings.TrimSpace(t.Category)
		valid = append(valid, t)
	}

	if im.ledger != nil && meta.FileID != "" {
		if err := im.ledger.SaveStatement(ctx, meta, len(rows)); err != nil {
			return res, fmt.Errorf("record statement: %w", err)
		}
	}

	n, err := im.writer.InsertTransactions(ctx, valid, meta.FileID)
	if err != nil {
		return res, fmt.Errorf("insert transactions: %w", err)
	}
	res.Inserted = n

	slog.InfoContext(ctx, "Statement imported",
		"component", "importer",
		"file_id", meta.FileID,
		"inserted", res.Inserted,
		"skipped_invalid_dates", res.SkippedInvalidDates)

	if meta.FileID == "" {
		return res, nil
	}
	if im.notifier != nil {
		err := im.notifier.PublishStatementImported(ctx, meta, res)
		if err == nil {
			return res, nil
		}
		slog.WarnContext(ctx, "Failed to publish import event, marking directly", "file_id", meta.FileID, "error", err)
	}
	if im.ledger != nil {
		if err := im.ledger.MarkStatementImported(ctx, meta.FileID, res.Inserted); err != nil {
			slog.WarnContext(ctx, "Failed to mark statement imported", "file_id", meta.FileID, "error", err)
		}
	}
	return res, nil
}
