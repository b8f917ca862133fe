package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/shopspring/decimal"

	"finboard/internal/core"

	_ "modernc.org/sqlite"
)

// SQLiteRepository is the SQLite-backed store for transactions, budgets,
// learned preferences, dashboard KV state and statement bookkeeping.
type SQLiteRepository struct {
	db  *sql.DB
	now func() time.Time
}

// dsnPragmas keep concurrent server and worker processes from failing on a
// locked database.
const dsnPragmas = "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}
	dsn := dbPath + dsnPragmas

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	version, err := RunMigrations(dsn)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	slog.Debug("SQLite schema ready", "path", dbPath, "version", version)

	return &SQLiteRepository{db: db, now: time.Now}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// ListStatementTransactions returns the rows imported from one statement.
func (r *SQLiteRepository) ListStatementTransactions(ctx context.Context, statementID string) ([]core.Transaction, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, date, description, amount, balance, category FROM transactions WHERE statement_id = ? ORDER BY date, id`,
		statementID)
	if err != nil {
		return nil, fmt.Errorf("query statement transactions: %w", err)
	}
	return scanTransactions(rows)
}

func scanTransactions(rows *sql.Rows) ([]core.Transaction, error) {
	defer rows.Close()
	var out []core.Transaction
	for rows.Next() {
		var t core.Transaction
		if err := rows.Scan(&t.ID, &t.Date, &t.Description, &t.Amount, &t.Balance, &t.Category); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transactions: %w", err)
	}
	return out, nil
}

// ListTransactions returns transactions in the query range, oldest first.
func (r *SQLiteRepository) ListTransactions(ctx context.Context, q core.TransactionQuery) ([]core.Transaction, error) {
	query := `SELECT id, date, description, amount, balance, category FROM transactions`
	var args []any
	if start, end, bounded := q.Filter.Range(r.now()); bounded {
		query += ` WHERE date >= ? AND date < ?`
		args = append(args, start.Format("2006-01-02"), end.Format("2006-01-02"))
	}
	if limit := q.Limit(); limit > 0 {
		// Newest rows win the cap; the outer select restores chronological order.
		query = `SELECT * FROM (` + query + ` ORDER BY date DESC, id DESC LIMIT ?) ORDER BY date, id`
		args = append(args, limit)
	} else {
		query += ` ORDER BY date, id`
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query transactions: %w", err)
	}
	return scanTransactions(rows)
}

// InsertTransactions writes txs in one database transaction and returns the
// number of rows inserted. statementID may be empty.
func (r *SQLiteRepository) InsertTransactions(ctx context.Context, txs []core.Transaction, statementID string) (int, error) {
	if len(txs) == 0 {
		return 0, nil
	}
	dbtx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin insert: %w", err)
	}
	defer dbtx.Rollback()

	stmt, err := dbtx.PrepareContext(ctx,
		`INSERT INTO transactions (date, description, amount, balance, category, statement_id)
		 VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	var sid sql.NullString
	if statementID != "" {
		sid = sql.NullString{String: statementID, Valid: true}
	}
	for _, t := range txs {
		if _, err := stmt.ExecContext(ctx, t.Date, t.Description, t.Amount, t.Balance, t.Category, sid); err != nil {
			return 0, fmt.Errorf("insert transaction %q: %w", t.Description, err)
		}
	}
	if err := dbtx.Commit(); err != nil {
		return 0, fmt.Errorf("commit insert: %w", err)
	}

	slog.InfoContext(ctx, "Transactions saved to SQLite", "count", len(txs), "statement_id", statementID)
	return len(txs), nil
}

// ListBudgets returns the limits stored for filter, keyed by category.
func (r *SQLiteRepository) ListBudgets(ctx context.Context, filter core.DateFilter) (map[string]decimal.Decimal, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT category, amount FROM budgets WHERE filter = ? ORDER BY category`, string(filter))
	if err != nil {
		return nil, fmt.Errorf("query budgets: %w", err)
	}
	defer rows.Close()

	out := make(map[string]decimal.Decimal)
	for rows.Next() {
		var (
			cat    string
			amount decimal.Decimal
		)
		if err := rows.Scan(&cat, &amount); err != nil {
			return nil, fmt.Errorf("scan budget: %w", err)
		}
		out[cat] = amount
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate budgets: %w", err)
	}
	return out, nil
}

// SaveBudget upserts one limit.
func (r *SQLiteRepository) SaveBudget(ctx context.Context, b core.Budget) error {
	if err := b.Validate(); err != nil {
		return err
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO budgets (filter, category, amount, updated_at) VALUES (?, ?, ?, CURRENT_TIMESTAMP)
		 ON CONFLICT(filter, category) DO UPDATE SET amount = excluded.amount, updated_at = excluded.updated_at`,
		string(b.Filter), core.NormalizeCategory(b.Category), b.Amount)
	if err != nil {
		return fmt.Errorf("save budget: %w", err)
	}
	return nil
}

// SavePreferences upserts learned description to category mappings.
func (r *SQLiteRepository) SavePreferences(ctx context.Context, prefs []core.CategoryPreference) error {
	if len(prefs) == 0 {
		return nil
	}
	dbtx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin preferences: %w", err)
	}
	defer dbtx.Rollback()

	for _, p := range prefs {
		if err := p.Validate(); err != nil {
			slog.WarnContext(ctx, "Skipping invalid preference", "description", p.Description, "error", err)
			continue
		}
		_, err := dbtx.ExecContext(ctx,
			`INSERT INTO category_preferences (key, description, category, updated_at) VALUES (?, ?, ?, CURRENT_TIMESTAMP)
			 ON CONFLICT(key) DO UPDATE SET description = excluded.description, category = excluded.category, updated_at = excluded.updated_at`,
			core.PreferenceKey(p.Description), p.Description, core.NormalizeCategory(p.Category))
		if err != nil {
			return fmt.Errorf("save preference: %w", err)
		}
	}
	if err := dbtx.Commit(); err != nil {
		return fmt.Errorf("commit preferences: %w", err)
	}
	return nil
}

// ListPreferences returns every learned preference.
func (r *SQLiteRepository) ListPreferences(ctx context.Context) ([]core.CategoryPreference, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT description, category FROM category_preferences ORDER BY key`)
	if err != nil {
		return nil, fmt.Errorf("query preferences: %w", err)
	}
	defer rows.Close()

	var out []core.CategoryPreference
	for rows.Next() {
		var p core.CategoryPreference
		if err := rows.Scan(&p.Description, &p.Category); err != nil {
			return nil, fmt.Errorf("scan preference: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// Get implements kv.Store.
func (r *SQLiteRepository) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var v []byte
	err := r.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get kv %s: %w", key, err)
	}
	return v, true, nil
}

// Set implements kv.Store.
func (r *SQLiteRepository) Set(ctx context.Context, key string, value []byte) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO kv (key, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value)
	if err != nil {
		return fmt.Errorf("set kv %s: %w", key, err)
	}
	return nil
}

// Delete implements kv.Store.
func (r *SQLiteRepository) Delete(ctx context.Context, key string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, key); err != nil {
		return fmt.Errorf("delete kv %s: %w", key, err)
	}
	return nil
}

// Statement is the bookkeeping row for one uploaded statement file.
type Statement struct {
	ID         string
	FileName   string
	Source     string
	RowCount   int
	Inserted   int
	ImportedAt sql.NullTime
	CreatedAt  time.Time
}

// SaveStatement records an import. Re-saving the same id updates the counts.
func (r *SQLiteRepository) SaveStatement(ctx context.Context, meta core.StatementMeta, rowCount int) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO statements (id, file_name, source, row_count) VALUES (?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET file_name = excluded.file_name, source = excluded.source, row_count = excluded.row_count`,
		meta.FileID, meta.FileName, meta.Source, rowCount)
	if err != nil {
		return fmt.Errorf("save statement: %w", err)
	}
	return nil
}

// MarkStatementImported stamps a statement as imported with its insert count.
func (r *SQLiteRepository) MarkStatementImported(ctx context.Context, id string, inserted int) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE statements SET inserted = ?, imported_at = CURRENT_TIMESTAMP WHERE id = ?`, inserted, id)
	if err != nil {
		return fmt.Errorf("mark statement imported: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("mark statement imported: %w", ErrStatementNotFound)
	}
	slog.InfoContext(ctx, "Statement marked as imported", "statement_id", id, "inserted", inserted)
	return nil
}

var ErrStatementNotFound = errors.New("statement not found")

// GetStatement loads one statement row.
func (r *SQLiteRepository) GetStatement(ctx context.Context, id string) (*Statement, error) {
	var s Statement
	err := r.db.QueryRowContext(ctx,
		`SELECT id, file_name, source, row_count, inserted, imported_at, created_at FROM statements WHERE id = ?`, id).
		Scan(&s.ID, &s.FileName, &s.Source, &s.RowCount, &s.Inserted, &s.ImportedAt, &s.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrStatementNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get statement: %w", err)
	}
	return &s, nil
}
