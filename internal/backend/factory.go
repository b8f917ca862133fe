package backend

import (
	"context"
	"errors"
	"fmt"

	goption "google.golang.org/api/option"

	"finboard/internal/kv"
	applog "finboard/internal/log"
	"finboard/internal/remote"
	gsheet "finboard/internal/sheets/google"
	"finboard/internal/sheets/memory"
	"finboard/internal/storage"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *applog.Logger
	// SheetsOptions are passed to the Sheets client, replacing the
	// environment credentials when set.
	SheetsOptions []goption.ClientOption
}

// NewFactory creates a new backend factory
func NewFactory(logger *applog.Logger) *DefaultFactory {
	if logger == nil {
		logger = applog.FromContext(context.Background())
	}
	return &DefaultFactory{logger: logger.WithComponent(applog.ComponentBackend)}
}

var _ Factory = (*DefaultFactory)(nil)

// CreateBackend opens the data backend and the KV store. A SQLite database
// shared by both is opened once.
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*BackendResult, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if config.KV == "" {
		config.KV = MemoryKV
	}

	var (
		repo    *storage.SQLiteRepository
		cleanup []CleanupFunc
	)
	openRepo := func() (*storage.SQLiteRepository, error) {
		if repo != nil {
			return repo, nil
		}
		r, err := storage.NewSQLiteRepository(config.SQLiteDBPath)
		if err != nil {
			return nil, fmt.Errorf("initialize SQLite repository: %w", err)
		}
		repo = r
		cleanup = append(cleanup, r.Close)
		return r, nil
	}
	closeAll := func() error {
		var errs []error
		for i := len(cleanup) - 1; i >= 0; i-- {
			errs = append(errs, cleanup[i]())
		}
		return errors.Join(errs...)
	}

	res := &BackendResult{}
	switch config.Type {
	case SQLiteBackend:
		r, err := openRepo()
		if err != nil {
			return nil, err
		}
		res.Backend = r
		res.Ledger = r
		f.logger.InfoContext(ctx, "Initialized SQLite backend", "db_path", config.SQLiteDBPath)

	case SheetsBackend:
		cli, err := gsheet.New(ctx, gsheet.Config{
			SpreadsheetID:     config.GoogleSpreadsheetID,
			TransactionsSheet: config.GoogleSheetName,
			BudgetsSheet:      config.GoogleBudgetsSheetName,
			PreferencesSheet:  config.GooglePreferencesSheetName,
		}, f.SheetsOptions...)
		if err != nil {
			return nil, fmt.Errorf("initialize Google Sheets client: %w", err)
		}
		res.Backend = cli
		f.logger.InfoContext(ctx, "Initialized Google Sheets backend", "spreadsheet_id", config.GoogleSpreadsheetID)

	case RemoteBackend:
		res.Backend = remote.NewClient(config.RemoteAPIURL, config.RemoteAPITimeout)
		f.logger.InfoContext(ctx, "Initialized remote API backend", "url", config.RemoteAPIURL)

	case MemoryBackend:
		dataDir := config.DataDirectory
		if dataDir == "" {
			dataDir = "data"
		}
		res.Backend = memory.NewFromFiles(dataDir)
		f.logger.InfoContext(ctx, "Initialized memory backend", "data_directory", dataDir)

	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}

	var store kv.Store
	switch config.KV {
	case SQLiteKV:
		r, err := openRepo()
		if err != nil {
			_ = closeAll()
			return nil, err
		}
		store = r
	default:
		store = kv.NewMemory()
	}
	if config.CacheSize > 0 && config.KV == SQLiteKV {
		store = kv.NewCached(store, config.CacheSize, config.CacheTTL)
	}
	res.KV = store
	res.Cleanup = closeAll

	f.logger.InfoContext(ctx, "Initialized KV store", "kv_backend", string(config.KV), "cached", config.CacheSize > 0 && config.KV == SQLiteKV)
	return res, nil
}
