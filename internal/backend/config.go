package backend

import (
	"errors"
	"fmt"
	"net/url"
	"time"

	"finboard/internal/config"
)

// Config holds configuration for backend creation
type Config struct {
	Type BackendType
	KV   KVType

	// SQLite, used by the sqlite backend and the sqlite KV.
	SQLiteDBPath string

	// Memory backend seed directory.
	DataDirectory string

	// Remote finboard API.
	RemoteAPIURL     string
	RemoteAPITimeout time.Duration

	// Google Sheets.
	GoogleSpreadsheetID        string
	GoogleSheetName            string
	GoogleBudgetsSheetName     string
	GooglePreferencesSheetName string

	// Read-through cache in front of the KV store. Zero size disables it.
	CacheSize int
	CacheTTL  time.Duration
}

// FromAppConfig converts the application config to backend config
func FromAppConfig(appConfig *config.Config) (Config, error) {
	if appConfig == nil {
		return Config{}, errors.New("app config is nil")
	}

	cfg := Config{
		Type: BackendType(appConfig.DataBackend),
		KV:   KVType(appConfig.KVBackend),

		SQLiteDBPath:  appConfig.SQLiteDBPath,
		DataDirectory: appConfig.DataDirectory,

		RemoteAPIURL:     appConfig.RemoteAPIURL,
		RemoteAPITimeout: appConfig.RemoteAPITimeout,

		GoogleSpreadsheetID:        appConfig.GoogleSpreadsheetID,
		GoogleSheetName:            appConfig.GoogleSheetName,
		GoogleBudgetsSheetName:     appConfig.GoogleBudgetsSheetName,
		GooglePreferencesSheetName: appConfig.GooglePreferencesSheetName,

		CacheSize: appConfig.CacheSize,
		CacheTTL:  appConfig.CacheTTL,
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate validates the backend configuration
func (c Config) Validate() error {
	if !c.Type.IsValid() {
		return fmt.Errorf("invalid backend type: %s", c.Type)
	}
	if c.KV != "" && !c.KV.IsValid() {
		return fmt.Errorf("invalid kv type: %s", c.KV)
	}

	switch c.Type {
	case SQLiteBackend:
		if c.SQLiteDBPath == "" {
			return errors.New("SQLite database path is required for sqlite backend")
		}
	case SheetsBackend:
		if c.GoogleSpreadsheetID == "" {
			return errors.New("Google Spreadsheet ID is required for sheets backend")
		}
	case RemoteBackend:
		u, err := url.Parse(c.RemoteAPIURL)
		if err != nil || u.Host == "" {
			return fmt.Errorf("remote API URL %q is not absolute", c.RemoteAPIURL)
		}
	}
	if c.KV == SQLiteKV && c.SQLiteDBPath == "" {
		return errors.New("SQLite database path is required for sqlite kv")
	}
	return nil
}

// GetBackendTypes returns all valid backend types
func GetBackendTypes() []BackendType {
	return []BackendType{MemoryBackend, SQLiteBackend, SheetsBackend, RemoteBackend}
}

// GetBackendTypeStrings returns all valid backend type strings
func GetBackendTypeStrings() []string {
	types := GetBackendTypes()
	out := make([]string, len(types))
	for i, t := range types {
		out[i] = t.String()
	}
	return out
}
