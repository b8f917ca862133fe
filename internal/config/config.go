package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	// HTTP Server
	Port               string
	RateLimitPerMinute int
	MaxUploadBytes     int64

	// Backend selection
	DataBackend string
	KVBackend   string

	// Database
	SQLiteDBPath string

	// Memory backend seed files
	DataDirectory string

	// Remote API backend
	RemoteAPIURL     string
	RemoteAPITimeout time.Duration

	// AMQP (optional for the server, required by the worker)
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Google Sheets
	GoogleSpreadsheetID        string
	GoogleSheetName            string
	GoogleBudgetsSheetName     string
	GooglePreferencesSheetName string

	// Statement archive
	ArchiveBackend string
	ArchiveDir     string
	GCSBucket      string

	// Caching and batching
	PreferenceFlushDelay time.Duration
	CacheTTL             time.Duration
	CacheSize            int

	LogLevel string
}

var (
	validDataBackends    = []string{"memory", "sqlite", "sheets", "remote"}
	validKVBackends      = []string{"memory", "sqlite"}
	validArchiveBackends = []string{"none", "local", "gcs"}
	validLogLevels       = []string{"debug", "info", "warn", "error"}
)

func Load() *Config {
	cfg := &Config{
		Port:               getEnv("PORT", "8081"),
		RateLimitPerMinute: getEnvInt("RATE_LIMIT_PER_MINUTE", 120),
		MaxUploadBytes:     int64(getEnvInt("MAX_UPLOAD_BYTES", 10<<20)),

		DataBackend: getEnv("DATA_BACKEND", "memory"),
		KVBackend:   getEnv("KV_BACKEND", "memory"),

		SQLiteDBPath:  getEnv("SQLITE_DB_PATH", "./data/finboard.db"),
		DataDirectory: getEnv("DATA_DIRECTORY", "data"),

		RemoteAPIURL:     getEnv("REMOTE_API_URL", ""),
		RemoteAPITimeout: getEnvDuration("REMOTE_API_TIMEOUT", 30*time.Second),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "finboard"),
		AMQPQueue:    getEnv("AMQP_QUEUE", "finboard_events"),

		GoogleSpreadsheetID:        getEnv("GOOGLE_SPREADSHEET_ID", ""),
		GoogleSheetName:            getEnv("GOOGLE_SHEET_NAME", "Transactions"),
		GoogleBudgetsSheetName:     getEnv("GOOGLE_BUDGETS_SHEET_NAME", "Budgets"),
		GooglePreferencesSheetName: getEnv("GOOGLE_PREFERENCES_SHEET_NAME", "Preferences"),

		ArchiveBackend: getEnv("ARCHIVE_BACKEND", "none"),
		ArchiveDir:     getEnv("ARCHIVE_DIR", "./data/statements"),
		GCSBucket:      getEnv("GCS_BUCKET", ""),

		PreferenceFlushDelay: getEnvDuration("PREFERENCE_FLUSH_DELAY", 2*time.Second),
		CacheTTL:             getEnvDuration("CACHE_TTL", 5*time.Minute),
		CacheSize:            getEnvInt("CACHE_SIZE", 100),

		LogLevel: strings.ToLower(getEnv("LOG_LEVEL", "info")),
	}

	return cfg
}

// UsesSQLite reports whether any component opens the SQLite database.
func (c *Config) UsesSQLite() bool {
	return c.DataBackend == "sqlite" || c.KVBackend == "sqlite"
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var errors []string

	// Validate port
	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	if !slices.Contains(validDataBackends, c.DataBackend) {
		errors = append(errors, fmt.Sprintf("invalid data backend '%s': must be one of %v", c.DataBackend, validDataBackends))
	}
	if !slices.Contains(validKVBackends, c.KVBackend) {
		errors = append(errors, fmt.Sprintf("invalid kv backend '%s': must be one of %v", c.KVBackend, validKVBackends))
	}
	if !slices.Contains(validArchiveBackends, c.ArchiveBackend) {
		errors = append(errors, fmt.Sprintf("invalid archive backend '%s': must be one of %v", c.ArchiveBackend, validArchiveBackends))
	}
	if !slices.Contains(validLogLevels, c.LogLevel) {
		errors = append(errors, fmt.Sprintf("invalid log level '%s': must be one of %v", c.LogLevel, validLogLevels))
	}

	// Validate SQLite configuration if anything uses it
	if c.UsesSQLite() {
		if c.SQLiteDBPath == "" {
			errors = append(errors, "SQLite database path cannot be empty when using sqlite")
		} else {
			dir := filepath.Dir(c.SQLiteDBPath)
			if dir != "." && dir != "" {
				if _, err := os.Stat(dir); os.IsNotExist(err) {
					if err := os.MkdirAll(dir, 0755); err != nil {
						errors = append(errors, fmt.Sprintf("cannot create SQLite database directory '%s': %v", dir, err))
					}
				}
			}
		}
	}

	if c.DataBackend == "remote" {
		if c.RemoteAPIURL == "" {
			errors = append(errors, "REMOTE_API_URL is required when using remote backend")
		} else if u, err := url.Parse(c.RemoteAPIURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			errors = append(errors, fmt.Sprintf("invalid remote API URL '%s': must be an absolute http(s) URL", c.RemoteAPIURL))
		}
	}
	if c.RemoteAPITimeout <= 0 {
		errors = append(errors, fmt.Sprintf("invalid remote API timeout %v: must be positive", c.RemoteAPITimeout))
	}

	// Validate AMQP URL if provided
	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQPExchange == "" {
			errors = append(errors, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPQueue == "" {
			errors = append(errors, "AMQP queue name cannot be empty when AMQP URL is provided")
		}
	}

	if c.DataBackend == "sheets" && c.GoogleSpreadsheetID == "" {
		errors = append(errors, "Google Spreadsheet ID is required when using sheets backend")
	}

	switch c.ArchiveBackend {
	case "local":
		if c.ArchiveDir == "" {
			errors = append(errors, "ARCHIVE_DIR is required when using local archive")
		}
	case "gcs":
		if c.GCSBucket == "" {
			errors = append(errors, "GCS_BUCKET is required when using gcs archive")
		}
	}

	if c.PreferenceFlushDelay < 0 || c.PreferenceFlushDelay > time.Minute {
		errors = append(errors, fmt.Sprintf("invalid preference flush delay %v: must be between 0 and 1 minute", c.PreferenceFlushDelay))
	}
	if c.CacheTTL < time.Second {
		errors = append(errors, fmt.Sprintf("invalid cache TTL %v: must be at least 1 second", c.CacheTTL))
	}
	if c.CacheSize < 1 || c.CacheSize > 10000 {
		errors = append(errors, fmt.Sprintf("invalid cache size %d: must be between 1 and 10000", c.CacheSize))
	}
	if c.RateLimitPerMinute < 1 {
		errors = append(errors, fmt.Sprintf("invalid rate limit %d: must be at least 1", c.RateLimitPerMinute))
	}
	if c.MaxUploadBytes < 1024 {
		errors = append(errors, fmt.Sprintf("invalid max upload size %d: must be at least 1024 bytes", c.MaxUploadBytes))
	}

	// Return combined errors
	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
