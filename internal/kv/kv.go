// Package kv is the key-value capability behind every piece of persisted
// dashboard state: hidden categories per chart, ring limits, tier overrides,
// and chart layout. Values are JSON blobs keyed by fixed string identifiers.
package kv

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
)

// Store is a byte-level key-value store.
type Store interface {
	// Get returns the value stored under key; ok is false when absent.
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

// Well-known key prefixes.
const (
	KeyVisibilityPrefix = "chart-visibility:"
	KeyRingLimitsPrefix = "activity-ring-limits:"
	KeyRingCategories   = "activity-ring-categories"
	KeyTierOverrides    = "needs-wants-overrides"
	KeyChartLayout      = "chart-layout"
)

// Load decodes the JSON value under key into a T. Missing, unreadable or
// corrupt values yield fallback; the latter two are logged.
func Load[T any](ctx context.Context, s Store, key string, fallback T) T {
	raw, ok, err := s.Get(ctx, key)
	if err != nil {
		slog.WarnContext(ctx, "KV read failed, using default", "component", "kv", "key", key, "error", err)
		return fallback
	}
	if !ok || len(raw) == 0 {
		return fallback
	}
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		slog.WarnContext(ctx, "Corrupt KV value, using default", "component", "kv", "key", key, "error", err)
		return fallback
	}
	return v
}

// Save encodes v as JSON and stores it under key.
func Save[T any](ctx context.Context, s Store, key string, v T) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	if err := s.Set(ctx, key, raw); err != nil {
		return fmt.Errorf("store %s: %w", key, err)
	}
	return nil
}
