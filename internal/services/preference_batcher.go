package services

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"finboard/internal/core"
)

// PreferenceSink persists a batch of learned preferences.
type PreferenceSink interface {
	SavePreferences(ctx context.Context, prefs []core.CategoryPreference) error
}

type preferencePublisher interface {
	PublishPreferences(ctx context.Context, prefs []core.CategoryPreference) error
}

type publisherSink struct {
	p preferencePublisher
}

func (s publisherSink) SavePreferences(ctx context.Context, prefs []core.CategoryPreference) error {
	return s.p.PublishPreferences(ctx, prefs)
}

// PublishingSink hands batches to a message publisher instead of a store.
func PublishingSink(p preferencePublisher) PreferenceSink {
	return publisherSink{p: p}
}

// PreferenceBatcher coalesces preference updates. Every Add restarts a
// quiet-period timer; when it fires, the latest category per description is
// flushed to the sink in one batch.
type PreferenceBatcher struct {
	sink  PreferenceSink
	delay time.Duration

	mu      sync.Mutex
	pending map[string]core.CategoryPreference
	order   []string
	timer   *time.Timer
	closed  bool

	flushMu sync.Mutex
}

func NewPreferenceBatcher(sink PreferenceSink, delay time.Duration) *PreferenceBatcher {
	if delay <= 0 {
		delay = 2 * time.Second
	}
	return &PreferenceBatcher{
		sink:    sink,
		delay:   delay,
		pending: make(map[string]core.CategoryPreference),
	}
}

// Add queues entries and returns how many were accepted. Invalid entries
// are dropped.
func (b *PreferenceBatcher) Add(entries ...core.CategoryPreference) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return 0
	}
	accepted := 0
	for _, e := range entries {
		if e.Validate() != nil {
			continue
		}
		key := core.PreferenceKey(e.Description)
		if _, ok := b.pending[key]; !ok {
			b.order = append(b.order, key)
		}
		b.pending[key] = core.CategoryPreference{
			Description: e.Description,
			Category:    core.NormalizeCategory(e.Category),
		}
		accepted++
	}
	if accepted > 0 {
		if b.timer != nil {
			b.timer.Stop()
		}
		b.timer = time.AfterFunc(b.delay, func() {
			if err := b.Flush(context.Background()); err != nil {
				slog.Error("Failed to flush category preferences", "component", "preference_batcher", "error", err)
			}
		})
	}
	return accepted
}

// Pending returns the number of queued descriptions.
func (b *PreferenceBatcher) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}

// Flush sends everything queued now. Entries from a failed flush are dropped.
func (b *PreferenceBatcher) Flush(ctx context.Context) error {
	b.flushMu.Lock()
	defer b.flushMu.Unlock()

	b.mu.Lock()
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
	batch := make([]core.CategoryPreference, 0, len(b.order))
	for _, k := range b.order {
		batch = append(batch, b.pending[k])
	}
	b.pending = make(map[string]core.CategoryPreference)
	b.order = nil
	b.mu.Unlock()

	if len(batch) == 0 {
		return nil
	}
	if err := b.sink.SavePreferences(ctx, batch); err != nil {
		return err
	}
	slog.InfoContext(ctx, "Flushed category preferences", "component", "preference_batcher", "count", len(batch))
	return nil
}

// Close flushes what is queued and rejects further Adds.
func (b *PreferenceBatcher) Close(ctx context.Context) error {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()
	return b.Flush(ctx)
}
