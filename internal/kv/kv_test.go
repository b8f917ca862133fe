package kv

import (
	"context"
	"errors"
	"testing"
	"time"
)

type countingStore struct {
	*Memory
	gets   int
	setErr error
}

func (c *countingStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	c.gets++
	return c.Memory.Get(ctx, key)
}

func (c *countingStore) Set(ctx context.Context, key string, value []byte) error {
	if c.setErr != nil {
		return c.setErr
	}
	return c.Memory.Set(ctx, key, value)
}

func TestLoadSaveRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()

	got := Load(ctx, s, "missing", []string{"fallback"})
	if len(got) != 1 || got[0] != "fallback" {
		t.Fatalf("expected fallback, got %v", got)
	}

	if err := Save(ctx, s, "k", map[string]int{"a": 1}); err != nil {
		t.Fatalf("save: %v", err)
	}
	m := Load(ctx, s, "k", map[string]int(nil))
	if m["a"] != 1 {
		t.Fatalf("unexpected value %v", m)
	}
}

func TestLoadCorruptFallsBack(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()
	_ = s.Set(ctx, "k", []byte("{not json"))
	got := Load(ctx, s, "k", 42)
	if got != 42 {
		t.Fatalf("expected fallback 42, got %d", got)
	}
}

func TestMemoryCopiesValues(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()
	buf := []byte("abc")
	_ = s.Set(ctx, "k", buf)
	buf[0] = 'z'
	v, ok, _ := s.Get(ctx, "k")
	if !ok || string(v) != "abc" {
		t.Fatalf("stored value was aliased: %q", v)
	}
	_ = s.Delete(ctx, "k")
	if _, ok, _ := s.Get(ctx, "k"); ok {
		t.Fatalf("expected deleted key")
	}
}

func TestCachedReadThrough(t *testing.T) {
	ctx := context.Background()
	backing := &countingStore{Memory: NewMemory()}
	_ = backing.Memory.Set(ctx, "k", []byte(`"v"`))
	c := NewCached(backing, 10, time.Minute)

	for i := 0; i < 3; i++ {
		if v, ok, err := c.Get(ctx, "k"); err != nil || !ok || string(v) != `"v"` {
			t.Fatalf("get %d: %q %v %v", i, v, ok, err)
		}
	}
	if backing.gets != 1 {
		t.Fatalf("expected 1 backing read, got %d", backing.gets)
	}

	backing.setErr = errors.New("disk full")
	if err := c.Set(ctx, "k", []byte(`"w"`)); err == nil {
		t.Fatalf("expected set error")
	}
	// A failed write must not leave a stale cached value behind.
	if v, _, _ := c.Get(ctx, "k"); string(v) != `"v"` {
		t.Fatalf("expected backing value after failed write, got %q", v)
	}
}
