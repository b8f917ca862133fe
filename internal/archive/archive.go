// Package archive keeps a copy of every uploaded statement file.
package archive

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Archive stores raw statement uploads.
type Archive interface {
	// Put stores data and returns where it went.
	Put(ctx context.Context, fileID, name string, data []byte) (string, error)
}

// Backend types.
const (
	TypeNone  = "none"
	TypeLocal = "local"
	TypeGCS   = "gcs"
)

// Config selects and configures an archive.
type Config struct {
	Type   string
	Dir    string
	Bucket string
}

// New builds the configured archive. The returned cleanup releases clients.
func New(ctx context.Context, cfg Config) (Archive, func() error, error) {
	noop := func() error { return nil }
	switch cfg.Type {
	case "", TypeNone:
		return Nop{}, noop, nil
	case TypeLocal:
		a, err := NewLocal(cfg.Dir)
		if err != nil {
			return nil, nil, err
		}
		return a, noop, nil
	case TypeGCS:
		a, err := NewGCS(ctx, cfg.Bucket)
		if err != nil {
			return nil, nil, err
		}
		return a, a.Close, nil
	}
	return nil, nil, fmt.Errorf("unsupported archive backend: %s", cfg.Type)
}

// NewFileID returns a fresh statement file id.
func NewFileID() string {
	return uuid.New().String()
}

// ObjectName lays uploads out by day: statements/2025/01/31/<id>-<name>.
func ObjectName(now time.Time, fileID, name string) string {
	base := path.Base(strings.ReplaceAll(name, `\`, "/"))
	if base == "." || base == "/" || base == "" {
		base = "statement.csv"
	}
	return path.Join("statements", now.UTC().Format("2006/01/02"), fileID+"-"+base)
}

// Nop discards uploads.
type Nop struct{}

func (Nop) Put(context.Context, string, string, []byte) (string, error) { return "", nil }

// Local writes uploads under a directory.
type Local struct {
	dir string
	now func() time.Time
}

func NewLocal(dir string) (*Local, error) {
	if dir == "" {
		return nil, fmt.Errorf("archive directory is required")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create archive directory: %w", err)
	}
	return &Local{dir: dir, now: time.Now}, nil
}

func (l *Local) Put(_ context.Context, fileID, name string, data []byte) (string, error) {
	p := filepath.Join(l.dir, filepath.FromSlash(ObjectName(l.now(), fileID, name)))
	if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
		return "", fmt.Errorf("create archive path: %w", err)
	}
	if err := os.WriteFile(p, data, 0644); err != nil {
		return "", fmt.Errorf("write archive file: %w", err)
	}
	return p, nil
}
