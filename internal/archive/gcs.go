package archive

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/storage"
)

const uploadTimeout = 2 * time.Minute

// GCS writes uploads to a Cloud Storage bucket using Application Default
// Credentials.
type GCS struct {
	client *storage.Client
	bucket string
	now    func() time.Time
}

func NewGCS(ctx context.Context, bucket string) (*GCS, error) {
	if bucket == "" {
		return nil, fmt.Errorf("gcs bucket is required")
	}
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}
	return &GCS{client: client, bucket: bucket, now: time.Now}, nil
}

func (g *GCS) Put(ctx context.Context, fileID, name string, data []byte) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, uploadTimeout)
	defer cancel()

	objectName := ObjectName(g.now(), fileID, name)
	w := g.client.Bucket(g.bucket).Object(objectName).NewWriter(ctx)
	w.ContentType = "text/csv"
	w.Metadata = map[string]string{"file-id": fileID, "file-name": name}

	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("write gcs object: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("finalize upload: %w", err)
	}
	return fmt.Sprintf("gs://%s/%s", g.bucket, objectName), nil
}

func (g *GCS) Close() error {
	return g.client.Close()
}
