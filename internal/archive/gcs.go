package archive

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/storage"
)

// GCS is an Archiver writing message bodies to a Cloud Storage bucket.
// Assumes Application Default Credentials are configured.
type GCS struct {
	client *storage.Client
	bucket string
}

// NewGCS creates a bucket-backed archiver.
func NewGCS(ctx context.Context, bucket string) (*GCS, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("NewGCS: create storage client: %w", err)
	}
	return &GCS{client: client, bucket: bucket}, nil
}

// Close releases the underlying client.
func (g *GCS) Close() error {
	return g.client.Close()
}

// Archive implements Archiver. Returns the gs:// URI of the new object.
func (g *GCS) Archive(ctx context.Context, rawText string) (string, error) {
	name := objectName(time.Now())

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	w := g.client.Bucket(g.bucket).Object(name).NewWriter(ctx)
	if _, err := w.Write([]byte(rawText)); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("Archive: writing object: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("Archive: finalize upload: %w", err)
	}
	return fmt.Sprintf("gs://%s/%s", g.bucket, name), nil
}

var _ Archiver = (*GCS)(nil)
