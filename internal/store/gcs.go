package store

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"

	"cloud.google.com/go/storage"

	"github.com/hitcastor/snapshotter/internal/hash"
)

// GCSStore writes snapshot artifacts to Google Cloud Storage. Immutability is
// enforced through a bucket-level retention policy rather than per-object
// locks, so ObjectLock config is not consulted here.
type GCSStore struct {
	client *storage.Client
	bucket string
}

// NewGCSStore creates a GCS storage backend using application default
// credentials.
func NewGCSStore(ctx context.Context, cfg Config) (*GCSStore, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS client: %w", err)
	}

	if _, err := client.Bucket(cfg.Bucket).Attrs(ctx); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to access bucket %s: %w", cfg.Bucket, err)
	}

	log.Printf("GCSStore initialized for bucket %s", cfg.Bucket)
	return &GCSStore{client: client, bucket: cfg.Bucket}, nil
}

func (g *GCSStore) Exists(ctx context.Context, key string) (bool, error) {
	_, err := g.client.Bucket(g.bucket).Object(key).Attrs(ctx)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, storage.ErrObjectNotExist) {
		return false, nil
	}
	return false, &Error{Op: "attrs", Key: key, Err: err}
}

func (g *GCSStore) Put(ctx context.Context, key string, data []byte, contentType string) (UploadResult, error) {
	w := g.client.Bucket(g.bucket).Object(key).NewWriter(ctx)
	w.ContentType = contentType
	w.Metadata = map[string]string{"generator": "hitcastor-snapshotter"}

	if _, err := w.Write(data); err != nil {
		w.Close()
		return UploadResult{}, &Error{Op: "put", Key: key, Err: err}
	}
	if err := w.Close(); err != nil {
		return UploadResult{}, &Error{Op: "put", Key: key, Err: err}
	}

	return UploadResult{
		URL:    g.URL(key),
		SHA256: hash.SHA256(data),
	}, nil
}

func (g *GCSStore) URL(key string) string {
	return fmt.Sprintf("https://storage.googleapis.com/%s/%s", g.bucket, key)
}

func (g *GCSStore) Get(ctx context.Context, key string) ([]byte, error) {
	r, err := g.client.Bucket(g.bucket).Object(key).NewReader(ctx)
	if err != nil {
		return nil, &Error{Op: "get", Key: key, Err: err}
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, &Error{Op: "get", Key: key, Err: err}
	}
	return data, nil
}

func (g *GCSStore) Close() error { return g.client.Close() }
