// Package store provides idempotent put/exists/get against immutable object
// storage. Backends: S3-compatible (with optional object lock), GCS, local FS.
package store

import (
	"context"
	"fmt"
)

// UploadResult reports where an artifact landed and the digest of exactly
// the bytes written.
type UploadResult struct {
	URL    string
	SHA256 string
}

// Store is the capability interface consumed by the pipeline.
type Store interface {
	// Exists reports whether key holds an object. "Object absent" is
	// (false, nil); any other failure is an *Error.
	Exists(ctx context.Context, key string) (bool, error)
	// Put writes data under key and returns its URL and content hash.
	Put(ctx context.Context, key string, data []byte, contentType string) (UploadResult, error)
	// Get reads the object at key.
	Get(ctx context.Context, key string) ([]byte, error)
	// URL returns the public location an object at key would have. It does
	// not touch storage.
	URL(key string) string
	Close() error
}

// Error wraps any storage-layer fault so callers can tell infrastructure
// failures apart from ordinary absence.
type Error struct {
	Op  string
	Key string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("store %s %s: %v", e.Op, e.Key, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// ObjectKey builds the deterministic hierarchical key for a snapshot artifact.
func ObjectKey(dateUTC, region, filename string) string {
	return fmt.Sprintf("snapshots/%s/%s/%s", dateUTC, region, filename)
}

// Config selects and parameterizes a storage backend.
type Config struct {
	Backend        string // "s3", "gcs" or "fs"
	Endpoint       string // custom S3 endpoint (R2, MinIO); empty for AWS
	Bucket         string
	Region         string
	AccessKey      string
	SecretKey      string
	ForcePathStyle bool
	ObjectLock     bool // apply a COMPLIANCE retention lock on writes (S3 only)
	RetentionDays  int
	LocalPath      string // base directory for the fs backend
}

// New creates the configured storage backend.
func New(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Backend {
	case "s3":
		return NewS3Store(ctx, cfg)
	case "gcs":
		return NewGCSStore(ctx, cfg)
	case "fs":
		return NewFSStore(cfg.LocalPath)
	default:
		return nil, fmt.Errorf("unsupported storage backend: %s", cfg.Backend)
	}
}
