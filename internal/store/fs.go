package store

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hitcastor/snapshotter/internal/hash"
)

// FSStore keeps artifacts on the local filesystem. Intended for development
// and tests; it offers no retention lock.
type FSStore struct {
	basePath string
}

// NewFSStore creates a filesystem storage backend rooted at basePath.
func NewFSStore(basePath string) (*FSStore, error) {
	if basePath == "~" || (len(basePath) > 1 && basePath[:2] == "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		basePath = filepath.Join(home, basePath[2:])
	}

	absPath, err := filepath.Abs(basePath)
	if err != nil {
		return nil, fmt.Errorf("failed to get absolute path: %w", err)
	}
	if err := os.MkdirAll(absPath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}

	log.Printf("FSStore initialized at %s", absPath)
	return &FSStore{basePath: absPath}, nil
}

func (f *FSStore) Exists(_ context.Context, key string) (bool, error) {
	path, err := f.resolve(key)
	if err != nil {
		return false, &Error{Op: "stat", Key: key, Err: err}
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, &Error{Op: "stat", Key: key, Err: err}
	}
	return true, nil
}

// Put writes through a temp file and renames, so a crash never leaves a
// partially written object at the final key.
func (f *FSStore) Put(_ context.Context, key string, data []byte, _ string) (UploadResult, error) {
	path, err := f.resolve(key)
	if err != nil {
		return UploadResult{}, &Error{Op: "put", Key: key, Err: err}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return UploadResult{}, &Error{Op: "put", Key: key, Err: err}
	}

	tmp := fmt.Sprintf("%s.tmp.%d", path, time.Now().UnixNano())
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return UploadResult{}, &Error{Op: "put", Key: key, Err: err}
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return UploadResult{}, &Error{Op: "put", Key: key, Err: err}
	}

	return UploadResult{
		URL:    "file://" + path,
		SHA256: hash.SHA256(data),
	}, nil
}

func (f *FSStore) URL(key string) string {
	path, err := f.resolve(key)
	if err != nil {
		return ""
	}
	return "file://" + path
}

func (f *FSStore) Get(_ context.Context, key string) ([]byte, error) {
	path, err := f.resolve(key)
	if err != nil {
		return nil, &Error{Op: "get", Key: key, Err: err}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &Error{Op: "get", Key: key, Err: err}
	}
	return data, nil
}

func (f *FSStore) Close() error { return nil }

// resolve sanitizes key against directory traversal and anchors it below
// the base path.
func (f *FSStore) resolve(key string) (string, error) {
	clean := filepath.Clean(key)
	if filepath.IsAbs(clean) {
		return "", fmt.Errorf("absolute paths not allowed in key: %s", key)
	}
	full := filepath.Join(f.basePath, clean)
	rel, err := filepath.Rel(f.basePath, full)
	if err != nil || strings.HasPrefix(rel, "..") {
		return "", fmt.Errorf("invalid key path: %s", key)
	}
	return full, nil
}
