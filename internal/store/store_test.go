package store

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hitcastor/snapshotter/internal/hash"
)

func TestObjectKey(t *testing.T) {
	assert.Equal(t,
		"snapshots/2024-01-15/global/top100.csv",
		ObjectKey("2024-01-15", "global", "top100.csv"))
}

func TestNewUnsupportedBackend(t *testing.T) {
	_, err := New(context.Background(), Config{Backend: "carrier-pigeon"})
	assert.ErrorContains(t, err, "unsupported storage backend")
}

func TestFSStoreRoundTrip(t *testing.T) {
	s, err := NewFSStore(t.TempDir())
	require.NoError(t, err)
	defer s.Close()

	ctx := context.Background()
	key := ObjectKey("2024-01-15", "global", "top100.csv")
	data := []byte("rank,track_name\n1,Test Song\n")

	exists, err := s.Exists(ctx, key)
	require.NoError(t, err)
	assert.False(t, exists, "absent object is (false, nil), not an error")

	res, err := s.Put(ctx, key, data, "text/csv")
	require.NoError(t, err)
	assert.Equal(t, hash.SHA256(data), res.SHA256)
	assert.Contains(t, res.URL, "file://")
	assert.Contains(t, res.URL, key)
	assert.Equal(t, res.URL, s.URL(key))

	exists, err = s.Exists(ctx, key)
	require.NoError(t, err)
	assert.True(t, exists)

	got, err := s.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestFSStorePutIdempotent(t *testing.T) {
	s, err := NewFSStore(t.TempDir())
	require.NoError(t, err)

	ctx := context.Background()
	data := []byte("payload")

	first, err := s.Put(ctx, "k", data, "text/plain")
	require.NoError(t, err)
	second, err := s.Put(ctx, "k", data, "text/plain")
	require.NoError(t, err)

	assert.Equal(t, first, second, "same key and bytes produce the same result")
}

func TestFSStoreGetMissing(t *testing.T) {
	s, err := NewFSStore(t.TempDir())
	require.NoError(t, err)

	_, err = s.Get(context.Background(), "nope")
	var storeErr *Error
	assert.ErrorAs(t, err, &storeErr)
	assert.Equal(t, "get", storeErr.Op)
}

func TestFSStoreRejectsTraversal(t *testing.T) {
	s, err := NewFSStore(t.TempDir())
	require.NoError(t, err)

	for _, key := range []string{"../escape", "/etc/passwd"} {
		_, err := s.Put(context.Background(), key, []byte("x"), "text/plain")
		assert.Error(t, err, key)
	}
}

func TestErrorUnwrap(t *testing.T) {
	inner := errors.New("connection refused")
	err := &Error{Op: "head", Key: "k", Err: inner}

	assert.ErrorIs(t, err, inner)
	assert.Contains(t, err.Error(), "head")
	assert.Contains(t, err.Error(), "k")
}
