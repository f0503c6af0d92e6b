package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hitcastor/snapshotter/internal/ledger"
)

type fakeLedger struct {
	latest    *ledger.Snapshot
	latestErr error
	count     int
	countErr  error
}

func (f *fakeLedger) Latest(context.Context, string) (*ledger.Snapshot, error) {
	return f.latest, f.latestErr
}

func (f *fakeLedger) Count(context.Context) (int, error) {
	return f.count, f.countErr
}

func TestHealthOK(t *testing.T) {
	created := time.Date(2025, 6, 2, 0, 15, 0, 0, time.UTC)
	srv := New(&fakeLedger{
		count: 42,
		latest: &ledger.Snapshot{
			DateUTC:    "2025-06-01",
			Region:     "global",
			CSVSHA256:  "0xdef",
			JSONSHA256: "0xabc",
			IPFSCID:    "bafybeigdyr",
			CreatedAt:  created,
		},
	}, "global", "1.0.0", "0")

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/health", nil))

	require.Equal(t, 200, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "hitcastor-snapshotter", body["service"])
	assert.Equal(t, "1.0.0", body["version"])
	assert.Equal(t, float64(42), body["snapshots"])

	latest, ok := body["latest"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "2025-06-01", latest["dateUtc"])
	assert.Equal(t, "0xdef", latest["csvSha256"])
	assert.Equal(t, "0xabc", latest["jsonSha256"])
	assert.Equal(t, "bafybeigdyr", latest["ipfsCid"])
	assert.Equal(t, "2025-06-02T00:15:00Z", latest["createdAt"])
}

func TestHealthNoSnapshotsYet(t *testing.T) {
	srv := New(&fakeLedger{count: 0, latest: nil}, "global", "1.0.0", "0")

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/health", nil))

	require.Equal(t, 200, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.NotContains(t, body, "latest")
}

func TestHealthLedgerDown(t *testing.T) {
	srv := New(&fakeLedger{countErr: errors.New("connection refused")}, "global", "1.0.0", "0")

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/health", nil))

	require.Equal(t, 503, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "unavailable", body["status"])
}

func TestRootDescriptor(t *testing.T) {
	srv := New(&fakeLedger{}, "us", "1.0.0", "0")

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))

	require.Equal(t, 200, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "hitcastor-snapshotter", body["service"])
	assert.Equal(t, "us", body["region"])
}
