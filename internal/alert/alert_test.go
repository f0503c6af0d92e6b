package alert

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWebhookSend(t *testing.T) {
	var received map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	wh := NewWebhook([]string{srv.URL})
	err := wh.Send(context.Background(), Alert{
		Title:   "Snapshotter Alert",
		Message: "fetch exhausted",
		Fields:  map[string]string{"date": "2024-01-15", "region": "global"},
	})
	require.NoError(t, err)

	assert.Equal(t, "Snapshotter Alert", received["title"])
	assert.Equal(t, "fetch exhausted", received["message"])
}

func TestWebhookSendNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	wh := NewWebhook([]string{srv.URL})
	err := wh.Send(context.Background(), Alert{Title: "t"})
	assert.Error(t, err)
}

type stubChannel struct {
	err   error
	calls int
}

func (s *stubChannel) Send(context.Context, Alert) error {
	s.calls++
	return s.err
}

func TestMultiFansOutPastFailures(t *testing.T) {
	failing := &stubChannel{err: errors.New("boom")}
	healthy := &stubChannel{}

	m := NewMulti(failing, healthy)
	err := m.Send(context.Background(), Alert{Title: "t"})

	assert.Error(t, err)
	assert.Equal(t, 1, failing.calls)
	assert.Equal(t, 1, healthy.calls, "later channels still receive the alert")
}

func TestNoop(t *testing.T) {
	assert.NoError(t, Noop{}.Send(context.Background(), Alert{Title: "t"}))
}
