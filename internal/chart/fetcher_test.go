package chart

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hitcastor/snapshotter/internal/alert"
)

type recordingAlerter struct {
	calls int32
	last  alert.Alert
}

func (r *recordingAlerter) Send(_ context.Context, a alert.Alert) error {
	atomic.AddInt32(&r.calls, 1)
	r.last = a
	return nil
}

// budget returns a MaxRetryHours value that derives to exactly n attempts
// for a 1ms initial delay. The half-attempt offset keeps the ceil well away
// from a float rounding boundary.
func budget(n int) float64 {
	return (float64(n) - 0.5) / (3600 * 1000)
}

func TestChartURL(t *testing.T) {
	f := NewFetcher(FetcherConfig{
		URLTemplate: "https://charts.spotify.com/api/charts/regional-${REGION}-daily/${DATE}",
	}, nil)

	assert.Equal(t,
		"https://charts.spotify.com/api/charts/regional-us-daily/2024-01-15",
		f.ChartURL("2024-01-15", "us"))
}

func TestMaxAttemptsDerivation(t *testing.T) {
	// ceil(max_retry_hours*3600*1000 / initial_delay_ms)
	tests := []struct {
		hours   float64
		delay   time.Duration
		want    int
	}{
		{36, 5 * time.Minute, 432},
		{1, time.Hour, 1},
		{0.5, 10 * time.Minute, 3},
	}
	for _, tt := range tests {
		f := NewFetcher(FetcherConfig{InitialDelay: tt.delay, MaxRetryHours: tt.hours}, nil)
		assert.Equal(t, tt.want, f.MaxAttempts())
	}
}

func TestFetchSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, userAgent, r.Header.Get("User-Agent"))
		assert.Equal(t, "text/csv,*/*", r.Header.Get("Accept"))
		w.Write([]byte(mockCSV))
	}))
	defer srv.Close()

	f := NewFetcher(FetcherConfig{
		URLTemplate:   srv.URL,
		InitialDelay:  time.Millisecond,
		MaxRetryHours: budget(3),
	}, nil)

	body, err := f.Fetch(context.Background(), "2024-01-15", "global")
	require.NoError(t, err)
	assert.Equal(t, mockCSV, string(body))
}

func TestFetchRetriesThenSucceeds(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch atomic.AddInt32(&hits, 1) {
		case 1:
			w.WriteHeader(http.StatusInternalServerError)
		case 2:
			w.Write([]byte("   \n  ")) // blank body is retried too
		default:
			w.Write([]byte(mockCSV))
		}
	}))
	defer srv.Close()

	f := NewFetcher(FetcherConfig{
		URLTemplate:   srv.URL,
		InitialDelay:  time.Millisecond,
		MaxRetryHours: budget(5),
	}, nil)

	body, err := f.Fetch(context.Background(), "2024-01-15", "global")
	require.NoError(t, err)
	assert.Equal(t, mockCSV, string(body))
	assert.Equal(t, int32(3), atomic.LoadInt32(&hits))
}

func TestFetchExhausted(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	alerter := &recordingAlerter{}
	f := NewFetcher(FetcherConfig{
		URLTemplate:   srv.URL,
		InitialDelay:  time.Millisecond,
		MaxRetryHours: budget(2),
	}, alerter)

	_, err := f.Fetch(context.Background(), "2024-01-15", "global")

	var exhausted *FetchExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, 2, exhausted.Attempts)
	assert.ErrorContains(t, exhausted.LastErr, "503")

	assert.Equal(t, int32(1), atomic.LoadInt32(&alerter.calls))
	assert.Equal(t, "2024-01-15", alerter.last.Fields["date"])
	assert.Equal(t, "global", alerter.last.Fields["region"])
}

func TestFetchCancelledDuringBackoff(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	f := NewFetcher(FetcherConfig{
		URLTemplate:   srv.URL,
		InitialDelay:  10 * time.Second,
		MaxRetryHours: 36,
	}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	_, err := f.Fetch(ctx, "2024-01-15", "global")
	require.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), 5*time.Second, "backoff sleep must be cancellable")
}

func TestBackoffGrowth(t *testing.T) {
	f := NewFetcher(FetcherConfig{InitialDelay: 100 * time.Millisecond}, nil)

	for attempt := 0; attempt < 5; attempt++ {
		base := 100 * time.Millisecond * time.Duration(1<<attempt)
		d := f.backoff(attempt)
		assert.GreaterOrEqual(t, d, base)
		assert.LessOrEqual(t, d, base+base/10)
	}

	// Deep attempts are capped rather than overflowing.
	assert.LessOrEqual(t, f.backoff(60), maxBackoff+maxBackoff/10)
}
