// Package chart fetches raw chart CSVs from the upstream provider and
// normalizes them into the canonical top-100 schema.
package chart

import (
	"context"
	"fmt"
	"io"
	"log"
	"math"
	"math/rand"
	"net/http"
	"strings"
	"time"

	"github.com/hitcastor/snapshotter/internal/alert"
)

const (
	userAgent      = "hitcastor-snapshotter/1.0.0"
	requestTimeout = 30 * time.Second

	// Backoff doubles per attempt; without a ceiling the delay overflows the
	// retry window long before the attempt budget is spent.
	maxBackoff = time.Hour
)

// FetcherConfig controls the upstream URL and the retry budget.
type FetcherConfig struct {
	// URLTemplate contains ${REGION} and optionally ${DATE} placeholders.
	URLTemplate string
	// InitialDelay is the first backoff delay; subsequent delays double.
	InitialDelay time.Duration
	// MaxRetryHours bounds the retry budget. The attempt count is derived as
	// ceil(MaxRetryHours*3600*1000 / InitialDelay_ms), not wall-clock checked.
	MaxRetryHours float64
}

// Fetcher retrieves raw chart CSV bytes for a (date, region) with bounded
// exponential-backoff retry. On exhaustion it fires a best-effort alert and
// returns a FetchExhaustedError.
type Fetcher struct {
	cfg     FetcherConfig
	client  *http.Client
	alerter alert.Alerter
}

func NewFetcher(cfg FetcherConfig, alerter alert.Alerter) *Fetcher {
	if alerter == nil {
		alerter = alert.Noop{}
	}
	return &Fetcher{
		cfg:     cfg,
		client:  &http.Client{Timeout: requestTimeout},
		alerter: alerter,
	}
}

// ChartURL derives the upstream source URL for a (date, region).
func (f *Fetcher) ChartURL(dateUTC, region string) string {
	url := strings.ReplaceAll(f.cfg.URLTemplate, "${REGION}", region)
	return strings.ReplaceAll(url, "${DATE}", dateUTC)
}

// MaxAttempts converts the time-bounded retry budget into a fixed attempt
// count. With exponential backoff the actual elapsed time can differ
// substantially from MaxRetryHours; the derivation is kept as-is for
// compatibility with existing operational expectations.
func (f *Fetcher) MaxAttempts() int {
	attempts := int(math.Ceil(f.cfg.MaxRetryHours * 3600 * 1000 / float64(f.cfg.InitialDelay.Milliseconds())))
	if attempts < 1 {
		attempts = 1
	}
	return attempts
}

// Fetch returns the raw CSV bytes for a (date, region).
func (f *Fetcher) Fetch(ctx context.Context, dateUTC, region string) ([]byte, error) {
	url := f.ChartURL(dateUTC, region)
	maxAttempts := f.MaxAttempts()

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		log.Printf("fetching chart CSV for %s/%s, attempt %d/%d", dateUTC, region, attempt+1, maxAttempts)

		body, err := f.fetchOnce(ctx, url)
		if err == nil {
			log.Printf("fetched chart CSV for %s/%s (%d bytes)", dateUTC, region, len(body))
			return body, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		lastErr = err
		log.Printf("attempt %d failed: %v", attempt+1, err)

		if attempt < maxAttempts-1 {
			delay := f.backoff(attempt)
			log.Printf("retrying in %s", delay.Round(time.Second))
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}

	f.alertExhausted(ctx, dateUTC, region, lastErr)
	return nil, &FetchExhaustedError{Attempts: maxAttempts, LastErr: lastErr}
}

func (f *Fetcher) fetchOnce(ctx context.Context, url string) ([]byte, error) {
	reqCtx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("error building request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/csv,*/*")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error requesting %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, resp.Status)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("error reading response body: %w", err)
	}
	if len(strings.TrimSpace(string(body))) == 0 {
		return nil, fmt.Errorf("empty CSV response")
	}
	return body, nil
}

// backoff returns initial*2^attempt plus up to 10% uniform jitter, capped.
func (f *Fetcher) backoff(attempt int) time.Duration {
	delay := float64(f.cfg.InitialDelay) * math.Pow(2, float64(attempt))
	if delay > float64(maxBackoff) {
		delay = float64(maxBackoff)
	}
	jitter := rand.Float64() * 0.1 * delay
	return time.Duration(delay + jitter)
}

// alertExhausted notifies operators that the retry budget is spent.
// Fire-and-forget: delivery failures are logged and swallowed.
func (f *Fetcher) alertExhausted(ctx context.Context, dateUTC, region string, lastErr error) {
	a := alert.Alert{
		Title:   "Snapshotter fetch exhausted",
		Message: "Failed to fetch chart data after exhausting the retry budget",
		Fields: map[string]string{
			"date":   dateUTC,
			"region": region,
			"error":  fmt.Sprintf("%v", lastErr),
		},
	}
	if err := f.alerter.Send(ctx, a); err != nil {
		log.Printf("failed to send fetch-exhausted alert: %v", err)
	}
}
