package chart

import (
	"errors"
	"fmt"
)

// ErrInvalidChartData indicates the upstream payload could not be parsed
// into any chart records. Retrying with the same input would fail again.
var ErrInvalidChartData = errors.New("invalid or empty chart data")

// FetchExhaustedError is returned once the fetch retry budget is spent.
type FetchExhaustedError struct {
	Attempts int
	LastErr  error
}

func (e *FetchExhaustedError) Error() string {
	return fmt.Sprintf("failed to fetch chart data after %d attempts: %v", e.Attempts, e.LastErr)
}

func (e *FetchExhaustedError) Unwrap() error { return e.LastErr }

// InsufficientDataError indicates the quality gate rejected the chart:
// fewer than the required number of rows carried a track id, title and artist.
type InsufficientDataError struct {
	ValidCount int
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("insufficient valid chart data: only %d valid items found", e.ValidCount)
}
