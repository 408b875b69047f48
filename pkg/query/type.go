package query

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/NotCoffee418/p1_load_monitor/pkg/meterdb"
)

var (
	// ErrNoData means no sample fell inside the window.
	ErrNoData = errors.New("no data")
	// ErrAmbiguousWindow means the selected samples share a timestamp.
	ErrAmbiguousWindow = errors.New("ambiguous window: zero elapsed time")
	// ErrIncompleteSample means a selected sample lacks the delivered high tariff register.
	ErrIncompleteSample = errors.New("incomplete sample")
	// ErrMissingRangeBounds is a caller error: both range bounds are required.
	ErrMissingRangeBounds = errors.New("both from and to are required")
)

// SinceReader returns rows with timestamp > threshold.
type SinceReader interface {
	RecordsSince(ctx context.Context, threshold int64) ([]meterdb.Record, error)
}

// BetweenReader returns rows with from <= timestamp <= to.
type BetweenReader interface {
	RecordsBetween(ctx context.Context, from, to int64) ([]meterdb.Record, error)
}

// Load holds average watts over the trailing windows.
type Load struct {
	OneMinute     float64 `json:"one_minute"`
	FiveMinute    float64 `json:"five_minute"`
	FifteenMinute float64 `json:"fifteen_minute"`
}

// WindowError names the window a load computation failed for.
type WindowError struct {
	Window time.Duration
	Err    error
}

func (e *WindowError) Error() string {
	return fmt.Sprintf("%s window: %v", e.Window, e.Err)
}

func (e *WindowError) Unwrap() error {
	return e.Err
}
