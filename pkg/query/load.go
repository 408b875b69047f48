package query

import (
	"context"
	"time"

	"github.com/NotCoffee418/p1_load_monitor/pkg/esmutils"
	"github.com/NotCoffee418/p1_load_monitor/pkg/meterdb"
)

// Slack keeps a sample emitted just before a window boundary inside it.
const windowSlack = 10 * time.Second

var windows = []time.Duration{time.Minute, 5 * time.Minute, 15 * time.Minute}

// LoadEstimate computes the average power drawn over the last 1, 5 and 15
// minutes from the delivered high tariff register. Each window runs from
// its earliest sample to the most recent sample overall.
func LoadEstimate(ctx context.Context, now time.Time, src SinceReader) (Load, error) {
	nowUnix := now.Unix()
	widest := windows[len(windows)-1]

	rows, err := src.RecordsSince(ctx, windowStart(nowUnix, widest))
	if err != nil {
		return Load{}, err
	}
	if len(rows) == 0 {
		return Load{}, ErrNoData
	}

	end := latest(rows)
	results := make([]float64, len(windows))
	for i, window := range windows {
		start, ok := earliestAfter(rows, windowStart(nowUnix, window))
		if !ok {
			return Load{}, &WindowError{Window: window, Err: ErrNoData}
		}
		watts, err := Rate(start, end)
		if err != nil {
			return Load{}, &WindowError{Window: window, Err: err}
		}
		results[i] = watts
	}

	return Load{
		OneMinute:     results[0],
		FiveMinute:    results[1],
		FifteenMinute: results[2],
	}, nil
}

// Rate returns average watts between two samples. Argument order does not
// matter; the older sample is chosen by timestamp.
func Rate(a, b meterdb.Record) (float64, error) {
	older, newer := a, b
	if newer.Timestamp < older.Timestamp {
		older, newer = newer, older
	}
	elapsed := newer.Timestamp - older.Timestamp
	if elapsed == 0 {
		return 0, ErrAmbiguousWindow
	}
	if older.DeliveredHighTariff == nil || newer.DeliveredHighTariff == nil {
		return 0, ErrIncompleteSample
	}

	delta := *newer.DeliveredHighTariff - *older.DeliveredHighTariff
	return esmutils.KwhOverSecondsToW(delta, elapsed), nil
}

// Rows are exclusive of this timestamp.
func windowStart(now int64, window time.Duration) int64 {
	return now - int64(window/time.Second) - int64(windowSlack/time.Second)
}

// latest picks the newest row, preferring the later insert on equal timestamps.
func latest(rows []meterdb.Record) meterdb.Record {
	best := rows[0]
	for _, r := range rows[1:] {
		if r.Timestamp > best.Timestamp || (r.Timestamp == best.Timestamp && r.ID > best.ID) {
			best = r
		}
	}
	return best
}

// earliestAfter picks the oldest row with timestamp > threshold, preferring
// the earlier insert on equal timestamps. Input order is not relied on.
func earliestAfter(rows []meterdb.Record, threshold int64) (meterdb.Record, bool) {
	var (
		best  meterdb.Record
		found bool
	)
	for _, r := range rows {
		if r.Timestamp <= threshold {
			continue
		}
		if !found || r.Timestamp < best.Timestamp || (r.Timestamp == best.Timestamp && r.ID < best.ID) {
			best = r
			found = true
		}
	}
	return best, found
}
