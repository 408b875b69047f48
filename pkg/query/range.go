package query

import (
	"context"

	"github.com/NotCoffee418/p1_load_monitor/pkg/meterdb"
)

// Range returns every row with from <= timestamp <= to, oldest first.
// A nil bound is rejected before the store is consulted.
func Range(ctx context.Context, src BetweenReader, from, to *int64) ([]meterdb.Record, error) {
	if from == nil || to == nil {
		return nil, ErrMissingRangeBounds
	}
	records, err := src.RecordsBetween(ctx, *from, *to)
	if err != nil {
		return nil, err
	}
	if records == nil {
		records = []meterdb.Record{}
	}
	return records, nil
}
