package query

import (
	"context"
	"testing"

	"github.com/NotCoffee418/p1_load_monitor/pkg/meterdb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr(v int64) *int64 { return &v }

func TestRangeInclusive(t *testing.T) {
	store := &fakeStore{rows: []meterdb.Record{
		sample(1, 10, 0),
		sample(2, 20, 0),
		sample(3, 30, 0),
		sample(4, 40, 0),
	}}

	got, err := Range(context.Background(), store, ptr(20), ptr(30))
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, int64(20), got[0].Timestamp)
	assert.Equal(t, int64(30), got[1].Timestamp)
}

func TestRangeEmptyIsNotAFailure(t *testing.T) {
	store := &fakeStore{rows: []meterdb.Record{sample(1, 10, 0)}}

	got, err := Range(context.Background(), store, ptr(100), ptr(200))
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestRangeMissingBoundsSkipsStore(t *testing.T) {
	store := &fakeStore{}

	for _, bounds := range [][2]*int64{{nil, ptr(1)}, {ptr(1), nil}, {nil, nil}} {
		_, err := Range(context.Background(), store, bounds[0], bounds[1])
		assert.ErrorIs(t, err, ErrMissingRangeBounds)
	}
	assert.Zero(t, store.calls)
}

func TestRangeStoreError(t *testing.T) {
	store := &fakeStore{err: meterdb.ErrStoreUnavailable}
	_, err := Range(context.Background(), store, ptr(1), ptr(2))
	assert.ErrorIs(t, err, meterdb.ErrStoreUnavailable)
}
