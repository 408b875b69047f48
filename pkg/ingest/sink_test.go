package ingest

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/NotCoffee418/p1_load_monitor/pkg/meterdb"
	"github.com/NotCoffee418/p1_load_monitor/pkg/metrics"
	"github.com/NotCoffee418/p1_load_monitor/pkg/port_reader"
	"github.com/NotCoffee418/p1_load_monitor/pkg/telegram"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type failingStore struct{}

func (failingStore) InsertRecord(context.Context, int64, telegram.Frame) (meterdb.Record, error) {
	return meterdb.Record{}, meterdb.ErrStoreUnavailable
}

// blockingStore holds every insert until release is closed.
type blockingStore struct {
	release chan struct{}
	started atomic.Int32
	stored  atomic.Int32
}

func (b *blockingStore) InsertRecord(ctx context.Context, ts int64, frame telegram.Frame) (meterdb.Record, error) {
	b.started.Add(1)
	select {
	case <-b.release:
	case <-ctx.Done():
		return meterdb.Record{}, ctx.Err()
	}
	b.stored.Add(1)
	return meterdb.Record{Timestamp: ts, Frame: frame}, nil
}

type collectingPublisher struct {
	mu      sync.Mutex
	records []meterdb.Record
}

func (c *collectingPublisher) Publish(record meterdb.Record) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.records = append(c.records, record)
}

func (c *collectingPublisher) snapshot() []meterdb.Record {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]meterdb.Record(nil), c.records...)
}

func openStore(t *testing.T) *meterdb.MeterDB {
	t.Helper()
	db, err := meterdb.Open(filepath.Join(t.TempDir(), "meter.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func ptr(v float64) *float64 { return &v }

func steppingClock(start time.Time, step time.Duration) func() time.Time {
	var mu sync.Mutex
	next := start
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		t := next
		next = next.Add(step)
		return t
	}
}

func TestSubmitStoresWithSubmitTimestamp(t *testing.T) {
	db := openStore(t)
	pub := &collectingPublisher{}
	start := time.Unix(1_700_000_000, 0)
	sink := NewSink(db, zaptest.NewLogger(t),
		WithClock(steppingClock(start, time.Second)),
		WithPublishers(pub),
		WithMetrics(metrics.NewMetrics()))

	for i := 0; i < 5; i++ {
		sink.Submit(telegram.Frame{DeliveredHighTariff: ptr(float64(i))})
	}
	sink.Wait()

	rows, err := db.RecordsBetween(context.Background(), start.Unix(), start.Unix()+10)
	require.NoError(t, err)
	require.Len(t, rows, 5)
	for i, row := range rows {
		assert.Equal(t, start.Unix()+int64(i), row.Timestamp)
		require.NotNil(t, row.DeliveredHighTariff)
		assert.Equal(t, float64(i), *row.DeliveredHighTariff)
	}

	published := pub.snapshot()
	require.Len(t, published, 5)
	sort.Slice(published, func(i, j int) bool { return published[i].Timestamp < published[j].Timestamp })
	assert.Equal(t, rows, published)
}

func TestStoreFailureIsReportedNotPublished(t *testing.T) {
	pub := &collectingPublisher{}
	sink := NewSink(failingStore{}, zaptest.NewLogger(t), WithPublishers(pub))

	_, err := sink.Store(context.Background(), 1, telegram.Frame{})
	assert.True(t, errors.Is(err, meterdb.ErrStoreUnavailable))

	sink.Submit(telegram.Frame{})
	sink.Wait()
	assert.Empty(t, pub.snapshot())
}

func TestStoreReturnsRecord(t *testing.T) {
	db := openStore(t)
	sink := NewSink(db, zaptest.NewLogger(t))

	record, err := sink.Store(context.Background(), 42, telegram.Frame{MaxDemand: ptr(1.5)})
	require.NoError(t, err)
	assert.Positive(t, record.ID)
	assert.Equal(t, int64(42), record.Timestamp)
	assert.Equal(t, 1.5, *record.MaxDemand)
}

func TestSubmitDoesNotBlockOnSlowStore(t *testing.T) {
	store := &blockingStore{release: make(chan struct{})}
	sink := NewSink(store, zaptest.NewLogger(t))

	submitted := make(chan struct{})
	go func() {
		defer close(submitted)
		for i := 0; i < 3; i++ {
			sink.Submit(telegram.Frame{DeliveredHighTariff: ptr(float64(i))})
		}
	}()

	select {
	case <-submitted:
	case <-time.After(5 * time.Second):
		close(store.release)
		t.Fatal("Submit blocked on the store")
	}
	assert.Zero(t, store.stored.Load())
	require.Eventually(t, func() bool { return store.started.Load() == 3 }, 5*time.Second, 10*time.Millisecond)

	close(store.release)
	sink.Wait()
	assert.Equal(t, int32(3), store.stored.Load())
}

func TestReaderKeepsGoingWhenEveryInsertFails(t *testing.T) {
	const replay = "/ISK5\\2M550T-1012\r\n" +
		"1-0:1.8.2(000100.000*kWh)\r\n" +
		"!\r\n" +
		"1-0:1.8.2(000100.100*kWh)\r\n" +
		"!\r\n" +
		"1-0:1.8.2(000100.200*kWh)\r\n" +
		"!\r\n"

	m := metrics.NewMetrics()
	sink := NewSink(failingStore{}, zaptest.NewLogger(t), WithMetrics(m))
	open := func() (io.ReadCloser, error) {
		return io.NopCloser(strings.NewReader(replay)), nil
	}
	reader := port_reader.NewP1Reader(open, telegram.NewAssembler(),
		port_reader.ReaderOptions{Once: true}, zaptest.NewLogger(t))

	var handled []float64
	err := reader.Run(context.Background(), func(frame telegram.Frame) {
		sink.Submit(frame)
		handled = append(handled, *frame.DeliveredHighTariff)
	})
	require.NoError(t, err)
	sink.Wait()

	assert.Equal(t, []float64{100.0, 100.1, 100.2}, handled)

	w := httptest.NewRecorder()
	m.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Contains(t, w.Body.String(), "p1_record_insert_failures_total 3")
	assert.Contains(t, w.Body.String(), "p1_frames_assembled_total 3")
}
