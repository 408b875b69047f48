package ingest

import (
	"context"
	"sync"
	"time"

	"github.com/NotCoffee418/p1_load_monitor/pkg/meterdb"
	"github.com/NotCoffee418/p1_load_monitor/pkg/metrics"
	"github.com/NotCoffee418/p1_load_monitor/pkg/telegram"
	"go.uber.org/zap"
)

// Appender is the write side of the meter store.
type Appender interface {
	InsertRecord(ctx context.Context, timestamp int64, frame telegram.Frame) (meterdb.Record, error)
}

// Publisher receives every record after it is stored.
type Publisher interface {
	Publish(record meterdb.Record)
}

type Option func(*Sink)

// WithClock replaces time.Now for the record timestamp.
func WithClock(now func() time.Time) Option {
	return func(s *Sink) { s.now = now }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Sink) { s.metrics = m }
}

func WithPublishers(publishers ...Publisher) Option {
	return func(s *Sink) { s.publishers = append(s.publishers, publishers...) }
}

func WithInsertTimeout(d time.Duration) Option {
	return func(s *Sink) { s.insertTimeout = d }
}

// Sink turns completed frames into stored records without blocking the reader.
type Sink struct {
	store         Appender
	logger        *zap.Logger
	now           func() time.Time
	metrics       *metrics.Metrics
	publishers    []Publisher
	insertTimeout time.Duration

	inflight sync.WaitGroup
}

func NewSink(store Appender, logger *zap.Logger, opts ...Option) *Sink {
	s := &Sink{
		store:         store,
		logger:        logger,
		now:           time.Now,
		insertTimeout: 10 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Submit stamps the frame with the current time and appends it in the background.
// The timestamp is taken before Submit returns, so frames keep their arrival order
// even when the inserts themselves finish out of order.
func (s *Sink) Submit(frame telegram.Frame) {
	ts := s.now().Unix()
	s.metrics.FrameAssembled()

	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		ctx, cancel := context.WithTimeout(context.Background(), s.insertTimeout)
		defer cancel()
		_, _ = s.Store(ctx, ts, frame)
	}()
}

// Store makes one append attempt. Failures are logged and counted, never retried.
func (s *Sink) Store(ctx context.Context, timestamp int64, frame telegram.Frame) (meterdb.Record, error) {
	record, err := s.store.InsertRecord(ctx, timestamp, frame)
	if err != nil {
		s.logger.Error("failed to store record",
			zap.Int64("timestamp", timestamp),
			zap.Error(err))
		s.metrics.InsertFailed()
		return meterdb.Record{}, err
	}

	s.metrics.RecordStored()
	for _, p := range s.publishers {
		p.Publish(record)
	}
	return record, nil
}

// Wait blocks until every submitted frame has been stored or dropped.
func (s *Sink) Wait() {
	s.inflight.Wait()
}
