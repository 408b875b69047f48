package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics methods are safe to call on a nil receiver, so components can run without them.
type Metrics struct {
	registry *prometheus.Registry

	framesAssembled  prometheus.Counter
	malformedLines   *prometheus.CounterVec
	checksumFailures prometheus.Counter
	recordsStored    prometheus.Counter
	insertFailures   prometheus.Counter
	httpRequests     *prometheus.CounterVec
	httpDuration     *prometheus.HistogramVec
}

func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		framesAssembled: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "p1_frames_assembled_total",
			Help: "Telegrams completed by the frame assembler.",
		}),
		malformedLines: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "p1_malformed_lines_total",
			Help: "Lines carrying a known register whose value could not be decoded.",
		}, []string{"register"}),
		checksumFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "p1_checksum_failures_total",
			Help: "Telegrams dropped because their CRC did not match.",
		}),
		recordsStored: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "p1_records_stored_total",
			Help: "Records appended to the meter store.",
		}),
		insertFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "p1_record_insert_failures_total",
			Help: "Records that could not be appended to the meter store.",
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total count of HTTP requests processed by route and status.",
		}, []string{"route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Histogram of HTTP request durations by route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
	}

	m.registry.MustRegister(
		m.framesAssembled,
		m.malformedLines,
		m.checksumFailures,
		m.recordsStored,
		m.insertFailures,
		m.httpRequests,
		m.httpDuration,
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) FrameAssembled() {
	if m == nil {
		return
	}
	m.framesAssembled.Inc()
}

// MalformedLine has the signature of the assembler's malformed line hook.
func (m *Metrics) MalformedLine(identifier, _ string) {
	if m == nil {
		return
	}
	m.malformedLines.WithLabelValues(identifier).Inc()
}

func (m *Metrics) ChecksumFailed(_ string) {
	if m == nil {
		return
	}
	m.checksumFailures.Inc()
}

func (m *Metrics) RecordStored() {
	if m == nil {
		return
	}
	m.recordsStored.Inc()
}

func (m *Metrics) InsertFailed() {
	if m == nil {
		return
	}
	m.insertFailures.Inc()
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(status int) {
	s.status = status
	s.ResponseWriter.WriteHeader(status)
}

func (m *Metrics) WrapHandler(route string, next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		next.ServeHTTP(recorder, r)

		m.httpRequests.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
		m.httpDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}
