// Package api exposes the meter store and the live feed over HTTP.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/NotCoffee418/p1_load_monitor/pkg/metrics"
	"github.com/NotCoffee418/p1_load_monitor/pkg/query"
	"github.com/NotCoffee418/p1_load_monitor/pkg/telegram"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// Store is the read side of the meter store.
type Store interface {
	query.SinceReader
	query.BetweenReader
}

type LatestFrameSource interface {
	GetLatestFrame() *telegram.Frame
}

type SolarSource interface {
	IsConfigured() bool
	ReadPower(ctx context.Context) (int32, error)
}

type Deps struct {
	Store   Store
	Latest  LatestFrameSource
	LiveWS  http.Handler
	Solar   SolarSource
	Metrics *metrics.Metrics
	Logger  *zap.Logger
	// Defaults to time.Now
	Now func() time.Time
}

type server struct {
	Deps
}

// NewHandler builds the router with recovery and access logging applied.
func NewHandler(d Deps) http.Handler {
	if d.Now == nil {
		d.Now = time.Now
	}
	s := &server{Deps: d}

	r := mux.NewRouter()
	s.route(r, "/", s.handleIndex)
	s.route(r, "/load", s.handleLoad)
	s.route(r, "/records", s.handleRecords)
	s.route(r, "/latest", s.handleLatest)
	s.route(r, "/solar", s.handleSolar)
	if d.LiveWS != nil {
		r.Handle("/ws", d.LiveWS).Methods(http.MethodGet)
	}
	r.Handle("/metrics", d.Metrics.Handler()).Methods(http.MethodGet)

	stdLog := zap.NewStdLog(d.Logger.Named("http"))
	var h http.Handler = handlers.LoggingHandler(stdLog.Writer(), r)
	h = handlers.RecoveryHandler(
		handlers.RecoveryLogger(stdLog),
		handlers.PrintRecoveryStack(true),
	)(h)
	return h
}

func (s *server) route(r *mux.Router, path string, fn http.HandlerFunc) {
	r.Handle(path, s.Metrics.WrapHandler(path, fn)).Methods(http.MethodGet)
}
