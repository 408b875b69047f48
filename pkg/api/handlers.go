package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"

	"github.com/NotCoffee418/p1_load_monitor/pkg/meterdb"
	"github.com/NotCoffee418/p1_load_monitor/pkg/query"
	"github.com/NotCoffee418/p1_load_monitor/pkg/solarinverter"
	"github.com/NotCoffee418/p1_load_monitor/pkg/telegram"
	"go.uber.org/zap"
)

// rangeRow is the shape of one /records element.
type rangeRow struct {
	Timestamp           int64    `json:"timestamp"`
	DeliveredLowTariff  *float64 `json:"delivered_energy_low_tariff"`
	DeliveredHighTariff *float64 `json:"delivered_energy_high_tariff"`
	TariffIndicator     *int32   `json:"current_tariff_indicator"`
}

func (s *server) handleIndex(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"message": "P1 Load Monitor API",
		"status":  "running",
	})
}

// handleLoad answers "W1,W5,W15" in whole watts.
func (s *server) handleLoad(w http.ResponseWriter, r *http.Request) {
	load, err := query.LoadEstimate(r.Context(), s.Now(), s.Store)
	if err != nil {
		status := loadErrorStatus(err)
		if status == http.StatusInternalServerError {
			s.Logger.Error("load query failed", zap.Error(err))
		}
		http.Error(w, err.Error(), status)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprintf(w, "%s,%s,%s",
		wholeWatts(load.OneMinute),
		wholeWatts(load.FiveMinute),
		wholeWatts(load.FifteenMinute))
}

func loadErrorStatus(err error) int {
	switch {
	case errors.Is(err, query.ErrNoData):
		return http.StatusNotFound
	case errors.Is(err, query.ErrAmbiguousWindow), errors.Is(err, query.ErrIncompleteSample):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func wholeWatts(v float64) string {
	// +0 folds a negative zero from rounding
	return strconv.FormatFloat(math.Round(v)+0, 'f', 0, 64)
}

func (s *server) handleRecords(w http.ResponseWriter, r *http.Request) {
	from, err := int64Param(r, "from")
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	to, err := int64Param(r, "to")
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	records, err := query.Range(r.Context(), s.Store, from, to)
	if errors.Is(err, query.ErrMissingRangeBounds) {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err != nil {
		s.Logger.Error("range query failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	writeJSON(w, http.StatusOK, toRangeRows(records))
}

func toRangeRows(records []meterdb.Record) []rangeRow {
	rows := make([]rangeRow, 0, len(records))
	for _, rec := range records {
		rows = append(rows, rangeRow{
			Timestamp:           rec.Timestamp,
			DeliveredLowTariff:  rec.DeliveredLowTariff,
			DeliveredHighTariff: rec.DeliveredHighTariff,
			TariffIndicator:     rec.TariffIndicator,
		})
	}
	return rows
}

// int64Param returns nil for an absent parameter.
func int64Param(r *http.Request, name string) (*int64, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid %s: %q is not a unix timestamp", name, raw)
	}
	return &v, nil
}

func (s *server) handleLatest(w http.ResponseWriter, r *http.Request) {
	var frame *telegram.Frame
	if s.Latest != nil {
		frame = s.Latest.GetLatestFrame()
	}
	if frame == nil {
		writeError(w, http.StatusNotFound, errors.New("no readings available yet"))
		return
	}
	writeJSON(w, http.StatusOK, frame)
}

// May be fast or slow depending on cached response from inverter.
func (s *server) handleSolar(w http.ResponseWriter, r *http.Request) {
	if s.Solar == nil || !s.Solar.IsConfigured() {
		writeError(w, http.StatusNotFound, solarinverter.ErrModbusNotConfigured)
		return
	}
	power, err := s.Solar.ReadPower(r.Context())
	if err != nil {
		s.Logger.Warn("solar read failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int32{
		"currentProduction": power,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{
		"error": err.Error(),
	})
}
