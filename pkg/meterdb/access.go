package meterdb

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/NotCoffee418/p1_load_monitor/pkg/telegram"
)

const recordColumns = "id, timestamp, " +
	"delivered_energy_low_tariff, delivered_energy_high_tariff, " +
	"received_energy_low_tariff, received_energy_high_tariff, " +
	"current_tariff_indicator, " +
	"instantaneous_power_delivered, instantaneous_power_received, " +
	"max_demand, switch_position"

// InsertRecord appends one row. A single statement, so a row is either
// fully visible or absent.
func (m *MeterDB) InsertRecord(ctx context.Context, timestamp int64, frame telegram.Frame) (Record, error) {
	res, err := m.db.ExecContext(ctx,
		"INSERT INTO records ("+
			"timestamp, "+
			"delivered_energy_low_tariff, delivered_energy_high_tariff, "+
			"received_energy_low_tariff, received_energy_high_tariff, "+
			"current_tariff_indicator, "+
			"instantaneous_power_delivered, instantaneous_power_received, "+
			"max_demand, switch_position"+
			") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)",
		timestamp,
		nullFloat(frame.DeliveredLowTariff),
		nullFloat(frame.DeliveredHighTariff),
		nullFloat(frame.ReceivedLowTariff),
		nullFloat(frame.ReceivedHighTariff),
		nullInt(frame.TariffIndicator),
		nullFloat(frame.PowerDelivered),
		nullFloat(frame.PowerReceived),
		nullFloat(frame.MaxDemand),
		nullInt(frame.SwitchPosition),
	)
	if err != nil {
		return Record{}, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return Record{}, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	return Record{ID: id, Timestamp: timestamp, Frame: frame}, nil
}

// RecordsBetween returns rows with from <= timestamp <= to, oldest first.
func (m *MeterDB) RecordsBetween(ctx context.Context, from, to int64) ([]Record, error) {
	return m.query(ctx,
		"SELECT "+recordColumns+" FROM records "+
			"WHERE timestamp >= ? AND timestamp <= ? "+
			"ORDER BY timestamp, id",
		from, to,
	)
}

// RecordsSince returns rows with timestamp > threshold, oldest first.
func (m *MeterDB) RecordsSince(ctx context.Context, threshold int64) ([]Record, error) {
	return m.query(ctx,
		"SELECT "+recordColumns+" FROM records "+
			"WHERE timestamp > ? "+
			"ORDER BY timestamp, id",
		threshold,
	)
}

func (m *MeterDB) query(ctx context.Context, query string, args ...any) ([]Record, error) {
	rows, err := m.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	defer rows.Close()

	records := []Record{}
	for rows.Next() {
		var (
			r                           Record
			deliveredLow, deliveredHigh sql.NullFloat64
			receivedLow, receivedHigh   sql.NullFloat64
			tariff, switchPosition      sql.NullInt32
			powerDelivered, powerRecv   sql.NullFloat64
			maxDemand                   sql.NullFloat64
		)
		if err := rows.Scan(
			&r.ID, &r.Timestamp,
			&deliveredLow, &deliveredHigh,
			&receivedLow, &receivedHigh,
			&tariff,
			&powerDelivered, &powerRecv,
			&maxDemand, &switchPosition,
		); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
		}

		r.DeliveredLowTariff = floatPtr(deliveredLow)
		r.DeliveredHighTariff = floatPtr(deliveredHigh)
		r.ReceivedLowTariff = floatPtr(receivedLow)
		r.ReceivedHighTariff = floatPtr(receivedHigh)
		r.TariffIndicator = intPtr(tariff)
		r.PowerDelivered = floatPtr(powerDelivered)
		r.PowerReceived = floatPtr(powerRecv)
		r.MaxDemand = floatPtr(maxDemand)
		r.SwitchPosition = intPtr(switchPosition)
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	return records, nil
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func nullInt(v *int32) sql.NullInt32 {
	if v == nil {
		return sql.NullInt32{}
	}
	return sql.NullInt32{Int32: *v, Valid: true}
}

func floatPtr(n sql.NullFloat64) *float64 {
	if !n.Valid {
		return nil
	}
	v := n.Float64
	return &v
}

func intPtr(n sql.NullInt32) *int32 {
	if !n.Valid {
		return nil
	}
	v := n.Int32
	return &v
}
