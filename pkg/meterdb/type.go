package meterdb

import "github.com/NotCoffee418/p1_load_monitor/pkg/telegram"

// Record is one stored telegram. Rows are never updated after insert.
type Record struct {
	ID        int64 `db:"id" json:"id"`
	Timestamp int64 `db:"timestamp" json:"timestamp"`
	telegram.Frame
}
