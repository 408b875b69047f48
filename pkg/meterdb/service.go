// MeterDB holds one append-only row per received telegram.
// Rows are written by the ingestion sink and read by the query endpoints,
// possibly at the same time.
package meterdb

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"net/url"

	"github.com/NotCoffee418/dbmigrator"

	_ "modernc.org/sqlite"
)

// ErrStoreUnavailable wraps every failure coming from the database.
var ErrStoreUnavailable = errors.New("meter store unavailable")

//go:embed migrations/*.sql
var migrationFS embed.FS

type MeterDB struct {
	db *sql.DB
}

// Open connects to the database file at path and applies pending migrations.
func Open(path string) (*MeterDB, error) {
	db, err := sql.Open("sqlite", dsn(path))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	// Verify connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}

	// Apply migrations
	dbmigrator.SetDatabaseType(dbmigrator.SQLite)
	<-dbmigrator.MigrateUpCh(
		db,
		migrationFS,
		"migrations",
	)
	if _, err := db.Exec("SELECT 1 FROM records LIMIT 1"); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: schema missing after migration: %w", ErrStoreUnavailable, err)
	}

	return &MeterDB{db: db}, nil
}

func (m *MeterDB) Close() error {
	return m.db.Close()
}

// WAL lets the query endpoints read while a frame is being appended.
func dsn(path string) string {
	q := url.Values{}
	q.Add("_pragma", "busy_timeout(5000)")
	q.Add("_pragma", "journal_mode(WAL)")
	return fmt.Sprintf("file:%s?%s", path, q.Encode())
}
