// Package store persists fetched observation and forecast tables in SQLite
// together with an audit trail of fetches.
package store

import (
	"database/sql"
	"fmt"
	"io"
	"log"
	"time"

	_ "modernc.org/sqlite"

	"github.com/lox/openkmi/pkg/kmi/table"
)

// Timestamps are stored as RFC 3339 text in UTC so they sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

type Store struct {
	db     *sql.DB
	logger *log.Logger
	now    func() time.Time
}

// New wraps an open database. A nil logger discards migration output.
func New(db *sql.DB, logger *log.Logger) *Store {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Store{db: db, logger: logger, now: time.Now}
}

// Open opens (creating if needed) the SQLite database at path and applies
// migrations.
func Open(path string, logger *log.Logger) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.Exec("PRAGMA journal_mode=WAL")
	db.Exec("PRAGMA busy_timeout=5000")

	s := New(db, logger)
	if err := s.Migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(raw string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse stored time %q: %w", raw, err)
	}
	return t.UTC(), nil
}

// cell splits a value into its nullable numeric and text columns.
func cell(v table.Value) (sql.NullFloat64, sql.NullString) {
	switch v.Kind {
	case table.KindNumber:
		return sql.NullFloat64{Float64: v.Num, Valid: true}, sql.NullString{}
	case table.KindText:
		return sql.NullFloat64{}, sql.NullString{String: v.Text, Valid: true}
	default:
		return sql.NullFloat64{}, sql.NullString{}
	}
}

func value(num sql.NullFloat64, text sql.NullString) table.Value {
	switch {
	case num.Valid:
		return table.Number(num.Float64)
	case text.Valid:
		return table.Text(text.String)
	default:
		return table.Null()
	}
}
