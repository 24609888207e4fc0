package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/lox/openkmi/pkg/kmi/table"
)

// SaveObservations upserts every cell of t for one station and returns the
// number of cells written. Null cells are stored so a reload keeps the
// table shape.
func (s *Store) SaveObservations(layer, stationCode string, t *table.Table) (int, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO observations (layer, station_code, observed_at, parameter, value_num, value_text, fetched_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(layer, station_code, observed_at, parameter) DO UPDATE SET
			value_num = excluded.value_num,
			value_text = excluded.value_text,
			fetched_at = excluded.fetched_at
	`)
	if err != nil {
		return 0, fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	fetchedAt := formatTime(s.now())
	columns := t.Columns()
	n := 0
	for i := 0; i < t.Len(); i++ {
		at, row := t.Row(i)
		for j, v := range row {
			num, text := cell(v)
			if _, err := stmt.Exec(layer, stationCode, formatTime(at), columns[j], num, text, fetchedAt); err != nil {
				return n, fmt.Errorf("insert observation %s %s: %w", stationCode, columns[j], err)
			}
			n++
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return n, nil
}

// LoadObservations rebuilds the stored table for one station within
// [from, to). Zero bounds are open. Columns appear in the order they were
// first stored.
func (s *Store) LoadObservations(layer, stationCode string, from, to time.Time) (*table.Table, error) {
	lo, hi := "", "9999"
	if !from.IsZero() {
		lo = formatTime(from)
	}
	if !to.IsZero() {
		hi = formatTime(to)
	}

	cols, err := s.db.Query(`
		SELECT parameter FROM observations
		WHERE layer = ? AND station_code = ? AND observed_at >= ? AND observed_at < ?
		GROUP BY parameter
		ORDER BY MIN(id)
	`, layer, stationCode, lo, hi)
	if err != nil {
		return nil, err
	}
	var columns []string
	for cols.Next() {
		var name string
		if err := cols.Scan(&name); err != nil {
			cols.Close()
			return nil, err
		}
		columns = append(columns, name)
	}
	cols.Close()
	if err := cols.Err(); err != nil {
		return nil, err
	}

	rows, err := s.db.Query(`
		SELECT observed_at, parameter, value_num, value_text FROM observations
		WHERE layer = ? AND station_code = ? AND observed_at >= ? AND observed_at < ?
		ORDER BY observed_at, id
	`, layer, stationCode, lo, hi)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return pivot(columns, rows)
}

// SaveForecast upserts a forecast table fetched for point (x, y) in crs.
// The table's first column holds the values.
func (s *Store) SaveForecast(layer string, x, y float64, crs string, t *table.Table) (int, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO forecasts (layer, x, y, crs, valid_at, value_num, value_text, fetched_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(layer, x, y, crs, valid_at) DO UPDATE SET
			value_num = excluded.value_num,
			value_text = excluded.value_text,
			fetched_at = excluded.fetched_at
	`)
	if err != nil {
		return 0, fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	fetchedAt := formatTime(s.now())
	n := 0
	for i := 0; i < t.Len(); i++ {
		at, row := t.Row(i)
		if len(row) == 0 {
			continue
		}
		num, text := cell(row[0])
		if _, err := stmt.Exec(layer, x, y, crs, formatTime(at), num, text, fetchedAt); err != nil {
			return n, fmt.Errorf("insert forecast %s at %s: %w", layer, formatTime(at), err)
		}
		n++
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return n, nil
}

// LoadForecast returns the stored forecast for a point as a one-column
// table named after the layer.
func (s *Store) LoadForecast(layer string, x, y float64, crs string) (*table.Table, error) {
	rows, err := s.db.Query(`
		SELECT valid_at, layer, value_num, value_text FROM forecasts
		WHERE layer = ? AND x = ? AND y = ? AND crs = ?
		ORDER BY valid_at
	`, layer, x, y, crs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return pivot([]string{layer}, rows)
}

// pivot folds (time, column, num, text) rows, ordered by time, into a
// table. Cells absent for a time are null.
func pivot(columns []string, rows *sql.Rows) (*table.Table, error) {
	index := make(map[string]int, len(columns))
	for i, c := range columns {
		index[c] = i
	}

	t := table.New(columns...)
	var (
		current string
		cells   []table.Value
	)
	flush := func() error {
		if current == "" {
			return nil
		}
		at, err := parseTime(current)
		if err != nil {
			return err
		}
		return t.Append(at, cells...)
	}

	for rows.Next() {
		var (
			at, column string
			num        sql.NullFloat64
			text       sql.NullString
		)
		if err := rows.Scan(&at, &column, &num, &text); err != nil {
			return nil, err
		}
		if at != current {
			if err := flush(); err != nil {
				return nil, err
			}
			current = at
			cells = make([]table.Value, len(columns))
		}
		if i, ok := index[column]; ok {
			cells[i] = value(num, text)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := flush(); err != nil {
		return nil, err
	}
	return t, nil
}

// LatestObservation returns the newest stored observation time for a
// station. ok is false when nothing is stored.
func (s *Store) LatestObservation(layer, stationCode string) (at time.Time, ok bool, err error) {
	var raw sql.NullString
	if err := s.db.QueryRow(`
		SELECT MAX(observed_at) FROM observations WHERE layer = ? AND station_code = ?
	`, layer, stationCode).Scan(&raw); err != nil {
		return time.Time{}, false, err
	}
	if !raw.Valid {
		return time.Time{}, false, nil
	}
	at, err = parseTime(raw.String)
	if err != nil {
		return time.Time{}, false, err
	}
	return at, true, nil
}
