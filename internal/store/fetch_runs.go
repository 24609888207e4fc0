package store

import (
	"database/sql"
	"time"
)

// FetchRun records a single service fetch for auditing.
type FetchRun struct {
	ID           int64
	StartedAt    time.Time
	FinishedAt   *time.Time
	Kind         string // "observations", "forecast"
	Layer        string // "synop:synop_data", "2_m_temperature", ...
	Target       string // station code or "x,y crs"
	Rows         sql.NullInt64
	Success      bool
	ErrorMessage sql.NullString
}

// StartFetchRun creates a new, unfinished run record.
func (s *Store) StartFetchRun(kind, layer, target string) (*FetchRun, error) {
	run := &FetchRun{
		StartedAt: s.now().UTC(),
		Kind:      kind,
		Layer:     layer,
		Target:    target,
	}
	result, err := s.db.Exec(`
		INSERT INTO fetch_runs (started_at, kind, layer, target, success)
		VALUES (?, ?, ?, ?, FALSE)
	`, formatTime(run.StartedAt), run.Kind, run.Layer, run.Target)
	if err != nil {
		return nil, err
	}
	run.ID, err = result.LastInsertId()
	if err != nil {
		return nil, err
	}
	return run, nil
}

// CompleteFetchRun stores the outcome of run. A nil run is ignored.
func (s *Store) CompleteFetchRun(run *FetchRun) error {
	if run == nil {
		return nil
	}
	finished := s.now().UTC()
	run.FinishedAt = &finished

	_, err := s.db.Exec(`
		UPDATE fetch_runs SET
			finished_at = ?,
			row_count = ?,
			success = ?,
			error_message = ?
		WHERE id = ?
	`, formatTime(finished), run.Rows, run.Success, run.ErrorMessage, run.ID)
	return err
}

// Fail marks the run failed with err.
func (r *FetchRun) Fail(err error) {
	r.Success = false
	r.ErrorMessage = sql.NullString{String: err.Error(), Valid: true}
}

// Succeed marks the run successful with the number of rows fetched.
func (r *FetchRun) Succeed(rows int) {
	r.Success = true
	r.Rows = sql.NullInt64{Int64: int64(rows), Valid: true}
}

// Track runs fetch and logs its outcome as a fetch run. fetch reports the
// number of rows it fetched. Bookkeeping failures are logged, never
// returned. Track on a nil Store just runs fetch.
func (s *Store) Track(kind, layer, target string, fetch func() (int, error)) error {
	if s == nil {
		_, err := fetch()
		return err
	}

	run, err := s.StartFetchRun(kind, layer, target)
	if err != nil {
		s.logger.Printf("store: start fetch run: %v", err)
	}
	rows, fetchErr := fetch()
	if run == nil {
		return fetchErr
	}
	if fetchErr != nil {
		run.Fail(fetchErr)
	} else {
		run.Succeed(rows)
	}
	if err := s.CompleteFetchRun(run); err != nil {
		s.logger.Printf("store: complete fetch run %d: %v", run.ID, err)
	}
	return fetchErr
}

// RecentFetchRuns returns the latest runs, newest first.
func (s *Store) RecentFetchRuns(limit int) ([]FetchRun, error) {
	rows, err := s.db.Query(`
		SELECT id, started_at, finished_at, kind, layer, target, row_count, success, error_message
		FROM fetch_runs
		ORDER BY started_at DESC, id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []FetchRun
	for rows.Next() {
		var (
			r        FetchRun
			started  string
			finished sql.NullString
		)
		if err := rows.Scan(&r.ID, &started, &finished, &r.Kind, &r.Layer, &r.Target,
			&r.Rows, &r.Success, &r.ErrorMessage); err != nil {
			return nil, err
		}
		if r.StartedAt, err = parseTime(started); err != nil {
			return nil, err
		}
		if finished.Valid {
			t, err := parseTime(finished.String)
			if err != nil {
				return nil, err
			}
			r.FinishedAt = &t
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

// FetchHealthSummary aggregates runs per day, kind and layer.
type FetchHealthSummary struct {
	Date        string `json:"date"`
	Kind        string `json:"kind"`
	Layer       string `json:"layer"`
	TotalRuns   int    `json:"total_runs"`
	SuccessRuns int    `json:"success_runs"`
	FailedRuns  int    `json:"failed_runs"`
	TotalRows   int64  `json:"total_rows"`
}

// FetchHealth summarises runs started in the last days.
func (s *Store) FetchHealth(days int) ([]FetchHealthSummary, error) {
	since := formatTime(s.now().AddDate(0, 0, -days))
	rows, err := s.db.Query(`
		SELECT
			SUBSTR(started_at, 1, 10) AS date,
			kind,
			layer,
			COUNT(*) AS total_runs,
			SUM(CASE WHEN success THEN 1 ELSE 0 END) AS success_runs,
			SUM(CASE WHEN NOT success THEN 1 ELSE 0 END) AS failed_runs,
			COALESCE(SUM(row_count), 0) AS total_rows
		FROM fetch_runs
		WHERE started_at > ?
		GROUP BY date, kind, layer
		ORDER BY date DESC, kind, layer
	`, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []FetchHealthSummary
	for rows.Next() {
		var h FetchHealthSummary
		if err := rows.Scan(&h.Date, &h.Kind, &h.Layer, &h.TotalRuns,
			&h.SuccessRuns, &h.FailedRuns, &h.TotalRows); err != nil {
			return nil, err
		}
		results = append(results, h)
	}
	return results, rows.Err()
}
