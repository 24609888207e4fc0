package api

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/lox/openkmi/internal/store"
	"github.com/lox/openkmi/pkg/kmi/observations"
)

type HealthStatus struct {
	Status           string                     `json:"status"`
	MigrationVersion int                        `json:"migration_version"`
	Fetches          []store.FetchHealthSummary `json:"fetches"`
}

// handleHealth reports the schema version and the last day of fetches.
// Status is "degraded" when every fetch of some layer failed.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	version, err := s.store.MigrationVersion()
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"status": "error", "error": err.Error()})
		return
	}
	summary, err := s.store.FetchHealth(1)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"status": "error", "error": err.Error()})
		return
	}

	health := HealthStatus{Status: "ok", MigrationVersion: version, Fetches: summary}
	if health.Fetches == nil {
		health.Fetches = []store.FetchHealthSummary{}
	}
	for _, h := range summary {
		if h.TotalRuns > 0 && h.SuccessRuns == 0 {
			health.Status = "degraded"
		}
	}
	writeJSON(w, http.StatusOK, health)
}

func (s *Server) handleAPIObservations(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	station := q.Get("station")
	if station == "" {
		writeError(w, http.StatusBadRequest, "station is required")
		return
	}
	layer := q.Get("layer")
	if layer == "" {
		layer = observations.SynopDataLayer
	}
	start, err := queryTime(q.Get("start"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "start: "+err.Error())
		return
	}
	end, err := queryTime(q.Get("end"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "end: "+err.Error())
		return
	}

	t, err := s.store.LoadObservations(layer, station, start, end)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (s *Server) handleAPIForecast(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	layer := q.Get("layer")
	if layer == "" {
		writeError(w, http.StatusBadRequest, "layer is required")
		return
	}
	x, err := strconv.ParseFloat(q.Get("x"), 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "x must be a number")
		return
	}
	y, err := strconv.ParseFloat(q.Get("y"), 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "y must be a number")
		return
	}
	crs := q.Get("crs")
	if crs == "" {
		crs = "EPSG:4326"
	}

	t, err := s.store.LoadForecast(layer, x, y, crs)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, t)
}

type runView struct {
	ID         int64      `json:"id"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Kind       string     `json:"kind"`
	Layer      string     `json:"layer"`
	Target     string     `json:"target"`
	Rows       *int64     `json:"rows,omitempty"`
	Success    bool       `json:"success"`
	Error      string     `json:"error,omitempty"`
}

func (s *Server) handleAPIRuns(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	runs, err := s.store.RecentFetchRuns(limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	views := make([]runView, 0, len(runs))
	for _, run := range runs {
		v := runView{
			ID:         run.ID,
			StartedAt:  run.StartedAt,
			FinishedAt: run.FinishedAt,
			Kind:       run.Kind,
			Layer:      run.Layer,
			Target:     run.Target,
			Success:    run.Success,
			Error:      run.ErrorMessage.String,
		}
		if run.Rows.Valid {
			rows := run.Rows.Int64
			v.Rows = &rows
		}
		views = append(views, v)
	}
	writeJSON(w, http.StatusOK, views)
}

var queryLayouts = []string{time.RFC3339, "2006-01-02"}

func queryTime(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	for _, layout := range queryLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised time %q", raw)
}
