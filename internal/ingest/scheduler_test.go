package ingest

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/lox/openkmi/internal/store"
	"github.com/lox/openkmi/pkg/kmi/observations"
	"github.com/lox/openkmi/pkg/kmi/table"
)

type fakeObservations struct {
	mu      sync.Mutex
	queries []observations.Query
	rows    map[string][]time.Time
	err     error
}

func (f *fakeObservations) Config() observations.Config {
	return observations.SynopConfig("http://localhost")
}

func (f *fakeObservations) FetchObservations(_ context.Context, q observations.Query) (*table.Table, error) {
	f.mu.Lock()
	f.queries = append(f.queries, q)
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	t := table.New("temp")
	for i, at := range f.rows[q.StationCode] {
		if err := t.Append(at, table.Number(float64(i))); err != nil {
			return nil, err
		}
	}
	return t, nil
}

type fakeForecast struct {
	calls int
}

func (f *fakeForecast) Fetch(_ context.Context, layer string, x, y float64, crs string) (*table.Table, error) {
	f.calls++
	t := table.New(layer)
	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	for h := 0; h < 3; h++ {
		if err := t.Append(base.Add(time.Duration(h)*time.Hour), table.Number(x+y+float64(h))); err != nil {
			return nil, err
		}
	}
	return t, nil
}

func setupStore(t *testing.T) *store.Store {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	st := store.New(db, nil)
	if err := st.Migrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return st
}

func TestIngestOnce(t *testing.T) {
	st := setupStore(t)
	now := time.Date(2024, 3, 2, 12, 0, 0, 0, time.UTC)
	latest := now.Add(-2 * time.Hour)

	obs := &fakeObservations{rows: map[string][]time.Time{
		"6438": {now.Add(-3 * time.Hour), latest},
	}}
	fc := &fakeForecast{}
	points := []Point{{Layer: "2_m_temperature", X: 4.62, Y: 50.72, CRS: "EPSG:4326"}}

	s := NewScheduler(st, obs, fc, []string{"6438"}, points, nil)
	s.now = func() time.Time { return now }

	if err := s.IngestOnce(context.Background()); err != nil {
		t.Fatalf("IngestOnce: %v", err)
	}

	stored, err := st.LoadObservations(observations.SynopDataLayer, "6438", time.Time{}, time.Time{})
	if err != nil {
		t.Fatalf("LoadObservations: %v", err)
	}
	if stored.Len() != 2 {
		t.Errorf("stored observations = %d, want 2", stored.Len())
	}
	forecast, err := st.LoadForecast("2_m_temperature", 4.62, 50.72, "EPSG:4326")
	if err != nil {
		t.Fatalf("LoadForecast: %v", err)
	}
	if forecast.Len() != 3 {
		t.Errorf("stored forecast = %d, want 3", forecast.Len())
	}

	// The second pass resumes from the newest stored row.
	if err := s.IngestOnce(context.Background()); err != nil {
		t.Fatalf("IngestOnce: %v", err)
	}
	if len(obs.queries) != 2 {
		t.Fatalf("queries = %d, want 2", len(obs.queries))
	}
	if want := now.Add(-24 * time.Hour); !obs.queries[0].Start.Equal(want) {
		t.Errorf("first start = %v, want %v", obs.queries[0].Start, want)
	}
	if !obs.queries[1].Start.Equal(latest) {
		t.Errorf("second start = %v, want %v", obs.queries[1].Start, latest)
	}
	if fc.calls != 2 {
		t.Errorf("forecast calls = %d, want 2", fc.calls)
	}

	runs, err := st.RecentFetchRuns(10)
	if err != nil {
		t.Fatalf("RecentFetchRuns: %v", err)
	}
	if len(runs) != 4 {
		t.Errorf("fetch runs = %d, want 4", len(runs))
	}
	for _, r := range runs {
		if !r.Success {
			t.Errorf("run %+v not successful", r)
		}
	}
}

func TestIngestOnce_Errors(t *testing.T) {
	st := setupStore(t)
	boom := errors.New("unexpected status: 503")
	obs := &fakeObservations{err: boom}

	s := NewScheduler(st, obs, nil, []string{"6438", "6447"}, nil, nil)
	err := s.IngestOnce(context.Background())
	if !errors.Is(err, boom) {
		t.Fatalf("IngestOnce error = %v, want %v", err, boom)
	}
	if len(obs.queries) != 2 {
		t.Errorf("queries = %d, want 2; one failing station must not stop the rest", len(obs.queries))
	}

	runs, err := st.RecentFetchRuns(10)
	if err != nil {
		t.Fatalf("RecentFetchRuns: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("fetch runs = %d, want 2", len(runs))
	}
	for _, r := range runs {
		if r.Success || r.ErrorMessage.String != boom.Error() {
			t.Errorf("run = %+v, want failure", r)
		}
	}
}

func TestRun_StopsOnCancel(t *testing.T) {
	st := setupStore(t)
	fc := &fakeForecast{}
	s := NewScheduler(st, nil, fc, nil, []Point{{Layer: "msl_pressure", X: 4, Y: 50, CRS: "EPSG:4326"}}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	if fc.calls != 1 {
		t.Errorf("forecast calls = %d, want 1", fc.calls)
	}
}

func TestParsePoint(t *testing.T) {
	tests := []struct {
		raw     string
		want    Point
		wantErr bool
	}{
		{raw: "2_m_temperature@4.62,50.72", want: Point{Layer: "2_m_temperature", X: 4.62, Y: 50.72, CRS: "EPSG:4326"}},
		{raw: "msl_pressure@150000,170000@EPSG:31370", want: Point{Layer: "msl_pressure", X: 150000, Y: 170000, CRS: "EPSG:31370"}},
		{raw: "msl_pressure", wantErr: true},
		{raw: "@4,50", wantErr: true},
		{raw: "msl_pressure@4", wantErr: true},
		{raw: "msl_pressure@a,50", wantErr: true},
		{raw: "msl_pressure@4,b", wantErr: true},
		{raw: "a@1,2@c@d", wantErr: true},
	}
	for _, tt := range tests {
		got, err := ParsePoint(tt.raw)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParsePoint(%q) = %+v, want error", tt.raw, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParsePoint(%q): %v", tt.raw, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParsePoint(%q) = %+v, want %+v", tt.raw, got, tt.want)
		}
	}
}
