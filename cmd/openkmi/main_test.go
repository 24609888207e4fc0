package main

import (
	"bytes"
	"errors"
	"io"
	"log"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/lox/openkmi/internal/store"
	"github.com/lox/openkmi/pkg/kmi/fes"
)

func TestParseWhere(t *testing.T) {
	tests := []struct {
		name  string
		exprs []string
		kind  fes.ArgKind
		want  []fes.Filter
	}{
		{"none", nil, fes.ArgNone, nil},
		{"equal", []string{"code=6447"}, fes.ArgSingle, []fes.Filter{fes.Equal("code", "6447")}},
		{"greater or equal", []string{"wind_speed >= 5"}, fes.ArgSingle, []fes.Filter{fes.GreaterOrEqual("wind_speed", "5")}},
		{"less", []string{"temp<0"}, fes.ArgSingle, []fes.Filter{fes.Less("temp", "0")}},
		{
			"list",
			[]string{"wind_speed>=5", "temp<0"},
			fes.ArgList,
			[]fes.Filter{fes.GreaterOrEqual("wind_speed", "5"), fes.Less("temp", "0")},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			arg, err := parseWhere(tt.exprs)
			if err != nil {
				t.Fatalf("parseWhere: %v", err)
			}
			if arg.Kind() != tt.kind {
				t.Errorf("kind = %v, want %v", arg.Kind(), tt.kind)
			}
			got, err := arg.Filters()
			if err != nil {
				t.Fatalf("Filters: %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("filters = %#v, want %#v", got, tt.want)
			}
		})
	}
}

func TestParseWhere_Invalid(t *testing.T) {
	for _, expr := range []string{"wind_speed", "=5", "temp<", " >= 3"} {
		if _, err := parseWhere([]string{expr}); err == nil {
			t.Errorf("parseWhere(%q) = nil error", expr)
		}
	}
}

func TestParseWhen(t *testing.T) {
	tests := []struct {
		raw  string
		want time.Time
	}{
		{"", time.Time{}},
		{"2024-03-01", time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)},
		{"2024-03-01T06:30", time.Date(2024, 3, 1, 6, 30, 0, 0, time.UTC)},
		{"2024-03-01T06:30:15", time.Date(2024, 3, 1, 6, 30, 15, 0, time.UTC)},
		{"2024-03-01T08:00:00+02:00", time.Date(2024, 3, 1, 6, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		got, err := parseWhen(tt.raw)
		if err != nil {
			t.Errorf("parseWhen(%q): %v", tt.raw, err)
			continue
		}
		if !got.Equal(tt.want) {
			t.Errorf("parseWhen(%q) = %v, want %v", tt.raw, got, tt.want)
		}
	}

	if _, err := parseWhen("yesterday"); err == nil {
		t.Error("parseWhen(yesterday) = nil error")
	}
}

func TestPointTarget(t *testing.T) {
	if got := pointTarget(4.62, 50.72, "EPSG:4326"); got != "4.62,50.72 EPSG:4326" {
		t.Errorf("pointTarget = %q", got)
	}
}

func testApp(t *testing.T) *App {
	t.Helper()
	logger := log.New(io.Discard, "", 0)
	st, err := store.Open(filepath.Join(t.TempDir(), "openkmi.db"), logger)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return &App{Out: &bytes.Buffer{}, Logger: logger, Store: st}
}

func TestRunsCmd(t *testing.T) {
	app := testApp(t)
	if err := app.Store.Track("observations", "synop:synop_data", "6438", func() (int, error) {
		return 3, nil
	}); err != nil {
		t.Fatalf("Track: %v", err)
	}

	if err := (&RunsCmd{Limit: 5}).Run(app); err != nil {
		t.Fatalf("runs: %v", err)
	}
	out := app.Out.(*bytes.Buffer).String()
	if !strings.Contains(out, "synop:synop_data") || !strings.Contains(out, "ok") {
		t.Errorf("runs output = %q", out)
	}

	if err := (&RunsCmd{}).Run(&App{}); !errors.Is(err, errNoDatabase) {
		t.Errorf("runs without db = %v, want errNoDatabase", err)
	}
}

func TestWriteMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	promauto.With(reg).NewCounter(prometheus.CounterOpts{
		Name: "openkmi_test_total",
		Help: "Test counter.",
	}).Add(3)

	path := filepath.Join(t.TempDir(), "metrics.prom")
	if err := writeMetrics(path, reg); err != nil {
		t.Fatalf("writeMetrics: %v", err)
	}
	body, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read metrics: %v", err)
	}
	if !strings.Contains(string(body), "openkmi_test_total 3") {
		t.Errorf("metrics = %q", body)
	}
}
