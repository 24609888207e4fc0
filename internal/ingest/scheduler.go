// Package ingest polls the observation and forecast services on a schedule
// and persists what it fetches.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/lox/openkmi/internal/store"
	"github.com/lox/openkmi/pkg/kmi/observations"
	"github.com/lox/openkmi/pkg/kmi/table"
)

// ObservationSource is the part of observations.Client the scheduler uses.
type ObservationSource interface {
	Config() observations.Config
	FetchObservations(ctx context.Context, q observations.Query) (*table.Table, error)
}

// ForecastSource is the part of forecast.Client the scheduler uses.
type ForecastSource interface {
	Fetch(ctx context.Context, layer string, x, y float64, crs string) (*table.Table, error)
}

// Point is a forecast location to poll.
type Point struct {
	Layer string
	X, Y  float64
	CRS   string
}

func (p Point) target() string {
	return strconv.FormatFloat(p.X, 'f', -1, 64) + "," + strconv.FormatFloat(p.Y, 'f', -1, 64) + " " + p.CRS
}

type Scheduler struct {
	store    *store.Store
	obs      ObservationSource
	forecast ForecastSource
	stations []string
	points   []Point
	logger   *log.Logger
	now      func() time.Time

	// Lookback bounds the first fetch for a station with nothing stored.
	Lookback    time.Duration
	ObsInterval time.Duration
	FcInterval  time.Duration
}

// NewScheduler creates a scheduler. Either source may be nil to skip that
// kind of polling.
func NewScheduler(st *store.Store, obs ObservationSource, fc ForecastSource, stations []string, points []Point, logger *log.Logger) *Scheduler {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Scheduler{
		store:       st,
		obs:         obs,
		forecast:    fc,
		stations:    stations,
		points:      points,
		logger:      logger,
		now:         time.Now,
		Lookback:    24 * time.Hour,
		ObsInterval: time.Hour,
		FcInterval:  6 * time.Hour,
	}
}

// Run ingests once, then on every tick until ctx is done.
func (s *Scheduler) Run(ctx context.Context) {
	s.ingestObservations(ctx)
	s.ingestForecasts(ctx)

	obsTicker := time.NewTicker(s.ObsInterval)
	fcTicker := time.NewTicker(s.FcInterval)
	defer obsTicker.Stop()
	defer fcTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Println("scheduler: shutting down")
			return
		case <-obsTicker.C:
			s.ingestObservations(ctx)
		case <-fcTicker.C:
			s.ingestForecasts(ctx)
		}
	}
}

// IngestOnce polls every station and point once and returns the joined
// errors of the fetches that failed.
func (s *Scheduler) IngestOnce(ctx context.Context) error {
	return errors.Join(s.ingestObservations(ctx), s.ingestForecasts(ctx))
}

func (s *Scheduler) ingestObservations(ctx context.Context) error {
	if s.obs == nil || len(s.stations) == 0 {
		return nil
	}
	layer := s.obs.Config().DataLayer
	s.logger.Printf("scheduler: ingesting %s for %d stations", layer, len(s.stations))

	var errs []error
	for _, code := range s.stations {
		if err := s.ingestStation(ctx, layer, code); err != nil {
			s.logger.Printf("scheduler: station %s: %v", code, err)
			errs = append(errs, fmt.Errorf("station %s: %w", code, err))
		}
	}
	return errors.Join(errs...)
}

func (s *Scheduler) ingestStation(ctx context.Context, layer, code string) error {
	start := s.now().Add(-s.Lookback)
	if latest, ok, err := s.store.LatestObservation(layer, code); err != nil {
		return fmt.Errorf("latest observation: %w", err)
	} else if ok {
		// Refetch the newest row; late corrections overwrite it.
		start = latest
	}

	return s.store.Track("observations", layer, code, func() (int, error) {
		t, err := s.obs.FetchObservations(ctx, observations.Query{StationCode: code, Start: start})
		if err != nil {
			return 0, err
		}
		n, err := s.store.SaveObservations(layer, code, t)
		if err != nil {
			return t.Len(), fmt.Errorf("save: %w", err)
		}
		s.logger.Printf("scheduler: stored %d rows (%d cells) for station %s", t.Len(), n, code)
		return t.Len(), nil
	})
}

func (s *Scheduler) ingestForecasts(ctx context.Context) error {
	if s.forecast == nil || len(s.points) == 0 {
		return nil
	}
	s.logger.Printf("scheduler: ingesting forecasts for %d points", len(s.points))

	var errs []error
	for _, p := range s.points {
		err := s.store.Track("forecast", p.Layer, p.target(), func() (int, error) {
			t, err := s.forecast.Fetch(ctx, p.Layer, p.X, p.Y, p.CRS)
			if err != nil {
				return 0, err
			}
			if _, err := s.store.SaveForecast(p.Layer, p.X, p.Y, p.CRS, t); err != nil {
				return t.Len(), fmt.Errorf("save: %w", err)
			}
			return t.Len(), nil
		})
		if err != nil {
			s.logger.Printf("scheduler: forecast %s at %s: %v", p.Layer, p.target(), err)
			errs = append(errs, fmt.Errorf("forecast %s at %s: %w", p.Layer, p.target(), err))
		}
	}
	return errors.Join(errs...)
}

// ParsePoint parses LAYER@X,Y or LAYER@X,Y@CRS. The CRS defaults to
// EPSG:4326.
func ParsePoint(raw string) (Point, error) {
	parts := strings.Split(raw, "@")
	if len(parts) < 2 || len(parts) > 3 || parts[0] == "" {
		return Point{}, fmt.Errorf("invalid point %q: expected LAYER@X,Y[@CRS]", raw)
	}
	xs, ys, ok := strings.Cut(parts[1], ",")
	if !ok {
		return Point{}, fmt.Errorf("invalid point %q: expected X,Y", raw)
	}
	x, err := strconv.ParseFloat(strings.TrimSpace(xs), 64)
	if err != nil {
		return Point{}, fmt.Errorf("invalid point %q: x: %w", raw, err)
	}
	y, err := strconv.ParseFloat(strings.TrimSpace(ys), 64)
	if err != nil {
		return Point{}, fmt.Errorf("invalid point %q: y: %w", raw, err)
	}
	p := Point{Layer: parts[0], X: x, Y: y, CRS: "EPSG:4326"}
	if len(parts) == 3 && parts[2] != "" {
		p.CRS = parts[2]
	}
	return p, nil
}
