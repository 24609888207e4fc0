package main

import (
	"context"
	"errors"
	"time"

	"github.com/lox/openkmi/internal/api"
	"github.com/lox/openkmi/internal/ingest"
	"github.com/lox/openkmi/pkg/kmi/forecast"
	"github.com/lox/openkmi/pkg/kmi/observations"
)

type WatchCmd struct {
	ServiceFlags `embed:""`

	Station       []string      `help:"Station code to poll. Repeatable."`
	Point         []string      `help:"Forecast point as LAYER@X,Y[@CRS]. Repeatable." sep:"none"`
	Every         time.Duration `help:"Observation polling interval." default:"1h"`
	ForecastEvery time.Duration `help:"Forecast polling interval." default:"6h"`
	Lookback      time.Duration `help:"How far back the first fetch for a station reaches." default:"24h"`
	Once          bool          `help:"Poll once and exit."`
}

func (c *WatchCmd) Run(ctx context.Context, app *App) error {
	if app.Store == nil {
		return errNoDatabase
	}
	if c.Every <= 0 || c.ForecastEvery <= 0 {
		return errors.New("polling intervals must be positive")
	}

	points := make([]ingest.Point, 0, len(c.Point))
	for _, raw := range c.Point {
		p, err := ingest.ParsePoint(raw)
		if err != nil {
			return err
		}
		points = append(points, p)
	}

	var obs ingest.ObservationSource
	if len(c.Station) > 0 {
		client, err := c.client(app)
		if err != nil {
			return err
		}
		obs = client
	}
	var fc ingest.ForecastSource
	if len(points) > 0 {
		client, done, err := forecastClient(app)
		if err != nil {
			return err
		}
		defer done()
		fc = client
	}

	s := ingest.NewScheduler(app.Store, obs, fc, c.Station, points, app.Logger)
	s.Lookback = c.Lookback
	s.ObsInterval = c.Every
	s.FcInterval = c.ForecastEvery

	if c.Once {
		return s.IngestOnce(ctx)
	}
	app.Logger.Printf("watching %d stations and %d forecast points", len(c.Station), len(points))
	s.Run(ctx)
	return nil
}

var (
	_ ingest.ObservationSource = (*observations.Client)(nil)
	_ ingest.ForecastSource    = (*forecast.Client)(nil)
)

type ServeCmd struct {
	Addr string `help:"Listen address." default:":8080"`
}

func (c *ServeCmd) Run(ctx context.Context, app *App) error {
	if app.Store == nil {
		return errNoDatabase
	}
	return api.NewServer(app.Store, c.Addr, app.Logger).Run(ctx)
}
