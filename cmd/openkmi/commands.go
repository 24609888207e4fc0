package main

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/lox/openkmi/pkg/kmi/fes"
	"github.com/lox/openkmi/pkg/kmi/forecast"
	"github.com/lox/openkmi/pkg/kmi/observations"
	"github.com/lox/openkmi/pkg/kmi/reproject/proj"
	"github.com/lox/openkmi/pkg/kmi/table"
)

// ServiceFlags selects between the synop and AWS observation services.
type ServiceFlags struct {
	AWS  bool   `help:"Use the automatic weather station service instead of synop."`
	Freq string `help:"AWS frequency: H (hourly), D (daily) or 10T (10 minute)." default:"H"`
}

func (f ServiceFlags) client(app *App) (*observations.Client, error) {
	cfg := observations.SynopConfig(app.baseURL)
	if f.AWS {
		var err error
		if cfg, err = observations.AWSConfig(app.baseURL, f.Freq); err != nil {
			return nil, err
		}
	}
	return observations.New(cfg, app.transport...)
}

type StationsCmd struct {
	ServiceFlags `embed:""`
}

func (c *StationsCmd) Run(ctx context.Context, app *App) error {
	client, err := c.client(app)
	if err != nil {
		return err
	}
	catalog, err := client.ListStations(ctx)
	if err != nil {
		return err
	}
	return catalog.WriteCSV(app.Out)
}

type ParametersCmd struct {
	ServiceFlags `embed:""`
}

func (c *ParametersCmd) Run(ctx context.Context, app *App) error {
	client, err := c.client(app)
	if err != nil {
		return err
	}
	schema, err := client.ListParameters(ctx)
	if err != nil {
		return err
	}
	w := csv.NewWriter(app.Out)
	w.Write([]string{"name", "type"})
	for _, p := range schema {
		w.Write([]string{p.Name, p.Type})
	}
	w.Flush()
	return w.Error()
}

type TypesCmd struct {
	ServiceFlags `embed:""`
}

func (c *TypesCmd) Run(ctx context.Context, app *App) error {
	client, err := c.client(app)
	if err != nil {
		return err
	}
	names, err := client.ListFeatureTypes(ctx)
	if err != nil {
		return err
	}
	for _, n := range names {
		fmt.Fprintln(app.Out, n)
	}
	return nil
}

type ObservationsCmd struct {
	ServiceFlags `embed:""`

	Code  string   `arg:"" help:"Station code."`
	Start string   `help:"Inclusive start, a date or RFC 3339 time."`
	End   string   `help:"Exclusive end, a date or RFC 3339 time."`
	Param []string `help:"Only return these parameters."`
	Where []string `help:"Extra predicate: name=value, name>=value or name<value. Repeatable." sep:"none"`
}

func (c *ObservationsCmd) Run(ctx context.Context, app *App) error {
	q := observations.Query{StationCode: c.Code, Parameters: c.Param}
	var err error
	if q.Start, err = parseWhen(c.Start); err != nil {
		return fmt.Errorf("--start: %w", err)
	}
	if q.End, err = parseWhen(c.End); err != nil {
		return fmt.Errorf("--end: %w", err)
	}
	if q.Filter, err = parseWhere(c.Where); err != nil {
		return err
	}

	client, err := c.client(app)
	if err != nil {
		return err
	}
	layer := client.Config().DataLayer

	var result *table.Table
	err = app.Store.Track("observations", layer, c.Code, func() (int, error) {
		t, err := client.FetchObservations(ctx, q)
		if err != nil {
			return 0, err
		}
		result = t
		if app.Store != nil {
			if _, err := app.Store.SaveObservations(layer, c.Code, t); err != nil {
				return t.Len(), fmt.Errorf("save observations: %w", err)
			}
		}
		return t.Len(), nil
	})
	if err != nil {
		return err
	}
	return result.WriteCSV(app.Out)
}

// forecastClient builds a forecast client with a PROJ transformer. The
// returned close func releases the transformer.
func forecastClient(app *App, opts ...forecast.Option) (*forecast.Client, func(), error) {
	tr := proj.New()
	opts = append([]forecast.Option{
		forecast.WithBaseURL(app.baseURL),
		forecast.WithTransport(app.transport...),
		forecast.WithTransformer(tr),
	}, opts...)
	client, err := forecast.New(opts...)
	if err != nil {
		tr.Close()
		return nil, nil, err
	}
	return client, tr.Close, nil
}

type LayersCmd struct{}

func (c *LayersCmd) Run(ctx context.Context, app *App) error {
	client, done, err := forecastClient(app)
	if err != nil {
		return err
	}
	defer done()
	names, err := client.ListLayers(ctx)
	if err != nil {
		return err
	}
	for _, n := range names {
		fmt.Fprintln(app.Out, n)
	}
	return nil
}

type TimesCmd struct {
	Layer string `arg:"" help:"Forecast layer."`
}

func (c *TimesCmd) Run(ctx context.Context, app *App) error {
	client, done, err := forecastClient(app)
	if err != nil {
		return err
	}
	defer done()
	times, err := client.ListForecastTimes(ctx, c.Layer)
	if err != nil {
		return err
	}
	for _, t := range times {
		fmt.Fprintln(app.Out, t.Format(time.RFC3339))
	}
	return nil
}

type LayerCmd struct {
	Layer string `arg:"" help:"Forecast layer."`
}

func (c *LayerCmd) Run(ctx context.Context, app *App) error {
	client, done, err := forecastClient(app)
	if err != nil {
		return err
	}
	defer done()

	info, err := client.LayerInfo(ctx, c.Layer)
	if err != nil {
		return err
	}
	bbox, err := client.BoundingBox(ctx, c.Layer)
	if err != nil {
		return err
	}
	crs, err := client.CRSOptions(ctx, c.Layer)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(app.Out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "name\t%s\n", c.Layer)
	fmt.Fprintf(w, "info\t%s\n", info)
	fmt.Fprintf(w, "bbox\t%g,%g,%g,%g (%s)\n", bbox.MinX, bbox.MinY, bbox.MaxX, bbox.MaxY, bbox.CRS)
	fmt.Fprintf(w, "crs\t%s\n", strings.Join(crs, ", "))
	return w.Flush()
}

type ForecastCmd struct {
	Layer       string  `arg:"" help:"Forecast layer."`
	X           float64 `arg:"" help:"X coordinate (longitude for EPSG:4326)."`
	Y           float64 `arg:"" help:"Y coordinate (latitude for EPSG:4326)."`
	CRS         string  `help:"CRS of the point." default:"EPSG:4326"`
	Box         int     `help:"Query box size in EPSG:3857 metres." default:"4000"`
	SkipMissing bool    `help:"Record null for times without a feature instead of failing."`
}

func (c *ForecastCmd) Run(ctx context.Context, app *App) error {
	opts := []forecast.Option{forecast.WithBoxSize(c.Box, c.Box)}
	if c.SkipMissing {
		opts = append(opts, forecast.WithSkipMissing())
	}
	client, done, err := forecastClient(app, opts...)
	if err != nil {
		return err
	}
	defer done()

	var result *table.Table
	err = app.Store.Track("forecast", c.Layer, pointTarget(c.X, c.Y, c.CRS), func() (int, error) {
		t, err := client.Fetch(ctx, c.Layer, c.X, c.Y, c.CRS)
		if err != nil {
			return 0, err
		}
		result = t
		if app.Store != nil {
			if _, err := app.Store.SaveForecast(c.Layer, c.X, c.Y, c.CRS, t); err != nil {
				return t.Len(), fmt.Errorf("save forecast: %w", err)
			}
		}
		return t.Len(), nil
	})
	if err != nil {
		return err
	}
	return result.WriteCSV(app.Out)
}

func pointTarget(x, y float64, crs string) string {
	return strconv.FormatFloat(x, 'f', -1, 64) + "," + strconv.FormatFloat(y, 'f', -1, 64) + " " + crs
}

type HistoryCmd struct {
	Observations HistoryObservationsCmd `cmd:"" help:"Stored observations for a station."`
	Forecast     HistoryForecastCmd     `cmd:"" help:"Stored forecast for a point."`
}

type HistoryObservationsCmd struct {
	ServiceFlags `embed:""`

	Code  string `arg:"" help:"Station code."`
	Start string `help:"Inclusive start, a date or RFC 3339 time."`
	End   string `help:"Exclusive end, a date or RFC 3339 time."`
}

func (c *HistoryObservationsCmd) Run(app *App) error {
	if app.Store == nil {
		return errNoDatabase
	}
	from, err := parseWhen(c.Start)
	if err != nil {
		return fmt.Errorf("--start: %w", err)
	}
	to, err := parseWhen(c.End)
	if err != nil {
		return fmt.Errorf("--end: %w", err)
	}
	layer := observations.SynopDataLayer
	if c.AWS {
		if layer, err = observations.ParseFrequency(c.Freq); err != nil {
			return err
		}
	}
	t, err := app.Store.LoadObservations(layer, c.Code, from, to)
	if err != nil {
		return err
	}
	return t.WriteCSV(app.Out)
}

type HistoryForecastCmd struct {
	Layer string  `arg:"" help:"Forecast layer."`
	X     float64 `arg:""`
	Y     float64 `arg:""`
	CRS   string  `help:"CRS the point was fetched in." default:"EPSG:4326"`
}

func (c *HistoryForecastCmd) Run(app *App) error {
	if app.Store == nil {
		return errNoDatabase
	}
	t, err := app.Store.LoadForecast(c.Layer, c.X, c.Y, c.CRS)
	if err != nil {
		return err
	}
	return t.WriteCSV(app.Out)
}

type RunsCmd struct {
	Limit  int `help:"Number of runs to show." default:"20"`
	Health int `help:"Summarise the last N days instead of listing runs."`
}

func (c *RunsCmd) Run(app *App) error {
	if app.Store == nil {
		return errNoDatabase
	}
	w := tabwriter.NewWriter(app.Out, 0, 4, 2, ' ', 0)

	if c.Health > 0 {
		summary, err := app.Store.FetchHealth(c.Health)
		if err != nil {
			return err
		}
		fmt.Fprintln(w, "DATE\tKIND\tLAYER\tRUNS\tOK\tFAILED\tROWS")
		for _, h := range summary {
			fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%d\t%d\n",
				h.Date, h.Kind, h.Layer, h.TotalRuns, h.SuccessRuns, h.FailedRuns, h.TotalRows)
		}
		return w.Flush()
	}

	runs, err := app.Store.RecentFetchRuns(c.Limit)
	if err != nil {
		return err
	}
	fmt.Fprintln(w, "STARTED\tKIND\tLAYER\tTARGET\tROWS\tSTATUS")
	for _, r := range runs {
		status := "ok"
		switch {
		case r.FinishedAt == nil:
			status = "running"
		case !r.Success:
			status = "error: " + r.ErrorMessage.String
		}
		rows := "-"
		if r.Rows.Valid {
			rows = strconv.FormatInt(r.Rows.Int64, 10)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			r.StartedAt.Format(time.RFC3339), r.Kind, r.Layer, r.Target, rows, status)
	}
	return w.Flush()
}

var errNoDatabase = errors.New("no database configured, set --db or OPENKMI_DB")

// parseWhere turns name=value, name>=value and name<value expressions into
// a filter argument.
func parseWhere(exprs []string) (fes.Arg, error) {
	if len(exprs) == 0 {
		return fes.None(), nil
	}
	filters := make([]fes.Filter, 0, len(exprs))
	for _, expr := range exprs {
		f, err := parsePredicate(expr)
		if err != nil {
			return fes.Arg{}, err
		}
		filters = append(filters, f)
	}
	if len(filters) == 1 {
		return fes.Single(filters[0]), nil
	}
	return fes.List(filters...), nil
}

func parsePredicate(expr string) (fes.Filter, error) {
	if name, value, ok := strings.Cut(expr, ">="); ok {
		return predicate(fes.GreaterOrEqual, expr, name, value)
	}
	if name, value, ok := strings.Cut(expr, "<"); ok {
		return predicate(fes.Less, expr, name, value)
	}
	if name, value, ok := strings.Cut(expr, "="); ok {
		return predicate(fes.Equal, expr, name, value)
	}
	return nil, fmt.Errorf("invalid --where %q: expected name=value, name>=value or name<value", expr)
}

func predicate(build func(property, literal string) fes.Filter, expr, name, value string) (fes.Filter, error) {
	name, value = strings.TrimSpace(name), strings.TrimSpace(value)
	if name == "" || value == "" {
		return nil, fmt.Errorf("invalid --where %q: empty name or value", expr)
	}
	return build(name, value), nil
}

var whenLayouts = []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02T15:04", "2006-01-02"}

// parseWhen parses a command line time. Times without a zone are UTC; an
// empty string is the zero time.
func parseWhen(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	for _, layout := range whenLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised time %q", raw)
}
