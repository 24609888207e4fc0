package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"

	"github.com/lox/openkmi/internal/httputil"
	"github.com/lox/openkmi/internal/store"
	"github.com/lox/openkmi/pkg/kmi"
)

type CLI struct {
	BaseURL string        `help:"Root of the open data services." default:"https://opendata.meteo.be"`
	DB      string        `help:"SQLite database for fetched tables and the fetch log. Empty disables persistence." type:"path"`
	Retries uint64        `help:"Retry failed requests this many times." default:"0"`
	Timeout time.Duration `help:"HTTP request timeout." default:"30s"`
	Breaker bool          `help:"Guard each service with a circuit breaker."`
	Metrics string        `help:"Write Prometheus metrics to this file on exit." type:"path"`
	Quiet   bool          `short:"q" help:"Only log errors."`

	Stations     StationsCmd     `cmd:"" help:"List observation stations."`
	Parameters   ParametersCmd   `cmd:"" help:"List observation parameters and their types."`
	Types        TypesCmd        `cmd:"" help:"List the feature types a service offers."`
	Observations ObservationsCmd `cmd:"" help:"Fetch observations for a station."`
	Layers       LayersCmd       `cmd:"" help:"List forecast layers."`
	Times        TimesCmd        `cmd:"" help:"List the forecast times of a layer."`
	Layer        LayerCmd        `cmd:"" help:"Describe a forecast layer."`
	Forecast     ForecastCmd     `cmd:"" help:"Fetch a point forecast."`
	History      HistoryCmd      `cmd:"" help:"Read previously fetched tables from the database."`
	Runs         RunsCmd         `cmd:"" help:"Show the fetch log."`
	Watch        WatchCmd        `cmd:"" help:"Poll stations and forecast points into the database."`
	Serve        ServeCmd        `cmd:"" help:"Serve stored tables, the fetch log and metrics over HTTP."`
}

// App carries the shared state every command runs with.
type App struct {
	Out    io.Writer
	Logger *log.Logger
	Store  *store.Store

	baseURL   string
	transport []kmi.Option
}

func main() {
	envFile := os.Getenv("OPENKMI_ENV_FILE")
	if envFile == "" {
		envFile = ".env"
	}
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("load %s: %v", envFile, err)
	}

	var cli CLI
	kctx := kong.Parse(&cli,
		kong.Name("openkmi"),
		kong.Description("Client for the RMI open data services: station observations and ALARO forecasts."),
		kong.UsageOnError(),
		kong.DefaultEnvars("OPENKMI"),
	)

	app, err := newApp(&cli)
	if err != nil {
		log.Fatalf("setup: %v", err)
	}
	if app.Store != nil {
		defer app.Store.Close()
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	kctx.BindTo(ctx, (*context.Context)(nil))

	runErr := kctx.Run(app)

	if cli.Metrics != "" {
		if err := writeMetrics(cli.Metrics, prometheus.DefaultGatherer); err != nil {
			log.Printf("write metrics: %v", err)
		}
	}
	kctx.FatalIfErrorf(runErr)
}

func newApp(cli *CLI) (*App, error) {
	logger := log.New(os.Stderr, "", log.LstdFlags)
	if cli.Quiet {
		logger = log.New(io.Discard, "", 0)
	}

	transport := []kmi.Option{
		kmi.WithHTTPClient(httputil.NewClient(cli.Timeout)),
		kmi.WithLogger(logger),
	}
	if cli.Retries > 0 {
		transport = append(transport, kmi.WithRetries(cli.Retries, 2*time.Minute))
	}
	if cli.Breaker {
		transport = append(transport, kmi.WithCircuitBreaker())
	}

	app := &App{
		Out:       os.Stdout,
		Logger:    logger,
		baseURL:   cli.BaseURL,
		transport: transport,
	}
	if cli.DB != "" {
		st, err := store.Open(cli.DB, logger)
		if err != nil {
			return nil, err
		}
		app.Store = st
	}
	return app, nil
}

func writeMetrics(path string, g prometheus.Gatherer) error {
	families, err := g.Gather()
	if err != nil {
		return fmt.Errorf("gather: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	enc := expfmt.NewEncoder(f, expfmt.NewFormat(expfmt.TypeTextPlain))
	for _, mf := range families {
		if err := enc.Encode(mf); err != nil {
			f.Close()
			return fmt.Errorf("encode %s: %w", mf.GetName(), err)
		}
	}
	return f.Close()
}
