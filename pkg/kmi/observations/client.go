// Package observations queries station observations from the RMI feature
// services: synoptic stations (synop) and automatic weather stations (AWS).
package observations

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/lox/openkmi/pkg/kmi"
	"github.com/lox/openkmi/pkg/kmi/wfs"
)

const (
	SynopPath         = "/service/synop/wfs"
	AWSPath           = "/service/aws/ows"
	SynopDataLayer    = "synop:synop_data"
	SynopStationLayer = "synop:synop_station"
)

// Frequency selects one of the AWS aggregation layers.
type Frequency string

const (
	Hourly     Frequency = "H"
	Daily      Frequency = "D"
	TenMinutes Frequency = "10T"
)

var awsLayers = map[Frequency]string{
	Hourly:     "aws:aws_1hour",
	Daily:      "aws:aws_1day",
	TenMinutes: "aws:aws_10min",
}

// ParseFrequency returns the AWS data layer for freq.
func ParseFrequency(freq string) (string, error) {
	layer, ok := awsLayers[Frequency(freq)]
	if !ok {
		return "", &kmi.ConfigurationError{
			Message: "Freq string should be any of H (hourly), D (daily) or 10T (10 minute)",
		}
	}
	return layer, nil
}

// Config describes where observations and the station catalog live.
// The catalog may come from a different service than the data; AWS has no
// station layer of its own and reads the synop one.
type Config struct {
	DataURL      string `validate:"required,url"`
	DataLayer    string `validate:"required"`
	StationURL   string `validate:"required,url"`
	StationLayer string `validate:"required"`
	Version      string `validate:"omitempty,oneof=1.0.0 1.1.0"`
}

// SynopConfig returns the synop configuration rooted at baseURL.
func SynopConfig(baseURL string) Config {
	baseURL = strings.TrimRight(baseURL, "/")
	return Config{
		DataURL:      baseURL + SynopPath,
		DataLayer:    SynopDataLayer,
		StationURL:   baseURL + SynopPath,
		StationLayer: SynopStationLayer,
		Version:      wfs.DefaultVersion,
	}
}

// AWSConfig returns the AWS configuration for freq rooted at baseURL.
func AWSConfig(baseURL, freq string) (Config, error) {
	layer, err := ParseFrequency(freq)
	if err != nil {
		return Config{}, err
	}
	baseURL = strings.TrimRight(baseURL, "/")
	return Config{
		DataURL:      baseURL + AWSPath,
		DataLayer:    layer,
		StationURL:   baseURL + SynopPath,
		StationLayer: SynopStationLayer,
		Version:      wfs.DefaultVersion,
	}, nil
}

var validate = validator.New()

// Client fetches station catalogs, schemas and observation tables.
// It is safe for concurrent use.
type Client struct {
	cfg      Config
	data     *wfs.Client
	stations *wfs.Client
	logger   *log.Logger

	mu      sync.Mutex
	catalog *Catalog
}

// New creates a client for cfg.
func New(cfg Config, opts ...kmi.Option) (*Client, error) {
	if err := validate.Struct(cfg); err != nil {
		return nil, configError(err)
	}

	dataReq := kmi.NewRequester(serviceName(cfg.DataLayer), opts...)
	stationReq := dataReq
	if cfg.StationURL != cfg.DataURL {
		stationReq = kmi.NewRequester(serviceName(cfg.StationLayer), opts...)
	}

	return &Client{
		cfg:      cfg,
		data:     wfs.New(cfg.DataURL, cfg.Version, dataReq),
		stations: wfs.New(cfg.StationURL, cfg.Version, stationReq),
		logger:   dataReq.Logger(),
	}, nil
}

// NewSynop creates a client for the production synop service.
func NewSynop(opts ...kmi.Option) *Client {
	c, err := New(SynopConfig(kmi.BaseURL), opts...)
	if err != nil {
		panic(err)
	}
	return c
}

// NewAWS creates a client for the production AWS service at the given
// frequency: "H", "D" or "10T".
func NewAWS(freq string, opts ...kmi.Option) (*Client, error) {
	cfg, err := AWSConfig(kmi.BaseURL, freq)
	if err != nil {
		return nil, err
	}
	return New(cfg, opts...)
}

// Config returns the client's configuration.
func (c *Client) Config() Config {
	return c.cfg
}

// ListFeatureTypes lists the feature types offered by the data service.
func (c *Client) ListFeatureTypes(ctx context.Context) ([]string, error) {
	names, err := c.data.FeatureTypes(ctx)
	if err != nil {
		return nil, fmt.Errorf("list feature types: %w", err)
	}
	return names, nil
}

func configError(err error) error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return &kmi.ConfigurationError{
			Field:   fe.Field(),
			Message: fmt.Sprintf("failed %q validation (value %q)", fe.Tag(), fmt.Sprint(fe.Value())),
		}
	}
	return &kmi.ConfigurationError{Message: err.Error()}
}

// serviceName labels metrics with the layer's namespace, e.g. "synop".
func serviceName(layer string) string {
	if ns, _, ok := strings.Cut(layer, ":"); ok && ns != "" {
		return ns
	}
	return "wfs"
}
