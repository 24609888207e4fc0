// Package forecast reads ALARO model forecasts for a single point from the
// RMI map service.
package forecast

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/lox/openkmi/pkg/kmi"
	"github.com/lox/openkmi/pkg/kmi/reproject"
	"github.com/lox/openkmi/pkg/kmi/wms"
)

const (
	AlaroPath = "/service/alaro/ows"
	// DefaultBoxSize is the side of the query box in EPSG:3857 metres. It
	// doubles as the raster size in pixels.
	DefaultBoxSize = 4000
)

type settings struct {
	BaseURL   string `validate:"required,url"`
	Version   string `validate:"oneof=1.1.1 1.3.0"`
	BoxWidth  int    `validate:"gt=0"`
	BoxHeight int    `validate:"gt=0"`

	transformer reproject.Transformer
	skipMissing bool
	transport   []kmi.Option
}

// Option configures a Client.
type Option func(*settings)

// WithBaseURL points the client at another deployment of the services.
func WithBaseURL(u string) Option {
	return func(s *settings) { s.BaseURL = strings.TrimRight(u, "/") }
}

// WithVersion selects the WMS protocol version.
func WithVersion(v string) Option {
	return func(s *settings) { s.Version = v }
}

// WithBoxSize sets the query box in EPSG:3857 metres.
func WithBoxSize(width, height int) Option {
	return func(s *settings) {
		s.BoxWidth = width
		s.BoxHeight = height
	}
}

// WithTransformer sets how points outside EPSG:3857 are reprojected.
// Without one, Fetch only accepts EPSG:3857 input.
func WithTransformer(t reproject.Transformer) Option {
	return func(s *settings) { s.transformer = t }
}

// WithTransport passes transport options (retries, logger, HTTP client).
func WithTransport(opts ...kmi.Option) Option {
	return func(s *settings) { s.transport = append(s.transport, opts...) }
}

// WithSkipMissing records a null value for forecast times the service has
// no feature for, instead of failing the whole fetch.
func WithSkipMissing() Option {
	return func(s *settings) { s.skipMissing = true }
}

var validate = validator.New()

// Client queries one WMS endpoint. Capabilities are fetched once and
// cached; it is safe for concurrent use.
type Client struct {
	wms         *wms.Client
	transformer reproject.Transformer
	boxWidth    int
	boxHeight   int
	skipMissing bool
	logger      *log.Logger

	mu   sync.Mutex
	caps *wms.Capabilities
}

// New creates a forecast client for the ALARO service.
func New(opts ...Option) (*Client, error) {
	s := settings{
		BaseURL:   kmi.BaseURL,
		Version:   wms.DefaultVersion,
		BoxWidth:  DefaultBoxSize,
		BoxHeight: DefaultBoxSize,
	}
	for _, opt := range opts {
		opt(&s)
	}
	if err := validate.Struct(s); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return nil, &kmi.ConfigurationError{
				Field:   verrs[0].Field(),
				Message: fmt.Sprintf("failed %q validation", verrs[0].Tag()),
			}
		}
		return nil, &kmi.ConfigurationError{Message: err.Error()}
	}

	req := kmi.NewRequester("alaro", s.transport...)
	return &Client{
		wms:         wms.New(s.BaseURL+AlaroPath, s.Version, req),
		transformer: s.transformer,
		boxWidth:    s.BoxWidth,
		boxHeight:   s.BoxHeight,
		skipMissing: s.skipMissing,
		logger:      req.Logger(),
	}, nil
}

// Refresh re-reads the capabilities document.
func (c *Client) Refresh(ctx context.Context) (*wms.Capabilities, error) {
	caps, err := c.wms.Capabilities(ctx)
	if err != nil {
		return nil, fmt.Errorf("load capabilities: %w", err)
	}
	c.mu.Lock()
	c.caps = caps
	c.mu.Unlock()
	c.logger.Printf("forecast: loaded %d layers", len(caps.Layers))
	return caps, nil
}

func (c *Client) capabilities(ctx context.Context) (*wms.Capabilities, error) {
	c.mu.Lock()
	caps := c.caps
	c.mu.Unlock()
	if caps != nil {
		return caps, nil
	}
	return c.Refresh(ctx)
}

func (c *Client) layer(ctx context.Context, name string) (wms.Layer, error) {
	caps, err := c.capabilities(ctx)
	if err != nil {
		return wms.Layer{}, err
	}
	l, ok := caps.Layer(name)
	if !ok {
		return wms.Layer{}, &kmi.ValidationError{
			Field:   "layer",
			Message: "layer not valid. Layer should be any of " + strings.Join(caps.Names(), ","),
		}
	}
	return l, nil
}

// ListLayers returns the names of all layers.
func (c *Client) ListLayers(ctx context.Context) ([]string, error) {
	caps, err := c.capabilities(ctx)
	if err != nil {
		return nil, err
	}
	return caps.Names(), nil
}

// ListForecastTimes returns every instant the layer has a forecast for.
func (c *Client) ListForecastTimes(ctx context.Context, layer string) ([]time.Time, error) {
	l, err := c.layer(ctx, layer)
	if err != nil {
		return nil, err
	}
	if l.TimeExtent == "" {
		return nil, &kmi.DataError{Layer: layer, Message: "layer has no time dimension"}
	}
	times, err := ExpandTimes(l.TimeExtent)
	if err != nil {
		return nil, &kmi.DataError{Layer: layer, Message: err.Error()}
	}
	return times, nil
}

// LayerInfo returns the layer abstract.
func (c *Client) LayerInfo(ctx context.Context, layer string) (string, error) {
	l, err := c.layer(ctx, layer)
	if err != nil {
		return "", err
	}
	return l.Abstract, nil
}

// BoundingBox returns the first bounding box the layer declares.
func (c *Client) BoundingBox(ctx context.Context, layer string) (wms.BBox, error) {
	l, err := c.layer(ctx, layer)
	if err != nil {
		return wms.BBox{}, err
	}
	if l.BBox == nil {
		return wms.BBox{}, &kmi.DataError{Layer: layer, Message: "layer has no bounding box"}
	}
	return *l.BBox, nil
}

// CRSOptions lists the reference systems the layer can be queried in.
func (c *Client) CRSOptions(ctx context.Context, layer string) ([]string, error) {
	l, err := c.layer(ctx, layer)
	if err != nil {
		return nil, err
	}
	return l.CRS, nil
}
