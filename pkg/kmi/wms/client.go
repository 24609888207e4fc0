// Package wms is a minimal WMS client: capabilities and point queries via
// GetFeatureInfo. Map rendering is not supported.
package wms

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/lox/openkmi/internal/httputil"
	"github.com/lox/openkmi/pkg/kmi/ows"
)

const (
	DefaultVersion = "1.3.0"
	InfoFormatJSON = "application/json"
	// TimeLayout is the layout of TIME values sent to the server.
	TimeLayout = "2006-01-02T15:04:05Z"
)

// Client talks to one WMS endpoint.
type Client struct {
	endpoint string
	version  string
	req      *httputil.Requester
}

// New creates a client for endpoint. An empty version means DefaultVersion.
func New(endpoint, version string, req *httputil.Requester) *Client {
	if version == "" {
		version = DefaultVersion
	}
	return &Client{endpoint: endpoint, version: version, req: req}
}

func (c *Client) Endpoint() string { return c.endpoint }
func (c *Client) Version() string  { return c.version }

// Capabilities fetches and flattens the layer tree.
func (c *Client) Capabilities(ctx context.Context) (*Capabilities, error) {
	body, err := c.get(ctx, "GetCapabilities", nil)
	if err != nil {
		return nil, err
	}
	return ParseCapabilities(body)
}

// FeatureInfoQuery describes a GetFeatureInfo request for the pixel (I, J)
// of a Width x Height map covering BBox.
type FeatureInfoQuery struct {
	Layers []string
	// QueryLayers defaults to Layers.
	QueryLayers  []string
	Styles       []string
	BBox         BBox
	Width        int
	Height       int
	I            int
	J            int
	Format       string
	InfoFormat   string
	Time         string
	FeatureCount int
}

// GetFeatureInfo runs q and returns the raw response body.
func (c *Client) GetFeatureInfo(ctx context.Context, q FeatureInfoQuery) ([]byte, error) {
	if len(q.Layers) == 0 {
		return nil, fmt.Errorf("get feature info: at least one layer required")
	}
	if q.Width <= 0 || q.Height <= 0 {
		return nil, fmt.Errorf("get feature info: map size %dx%d invalid", q.Width, q.Height)
	}
	queryLayers := q.QueryLayers
	if len(queryLayers) == 0 {
		queryLayers = q.Layers
	}
	format := q.Format
	if format == "" {
		format = "image/png"
	}
	infoFormat := q.InfoFormat
	if infoFormat == "" {
		infoFormat = InfoFormatJSON
	}
	featureCount := q.FeatureCount
	if featureCount <= 0 {
		featureCount = 1
	}

	params := url.Values{}
	params.Set("LAYERS", strings.Join(q.Layers, ","))
	params.Set("QUERY_LAYERS", strings.Join(queryLayers, ","))
	params.Set("STYLES", strings.Join(q.Styles, ","))
	params.Set("BBOX", formatBBox(q.BBox))
	params.Set("WIDTH", strconv.Itoa(q.Width))
	params.Set("HEIGHT", strconv.Itoa(q.Height))
	params.Set("FORMAT", format)
	params.Set("INFO_FORMAT", infoFormat)
	params.Set("FEATURE_COUNT", strconv.Itoa(featureCount))
	if q.Time != "" {
		params.Set("TIME", q.Time)
	}

	// 1.3.0 renamed SRS to CRS and X/Y to I/J.
	if c.version == "1.3.0" {
		params.Set("CRS", q.BBox.CRS)
		params.Set("I", strconv.Itoa(q.I))
		params.Set("J", strconv.Itoa(q.J))
	} else {
		params.Set("SRS", q.BBox.CRS)
		params.Set("X", strconv.Itoa(q.I))
		params.Set("Y", strconv.Itoa(q.J))
	}

	return c.get(ctx, "GetFeatureInfo", params)
}

func (c *Client) get(ctx context.Context, request string, params url.Values) ([]byte, error) {
	if params == nil {
		params = url.Values{}
	}
	params.Set("SERVICE", "WMS")
	params.Set("VERSION", c.version)
	params.Set("REQUEST", request)

	body, err := c.req.Get(ctx, c.endpoint, params)
	if err != nil {
		return nil, fmt.Errorf("wms %s: %w", request, ows.Translate(err))
	}
	if err := ows.CheckException(body); err != nil {
		return nil, fmt.Errorf("wms %s: %w", request, err)
	}
	return body, nil
}

func formatBBox(b BBox) string {
	parts := []float64{b.MinX, b.MinY, b.MaxX, b.MaxY}
	out := make([]string, len(parts))
	for i, v := range parts {
		out[i] = strconv.FormatFloat(v, 'f', -1, 64)
	}
	return strings.Join(out, ",")
}
