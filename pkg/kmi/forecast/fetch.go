package forecast

import (
	"context"
	"fmt"
	"math"

	"github.com/tidwall/gjson"

	"github.com/lox/openkmi/internal/metrics"
	"github.com/lox/openkmi/pkg/kmi"
	"github.com/lox/openkmi/pkg/kmi/reproject"
	"github.com/lox/openkmi/pkg/kmi/table"
	"github.com/lox/openkmi/pkg/kmi/wms"
)

// DefaultCRS is assumed when Fetch is given no source CRS.
const DefaultCRS = "EPSG:4326"

// Fetch returns the layer's value at (x, y) for every forecast time. The
// point is given in sourceCRS, e.g. "4326", "EPSG:31370" or "3857".
func (c *Client) Fetch(ctx context.Context, layer string, x, y float64, sourceCRS string) (*table.Table, error) {
	times, err := c.ListForecastTimes(ctx, layer)
	if err != nil {
		return nil, err
	}

	mx, my, err := c.toWebMercator(x, y, sourceCRS)
	if err != nil {
		return nil, err
	}
	bbox := c.box(mx, my)

	t := table.New(layer)
	missing := 0
	for _, at := range times {
		body, err := c.wms.GetFeatureInfo(ctx, wms.FeatureInfoQuery{
			Layers:     []string{layer},
			BBox:       bbox,
			Width:      c.boxWidth,
			Height:     c.boxHeight,
			InfoFormat: wms.InfoFormatJSON,
			Time:       at.UTC().Format(wms.TimeLayout),
		})
		if err != nil {
			return nil, fmt.Errorf("fetch %s at %s: %w", layer, at.Format(wms.TimeLayout), err)
		}

		v, ok, err := firstValue(body)
		if err != nil {
			return nil, &kmi.DataError{Layer: layer, Time: at, Message: err.Error()}
		}
		if !ok {
			if !c.skipMissing {
				return nil, &kmi.DataError{Layer: layer, Time: at, Message: "response has no feature"}
			}
			missing++
			v = table.Null()
		}
		if err := t.Append(at, v); err != nil {
			return nil, err
		}
	}

	metrics.TableRowsTotal.WithLabelValues(layer).Add(float64(t.Len()))
	c.logger.Printf("forecast: %s at (%.0f, %.0f) %s: %d times, %d missing", layer, mx, my, reproject.WebMercator, t.Len(), missing)
	return t, nil
}

func (c *Client) toWebMercator(x, y float64, sourceCRS string) (float64, float64, error) {
	if sourceCRS == "" {
		sourceCRS = DefaultCRS
	}
	if reproject.Same(sourceCRS, reproject.WebMercator) {
		return x, y, nil
	}
	if c.transformer == nil {
		return 0, 0, &kmi.ConfigurationError{
			Field:   "transformer",
			Message: fmt.Sprintf("no transformer configured to reproject from %s", reproject.Normalize(sourceCRS)),
		}
	}
	mx, my, err := c.transformer.Transform(reproject.Normalize(sourceCRS), reproject.WebMercator, x, y)
	if err != nil {
		return 0, 0, fmt.Errorf("reproject point: %w", err)
	}
	return mx, my, nil
}

// box centres the query box on the point. Corners are rounded half to
// even.
func (c *Client) box(x, y float64) wms.BBox {
	w, h := float64(c.boxWidth), float64(c.boxHeight)
	return wms.BBox{
		MinX: math.RoundToEven(x - w/2),
		MinY: math.RoundToEven(y - h/2),
		MaxX: math.RoundToEven(x + w/2),
		MaxY: math.RoundToEven(y + h/2),
		CRS:  reproject.WebMercator,
	}
}

// firstValue returns the first property of the first feature in a
// GeoJSON feature collection, in document order.
func firstValue(body []byte) (table.Value, bool, error) {
	if !gjson.ValidBytes(body) {
		return table.Value{}, false, fmt.Errorf("response is not valid JSON")
	}
	props := gjson.GetBytes(body, "features.0.properties")
	if !props.IsObject() {
		return table.Value{}, false, nil
	}

	var (
		first gjson.Result
		found bool
	)
	props.ForEach(func(_, v gjson.Result) bool {
		first, found = v, true
		return false
	})
	if !found {
		return table.Value{}, false, nil
	}

	switch first.Type {
	case gjson.Null:
		return table.Null(), true, nil
	case gjson.Number:
		return table.Number(first.Num), true, nil
	case gjson.String:
		return table.Parse(first.Str), true, nil
	case gjson.True:
		return table.Number(1), true, nil
	case gjson.False:
		return table.Number(0), true, nil
	default:
		return table.Text(first.Raw), true, nil
	}
}
