package observations

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/lox/openkmi/internal/metrics"
	"github.com/lox/openkmi/pkg/kmi"
	"github.com/lox/openkmi/pkg/kmi/fes"
	"github.com/lox/openkmi/pkg/kmi/table"
	"github.com/lox/openkmi/pkg/kmi/wfs"
)

// LiteralTimeLayout formats Start and End in filter literals.
const LiteralTimeLayout = "2006-01-02T15:04:05Z"

// Columns the services add to every record that are not observations.
var dropColumns = []string{"FID", "the_geom", "code"}

// Query selects observations for one station.
type Query struct {
	StationCode string
	// Start is inclusive, End exclusive. Zero means unbounded.
	Start time.Time
	End   time.Time
	// Parameters restricts the returned columns; timestamp is always
	// requested. Nil means all parameters.
	Parameters []string
	// Filter adds predicates that are combined with the station and time
	// bounds.
	Filter fes.Arg
}

// FetchObservations returns the observations matching q, sorted by time.
func (c *Client) FetchObservations(ctx context.Context, q Query) (*table.Table, error) {
	filters, err := q.Filter.Filters()
	if err != nil {
		return nil, err
	}

	catalog, err := c.EnsureStations(ctx)
	if err != nil {
		return nil, err
	}
	if _, ok := catalog.Station(q.StationCode); !ok {
		return nil, &kmi.ValidationError{
			Field:   "station_code",
			Message: "station code not valid. Station code should be any of " + strings.Join(catalog.Codes(), ","),
		}
	}

	filters = append(filters, fes.Equal("code", q.StationCode))
	if !q.Start.IsZero() {
		filters = append(filters, fes.GreaterOrEqual(table.IndexName, q.Start.UTC().Format(LiteralTimeLayout)))
	}
	if !q.End.IsZero() {
		filters = append(filters, fes.Less(table.IndexName, q.End.UTC().Format(LiteralTimeLayout)))
	}
	filterXML, err := fes.Encode(fes.Combine(filters...))
	if err != nil {
		return nil, fmt.Errorf("fetch observations: %w", err)
	}

	body, err := c.data.GetFeature(ctx, wfs.FeatureQuery{
		TypeName:      c.cfg.DataLayer,
		Filter:        filterXML,
		PropertyNames: propertyNames(q.Parameters),
		OutputFormat:  wfs.FormatCSV,
	})
	if err != nil {
		return nil, fmt.Errorf("fetch observations for %s: %w", q.StationCode, err)
	}

	t, err := parseObservations(c.cfg.DataLayer, body)
	if err != nil {
		return nil, err
	}

	metrics.TableRowsTotal.WithLabelValues(c.cfg.DataLayer).Add(float64(t.Len()))
	c.logger.Printf("observations: %s station %s: %d rows, %d columns", c.cfg.DataLayer, q.StationCode, t.Len(), t.Width())
	return t, nil
}

// propertyNames copies params and appends the timestamp if missing.
func propertyNames(params []string) []string {
	if params == nil {
		return nil
	}
	names := slices.Clone(params)
	if !slices.Contains(names, table.IndexName) {
		names = append(names, table.IndexName)
	}
	return names
}

func parseObservations(layer string, body []byte) (*table.Table, error) {
	recs, err := readCSV(body)
	if err != nil {
		return nil, &kmi.DataError{Layer: layer, Message: err.Error()}
	}
	ts := recs.index(table.IndexName)
	if ts < 0 {
		return nil, &kmi.DataError{Layer: layer, Message: "response has no timestamp column"}
	}

	var (
		columns []string
		keep    []int
	)
	for i, h := range recs.header {
		if i == ts || slices.Contains(dropColumns, h) {
			continue
		}
		columns = append(columns, h)
		keep = append(keep, i)
	}

	t := table.New(columns...)
	for n, row := range recs.rows {
		at, err := parseTime(row[ts])
		if err != nil {
			return nil, &kmi.DataError{Layer: layer, Message: fmt.Sprintf("row %d: %v", n+1, err)}
		}
		values := make([]table.Value, len(keep))
		for j, i := range keep {
			values[j] = table.Parse(row[i])
		}
		if err := t.Append(at, values...); err != nil {
			return nil, &kmi.DataError{Layer: layer, Message: err.Error()}
		}
	}
	t.Sort()
	return t, nil
}
