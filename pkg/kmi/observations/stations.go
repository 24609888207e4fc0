package observations

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/lox/openkmi/pkg/kmi/wfs"
)

// Station is one entry of the station catalog.
type Station struct {
	Code      string
	Name      string
	Longitude float64
	Latitude  float64
	Altitude  *float64
	DateBegin time.Time
	DateEnd   *time.Time
	// Extra holds catalog columns not mapped above, as raw text.
	Extra map[string]string
}

// Catalog is the station list in service order.
type Catalog struct {
	Stations []Station
}

// Len returns the number of stations.
func (c *Catalog) Len() int { return len(c.Stations) }

// Codes returns every station code in catalog order.
func (c *Catalog) Codes() []string {
	codes := make([]string, len(c.Stations))
	for i, s := range c.Stations {
		codes[i] = s.Code
	}
	return codes
}

// Station looks up a station by code.
func (c *Catalog) Station(code string) (Station, bool) {
	for _, s := range c.Stations {
		if s.Code == code {
			return s, true
		}
	}
	return Station{}, false
}

// WriteCSV writes the catalog with one row per station. Extra columns
// follow the fixed ones in name order.
func (c *Catalog) WriteCSV(w io.Writer) error {
	extra := map[string]bool{}
	for _, s := range c.Stations {
		for k := range s.Extra {
			extra[k] = true
		}
	}
	extraCols := make([]string, 0, len(extra))
	for k := range extra {
		extraCols = append(extraCols, k)
	}
	sort.Strings(extraCols)

	cw := csv.NewWriter(w)
	header := append([]string{"code", "name", "longitude", "latitude", "altitude", "date_begin", "date_end"}, extraCols...)
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, s := range c.Stations {
		row := []string{
			s.Code,
			s.Name,
			strconv.FormatFloat(s.Longitude, 'f', -1, 64),
			strconv.FormatFloat(s.Latitude, 'f', -1, 64),
			"", "", "",
		}
		if s.Altitude != nil {
			row[4] = strconv.FormatFloat(*s.Altitude, 'f', -1, 64)
		}
		if !s.DateBegin.IsZero() {
			row[5] = s.DateBegin.Format(time.RFC3339)
		}
		if s.DateEnd != nil {
			row[6] = s.DateEnd.Format(time.RFC3339)
		}
		for _, k := range extraCols {
			row = append(row, s.Extra[k])
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ListStations fetches the station catalog and replaces the cached copy.
func (c *Client) ListStations(ctx context.Context) (*Catalog, error) {
	body, err := c.stations.GetFeature(ctx, wfs.FeatureQuery{
		TypeName:     c.cfg.StationLayer,
		OutputFormat: wfs.FormatCSV,
	})
	if err != nil {
		return nil, fmt.Errorf("list stations: %w", err)
	}
	catalog, err := parseCatalog(body)
	if err != nil {
		return nil, fmt.Errorf("list stations: %w", err)
	}

	c.mu.Lock()
	c.catalog = catalog
	c.mu.Unlock()

	c.logger.Printf("observations: loaded %d stations from %s", catalog.Len(), c.cfg.StationLayer)
	return catalog, nil
}

// EnsureStations returns the cached catalog, fetching it on first use.
func (c *Client) EnsureStations(ctx context.Context) (*Catalog, error) {
	c.mu.Lock()
	catalog := c.catalog
	c.mu.Unlock()
	if catalog != nil {
		return catalog, nil
	}
	return c.ListStations(ctx)
}

func parseCatalog(body []byte) (*Catalog, error) {
	recs, err := readCSV(body)
	if err != nil {
		return nil, err
	}
	fid := recs.index("FID")
	code := recs.index("code")
	if code < 0 && fid < 0 {
		return nil, fmt.Errorf("catalog has neither code nor FID column")
	}

	catalog := &Catalog{Stations: make([]Station, 0, len(recs.rows))}
	for _, row := range recs.rows {
		var s Station
		for i, col := range recs.header {
			if i >= len(row) {
				break
			}
			raw := strings.TrimSpace(row[i])
			switch col {
			case "FID":
			case "code":
				s.Code = canonicalCode(raw)
			case "name":
				s.Name = raw
			case "the_geom":
				s.Longitude, s.Latitude, _ = parsePoint(raw)
			case "altitude":
				if f, err := strconv.ParseFloat(raw, 64); err == nil {
					s.Altitude = &f
				}
			case "date_begin":
				if t, err := parseTime(raw); err == nil {
					s.DateBegin = t
				}
			case "date_end":
				if t, err := parseTime(raw); err == nil {
					s.DateEnd = &t
				}
			default:
				if s.Extra == nil {
					s.Extra = map[string]string{}
				}
				s.Extra[col] = raw
			}
		}
		// synop_station.6438 -> 6438
		if code < 0 {
			if _, id, ok := strings.Cut(row[fid], "."); ok {
				s.Code = canonicalCode(id)
			} else {
				s.Code = canonicalCode(row[fid])
			}
		}
		catalog.Stations = append(catalog.Stations, s)
	}
	return catalog, nil
}

// parsePoint reads a WKT point, "POINT (4.35 50.8)".
func parsePoint(wkt string) (x, y float64, err error) {
	wkt = strings.TrimSpace(wkt)
	open := strings.Index(wkt, "(")
	end := strings.LastIndex(wkt, ")")
	if !strings.HasPrefix(strings.ToUpper(wkt), "POINT") || open < 0 || end < open {
		return 0, 0, fmt.Errorf("not a WKT point: %q", wkt)
	}
	fields := strings.Fields(wkt[open+1 : end])
	if len(fields) < 2 {
		return 0, 0, fmt.Errorf("not a WKT point: %q", wkt)
	}
	if x, err = strconv.ParseFloat(fields[0], 64); err != nil {
		return 0, 0, err
	}
	if y, err = strconv.ParseFloat(fields[1], 64); err != nil {
		return 0, 0, err
	}
	return x, y, nil
}
