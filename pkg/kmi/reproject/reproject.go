// Package reproject converts coordinates between reference systems. The
// PROJ-backed implementation lives in the proj subpackage so that callers
// which only pass through EPSG:3857 do not need cgo.
package reproject

import "strings"

// WebMercator is the CRS the forecast service is queried in.
const WebMercator = "EPSG:3857"

// Transformer converts a point from one CRS to another. Axis order is
// always x/y (longitude/latitude, easting/northing).
type Transformer interface {
	Transform(from, to string, x, y float64) (float64, float64, error)
}

// Func adapts a function to Transformer.
type Func func(from, to string, x, y float64) (float64, float64, error)

func (f Func) Transform(from, to string, x, y float64) (float64, float64, error) {
	return f(from, to, x, y)
}

// Normalize turns a bare EPSG code such as "4326" into "EPSG:4326".
func Normalize(crs string) string {
	crs = strings.TrimSpace(crs)
	if crs == "" {
		return crs
	}
	authority, code, ok := strings.Cut(crs, ":")
	if !ok {
		return "EPSG:" + crs
	}
	return strings.ToUpper(authority) + ":" + code
}

// Same reports whether a and b name the same CRS.
func Same(a, b string) bool {
	return Normalize(a) == Normalize(b)
}
