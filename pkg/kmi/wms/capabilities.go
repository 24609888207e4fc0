package wms

import (
	"encoding/xml"
	"fmt"
	"strings"
)

// BBox is a bounding box tagged with its coordinate reference system.
type BBox struct {
	MinX float64
	MinY float64
	MaxX float64
	MaxY float64
	CRS  string
}

// Layer is a named layer from the capabilities document with inherited
// properties (CRS list, bounding box, time dimension) resolved.
type Layer struct {
	Name      string
	Title     string
	Abstract  string
	Queryable bool
	CRS       []string
	BBox      *BBox
	// TimeExtent is the raw time dimension, e.g. "2024-01-01T00:00:00Z/2024-01-03T12:00:00Z/PT1H".
	TimeExtent string
}

// Capabilities is the flattened view of a GetCapabilities response.
type Capabilities struct {
	Version string
	Title   string
	Layers  []Layer
}

// Layer returns the named layer.
func (c *Capabilities) Layer(name string) (Layer, bool) {
	for _, l := range c.Layers {
		if l.Name == name {
			return l, true
		}
	}
	return Layer{}, false
}

// Names lists all layer names in document order.
func (c *Capabilities) Names() []string {
	names := make([]string, 0, len(c.Layers))
	for _, l := range c.Layers {
		names = append(names, l.Name)
	}
	return names
}

type xmlBBox struct {
	CRS  string  `xml:"CRS,attr"`
	SRS  string  `xml:"SRS,attr"`
	MinX float64 `xml:"minx,attr"`
	MinY float64 `xml:"miny,attr"`
	MaxX float64 `xml:"maxx,attr"`
	MaxY float64 `xml:"maxy,attr"`
}

type xmlGeoBBox struct {
	West  *float64 `xml:"westBoundLongitude"`
	East  *float64 `xml:"eastBoundLongitude"`
	South *float64 `xml:"southBoundLatitude"`
	North *float64 `xml:"northBoundLatitude"`
}

type xmlDimension struct {
	Name  string `xml:"name,attr"`
	Value string `xml:",chardata"`
}

type xmlLayer struct {
	Name          string         `xml:"Name"`
	Title         string         `xml:"Title"`
	Abstract      string         `xml:"Abstract"`
	Queryable     string         `xml:"queryable,attr"`
	CRS           []string       `xml:"CRS"`
	SRS           []string       `xml:"SRS"`
	GeoBBox       *xmlGeoBBox    `xml:"EX_GeographicBoundingBox"`
	BoundingBoxes []xmlBBox      `xml:"BoundingBox"`
	Dimensions    []xmlDimension `xml:"Dimension"`
	Extents       []xmlDimension `xml:"Extent"`
	Layers        []xmlLayer     `xml:"Layer"`
}

type xmlCapabilities struct {
	Version string     `xml:"version,attr"`
	Title   string     `xml:"Service>Title"`
	Layers  []xmlLayer `xml:"Capability>Layer"`
}

// ParseCapabilities decodes a WMS 1.1.1 or 1.3.0 capabilities document.
func ParseCapabilities(body []byte) (*Capabilities, error) {
	var doc xmlCapabilities
	if err := xml.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("decode capabilities: %w", err)
	}
	caps := &Capabilities{
		Version: doc.Version,
		Title:   strings.TrimSpace(doc.Title),
	}
	for _, root := range doc.Layers {
		flatten(root, Layer{}, &caps.Layers)
	}
	return caps, nil
}

func flatten(x xmlLayer, parent Layer, out *[]Layer) {
	l := Layer{
		Name:       strings.TrimSpace(x.Name),
		Title:      strings.TrimSpace(x.Title),
		Abstract:   strings.TrimSpace(x.Abstract),
		Queryable:  x.Queryable == "1" || x.Queryable == "true",
		CRS:        mergeCRS(parent.CRS, append(x.CRS, x.SRS...)),
		BBox:       layerBBox(x),
		TimeExtent: timeExtent(x),
	}
	if l.BBox == nil {
		l.BBox = parent.BBox
	}
	if l.TimeExtent == "" {
		l.TimeExtent = parent.TimeExtent
	}
	if !l.Queryable && x.Queryable == "" {
		l.Queryable = parent.Queryable
	}

	if l.Name != "" {
		*out = append(*out, l)
	}
	for _, child := range x.Layers {
		flatten(child, l, out)
	}
}

// layerBBox prefers the first declared BoundingBox, then the geographic box.
func layerBBox(x xmlLayer) *BBox {
	if len(x.BoundingBoxes) > 0 {
		b := x.BoundingBoxes[0]
		crs := b.CRS
		if crs == "" {
			crs = b.SRS
		}
		return &BBox{MinX: b.MinX, MinY: b.MinY, MaxX: b.MaxX, MaxY: b.MaxY, CRS: crs}
	}
	if g := x.GeoBBox; g != nil && g.West != nil && g.East != nil && g.South != nil && g.North != nil {
		return &BBox{MinX: *g.West, MinY: *g.South, MaxX: *g.East, MaxY: *g.North, CRS: "CRS:84"}
	}
	return nil
}

func timeExtent(x xmlLayer) string {
	for _, d := range append(x.Dimensions, x.Extents...) {
		if strings.EqualFold(d.Name, "time") {
			if v := strings.TrimSpace(d.Value); v != "" {
				return v
			}
		}
	}
	return ""
}

func mergeCRS(inherited, own []string) []string {
	seen := make(map[string]bool, len(inherited)+len(own))
	out := make([]string, 0, len(inherited)+len(own))
	for _, list := range [][]string{inherited, own} {
		for _, crs := range list {
			crs = strings.TrimSpace(crs)
			if crs == "" || seen[crs] {
				continue
			}
			seen[crs] = true
			out = append(out, crs)
		}
	}
	return out
}
