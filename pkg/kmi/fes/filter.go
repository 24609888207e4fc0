// Package fes builds OGC Filter Encoding 1.1 predicates for WFS queries.
package fes

import (
	"bytes"
	"encoding/xml"
	"fmt"
)

// Namespace is the OGC filter namespace used by WFS 1.1.0.
const Namespace = "http://www.opengis.net/ogc"

// Filter is a server-evaluated predicate over feature properties.
// Only the types in this package implement it.
type Filter interface {
	xml.Marshaler
	isFilter()
}

// PropertyIsEqualTo matches features whose property equals Literal.
type PropertyIsEqualTo struct {
	PropertyName string
	Literal      string
}

// PropertyIsGreaterThanOrEqualTo matches features whose property is >= Literal.
type PropertyIsGreaterThanOrEqualTo struct {
	PropertyName string
	Literal      string
}

// PropertyIsLessThan matches features whose property is < Literal.
type PropertyIsLessThan struct {
	PropertyName string
	Literal      string
}

// And matches features satisfying every filter.
type And struct {
	Filters []Filter
}

func (PropertyIsEqualTo) isFilter()              {}
func (PropertyIsGreaterThanOrEqualTo) isFilter() {}
func (PropertyIsLessThan) isFilter()             {}
func (And) isFilter()                            {}

// Equal returns a PropertyIsEqualTo predicate.
func Equal(property, literal string) Filter {
	return PropertyIsEqualTo{PropertyName: property, Literal: literal}
}

// GreaterOrEqual returns a PropertyIsGreaterThanOrEqualTo predicate.
func GreaterOrEqual(property, literal string) Filter {
	return PropertyIsGreaterThanOrEqualTo{PropertyName: property, Literal: literal}
}

// Less returns a PropertyIsLessThan predicate.
func Less(property, literal string) Filter {
	return PropertyIsLessThan{PropertyName: property, Literal: literal}
}

// Combine joins filters conjunctively. A single filter is returned as is,
// so no redundant And wraps it. Combine of nothing returns nil.
func Combine(filters ...Filter) Filter {
	switch len(filters) {
	case 0:
		return nil
	case 1:
		return filters[0]
	default:
		return And{Filters: filters}
	}
}

func (f PropertyIsEqualTo) MarshalXML(e *xml.Encoder, _ xml.StartElement) error {
	return encodeComparison(e, "PropertyIsEqualTo", f.PropertyName, f.Literal)
}

func (f PropertyIsGreaterThanOrEqualTo) MarshalXML(e *xml.Encoder, _ xml.StartElement) error {
	return encodeComparison(e, "PropertyIsGreaterThanOrEqualTo", f.PropertyName, f.Literal)
}

func (f PropertyIsLessThan) MarshalXML(e *xml.Encoder, _ xml.StartElement) error {
	return encodeComparison(e, "PropertyIsLessThan", f.PropertyName, f.Literal)
}

func (f And) MarshalXML(e *xml.Encoder, _ xml.StartElement) error {
	start := xml.StartElement{Name: xml.Name{Local: "And"}}
	if err := e.EncodeToken(start); err != nil {
		return err
	}
	for _, child := range f.Filters {
		if err := e.Encode(child); err != nil {
			return err
		}
	}
	return e.EncodeToken(start.End())
}

func encodeComparison(e *xml.Encoder, op, property, literal string) error {
	start := xml.StartElement{Name: xml.Name{Local: op}}
	if err := e.EncodeToken(start); err != nil {
		return err
	}
	if err := e.EncodeElement(property, xml.StartElement{Name: xml.Name{Local: "PropertyName"}}); err != nil {
		return err
	}
	if err := e.EncodeElement(literal, xml.StartElement{Name: xml.Name{Local: "Literal"}}); err != nil {
		return err
	}
	return e.EncodeToken(start.End())
}

// Encode renders f as a complete <Filter> document for the FILTER parameter.
func Encode(f Filter) (string, error) {
	if f == nil {
		return "", fmt.Errorf("encode filter: nil filter")
	}

	var buf bytes.Buffer
	e := xml.NewEncoder(&buf)
	start := xml.StartElement{
		Name: xml.Name{Local: "Filter"},
		Attr: []xml.Attr{{Name: xml.Name{Local: "xmlns"}, Value: Namespace}},
	}
	if err := e.EncodeToken(start); err != nil {
		return "", fmt.Errorf("encode filter: %w", err)
	}
	if err := e.Encode(f); err != nil {
		return "", fmt.Errorf("encode filter: %w", err)
	}
	if err := e.EncodeToken(start.End()); err != nil {
		return "", fmt.Errorf("encode filter: %w", err)
	}
	if err := e.Flush(); err != nil {
		return "", fmt.Errorf("encode filter: %w", err)
	}
	return buf.String(), nil
}
