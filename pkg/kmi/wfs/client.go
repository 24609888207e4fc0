// Package wfs is a small WFS 1.1.0 client covering what the RMI feature
// services need: capabilities, schema introspection and feature queries.
package wfs

import (
	"context"
	"encoding/xml"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/lox/openkmi/internal/httputil"
	"github.com/lox/openkmi/pkg/kmi/ows"
)

const (
	DefaultVersion = "1.1.0"
	FormatCSV      = "csv"
)

// Client talks to one WFS endpoint.
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

// Endpoint returns the service URL.
func (c *Client) Endpoint() string {
	return c.endpoint
}

// FeatureType is one entry of the capabilities feature type list.
type FeatureType struct {
	Name       string `xml:"Name"`
	Title      string `xml:"Title"`
	Abstract   string `xml:"Abstract"`
	DefaultSRS string `xml:"DefaultSRS"`
}

// Capabilities is the subset of a GetCapabilities response used here.
type Capabilities struct {
	Title        string        `xml:"ServiceIdentification>Title"`
	FeatureTypes []FeatureType `xml:"FeatureTypeList>FeatureType"`
}

// Capabilities fetches and parses the service capabilities.
func (c *Client) Capabilities(ctx context.Context) (*Capabilities, error) {
	body, err := c.get(ctx, "GetCapabilities", nil)
	if err != nil {
		return nil, err
	}
	var caps Capabilities
	if err := xml.Unmarshal(body, &caps); err != nil {
		return nil, fmt.Errorf("decode capabilities: %w", err)
	}
	return &caps, nil
}

// FeatureTypes lists the names of all feature types the service offers.
func (c *Client) FeatureTypes(ctx context.Context) ([]string, error) {
	caps, err := c.Capabilities(ctx)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(caps.FeatureTypes))
	for _, ft := range caps.FeatureTypes {
		names = append(names, strings.TrimSpace(ft.Name))
	}
	return names, nil
}

// Property is one attribute of a feature type schema.
type Property struct {
	Name string
	// Type is the XML schema type without namespace prefix, e.g. "double".
	Type     string
	Geometry bool
}

type xsdElement struct {
	Name string `xml:"name,attr"`
	Type string `xml:"type,attr"`
}

type xsdSchema struct {
	ComplexTypes []struct {
		Name     string       `xml:"name,attr"`
		Elements []xsdElement `xml:"complexContent>extension>sequence>element"`
	} `xml:"complexType"`
	Elements []xsdElement `xml:"element"`
}

// DescribeFeatureType returns the properties of typeName in schema order.
func (c *Client) DescribeFeatureType(ctx context.Context, typeName string) ([]Property, error) {
	params := url.Values{}
	params.Set("TYPENAME", typeName)
	body, err := c.get(ctx, "DescribeFeatureType", params)
	if err != nil {
		return nil, err
	}
	props, err := parseSchema(body, typeName)
	if err != nil {
		return nil, fmt.Errorf("describe %s: %w", typeName, err)
	}
	return props, nil
}

func parseSchema(body []byte, typeName string) ([]Property, error) {
	var schema xsdSchema
	if err := xml.Unmarshal(body, &schema); err != nil {
		return nil, fmt.Errorf("decode schema: %w", err)
	}
	if len(schema.ComplexTypes) == 0 {
		return nil, fmt.Errorf("schema has no complex types")
	}

	// The top-level element named after the feature type points at its
	// complex type; servers usually emit exactly one of each.
	wantType := ""
	local := localName(typeName)
	for _, el := range schema.Elements {
		if el.Name == local {
			wantType = localName(el.Type)
			break
		}
	}

	ct := schema.ComplexTypes[0]
	for _, candidate := range schema.ComplexTypes {
		if candidate.Name == wantType || (wantType == "" && candidate.Name == local+"Type") {
			ct = candidate
			break
		}
	}

	props := make([]Property, 0, len(ct.Elements))
	for _, el := range ct.Elements {
		prefix, typ := splitQName(el.Type)
		props = append(props, Property{
			Name:     el.Name,
			Type:     typ,
			Geometry: prefix == "gml" || strings.HasSuffix(typ, "PropertyType"),
		})
	}
	return props, nil
}

// FeatureQuery describes one GetFeature request.
type FeatureQuery struct {
	TypeName string
	// Filter is an encoded OGC filter document, see fes.Encode.
	Filter string
	// PropertyNames restricts the returned columns; nil means all.
	PropertyNames []string
	OutputFormat  string
	MaxFeatures   int
}

// GetFeature runs q and returns the raw response body.
func (c *Client) GetFeature(ctx context.Context, q FeatureQuery) ([]byte, error) {
	if q.TypeName == "" {
		return nil, fmt.Errorf("get feature: type name required")
	}
	params := url.Values{}
	params.Set("TYPENAME", q.TypeName)
	if q.OutputFormat != "" {
		params.Set("OUTPUTFORMAT", q.OutputFormat)
	}
	if q.Filter != "" {
		params.Set("FILTER", q.Filter)
	}
	if len(q.PropertyNames) > 0 {
		params.Set("PROPERTYNAME", strings.Join(q.PropertyNames, ","))
	}
	if q.MaxFeatures > 0 {
		params.Set("MAXFEATURES", strconv.Itoa(q.MaxFeatures))
	}
	return c.get(ctx, "GetFeature", params)
}

func (c *Client) get(ctx context.Context, request string, params url.Values) ([]byte, error) {
	if params == nil {
		params = url.Values{}
	}
	params.Set("SERVICE", "WFS")
	params.Set("VERSION", c.version)
	params.Set("REQUEST", request)

	body, err := c.req.Get(ctx, c.endpoint, params)
	if err != nil {
		return nil, fmt.Errorf("wfs %s: %w", request, ows.Translate(err))
	}
	if err := ows.CheckException(body); err != nil {
		return nil, fmt.Errorf("wfs %s: %w", request, err)
	}
	return body, nil
}

func localName(qname string) string {
	_, local := splitQName(qname)
	return local
}

func splitQName(qname string) (prefix, local string) {
	if i := strings.LastIndex(qname, ":"); i >= 0 {
		return qname[:i], qname[i+1:]
	}
	return "", qname
}
