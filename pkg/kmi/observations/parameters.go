package observations

import (
	"context"
	"fmt"
)

// Parameter is one requestable property of the data layer.
type Parameter struct {
	Name string
	// Type is the schema type without prefix: "double", "dateTime", ...
	Type string
}

// Schema lists the data layer parameters in schema order.
type Schema []Parameter

// Map returns parameter name to type.
func (s Schema) Map() map[string]string {
	m := make(map[string]string, len(s))
	for _, p := range s {
		m[p.Name] = p.Type
	}
	return m
}

// Names returns the parameter names in schema order.
func (s Schema) Names() []string {
	names := make([]string, len(s))
	for i, p := range s {
		names[i] = p.Name
	}
	return names
}

// ListParameters describes the data layer. Geometry properties are left
// out. The result is not cached.
func (c *Client) ListParameters(ctx context.Context) (Schema, error) {
	props, err := c.data.DescribeFeatureType(ctx, c.cfg.DataLayer)
	if err != nil {
		return nil, fmt.Errorf("list parameters: %w", err)
	}
	schema := make(Schema, 0, len(props))
	for _, p := range props {
		if p.Geometry {
			continue
		}
		schema = append(schema, Parameter{Name: p.Name, Type: p.Type})
	}
	return schema, nil
}
