package domain

import (
	"fmt"
	"strconv"

	"github.com/paulmach/orb"
)

// Feature represents one catalog record: a raster footprint and its
// attributes.
type Feature struct {
	ID         int64                  // Feature ID (fid)
	Geometry   orb.Geometry           // Footprint
	Properties map[string]interface{} // Attribute data
}

// GetProperty returns a property value by key.
func (f *Feature) GetProperty(key string) (interface{}, bool) {
	if f.Properties == nil {
		return nil, false
	}
	v, ok := f.Properties[key]
	return v, ok
}

// GetStringProperty returns a property as string. Numbers are formatted;
// missing and null values yield "".
func (f *Feature) GetStringProperty(key string) string {
	v, ok := f.GetProperty(key)
	if !ok || v == nil {
		return ""
	}
	switch s := v.(type) {
	case string:
		return s
	case []byte:
		return string(s)
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	case int64:
		return strconv.FormatInt(s, 10)
	case int:
		return strconv.Itoa(s)
	default:
		return fmt.Sprint(s)
	}
}

// Layer describes the schema of a catalog.
type Layer struct {
	Name           string   // Layer name (gpkg table or file base name)
	GeometryColumn string   // Name of the geometry column, if any
	GeometryType   string   // Geometry type (POLYGON, MULTIPOLYGON, ...)
	SRID           int      // Spatial Reference ID
	Fields         []string // Attribute field names in schema order
}

// HasField reports whether the layer declares the named field.
func (l *Layer) HasField(name string) bool {
	for _, f := range l.Fields {
		if f == name {
			return true
		}
	}
	return false
}

// Catalog is a read-only collection of features opened for a resolution.
type Catalog struct {
	Path     string
	Layer    Layer
	Features []Feature
}

// Len returns the number of features.
func (c *Catalog) Len() int {
	return len(c.Features)
}

// Bound returns the union of all feature footprints.
func (c *Catalog) Bound() orb.Bound {
	var (
		b   orb.Bound
		set bool
	)
	for i := range c.Features {
		if c.Features[i].Geometry == nil {
			continue
		}
		fb := c.Features[i].Geometry.Bound()
		if !set {
			b, set = fb, true
			continue
		}
		b = b.Union(fb)
	}
	return b
}

// NewMergedCatalog creates an empty in-memory catalog that uses template as
// its schema.
func NewMergedCatalog(path string, template Layer) *Catalog {
	fields := make([]string, len(template.Fields))
	copy(fields, template.Fields)
	template.Fields = fields
	return &Catalog{Path: path, Layer: template}
}

// Adopt appends a copy of f keeping only attributes declared by the
// catalog's schema. A schema without fields keeps every attribute.
func (c *Catalog) Adopt(f Feature) {
	props := f.Properties
	if len(c.Layer.Fields) > 0 {
		props = make(map[string]interface{}, len(c.Layer.Fields))
		for name, v := range f.Properties {
			if c.Layer.HasField(name) {
				props[name] = v
			}
		}
	}
	c.Features = append(c.Features, Feature{
		ID:         int64(len(c.Features)) + 1,
		Geometry:   f.Geometry,
		Properties: props,
	})
}
