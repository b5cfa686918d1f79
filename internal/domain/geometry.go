// Package domain contains the core business entities and value objects.
package domain

import (
	"fmt"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkt"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/planar"
)

// ValidationError represents a detailed validation error.
type ValidationError struct {
	Field      string      // Field that failed validation
	Value      interface{} // The invalid value
	Constraint string      // The constraint that was violated
	Message    string      // Human-readable message
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for %s: %s (value: %v, constraint: %s)",
		e.Field, e.Message, e.Value, e.Constraint)
}

// Unwrap returns the underlying error type.
func (e *ValidationError) Unwrap() error {
	return ErrInvalidGeometry
}

// ParseGeometry parses a query geometry given as WKT or GeoJSON. GeoJSON may
// be a bare geometry, a Feature, or a FeatureCollection holding one feature.
func ParseGeometry(s string) (orb.Geometry, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("%w: empty geometry", ErrInvalidGeometry)
	}

	var (
		g   orb.Geometry
		err error
	)
	if strings.HasPrefix(s, "{") {
		g, err = parseGeoJSONGeometry([]byte(s))
	} else {
		g, err = wkt.Unmarshal(s)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidGeometry, err)
	}

	if err := ValidateGeometry(g); err != nil {
		return nil, err
	}
	return g, nil
}

func parseGeoJSONGeometry(data []byte) (orb.Geometry, error) {
	if fc, err := geojson.UnmarshalFeatureCollection(data); err == nil && fc.Type == "FeatureCollection" {
		if len(fc.Features) != 1 {
			return nil, fmt.Errorf("feature collection must hold exactly one feature, got %d", len(fc.Features))
		}
		return fc.Features[0].Geometry, nil
	}
	if f, err := geojson.UnmarshalFeature(data); err == nil && f.Type == "Feature" {
		return f.Geometry, nil
	}
	geom, err := geojson.UnmarshalGeometry(data)
	if err != nil {
		return nil, err
	}
	return geom.Geometry(), nil
}

// ValidateGeometry checks that a query geometry is a supported type with
// coordinates inside the WGS84 lon/lat range.
func ValidateGeometry(g orb.Geometry) error {
	if g == nil {
		return fmt.Errorf("%w: missing geometry", ErrInvalidGeometry)
	}

	switch v := g.(type) {
	case orb.Point, orb.MultiPoint:
	case orb.Polygon:
		if len(v) == 0 || len(v[0]) < 3 {
			return &ValidationError{
				Field:      "polygon",
				Value:      len(v),
				Constraint: ">= 3 vertices",
				Message:    "polygon ring needs at least three vertices",
			}
		}
	case orb.MultiPolygon:
		if len(v) == 0 {
			return fmt.Errorf("%w: empty multipolygon", ErrInvalidGeometry)
		}
	case orb.Bound:
	default:
		return fmt.Errorf("%w: unsupported type %s", ErrInvalidGeometry, g.GeoJSONType())
	}

	b := g.Bound()
	if b.Min[0] < -180 || b.Max[0] > 180 {
		return &ValidationError{
			Field:      "longitude",
			Value:      [2]float64{b.Min[0], b.Max[0]},
			Constraint: "[-180, 180]",
			Message:    "longitude must be between -180 and 180",
		}
	}
	if b.Min[1] < -90 || b.Max[1] > 90 {
		return &ValidationError{
			Field:      "latitude",
			Value:      [2]float64{b.Min[1], b.Max[1]},
			Constraint: "[-90, 90]",
			Message:    "latitude must be between -90 and 90",
		}
	}
	return nil
}

// Intersects reports whether two geometries share at least one point.
// Boundaries count as shared. Edges are straight lines in lon/lat; point in
// polygon is delegated to orb/planar.
func Intersects(a, b orb.Geometry) bool {
	if a == nil || b == nil {
		return false
	}
	if !a.Bound().Intersects(b.Bound()) {
		return false
	}

	pa, la, aa := decompose(a)
	pb, lb, ab := decompose(b)

	for _, p := range pa {
		if pointTouches(p, pb, lb, ab) {
			return true
		}
	}
	for _, p := range pb {
		if pointTouches(p, nil, la, aa) {
			return true
		}
	}

	for _, l1 := range la {
		for _, l2 := range lb {
			if linesCross(l1, l2) {
				return true
			}
		}
	}

	// No crossing edges: one area may still contain the other entirely.
	for _, l := range la {
		if len(l) > 0 && inAnyArea(l[0], ab) {
			return true
		}
	}
	for _, l := range lb {
		if len(l) > 0 && inAnyArea(l[0], aa) {
			return true
		}
	}
	return false
}

// decompose splits a geometry into points, polylines and areas. Area rings
// are also returned as polylines so edge crossings are found.
func decompose(g orb.Geometry) ([]orb.Point, []orb.LineString, []orb.Polygon) {
	var (
		points []orb.Point
		lines  []orb.LineString
		areas  []orb.Polygon
	)

	addPolygon := func(p orb.Polygon) {
		areas = append(areas, p)
		for _, r := range p {
			lines = append(lines, orb.LineString(r))
		}
	}

	switch v := g.(type) {
	case orb.Point:
		points = append(points, v)
	case orb.MultiPoint:
		points = append(points, v...)
	case orb.LineString:
		lines = append(lines, v)
	case orb.MultiLineString:
		lines = append(lines, v...)
	case orb.Ring:
		addPolygon(orb.Polygon{v})
	case orb.Polygon:
		addPolygon(v)
	case orb.MultiPolygon:
		for _, p := range v {
			addPolygon(p)
		}
	case orb.Bound:
		addPolygon(v.ToPolygon())
	case orb.Collection:
		for _, c := range v {
			p, l, a := decompose(c)
			points = append(points, p...)
			lines = append(lines, l...)
			areas = append(areas, a...)
		}
	}
	return points, lines, areas
}

func pointTouches(p orb.Point, points []orb.Point, lines []orb.LineString, areas []orb.Polygon) bool {
	for _, q := range points {
		if p.Equal(q) {
			return true
		}
	}
	if inAnyArea(p, areas) {
		return true
	}
	for _, l := range lines {
		for i := 1; i < len(l); i++ {
			if onSegment(l[i-1], l[i], p) {
				return true
			}
		}
	}
	return false
}

func inAnyArea(p orb.Point, areas []orb.Polygon) bool {
	for _, a := range areas {
		if planar.PolygonContains(a, p) {
			return true
		}
	}
	return false
}

func linesCross(a, b orb.LineString) bool {
	for i := 1; i < len(a); i++ {
		for j := 1; j < len(b); j++ {
			if segmentsIntersect(a[i-1], a[i], b[j-1], b[j]) {
				return true
			}
		}
	}
	return false
}

func orientation(a, b, c orb.Point) float64 {
	return (b[0]-a[0])*(c[1]-a[1]) - (b[1]-a[1])*(c[0]-a[0])
}

func onSegment(a, b, p orb.Point) bool {
	if orientation(a, b, p) != 0 {
		return false
	}
	return p[0] >= min(a[0], b[0]) && p[0] <= max(a[0], b[0]) &&
		p[1] >= min(a[1], b[1]) && p[1] <= max(a[1], b[1])
}

func segmentsIntersect(p1, p2, q1, q2 orb.Point) bool {
	d1 := orientation(q1, q2, p1)
	d2 := orientation(q1, q2, p2)
	d3 := orientation(p1, p2, q1)
	d4 := orientation(p1, p2, q2)

	if ((d1 > 0 && d2 < 0) || (d1 < 0 && d2 > 0)) &&
		((d3 > 0 && d4 < 0) || (d3 < 0 && d4 > 0)) {
		return true
	}
	return onSegment(q1, q2, p1) || onSegment(q1, q2, p2) ||
		onSegment(p1, p2, q1) || onSegment(p1, p2, q2)
}
