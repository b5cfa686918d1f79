package domain

import (
	"testing"

	"github.com/paulmach/orb"
)

func TestFeatureGetProperty(t *testing.T) {
	feature := Feature{
		ID: 1,
		Properties: map[string]interface{}{
			"name":  "strip",
			"count": 42,
			"nil":   nil,
		},
	}

	tests := []struct {
		name    string
		key     string
		wantVal interface{}
		wantOK  bool
	}{
		{"existing string", "name", "strip", true},
		{"existing int", "count", 42, true},
		{"existing nil", "nil", nil, true},
		{"non-existing", "missing", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			val, ok := feature.GetProperty(tt.key)
			if ok != tt.wantOK {
				t.Errorf("GetProperty(%q) ok = %v, want %v", tt.key, ok, tt.wantOK)
			}
			if val != tt.wantVal {
				t.Errorf("GetProperty(%q) val = %v, want %v", tt.key, val, tt.wantVal)
			}
		})
	}
}

func TestFeatureGetStringProperty(t *testing.T) {
	feature := Feature{
		Properties: map[string]interface{}{
			"string": "hello",
			"int":    int64(42),
			"float":  2.5,
			"bytes":  []byte("raw"),
			"nil":    nil,
		},
	}

	tests := []struct {
		key  string
		want string
	}{
		{"string", "hello"},
		{"int", "42"},
		{"float", "2.5"},
		{"bytes", "raw"},
		{"nil", ""},
		{"missing", ""},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			if got := feature.GetStringProperty(tt.key); got != tt.want {
				t.Errorf("GetStringProperty(%q) = %q, want %q", tt.key, got, tt.want)
			}
		})
	}

	var empty Feature
	if got := empty.GetStringProperty("any"); got != "" {
		t.Errorf("GetStringProperty on nil map = %q, want empty", got)
	}
}

func TestCatalogBound(t *testing.T) {
	c := &Catalog{Features: []Feature{
		{Geometry: orb.Polygon{{{0, 0}, {1, 0}, {1, 1}, {0, 0}}}},
		{Geometry: nil},
		{Geometry: orb.Point{5, -2}},
	}}

	want := orb.Bound{Min: orb.Point{0, -2}, Max: orb.Point{5, 1}}
	if got := c.Bound(); !got.Equal(want) {
		t.Errorf("Bound() = %v, want %v", got, want)
	}
}

func TestCatalogAdoptUsesTemplateSchema(t *testing.T) {
	merged := NewMergedCatalog("merged", Layer{Name: "cells", Fields: []string{"Dem", "start_datetime"}})

	merged.Adopt(Feature{
		ID:         42,
		Geometry:   orb.Point{1, 1},
		Properties: map[string]interface{}{"Dem": "a_dem.tif", "start_datetime": "2020-01-01", "extra": 1},
	})
	merged.Adopt(Feature{
		ID:         42,
		Geometry:   orb.Point{2, 2},
		Properties: map[string]interface{}{"Dem": "b_dem.tif"},
	})

	if merged.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", merged.Len())
	}
	if _, ok := merged.Features[0].GetProperty("extra"); ok {
		t.Error("field outside the template schema should be dropped")
	}
	if merged.Features[0].ID == merged.Features[1].ID {
		t.Error("adopted features should get fresh ids")
	}
	if !merged.Layer.HasField("Dem") || merged.Layer.HasField("extra") {
		t.Error("layer should keep the template fields only")
	}
}

func TestCatalogAdoptWithoutSchemaKeepsAll(t *testing.T) {
	merged := NewMergedCatalog("merged", Layer{})
	merged.Adopt(Feature{Properties: map[string]interface{}{"a": 1, "b": 2}})

	if len(merged.Features[0].Properties) != 2 {
		t.Errorf("Properties = %v, want both fields", merged.Features[0].Properties)
	}
}
