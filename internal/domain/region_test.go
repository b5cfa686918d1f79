package domain

import (
	"errors"
	"math"
	"testing"

	"github.com/paulmach/orb"
)

func TestPolygonRegionIncludes(t *testing.T) {
	// Open ring: the closing vertex is implied.
	region, err := NewPolygonRegion(orb.Ring{{0, 11}, {1, 11}, {1, 13}, {0, 13}})
	if err != nil {
		t.Fatalf("NewPolygonRegion() error = %v", err)
	}

	tests := []struct {
		name     string
		lon, lat float64
		want     bool
	}{
		{"inside", 0.5, 12, true},
		{"on south edge", 0.5, 11, true},
		{"below", 0.5, 10, false},
		{"east of bound", 2, 12, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := region.Includes(tt.lon, tt.lat); got != tt.want {
				t.Errorf("Includes(%v, %v) = %v, want %v", tt.lon, tt.lat, got, tt.want)
			}
		})
	}

	if region.Kind() != RegionPolygon {
		t.Errorf("Kind() = %v, want polygon", region.Kind())
	}
}

func TestNewPolygonRegionTooFewVertices(t *testing.T) {
	_, err := NewPolygonRegion(orb.Ring{{0, 0}, {1, 1}})
	if !errors.Is(err, ErrInvalidGeometry) {
		t.Errorf("NewPolygonRegion() error = %v, want ErrInvalidGeometry", err)
	}
}

func TestNewPolygonRegionFromGeometry(t *testing.T) {
	poly := orb.Polygon{{{0, 0}, {2, 0}, {2, 2}, {0, 2}}}
	region, err := NewPolygonRegionFromGeometry(poly)
	if err != nil {
		t.Fatalf("NewPolygonRegionFromGeometry() error = %v", err)
	}
	if !region.Includes(1, 1) {
		t.Error("Includes(1, 1) = false, want true")
	}
	if len(poly[0]) != 4 {
		t.Error("input polygon must not be modified")
	}

	if _, err := NewPolygonRegionFromGeometry(orb.Point{1, 1}); !errors.Is(err, ErrInvalidGeometry) {
		t.Errorf("point region error = %v, want ErrInvalidGeometry", err)
	}
}

func TestRasterMask(t *testing.T) {
	mask, err := NewRasterMask(orb.Bound{Min: orb.Point{0, 0}, Max: orb.Point{4, 4}}, 1, 0)
	if err != nil {
		t.Fatalf("NewRasterMask() error = %v", err)
	}
	cols, rows := mask.Size()
	if cols != 4 || rows != 4 {
		t.Fatalf("Size() = %d x %d, want 4 x 4", cols, rows)
	}

	mask.Set(0.5, 3.5) // north-west cell
	mask.SetCell(3, 3) // south-east cell

	tests := []struct {
		name     string
		lon, lat float64
		want     bool
	}{
		{"north-west cell", 0.2, 3.9, true},
		{"south-east cell", 3.5, 0.5, true},
		{"max corner clamps to last cell", 4, 0, true},
		{"unset cell", 2.5, 2.5, false},
		{"outside", 5, 5, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := mask.Includes(tt.lon, tt.lat); got != tt.want {
				t.Errorf("Includes(%v, %v) = %v, want %v", tt.lon, tt.lat, got, tt.want)
			}
		})
	}

	if mask.Kind() != RegionRaster {
		t.Errorf("Kind() = %v, want raster", mask.Kind())
	}
	if mask.Cardinality() != 2 {
		t.Errorf("Cardinality() = %d, want 2", mask.Cardinality())
	}
}

func TestNewRasterMaskInvalid(t *testing.T) {
	unit := orb.Bound{Min: orb.Point{0, 0}, Max: orb.Point{1, 1}}
	globe := orb.Bound{Min: orb.Point{-180, -90}, Max: orb.Point{180, 90}}

	tests := []struct {
		name     string
		bound    orb.Bound
		cellSize float64
		maxCells int64
	}{
		{"zero cell size", unit, 0, 0},
		{"negative cell size", unit, -1, 0},
		{"NaN cell size", unit, math.NaN(), 0},
		{"flat extent", orb.Bound{Min: orb.Point{0, 0}, Max: orb.Point{1, 0}}, 0.5, 0},
		{"product overflows int64", globe, 1e-9, 0},
		{"one side beyond the limit", orb.Bound{Min: orb.Point{0, 0}, Max: orb.Point{100, 0.5}}, 1, 50},
		{"above default limit", globe, 0.01, 0},
		{"above configured limit", unit, 0.1, 99},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := NewRasterMask(tt.bound, tt.cellSize, tt.maxCells)
			if !errors.Is(err, ErrInvalidGeometry) {
				t.Errorf("NewRasterMask() = %v, error = %v, want ErrInvalidGeometry", m, err)
			}
		})
	}
}

func TestNewRasterMaskLimit(t *testing.T) {
	unit := orb.Bound{Min: orb.Point{0, 0}, Max: orb.Point{1, 1}}

	m, err := NewRasterMask(unit, 0.1, 100)
	if err != nil {
		t.Fatalf("NewRasterMask() at the limit error = %v", err)
	}
	if cols, rows := m.Size(); cols != 10 || rows != 10 {
		t.Errorf("Size() = %d x %d, want 10 x 10", cols, rows)
	}

	globe := orb.Bound{Min: orb.Point{-180, -90}, Max: orb.Point{180, 90}}
	m, err = NewRasterMask(globe, 0.1, 0)
	if err != nil {
		t.Fatalf("NewRasterMask() within the default limit error = %v", err)
	}
	m.Set(179.95, -89.95)
	if !m.Includes(179.99, -89.99) {
		t.Error("last cell of a global grid should be addressable")
	}
	if m.Cardinality() != 1 {
		t.Errorf("Cardinality() = %d, want 1", m.Cardinality())
	}
}

func TestNewRasterMaskFromPolygonRejectsHugeGrid(t *testing.T) {
	square := orb.Polygon{{{-180, -90}, {180, -90}, {180, 90}, {-180, 90}, {-180, -90}}}
	if _, err := NewRasterMaskFromPolygon(square, 1e-9, 0); !errors.Is(err, ErrInvalidGeometry) {
		t.Errorf("NewRasterMaskFromPolygon() error = %v, want ErrInvalidGeometry", err)
	}
}

func TestNewRasterMaskFromPolygon(t *testing.T) {
	// Right triangle: cells above the diagonal are excluded.
	tri := orb.Polygon{{{0, 0}, {4, 0}, {0, 4}, {0, 0}}}
	mask, err := NewRasterMaskFromPolygon(tri, 1, 0)
	if err != nil {
		t.Fatalf("NewRasterMaskFromPolygon() error = %v", err)
	}
	if !mask.Includes(0.5, 0.5) {
		t.Error("cell near the right angle should be included")
	}
	if mask.Includes(3.5, 3.5) {
		t.Error("cell beyond the hypotenuse should be excluded")
	}
}

func TestMaskFunc(t *testing.T) {
	var region RegionTest = MaskFunc(func(lon, lat float64) bool { return lat > 0 })
	if !region.Includes(0, 1) || region.Includes(0, -1) {
		t.Error("MaskFunc should delegate to the predicate")
	}
	if region.Kind() != RegionRaster {
		t.Errorf("Kind() = %v, want raster", region.Kind())
	}
}
