package domain

import (
	"fmt"
	"math"

	"github.com/RoaringBitmap/roaring"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// RegionKind selects the scan strategy used against a region test.
type RegionKind int

const (
	// RegionPolygon regions select one contiguous run without a mask.
	RegionPolygon RegionKind = iota
	// RegionRaster regions select the span of all hits plus a mask.
	RegionRaster
)

// String returns the kind name.
func (k RegionKind) String() string {
	switch k {
	case RegionPolygon:
		return "polygon"
	case RegionRaster:
		return "raster"
	default:
		return "unknown"
	}
}

// RegionTest decides whether a lon/lat coordinate lies inside a query region.
type RegionTest interface {
	Includes(lon, lat float64) bool
	Kind() RegionKind
}

// PolygonRegion tests points against one or more closed polygons.
type PolygonRegion struct {
	polygons orb.MultiPolygon
	bound    orb.Bound
}

// NewPolygonRegion creates a region from a ring of lon/lat vertices. The last
// vertex closes to the first implicitly.
func NewPolygonRegion(ring orb.Ring) (*PolygonRegion, error) {
	ring = closeRing(ring)
	if len(ring) < 4 {
		return nil, fmt.Errorf("%w: polygon needs at least three vertices", ErrInvalidGeometry)
	}
	return &PolygonRegion{
		polygons: orb.MultiPolygon{orb.Polygon{ring}},
		bound:    ring.Bound(),
	}, nil
}

// NewPolygonRegionFromGeometry creates a region from a Polygon, MultiPolygon
// or Bound.
func NewPolygonRegionFromGeometry(g orb.Geometry) (*PolygonRegion, error) {
	var mp orb.MultiPolygon
	switch v := g.(type) {
	case orb.Polygon:
		mp = orb.MultiPolygon{v}
	case orb.MultiPolygon:
		mp = v
	case orb.Bound:
		mp = orb.MultiPolygon{v.ToPolygon()}
	default:
		return nil, fmt.Errorf("%w: region must be polygonal", ErrInvalidGeometry)
	}

	closed := make(orb.MultiPolygon, 0, len(mp))
	for _, poly := range mp {
		if len(poly) == 0 {
			return nil, fmt.Errorf("%w: empty polygon", ErrInvalidGeometry)
		}
		rings := make(orb.Polygon, len(poly))
		for i, r := range poly {
			rings[i] = closeRing(r)
		}
		if len(rings[0]) < 4 {
			return nil, fmt.Errorf("%w: polygon needs at least three vertices", ErrInvalidGeometry)
		}
		closed = append(closed, rings)
	}
	return &PolygonRegion{polygons: closed, bound: closed.Bound()}, nil
}

// Includes implements RegionTest.
func (r *PolygonRegion) Includes(lon, lat float64) bool {
	p := orb.Point{lon, lat}
	if !r.bound.Contains(p) {
		return false
	}
	return planar.MultiPolygonContains(r.polygons, p)
}

// Kind implements RegionTest.
func (r *PolygonRegion) Kind() RegionKind {
	return RegionPolygon
}

func closeRing(ring orb.Ring) orb.Ring {
	if len(ring) > 0 && !ring[0].Equal(ring[len(ring)-1]) {
		closed := make(orb.Ring, len(ring), len(ring)+1)
		copy(closed, ring)
		ring = append(closed, ring[0])
	}
	return ring
}

// RasterMask is a regular lon/lat grid of included cells. Row 0 is the
// northern edge.
type RasterMask struct {
	bound    orb.Bound
	cellSize float64
	cols     int
	rows     int
	cells    *roaring.Bitmap
}

// DefaultMaxMaskCells bounds the grid of a raster mask when no limit is
// configured.
const DefaultMaxMaskCells = 1 << 24

// NewRasterMask creates an empty mask covering bound at cellSize degrees.
// Grids with more than maxCells cells are rejected; maxCells <= 0 means
// DefaultMaxMaskCells.
func NewRasterMask(bound orb.Bound, cellSize float64, maxCells int64) (*RasterMask, error) {
	if cellSize <= 0 || math.IsNaN(cellSize) || math.IsInf(cellSize, 0) {
		return nil, fmt.Errorf("%w: cell size must be positive", ErrInvalidGeometry)
	}
	if maxCells <= 0 {
		maxCells = DefaultMaxMaskCells
	}
	maxCells = min(maxCells, math.MaxUint32)

	// Dimensions stay float until they are known to fit.
	w := math.Ceil((bound.Max[0] - bound.Min[0]) / cellSize)
	h := math.Ceil((bound.Max[1] - bound.Min[1]) / cellSize)
	if !(w >= 1 && h >= 1) {
		return nil, fmt.Errorf("%w: mask extent is empty", ErrInvalidGeometry)
	}
	if w > float64(maxCells) || h > float64(maxCells) {
		return nil, fmt.Errorf("%w: mask exceeds %d cells", ErrInvalidGeometry, maxCells)
	}
	cols, rows := int64(w), int64(h)
	if cols > maxCells/rows {
		return nil, fmt.Errorf("%w: mask exceeds %d cells", ErrInvalidGeometry, maxCells)
	}

	return &RasterMask{
		bound:    bound,
		cellSize: cellSize,
		cols:     int(cols),
		rows:     int(rows),
		cells:    roaring.New(),
	}, nil
}

// NewRasterMaskFromPolygon rasterizes a polygon: a cell is included when its
// centre lies inside the polygon. maxCells is passed to NewRasterMask.
func NewRasterMaskFromPolygon(g orb.Geometry, cellSize float64, maxCells int64) (*RasterMask, error) {
	region, err := NewPolygonRegionFromGeometry(g)
	if err != nil {
		return nil, err
	}
	m, err := NewRasterMask(region.bound, cellSize, maxCells)
	if err != nil {
		return nil, err
	}
	for row := 0; row < m.rows; row++ {
		lat := m.bound.Max[1] - (float64(row)+0.5)*cellSize
		for col := 0; col < m.cols; col++ {
			lon := m.bound.Min[0] + (float64(col)+0.5)*cellSize
			if region.Includes(lon, lat) {
				m.SetCell(col, row)
			}
		}
	}
	return m, nil
}

// Size returns the grid dimensions.
func (m *RasterMask) Size() (cols, rows int) {
	return m.cols, m.rows
}

// SetCell marks a grid cell as included.
func (m *RasterMask) SetCell(col, row int) {
	if col < 0 || col >= m.cols || row < 0 || row >= m.rows {
		return
	}
	m.cells.Add(m.index(col, row))
}

// Set marks the cell containing lon/lat as included.
func (m *RasterMask) Set(lon, lat float64) {
	if col, row, ok := m.cellOf(lon, lat); ok {
		m.SetCell(col, row)
	}
}

// Includes implements RegionTest.
func (m *RasterMask) Includes(lon, lat float64) bool {
	col, row, ok := m.cellOf(lon, lat)
	if !ok {
		return false
	}
	return m.cells.Contains(m.index(col, row))
}

// index returns the cell number of an in-range cell. cols*rows fits in a
// uint32 by construction.
func (m *RasterMask) index(col, row int) uint32 {
	return uint32(int64(row)*int64(m.cols) + int64(col)) //#nosec G115 -- bounded at construction
}

// Kind implements RegionTest.
func (m *RasterMask) Kind() RegionKind {
	return RegionRaster
}

// Cardinality returns the number of included cells.
func (m *RasterMask) Cardinality() uint64 {
	return m.cells.GetCardinality()
}

func (m *RasterMask) cellOf(lon, lat float64) (int, int, bool) {
	if !m.bound.Contains(orb.Point{lon, lat}) {
		return 0, 0, false
	}
	col := int((lon - m.bound.Min[0]) / m.cellSize)
	row := int((m.bound.Max[1] - lat) / m.cellSize)
	if col >= m.cols {
		col = m.cols - 1
	}
	if row >= m.rows {
		row = m.rows - 1
	}
	return col, row, true
}

// MaskFunc adapts a plain predicate to a raster-style RegionTest.
type MaskFunc func(lon, lat float64) bool

// Includes implements RegionTest.
func (f MaskFunc) Includes(lon, lat float64) bool {
	return f(lon, lat)
}

// Kind implements RegionTest.
func (f MaskFunc) Kind() RegionKind {
	return RegionRaster
}
