package domain

import (
	"fmt"
	"math"

	"github.com/paulmach/orb"
)

// Geocell is a 1°x1° lat/lon partition identified by the floor of its
// south-west corner.
type Geocell struct {
	Lat int
	Lon int
}

// GeocellAt returns the cell containing the given point.
func GeocellAt(lon, lat float64) Geocell {
	return Geocell{
		Lat: int(math.Floor(lat)),
		Lon: int(math.Floor(lon)),
	}
}

// Key returns the cell name, e.g. "n45w122" or "s07e010".
func (c Geocell) Key() string {
	ns := "n"
	if c.Lat < 0 {
		ns = "s"
	}
	ew := "e"
	if c.Lon < 0 {
		ew = "w"
	}
	return fmt.Sprintf("%s%02d%s%03d", ns, absInt(c.Lat), ew, absInt(c.Lon))
}

// GeocellsForBound enumerates every cell overlapped by the bound, longitude
// outer and latitude inner. A degenerate extent still yields its own cell.
func GeocellsForBound(b orb.Bound) []Geocell {
	minLon := int(math.Floor(b.Min[0]))
	maxLon := int(math.Ceil(b.Max[0]))
	minLat := int(math.Floor(b.Min[1]))
	maxLat := int(math.Ceil(b.Max[1]))

	if maxLon <= minLon {
		maxLon = minLon + 1
	}
	if maxLat <= minLat {
		maxLat = minLat + 1
	}

	cells := make([]Geocell, 0, (maxLon-minLon)*(maxLat-minLat))
	for lon := minLon; lon < maxLon; lon++ {
		for lat := minLat; lat < maxLat; lat++ {
			cells = append(cells, Geocell{Lat: lat, Lon: lon})
		}
	}
	return cells
}

// GeocellsForGeometry returns the cells a query geometry touches. A point
// maps to exactly one cell.
func GeocellsForGeometry(g orb.Geometry) []Geocell {
	if p, ok := g.(orb.Point); ok {
		return []Geocell{GeocellAt(p[0], p[1])}
	}
	return GeocellsForBound(g.Bound())
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
