package domain

import (
	"time"

	"github.com/paulmach/orb"
)

// GroupsRequest asks which rasters of a dataset intersect a geometry.
type GroupsRequest struct {
	Dataset  string       // Dataset profile name
	Geometry orb.Geometry // Point, MultiPoint or polygonal query
	Bands    []string     // Band filter; may carry a discriminator value
	Flags    bool         // Include auxiliary flags rasters
	Filter   GroupFilter  // Post-resolution filter
	Catalog  []byte       // Inline GeoJSON catalog for inline datasets
}

// GroupsResponse is the ordered result of a catalog resolution.
type GroupsResponse struct {
	Dataset        string
	Selector       string          // Discriminator value used, if any
	Groups         []RasterGroup   // In catalog order
	Files          *FileDictionary // Resolves the FileIDs of Groups
	CatalogSize    int             // Features in the catalog that was scanned
	ProcessingTime time.Duration
}

// TotalRasters returns the number of raster entries across all groups.
func (r *GroupsResponse) TotalRasters() int {
	n := 0
	for i := range r.Groups {
		n += len(r.Groups[i].Infos)
	}
	return n
}

// Geolocation is a per-record lon/lat array read from a science file, with
// optional per-element weights and reference ids.
type Geolocation struct {
	Lat     []float64
	Lon     []float64
	Weights []int64 // e.g. photons per segment; nil for unweighted arrays
	RefIDs  []int64 // e.g. reference-feature id per element
}

// Len returns the number of elements.
func (g Geolocation) Len() int {
	return len(g.Lat)
}

// SubsetRequest trims a geolocation array to a region.
type SubsetRequest struct {
	Beam        string     // Caller label, echoed back
	Geo         Geolocation
	Region      RegionTest // nil selects the whole (ref-id narrowed) array
	RefID       *int64     // Reference-id prefilter
	SkipZeroLat bool       // Latitude 0 marks a missing record
}

// SubsetResponse is the outcome of one subset.
type SubsetResponse struct {
	Beam      string
	Selection WeightedSelection
	Elements  int  // Input length
	Empty     bool // Nothing selected; the read must be skipped
}
