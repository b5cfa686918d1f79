package http //nolint:revive // package name conflicts with stdlib but is acceptable in this context

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/paulmach/orb"

	"github.com/jobrunner/tessera/internal/domain"
)

// groupsRequestBody is the body of POST /api/v1/datasets/{name}/groups.
type groupsRequestBody struct {
	// Geometry is WKT when given as a JSON string, GeoJSON when given as an
	// object.
	Geometry json.RawMessage `json:"geometry"`
	Bands    []string        `json:"bands,omitempty"`
	Flags    bool            `json:"flags,omitempty"`
	Catalog  json.RawMessage `json:"catalog,omitempty"`
	Filter   *filterBody     `json:"filter,omitempty"`
}

type filterBody struct {
	Start          *time.Time `json:"start,omitempty"`
	Stop           *time.Time `json:"stop,omitempty"`
	URLSubstring   string     `json:"url_substring,omitempty"`
	DOYStart       int        `json:"doy_start,omitempty"`
	DOYEnd         int        `json:"doy_end,omitempty"`
	DOYKeepInRange bool       `json:"doy_keep_in_range,omitempty"`
	ClosestTime    *time.Time `json:"closest_time,omitempty"`
}

func (b *groupsRequestBody) toDomain(dataset string) (domain.GroupsRequest, error) {
	g, err := parseGeometryField(b.Geometry)
	if err != nil {
		return domain.GroupsRequest{}, err
	}
	req := domain.GroupsRequest{
		Dataset:  dataset,
		Geometry: g,
		Bands:    b.Bands,
		Flags:    b.Flags,
	}
	if !isNull(b.Catalog) {
		req.Catalog = []byte(b.Catalog)
	}
	if b.Filter != nil {
		req.Filter = b.Filter.toDomain()
	}
	return req, nil
}

func (f *filterBody) toDomain() domain.GroupFilter {
	filter := domain.GroupFilter{
		URLSubstring:   f.URLSubstring,
		DOYStart:       f.DOYStart,
		DOYEnd:         f.DOYEnd,
		DOYKeepInRange: f.DOYKeepInRange,
	}
	if f.Start != nil {
		filter.Start = *f.Start
	}
	if f.Stop != nil {
		filter.Stop = *f.Stop
	}
	if f.ClosestTime != nil {
		filter.ClosestTime = *f.ClosestTime
	}
	return filter
}

type groupsResponseBody struct {
	Dataset          string      `json:"dataset"`
	Selector         string      `json:"selector,omitempty"`
	CatalogSize      int         `json:"catalog_size"`
	TotalRasters     int         `json:"total_rasters"`
	ProcessingTimeMS int64       `json:"processing_time_ms"`
	Files            []string    `json:"files"`
	Groups           []groupBody `json:"groups"`
}

type groupBody struct {
	ID      string       `json:"id,omitempty"`
	Time    *time.Time   `json:"time,omitempty"`
	Rasters []rasterBody `json:"rasters"`
}

type rasterBody struct {
	Tag        domain.RasterTag `json:"tag"`
	Band       string           `json:"band,omitempty"`
	BandNumber int              `json:"band_number"`
	FileID     domain.FileID    `json:"file_id"`
	Path       string           `json:"path"`
}

func newGroupsResponseBody(resp *domain.GroupsResponse) groupsResponseBody {
	body := groupsResponseBody{
		Dataset:          resp.Dataset,
		Selector:         resp.Selector,
		CatalogSize:      resp.CatalogSize,
		TotalRasters:     resp.TotalRasters(),
		ProcessingTimeMS: resp.ProcessingTime.Milliseconds(),
		Files:            []string{},
		Groups:           make([]groupBody, len(resp.Groups)),
	}
	if resp.Files != nil {
		body.Files = resp.Files.Paths()
	}

	for i := range resp.Groups {
		g := &resp.Groups[i]
		gb := groupBody{ID: g.ID, Rasters: make([]rasterBody, len(g.Infos))}
		if g.HasTime() {
			t := g.AcquisitionTime.UTC()
			gb.Time = &t
		}
		for j, info := range g.Infos {
			rb := rasterBody{
				Tag:        info.Tag,
				Band:       info.Band,
				BandNumber: info.BandNumber,
				FileID:     info.FileID,
			}
			if resp.Files != nil {
				rb.Path = resp.Files.Resolve(info.FileID)
			}
			gb.Rasters[j] = rb
		}
		body.Groups[i] = gb
	}
	return body
}

// subsetRequestBody is the body of POST /api/v1/subset and one entry of a
// beams request.
type subsetRequestBody struct {
	Beam        string      `json:"beam,omitempty"`
	Lat         []float64   `json:"lat"`
	Lon         []float64   `json:"lon"`
	Weights     []int64     `json:"weights,omitempty"`
	RefIDs      []int64     `json:"ref_ids,omitempty"`
	RefID       *int64      `json:"ref_id,omitempty"`
	SkipZeroLat bool        `json:"skip_zero_lat,omitempty"`
	Region      *regionBody `json:"region,omitempty"`
}

// regionBody holds exactly one of a polygon geometry, a bare lon/lat ring or
// a raster mask.
type regionBody struct {
	Polygon json.RawMessage   `json:"polygon,omitempty"`
	Ring    orb.Ring          `json:"ring,omitempty"` // closes implicitly
	Raster  *rasterRegionBody `json:"raster,omitempty"`
}

type rasterRegionBody struct {
	Geometry json.RawMessage `json:"geometry"`
	CellSize float64         `json:"cell_size"`
}

type subsetBeamsRequestBody struct {
	Region *regionBody         `json:"region,omitempty"` // applies to beams without their own region
	Beams  []subsetRequestBody `json:"beams"`
}

func (b *subsetRequestBody) toDomain(fallback *regionBody, maxCells int64) (domain.SubsetRequest, error) {
	rb := b.Region
	if rb == nil {
		rb = fallback
	}
	region, err := rb.toDomain(maxCells)
	if err != nil {
		return domain.SubsetRequest{}, err
	}
	return domain.SubsetRequest{
		Beam: b.Beam,
		Geo: domain.Geolocation{
			Lat:     b.Lat,
			Lon:     b.Lon,
			Weights: b.Weights,
			RefIDs:  b.RefIDs,
		},
		Region:      region,
		RefID:       b.RefID,
		SkipZeroLat: b.SkipZeroLat,
	}, nil
}

func (r *regionBody) toDomain(maxCells int64) (domain.RegionTest, error) {
	if r == nil {
		return nil, nil
	}
	hasPolygon := !isNull(r.Polygon)
	hasRing := r.Ring != nil
	set := 0
	for _, ok := range []bool{hasPolygon, hasRing, r.Raster != nil} {
		if ok {
			set++
		}
	}
	if set > 1 {
		return nil, fmt.Errorf("%w: region takes one of polygon, ring or raster", domain.ErrInvalidRequest)
	}

	switch {
	case hasPolygon:
		g, err := parseGeometryField(r.Polygon)
		if err != nil {
			return nil, err
		}
		return domain.NewPolygonRegionFromGeometry(g)
	case hasRing:
		return domain.NewPolygonRegion(r.Ring)
	case r.Raster != nil:
		if isNull(r.Raster.Geometry) {
			return nil, fmt.Errorf("%w: raster region needs a geometry", domain.ErrInvalidGeometry)
		}
		g, err := parseGeometryField(r.Raster.Geometry)
		if err != nil {
			return nil, err
		}
		return domain.NewRasterMaskFromPolygon(g, r.Raster.CellSize, maxCells)
	}
	return nil, nil
}

type subsetResponseBody struct {
	Beam        string `json:"beam,omitempty"`
	Empty       bool   `json:"empty"`
	Elements    int    `json:"elements"`
	FirstIndex  int64  `json:"first_index"`
	Count       int64  `json:"count"`
	Selected    int64  `json:"selected"`
	FirstWeight int64  `json:"first_weight"`
	WeightCount int64  `json:"weight_count"`
	Mask        []bool `json:"mask,omitempty"`
}

func newSubsetResponseBody(resp *domain.SubsetResponse) subsetResponseBody {
	sel := resp.Selection
	body := subsetResponseBody{
		Beam:        resp.Beam,
		Empty:       resp.Empty,
		Elements:    resp.Elements,
		FirstIndex:  sel.FirstIndex,
		Count:       sel.Count,
		Selected:    sel.Selected(),
		FirstWeight: sel.FirstWeight,
		WeightCount: sel.WeightCount,
	}
	if sel.Mask != nil {
		body.Mask = sel.Mask.Bools()
	}
	return body
}

type datasetBody struct {
	Name          string                `json:"name"`
	Description   string                `json:"description,omitempty"`
	Locator       domain.LocatorMode    `json:"locator"`
	BandMode      domain.BandMode       `json:"band_mode"`
	Bands         []string              `json:"bands,omitempty"`
	DefaultBands  []string              `json:"default_bands,omitempty"`
	FlagsBand     string                `json:"flags_band,omitempty"`
	HasFlags      bool                  `json:"has_flags"`
	Discriminator *domain.Discriminator `json:"discriminator,omitempty"`
	License       *domain.License       `json:"license,omitempty"`
}

func newDatasetBody(p *domain.DatasetProfile) datasetBody {
	body := datasetBody{
		Name:          p.Name,
		Description:   p.Description,
		Locator:       p.Locator,
		BandMode:      p.BandMode,
		Bands:         p.Bands,
		DefaultBands:  p.DefaultBands,
		FlagsBand:     p.FlagsBand,
		HasFlags:      p.FlagsField != "" || !p.FlagsSuffix.IsZero() || p.FlagsBand != "",
		Discriminator: p.Discriminator,
	}
	if !p.License.IsEmpty() {
		license := p.License
		body.License = &license
	}
	return body
}

// parseGeometryField accepts WKT in a JSON string or an inline GeoJSON
// object. An absent field yields a nil geometry.
func parseGeometryField(raw json.RawMessage) (orb.Geometry, error) {
	if isNull(raw) {
		return nil, nil
	}
	if raw[0] == '"' {
		var text string
		if err := json.Unmarshal(raw, &text); err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrInvalidGeometry, err)
		}
		return domain.ParseGeometry(text)
	}
	return domain.ParseGeometry(string(raw))
}

func isNull(raw json.RawMessage) bool {
	return len(raw) == 0 || string(raw) == "null"
}
