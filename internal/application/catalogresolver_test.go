package application

import (
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/paulmach/orb"

	"github.com/jobrunner/tessera/internal/domain"
)

func square(minX, minY, maxX, maxY float64) orb.Polygon {
	return orb.Polygon{{{minX, minY}, {maxX, minY}, {maxX, maxY}, {minX, maxY}, {minX, minY}}}
}

func stripProfile() domain.DatasetProfile {
	return domain.DatasetProfile{
		Name:        "strips",
		Locator:     domain.LocatorInline,
		StorageRoot: "/vsis3/dems/",
		MarkerToken: "arcticdem",
		KeepMarker:  true,
		DataField:   "Dem",
		FlagsSuffix: domain.SuffixRule{From: "_dem.tif", To: "_bitmask.tif"},
		DateFields:  []string{"start_datetime", "end_datetime"},
		BandMode:    domain.BandSingle,
		BandNumber:  1,
	}
}

func stripFeature(id int64, geom orb.Geometry, dem, start, end string) domain.Feature {
	props := map[string]interface{}{"Dem": dem}
	if start != "" {
		props["start_datetime"] = start
	}
	if end != "" {
		props["end_datetime"] = end
	}
	return domain.Feature{ID: id, Geometry: geom, Properties: props}
}

func stripCatalog() *domain.Catalog {
	return &domain.Catalog{
		Path: "n61w121.geojson",
		Features: []domain.Feature{
			stripFeature(1, square(0, 0, 2, 2), "https://x/arcticdem/a_dem.tif", "2020-01-01 00:00:00", "2020-01-31 00:00:00"),
			stripFeature(2, square(5, 5, 6, 6), "https://x/arcticdem/far_dem.tif", "2020-02-01", ""),
			stripFeature(3, square(1, 1, 3, 3), "https://x/arcticdem/b_dem.tif", "2021-05-05T00:00:00Z", ""),
		},
	}
}

func groupPaths(groups []domain.RasterGroup, dict *domain.FileDictionary, tag domain.RasterTag) []string {
	var out []string
	for _, g := range groups {
		for _, info := range g.Infos {
			if info.Tag == tag {
				out = append(out, dict.Resolve(info.FileID))
			}
		}
	}
	return out
}

func TestCatalogResolverFindGroups(t *testing.T) {
	r := NewCatalogResolver(stripProfile(), nil, testLogger())
	dict := domain.NewFileDictionary()

	groups, err := r.FindGroups(stripCatalog(), GroupQuery{Geometry: square(0.5, 0.5, 1.5, 1.5), Flags: true}, dict)
	if err != nil {
		t.Fatalf("FindGroups() error = %v", err)
	}

	wantValues := []string{"/vsis3/dems/arcticdem/a_dem.tif", "/vsis3/dems/arcticdem/b_dem.tif"}
	if got := groupPaths(groups, dict, domain.TagValue); !reflect.DeepEqual(got, wantValues) {
		t.Errorf("VALUE paths = %v, want %v", got, wantValues)
	}
	wantFlags := []string{"/vsis3/dems/arcticdem/a_bitmask.tif", "/vsis3/dems/arcticdem/b_bitmask.tif"}
	if got := groupPaths(groups, dict, domain.TagFlags); !reflect.DeepEqual(got, wantFlags) {
		t.Errorf("FLAGS paths = %v, want %v", got, wantFlags)
	}

	for _, g := range groups {
		if len(g.Infos) == 0 || g.Infos[0].Tag != domain.TagValue {
			t.Errorf("group %s: first info must be VALUE, got %+v", g.ID, g.Infos)
		}
	}

	// Mean of the start/end pair.
	want := time.Date(2020, 1, 16, 0, 0, 0, 0, time.UTC)
	if !groups[0].AcquisitionTime.Equal(want) {
		t.Errorf("AcquisitionTime = %v, want %v", groups[0].AcquisitionTime, want)
	}
	if groups[0].ID != "1" {
		t.Errorf("ID = %q, want %q", groups[0].ID, "1")
	}
}

func TestCatalogResolverIdempotent(t *testing.T) {
	r := NewCatalogResolver(stripProfile(), nil, testLogger())
	q := GroupQuery{Geometry: square(0, 0, 10, 10), Flags: true}

	dict := domain.NewFileDictionary()
	first, err := r.FindGroups(stripCatalog(), q, dict)
	if err != nil {
		t.Fatalf("FindGroups() error = %v", err)
	}
	second, err := r.FindGroups(stripCatalog(), q, dict)
	if err != nil {
		t.Fatalf("FindGroups() error = %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Errorf("second resolution differs:\n%+v\n%+v", first, second)
	}
}

func TestCatalogResolverMissingDateKeepsFeature(t *testing.T) {
	catalog := &domain.Catalog{Features: []domain.Feature{
		stripFeature(1, square(0, 0, 1, 1), "/arcticdem/dated_dem.tif", "2022-03-04 05:06:07", ""),
		stripFeature(2, square(0, 0, 1, 1), "/arcticdem/undated_dem.tif", "", ""),
	}}

	r := NewCatalogResolver(stripProfile(), nil, testLogger())
	dict := domain.NewFileDictionary()
	groups, err := r.FindGroups(catalog, GroupQuery{Geometry: orb.Point{0.5, 0.5}}, dict)
	if err != nil {
		t.Fatalf("FindGroups() error = %v", err)
	}

	if len(groups) != 2 {
		t.Fatalf("len(groups) = %d, want 2", len(groups))
	}
	if !groups[0].HasTime() {
		t.Error("dated feature lost its time")
	}
	if groups[1].HasTime() {
		t.Errorf("undated feature time = %v, want zero", groups[1].AcquisitionTime)
	}
}

func TestCatalogResolverDuplicatePathOnce(t *testing.T) {
	// Neighbouring cells both list the same strip.
	catalog := &domain.Catalog{Features: []domain.Feature{
		stripFeature(1, square(0, 0, 1.2, 1), "https://x/arcticdem/shared_dem.tif", "2020-01-01", ""),
		stripFeature(2, square(0.9, 0, 2, 1), "https://x/arcticdem/shared_dem.tif", "2020-01-01", ""),
		stripFeature(3, square(1, 0, 2, 1), "https://x/arcticdem/other_dem.tif", "2020-01-01", ""),
	}}

	r := NewCatalogResolver(stripProfile(), nil, testLogger())
	dict := domain.NewFileDictionary()
	groups, err := r.FindGroups(catalog, GroupQuery{Geometry: square(0, 0, 2, 1)}, dict)
	if err != nil {
		t.Fatalf("FindGroups() error = %v", err)
	}

	want := []string{"/vsis3/dems/arcticdem/shared_dem.tif", "/vsis3/dems/arcticdem/other_dem.tif"}
	if got := groupPaths(groups, dict, domain.TagValue); !reflect.DeepEqual(got, want) {
		t.Errorf("VALUE paths = %v, want %v", got, want)
	}
}

func TestCatalogResolverNoIntersection(t *testing.T) {
	r := NewCatalogResolver(stripProfile(), nil, testLogger())
	groups, err := r.FindGroups(stripCatalog(), GroupQuery{Geometry: orb.Point{50, 50}}, domain.NewFileDictionary())
	if err != nil {
		t.Fatalf("FindGroups() error = %v, want nil", err)
	}
	if len(groups) != 0 {
		t.Errorf("len(groups) = %d, want 0", len(groups))
	}
}

func TestCatalogResolverSkipsBadFeatures(t *testing.T) {
	catalog := &domain.Catalog{Features: []domain.Feature{
		stripFeature(1, square(0, 0, 1, 1), "https://elsewhere/x_dem.tif", "", ""),
		{ID: 2, Geometry: square(0, 0, 1, 1), Properties: map[string]interface{}{"Dem": nil}},
		{ID: 3, Properties: map[string]interface{}{"Dem": "/arcticdem/nogeom_dem.tif"}},
		stripFeature(4, square(0, 0, 1, 1), "/arcticdem/good_dem.tif", "", ""),
	}}

	metrics := &recordingMetrics{}
	r := NewCatalogResolver(stripProfile(), metrics, testLogger())
	dict := domain.NewFileDictionary()
	groups, err := r.FindGroups(catalog, GroupQuery{Geometry: orb.Point{0.5, 0.5}}, dict)
	if err != nil {
		t.Fatalf("FindGroups() error = %v", err)
	}

	if len(groups) != 1 || groups[0].ID != "4" {
		t.Fatalf("groups = %+v, want only feature 4", groups)
	}
	if metrics.skipped["marker"] != 1 || metrics.skipped["malformed"] != 2 {
		t.Errorf("skipped = %v, want marker:1 malformed:2", metrics.skipped)
	}
}

func TestCatalogResolverFlagsField(t *testing.T) {
	p := stripProfile()
	p.FlagsField = "Flags"
	p.MaskField = "Mask"

	catalog := &domain.Catalog{Features: []domain.Feature{
		{ID: 1, Geometry: square(0, 0, 1, 1), Properties: map[string]interface{}{
			"Dem":   "/arcticdem/a_dem.tif",
			"Flags": "/arcticdem/a_quality.tif",
			"Mask":  "/arcticdem/a_mask.tif",
		}},
		{ID: 2, Geometry: square(0, 0, 1, 1), Properties: map[string]interface{}{
			"Dem": "/arcticdem/b_dem.tif",
		}},
	}}

	r := NewCatalogResolver(p, nil, testLogger())
	dict := domain.NewFileDictionary()
	groups, err := r.FindGroups(catalog, GroupQuery{Geometry: orb.Point{0.5, 0.5}, Flags: true}, dict)
	if err != nil {
		t.Fatalf("FindGroups() error = %v", err)
	}

	tags := func(g domain.RasterGroup) []domain.RasterTag {
		var out []domain.RasterTag
		for _, info := range g.Infos {
			out = append(out, info.Tag)
		}
		return out
	}
	if got, want := tags(groups[0]), []domain.RasterTag{domain.TagValue, domain.TagFlags, domain.TagMask}; !reflect.DeepEqual(got, want) {
		t.Errorf("feature 1 tags = %v, want %v", got, want)
	}
	// Without a flags attribute the auxiliary entry is omitted, not an error.
	if got, want := tags(groups[1]), []domain.RasterTag{domain.TagValue}; !reflect.DeepEqual(got, want) {
		t.Errorf("feature 2 tags = %v, want %v", got, want)
	}
}

func TestCatalogResolverLayeredBands(t *testing.T) {
	var p domain.DatasetProfile
	for _, b := range domain.BuiltinProfiles() {
		if b.Name == domain.DatasetBlueTopo {
			p = b
		}
	}
	catalog := &domain.Catalog{Features: []domain.Feature{{
		ID:       1,
		Geometry: square(-71, 41, -70, 42),
		Properties: map[string]interface{}{
			"tile":           "BH4PQ58F",
			"GeoTIFF_link":   "https://noaa.s3.amazonaws.com/BlueTopo/BH4PQ58F/BlueTopo_BH4PQ58F.tiff",
			"Delivered_Date": "2023-09-12 14:30:00",
		},
	}}}

	r := NewCatalogResolver(p, nil, testLogger())

	tests := []struct {
		name  string
		bands []string
		want  []int
	}{
		{"default band", nil, []int{1}},
		{"explicit", []string{"Contributor", "Uncertainty"}, []int{3, 2}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dict := domain.NewFileDictionary()
			groups, err := r.FindGroups(catalog, GroupQuery{Geometry: orb.Point{-70.5, 41.5}, Bands: tt.bands}, dict)
			if err != nil {
				t.Fatalf("FindGroups() error = %v", err)
			}
			if len(groups) != 1 {
				t.Fatalf("len(groups) = %d, want 1", len(groups))
			}
			var got []int
			for _, info := range groups[0].Infos {
				got = append(got, info.BandNumber)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("band numbers = %v, want %v", got, tt.want)
			}
			if groups[0].ID != "BH4PQ58F" {
				t.Errorf("ID = %q", groups[0].ID)
			}
			if path := dict.Resolve(groups[0].Infos[0].FileID); path != "/vsis3/noaa-ocs-nationalbathymetry-pds/BlueTopo/BH4PQ58F/BlueTopo_BH4PQ58F.tiff" {
				t.Errorf("path = %q", path)
			}
		})
	}

	_, err := r.FindGroups(catalog, GroupQuery{Geometry: orb.Point{-70.5, 41.5}, Bands: []string{"Depth"}}, domain.NewFileDictionary())
	if !errors.Is(err, domain.ErrInvalidBand) {
		t.Errorf("unknown band error = %v, want ErrInvalidBand", err)
	}
}

func TestCatalogResolverFieldedBands(t *testing.T) {
	var p domain.DatasetProfile
	for _, b := range domain.BuiltinProfiles() {
		if b.Name == domain.DatasetLandsatHLS {
			p = b
		}
	}
	const url = "https://data.lpdaac.earthdatacloud.nasa.gov/lp-prod-protected/HLSS30.020/T10"
	catalog := &domain.Catalog{Features: []domain.Feature{{
		ID:       1,
		Geometry: square(-122, 37, -121, 38),
		Properties: map[string]interface{}{
			"id":       "HLS.S30.T10SEG.2021182T184919.v2.0",
			"datetime": "2021-07-01T18:49:19Z",
			"B02":      url + "/B02.tif",
			"B8A":      url + "/B8A.tif",
			"Fmask":    url + "/Fmask.tif",
		},
	}}}

	r := NewCatalogResolver(p, nil, testLogger())
	dict := domain.NewFileDictionary()
	groups, err := r.FindGroups(catalog, GroupQuery{Geometry: orb.Point{-121.5, 37.5}, Bands: []string{"B02", "B8A", "B03", "Fmask"}}, dict)
	if err != nil {
		t.Fatalf("FindGroups() error = %v", err)
	}
	if len(groups) != 1 {
		t.Fatalf("len(groups) = %d, want 1", len(groups))
	}

	var got []string
	for _, info := range groups[0].Infos {
		got = append(got, info.Tag.String()+":"+info.Band)
	}
	// B03 is missing from the feature and is dropped.
	want := []string{"VALUE:B02", "VALUE:B8A", "FLAGS:Fmask"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("infos = %v, want %v", got, want)
	}
	if path := dict.Resolve(groups[0].Infos[0].FileID); path != "/vsis3/lp-prod-protected/HLSS30.020/T10/B02.tif" {
		t.Errorf("B02 path = %q", path)
	}

	if _, err := r.FindGroups(catalog, GroupQuery{Geometry: orb.Point{-121.5, 37.5}}, dict); !errors.Is(err, domain.ErrInvalidBand) {
		t.Errorf("no bands error = %v, want ErrInvalidBand", err)
	}
}

func TestCatalogResolverDiscriminatorField(t *testing.T) {
	p := domain.DatasetProfile{
		Name:      "bathy",
		Locator:   domain.LocatorInline,
		DataField: "raster",
		BandMode:  domain.BandSingle,
		Discriminator: &domain.Discriminator{
			Field:   "release",
			Values:  []string{"2023", "2024"},
			Default: "2024",
		},
	}
	catalog := &domain.Catalog{Features: []domain.Feature{
		{ID: 1, Geometry: square(0, 0, 1, 1), Properties: map[string]interface{}{"raster": "/r/2023.tif", "release": "2023"}},
		{ID: 2, Geometry: square(0, 0, 1, 1), Properties: map[string]interface{}{"raster": "/r/2024.tif", "release": 2024.0}},
	}}

	r := NewCatalogResolver(p, nil, testLogger())
	dict := domain.NewFileDictionary()
	groups, err := r.FindGroups(catalog, GroupQuery{Geometry: orb.Point{0.5, 0.5}, Selector: "2024"}, dict)
	if err != nil {
		t.Fatalf("FindGroups() error = %v", err)
	}
	if got := groupPaths(groups, dict, domain.TagValue); !reflect.DeepEqual(got, []string{"/r/2024.tif"}) {
		t.Errorf("paths = %v, want [/r/2024.tif]", got)
	}
}

func TestCatalogResolverRejectsMissingInput(t *testing.T) {
	r := NewCatalogResolver(stripProfile(), nil, testLogger())

	if _, err := r.FindGroups(nil, GroupQuery{Geometry: orb.Point{0, 0}}, domain.NewFileDictionary()); !errors.Is(err, domain.ErrCatalogOpen) {
		t.Errorf("nil catalog error = %v, want ErrCatalogOpen", err)
	}
	if _, err := r.FindGroups(stripCatalog(), GroupQuery{}, domain.NewFileDictionary()); !errors.Is(err, domain.ErrInvalidGeometry) {
		t.Errorf("nil geometry error = %v, want ErrInvalidGeometry", err)
	}
}
