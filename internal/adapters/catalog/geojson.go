package catalog

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/paulmach/orb/geojson"

	"github.com/jobrunner/tessera/internal/domain"
)

// decodeGeoJSON builds a catalog from a FeatureCollection, or from a single
// Feature. The layer's fields are the first feature's keys in sorted order
// followed by keys first seen on later features.
func decodeGeoJSON(name, layerName string, data []byte) (*domain.Catalog, error) {
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil || fc.Type != "FeatureCollection" {
		f, ferr := geojson.UnmarshalFeature(data)
		if ferr != nil || f.Type != "Feature" {
			if err == nil {
				err = fmt.Errorf("unexpected GeoJSON type %q", fc.Type)
			}
			return nil, fmt.Errorf("decoding GeoJSON: %w", err)
		}
		fc = geojson.NewFeatureCollection().Append(f)
	}

	catalog := &domain.Catalog{
		Path: name,
		Layer: domain.Layer{
			Name: layerName,
			SRID: 4326,
		},
		Features: make([]domain.Feature, 0, len(fc.Features)),
	}

	seen := make(map[string]bool)
	for i, f := range fc.Features {
		if f == nil {
			continue
		}
		if catalog.Layer.GeometryType == "" && f.Geometry != nil {
			catalog.Layer.GeometryType = f.Geometry.GeoJSONType()
		}

		keys := make([]string, 0, len(f.Properties))
		for k := range f.Properties {
			if !seen[k] {
				keys = append(keys, k)
				seen[k] = true
			}
		}
		sort.Strings(keys)
		catalog.Layer.Fields = append(catalog.Layer.Fields, keys...)

		catalog.Features = append(catalog.Features, domain.Feature{
			ID:         featureID(f.ID, i),
			Geometry:   f.Geometry,
			Properties: map[string]interface{}(f.Properties),
		})
	}

	return catalog, nil
}

// featureID uses a numeric GeoJSON id when present, otherwise the
// feature's 1-based position.
func featureID(id interface{}, index int) int64 {
	switch v := id.(type) {
	case float64:
		if v >= 1 && v == float64(int64(v)) {
			return int64(v)
		}
	case string:
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n >= 1 {
			return n
		}
	}
	return int64(index) + 1
}
