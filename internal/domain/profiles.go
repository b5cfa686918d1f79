package domain

// Built-in dataset names.
const (
	DatasetArcticDEMStrips = "arcticdem-strips"
	DatasetREMAStrips      = "rema-strips"
	DatasetBlueTopo        = "bluetopo"
	DatasetLandsatHLS      = "landsat-hls"
	DatasetGEBCO           = "gebco"
)

var (
	hlsBands = []string{
		"B01", "B02", "B03", "B04", "B05", "B06", "B07", "B08", "B09",
		"B10", "B11", "B12", "B8A", "SAA", "SZA", "VAA", "VZA",
	}
	hlsAlgorithmBands = []string{"B03", "B04", "B05", "B06", "B8A", "B11"}
)

// BuiltinProfiles returns the datasets known without configuration.
// Configured profiles with the same name replace these.
func BuiltinProfiles() []DatasetProfile {
	return []DatasetProfile{
		{
			Name:          DatasetArcticDEMStrips,
			Description:   "ArcticDEM 2m strips indexed per 1° geocell",
			Locator:       LocatorGeocell,
			GeocellDir:    "arcticdem/strips/s2s041/2m/geocells",
			CatalogSuffix: ".geojson",
			StorageRoot:   "/vsis3/pgc-opendata-dems/",
			MarkerToken:   "arcticdem",
			KeepMarker:    true,
			DataField:     "Dem",
			FlagsSuffix:   SuffixRule{From: "_dem.tif", To: "_bitmask.tif"},
			DateFields:    []string{"start_datetime", "end_datetime"},
			BandMode:      BandSingle,
			BandNumber:    1,
			License:       License{Name: "CC BY 4.0", Attribution: "DEMs provided by the Polar Geospatial Center"},
		},
		{
			Name:          DatasetREMAStrips,
			Description:   "REMA 2m strips indexed per 1° geocell",
			Locator:       LocatorGeocell,
			GeocellDir:    "rema/strips/s2s041/2m/geocells",
			CatalogSuffix: ".geojson",
			StorageRoot:   "/vsis3/pgc-opendata-dems/",
			MarkerToken:   "rema",
			KeepMarker:    true,
			DataField:     "Dem",
			FlagsSuffix:   SuffixRule{From: "_dem.tif", To: "_bitmask.tif"},
			DateFields:    []string{"start_datetime", "end_datetime"},
			BandMode:      BandSingle,
			BandNumber:    1,
			License:       License{Name: "CC BY 4.0", Attribution: "DEMs provided by the Polar Geospatial Center"},
		},
		{
			Name:          DatasetBlueTopo,
			Description:   "NOAA BlueTopo bathymetry tiles",
			Locator:       LocatorListing,
			ListingPrefix: "BlueTopo/_BlueTopo_Tile_Scheme/",
			CatalogSuffix: ".gpkg",
			StorageRoot:   "/vsis3/noaa-ocs-nationalbathymetry-pds/BlueTopo/",
			MarkerToken:   ".amazonaws.com/BlueTopo/",
			DataField:     "GeoTIFF_link",
			IDField:       "tile",
			DateFields:    []string{"Delivered_Date"},
			BandMode:      BandLayered,
			Bands:         []string{"Elevation", "Uncertainty", "Contributor"},
			DefaultBands:  []string{"Elevation"},
		},
		{
			Name:        DatasetLandsatHLS,
			Description: "Harmonized Landsat Sentinel-2 granules from a request-supplied STAC catalog",
			Locator:     LocatorInline,
			StorageRoot: "/vsis3/lp-prod-protected",
			MarkerToken: "https://data.lpdaac.earthdatacloud.nasa.gov/lp-prod-protected",
			IDField:     "id",
			DateFields:  []string{"datetime"},
			BandMode:    BandFielded,
			Bands:       hlsBands,
			FlagsBand:   "Fmask",
			Algorithms: map[string][]string{
				"NDSI": hlsAlgorithmBands,
				"NDVI": hlsAlgorithmBands,
				"NDWI": hlsAlgorithmBands,
			},
		},
		{
			Name:        DatasetGEBCO,
			Description: "GEBCO global bathymetry, one catalog per release year",
			Locator:     LocatorFixed,
			CatalogPath: "gebco/" + SelectorPlaceholder + "/index.geojson",
			StorageRoot: "/vsis3/sliderule/data/GEBCO/" + SelectorPlaceholder + "/",
			DataField:   "raster",
			DateFields:  []string{"datetime"},
			BandMode:    BandSingle,
			BandNumber:  1,
			Discriminator: &Discriminator{
				Values:  []string{"2023", "2024"},
				Default: "2024",
			},
		},
	}
}
