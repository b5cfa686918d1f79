package catalog

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkb"

	"github.com/jobrunner/tessera/internal/adapters/storage"
	"github.com/jobrunner/tessera/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func square(minX, minY, maxX, maxY float64) orb.Polygon {
	return orb.Polygon{{{minX, minY}, {maxX, minY}, {maxX, maxY}, {minX, maxY}, {minX, minY}}}
}

// gpBlob encodes g as a little-endian GeoPackage blob with an XY envelope.
func gpBlob(t *testing.T, g orb.Geometry) []byte {
	t.Helper()
	body, err := wkb.Marshal(g, binary.LittleEndian)
	if err != nil {
		t.Fatalf("wkb.Marshal failed: %v", err)
	}
	b := g.Bound()
	var buf bytes.Buffer
	buf.Write([]byte{'G', 'P', 0, 0x01 | 1<<1})
	_ = binary.Write(&buf, binary.LittleEndian, int32(4326))
	for _, v := range []float64{b.Min[0], b.Max[0], b.Min[1], b.Max[1]} {
		_ = binary.Write(&buf, binary.LittleEndian, math.Float64bits(v))
	}
	buf.Write(body)
	return buf.Bytes()
}

type gpkgRow struct {
	geom     []byte
	raster   string
	datetime string
}

// writeGeoPackage creates a minimal GeoPackage with one feature table.
func writeGeoPackage(t *testing.T, path string, rows ...gpkgRow) {
	t.Helper()
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer func() { _ = db.Close() }()

	stmts := []string{
		`CREATE TABLE gpkg_contents (table_name TEXT PRIMARY KEY, data_type TEXT NOT NULL, identifier TEXT, description TEXT, min_x DOUBLE, min_y DOUBLE, max_x DOUBLE, max_y DOUBLE, srs_id INTEGER)`,
		`CREATE TABLE gpkg_geometry_columns (table_name TEXT NOT NULL, column_name TEXT NOT NULL, geometry_type_name TEXT NOT NULL, srs_id INTEGER NOT NULL, z TINYINT NOT NULL, m TINYINT NOT NULL)`,
		`CREATE TABLE tiles (fid INTEGER PRIMARY KEY AUTOINCREMENT, geom BLOB, raster TEXT, datetime DATETIME)`,
		`INSERT INTO gpkg_contents (table_name, data_type, srs_id) VALUES ('tiles', 'features', 4326)`,
		`INSERT INTO gpkg_geometry_columns VALUES ('tiles', 'geom', 'POLYGON', 4326, 0, 0)`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			t.Fatalf("exec %q: %v", s, err)
		}
	}
	for _, r := range rows {
		if _, err := db.Exec(`INSERT INTO tiles (geom, raster, datetime) VALUES (?, ?, ?)`, r.geom, r.raster, r.datetime); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}
}

func TestReaderOpenGeoPackage(t *testing.T) {
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "cells"), 0755); err != nil {
		t.Fatal(err)
	}
	writeGeoPackage(t, filepath.Join(dir, "cells", "n45e010.gpkg"),
		gpkgRow{gpBlob(t, square(10, 45, 10.5, 45.5)), "tile_a.tif", "2021-06-01 00:00:00"},
		gpkgRow{[]byte("garbage"), "tile_b.tif", "2021-06-02 00:00:00"},
	)

	reader := NewReader(storage.NewLocalStorage(dir), t.TempDir(), testLogger())
	catalog, err := reader.Open(context.Background(), "cells/n45e010.gpkg")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	if catalog.Layer.Name != "tiles" || catalog.Layer.GeometryColumn != "geom" || catalog.Layer.SRID != 4326 {
		t.Errorf("Layer = %+v", catalog.Layer)
	}
	if len(catalog.Layer.Fields) != 2 || catalog.Layer.Fields[0] != "raster" || catalog.Layer.Fields[1] != "datetime" {
		t.Errorf("Fields = %v, want [raster datetime]", catalog.Layer.Fields)
	}
	if catalog.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", catalog.Len())
	}

	first := catalog.Features[0]
	if first.ID != 1 || first.GetStringProperty("raster") != "tile_a.tif" {
		t.Errorf("first feature = %+v", first)
	}
	if !strings.HasPrefix(first.GetStringProperty("datetime"), "2021-06-01") {
		t.Errorf("datetime = %q", first.GetStringProperty("datetime"))
	}
	if first.Geometry == nil || !first.Geometry.Bound().Contains(orb.Point{10.25, 45.25}) {
		t.Errorf("geometry = %v", first.Geometry)
	}
	if catalog.Features[1].Geometry != nil {
		t.Error("an undecodable geometry should be left nil")
	}
}

func TestReaderOpenGeoPackageDownloads(t *testing.T) {
	src := t.TempDir()
	writeGeoPackage(t, filepath.Join(src, "a.gpkg"), gpkgRow{gpBlob(t, square(0, 0, 1, 1)), "a.tif", ""})

	cache := t.TempDir()
	remote := storage.NewInstrumented(storage.NewLocalStorage(src), nil)
	reader := NewReader(remote, cache, testLogger())

	catalog, err := reader.Open(context.Background(), "a.gpkg")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if catalog.Len() != 1 {
		t.Errorf("Len() = %d, want 1", catalog.Len())
	}

	left, _ := os.ReadDir(cache)
	if len(left) != 0 {
		t.Errorf("cache dir not cleaned: %d entries", len(left))
	}
}

func TestReaderOpenGeoJSON(t *testing.T) {
	dir := t.TempDir()
	doc := `{"type":"FeatureCollection","features":[
		{"type":"Feature","id":7,"geometry":{"type":"Polygon","coordinates":[[[0,0],[1,0],[1,1],[0,1],[0,0]]]},"properties":{"raster":"a.tif","datetime":"2020-01-01"}},
		{"type":"Feature","geometry":{"type":"Polygon","coordinates":[[[1,0],[2,0],[2,1],[1,1],[1,0]]]},"properties":{"raster":"b.tif","cloud":12}}
	]}`
	if err := os.WriteFile(filepath.Join(dir, "index.geojson"), []byte(doc), 0644); err != nil {
		t.Fatal(err)
	}

	reader := NewReader(storage.NewLocalStorage(dir), "", testLogger())
	catalog, err := reader.Open(context.Background(), "index.geojson")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	wantFields := []string{"datetime", "raster", "cloud"}
	if len(catalog.Layer.Fields) != len(wantFields) {
		t.Fatalf("Fields = %v, want %v", catalog.Layer.Fields, wantFields)
	}
	for i, f := range wantFields {
		if catalog.Layer.Fields[i] != f {
			t.Errorf("Fields[%d] = %q, want %q", i, catalog.Layer.Fields[i], f)
		}
	}
	if catalog.Layer.Name != "index" || catalog.Layer.GeometryType != "Polygon" {
		t.Errorf("Layer = %+v", catalog.Layer)
	}
	if catalog.Features[0].ID != 7 || catalog.Features[1].ID != 2 {
		t.Errorf("IDs = %d, %d, want 7, 2", catalog.Features[0].ID, catalog.Features[1].ID)
	}
	if catalog.Features[1].GetStringProperty("cloud") != "12" {
		t.Errorf("cloud = %v", catalog.Features[1].Properties["cloud"])
	}
}

func TestReaderDecode(t *testing.T) {
	reader := NewReader(storage.NewLocalStorage(t.TempDir()), t.TempDir(), testLogger())
	ctx := context.Background()

	single := `{"type":"Feature","geometry":{"type":"Point","coordinates":[1,2]},"properties":{"raster":"p.tif"}}`
	catalog, err := reader.Decode(ctx, "inline", ".geojson", strings.NewReader(single))
	if err != nil {
		t.Fatalf("Decode() single feature error = %v", err)
	}
	if catalog.Len() != 1 || catalog.Features[0].GetStringProperty("raster") != "p.tif" {
		t.Errorf("Decode() = %+v", catalog)
	}

	gpkg := filepath.Join(t.TempDir(), "inline.gpkg")
	writeGeoPackage(t, gpkg, gpkgRow{gpBlob(t, square(0, 0, 1, 1)), "x.tif", ""})
	data, err := os.ReadFile(gpkg)
	if err != nil {
		t.Fatal(err)
	}
	catalog, err = reader.Decode(ctx, "inline", ".gpkg", bytes.NewReader(data))
	if err != nil {
		t.Fatalf("Decode() gpkg error = %v", err)
	}
	if catalog.Len() != 1 {
		t.Errorf("Len() = %d, want 1", catalog.Len())
	}

	tests := []struct {
		name   string
		format string
		body   string
	}{
		{"not json", ".geojson", "{"},
		{"wrong type", ".geojson", `{"type":"Point","coordinates":[0,0]}`},
		{"not sqlite", ".gpkg", "plain text"},
		{"unknown format", ".shp", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := reader.Decode(ctx, "inline", tt.format, strings.NewReader(tt.body))
			if !errors.Is(err, domain.ErrCatalogOpen) {
				t.Errorf("Decode() error = %v, want ErrCatalogOpen", err)
			}
		})
	}
}

func TestReaderOpenErrors(t *testing.T) {
	reader := NewReader(storage.NewLocalStorage(t.TempDir()), "", testLogger())
	ctx := context.Background()

	for _, key := range []string{"missing.gpkg", "missing.geojson"} {
		_, err := reader.Open(ctx, key)
		if !errors.Is(err, os.ErrNotExist) {
			t.Errorf("Open(%q) error = %v, want os.ErrNotExist", key, err)
		}
	}

	if _, err := reader.Open(ctx, "index.csv"); !errors.Is(err, domain.ErrCatalogOpen) {
		t.Errorf("Open() unsupported format error = %v", err)
	}

	canceled, cancel := context.WithCancel(ctx)
	cancel()
	if _, err := reader.Open(canceled, "index.geojson"); !errors.Is(err, context.Canceled) {
		t.Errorf("Open() canceled error = %v", err)
	}
}

func TestDecodeGeometry(t *testing.T) {
	valid := gpBlob(t, square(0, 0, 1, 1))

	bigEndian := func() []byte {
		body, _ := wkb.Marshal(orb.Point{3, 4}, binary.BigEndian)
		return append([]byte{'G', 'P', 0, 0, 0, 0, 0x10, 0xE6}, body...)
	}()

	empty := append([]byte{'G', 'P', 0, 0x01 | 0x10, 0xE6, 0x10, 0, 0}, valid[40:]...)

	outside := gpBlob(t, square(0, 0, 1, 1))
	binary.LittleEndian.PutUint64(outside[16:], math.Float64bits(0.5)) // maxX

	tests := []struct {
		name    string
		blob    []byte
		want    orb.Geometry
		wantErr bool
	}{
		{"polygon with envelope", valid, square(0, 0, 1, 1), false},
		{"big endian point", bigEndian, orb.Point{3, 4}, false},
		{"empty flag", empty, nil, true},
		{"too short", []byte("GP"), nil, true},
		{"bad magic", append([]byte("XX"), valid[2:]...), nil, true},
		{"outside envelope", outside, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := decodeGeometry(tt.blob)
			if (err != nil) != tt.wantErr {
				t.Fatalf("decodeGeometry() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && !orb.Equal(got, tt.want) {
				t.Errorf("decodeGeometry() = %v, want %v", got, tt.want)
			}
		})
	}
}
