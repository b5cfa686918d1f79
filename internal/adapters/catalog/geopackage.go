package catalog

import (
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkb"

	// Registers the "sqlite3" driver.
	_ "github.com/mattn/go-sqlite3"

	"github.com/jobrunner/tessera/internal/domain"
)

// Errors returned while decoding GeoPackage geometry blobs.
var (
	errNotGeoPackageBlob = errors.New("not a GeoPackage geometry blob")
	errEmptyGeometry     = errors.New("empty geometry")
)

// readGeoPackage loads the first feature table of the GeoPackage at path.
func readGeoPackage(ctx context.Context, path, name string) (*domain.Catalog, error) {
	db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?mode=ro", path))
	if err != nil {
		return nil, err
	}
	defer func() { _ = db.Close() }()

	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}

	layer, err := readLayer(ctx, db)
	if err != nil {
		return nil, err
	}
	pk, fields, err := readColumns(ctx, db, layer.Name, layer.GeometryColumn)
	if err != nil {
		return nil, err
	}
	layer.Fields = fields

	features, err := readFeatures(ctx, db, layer, pk)
	if err != nil {
		return nil, err
	}

	return &domain.Catalog{Path: name, Layer: layer, Features: features}, nil
}

// readLayer reads the first feature layer from gpkg_contents.
func readLayer(ctx context.Context, db *sql.DB) (domain.Layer, error) {
	query := `
		SELECT
			c.table_name,
			g.column_name,
			g.geometry_type_name,
			g.srs_id
		FROM gpkg_contents c
		JOIN gpkg_geometry_columns g ON c.table_name = g.table_name
		WHERE c.data_type = 'features'
		ORDER BY c.rowid
		LIMIT 1
	`

	var l domain.Layer
	err := db.QueryRowContext(ctx, query).Scan(&l.Name, &l.GeometryColumn, &l.GeometryType, &l.SRID)
	if errors.Is(err, sql.ErrNoRows) {
		return l, errors.New("no feature layer")
	}
	if err != nil {
		return l, fmt.Errorf("reading layers: %w", err)
	}
	return l, nil
}

// readColumns returns the primary key column and the attribute columns of
// a feature table in schema order.
func readColumns(ctx context.Context, db *sql.DB, table, geomColumn string) (string, []string, error) {
	rows, err := db.QueryContext(ctx, fmt.Sprintf(`PRAGMA table_info("%s")`, table)) //#nosec G201 -- table name from gpkg_contents
	if err != nil {
		return "", nil, fmt.Errorf("reading columns: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var (
		pk     string
		fields []string
	)
	for rows.Next() {
		var (
			cid     int
			name    string
			ctype   string
			notNull int
			dflt    sql.NullString
			primary int
		)
		if err := rows.Scan(&cid, &name, &ctype, &notNull, &dflt, &primary); err != nil {
			return "", nil, fmt.Errorf("scanning column: %w", err)
		}
		switch {
		case primary > 0 && pk == "":
			pk = name
		case name == geomColumn:
		default:
			fields = append(fields, name)
		}
	}
	return pk, fields, rows.Err()
}

func readFeatures(ctx context.Context, db *sql.DB, layer domain.Layer, pk string) ([]domain.Feature, error) {
	rows, err := db.QueryContext(ctx, fmt.Sprintf(`SELECT * FROM "%s"`, layer.Name)) //#nosec G201 -- table name from gpkg_contents
	if err != nil {
		return nil, fmt.Errorf("reading features: %w", err)
	}
	defer func() { _ = rows.Close() }()

	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var features []domain.Feature
	for rows.Next() {
		f, err := scanFeature(rows, columns, pk, layer.GeometryColumn)
		if err != nil {
			return nil, err
		}
		if f.ID == 0 {
			f.ID = int64(len(features)) + 1
		}
		features = append(features, f)
	}
	return features, rows.Err()
}

// scanFeature scans a row into a Feature. A geometry that cannot be
// decoded leaves Geometry nil.
func scanFeature(rows *sql.Rows, columns []string, pk, geomColumn string) (domain.Feature, error) {
	values := make([]interface{}, len(columns))
	valuePtrs := make([]interface{}, len(columns))
	for i := range values {
		valuePtrs[i] = &values[i]
	}

	if err := rows.Scan(valuePtrs...); err != nil {
		return domain.Feature{}, err
	}

	feature := domain.Feature{Properties: make(map[string]interface{}, len(columns))}
	for i, col := range columns {
		switch col {
		case pk:
			if v, ok := values[i].(int64); ok {
				feature.ID = v
			}
		case geomColumn:
			if blob, ok := values[i].([]byte); ok {
				feature.Geometry, _ = decodeGeometry(blob)
			}
		default:
			if v := normalize(values[i]); v != nil {
				feature.Properties[col] = v
			}
		}
	}
	return feature, nil
}

// normalize maps driver values onto the types GeoJSON decoding produces.
func normalize(v interface{}) interface{} {
	switch t := v.(type) {
	case time.Time:
		return t.UTC().Format(time.RFC3339Nano)
	case []byte:
		return string(t)
	default:
		return v
	}
}

// decodeGeometry parses a GeoPackage binary geometry: the "GP" header,
// an optional envelope, then standard WKB.
func decodeGeometry(b []byte) (orb.Geometry, error) {
	if len(b) < 8 || b[0] != 'G' || b[1] != 'P' {
		return nil, errNotGeoPackageBlob
	}
	flags := b[3]
	if flags&0x20 != 0 {
		return nil, errors.New("extended GeoPackage geometry")
	}

	var envelope int
	switch (flags >> 1) & 0x07 {
	case 0:
	case 1:
		envelope = 32
	case 2, 3:
		envelope = 48
	case 4:
		envelope = 64
	default:
		return nil, fmt.Errorf("invalid envelope code %d", (flags>>1)&0x07)
	}

	offset := 8 + envelope
	if len(b) < offset {
		return nil, errNotGeoPackageBlob
	}
	if flags&0x10 != 0 {
		return nil, errEmptyGeometry
	}

	g, err := wkb.Unmarshal(b[offset:])
	if err != nil {
		return nil, err
	}
	if envelope > 0 && !envelopeCovers(b[8:offset], byteOrder(flags), g.Bound()) {
		return nil, errors.New("geometry outside its envelope")
	}
	return g, nil
}

func byteOrder(flags byte) binary.ByteOrder {
	if flags&0x01 != 0 {
		return binary.LittleEndian
	}
	return binary.BigEndian
}

// envelopeCovers checks the XY part of a header envelope against the
// decoded geometry.
func envelopeCovers(env []byte, order binary.ByteOrder, b orb.Bound) bool {
	read := func(i int) float64 { return math.Float64frombits(order.Uint64(env[i*8:])) }
	const eps = 1e-9
	minX, maxX, minY, maxY := read(0), read(1), read(2), read(3)
	return b.Min[0] >= minX-eps && b.Max[0] <= maxX+eps && b.Min[1] >= minY-eps && b.Max[1] <= maxY+eps
}
