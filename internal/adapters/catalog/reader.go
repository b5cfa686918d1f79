// Package catalog reads vector catalogs (GeoPackage and GeoJSON) from object
// storage.
package catalog

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"strings"

	"github.com/jobrunner/tessera/internal/domain"
	"github.com/jobrunner/tessera/internal/ports/output"
)

var _ output.CatalogReader = (*Reader)(nil)

// localPather is implemented by storage backends whose objects are plain
// files.
type localPather interface {
	FullPath(key string) string
}

// Reader implements output.CatalogReader.
type Reader struct {
	storage  output.ObjectStorage
	cacheDir string
	logger   *slog.Logger
}

// NewReader creates a catalog reader. GeoPackages from remote storage are
// downloaded into cacheDir for the duration of a read.
func NewReader(storage output.ObjectStorage, cacheDir string, logger *slog.Logger) *Reader {
	if cacheDir == "" {
		cacheDir = os.TempDir()
	}
	return &Reader{storage: storage, cacheDir: cacheDir, logger: logger}
}

// Open loads the catalog stored under key. The format follows the key's
// extension.
func (r *Reader) Open(ctx context.Context, key string) (*domain.Catalog, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	switch format := formatOf(key); format {
	case ".gpkg":
		return r.openGeoPackage(ctx, key)
	case ".geojson", ".json":
		rc, err := r.storage.GetReader(ctx, key)
		if err != nil {
			return nil, &domain.StorageError{Operation: "get", Key: key, Err: err}
		}
		defer func() { _ = rc.Close() }()
		return r.Decode(ctx, key, format, rc)
	default:
		return nil, &domain.CatalogError{Path: key, Err: fmt.Errorf("unsupported catalog format %q", format)}
	}
}

// Decode parses a catalog supplied in memory.
func (r *Reader) Decode(ctx context.Context, name, format string, src io.Reader) (*domain.Catalog, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	switch strings.ToLower(format) {
	case ".geojson", ".json":
		data, err := io.ReadAll(src)
		if err != nil {
			return nil, &domain.CatalogError{Path: name, Err: err}
		}
		catalog, err := decodeGeoJSON(name, layerName(name), data)
		if err != nil {
			return nil, &domain.CatalogError{Path: name, Err: err}
		}
		r.logger.Debug("decoded GeoJSON catalog", "name", name, "features", catalog.Len())
		return catalog, nil

	case ".gpkg":
		tmp, err := r.spool(src)
		if err != nil {
			return nil, &domain.CatalogError{Path: name, Err: err}
		}
		defer func() { _ = os.Remove(tmp) }()
		return r.readGeoPackage(ctx, tmp, name)

	default:
		return nil, &domain.CatalogError{Path: name, Err: fmt.Errorf("unsupported catalog format %q", format)}
	}
}

func (r *Reader) openGeoPackage(ctx context.Context, key string) (*domain.Catalog, error) {
	if lp, ok := r.storage.(localPather); ok {
		p := lp.FullPath(key)
		if _, err := os.Stat(p); err != nil {
			return nil, &domain.StorageError{Operation: "open", Key: key, Err: err}
		}
		return r.readGeoPackage(ctx, p, key)
	}

	f, err := os.CreateTemp(r.cacheDir, "catalog-*.gpkg")
	if err != nil {
		return nil, err
	}
	tmp := f.Name()
	_ = f.Close()
	defer func() { _ = os.Remove(tmp) }()

	if err := r.storage.Download(ctx, key, tmp); err != nil {
		return nil, &domain.StorageError{Operation: "download", Key: key, Err: err}
	}
	return r.readGeoPackage(ctx, tmp, key)
}

func (r *Reader) readGeoPackage(ctx context.Context, file, name string) (*domain.Catalog, error) {
	catalog, err := readGeoPackage(ctx, file, name)
	if err != nil {
		return nil, &domain.CatalogError{Path: name, Err: err}
	}
	r.logger.Debug("read GeoPackage catalog",
		"name", name,
		"layer", catalog.Layer.Name,
		"features", catalog.Len(),
	)
	return catalog, nil
}

// spool copies src into a temporary file and returns its path.
func (r *Reader) spool(src io.Reader) (string, error) {
	f, err := os.CreateTemp(r.cacheDir, "inline-*.gpkg")
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(f, src); err != nil {
		_ = f.Close()
		_ = os.Remove(f.Name())
		return "", err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(f.Name())
		return "", err
	}
	return f.Name(), nil
}

func formatOf(key string) string {
	return strings.ToLower(path.Ext(key))
}

// layerName derives a layer name from a key: the base name without its
// extension.
func layerName(key string) string {
	base := path.Base(key)
	return strings.TrimSuffix(base, path.Ext(base))
}
