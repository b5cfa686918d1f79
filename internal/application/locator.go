package application

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkb"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/jobrunner/tessera/internal/domain"
	"github.com/jobrunner/tessera/internal/ports/output"
)

// LocatorConfig holds configuration for the index locator.
type LocatorConfig struct {
	CacheSize   int           // Cached catalogs; 0 means unlimited
	CacheTTL    time.Duration // 0 keeps entries until evicted
	Parallelism int           // Concurrent geocell opens
}

// CatalogHandle is the catalog of one resolution. Merged catalogs belong to
// the handle and are released by Close; cached catalogs are shared and must
// be treated as read-only.
type CatalogHandle struct {
	Catalog *domain.Catalog
	Keys    []string // Catalog keys that contributed
	Merged  bool
}

// Close releases the handle's catalog.
func (h *CatalogHandle) Close() {
	if h == nil {
		return
	}
	h.Catalog = nil
	h.Keys = nil
}

// IndexLocator finds the catalog answering a query for a dataset.
type IndexLocator struct {
	reader      output.CatalogReader
	storage     output.ObjectStorage
	metrics     output.MetricsCollector
	logger      *slog.Logger
	cache       *expirable.LRU[uint64, *domain.Catalog]
	loads       singleflight.Group
	parallelism int
}

// NewIndexLocator creates a new index locator.
func NewIndexLocator(
	reader output.CatalogReader,
	storage output.ObjectStorage,
	metrics output.MetricsCollector,
	logger *slog.Logger,
	cfg LocatorConfig,
) *IndexLocator {
	if cfg.Parallelism <= 0 {
		cfg.Parallelism = 4
	}
	if metrics == nil {
		metrics = &output.NoOpMetrics{}
	}

	return &IndexLocator{
		reader:      reader,
		storage:     storage,
		metrics:     metrics,
		logger:      logger,
		cache:       expirable.NewLRU[uint64, *domain.Catalog](cfg.CacheSize, nil, cfg.CacheTTL),
		parallelism: cfg.Parallelism,
	}
}

// Locate returns the catalog for a query. profile must already carry the
// selector. inline is only used by inline datasets.
func (l *IndexLocator) Locate(ctx context.Context, profile domain.DatasetProfile, geom orb.Geometry, inline []byte) (*CatalogHandle, error) {
	switch profile.Locator {
	case domain.LocatorFixed:
		return l.single(ctx, profile.CatalogPath)

	case domain.LocatorListing:
		key, err := l.findListed(ctx, profile)
		if err != nil {
			return nil, err
		}
		return l.single(ctx, key)

	case domain.LocatorGeocell:
		if geom == nil {
			return nil, fmt.Errorf("%w: geocell datasets need a query geometry", domain.ErrInvalidGeometry)
		}
		return l.geocells(ctx, profile, geom)

	case domain.LocatorInline:
		if len(inline) == 0 {
			return nil, fmt.Errorf("%w: %s needs an inline catalog", domain.ErrInvalidRequest, profile.Name)
		}
		catalog, err := l.reader.Decode(ctx, profile.Name, ".geojson", bytes.NewReader(inline))
		if err != nil {
			return nil, asCatalogError(profile.Name, err)
		}
		return &CatalogHandle{Catalog: catalog, Merged: true}, nil

	default:
		return nil, fmt.Errorf("%w: unknown locator %q", domain.ErrInvalidRequest, profile.Locator)
	}
}

// Warm loads the catalog of a fixed or listing dataset into the cache.
// Other locator modes have nothing to warm.
func (l *IndexLocator) Warm(ctx context.Context, profile domain.DatasetProfile) error {
	switch profile.Locator {
	case domain.LocatorFixed, domain.LocatorListing:
		h, err := l.Locate(ctx, profile, nil, nil)
		if err != nil {
			return err
		}
		h.Close()
	}
	return nil
}

// Invalidate drops one catalog from the cache.
func (l *IndexLocator) Invalidate(key string) bool {
	removed := l.cache.Remove(cacheKey(key))
	l.metrics.SetCatalogsCached(l.cache.Len())
	return removed
}

// Purge empties the catalog cache.
func (l *IndexLocator) Purge() {
	l.cache.Purge()
	l.metrics.SetCatalogsCached(0)
}

// CachedCatalogs returns the number of cached catalogs.
func (l *IndexLocator) CachedCatalogs() int {
	return l.cache.Len()
}

func (l *IndexLocator) single(ctx context.Context, key string) (*CatalogHandle, error) {
	catalog, err := l.open(ctx, key)
	if err != nil {
		return nil, err
	}
	return &CatalogHandle{Catalog: catalog, Keys: []string{key}}, nil
}

// open returns a cached catalog or loads it once, however many callers ask
// concurrently.
func (l *IndexLocator) open(ctx context.Context, key string) (*domain.Catalog, error) {
	ck := cacheKey(key)
	if catalog, ok := l.cache.Get(ck); ok {
		l.metrics.IncCatalogCache(true)
		return catalog, nil
	}
	l.metrics.IncCatalogCache(false)

	// The load is shared, so one caller's cancellation must not fail the
	// others waiting on it.
	loadCtx := context.WithoutCancel(ctx)
	v, err, _ := l.loads.Do(key, func() (interface{}, error) {
		if catalog, ok := l.cache.Get(ck); ok {
			return catalog, nil
		}
		catalog, err := l.reader.Open(loadCtx, key)
		if err != nil {
			return nil, err
		}
		l.cache.Add(ck, catalog)
		l.metrics.SetCatalogsCached(l.cache.Len())
		l.logger.Debug("catalog loaded", "key", key, "features", catalog.Len())
		return catalog, nil
	})
	if err != nil {
		return nil, asCatalogError(key, err)
	}
	return v.(*domain.Catalog), nil
}

// findListed returns the first object under the listing prefix that carries
// the catalog suffix.
func (l *IndexLocator) findListed(ctx context.Context, profile domain.DatasetProfile) (string, error) {
	objects, err := l.storage.List(ctx, profile.ListingPrefix)
	if err != nil {
		return "", &domain.CatalogError{Path: profile.ListingPrefix, Err: err}
	}
	for _, obj := range objects {
		if strings.HasSuffix(obj.Key, profile.CatalogSuffix) {
			return obj.Key, nil
		}
	}
	return "", &domain.CatalogError{
		Path: profile.ListingPrefix,
		Err:  fmt.Errorf("no %s catalog among %d objects", profile.CatalogSuffix, len(objects)),
	}
}

// geocells opens the catalog of every cell the query touches and merges
// them. Cells that cannot be opened are skipped.
func (l *IndexLocator) geocells(ctx context.Context, profile domain.DatasetProfile, geom orb.Geometry) (*CatalogHandle, error) {
	cells := domain.GeocellsForGeometry(geom)

	keys := make([]string, 0, len(cells))
	seen := make(map[string]struct{}, len(cells))
	for _, c := range cells {
		key := profile.GeocellPath(c)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		keys = append(keys, key)
	}

	parts := make([]*domain.Catalog, len(keys))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(l.parallelism)
	for i, key := range keys {
		g.Go(func() error {
			catalog, err := l.open(gctx, key)
			if err != nil {
				if ctxErr := ctx.Err(); ctxErr != nil {
					return ctxErr
				}
				l.logger.Warn("geocell catalog skipped", "dataset", profile.Name, "key", key, "error", err)
				return nil
			}
			parts[i] = catalog
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if len(keys) == 1 {
		if parts[0] == nil {
			return nil, fmt.Errorf("%w: geocell %s", domain.ErrMergeFailed, keys[0])
		}
		return &CatalogHandle{Catalog: parts[0], Keys: keys}, nil
	}

	merged, err := mergeCatalogs(profile, parts, geom.Bound())
	if err != nil {
		return nil, err
	}
	return &CatalogHandle{Catalog: merged, Keys: keys, Merged: true}, nil
}

// mergeCatalogs combines per-cell catalogs into one in-memory catalog using
// the first opened catalog as schema. Only features overlapping the query
// bound are kept, and a feature repeated by neighbouring cells is kept once.
func mergeCatalogs(profile domain.DatasetProfile, parts []*domain.Catalog, bound orb.Bound) (*domain.Catalog, error) {
	var (
		merged *domain.Catalog
		total  int
	)
	seen := make(map[uint64]struct{})

	for _, part := range parts {
		if part == nil {
			continue
		}
		if merged == nil {
			merged = domain.NewMergedCatalog(profile.Name+":merged", part.Layer)
		}
		total += part.Len()

		for i := range part.Features {
			f := &part.Features[i]
			if f.Geometry == nil || !f.Geometry.Bound().Intersects(bound) {
				continue
			}
			key, err := featureKey(f, profile)
			if err != nil {
				return nil, fmt.Errorf("%w: %v", domain.ErrMergeFailed, err)
			}
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			merged.Adopt(*f)
		}
	}

	if merged == nil || total == 0 {
		return nil, fmt.Errorf("%w: no features in %d geocells", domain.ErrMergeFailed, len(parts))
	}
	return merged, nil
}

// featureKey identifies a feature by its data path and footprint.
func featureKey(f *domain.Feature, profile domain.DatasetProfile) (uint64, error) {
	geom, err := wkb.Marshal(f.Geometry)
	if err != nil {
		return 0, err
	}

	field := profile.DataField
	if field == "" {
		field = profile.IDField
	}

	h := xxhash.New()
	_, _ = h.WriteString(f.GetStringProperty(field))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write(geom)
	return h.Sum64(), nil
}

func cacheKey(key string) uint64 {
	return xxhash.Sum64String(key)
}

func asCatalogError(path string, err error) error {
	var ce *domain.CatalogError
	if errors.As(err, &ce) {
		return err
	}
	return &domain.CatalogError{Path: path, Err: err}
}
