package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jobrunner/tessera/internal/domain"
	"github.com/jobrunner/tessera/internal/ports/input"
	"github.com/jobrunner/tessera/internal/ports/output"
)

// Resolution kinds and outcomes reported to metrics.
const (
	kindGroups = "groups"
	kindSubset = "subset"

	outcomeOK    = "ok"
	outcomeEmpty = "empty"
	outcomeError = "error"
)

var _ input.ResolveService = (*ResolveService)(nil)

// ResolveService answers catalog and array region queries.
type ResolveService struct {
	registry    *DatasetRegistry
	locator     *IndexLocator
	metrics     output.MetricsCollector
	logger      *slog.Logger
	beamWorkers int
}

// ResolveServiceConfig holds configuration for the resolve service.
type ResolveServiceConfig struct {
	BeamWorkers int // Concurrent subsets in SubsetBeams
}

// NewResolveService creates a new resolve service.
func NewResolveService(
	registry *DatasetRegistry,
	locator *IndexLocator,
	metrics output.MetricsCollector,
	logger *slog.Logger,
	cfg ResolveServiceConfig,
) *ResolveService {
	if cfg.BeamWorkers <= 0 {
		cfg.BeamWorkers = 6
	}
	if metrics == nil {
		metrics = &output.NoOpMetrics{}
	}

	return &ResolveService{
		registry:    registry,
		locator:     locator,
		metrics:     metrics,
		logger:      logger,
		beamWorkers: cfg.BeamWorkers,
	}
}

// FindGroups resolves the raster groups of a dataset intersecting the
// request geometry.
func (s *ResolveService) FindGroups(ctx context.Context, req domain.GroupsRequest) (*domain.GroupsResponse, error) {
	start := time.Now()

	resp, err := s.findGroups(ctx, req)
	elapsed := time.Since(start)

	outcome := outcomeOK
	switch {
	case err != nil:
		outcome = outcomeError
	case len(resp.Groups) == 0:
		outcome = outcomeEmpty
	}
	s.metrics.IncResolveCount(kindGroups, req.Dataset, outcome)
	s.metrics.ObserveResolveDuration(kindGroups, req.Dataset, elapsed)

	if err != nil {
		return nil, err
	}
	resp.ProcessingTime = elapsed
	s.metrics.ObserveGroups(req.Dataset, len(resp.Groups))
	return resp, nil
}

func (s *ResolveService) findGroups(ctx context.Context, req domain.GroupsRequest) (*domain.GroupsResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	profile, err := s.registry.GetDataset(ctx, req.Dataset)
	if err != nil {
		return nil, err
	}

	if req.Geometry == nil {
		return nil, fmt.Errorf("%w: query geometry is required", domain.ErrInvalidGeometry)
	}
	if err := domain.ValidateGeometry(req.Geometry); err != nil {
		return nil, err
	}

	// The selector is validated and consumed before anything is opened.
	bands, selector, err := profile.SplitSelector(req.Bands)
	if err != nil {
		return nil, err
	}
	scoped := profile.WithSelector(selector)

	handle, err := s.locator.Locate(ctx, scoped, req.Geometry, req.Catalog)
	if err != nil {
		return nil, err
	}
	defer handle.Close()

	dict := domain.NewFileDictionary()
	resolver := NewCatalogResolver(scoped, s.metrics, s.logger)
	groups, err := resolver.FindGroups(handle.Catalog, GroupQuery{
		Geometry: req.Geometry,
		Bands:    bands,
		Selector: selector,
		Flags:    req.Flags,
	}, dict)
	if err != nil {
		return nil, err
	}

	groups = req.Filter.Apply(groups, dict)

	s.logger.Debug("groups resolved",
		"dataset", req.Dataset,
		"selector", selector,
		"catalog_features", handle.Catalog.Len(),
		"groups", len(groups),
	)

	return &domain.GroupsResponse{
		Dataset:     req.Dataset,
		Selector:    selector,
		Groups:      groups,
		Files:       dict,
		CatalogSize: handle.Catalog.Len(),
	}, nil
}

// Subset trims one geolocation array to its region. An empty selection is
// reported through Empty; only invalid input fails.
func (s *ResolveService) Subset(ctx context.Context, req domain.SubsetRequest) (*domain.SubsetResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	start := time.Now()

	resp := &domain.SubsetResponse{
		Beam:     req.Beam,
		Elements: req.Geo.Len(),
	}

	sel, err := ResolveArrayRegion(req)
	s.metrics.ObserveResolveDuration(kindSubset, req.Beam, time.Since(start))

	switch {
	case errors.Is(err, domain.ErrResourceEmpty):
		s.metrics.IncResolveCount(kindSubset, req.Beam, outcomeEmpty)
		resp.Empty = true
		return resp, nil
	case err != nil:
		s.metrics.IncResolveCount(kindSubset, req.Beam, outcomeError)
		return nil, err
	}

	s.metrics.IncResolveCount(kindSubset, req.Beam, outcomeOK)
	if resp.Elements > 0 {
		s.metrics.ObserveSelection(float64(sel.Selected()) / float64(resp.Elements))
	}
	resp.Selection = sel
	return resp, nil
}

// SubsetBeams runs the subsets of several beams concurrently. Every beam is
// resolved independently; an empty beam does not affect the others. Beams not
// yet started when ctx is canceled are not started at all.
func (s *ResolveService) SubsetBeams(ctx context.Context, reqs []domain.SubsetRequest) ([]domain.SubsetResponse, error) {
	results := make([]domain.SubsetResponse, len(reqs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.beamWorkers)
	for i, req := range reqs {
		g.Go(func() error {
			resp, err := s.Subset(gctx, req)
			if err != nil {
				if req.Beam != "" {
					return fmt.Errorf("beam %s: %w", req.Beam, err)
				}
				return fmt.Errorf("beam %d: %w", i, err)
			}
			results[i] = *resp
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
