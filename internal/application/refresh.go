package application

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/jobrunner/tessera/internal/domain"
)

// ErrRateLimited is returned when the refresh API rate limit is exceeded.
var ErrRateLimited = errors.New("rate limit exceeded")

// refreshCooldown is the minimum time between two API-triggered refreshes.
const refreshCooldown = 30 * time.Second

// RefreshResult contains the result of a refresh operation.
type RefreshResult struct {
	CatalogsPurged  int       `json:"catalogs_purged"`
	CatalogsWarmed  int       `json:"catalogs_warmed"`
	Failed          []string  `json:"failed,omitempty"`
	RefreshedAt     time.Time `json:"refreshed_at"`
	NextScheduledAt time.Time `json:"next_scheduled_at,omitempty"`
}

// RefreshService periodically drops cached catalogs and reloads the ones of
// fixed and listing datasets so upstream catalog updates are picked up.
type RefreshService struct {
	registry *DatasetRegistry
	locator  *IndexLocator
	interval time.Duration
	logger   *slog.Logger

	// Lifecycle management
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	// Rate limiting for API triggers
	lastAPIRefresh time.Time
	apiMutex       sync.Mutex

	// Prevents concurrent refresh operations
	refreshOpMutex sync.Mutex

	// Track next scheduled refresh for reporting
	nextRefresh time.Time
	refreshMu   sync.RWMutex
}

// NewRefreshService creates a new refresh service.
func NewRefreshService(registry *DatasetRegistry, locator *IndexLocator, interval time.Duration, logger *slog.Logger) *RefreshService {
	return &RefreshService{
		registry: registry,
		locator:  locator,
		interval: interval,
		logger:   logger,
		stopCh:   make(chan struct{}),
		// Initialize to past time to allow immediate first API call
		lastAPIRefresh: time.Now().Add(-refreshCooldown - time.Second),
	}
}

// Start begins the periodic refresh scheduler.
func (s *RefreshService) Start(ctx context.Context) {
	s.logger.Info("starting refresh service", "interval", s.interval)

	s.wg.Add(1)
	go s.run(ctx)
}

func (s *RefreshService) run(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.setNextRefresh(time.Now().Add(s.interval))

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("refresh service stopped: context canceled")
			return
		case <-s.stopCh:
			s.logger.Info("refresh service stopped")
			return
		case <-ticker.C:
			s.logger.Debug("scheduled refresh triggered")
			res := s.Refresh(ctx)
			s.logger.Info("refresh completed",
				"purged", res.CatalogsPurged,
				"warmed", res.CatalogsWarmed,
				"failed", len(res.Failed),
			)
			s.setNextRefresh(time.Now().Add(s.interval))
		}
	}
}

// Stop gracefully stops the refresh service.
func (s *RefreshService) Stop() {
	s.stopOnce.Do(func() {
		s.logger.Info("stopping refresh service")
		close(s.stopCh)
	})
	s.wg.Wait()
}

// TriggerRefresh runs a refresh now, at most once per cooldown period.
func (s *RefreshService) TriggerRefresh(ctx context.Context) (RefreshResult, error) {
	s.apiMutex.Lock()
	defer s.apiMutex.Unlock()

	if time.Since(s.lastAPIRefresh) < refreshCooldown {
		return RefreshResult{}, ErrRateLimited
	}
	s.lastAPIRefresh = time.Now()

	return s.Refresh(ctx), nil
}

// Refresh purges the catalog cache and warms every fixed and listing
// dataset. Datasets with a discriminator are warmed for their default
// selector. Failures are collected, not returned.
func (s *RefreshService) Refresh(ctx context.Context) RefreshResult {
	s.refreshOpMutex.Lock()
	defer s.refreshOpMutex.Unlock()

	result := RefreshResult{CatalogsPurged: s.locator.CachedCatalogs()}
	s.locator.Purge()

	for _, p := range s.registry.ListDatasets(ctx) {
		if p.Locator != domain.LocatorFixed && p.Locator != domain.LocatorListing {
			continue
		}
		if ctx.Err() != nil {
			break
		}

		selector := ""
		if p.Discriminator != nil {
			selector = p.Discriminator.Default
		}
		if err := s.locator.Warm(ctx, p.WithSelector(selector)); err != nil {
			s.logger.Warn("catalog warm-up failed", "dataset", p.Name, "error", err)
			result.Failed = append(result.Failed, p.Name)
			continue
		}
		result.CatalogsWarmed++
	}

	result.RefreshedAt = time.Now()
	result.NextScheduledAt = s.getNextRefresh()
	return result
}

func (s *RefreshService) setNextRefresh(t time.Time) {
	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()
	s.nextRefresh = t
}

func (s *RefreshService) getNextRefresh() time.Time {
	s.refreshMu.RLock()
	defer s.refreshMu.RUnlock()
	return s.nextRefresh
}

// Interval returns the refresh interval.
func (s *RefreshService) Interval() time.Duration {
	return s.interval
}
