package application

import (
	"context"

	"github.com/jobrunner/tessera/internal/ports/input"
)

// HealthService provides health check functionality.
type HealthService struct {
	registry *DatasetRegistry
	locator  *IndexLocator
}

// NewHealthService creates a new health service.
func NewHealthService(registry *DatasetRegistry, locator *IndexLocator) *HealthService {
	return &HealthService{
		registry: registry,
		locator:  locator,
	}
}

// IsHealthy returns true if the service is healthy.
func (s *HealthService) IsHealthy(_ context.Context) bool {
	return true // Basic health check
}

// IsReady returns true once at least one dataset can be resolved.
func (s *HealthService) IsReady(_ context.Context) bool {
	return s.registry.DatasetCount() > 0
}

// GetHealthDetails returns detailed health information.
func (s *HealthService) GetHealthDetails(ctx context.Context) input.HealthDetails {
	components := map[string]string{
		"registry": "ok",
		"storage":  "ok",
	}
	if !s.IsReady(ctx) {
		components["registry"] = "empty"
	}

	cached := 0
	if s.locator != nil {
		cached = s.locator.CachedCatalogs()
	}

	return input.HealthDetails{
		Healthy:        s.IsHealthy(ctx),
		Ready:          s.IsReady(ctx),
		Datasets:       s.registry.DatasetCount(),
		CatalogsCached: cached,
		Components:     components,
	}
}
