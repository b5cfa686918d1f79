// Package input defines the primary/driving ports of the application.
package input

import (
	"context"

	"github.com/jobrunner/tessera/internal/domain"
)

// ResolveService defines the primary port for region resolution.
type ResolveService interface {
	// FindGroups resolves the raster groups of a dataset intersecting a query.
	FindGroups(ctx context.Context, req domain.GroupsRequest) (*domain.GroupsResponse, error)

	// Subset trims one geolocation array to a region. An empty selection is
	// reported through Empty, not as an error.
	Subset(ctx context.Context, req domain.SubsetRequest) (*domain.SubsetResponse, error)

	// SubsetBeams runs independent subsets concurrently. Results keep the
	// request order.
	SubsetBeams(ctx context.Context, reqs []domain.SubsetRequest) ([]domain.SubsetResponse, error)
}

// DatasetRegistry defines the primary port for dataset profile lookup.
type DatasetRegistry interface {
	// ListDatasets returns all registered profiles sorted by name.
	ListDatasets(ctx context.Context) []domain.DatasetProfile

	// GetDataset returns a profile by name.
	GetDataset(ctx context.Context, name string) (*domain.DatasetProfile, error)
}

// HealthChecker defines the primary port for health checks.
type HealthChecker interface {
	// IsHealthy returns true if the service is healthy.
	IsHealthy(ctx context.Context) bool

	// IsReady returns true if the service is ready to accept requests.
	IsReady(ctx context.Context) bool

	// GetHealthDetails returns detailed health information.
	GetHealthDetails(ctx context.Context) HealthDetails
}

// HealthDetails contains detailed health information.
type HealthDetails struct {
	Healthy        bool              // Overall health status
	Ready          bool              // Ready to accept requests
	Datasets       int               // Number of registered datasets
	CatalogsCached int               // Number of cached catalogs
	Components     map[string]string // Component statuses
}
