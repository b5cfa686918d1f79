package output

import "time"

// MetricsCollector defines the secondary port for metrics collection.
type MetricsCollector interface {
	// IncResolveCount increments the resolution counter.
	IncResolveCount(kind, dataset string, outcome string)

	// ObserveResolveDuration records resolution duration.
	ObserveResolveDuration(kind, dataset string, duration time.Duration)

	// ObserveGroups records the number of raster groups returned.
	ObserveGroups(dataset string, count int)

	// ObserveSelection records the share of elements a subset kept.
	ObserveSelection(ratio float64)

	// IncSkippedFeatures counts catalog features skipped as unusable.
	IncSkippedFeatures(dataset, reason string)

	// IncCatalogCache counts catalog cache hits and misses.
	IncCatalogCache(hit bool)

	// SetCatalogsCached sets the number of cached catalogs.
	SetCatalogsCached(count int)

	// IncStorageOperations increments storage operation counter.
	IncStorageOperations(operation string, success bool)

	// ObserveStorageDuration records storage operation duration.
	ObserveStorageDuration(operation string, duration time.Duration)
}

// NoOpMetrics is a no-op implementation of MetricsCollector.
type NoOpMetrics struct{}

// IncResolveCount implements MetricsCollector.
func (n *NoOpMetrics) IncResolveCount(_, _ string, _ string) {}

// ObserveResolveDuration implements MetricsCollector.
func (n *NoOpMetrics) ObserveResolveDuration(_, _ string, _ time.Duration) {}

// ObserveGroups implements MetricsCollector.
func (n *NoOpMetrics) ObserveGroups(_ string, _ int) {}

// ObserveSelection implements MetricsCollector.
func (n *NoOpMetrics) ObserveSelection(_ float64) {}

// IncSkippedFeatures implements MetricsCollector.
func (n *NoOpMetrics) IncSkippedFeatures(_, _ string) {}

// IncCatalogCache implements MetricsCollector.
func (n *NoOpMetrics) IncCatalogCache(_ bool) {}

// SetCatalogsCached implements MetricsCollector.
func (n *NoOpMetrics) SetCatalogsCached(_ int) {}

// IncStorageOperations implements MetricsCollector.
func (n *NoOpMetrics) IncStorageOperations(_ string, _ bool) {}

// ObserveStorageDuration implements MetricsCollector.
func (n *NoOpMetrics) ObserveStorageDuration(_ string, _ time.Duration) {}
