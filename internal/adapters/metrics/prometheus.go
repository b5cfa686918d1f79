// Package metrics provides Prometheus metrics collection.
package metrics

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jobrunner/tessera/internal/ports/output"
)

var _ output.MetricsCollector = (*Collector)(nil)

// Collector implements the MetricsCollector port using Prometheus.
type Collector struct {
	resolveCounter      *prometheus.CounterVec
	resolveDuration     *prometheus.HistogramVec
	groupsReturned      *prometheus.HistogramVec
	selectionRatio      prometheus.Histogram
	skippedFeatures     *prometheus.CounterVec
	catalogCache        *prometheus.CounterVec
	catalogsCached      prometheus.Gauge
	storageOperations   *prometheus.CounterVec
	storageDuration     *prometheus.HistogramVec
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	gatherer prometheus.Gatherer
}

// NewCollector creates a Prometheus metrics collector registered with the
// default registry.
func NewCollector(namespace string) *Collector {
	return NewCollectorWith(namespace, prometheus.DefaultRegisterer, prometheus.DefaultGatherer)
}

// NewCollectorWith registers the collector's metrics with reg and serves
// them from gatherer.
func NewCollectorWith(namespace string, reg prometheus.Registerer, gatherer prometheus.Gatherer) *Collector {
	if namespace == "" {
		namespace = "tessera"
	}
	factory := promauto.With(reg)

	return &Collector{
		resolveCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "resolutions_total",
				Help:      "Total number of group and subset resolutions",
			},
			[]string{"kind", "dataset", "outcome"},
		),

		resolveDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "resolution_duration_seconds",
				Help:      "Resolution duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"kind", "dataset"},
		),

		groupsReturned: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "raster_groups",
				Help:      "Raster groups returned per request",
				Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
			},
			[]string{"dataset"},
		),

		selectionRatio: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "subset_selection_ratio",
				Help:      "Share of geolocation elements kept by a subset",
				Buckets:   prometheus.LinearBuckets(0.1, 0.1, 10),
			},
		),

		skippedFeatures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "skipped_features_total",
				Help:      "Catalog features skipped during resolution",
			},
			[]string{"dataset", "reason"},
		),

		catalogCache: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "catalog_cache_requests_total",
				Help:      "Catalog cache lookups",
			},
			[]string{"result"},
		),

		catalogsCached: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "catalogs_cached",
				Help:      "Number of cached catalogs",
			},
		),

		storageOperations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "storage_operations_total",
				Help:      "Total number of storage operations",
			},
			[]string{"operation", "status"},
		),

		storageDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "storage_duration_seconds",
				Help:      "Storage operation duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"operation"},
		),

		httpRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),

		httpRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),

		gatherer: gatherer,
	}
}

// IncResolveCount increments the resolution counter.
func (c *Collector) IncResolveCount(kind, dataset string, outcome string) {
	c.resolveCounter.WithLabelValues(kind, dataset, outcome).Inc()
}

// ObserveResolveDuration records resolution duration.
func (c *Collector) ObserveResolveDuration(kind, dataset string, duration time.Duration) {
	c.resolveDuration.WithLabelValues(kind, dataset).Observe(duration.Seconds())
}

// ObserveGroups records the number of groups returned.
func (c *Collector) ObserveGroups(dataset string, count int) {
	c.groupsReturned.WithLabelValues(dataset).Observe(float64(count))
}

// ObserveSelection records the kept share of a subset.
func (c *Collector) ObserveSelection(ratio float64) {
	c.selectionRatio.Observe(ratio)
}

// IncSkippedFeatures counts skipped catalog features.
func (c *Collector) IncSkippedFeatures(dataset, reason string) {
	c.skippedFeatures.WithLabelValues(dataset, reason).Inc()
}

// IncCatalogCache counts a catalog cache lookup.
func (c *Collector) IncCatalogCache(hit bool) {
	result := "hit"
	if !hit {
		result = "miss"
	}
	c.catalogCache.WithLabelValues(result).Inc()
}

// SetCatalogsCached sets the number of cached catalogs.
func (c *Collector) SetCatalogsCached(count int) {
	c.catalogsCached.Set(float64(count))
}

// IncStorageOperations increments storage operation counter.
func (c *Collector) IncStorageOperations(operation string, success bool) {
	status := "success"
	if !success {
		status = "error"
	}
	c.storageOperations.WithLabelValues(operation, status).Inc()
}

// ObserveStorageDuration records storage operation duration.
func (c *Collector) ObserveStorageDuration(operation string, duration time.Duration) {
	c.storageDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// IncHTTPRequests increments the HTTP request counter.
func (c *Collector) IncHTTPRequests(method, path, status string) {
	c.httpRequestsTotal.WithLabelValues(method, path, status).Inc()
}

// ObserveHTTPDuration records HTTP request duration.
func (c *Collector) ObserveHTTPDuration(method, path string, duration time.Duration) {
	c.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// Handler returns the Prometheus HTTP handler for the collector's gatherer.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.gatherer, promhttp.HandlerOpts{})
}

// Middleware returns HTTP middleware for metrics collection.
func (c *Collector) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		wrapped := &statusResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		duration := time.Since(start)
		path := routePath(r)
		status := statusToString(wrapped.statusCode)

		c.IncHTTPRequests(r.Method, path, status)
		c.ObserveHTTPDuration(r.Method, path, duration)
	})
}

type statusResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (w *statusResponseWriter) WriteHeader(code int) {
	w.statusCode = code
	w.ResponseWriter.WriteHeader(code)
}

// routePath returns the matched route template so dataset names do not
// become label values.
func routePath(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tpl, err := route.GetPathTemplate(); err == nil {
			return tpl
		}
	}
	return "unmatched"
}

// statusToString converts HTTP status code to string category.
func statusToString(code int) string {
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500:
		return "5xx"
	default:
		return "unknown"
	}
}
