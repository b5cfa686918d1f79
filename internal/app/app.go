// Package app provides application initialization and wiring.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/jobrunner/tessera/internal/adapters/catalog"
	httpAdapter "github.com/jobrunner/tessera/internal/adapters/http"
	"github.com/jobrunner/tessera/internal/adapters/metrics"
	"github.com/jobrunner/tessera/internal/adapters/storage"
	tlsAdapter "github.com/jobrunner/tessera/internal/adapters/tls"
	"github.com/jobrunner/tessera/internal/adapters/watcher"
	"github.com/jobrunner/tessera/internal/application"
	"github.com/jobrunner/tessera/internal/config"
	"github.com/jobrunner/tessera/internal/ports/output"
)

// App holds all application components.
type App struct {
	Config         *config.Config
	Logger         *slog.Logger
	Storage        output.ObjectStorage
	Reader         *catalog.Reader
	Locator        *application.IndexLocator
	Registry       *application.DatasetRegistry
	Resolver       *application.ResolveService
	HealthService  *application.HealthService
	RefreshService *application.RefreshService
	HTTPServer     *httpAdapter.Server
	TLSServer      *tlsAdapter.Server
	Watcher        *watcher.Watcher
	Metrics        *metrics.Collector
}

// New creates and initializes a new application. The HTTP layer is only
// built by NewServer so command-line resolutions can share the wiring.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	app := &App{
		Config: cfg,
		Logger: logger,
	}

	var metricsCollector output.MetricsCollector = &output.NoOpMetrics{}
	if cfg.Metrics.Enabled {
		app.Metrics = metrics.NewCollector(cfg.Metrics.Namespace)
		metricsCollector = app.Metrics
	}

	store, err := initStorage(ctx, cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("initializing storage: %w", err)
	}
	if cfg.Storage.Type != "local" {
		store = storage.NewInstrumented(store, metricsCollector)
	}
	app.Storage = store

	app.Reader = catalog.NewReader(app.Storage, cfg.Catalog.DownloadDir, logger)

	app.Locator = application.NewIndexLocator(
		app.Reader,
		app.Storage,
		metricsCollector,
		logger,
		application.LocatorConfig{
			CacheSize:   cfg.Catalog.CacheSize,
			CacheTTL:    cfg.Catalog.CacheTTL,
			Parallelism: cfg.Catalog.Parallelism,
		},
	)

	app.Registry = application.NewDatasetRegistry(logger)
	if err := app.Registry.Load(cfg.Builtins, cfg.Datasets); err != nil {
		return nil, fmt.Errorf("loading datasets: %w", err)
	}

	app.Resolver = application.NewResolveService(
		app.Registry,
		app.Locator,
		metricsCollector,
		logger,
		application.ResolveServiceConfig{BeamWorkers: cfg.Resolver.BeamWorkers},
	)

	app.HealthService = application.NewHealthService(app.Registry, app.Locator)
	app.RefreshService = application.NewRefreshService(app.Registry, app.Locator, cfg.Catalog.RefreshInterval, logger)

	return app, nil
}

// NewServer builds the HTTP server, the TLS server when enabled, and the
// catalog watcher when enabled.
func (a *App) NewServer() error {
	cfg := a.Config

	opts := httpAdapter.Options{
		Refresher:      a.RefreshService,
		MetricsPath:    cfg.Metrics.Path,
		ResolveTimeout: cfg.Resolver.Timeout,
		MaxMaskCells:   cfg.Resolver.MaxMaskCells,
	}
	if a.Metrics != nil {
		opts.Metrics = a.Metrics
	}

	a.HTTPServer = httpAdapter.NewServer(
		cfg.Server,
		a.Resolver,
		a.Registry,
		a.HealthService,
		opts,
		a.Logger,
	)

	if cfg.TLS.Enabled {
		tlsServer, err := tlsAdapter.NewServer(cfg.TLS, cfg.Server, a.HTTPServer.Router(), a.Logger)
		if err != nil {
			return fmt.Errorf("initializing TLS: %w", err)
		}
		a.TLSServer = tlsServer
	}

	if cfg.Catalog.Watch {
		w, err := watcher.New(
			watcher.Config{
				Root:     cfg.Storage.LocalPath,
				Debounce: cfg.Catalog.WatchDebounce,
			},
			a.handleCatalogEvent,
			a.Logger,
		)
		if err != nil {
			a.Logger.Warn("failed to initialize catalog watcher", "error", err)
		} else {
			a.Watcher = w
		}
	}

	return nil
}

// Start starts background services and serves until the server stops.
func (a *App) Start(ctx context.Context) error {
	if a.HTTPServer == nil {
		if err := a.NewServer(); err != nil {
			return err
		}
	}

	if a.Watcher != nil {
		if err := a.Watcher.Start(ctx); err != nil {
			a.Logger.Warn("failed to start catalog watcher", "error", err)
		}
	}

	if a.RefreshService.Interval() > 0 {
		a.RefreshService.Start(ctx)
	}

	// Warm fixed and listing catalogs without delaying the listener.
	go func() {
		res := a.RefreshService.Refresh(ctx)
		a.Logger.Info("catalog warm-up completed",
			"warmed", res.CatalogsWarmed,
			"failed", len(res.Failed),
		)
	}()

	var err error
	if a.TLSServer != nil {
		err = a.TLSServer.ListenAndServe(ctx)
	} else {
		err = a.HTTPServer.Start()
	}
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown gracefully shuts down all components.
func (a *App) Shutdown(ctx context.Context) error {
	a.Logger.Info("shutting down application")

	if a.Watcher != nil {
		_ = a.Watcher.Stop()
	}

	a.RefreshService.Stop()

	var errs []error
	if a.TLSServer != nil {
		if err := a.TLSServer.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("TLS server: %w", err))
		}
	}
	if a.HTTPServer != nil {
		if err := a.HTTPServer.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("HTTP server: %w", err))
		}
	}

	a.Locator.Purge()

	return errors.Join(errs...)
}

// handleCatalogEvent drops a changed catalog from the cache. The next query
// reopens it; deleted catalogs then fail to open.
func (a *App) handleCatalogEvent(_ context.Context, event watcher.Event) error {
	removed := a.Locator.Invalidate(event.Key)
	a.Logger.Info("catalog changed",
		"key", event.Key,
		"operation", event.Operation.String(),
		"was_cached", removed,
	)
	return nil
}

// initStorage initializes the appropriate storage adapter.
func initStorage(ctx context.Context, cfg config.StorageConfig) (output.ObjectStorage, error) {
	switch cfg.Type {
	case "local":
		return storage.NewLocalStorage(cfg.LocalPath), nil

	case "s3":
		return storage.NewS3Storage(ctx, storage.S3Config{
			Bucket:          cfg.S3.Bucket,
			Region:          cfg.S3.Region,
			Prefix:          cfg.S3.Prefix,
			Endpoint:        cfg.S3.Endpoint,
			AccessKeyID:     cfg.S3.AccessKeyID,
			SecretAccessKey: cfg.S3.SecretAccessKey,
		})

	case "azure":
		return storage.NewAzureStorage(storage.AzureConfig{
			Container:        cfg.Azure.Container,
			AccountName:      cfg.Azure.AccountName,
			AccountKey:       cfg.Azure.AccountKey,
			ConnectionString: cfg.Azure.ConnectionString,
			Prefix:           cfg.Azure.Prefix,
		})

	case "http":
		return storage.NewHTTPStorage(storage.HTTPConfig{
			BaseURL:   cfg.HTTP.BaseURL,
			IndexFile: cfg.HTTP.IndexFile,
			Timeout:   cfg.HTTP.Timeout,
			Username:  cfg.HTTP.Username,
			Password:  cfg.HTTP.Password,
		}), nil

	default:
		return nil, fmt.Errorf("unknown storage type: %s", cfg.Type)
	}
}
