// Package app assembles the report server: configuration, logging,
// telemetry, the pipeline and its sources, the run archive, and the HTTP
// surface, with graceful shutdown.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ghgquant/internal/config"
	"ghgquant/internal/exporter"
	"ghgquant/internal/georef"
	"ghgquant/internal/infrastructure"
	"ghgquant/internal/pipeline"
	"ghgquant/internal/services"
	"ghgquant/internal/source"
	"ghgquant/internal/store"
	handlers "ghgquant/internal/transport/http"
)

// Application is the report server container.
type Application struct {
	cfg       *config.Config
	paths     *config.Paths
	logger    *slog.Logger
	providers *infrastructure.OTelProviders
	archive   *store.Store
	server    *http.Server
}

// New builds the application from configuration. Every dependency is
// constructed here and handed down; nothing else reads global state.
func New(cfg *config.Config) (*Application, error) {
	logger, err := infrastructure.InitializeLogger(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	paths, err := config.NewPaths(cfg.Paths)
	if err != nil {
		return nil, err
	}
	if err := paths.EnsureDirectories(); err != nil {
		return nil, err
	}

	providers, err := infrastructure.InitializeOTel(nil, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	metrics, err := infrastructure.CreatePipelineMetrics(providers.Meter)
	if err != nil {
		return nil, fmt.Errorf("failed to create pipeline metrics: %w", err)
	}

	archive, err := store.Open(paths.ArchiveFile, logger)
	if err != nil {
		return nil, err
	}

	counties := loadCountyIndex(paths, logger)
	registry := source.NewRegistry(cfg.Source, logger)
	normalizer := pipeline.NewNormalizer(pipeline.DefaultMappings(), counties)
	runner := pipeline.NewRunner(registry,
		pipeline.DefaultRuleSets(cfg.Pipeline, time.Now()),
		normalizer,
		cfg.Pipeline.TopReasons,
		logger,
		pipeline.WithMetrics(metrics),
		pipeline.WithTracer(providers.Tracer))

	runService := services.NewRunService(runner,
		exporter.NewExporter(paths, logger),
		logger,
		services.WithCharts(exporter.NewChartRenderer(paths, logger)),
		services.WithChoropleth(exporter.NewChoroplethWriter(paths, logger)),
		services.WithArchive(archive))
	healthService := services.NewHealthService(archive, logger)

	router := handlers.NewRouter(handlers.RouterConfig{
		Runs:           handlers.NewRunHandler(runService, archive, logger),
		Health:         handlers.NewHealthHandler(healthService, logger),
		Metrics:        providers.PrometheusHTTP,
		Logger:         logger,
		RateLimitRPS:   cfg.Source.RateLimitRPS,
		RequestTimeout: cfg.Server.WriteTimeout * 4,
	})

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	return &Application{
		cfg:       cfg,
		paths:     paths,
		logger:    logger,
		providers: providers,
		archive:   archive,
		server:    server,
	}, nil
}

// loadCountyIndex reads the optional county FIPS reference file. Without
// it county grouping degrades to name-less records, which is acceptable
// for sources that carry FIPS directly.
func loadCountyIndex(paths *config.Paths, logger *slog.Logger) *georef.CountyIndex {
	path := paths.ReferencePath("county_fips.csv")
	index, err := georef.LoadCountyIndex(path)
	if err != nil {
		logger.Warn("county reference data unavailable",
			slog.String("path", path),
			slog.String("error", err.Error()))
		return nil
	}
	logger.Info("county reference data loaded",
		slog.Int("counties", index.Len()))
	return index
}

// Run starts the HTTP server and blocks until SIGINT/SIGTERM, then shuts
// down gracefully within the configured timeout.
func (a *Application) Run() error {
	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("report server listening",
			slog.String("addr", a.server.Addr),
			slog.String("version", infrastructure.ServiceVersion))
		if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		a.shutdown(context.Background())
		return err
	case sig := <-stop:
		a.logger.Info("shutdown signal received", slog.String("signal", sig.String()))
	}

	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := a.server.Shutdown(ctx); err != nil {
		a.logger.Error("server shutdown failed", slog.String("error", err.Error()))
	}
	a.shutdown(ctx)
	return nil
}

func (a *Application) shutdown(ctx context.Context) {
	if err := a.archive.Close(); err != nil {
		a.logger.Error("archive close failed", slog.String("error", err.Error()))
	}
	if err := a.providers.Shutdown(ctx); err != nil {
		a.logger.Error("telemetry shutdown failed", slog.String("error", err.Error()))
	}
	if err := infrastructure.CloseLogFile(); err != nil {
		a.logger.Error("log file close failed", slog.String("error", err.Error()))
	}
}
