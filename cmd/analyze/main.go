package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"ghgquant/internal/config"
	"ghgquant/internal/exporter"
	"ghgquant/internal/georef"
	"ghgquant/internal/infrastructure"
	"ghgquant/internal/pipeline"
	"ghgquant/internal/services"
	"ghgquant/internal/source"
	"ghgquant/internal/store"
)

func main() {
	sourceID := flag.String("source", source.SourceIDEPA, "data source id (epa or statefile)")
	state := flag.String("state", "", "two-letter state code to analyze (required)")
	year := flag.Int("year", 0, "reporting year filter (0 fetches all years)")
	table := flag.String("table", "", "EPA table name (defaults to configured table)")
	noArchive := flag.Bool("no-archive", false, "skip archiving the run to the local database")
	flag.Parse()

	if *state == "" {
		fmt.Fprintln(os.Stderr, "usage: analyze -state NJ [-source epa] [-year 2020]")
		flag.PrintDefaults()
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Warn("Failed to load config, using defaults", "error", err)
		cfg = config.Default()
	}

	paths, err := config.NewPaths(cfg.Paths)
	if err != nil {
		slog.Error("Failed to initialize paths", "error", err)
		os.Exit(1)
	}
	if err := paths.EnsureDirectories(); err != nil {
		slog.Error("Failed to create required directories", "error", err)
		os.Exit(1)
	}
	cfg.Logging.FilePath = paths.LogPath("analyze.log")

	logger, err := infrastructure.InitializeLogger(cfg.Logging)
	if err != nil {
		slog.Warn("Failed to initialize logger, using default", "error", err)
		logger = slog.Default()
	}
	defer infrastructure.CloseLogFile()

	query := source.Query{
		SourceID:  *sourceID,
		StateCode: strings.ToUpper(strings.TrimSpace(*state)),
		Year:      *year,
		Table:     *table,
	}
	if query.Table == "" && query.SourceID == source.SourceIDEPA {
		query.Table = cfg.Source.DefaultTable
	}
	if err := query.Validate(); err != nil {
		logger.Error("Invalid query", slog.String("error", err.Error()))
		fmt.Fprintf(os.Stderr, "invalid query: %v\n", err)
		os.Exit(2)
	}

	logger.Info("Starting emissions analysis",
		slog.String("source_id", query.SourceID),
		slog.String("state", query.StateCode),
		slog.Int("year", query.Year),
		slog.String("table", query.Table))

	service, archive, err := buildRunService(cfg, paths, logger, !*noArchive)
	if err != nil {
		logger.Error("Failed to assemble pipeline", slog.String("error", err.Error()))
		os.Exit(1)
	}
	if archive != nil {
		defer archive.Close()
	}

	ctx := context.Background()
	report, err := service.Execute(ctx, query)
	if err != nil {
		logger.Error("Run failed", slog.String("error", err.Error()))
		fmt.Fprintf(os.Stderr, "run failed: %v\n", err)
		os.Exit(1)
	}

	summary := report.Summary
	fmt.Printf("Run %s %s\n", summary.RunID, summary.Status)
	fmt.Printf("Fetched %d records, accepted %d, rejected %d, %d aggregate groups\n",
		summary.Fetched, summary.Accepted, summary.Rejected, summary.Groups)
	for _, rejection := range summary.TopRejections {
		fmt.Printf("  %5d x %s\n", rejection.Count, rejection.Reason)
	}
	for _, file := range report.Files {
		fmt.Printf("wrote %s\n", file)
	}
	fmt.Printf("Completed in %s\n", summary.Duration().Round(time.Millisecond))
}

// buildRunService assembles the pipeline and its outputs for one-shot CLI
// use.
func buildRunService(cfg *config.Config, paths *config.Paths, logger *slog.Logger, withArchive bool) (*services.RunService, *store.Store, error) {
	counties := loadCountyIndex(paths, logger)
	registry := source.NewRegistry(cfg.Source, logger)
	normalizer := pipeline.NewNormalizer(pipeline.DefaultMappings(), counties)
	runner := pipeline.NewRunner(registry,
		pipeline.DefaultRuleSets(cfg.Pipeline, time.Now()),
		normalizer,
		cfg.Pipeline.TopReasons,
		logger)

	opts := []services.RunServiceOption{
		services.WithCharts(exporter.NewChartRenderer(paths, logger)),
		services.WithChoropleth(exporter.NewChoroplethWriter(paths, logger)),
	}

	var archive *store.Store
	if withArchive {
		var err error
		archive, err = store.Open(paths.ArchiveFile, logger)
		if err != nil {
			return nil, nil, err
		}
		opts = append(opts, services.WithArchive(archive))
	}

	service := services.NewRunService(runner, exporter.NewExporter(paths, logger), logger, opts...)
	return service, archive, nil
}

func loadCountyIndex(paths *config.Paths, logger *slog.Logger) *georef.CountyIndex {
	path := paths.ReferencePath("county_fips.csv")
	index, err := georef.LoadCountyIndex(path)
	if err != nil {
		logger.Warn("County reference data unavailable",
			slog.String("path", path),
			slog.String("error", err.Error()))
		return nil
	}
	return index
}
