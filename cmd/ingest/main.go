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
	inDir := flag.String("in", "", "directory of CSV/XLSX data files (defaults to data/raw)")
	state := flag.String("state", "", "two-letter state code the files belong to (required)")
	year := flag.Int("year", 0, "reporting year filter (0 keeps all years)")
	flag.Parse()

	if *state == "" {
		fmt.Fprintln(os.Stderr, "usage: ingest -state NJ [-in data/raw] [-year 2020]")
		flag.PrintDefaults()
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Warn("Failed to load config, using defaults", "error", err)
		cfg = config.Default()
	}
	if *inDir != "" {
		cfg.Source.RawDataDir = *inDir
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
	cfg.Logging.FilePath = paths.LogPath("ingest.log")

	logger, err := infrastructure.InitializeLogger(cfg.Logging)
	if err != nil {
		slog.Warn("Failed to initialize logger, using default", "error", err)
		logger = slog.Default()
	}
	defer infrastructure.CloseLogFile()

	logger.Info("Starting state file ingestion",
		slog.String("input_dir", cfg.Source.RawDataDir),
		slog.String("state", *state))

	localSource := source.NewLocalDirSource(cfg.Source.RawDataDir, logger)
	files, err := localSource.ListFiles()
	if err != nil {
		logger.Error("Failed to read input directory", slog.String("error", err.Error()))
		os.Exit(1)
	}
	fmt.Printf("Found %d data files\n", len(files))
	if len(files) == 0 {
		fmt.Println("Nothing to ingest")
		return
	}

	counties := loadCountyIndex(paths, logger)
	registry := source.NewRegistry(cfg.Source, logger)
	registry.Register(source.SourceIDStateFile, localSource)
	normalizer := pipeline.NewNormalizer(pipeline.DefaultMappings(), counties)
	runner := pipeline.NewRunner(registry,
		pipeline.DefaultRuleSets(cfg.Pipeline, time.Now()),
		normalizer,
		cfg.Pipeline.TopReasons,
		logger)

	archive, err := store.Open(paths.ArchiveFile, logger)
	if err != nil {
		logger.Error("Failed to open run archive", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer archive.Close()

	service := services.NewRunService(runner, exporter.NewExporter(paths, logger), logger,
		services.WithCharts(exporter.NewChartRenderer(paths, logger)),
		services.WithChoropleth(exporter.NewChoroplethWriter(paths, logger)),
		services.WithArchive(archive))

	query := source.Query{
		SourceID:  source.SourceIDStateFile,
		StateCode: strings.ToUpper(strings.TrimSpace(*state)),
		Year:      *year,
	}
	if err := query.Validate(); err != nil {
		logger.Error("Invalid query", slog.String("error", err.Error()))
		fmt.Fprintf(os.Stderr, "invalid query: %v\n", err)
		os.Exit(2)
	}

	report, err := service.Execute(context.Background(), query)
	if err != nil {
		logger.Error("Ingestion failed", slog.String("error", err.Error()))
		fmt.Fprintf(os.Stderr, "ingestion failed: %v\n", err)
		os.Exit(1)
	}

	summary := report.Summary
	fmt.Printf("Ingestion complete: %d files\n", len(files))
	fmt.Printf("Run %s %s\n", summary.RunID, summary.Status)
	fmt.Printf("Fetched %d records, accepted %d, rejected %d, %d aggregate groups\n",
		summary.Fetched, summary.Accepted, summary.Rejected, summary.Groups)
	for _, file := range report.Files {
		fmt.Printf("wrote %s\n", file)
	}
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
