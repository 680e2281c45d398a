// Package services composes the pipeline, exporter, and archive into the
// operations the CLI and the report server expose.
package services

import (
	"context"
	"log/slog"

	apperrors "ghgquant/internal/errors"
	"ghgquant/internal/exporter"
	"ghgquant/internal/pipeline"
	"ghgquant/internal/source"
	"ghgquant/internal/store"
	"ghgquant/pkg/contracts/domain"
)

// RunService executes pipeline runs end to end: run the stages, write the
// reports, render the charts, and archive the result.
type RunService struct {
	runner     *pipeline.Runner
	exporter   *exporter.Exporter
	charts     *exporter.ChartRenderer
	choropleth *exporter.ChoroplethWriter
	archive    *store.Store
	logger     *slog.Logger
}

// RunServiceOption configures optional RunService collaborators.
type RunServiceOption func(*RunService)

// WithCharts enables PNG chart rendering after each completed run.
func WithCharts(charts *exporter.ChartRenderer) RunServiceOption {
	return func(s *RunService) { s.charts = charts }
}

// WithChoropleth enables the county choropleth shapefile export.
func WithChoropleth(choropleth *exporter.ChoroplethWriter) RunServiceOption {
	return func(s *RunService) { s.choropleth = choropleth }
}

// WithArchive enables archiving runs to the SQLite store.
func WithArchive(archive *store.Store) RunServiceOption {
	return func(s *RunService) { s.archive = archive }
}

// NewRunService creates a run service. Charts, choropleth, and archive are
// optional; without them the service still runs the pipeline and writes
// the CSV and JSON reports.
func NewRunService(runner *pipeline.Runner, exp *exporter.Exporter, logger *slog.Logger, opts ...RunServiceOption) *RunService {
	if logger == nil {
		logger = slog.Default()
	}
	s := &RunService{
		runner:   runner,
		exporter: exp,
		logger:   logger.With(slog.String("service", "run")),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RunReport is what one executed run produced on disk.
type RunReport struct {
	Summary domain.RunSummary `json:"summary"`
	Files   []string          `json:"files,omitempty"`
}

// Execute runs the pipeline for the query and writes every configured
// output. Export or archive failures after a successful run are returned
// but the summary still reflects the completed run.
func (s *RunService) Execute(ctx context.Context, q source.Query) (*RunReport, error) {
	result, err := s.runner.Run(ctx, q)
	if err != nil {
		return &RunReport{Summary: result.Summary}, err
	}

	report := &RunReport{Summary: result.Summary}

	files, err := s.exporter.ExportRun(exporter.RunOutput{
		Summary:  result.Summary,
		Records:  result.Records,
		Rejected: result.Rejected,
		Profiles: result.Profiles,
	})
	report.Files = files
	if err != nil {
		return report, err
	}

	if result.Summary.Status == domain.RunStatusCompleted {
		if s.charts != nil {
			charts, err := s.charts.RenderAll(q.StateCode, result.Records)
			if err != nil {
				return report, err
			}
			report.Files = append(report.Files, charts...)
		}
		if s.choropleth != nil {
			if countyRows, ok := result.Profiles["county_stats"]; ok {
				path, err := s.choropleth.Write(q.StateCode, countyRows)
				if err != nil {
					// Boundary data is optional reference input; a missing
					// shapefile downgrades to a warning.
					if apperrors.IsType(err, apperrors.ErrTypeStorage) {
						s.logger.WarnContext(ctx, "choropleth skipped",
							slog.String("error", err.Error()))
					} else {
						return report, err
					}
				} else if path != "" {
					report.Files = append(report.Files, path)
				}
			}
		}
	}

	if s.archive != nil {
		if err := s.archive.SaveRun(ctx, result.Summary, result.Profiles); err != nil {
			return report, err
		}
	}
	return report, nil
}
