package exporter

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"ghgquant/internal/config"
	apperrors "ghgquant/internal/errors"
	"ghgquant/pkg/contracts/domain"
)

// Exporter writes a pipeline run's reports: one CSV per aggregation
// profile, a JSON run summary, and the rejection log. Writes to distinct
// group keys are independent, so a failed write never corrupts other rows.
type Exporter struct {
	paths  *config.Paths
	csv    *CSVWriter
	logger *slog.Logger
}

// NewExporter creates an exporter rooted at the configured paths.
func NewExporter(paths *config.Paths, logger *slog.Logger) *Exporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Exporter{
		paths:  paths,
		csv:    NewCSVWriter(paths),
		logger: logger.With(slog.String("component", "exporter")),
	}
}

// WriteAggregates writes one profile's aggregate rows to
// output/{state}/{profile}.csv. Rows arrive already sorted by group key.
func (e *Exporter) WriteAggregates(stateCode, profile string, rows []domain.AggregateRow) (string, error) {
	if _, err := e.paths.StateOutputDir(stateCode); err != nil {
		return "", apperrors.NewStorageError("failed to prepare output directory", err)
	}

	records := make([][]string, len(rows))
	for i, row := range rows {
		records[i] = row.CSVRow()
	}

	path := e.paths.OutputPath(stateCode, profile+".csv")
	if err := e.csv.WriteSimpleCSV(path, domain.AggregateRow{}.CSVHeader(), records); err != nil {
		return "", apperrors.NewStorageError(fmt.Sprintf("failed to write %s report", profile), err)
	}
	return path, nil
}

// WriteRunSummary writes the run summary as pretty-printed JSON to
// output/{state}/run_{run_id}.json.
func (e *Exporter) WriteRunSummary(summary domain.RunSummary) (string, error) {
	if _, err := e.paths.StateOutputDir(summary.StateCode); err != nil {
		return "", apperrors.NewStorageError("failed to prepare output directory", err)
	}

	data, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return "", apperrors.NewStorageError("failed to encode run summary", err)
	}

	path := e.paths.OutputPath(summary.StateCode, "run_"+summary.RunID+".json")
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", apperrors.NewStorageError("failed to write run summary", err)
	}
	return path, nil
}

// WriteRejections streams the rejection log to
// output/{state}/rejections.csv, one row per rejected record with its
// reasons joined by "; ".
func (e *Exporter) WriteRejections(stateCode string, rejected []domain.ValidationResult) (string, error) {
	if _, err := e.paths.StateOutputDir(stateCode); err != nil {
		return "", apperrors.NewStorageError("failed to prepare output directory", err)
	}

	path := e.paths.OutputPath(stateCode, "rejections.csv")
	stream, err := e.csv.CreateStreamWriter(path, []string{"record", "reasons"})
	if err != nil {
		return "", apperrors.NewStorageError("failed to create rejection log", err)
	}

	for _, result := range rejected {
		record, err := json.Marshal(result.Record)
		if err != nil {
			stream.Close()
			return "", apperrors.NewStorageError("failed to encode rejected record", err)
		}
		if err := stream.WriteRecord([]string{string(record), strings.Join(result.Errors, "; ")}); err != nil {
			stream.Close()
			return "", apperrors.NewStorageError("failed to write rejection log", err)
		}
	}
	if err := stream.Close(); err != nil {
		return "", apperrors.NewStorageError("failed to finalize rejection log", err)
	}
	return path, nil
}

// WriteRecords exports the normalized records themselves to
// output/{state}/records.csv for downstream tooling.
func (e *Exporter) WriteRecords(stateCode string, records []domain.EmissionRecord) (string, error) {
	if _, err := e.paths.StateOutputDir(stateCode); err != nil {
		return "", apperrors.NewStorageError("failed to prepare output directory", err)
	}

	path := e.paths.OutputPath(stateCode, "records.csv")
	headers := []string{"facility_id", "facility_name", "state", "county_fips", "year", "sector", "pollutant", "quantity_mtco2e", "source_id"}
	stream, err := e.csv.CreateStreamWriter(path, headers)
	if err != nil {
		return "", apperrors.NewStorageError("failed to create records export", err)
	}

	for _, record := range records {
		row := []string{
			record.FacilityID,
			record.FacilityName,
			record.StateCode,
			record.CountyFIPS,
			strconv.Itoa(record.Year),
			record.Sector,
			record.Pollutant,
			fmt.Sprintf("%.4f", record.Quantity),
			record.SourceID,
		}
		if err := stream.WriteRecord(row); err != nil {
			stream.Close()
			return "", apperrors.NewStorageError("failed to write records export", err)
		}
	}
	if err := stream.Close(); err != nil {
		return "", apperrors.NewStorageError("failed to finalize records export", err)
	}
	return path, nil
}

// ExportRun writes every report for a completed run and returns the
// written file paths. Empty runs produce only the run summary.
func (e *Exporter) ExportRun(result RunOutput) ([]string, error) {
	var written []string

	path, err := e.WriteRunSummary(result.Summary)
	if err != nil {
		return written, err
	}
	written = append(written, path)

	if result.Summary.Status == domain.RunStatusEmpty {
		return written, nil
	}

	profiles := make([]string, 0, len(result.Profiles))
	for profile := range result.Profiles {
		profiles = append(profiles, profile)
	}
	sort.Strings(profiles)
	for _, profile := range profiles {
		path, err := e.WriteAggregates(result.Summary.StateCode, profile, result.Profiles[profile])
		if err != nil {
			return written, err
		}
		written = append(written, path)
	}

	if len(result.Records) > 0 {
		path, err := e.WriteRecords(result.Summary.StateCode, result.Records)
		if err != nil {
			return written, err
		}
		written = append(written, path)
	}

	if len(result.Rejected) > 0 {
		path, err := e.WriteRejections(result.Summary.StateCode, result.Rejected)
		if err != nil {
			return written, err
		}
		written = append(written, path)
	}

	e.logger.Info("run export complete",
		slog.String("run_id", result.Summary.RunID),
		slog.String("state", result.Summary.StateCode),
		slog.Int("files", len(written)),
		slog.String("output_dir", filepath.Join(e.paths.OutputDir, strings.ToLower(result.Summary.StateCode))))
	return written, nil
}

// RunOutput is the subset of a pipeline run the exporter needs. It
// mirrors the runner's result without importing it, keeping the exporter
// free of a pipeline dependency.
type RunOutput struct {
	Summary  domain.RunSummary
	Records  []domain.EmissionRecord
	Rejected []domain.ValidationResult
	Profiles map[string][]domain.AggregateRow
}
