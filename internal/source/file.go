package source

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/xuri/excelize/v2"
	"golang.org/x/sync/errgroup"

	apperrors "ghgquant/internal/errors"
	"ghgquant/internal/georef"
	"ghgquant/pkg/contracts/domain"
)

// SourceIDStateFile identifies locally dropped state data files.
const SourceIDStateFile = "statefile"

// LocalDirSource reads raw CSV and XLSX data files from a directory, one
// RawRecord per data row. It serves state portals that publish downloads
// instead of an API.
type LocalDirSource struct {
	dir    string
	logger *slog.Logger
	// parseWorkers bounds how many files are parsed at once.
	parseWorkers int
}

// NewLocalDirSource creates a source reading from dir.
func NewLocalDirSource(dir string, logger *slog.Logger) *LocalDirSource {
	if logger == nil {
		logger = slog.Default()
	}
	return &LocalDirSource{
		dir:          dir,
		logger:       logger.With(slog.String("component", "local_dir_source")),
		parseWorkers: 4,
	}
}

// ListFiles returns the supported data files in the directory, sorted by
// name for deterministic ingestion order.
func (s *LocalDirSource) ListFiles() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, apperrors.NewConfigError(fmt.Sprintf("raw data directory %s is not readable", s.dir), err)
	}

	var files []string
	for _, entry := range entries {
		if entry.IsDir() || strings.HasPrefix(entry.Name(), "~$") {
			continue
		}
		switch strings.ToLower(filepath.Ext(entry.Name())) {
		case ".csv", ".xlsx", ".xls":
			files = append(files, entry.Name())
		}
	}
	sort.Strings(files)
	return files, nil
}

// Fetch reads every supported file in the directory and keeps the rows
// matching the query's state (and year, when set). Files are parsed
// concurrently but results are assembled in file-name order so output is
// deterministic.
func (s *LocalDirSource) Fetch(ctx context.Context, q Query) ([]domain.RawRecord, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	files, err := s.ListFiles()
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, apperrors.NewEmptyResultError(
			fmt.Sprintf("no data files found in %s", s.dir))
	}

	perFile := make([][]domain.RawRecord, len(files))
	var mu sync.Mutex

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(s.parseWorkers)
	for i, name := range files {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			records, err := s.ReadFile(name)
			if err != nil {
				return err
			}
			mu.Lock()
			perFile[i] = records
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	state := georef.NormalizeStateCode(q.StateCode)
	var records []domain.RawRecord
	for i, fileRecords := range perFile {
		matched := 0
		for _, record := range fileRecords {
			if matchesQuery(record, state, q.Year) {
				records = append(records, record)
				matched++
			}
		}
		s.logger.Info("read data file",
			slog.String("file", files[i]),
			slog.Int("record_count", len(fileRecords)),
			slog.Int("matched", matched))
	}

	if len(records) == 0 {
		return nil, apperrors.NewEmptyResultError(
			fmt.Sprintf("data files in %s contained no rows for state %s", s.dir, state))
	}
	return records, nil
}

// matchesQuery reports whether a row belongs to the queried state and
// year. Rows whose state or year field is missing or unparseable are
// kept: those are the validator's to reject, with a reason in the run
// log. Rows that clearly belong to another state or year are out of the
// query's scope, not errors.
func matchesQuery(record domain.RawRecord, stateCode string, year int) bool {
	if state, ok := record.String("state"); ok && strings.TrimSpace(state) != "" {
		if georef.NormalizeStateCode(state) != stateCode {
			return false
		}
	}
	if year != 0 {
		if rowYear, err := record.Int("year"); err == nil && rowYear != year {
			return false
		}
	}
	return true
}

// ReadFile parses a single file into RawRecords. The first row is the
// header; every later row becomes one record keyed by the lower-cased
// header names.
func (s *LocalDirSource) ReadFile(name string) ([]domain.RawRecord, error) {
	path := filepath.Join(s.dir, name)
	switch strings.ToLower(filepath.Ext(name)) {
	case ".csv":
		return s.readCSV(path)
	case ".xlsx", ".xls":
		return s.readExcel(path)
	default:
		return nil, apperrors.NewParsingError(fmt.Sprintf("unsupported file format: %s", filepath.Ext(name)), nil)
	}
}

func (s *LocalDirSource) readCSV(path string) ([]domain.RawRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, apperrors.NewStorageError(fmt.Sprintf("failed to open %s", path), err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, apperrors.NewParsingError(fmt.Sprintf("%s has no header row", path), err)
	}
	keys := normalizeHeader(header)

	var records []domain.RawRecord
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, apperrors.NewParsingError(fmt.Sprintf("%s is malformed", path), err)
		}
		records = append(records, rowToRecord(keys, row))
	}
	return records, nil
}

func (s *LocalDirSource) readExcel(path string) ([]domain.RawRecord, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, apperrors.NewParsingError(fmt.Sprintf("failed to open %s", path), err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, apperrors.NewParsingError(fmt.Sprintf("%s has no sheets", path), nil)
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, apperrors.NewParsingError(fmt.Sprintf("failed to read sheet %q", sheets[0]), err)
	}
	if len(rows) < 2 {
		return nil, nil
	}

	keys := normalizeHeader(rows[0])
	records := make([]domain.RawRecord, 0, len(rows)-1)
	for _, row := range rows[1:] {
		if isEmptyRow(row) {
			continue
		}
		records = append(records, rowToRecord(keys, row))
	}
	return records, nil
}

func normalizeHeader(header []string) []string {
	keys := make([]string, len(header))
	for i, name := range header {
		keys[i] = strings.ToLower(strings.TrimSpace(name))
	}
	return keys
}

func rowToRecord(keys []string, row []string) domain.RawRecord {
	record := make(domain.RawRecord, len(keys))
	for i, key := range keys {
		if key == "" {
			continue
		}
		if i < len(row) {
			record[key] = strings.TrimSpace(row[i])
		}
	}
	return record
}

func isEmptyRow(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
