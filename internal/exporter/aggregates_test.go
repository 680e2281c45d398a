package exporter

import (
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ghgquant/internal/config"
	"ghgquant/pkg/contracts/domain"
)

func testPaths(t *testing.T) *config.Paths {
	t.Helper()
	paths, err := config.NewPaths(config.PathsConfig{
		BaseDir:      t.TempDir(),
		DataDir:      "data",
		OutputDir:    "output",
		LogsDir:      "logs",
		ReferenceDir: "data/reference",
		ArchiveFile:  "data/runs.db",
	})
	require.NoError(t, err)
	require.NoError(t, paths.EnsureDirectories())
	return paths
}

func sampleRows() []domain.AggregateRow {
	return []domain.AggregateRow{
		{
			Key:           domain.GroupKey{State: "NJ", CountyFIPS: "34013"},
			TotalQuantity: 200, RecordCount: 1, Mean: 200, Min: 200, Max: 200,
		},
		{
			Key:           domain.GroupKey{State: "NJ", CountyFIPS: "34039"},
			TotalQuantity: 400, RecordCount: 2, Mean: 200, Min: 100, Max: 300,
		},
	}
}

func readCSVFile(t *testing.T, path string) [][]string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	content := strings.TrimPrefix(string(data), "\xEF\xBB\xBF")
	rows, err := csv.NewReader(strings.NewReader(content)).ReadAll()
	require.NoError(t, err)
	return rows
}

func TestWriteAggregates(t *testing.T) {
	paths := testPaths(t)
	e := NewExporter(paths, nil)

	path, err := e.WriteAggregates("NJ", "county_stats", sampleRows())
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(paths.OutputDir, "nj", "county_stats.csv"), path,
		"reports land under output/{state}/ with the state lower-cased")

	rows := readCSVFile(t, path)
	require.Len(t, rows, 3)
	assert.Equal(t, domain.AggregateRow{}.CSVHeader(), rows[0])
	assert.Equal(t, "34013", rows[1][1])
	assert.Equal(t, "400.0000", rows[2][4])
}

func TestWriteAggregatesBOM(t *testing.T) {
	paths := testPaths(t)
	e := NewExporter(paths, nil)

	path, err := e.WriteAggregates("NJ", "county_stats", sampleRows())
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "\xEF\xBB\xBF"), "exports carry a UTF-8 BOM for Excel")
}

func TestWriteRunSummary(t *testing.T) {
	paths := testPaths(t)
	e := NewExporter(paths, nil)

	summary := domain.RunSummary{
		RunID:     "run-123",
		SourceID:  "epa",
		StateCode: "NJ",
		Year:      2020,
		Status:    domain.RunStatusCompleted,
		Fetched:   4,
		Accepted:  3,
		Rejected:  1,
		Groups:    2,
		StartedAt: time.Now().Add(-time.Second),
	}
	summary.FinishedAt = time.Now()

	path, err := e.WriteRunSummary(summary)
	require.NoError(t, err)
	assert.Equal(t, paths.OutputPath("NJ", "run_run-123.json"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var decoded domain.RunSummary
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, summary.RunID, decoded.RunID)
	assert.Equal(t, summary.Status, decoded.Status)
}

func TestWriteRejections(t *testing.T) {
	paths := testPaths(t)
	e := NewExporter(paths, nil)

	rejected := []domain.ValidationResult{
		{
			Record: domain.RawRecord{"facility_id": "4", "state": "NJ"},
			Errors: []string{`required field "co2e_emission" is missing`, `unknown state code "ZZ"`},
		},
	}

	path, err := e.WriteRejections("NJ", rejected)
	require.NoError(t, err)

	rows := readCSVFile(t, path)
	require.Len(t, rows, 2)
	assert.Equal(t, []string{"record", "reasons"}, rows[0])
	assert.Contains(t, rows[1][1], "co2e_emission")
	assert.Contains(t, rows[1][1], "; ")
}

func TestExportRun(t *testing.T) {
	paths := testPaths(t)
	e := NewExporter(paths, nil)

	output := RunOutput{
		Summary: domain.RunSummary{
			RunID:     "run-9",
			SourceID:  "epa",
			StateCode: "NJ",
			Status:    domain.RunStatusCompleted,
		},
		Records: []domain.EmissionRecord{
			{FacilityID: "1", StateCode: "NJ", Year: 2020, Sector: "Power", Quantity: 100, SourceID: "epa"},
		},
		Rejected: []domain.ValidationResult{
			{Record: domain.RawRecord{"facility_id": "4"}, Errors: []string{"missing quantity"}},
		},
		Profiles: map[string][]domain.AggregateRow{"county_stats": sampleRows()},
	}

	files, err := e.ExportRun(output)
	require.NoError(t, err)
	assert.Len(t, files, 4, "summary, one profile, records, rejections")
	for _, file := range files {
		_, err := os.Stat(file)
		assert.NoError(t, err, file)
	}
}

func TestExportRunProfileOrderIsStable(t *testing.T) {
	paths := testPaths(t)
	e := NewExporter(paths, nil)

	output := RunOutput{
		Summary: domain.RunSummary{RunID: "run-1", StateCode: "NJ", Status: domain.RunStatusCompleted},
		Profiles: map[string][]domain.AggregateRow{
			"temporal_stats": sampleRows(),
			"county_stats":   sampleRows(),
			"industry_stats": sampleRows(),
		},
	}

	first, err := e.ExportRun(output)
	require.NoError(t, err)
	second, err := e.ExportRun(output)
	require.NoError(t, err)

	assert.Equal(t, first, second, "repeated exports list files in the same order")
	require.Len(t, first, 4)
	assert.Contains(t, first[1], "county_stats.csv", "profiles export in name order")
	assert.Contains(t, first[3], "temporal_stats.csv")
}

func TestExportRunEmptyWritesOnlySummary(t *testing.T) {
	paths := testPaths(t)
	e := NewExporter(paths, nil)

	files, err := e.ExportRun(RunOutput{
		Summary: domain.RunSummary{RunID: "run-0", StateCode: "WY", Status: domain.RunStatusEmpty},
	})

	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Contains(t, files[0], "run_run-0.json")
}

func TestStreamWriterRoundTrip(t *testing.T) {
	paths := testPaths(t)
	w := NewCSVWriter(paths)

	stream, err := w.CreateStreamWriter("stream.csv", []string{"a", "b"})
	require.NoError(t, err)
	require.NoError(t, stream.WriteRecord([]string{"1", "2"}))
	require.NoError(t, stream.WriteRecord([]string{"3", "4"}))
	require.NoError(t, stream.Close())

	rows := readCSVFile(t, filepath.Join(paths.OutputDir, "stream.csv"))
	assert.Equal(t, [][]string{{"a", "b"}, {"1", "2"}, {"3", "4"}}, rows)
}

func TestChartRendererWritesPNGs(t *testing.T) {
	paths := testPaths(t)
	r := NewChartRenderer(paths, nil)

	records := []domain.EmissionRecord{
		{FacilityID: "A", FacilityName: "Plant A", StateCode: "NJ", Sector: "Power", Year: 2019, Quantity: 100},
		{FacilityID: "B", FacilityName: "Plant B", StateCode: "NJ", Sector: "Waste", Year: 2020, Quantity: 300},
	}

	files, err := r.RenderAll("NJ", records)
	require.NoError(t, err)
	require.Len(t, files, 3)
	for _, file := range files {
		info, err := os.Stat(file)
		require.NoError(t, err, file)
		assert.Greater(t, info.Size(), int64(0))
	}
}

func TestChartRendererSkipsWithoutData(t *testing.T) {
	r := NewChartRenderer(testPaths(t), nil)

	files, err := r.RenderAll("NJ", nil)
	require.NoError(t, err)
	assert.Empty(t, files)

	// A single year cannot draw a trend line.
	path, err := r.RenderAnnualTrend("NJ", []domain.EmissionRecord{{Year: 2020, Quantity: 1}})
	require.NoError(t, err)
	assert.Empty(t, path)
}
