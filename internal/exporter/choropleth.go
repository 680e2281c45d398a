package exporter

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/jonas-p/go-shp"
	"gonum.org/v1/gonum/stat"

	"ghgquant/internal/config"
	apperrors "ghgquant/internal/errors"
	"ghgquant/pkg/contracts/domain"
)

// choroplethBins is the number of quantile classes counties are shaded
// into. Five classes match the usual quantile legend for emissions maps.
const choroplethBins = 5

// ChoroplethWriter joins county aggregate totals onto county boundary
// polygons and writes a classified shapefile. GIS tools render the BIN
// attribute directly as a choropleth.
type ChoroplethWriter struct {
	paths  *config.Paths
	logger *slog.Logger
	// fipsField is the boundary shapefile attribute carrying the
	// five-digit county FIPS code. Census TIGER files call it GEOID.
	fipsField string
}

// NewChoroplethWriter creates a choropleth writer reading boundaries from
// the reference directory.
func NewChoroplethWriter(paths *config.Paths, logger *slog.Logger) *ChoroplethWriter {
	if logger == nil {
		logger = slog.Default()
	}
	return &ChoroplethWriter{
		paths:     paths,
		logger:    logger.With(slog.String("component", "choropleth_writer")),
		fipsField: "GEOID",
	}
}

// Write classifies county totals into quantile bins and writes
// output/{state}/county_emissions.shp. Counties with no records are
// omitted. Rows must be county-keyed aggregates.
func (w *ChoroplethWriter) Write(stateCode string, rows []domain.AggregateRow) (string, error) {
	totals := make(map[string]float64, len(rows))
	for _, row := range rows {
		if row.Key.CountyFIPS == "" {
			continue
		}
		totals[row.Key.CountyFIPS] = row.TotalQuantity
	}
	if len(totals) == 0 {
		return "", nil
	}
	thresholds := quantileThresholds(totals)

	boundaryPath := w.paths.ReferencePath("county_boundaries.shp")
	reader, err := shp.Open(boundaryPath)
	if err != nil {
		return "", apperrors.NewStorageError(
			fmt.Sprintf("failed to open county boundaries %s", boundaryPath), err)
	}
	defer reader.Close()

	fipsIdx := -1
	for i, field := range reader.Fields() {
		if strings.EqualFold(field.String(), w.fipsField) {
			fipsIdx = i
			break
		}
	}
	if fipsIdx < 0 {
		return "", apperrors.NewParsingError(
			fmt.Sprintf("county boundaries lack a %s attribute", w.fipsField), nil)
	}

	if _, err := w.paths.StateOutputDir(stateCode); err != nil {
		return "", apperrors.NewStorageError("failed to prepare output directory", err)
	}
	outPath := w.paths.OutputPath(stateCode, "county_emissions.shp")
	writer, err := shp.Create(outPath, shp.POLYGON)
	if err != nil {
		return "", apperrors.NewStorageError("failed to create choropleth shapefile", err)
	}
	defer writer.Close()

	fields := []shp.Field{
		shp.StringField("FIPS", 5),
		shp.FloatField("TOTAL", 16, 4),
		shp.NumberField("BIN", 2),
	}
	writer.SetFields(fields)

	written := 0
	for reader.Next() {
		row, shape := reader.Shape()
		fips := strings.TrimSpace(reader.ReadAttribute(row, fipsIdx))
		total, ok := totals[fips]
		if !ok {
			continue
		}
		polygon, ok := shape.(*shp.Polygon)
		if !ok {
			continue
		}

		idx := writer.Write(polygon)
		for field, value := range []any{fips, total, binFor(total, thresholds)} {
			if err := writer.WriteAttribute(int(idx), field, value); err != nil {
				return "", apperrors.NewStorageError(
					fmt.Sprintf("failed to write choropleth attributes for county %s", fips), err)
			}
		}
		written++
	}

	w.logger.Info("choropleth written",
		slog.String("state", stateCode),
		slog.Int("counties", written),
		slog.String("path", outPath))
	return outPath, nil
}

// quantileThresholds returns the upper bound of each bin but the last.
func quantileThresholds(totals map[string]float64) []float64 {
	values := make([]float64, 0, len(totals))
	for _, total := range totals {
		values = append(values, total)
	}
	sort.Float64s(values)

	thresholds := make([]float64, 0, choroplethBins-1)
	for i := 1; i < choroplethBins; i++ {
		q := float64(i) / float64(choroplethBins)
		thresholds = append(thresholds, stat.Quantile(q, stat.Empirical, values, nil))
	}
	return thresholds
}

// binFor classifies a value into [1, choroplethBins].
func binFor(value float64, thresholds []float64) int {
	for i, threshold := range thresholds {
		if value <= threshold {
			return i + 1
		}
	}
	return len(thresholds) + 1
}
