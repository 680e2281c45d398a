package exporter

import (
	"fmt"
	"log/slog"
	"strconv"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"ghgquant/internal/analytics"
	"ghgquant/internal/config"
	apperrors "ghgquant/internal/errors"
	"ghgquant/pkg/contracts/domain"
)

// ChartRenderer draws the summary PNG charts for a state's records:
// annual emissions trend, sector totals, and top emitting facilities.
type ChartRenderer struct {
	paths  *config.Paths
	logger *slog.Logger
	// topFacilities bounds the facility ranking chart.
	topFacilities int
}

// NewChartRenderer creates a chart renderer writing under the per-state
// output directory.
func NewChartRenderer(paths *config.Paths, logger *slog.Logger) *ChartRenderer {
	if logger == nil {
		logger = slog.Default()
	}
	return &ChartRenderer{
		paths:         paths,
		logger:        logger.With(slog.String("component", "chart_renderer")),
		topFacilities: 10,
	}
}

// RenderAll draws every chart that has data and returns the written
// paths. A chart with no underlying data is skipped, not an error.
func (r *ChartRenderer) RenderAll(stateCode string, records []domain.EmissionRecord) ([]string, error) {
	if len(records) == 0 {
		return nil, nil
	}
	if _, err := r.paths.StateOutputDir(stateCode); err != nil {
		return nil, apperrors.NewStorageError("failed to prepare output directory", err)
	}

	var written []string
	renderers := []struct {
		name   string
		render func(string, []domain.EmissionRecord) (string, error)
	}{
		{"annual_trend", r.RenderAnnualTrend},
		{"sector_totals", r.RenderSectorTotals},
		{"top_facilities", r.RenderTopFacilities},
	}
	for _, chart := range renderers {
		path, err := chart.render(stateCode, records)
		if err != nil {
			return written, err
		}
		if path != "" {
			written = append(written, path)
		}
	}

	r.logger.Info("charts rendered",
		slog.String("state", stateCode),
		slog.Int("charts", len(written)))
	return written, nil
}

// RenderAnnualTrend draws total emissions per reporting year as a line
// chart. Needs at least two years of data to be meaningful.
func (r *ChartRenderer) RenderAnnualTrend(stateCode string, records []domain.EmissionRecord) (string, error) {
	annual := analytics.AnnualTotals(records)
	if len(annual) < 2 {
		return "", nil
	}

	points := make(plotter.XYs, len(annual))
	for i, year := range annual {
		points[i].X = float64(year.Year)
		points[i].Y = year.Total
	}

	p := plot.New()
	p.Title.Text = fmt.Sprintf("%s annual emissions", stateCode)
	p.X.Label.Text = "Reporting year"
	p.Y.Label.Text = "Emissions (metric tons CO2e)"

	line, scatter, err := plotter.NewLinePoints(points)
	if err != nil {
		return "", apperrors.NewStorageError("failed to build annual trend chart", err)
	}
	p.Add(line, scatter, plotter.NewGrid())

	return r.save(p, stateCode, "annual_trend.png")
}

// RenderSectorTotals draws total emissions per sector as a bar chart.
func (r *ChartRenderer) RenderSectorTotals(stateCode string, records []domain.EmissionRecord) (string, error) {
	shares := analytics.SectorShares(records)
	if len(shares) == 0 {
		return "", nil
	}

	values := make(plotter.Values, len(shares))
	labels := make([]string, len(shares))
	for i, share := range shares {
		values[i] = share.Total
		labels[i] = share.Sector
	}

	p := plot.New()
	p.Title.Text = fmt.Sprintf("%s emissions by sector", stateCode)
	p.Y.Label.Text = "Emissions (metric tons CO2e)"

	bars, err := plotter.NewBarChart(values, vg.Points(24))
	if err != nil {
		return "", apperrors.NewStorageError("failed to build sector chart", err)
	}
	p.Add(bars)
	p.NominalX(labels...)
	p.X.Tick.Label.Rotation = -0.6
	p.X.Tick.Label.XAlign = -0.9

	return r.save(p, stateCode, "sector_totals.png")
}

// RenderTopFacilities draws the highest-emitting facilities as a bar
// chart, labeled by facility name when available.
func (r *ChartRenderer) RenderTopFacilities(stateCode string, records []domain.EmissionRecord) (string, error) {
	top := analytics.TopFacilities(records, r.topFacilities)
	if len(top) == 0 {
		return "", nil
	}

	values := make(plotter.Values, len(top))
	labels := make([]string, len(top))
	for i, facility := range top {
		values[i] = facility.Total
		labels[i] = facility.FacilityName
		if labels[i] == "" {
			labels[i] = facility.FacilityID
		}
	}

	p := plot.New()
	p.Title.Text = fmt.Sprintf("%s top %s emitters", stateCode, strconv.Itoa(len(top)))
	p.Y.Label.Text = "Emissions (metric tons CO2e)"

	bars, err := plotter.NewBarChart(values, vg.Points(20))
	if err != nil {
		return "", apperrors.NewStorageError("failed to build facility chart", err)
	}
	p.Add(bars)
	p.NominalX(labels...)
	p.X.Tick.Label.Rotation = -0.6
	p.X.Tick.Label.XAlign = -0.9

	return r.save(p, stateCode, "top_facilities.png")
}

func (r *ChartRenderer) save(p *plot.Plot, stateCode, name string) (string, error) {
	path := r.paths.OutputPath(stateCode, name)
	if err := p.Save(8*vg.Inch, 5*vg.Inch, path); err != nil {
		return "", apperrors.NewStorageError(fmt.Sprintf("failed to save chart %s", name), err)
	}
	return path, nil
}
