// Package analytics computes descriptive statistics over normalized
// emission records, beyond the running aggregates the pipeline produces.
package analytics

import (
	"sort"

	"gonum.org/v1/gonum/stat"

	"ghgquant/pkg/contracts/domain"
)

// Summary holds distribution statistics for one slice of records.
type Summary struct {
	Count      int     `json:"count"`
	Facilities int     `json:"facilities"`
	Total      float64 `json:"total"`
	Mean       float64 `json:"mean"`
	StdDev     float64 `json:"std_dev"`
	Min        float64 `json:"min"`
	Q1         float64 `json:"q1"`
	Median     float64 `json:"median"`
	Q3         float64 `json:"q3"`
	Max        float64 `json:"max"`
}

// Summarize computes distribution statistics over the records' quantities.
// A nil or empty input yields the zero Summary.
func Summarize(records []domain.EmissionRecord) Summary {
	if len(records) == 0 {
		return Summary{}
	}

	quantities := make([]float64, len(records))
	facilities := make(map[string]struct{})
	total := 0.0
	for i, record := range records {
		quantities[i] = record.Quantity
		total += record.Quantity
		if record.FacilityID != "" {
			facilities[record.FacilityID] = struct{}{}
		}
	}
	sort.Float64s(quantities)

	mean, std := stat.MeanStdDev(quantities, nil)
	summary := Summary{
		Count:      len(records),
		Facilities: len(facilities),
		Total:      total,
		Mean:       mean,
		Min:        quantities[0],
		Q1:         stat.Quantile(0.25, stat.Empirical, quantities, nil),
		Median:     stat.Quantile(0.5, stat.Empirical, quantities, nil),
		Q3:         stat.Quantile(0.75, stat.Empirical, quantities, nil),
		Max:        quantities[len(quantities)-1],
	}
	// MeanStdDev returns NaN std for a single sample.
	if len(quantities) > 1 {
		summary.StdDev = std
	}
	return summary
}

// SectorShare is one sector's slice of a state's total emissions.
type SectorShare struct {
	Sector string  `json:"sector"`
	Total  float64 `json:"total"`
	Share  float64 `json:"share"`
}

// SectorShares computes each sector's share of total emissions, sorted by
// descending total with ties broken by sector name.
func SectorShares(records []domain.EmissionRecord) []SectorShare {
	totals := make(map[string]float64)
	grand := 0.0
	for _, record := range records {
		totals[record.Sector] += record.Quantity
		grand += record.Quantity
	}
	if len(totals) == 0 {
		return nil
	}

	shares := make([]SectorShare, 0, len(totals))
	for sector, total := range totals {
		share := 0.0
		if grand > 0 {
			share = total / grand
		}
		shares = append(shares, SectorShare{Sector: sector, Total: total, Share: share})
	}
	sort.Slice(shares, func(i, j int) bool {
		if shares[i].Total != shares[j].Total {
			return shares[i].Total > shares[j].Total
		}
		return shares[i].Sector < shares[j].Sector
	})
	return shares
}

// FacilityTotal is one facility's aggregate emissions.
type FacilityTotal struct {
	FacilityID   string  `json:"facility_id"`
	FacilityName string  `json:"facility_name"`
	Total        float64 `json:"total"`
}

// TopFacilities ranks facilities by total emissions and returns the top n.
func TopFacilities(records []domain.EmissionRecord, n int) []FacilityTotal {
	if n <= 0 {
		return nil
	}
	totals := make(map[string]*FacilityTotal)
	for _, record := range records {
		if record.FacilityID == "" {
			continue
		}
		entry, ok := totals[record.FacilityID]
		if !ok {
			entry = &FacilityTotal{FacilityID: record.FacilityID, FacilityName: record.FacilityName}
			totals[record.FacilityID] = entry
		}
		entry.Total += record.Quantity
	}

	ranked := make([]FacilityTotal, 0, len(totals))
	for _, entry := range totals {
		ranked = append(ranked, *entry)
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Total != ranked[j].Total {
			return ranked[i].Total > ranked[j].Total
		}
		return ranked[i].FacilityID < ranked[j].FacilityID
	})
	if len(ranked) > n {
		ranked = ranked[:n]
	}
	return ranked
}

// AnnualTotal is one reporting year's aggregate emissions.
type AnnualTotal struct {
	Year  int     `json:"year"`
	Total float64 `json:"total"`
}

// AnnualTotals sums emissions per reporting year, sorted ascending by year.
func AnnualTotals(records []domain.EmissionRecord) []AnnualTotal {
	totals := make(map[int]float64)
	for _, record := range records {
		totals[record.Year] += record.Quantity
	}
	if len(totals) == 0 {
		return nil
	}

	years := make([]AnnualTotal, 0, len(totals))
	for year, total := range totals {
		years = append(years, AnnualTotal{Year: year, Total: total})
	}
	sort.Slice(years, func(i, j int) bool { return years[i].Year < years[j].Year })
	return years
}
