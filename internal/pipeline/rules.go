// Package pipeline implements the ingestion core: per-record validation,
// normalization into the canonical emissions record, and regional
// aggregation. Stages run sequentially over fully materialized
// collections and never mutate their input.
package pipeline

import (
	"time"

	"ghgquant/internal/config"
)

// RuleSet is the declarative validation schema for one source. Rules are
// data, not code, so adding a provider means registering a RuleSet and a
// field mapping instead of subclassing anything.
type RuleSet struct {
	// RequiredFields must all be present on a record.
	RequiredFields []string
	// NumericFields must parse as floats. Checked in order.
	NumericFields []string
	// MinValues and MaxValues bound individual numeric fields.
	MinValues map[string]float64
	MaxValues map[string]float64
	// YearField, when set, must parse as a whole year within
	// [MinYear, MaxYear].
	YearField string
	MinYear   int
	MaxYear   int
}

// DefaultRuleSets returns the validation schemas for the registered
// sources. The year ceiling follows the clock: sources publish
// preliminary data for the reporting year in progress.
func DefaultRuleSets(cfg config.PipelineConfig, now time.Time) map[string]RuleSet {
	maxYear := now.Year() + 1
	return map[string]RuleSet{
		"epa": {
			RequiredFields: []string{"facility_id", "state", "year", "sector_name", "co2e_emission"},
			NumericFields:  []string{"co2e_emission"},
			MinValues:      map[string]float64{"co2e_emission": 0},
			MaxValues:      map[string]float64{"co2e_emission": cfg.MaxQuantity},
			YearField:      "year",
			MinYear:        cfg.MinYear,
			MaxYear:        maxYear,
		},
		"statefile": {
			RequiredFields: []string{"facility", "state", "year", "sector", "emissions_short_tons"},
			NumericFields:  []string{"emissions_short_tons"},
			MinValues:      map[string]float64{"emissions_short_tons": 0},
			MaxValues:      map[string]float64{"emissions_short_tons": cfg.MaxQuantity},
			YearField:      "year",
			MinYear:        cfg.MinYear,
			MaxYear:        maxYear,
		},
	}
}
