package pipeline

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	apperrors "ghgquant/internal/errors"
	"ghgquant/internal/georef"
	"ghgquant/pkg/contracts/domain"
)

// ShortTonsToMetric converts US short tons to metric tons.
const ShortTonsToMetric = 0.90718474

// Mapping declares how one source's column names and units map onto the
// canonical record. Entries are source field names; UnitFactor converts
// the source's native unit into metric tons CO2e.
type Mapping struct {
	FacilityID   string
	FacilityName string
	State        string
	County       string
	CountyFIPS   string
	Year         string
	Sector       string
	Pollutant    string
	Quantity     string
	UnitFactor   float64
}

// DefaultMappings returns the registered source mappings. EPA reports
// quantities in metric tons CO2e already; state portal files use short
// tons.
func DefaultMappings() map[string]Mapping {
	return map[string]Mapping{
		"epa": {
			FacilityID:   "facility_id",
			FacilityName: "facility_name",
			State:        "state",
			County:       "county",
			Year:         "year",
			Sector:       "sector_name",
			Pollutant:    "gas_name",
			Quantity:     "co2e_emission",
			UnitFactor:   1,
		},
		"statefile": {
			FacilityID:   "facility",
			FacilityName: "facility",
			State:        "state",
			County:       "county",
			Year:         "year",
			Sector:       "sector",
			Pollutant:    "pollutant",
			Quantity:     "emissions_short_tons",
			UnitFactor:   ShortTonsToMetric,
		},
	}
}

// Normalizer maps heterogeneous source schemas into the canonical
// emissions record. It is a pure function plus a mapping table: per-source
// behavior lives in data, not in type hierarchies.
type Normalizer struct {
	mappings map[string]Mapping
	counties *georef.CountyIndex
	validate *validator.Validate
}

// NewNormalizer creates a normalizer with the given mapping table. The
// county index is optional; without it CountyFIPS stays empty unless the
// source carries it directly.
func NewNormalizer(mappings map[string]Mapping, counties *georef.CountyIndex) *Normalizer {
	return &Normalizer{
		mappings: mappings,
		counties: counties,
		validate: validator.New(),
	}
}

// Normalize converts one accepted record. A source id with no registered
// mapping is a configuration gap and fails with a normalization error,
// which is fatal for the run.
func (n *Normalizer) Normalize(sourceID string, record domain.RawRecord) (domain.EmissionRecord, error) {
	mapping, ok := n.mappings[sourceID]
	if !ok {
		return domain.EmissionRecord{}, apperrors.NewNormalizationError(
			fmt.Sprintf("no field mapping registered for source %q", sourceID), nil)
	}

	quantity, err := record.Float(mapping.Quantity)
	if err != nil {
		return domain.EmissionRecord{}, apperrors.NewValidationError(err.Error())
	}
	year, err := record.Int(mapping.Year)
	if err != nil {
		return domain.EmissionRecord{}, apperrors.NewValidationError(err.Error())
	}

	facilityID, _ := record.String(mapping.FacilityID)
	facilityName, _ := record.String(mapping.FacilityName)
	state, _ := record.String(mapping.State)
	sector, _ := record.String(mapping.Sector)
	pollutant, _ := record.String(mapping.Pollutant)

	out := domain.EmissionRecord{
		FacilityID:   strings.TrimSpace(facilityID),
		FacilityName: strings.TrimSpace(facilityName),
		StateCode:    georef.NormalizeStateCode(state),
		Year:         year,
		Sector:       strings.TrimSpace(sector),
		Pollutant:    strings.TrimSpace(pollutant),
		Quantity:     quantity * mapping.UnitFactor,
		SourceID:     sourceID,
	}
	out.CountyFIPS = n.resolveCounty(mapping, record, out.StateCode)

	if err := n.validate.Struct(out); err != nil {
		return domain.EmissionRecord{}, apperrors.NewValidationError(
			fmt.Sprintf("normalized record is invalid: %v", err))
	}
	return out, nil
}

// resolveCounty prefers a FIPS code carried by the source and falls back
// to joining the county name against the reference index.
func (n *Normalizer) resolveCounty(mapping Mapping, record domain.RawRecord, stateCode string) string {
	if mapping.CountyFIPS != "" {
		if fips, ok := record.String(mapping.CountyFIPS); ok {
			fips = strings.TrimSpace(fips)
			if len(fips) == 5 {
				return fips
			}
		}
	}
	if mapping.County != "" && n.counties != nil {
		if county, ok := record.String(mapping.County); ok {
			if fips, ok := n.counties.FIPS(stateCode, county); ok {
				return fips
			}
		}
	}
	return ""
}

// NormalizeAll converts a batch of accepted records. Records that turn
// out structurally invalid after mapping are returned as rejections; a
// missing mapping aborts immediately.
func (n *Normalizer) NormalizeAll(sourceID string, records []domain.RawRecord) ([]domain.EmissionRecord, []domain.ValidationResult, error) {
	out := make([]domain.EmissionRecord, 0, len(records))
	var rejected []domain.ValidationResult
	for _, record := range records {
		normalized, err := n.Normalize(sourceID, record)
		if err != nil {
			if apperrors.IsType(err, apperrors.ErrTypeNormalization) {
				return nil, nil, err
			}
			rejected = append(rejected, domain.ValidationResult{
				Record:   record,
				Accepted: false,
				Errors:   []string{err.Error()},
			})
			continue
		}
		out = append(out, normalized)
	}
	return out, rejected, nil
}
