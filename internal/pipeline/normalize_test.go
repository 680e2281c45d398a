package pipeline

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "ghgquant/internal/errors"
	"ghgquant/internal/georef"
	"ghgquant/pkg/contracts/domain"
)

func testCountyIndex(t *testing.T) *georef.CountyIndex {
	t.Helper()
	csv := "state_code,county_name,fips\nNJ,Union,34039\nNJ,Essex,34013\n"
	index, err := georef.ReadCountyIndex(strings.NewReader(csv))
	require.NoError(t, err)
	return index
}

func TestNormalizeEPARecord(t *testing.T) {
	n := NewNormalizer(DefaultMappings(), testCountyIndex(t))

	record, err := n.Normalize("epa", domain.RawRecord{
		"facility_id":   "1001234",
		"facility_name": "Linden Generating Station",
		"state":         "nj",
		"county":        "Union County",
		"year":          "2020",
		"sector_name":   "Power Plants",
		"gas_name":      "CO2",
		"co2e_emission": "1523400.5",
	})

	require.NoError(t, err)
	assert.Equal(t, "1001234", record.FacilityID)
	assert.Equal(t, "NJ", record.StateCode, "state codes are upper-cased")
	assert.Equal(t, "34039", record.CountyFIPS, "county names join against the FIPS index")
	assert.Equal(t, 2020, record.Year)
	assert.Equal(t, "Power Plants", record.Sector)
	assert.InDelta(t, 1523400.5, record.Quantity, 1e-9, "EPA quantities are already metric tons")
	assert.Equal(t, "epa", record.SourceID)
}

func TestNormalizeConvertsShortTons(t *testing.T) {
	n := NewNormalizer(DefaultMappings(), nil)

	record, err := n.Normalize("statefile", domain.RawRecord{
		"facility":             "Trenton Cogen",
		"state":                "NJ",
		"county":               "Mercer",
		"year":                 2019,
		"sector":               "Power",
		"pollutant":            "CO2",
		"emissions_short_tons": "1000",
	})

	require.NoError(t, err)
	assert.InDelta(t, 907.18474, record.Quantity, 1e-6, "short tons convert to metric tons")
	assert.Empty(t, record.CountyFIPS, "no index means no FIPS resolution")
}

func TestNormalizeUnknownSourceIsFatal(t *testing.T) {
	n := NewNormalizer(DefaultMappings(), nil)

	_, err := n.Normalize("mystery", domain.RawRecord{"state": "NJ"})

	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypeNormalization))
	assert.Contains(t, err.Error(), `"mystery"`)
}

func TestNormalizeInvalidAfterMappingIsRejection(t *testing.T) {
	n := NewNormalizer(DefaultMappings(), nil)

	// Structurally present but a one-letter state fails the canonical
	// struct check.
	_, err := n.Normalize("epa", domain.RawRecord{
		"facility_id":   "42",
		"state":         "N",
		"year":          2020,
		"sector_name":   "Power",
		"co2e_emission": 10.0,
	})

	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypeValidation),
		"a bad record is a rejection, not a fatal normalization failure")
}

func TestNormalizeAllSeparatesRejectionsFromFatal(t *testing.T) {
	n := NewNormalizer(DefaultMappings(), testCountyIndex(t))

	good := domain.RawRecord{
		"facility_id":   "1",
		"state":         "NJ",
		"county":        "Essex",
		"year":          2021,
		"sector_name":   "Waste",
		"co2e_emission": 12.5,
	}
	bad := domain.RawRecord{
		"facility_id":   "2",
		"state":         "NJ",
		"year":          2021,
		"sector_name":   "Waste",
		"co2e_emission": "unparseable",
	}

	normalized, rejected, err := n.NormalizeAll("epa", []domain.RawRecord{good, bad})

	require.NoError(t, err)
	require.Len(t, normalized, 1)
	require.Len(t, rejected, 1)
	assert.Equal(t, "34013", normalized[0].CountyFIPS)
	assert.False(t, rejected[0].Accepted)

	_, _, err = n.NormalizeAll("mystery", []domain.RawRecord{good})
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypeNormalization))
}

func TestResolveCountyPrefersDirectFIPS(t *testing.T) {
	mappings := DefaultMappings()
	mapping := mappings["statefile"]
	mapping.CountyFIPS = "county_fips"
	mappings["statefile"] = mapping

	n := NewNormalizer(mappings, testCountyIndex(t))

	record, err := n.Normalize("statefile", domain.RawRecord{
		"facility":             "Plant A",
		"state":                "NJ",
		"county":               "Union",
		"county_fips":          "34039",
		"year":                 2020,
		"sector":               "Power",
		"emissions_short_tons": 1,
	})

	require.NoError(t, err)
	assert.Equal(t, "34039", record.CountyFIPS)
}
