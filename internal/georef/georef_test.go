package georef

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "ghgquant/internal/errors"
)

func TestStateLookup(t *testing.T) {
	assert.True(t, IsKnownState("NJ"))
	assert.True(t, IsKnownState("nj"), "lookup is case-insensitive")
	assert.True(t, IsKnownState(" tx "), "lookup trims whitespace")
	assert.True(t, IsKnownState("DC"), "the district counts")
	assert.True(t, IsKnownState("PR"), "territories count")
	assert.False(t, IsKnownState("XX"))
	assert.False(t, IsKnownState(""))
	assert.False(t, IsKnownState("NEW JERSEY"), "only 2-letter codes are keys")
}

func TestStateName(t *testing.T) {
	name, ok := StateName("nj")
	require.True(t, ok)
	assert.Equal(t, "NEW JERSEY", name)

	_, ok = StateName("XX")
	assert.False(t, ok)
}

func TestKnownStateCodesCount(t *testing.T) {
	codes := KnownStateCodes()
	assert.Len(t, codes, 56, "50 states, DC, and 5 territories")
}

func TestNormalizeStateCode(t *testing.T) {
	assert.Equal(t, "NJ", NormalizeStateCode(" nj "))
	assert.Equal(t, "TX", NormalizeStateCode("TX"))
}

const countyCSV = `state_code,county_name,fips
NJ,Union,34039
NJ,Essex,34013
LA,Orleans,22071
nj,Mercer,34021
AK,Kodiak Island,02150
`

func TestCountyIndexFIPS(t *testing.T) {
	index, err := ReadCountyIndex(strings.NewReader(countyCSV))
	require.NoError(t, err)
	assert.Equal(t, 5, index.Len())

	tests := []struct {
		state, county, want string
	}{
		{"NJ", "Union", "34039"},
		{"NJ", "union", "34039"},
		{"NJ", "Union County", "34039"},
		{"nj", "MERCER", "34021"},
		{"LA", "Orleans Parish", "22071"},
		{"AK", "Kodiak Island Borough", "02150"},
	}
	for _, tt := range tests {
		fips, ok := index.FIPS(tt.state, tt.county)
		require.True(t, ok, "%s/%s should resolve", tt.state, tt.county)
		assert.Equal(t, tt.want, fips)
	}

	_, ok := index.FIPS("NJ", "Atlantis")
	assert.False(t, ok)
	_, ok = index.FIPS("TX", "Union")
	assert.False(t, ok, "county names resolve within their state only")
}

func TestCountyIndexNilSafe(t *testing.T) {
	var index *CountyIndex
	_, ok := index.FIPS("NJ", "Union")
	assert.False(t, ok)
}

func TestReadCountyIndexRejectsMissingColumns(t *testing.T) {
	_, err := ReadCountyIndex(strings.NewReader("state_code,county_name\nNJ,Union\n"))
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypeParsing))
	assert.Contains(t, err.Error(), "fips")
}

func TestReadCountyIndexSkipsMalformedRows(t *testing.T) {
	csv := "state_code,county_name,fips\nNJ,Union,34039\nNJ,Broken,123\n,NoState,34001\n"
	index, err := ReadCountyIndex(strings.NewReader(csv))
	require.NoError(t, err)
	assert.Equal(t, 1, index.Len(), "rows without a 5-digit FIPS or state are dropped")
}
