package georef

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"

	apperrors "ghgquant/internal/errors"
)

// CountyIndex resolves county names to 5-digit FIPS codes per state. The
// index is loaded from a reference CSV (state_code,county_name,fips) and
// is immutable once built.
type CountyIndex struct {
	byState map[string]map[string]string
}

// LoadCountyIndex reads the reference CSV at path. The file must carry a
// header row with state_code, county_name and fips columns in any order.
func LoadCountyIndex(path string) (*CountyIndex, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, apperrors.NewConfigError(fmt.Sprintf("county reference file %s is not readable", path), err)
	}
	defer f.Close()
	return ReadCountyIndex(f)
}

// ReadCountyIndex parses county reference data from r.
func ReadCountyIndex(r io.Reader) (*CountyIndex, error) {
	reader := csv.NewReader(r)
	header, err := reader.Read()
	if err != nil {
		return nil, apperrors.NewParsingError("county reference data has no header row", err)
	}

	cols := map[string]int{}
	for i, name := range header {
		cols[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, required := range []string{"state_code", "county_name", "fips"} {
		if _, ok := cols[required]; !ok {
			return nil, apperrors.NewParsingError(fmt.Sprintf("county reference data is missing column %q", required), nil)
		}
	}

	idx := &CountyIndex{byState: make(map[string]map[string]string)}
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, apperrors.NewParsingError("county reference data is malformed", err)
		}
		state := NormalizeStateCode(row[cols["state_code"]])
		county := normalizeCountyName(row[cols["county_name"]])
		fips := strings.TrimSpace(row[cols["fips"]])
		if state == "" || county == "" || len(fips) != 5 {
			continue
		}
		if idx.byState[state] == nil {
			idx.byState[state] = make(map[string]string)
		}
		idx.byState[state][county] = fips
	}
	return idx, nil
}

// FIPS resolves a county name within a state to its FIPS code. The lookup
// tolerates case differences and the trailing " County", " Parish", and
// " Borough" suffixes, which some sources include and others do not.
func (c *CountyIndex) FIPS(stateCode, countyName string) (string, bool) {
	if c == nil {
		return "", false
	}
	counties, ok := c.byState[NormalizeStateCode(stateCode)]
	if !ok {
		return "", false
	}
	fips, ok := counties[normalizeCountyName(countyName)]
	return fips, ok
}

// Len returns the number of counties indexed.
func (c *CountyIndex) Len() int {
	n := 0
	for _, counties := range c.byState {
		n += len(counties)
	}
	return n
}

func normalizeCountyName(name string) string {
	name = strings.ToUpper(strings.TrimSpace(name))
	name = strings.TrimSuffix(name, " COUNTY")
	name = strings.TrimSuffix(name, " PARISH")
	name = strings.TrimSuffix(name, " BOROUGH")
	return name
}
