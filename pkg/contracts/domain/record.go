package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// RawRecord is one untyped tabular row exactly as a source returned it.
// It carries no guarantees; it is discarded after normalization.
type RawRecord map[string]any

// String returns the named field coerced to a string. The second return
// value is false when the field is absent.
func (r RawRecord) String(key string) (string, bool) {
	v, ok := r[key]
	if !ok || v == nil {
		return "", false
	}
	switch s := v.(type) {
	case string:
		return s, true
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64), true
	case int:
		return strconv.Itoa(s), true
	default:
		return fmt.Sprintf("%v", s), true
	}
}

// Float returns the named field coerced to a float64. It accepts native
// numbers and numeric strings (with surrounding whitespace and thousands
// separators stripped), which is how upstream APIs and spreadsheet exports
// deliver quantities.
func (r RawRecord) Float(key string) (float64, error) {
	v, ok := r[key]
	if !ok || v == nil {
		return 0, fmt.Errorf("field %q is missing", key)
	}
	switch n := v.(type) {
	case float64:
		return n, nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case string:
		s := strings.ReplaceAll(strings.TrimSpace(n), ",", "")
		if s == "" {
			return 0, fmt.Errorf("field %q is empty", key)
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, fmt.Errorf("field %q is not numeric: %q", key, n)
		}
		return f, nil
	default:
		return 0, fmt.Errorf("field %q has unsupported type %T", key, v)
	}
}

// Int is like Float but for whole-number fields such as reporting years.
func (r RawRecord) Int(key string) (int, error) {
	f, err := r.Float(key)
	if err != nil {
		return 0, err
	}
	if f != float64(int(f)) {
		return 0, fmt.Errorf("field %q is not a whole number: %v", key, f)
	}
	return int(f), nil
}

// Clone returns a shallow copy so pipeline stages can annotate records
// without mutating their input.
func (r RawRecord) Clone() RawRecord {
	out := make(RawRecord, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// EmissionRecord is the canonical, schema-unified representation of one
// emissions observation used internally after ingestion. Quantities are
// always metric tons CO2e regardless of the source's native unit.
type EmissionRecord struct {
	FacilityID   string  `json:"facility_id" csv:"FacilityID" validate:"required"`
	FacilityName string  `json:"facility_name,omitempty" csv:"FacilityName"`
	StateCode    string  `json:"state_code" csv:"StateCode" validate:"required,len=2"`
	CountyFIPS   string  `json:"county_fips,omitempty" csv:"CountyFIPS" validate:"omitempty,len=5,numeric"`
	Year         int     `json:"year" csv:"Year" validate:"required,min=1990,max=9999"`
	Sector       string  `json:"sector" csv:"Sector" validate:"required"`
	Pollutant    string  `json:"pollutant,omitempty" csv:"Pollutant"`
	Quantity     float64 `json:"quantity" csv:"Quantity" validate:"min=0"`
	SourceID     string  `json:"source_id" csv:"SourceID" validate:"required"`
}
