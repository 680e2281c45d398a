package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// Dimension names one axis records can be grouped by.
type Dimension string

const (
	DimState  Dimension = "state"
	DimCounty Dimension = "county"
	DimSector Dimension = "sector"
	DimYear   Dimension = "year"
)

// GroupKey is the tuple of dimensions a partition is keyed by. Dimensions
// not selected for a grouping stay at their zero value, so keys compare by
// structural equality and can be used directly as map keys.
type GroupKey struct {
	State      string `json:"state,omitempty"`
	CountyFIPS string `json:"county_fips,omitempty"`
	Sector     string `json:"sector,omitempty"`
	Year       int    `json:"year,omitempty"`
}

// Less orders keys ascending by (State, CountyFIPS, Sector, Year) so
// aggregate output is deterministic across runs.
func (k GroupKey) Less(other GroupKey) bool {
	if k.State != other.State {
		return k.State < other.State
	}
	if k.CountyFIPS != other.CountyFIPS {
		return k.CountyFIPS < other.CountyFIPS
	}
	if k.Sector != other.Sector {
		return k.Sector < other.Sector
	}
	return k.Year < other.Year
}

// String renders the populated dimensions as "state=NJ sector=Power year=2020".
func (k GroupKey) String() string {
	parts := make([]string, 0, 4)
	if k.State != "" {
		parts = append(parts, "state="+k.State)
	}
	if k.CountyFIPS != "" {
		parts = append(parts, "county="+k.CountyFIPS)
	}
	if k.Sector != "" {
		parts = append(parts, "sector="+k.Sector)
	}
	if k.Year != 0 {
		parts = append(parts, "year="+strconv.Itoa(k.Year))
	}
	if len(parts) == 0 {
		return "(all)"
	}
	return strings.Join(parts, " ")
}

// AggregateRow is one emitted partition: summary statistics of Quantity
// over every record sharing the group key. Rows are immutable once
// produced. A group with zero records is never emitted.
type AggregateRow struct {
	Key           GroupKey `json:"key"`
	TotalQuantity float64  `json:"total_quantity"`
	RecordCount   int      `json:"record_count"`
	Mean          float64  `json:"mean"`
	Min           float64  `json:"min"`
	Max           float64  `json:"max"`
}

// CSVHeader lists the column layout used by every aggregate export.
func (AggregateRow) CSVHeader() []string {
	return []string{"state", "county_fips", "sector", "year", "total_quantity", "record_count", "mean", "min", "max"}
}

// CSVRow renders the row in CSVHeader order.
func (a AggregateRow) CSVRow() []string {
	year := ""
	if a.Key.Year != 0 {
		year = strconv.Itoa(a.Key.Year)
	}
	return []string{
		a.Key.State,
		a.Key.CountyFIPS,
		a.Key.Sector,
		year,
		fmt.Sprintf("%.4f", a.TotalQuantity),
		strconv.Itoa(a.RecordCount),
		fmt.Sprintf("%.4f", a.Mean),
		fmt.Sprintf("%.4f", a.Min),
		fmt.Sprintf("%.4f", a.Max),
	}
}
