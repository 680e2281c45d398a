package pipeline

import (
	"sort"

	"ghgquant/pkg/contracts/domain"
)

// Aggregator groups normalized records along a set of dimensions and
// computes per-group statistics in a single pass. Groups with zero
// records are never emitted.
type Aggregator struct {
	dims []domain.Dimension
}

// NewAggregator creates an aggregator grouping by the given dimensions.
func NewAggregator(dims ...domain.Dimension) *Aggregator {
	return &Aggregator{dims: dims}
}

// Dimensions returns the grouping dimensions.
func (a *Aggregator) Dimensions() []domain.Dimension {
	return a.dims
}

type accumulator struct {
	total float64
	count int
	min   float64
	max   float64
}

// Aggregate computes totals, counts, and min/mean/max per group. Rows
// come back sorted ascending by group key so repeated runs over the same
// input produce byte-identical output.
func (a *Aggregator) Aggregate(records []domain.EmissionRecord) []domain.AggregateRow {
	groups := make(map[domain.GroupKey]*accumulator)
	for _, record := range records {
		key := a.keyFor(record)
		acc, ok := groups[key]
		if !ok {
			acc = &accumulator{min: record.Quantity, max: record.Quantity}
			groups[key] = acc
		}
		acc.total += record.Quantity
		acc.count++
		if record.Quantity < acc.min {
			acc.min = record.Quantity
		}
		if record.Quantity > acc.max {
			acc.max = record.Quantity
		}
	}

	rows := make([]domain.AggregateRow, 0, len(groups))
	for key, acc := range groups {
		rows = append(rows, domain.AggregateRow{
			Key:           key,
			TotalQuantity: acc.total,
			RecordCount:   acc.count,
			Mean:          acc.total / float64(acc.count),
			Min:           acc.min,
			Max:           acc.max,
		})
	}
	sort.Slice(rows, func(i, j int) bool {
		return rows[i].Key.Less(rows[j].Key)
	})
	return rows
}

// keyFor projects a record onto the grouping dimensions. Dimensions not
// in the set stay zero-valued in the key, so records differing only in
// ungrouped fields land in the same bucket.
func (a *Aggregator) keyFor(record domain.EmissionRecord) domain.GroupKey {
	var key domain.GroupKey
	for _, dim := range a.dims {
		switch dim {
		case domain.DimState:
			key.State = record.StateCode
		case domain.DimCounty:
			key.CountyFIPS = record.CountyFIPS
		case domain.DimSector:
			key.Sector = record.Sector
		case domain.DimYear:
			key.Year = record.Year
		}
	}
	return key
}
