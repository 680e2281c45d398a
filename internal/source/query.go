// Package source contains the clients that fetch raw tabular records from
// upstream emissions data providers.
package source

import (
	"context"
	"fmt"
	"time"

	apperrors "ghgquant/internal/errors"
	"ghgquant/internal/georef"
	"ghgquant/pkg/contracts/domain"
)

// Query identifies one upstream fetch: which source, which state, and the
// optional year and table filters.
type Query struct {
	SourceID  string
	StateCode string
	Year      int
	Table     string
}

// Validate checks the query before any network call is attempted. An
// unregistered state code fails here with a clear input-validation error.
func (q Query) Validate() error {
	if q.SourceID == "" {
		return apperrors.NewValidationError("source id is required")
	}
	if !georef.IsKnownState(q.StateCode) {
		return apperrors.NewValidationError(
			fmt.Sprintf("unknown state code %q: expected a 2-letter code such as NJ", q.StateCode))
	}
	if q.Year != 0 {
		maxYear := time.Now().Year() + 1
		if q.Year < 1990 || q.Year > maxYear {
			return apperrors.NewValidationError(
				fmt.Sprintf("year %d is outside the supported range [1990, %d]", q.Year, maxYear))
		}
	}
	return nil
}

// Fetcher is the contract every source client implements. The returned
// slice is fully materialized; order is source-defined and not guaranteed
// stable across calls.
type Fetcher interface {
	Fetch(ctx context.Context, q Query) ([]domain.RawRecord, error)
}
