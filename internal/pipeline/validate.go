package pipeline

import (
	"fmt"

	"ghgquant/internal/georef"
	"ghgquant/pkg/contracts/domain"
)

// Validator checks raw records against a RuleSet. Validation is
// side-effect-free and deterministic: the same record always yields the
// same result, and every violation is collected rather than
// short-circuiting on the first.
type Validator struct {
	rules RuleSet
}

// NewValidator creates a validator for one source's rule set.
func NewValidator(rules RuleSet) *Validator {
	return &Validator{rules: rules}
}

// Validate checks one record. The input is never mutated. A record with
// zero violations is accepted.
func (v *Validator) Validate(record domain.RawRecord) domain.ValidationResult {
	var errs []string

	missing := make(map[string]bool, len(v.rules.RequiredFields))
	for _, field := range v.rules.RequiredFields {
		if val, ok := record.String(field); !ok || val == "" {
			errs = append(errs, fmt.Sprintf("required field %q is missing", field))
			missing[field] = true
		}
	}

	for _, field := range v.rules.NumericFields {
		if missing[field] {
			continue
		}
		value, err := record.Float(field)
		if err != nil {
			errs = append(errs, err.Error())
			continue
		}
		if min, ok := v.rules.MinValues[field]; ok && value < min {
			errs = append(errs, fmt.Sprintf("field %q value %v is below minimum %v", field, value, min))
		}
		if max, ok := v.rules.MaxValues[field]; ok && value > max {
			errs = append(errs, fmt.Sprintf("field %q value %v exceeds maximum %v", field, value, max))
		}
	}

	if v.rules.YearField != "" && !missing[v.rules.YearField] {
		year, err := record.Int(v.rules.YearField)
		switch {
		case err != nil:
			errs = append(errs, fmt.Sprintf("field %q is not a valid year", v.rules.YearField))
		case year < v.rules.MinYear || year > v.rules.MaxYear:
			errs = append(errs, fmt.Sprintf("year %d is outside the supported range [%d, %d]",
				year, v.rules.MinYear, v.rules.MaxYear))
		}
	}

	if state, ok := record.String("state"); ok && state != "" {
		if !georef.IsKnownState(state) {
			errs = append(errs, fmt.Sprintf("unknown state code %q", state))
		}
	}

	return domain.ValidationResult{
		Record:   record,
		Accepted: len(errs) == 0,
		Errors:   errs,
	}
}

// ValidateAll validates a batch and partitions it. The completeness
// invariant holds by construction: len(accepted) + len(rejected) equals
// the input length.
func (v *Validator) ValidateAll(records []domain.RawRecord) (accepted []domain.RawRecord, rejected []domain.ValidationResult) {
	for _, record := range records {
		result := v.Validate(record)
		if result.Accepted {
			accepted = append(accepted, record)
		} else {
			rejected = append(rejected, result)
		}
	}
	return accepted, rejected
}
