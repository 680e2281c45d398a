package domain

// ValidationResult is produced once per RawRecord. A record with zero
// errors is accepted; any error rejects it and keeps it out of
// normalization and aggregation. Errors are collected in rule order so the
// run log shows every violation, not just the first.
type ValidationResult struct {
	Record   RawRecord `json:"record"`
	Accepted bool      `json:"accepted"`
	Errors   []string  `json:"errors,omitempty"`
}

// RejectionReason is one entry in the per-run breakdown of why records
// were rejected.
type RejectionReason struct {
	Reason string `json:"reason"`
	Count  int    `json:"count"`
}
