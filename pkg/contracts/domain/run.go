package domain

import "time"

// RunStatus describes how a pipeline run ended.
type RunStatus string

const (
	RunStatusCompleted RunStatus = "completed"
	RunStatusEmpty     RunStatus = "empty"
	RunStatusFailed    RunStatus = "failed"
)

// RunSummary is the operator-facing record of one pipeline run: what was
// queried, how many records survived each stage, and why the rest did not.
type RunSummary struct {
	RunID         string            `json:"run_id"`
	SourceID      string            `json:"source_id"`
	StateCode     string            `json:"state_code"`
	Year          int               `json:"year,omitempty"`
	Table         string            `json:"table,omitempty"`
	Status        RunStatus         `json:"status"`
	Fetched       int               `json:"fetched"`
	Accepted      int               `json:"accepted"`
	Rejected      int               `json:"rejected"`
	TopRejections []RejectionReason `json:"top_rejections,omitempty"`
	Groups        int               `json:"groups"`
	StartedAt     time.Time         `json:"started_at"`
	FinishedAt    time.Time         `json:"finished_at"`
}

// Duration is the wall-clock time the run took.
func (s RunSummary) Duration() time.Duration {
	return s.FinishedAt.Sub(s.StartedAt)
}
