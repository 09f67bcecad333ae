package dto

import (
	"time"
)

// FailureReason classifies why a single detail fetch did not produce an update.
type FailureReason string

const (
	FailureTransport     FailureReason = "transport"
	FailureLayoutChanged FailureReason = "layout_changed"
	FailureAllowList     FailureReason = "allow_list"
	FailurePersistence   FailureReason = "persistence"
	FailureCancelled     FailureReason = "cancelled"
	FailureOther         FailureReason = "other"
)

// BootstrapSummary describes the listing step of a run.
type BootstrapSummary struct {
	Skipped    bool `json:"skipped"`
	Discovered int  `json:"discovered"`
	Stored     int  `json:"stored"`
	Rejected   int  `json:"rejected"`
}

// RunSummary is the outcome of one pipeline run.
type RunSummary struct {
	RunID      string                `json:"run_id"`
	Trigger    string                `json:"trigger"`
	StartedAt  time.Time             `json:"started_at"`
	FinishedAt time.Time             `json:"finished_at"`
	Bootstrap  BootstrapSummary      `json:"bootstrap"`
	Attempted  int                   `json:"attempted"`
	Succeeded  int                   `json:"succeeded"`
	Failed     int                   `json:"failed"`
	Failures   map[FailureReason]int `json:"failures"`
	Ambiguous  int                   `json:"ambiguous_values"`
	Error      string                `json:"error,omitempty"`
}

// Duration returns the wall time the run took.
func (s RunSummary) Duration() time.Duration {
	return s.FinishedAt.Sub(s.StartedAt)
}

// StartCrawlResponse is returned by POST /crawls.
type StartCrawlResponse struct {
	RunID  string `json:"run_id"`
	Status string `json:"status"`
}

// CrawlRunResponse is the API view of a stored run.
type CrawlRunResponse struct {
	ID           string      `json:"id"`
	Trigger      string      `json:"trigger"`
	Status       string      `json:"status"`
	StartedAt    time.Time   `json:"started_at"`
	CompletedAt  *time.Time  `json:"completed_at,omitempty"`
	Summary      *RunSummary `json:"summary,omitempty"`
	ErrorMessage string      `json:"error_message,omitempty"`
}
