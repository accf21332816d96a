package model

import (
	"time"
)

// RunState is the orchestrator's position in its state machine.
type RunState string

const (
	RunStateIdle           RunState = "idle"
	RunStateStarting       RunState = "starting"
	RunStateRegion         RunState = "region"
	RunStateCategory       RunState = "category"
	RunStateDiscovery      RunState = "discovery"
	RunStateDetails        RunState = "details"
	RunStateReviews        RunState = "reviews"
	RunStateClassification RunState = "classification"
	RunStateCompleted      RunState = "completed"
	RunStateStopped        RunState = "stopped"
	RunStateError          RunState = "error"
)

// Terminal reports whether no further transitions follow this state.
func (s RunState) Terminal() bool {
	switch s {
	case RunStateCompleted, RunStateStopped, RunStateError:
		return true
	}
	return false
}

// RunStatus is the persisted lifecycle status of a run.
type RunStatus string

const (
	RunStatusRunning  RunStatus = "running"
	RunStatusComplete RunStatus = "complete"
	RunStatusStopped  RunStatus = "stopped"
	RunStatusFailed   RunStatus = "failed"
)

// StatusForState maps a terminal orchestrator state to its persisted status.
func StatusForState(s RunState) RunStatus {
	switch s {
	case RunStateCompleted:
		return RunStatusComplete
	case RunStateStopped:
		return RunStatusStopped
	case RunStateError:
		return RunStatusFailed
	default:
		return RunStatusRunning
	}
}

// RunStats holds the counters for one run.
type RunStats struct {
	BusinessesFound     int       `json:"businesses_found"`
	BusinessesFiltered  int       `json:"businesses_filtered"`
	BusinessesSkipped   int       `json:"businesses_skipped"`
	BusinessesProcessed int       `json:"businesses_processed"`
	BusinessesFailed    int       `json:"businesses_failed"`
	ReviewsScraped      int       `json:"reviews_scraped"`
	ReviewsClassified   int       `json:"reviews_classified"`
	ReviewsSkipped      int       `json:"reviews_skipped"`
	ClassifierErrors    int       `json:"classifier_errors"`
	ViolationsFound     int       `json:"violations_found"`
	Leads               int       `json:"leads"`
	EventsDropped       int64     `json:"events_dropped"`
	Challenges          int       `json:"challenges"`
	EstimatedCostUSD    float64   `json:"estimated_cost_usd"`
	StartedAt           time.Time `json:"started_at"`
	FinishedAt          time.Time `json:"finished_at,omitempty"`
}

// Duration returns the run's wall-clock time, or zero if unfinished.
func (s RunStats) Duration() time.Duration {
	if s.StartedAt.IsZero() || s.FinishedAt.IsZero() {
		return 0
	}
	return s.FinishedAt.Sub(s.StartedAt)
}

// RunRequest is what a host passes to start a run.
type RunRequest struct {
	Regions []Region `json:"regions"`
	Filters Filters  `json:"filters"`
}

// RunResult is the outcome of one run.
type RunResult struct {
	RunID string   `json:"run_id"`
	State RunState `json:"state"`
	Leads []Lead   `json:"leads"`
	Stats RunStats `json:"stats"`
	Error string   `json:"error,omitempty"`
}

// Run is a persisted run record.
type Run struct {
	ID        string     `json:"id"`
	Request   RunRequest `json:"request"`
	Status    RunStatus  `json:"status"`
	Stats     *RunStats  `json:"stats,omitempty"`
	Error     string     `json:"error,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}
