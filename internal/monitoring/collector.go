// Package monitoring watches recent scrape runs and raises webhook alerts.
package monitoring

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/leadscout/internal/model"
	"github.com/sells-group/leadscout/internal/store"
)

// MetricsSnapshot holds a point-in-time view of run health.
type MetricsSnapshot struct {
	RunsTotal    int     `json:"runs_total"`
	RunsComplete int     `json:"runs_complete"`
	RunsStopped  int     `json:"runs_stopped"`
	RunsFailed   int     `json:"runs_failed"`
	RunsRunning  int     `json:"runs_running"`
	// RunsBlocked counts runs that hit at least one verification challenge.
	RunsBlocked  int     `json:"runs_blocked"`
	FailRate     float64 `json:"fail_rate"`

	Leads             int     `json:"leads"`
	ReviewsClassified int     `json:"reviews_classified"`
	ClassifierErrors  int     `json:"classifier_errors"`
	CostUSD           float64 `json:"cost_usd"`

	LookbackHours int       `json:"lookback_hours"`
	CollectedAt   time.Time `json:"collected_at"`
}

// RunLister is the part of store.Store the collector reads.
type RunLister interface {
	ListRuns(ctx context.Context, filter store.RunFilter) ([]model.Run, error)
}

// Collector gathers metrics from stored runs.
type Collector struct {
	runs RunLister
}

// NewCollector creates a new metrics collector.
func NewCollector(runs RunLister) *Collector {
	return &Collector{runs: runs}
}

// Collect gathers a snapshot over runs created in the last lookbackHours.
func (c *Collector) Collect(ctx context.Context, lookbackHours int) (*MetricsSnapshot, error) {
	now := time.Now().UTC()
	snap := &MetricsSnapshot{LookbackHours: lookbackHours, CollectedAt: now}
	cutoff := now.Add(-time.Duration(lookbackHours) * time.Hour)

	runs, err := c.runs.ListRuns(ctx, store.RunFilter{Limit: 10000})
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: list runs")
	}

	for _, r := range runs {
		if r.CreatedAt.Before(cutoff) {
			continue
		}
		snap.RunsTotal++
		switch r.Status {
		case model.RunStatusComplete:
			snap.RunsComplete++
		case model.RunStatusStopped:
			snap.RunsStopped++
		case model.RunStatusFailed:
			snap.RunsFailed++
		default:
			snap.RunsRunning++
		}
		if r.Stats != nil {
			if r.Stats.Challenges > 0 {
				snap.RunsBlocked++
			}
			snap.Leads += r.Stats.Leads
			snap.ReviewsClassified += r.Stats.ReviewsClassified
			snap.ClassifierErrors += r.Stats.ClassifierErrors
			snap.CostUSD += r.Stats.EstimatedCostUSD
		}
	}

	if finished := snap.RunsComplete + snap.RunsStopped + snap.RunsFailed; finished > 0 {
		snap.FailRate = float64(snap.RunsFailed) / float64(finished)
	}
	return snap, nil
}
