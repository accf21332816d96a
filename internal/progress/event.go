// Package progress carries run progress events from the scraper to a host.
package progress

import (
	"time"

	"github.com/sells-group/leadscout/internal/model"
)

// Status tags an Event. Consumers must ignore statuses they do not know.
type Status string

const (
	StatusStarting             Status = "starting"
	StatusAreaStart            Status = "area_start"
	StatusCategoryStart        Status = "category_start"
	StatusSearching            Status = "searching"
	StatusBusinessFiltered     Status = "business_found_filtered"
	StatusBusinessFilteredOut  Status = "business_filtered_out"
	StatusBusinessesFound      Status = "businesses_found"
	StatusBusinessProcessing   Status = "business_processing"
	StatusBusinessSkipped      Status = "business_skipped"
	StatusScrapingReviews      Status = "scraping_reviews"
	StatusReviewsCollected     Status = "reviews_collected"
	StatusClassifyingReviews   Status = "classifying_reviews"
	StatusViolationFound       Status = "violation_found"
	StatusLeadFound            Status = "lead_found"
	StatusVerificationRequired Status = "verification_required"
	StatusInfo                 Status = "info"
	StatusCompleted            Status = "completed"
	StatusStopped              Status = "stopped"
	StatusError                Status = "error"
)

// Terminal reports whether no events follow this status in a run.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusStopped || s == StatusError
}

// Event is one progress record. Fields other than Status and Time are set
// only where they apply.
type Event struct {
	Status   Status          `json:"status"`
	RunID    string          `json:"run_id,omitempty"`
	Area     string          `json:"area,omitempty"`
	Category string          `json:"category,omitempty"`
	Business string          `json:"business,omitempty"`
	Current  int             `json:"current,omitempty"`
	Total    int             `json:"total,omitempty"`
	Count    int             `json:"count,omitempty"`
	Lead     *model.Lead     `json:"lead,omitempty"`
	Stats    *model.RunStats `json:"stats,omitempty"`
	Message  string          `json:"message,omitempty"`
	Time     time.Time       `json:"time"`
}

// Sink receives events. Emit must not block the caller.
type Sink interface {
	Emit(Event)
}

// SinkFunc adapts a function to a Sink.
type SinkFunc func(Event)

func (f SinkFunc) Emit(e Event) { f(e) }

// Discard drops every event.
var Discard Sink = SinkFunc(func(Event) {})

// Multi fans an event out to every sink in order.
type Multi []Sink

func (m Multi) Emit(e Event) {
	for _, s := range m {
		if s != nil {
			s.Emit(e)
		}
	}
}
