// Package pipeline drives one scrape run: search every category in every
// region, visit each new business, collect its reviews worst first, and
// classify them until enough violations are found.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/leadscout/internal/classify"
	"github.com/sells-group/leadscout/internal/model"
	"github.com/sells-group/leadscout/internal/navigator"
	"github.com/sells-group/leadscout/internal/progress"
	"github.com/sells-group/leadscout/internal/sink"
)

// Classifier returns a verdict for one review. It never fails; errors
// surface as a non-violation verdict.
type Classifier interface {
	Classify(ctx context.Context, r model.Review) model.Classification
}

// statsReporter is implemented by classifiers that track calls and cost.
type statsReporter interface {
	Stats() classify.Stats
}

// EmailFinder looks up a contact address on a business website.
type EmailFinder interface {
	Find(ctx context.Context, website string) (string, error)
}

// RunRecorder persists run records. store.Store satisfies it.
type RunRecorder interface {
	CreateRun(ctx context.Context, id string, req model.RunRequest) (*model.Run, error)
	FinishRun(ctx context.Context, runID string, status model.RunStatus, stats model.RunStats, errMsg string) error
}

// Deps are the collaborators of a Pipeline. Navigator and Classifier are
// required; the rest are optional.
type Deps struct {
	Navigator  *navigator.Navigator
	Classifier Classifier
	Email      EmailFinder
	Leads      sink.LeadSink
	Events     progress.Sink
	Runs       RunRecorder
	// EventsDropped reports how many events the host's queue discarded.
	EventsDropped func() int64
}

// Options tune pacing and collection caps. They are fixed for the
// lifetime of a Pipeline.
type Options struct {
	SearchURL       string
	NavigateRetries int

	BusinessStallRounds int
	BusinessMaxRounds   int
	BusinessSettle      time.Duration

	ReviewStallRounds int
	ReviewMaxRounds   int
	ReviewSettle      time.Duration
	ReviewWait        time.Duration
	ReviewTimeout     time.Duration
	ReviewsTabSettle  time.Duration

	ScrollDelta   int
	CategoryPause time.Duration
	RegionPause   time.Duration
}

// DefaultOptions returns the stock pacing.
func DefaultOptions() Options {
	return Options{
		NavigateRetries:     3,
		BusinessStallRounds: 10,
		BusinessMaxRounds:   20,
		BusinessSettle:      1500 * time.Millisecond,
		ReviewStallRounds:   5,
		ReviewMaxRounds:     15,
		ReviewSettle:        time.Second,
		ReviewWait:          10 * time.Second,
		ReviewTimeout:       120 * time.Second,
		ReviewsTabSettle:    2 * time.Second,
		ScrollDelta:         3000,
		CategoryPause:       time.Second,
		RegionPause:         2 * time.Second,
	}
}

// Pipeline runs scrapes. Runs on one Pipeline must not overlap: they share
// a single browser page.
type Pipeline struct {
	deps Deps
	opts Options
}

// New creates a Pipeline.
func New(deps Deps, opts Options) *Pipeline {
	if deps.Events == nil {
		deps.Events = progress.Discard
	}
	return &Pipeline{deps: deps, opts: opts}
}

// Run executes one run to completion, cancellation or fatal failure. Leads
// found before a cancellation are kept. The returned error is non-nil only
// for fatal failures and mirrors the error event.
func (p *Pipeline) Run(ctx context.Context, req model.RunRequest) (*model.RunResult, error) {
	return p.RunWithID(ctx, "", req)
}

// RunWithID is Run with a caller-chosen run ID, so a host can hand the ID
// out before the run starts. An empty id gets a fresh one.
func (p *Pipeline) RunWithID(ctx context.Context, id string, req model.RunRequest) (*model.RunResult, error) {
	r := p.newRun(ctx, id, req)
	log := zap.L().With(zap.String("run_id", r.id))

	r.setState(model.RunStateStarting)
	r.emit(progress.Event{Status: progress.StatusStarting, Message: "Starting scraper..."})

	if err := p.check(req); err != nil {
		return r.fail(err)
	}

	if p.deps.Runs != nil {
		if _, err := p.deps.Runs.CreateRun(r.work, r.id, req); err != nil {
			log.Warn("pipeline: failed to record run", zap.Error(err))
		} else {
			r.recorded = true
		}
	}

	p.deps.Navigator.OnChallenge(func(url string) {
		r.stats.Challenges++
		r.emit(progress.Event{
			Status:  progress.StatusVerificationRequired,
			Message: fmt.Sprintf("Verification required at %s, waiting for it to be solved", url),
		})
	})
	defer p.deps.Navigator.OnChallenge(nil)

	log.Info("pipeline: run started",
		zap.Int("regions", len(req.Regions)),
		zap.Int("categories", len(req.Filters.Categories)),
	)

	if !r.loop(ctx) {
		return r.finish(model.RunStateStopped, "run stopped before completion"), nil
	}
	return r.finish(model.RunStateCompleted, ""), nil
}

// check reports fatal configuration problems.
func (p *Pipeline) check(req model.RunRequest) error {
	switch {
	case p.deps.Navigator == nil:
		return eris.New("pipeline: browser is not available")
	case p.deps.Classifier == nil:
		return eris.New("pipeline: classifier is not configured")
	case len(req.Regions) == 0:
		return eris.New("pipeline: at least one region is required")
	}
	return req.Filters.Validate()
}

func (p *Pipeline) newRun(ctx context.Context, id string, req model.RunRequest) *run {
	if id == "" {
		id = uuid.New().String()
	}
	r := &run{
		p:       p,
		id:      id,
		req:     req,
		work:    context.WithoutCancel(ctx),
		visited: make(map[string]bool),
		state:   model.RunStateIdle,
	}
	r.stats.StartedAt = time.Now().UTC()
	if s, ok := p.deps.Classifier.(statsReporter); ok {
		r.classifierBase = s.Stats()
	}
	return r
}
