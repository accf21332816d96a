package pipeline

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/leadscout/internal/classify"
	"github.com/sells-group/leadscout/internal/model"
	"github.com/sells-group/leadscout/internal/progress"
)

// run is the state of one Pipeline.Run. It is owned by the run goroutine.
type run struct {
	p   *Pipeline
	id  string
	req model.RunRequest
	// work carries values but not cancellation, so in-flight page
	// operations finish cleanly after a stop request.
	work context.Context

	state   model.RunState
	stats   model.RunStats
	leads   []model.Lead
	visited map[string]bool

	area     string
	category string
	recorded bool

	classifierBase classify.Stats
}

func (r *run) setState(s model.RunState) {
	if r.state != s {
		zap.L().Debug("pipeline: state", zap.String("run_id", r.id), zap.String("from", string(r.state)), zap.String("to", string(s)))
		r.state = s
	}
}

func (r *run) emit(e progress.Event) {
	e.RunID = r.id
	if e.Area == "" {
		e.Area = r.area
	}
	if e.Category == "" {
		e.Category = r.category
	}
	if e.Time.IsZero() {
		e.Time = time.Now().UTC()
	}
	r.p.deps.Events.Emit(e)
}

// loop walks every region and category. It returns false when ctx was
// cancelled before the walk finished.
func (r *run) loop(ctx context.Context) bool {
	f := r.req.Filters
	for ri, region := range r.req.Regions {
		if ctx.Err() != nil {
			return false
		}
		r.setState(model.RunStateRegion)
		r.area, r.category = region.PostalCode, ""
		r.emit(progress.Event{
			Status:  progress.StatusAreaStart,
			Current: ri + 1,
			Total:   len(r.req.Regions),
			Message: "Processing area: " + region.String(),
		})

		for _, cat := range f.Categories {
			if ctx.Err() != nil {
				return false
			}
			r.setState(model.RunStateCategory)
			r.category = cat.Name
			r.emit(progress.Event{Status: progress.StatusCategoryStart, Message: "Processing category: " + cat.Name})

			businesses := r.discover(region, cat)
			r.stats.BusinessesFound += len(businesses)
			r.emit(progress.Event{
				Status:  progress.StatusBusinessesFound,
				Count:   len(businesses),
				Message: fmt.Sprintf("Found %d businesses for %s in %s", len(businesses), cat.Name, region.PostalCode),
			})

			for i, c := range businesses {
				if ctx.Err() != nil {
					return false
				}
				if r.visited[c.SourceURL] {
					r.stats.BusinessesSkipped++
					r.emit(progress.Event{
						Status:   progress.StatusBusinessSkipped,
						Business: c.Name,
						Current:  i + 1,
						Total:    len(businesses),
						Message:  "Already processed: " + c.Name,
					})
					continue
				}
				r.visited[c.SourceURL] = true

				r.emit(progress.Event{
					Status:   progress.StatusBusinessProcessing,
					Business: c.Name,
					Current:  i + 1,
					Total:    len(businesses),
					Message:  fmt.Sprintf("Processing %s (%d/%d)", c.Name, i+1, len(businesses)),
				})
				if err := r.processBusiness(c, region); err != nil {
					r.stats.BusinessesFailed++
					zap.L().Warn("pipeline: business failed, skipping",
						zap.String("run_id", r.id),
						zap.String("business", c.Name),
						zap.String("url", c.SourceURL),
						zap.Error(err),
					)
					continue
				}
				r.stats.BusinessesProcessed++
			}

			pause(ctx, r.p.opts.CategoryPause)
		}
		pause(ctx, r.p.opts.RegionPause)
	}
	return ctx.Err() == nil
}

// finish closes the run with a terminal state.
func (r *run) finish(state model.RunState, errMsg string) *model.RunResult {
	r.setState(state)
	r.stats.FinishedAt = time.Now().UTC()
	r.collectClassifierStats()
	if r.p.deps.EventsDropped != nil {
		r.stats.EventsDropped = r.p.deps.EventsDropped()
	}

	status := progress.StatusCompleted
	msg := "Scraping completed!"
	switch state {
	case model.RunStateStopped:
		status, msg = progress.StatusStopped, "Scraping stopped"
	case model.RunStateError:
		status, msg = progress.StatusError, errMsg
	}
	stats := r.stats
	r.emit(progress.Event{Status: status, Stats: &stats, Count: len(r.leads), Message: msg})

	if r.recorded {
		if err := r.p.deps.Runs.FinishRun(r.work, r.id, model.StatusForState(state), r.stats, errMsg); err != nil {
			zap.L().Warn("pipeline: failed to record run outcome", zap.String("run_id", r.id), zap.Error(err))
		}
	}

	zap.L().Info("pipeline: run finished",
		zap.String("run_id", r.id),
		zap.String("state", string(state)),
		zap.Int("leads", r.stats.Leads),
		zap.Int("businesses_processed", r.stats.BusinessesProcessed),
		zap.Int("reviews_classified", r.stats.ReviewsClassified),
		zap.Float64("estimated_cost_usd", r.stats.EstimatedCostUSD),
		zap.Duration("duration", r.stats.Duration()),
	)

	leads := r.leads
	if leads == nil {
		leads = []model.Lead{}
	}
	return &model.RunResult{RunID: r.id, State: state, Leads: leads, Stats: r.stats, Error: errMsg}
}

// fail ends the run on a fatal error. No leads are reported.
func (r *run) fail(err error) (*model.RunResult, error) {
	zap.L().Error("pipeline: run failed", zap.String("run_id", r.id), zap.Error(err))
	r.leads = nil
	res := r.finish(model.RunStateError, err.Error())
	return res, err
}

func (r *run) collectClassifierStats() {
	s, ok := r.p.deps.Classifier.(statsReporter)
	if !ok {
		return
	}
	now := s.Stats()
	r.stats.ClassifierErrors = now.Errors - r.classifierBase.Errors
	r.stats.EstimatedCostUSD = now.CostUSD - r.classifierBase.CostUSD
}

// pause sleeps for d or until ctx is done.
func pause(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
