package pipeline

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/leadscout/internal/extract"
	"github.com/sells-group/leadscout/internal/feed"
	"github.com/sells-group/leadscout/internal/model"
	"github.com/sells-group/leadscout/internal/progress"
)

// discover searches one category in one region and returns the businesses
// that pass the filters, in feed order.
func (r *run) discover(region model.Region, cat model.Category) []model.BusinessCandidate {
	r.setState(model.RunStateDiscovery)
	r.emit(progress.Event{
		Status:  progress.StatusSearching,
		Message: fmt.Sprintf("Searching for %s in %s...", cat.Name, region.String()),
	})

	target := extract.SearchURL(r.p.opts.SearchURL, cat.Name, region)
	if !r.p.deps.Navigator.Navigate(r.work, target, r.p.opts.NavigateRetries) {
		return nil
	}

	spec := extract.BusinessFeed(cat.Name, r.req.Filters, func(c model.BusinessCandidate, accepted bool) {
		if accepted {
			r.emit(progress.Event{
				Status:   progress.StatusBusinessFiltered,
				Business: c.Name,
				Message:  fmt.Sprintf("Found & filtered: %s (%.1f stars, %d reviews)", c.Name, c.Rating, c.ReviewCount),
			})
			return
		}
		r.stats.BusinessesFiltered++
		r.emit(progress.Event{
			Status:   progress.StatusBusinessFilteredOut,
			Business: c.Name,
			Message:  fmt.Sprintf("Filtered out: %s (%.1f stars, %d reviews) - outside criteria", c.Name, c.Rating, c.ReviewCount),
		})
	})
	spec.StallRounds = r.p.opts.BusinessStallRounds
	spec.MaxRounds = r.p.opts.BusinessMaxRounds
	spec.Settle = r.p.opts.BusinessSettle
	spec.ScrollDelta = r.p.opts.ScrollDelta

	out := feed.Collect(r.work, r.p.deps.Navigator.Page(), spec)
	if out.Err != nil {
		zap.L().Warn("pipeline: search feed ended with error",
			zap.String("category", cat.Name),
			zap.String("region", region.String()),
			zap.Int("collected", len(out.Items)),
			zap.Error(out.Err),
		)
	}
	zap.L().Debug("pipeline: search feed collected",
		zap.String("category", cat.Name),
		zap.String("region", region.String()),
		zap.Int("seen", out.Seen),
		zap.Int("accepted", len(out.Items)),
		zap.Int("rounds", out.Rounds),
		zap.String("reason", string(out.Reason)),
	)
	return out.Items
}

// processBusiness visits one place page, classifies its reviews and, when
// any are flagged, assembles and delivers a lead.
func (r *run) processBusiness(c model.BusinessCandidate, region model.Region) error {
	r.setState(model.RunStateDetails)
	nav := r.p.deps.Navigator
	if !nav.Navigate(r.work, c.SourceURL, r.p.opts.NavigateRetries) {
		return eris.Errorf("pipeline: could not load %s", c.SourceURL)
	}

	record := model.BusinessRecord{BusinessCandidate: c, Region: region}
	html, err := nav.Page().HTML(r.work)
	if err != nil {
		return eris.Wrap(err, "pipeline: read place page")
	}
	details, err := extract.ParseDetails(html)
	if err != nil {
		return err
	}
	mergeDetails(&record, details)

	r.setState(model.RunStateReviews)
	r.emit(progress.Event{Status: progress.StatusScrapingReviews, Business: c.Name, Message: fmt.Sprintf("Scraping reviews for %s...", c.Name)})
	reviews := r.collectReviews(c)
	r.stats.ReviewsScraped += len(reviews)
	r.emit(progress.Event{Status: progress.StatusReviewsCollected, Business: c.Name, Count: len(reviews), Message: fmt.Sprintf("Collected %d reviews", len(reviews))})

	r.setState(model.RunStateClassification)
	flagged := r.classifyReviews(c.Name, reviews)
	if len(flagged) == 0 {
		return nil
	}

	if r.p.deps.Email != nil && record.Website != "" {
		r.emit(progress.Event{Status: progress.StatusInfo, Business: c.Name, Message: "Scraping email from " + record.Website})
		email, err := r.p.deps.Email.Find(r.work, record.Website)
		if err != nil {
			zap.L().Debug("pipeline: email lookup failed", zap.String("website", record.Website), zap.Error(err))
		}
		record.Email = email
	}

	lead := model.Lead{
		ID:             uuid.New().String(),
		RunID:          r.id,
		Business:       record,
		FlaggedReviews: flagged,
	}
	r.leads = append(r.leads, lead)
	r.stats.Leads++

	if r.p.deps.Leads != nil {
		if err := r.p.deps.Leads.SaveLead(r.work, lead); err != nil {
			zap.L().Warn("pipeline: lead delivery incomplete", zap.String("business", c.Name), zap.Error(err))
		}
	}

	out := lead
	r.emit(progress.Event{
		Status:   progress.StatusLeadFound,
		Business: c.Name,
		Count:    lead.ViolationsCount(),
		Lead:     &out,
		Message:  fmt.Sprintf("LEAD FOUND: %s (%d violations)", c.Name, lead.ViolationsCount()),
	})
	return nil
}

// mergeDetails copies place page fields onto the record. Header rating and
// count replace the feed values only when present.
func mergeDetails(rec *model.BusinessRecord, d extract.Details) {
	rec.Address = strings.TrimSpace(d.Address)
	rec.Phone = strings.TrimSpace(d.Phone)
	rec.Website = strings.TrimSpace(d.Website)
	if d.Rating > 0 {
		rec.Rating = d.Rating
	}
	if d.ReviewCount > 0 {
		rec.ReviewCount = d.ReviewCount
	}
}

// collectReviews opens the reviews tab and scrolls the review list,
// returning reviews sorted worst first.
func (r *run) collectReviews(c model.BusinessCandidate) []model.Review {
	page := r.p.deps.Navigator.Page()
	clicked, err := page.Click(r.work, extract.ReviewsTab)
	if err != nil {
		zap.L().Debug("pipeline: reviews tab click failed", zap.String("business", c.Name), zap.Error(err))
	}
	if clicked {
		pause(r.work, r.p.opts.ReviewsTabSettle)
	}

	spec := extract.ReviewFeed(r.req.Filters.MaxReviewsPerBusiness)
	spec.ReadyTimeout = r.p.opts.ReviewWait
	spec.StallRounds = r.p.opts.ReviewStallRounds
	spec.MaxRounds = r.p.opts.ReviewMaxRounds
	spec.Settle = r.p.opts.ReviewSettle
	spec.ScrollDelta = r.p.opts.ScrollDelta
	spec.MaxDuration = r.p.opts.ReviewTimeout

	out := feed.Collect(r.work, page, spec)
	if out.Err != nil {
		zap.L().Warn("pipeline: review feed ended with error",
			zap.String("business", c.Name),
			zap.Int("collected", len(out.Items)),
			zap.Error(out.Err),
		)
	}
	extract.SortWorstFirst(out.Items)
	return out.Items
}

// classifyReviews classifies reviews in order and stops once the violation
// quota is met, unless the filters ask for every review.
func (r *run) classifyReviews(business string, reviews []model.Review) []model.FlaggedReview {
	f := r.req.Filters
	total := len(reviews)
	r.emit(progress.Event{Status: progress.StatusClassifyingReviews, Business: business, Current: 0, Total: total, Message: "Classifying reviews..."})

	var flagged []model.FlaggedReview
	for i, rv := range reviews {
		r.emit(progress.Event{
			Status:   progress.StatusClassifyingReviews,
			Business: business,
			Current:  i + 1,
			Total:    total,
			Message:  fmt.Sprintf("Classifying review %d/%d", i+1, total),
		})

		verdict := r.p.deps.Classifier.Classify(r.work, rv)
		r.stats.ReviewsClassified++
		if !verdict.HasViolation {
			continue
		}

		if len(flagged) < f.MinViolationsToStop {
			flagged = append(flagged, model.FlaggedReview{Review: rv, Classification: verdict})
		}
		r.stats.ViolationsFound++
		r.emit(progress.Event{
			Status:   progress.StatusViolationFound,
			Business: business,
			Count:    len(flagged),
			Message:  fmt.Sprintf("Violation found! (%d total)", len(flagged)),
		})

		if !f.ClassifyAll && len(flagged) >= f.MinViolationsToStop {
			r.stats.ReviewsSkipped += total - (i + 1)
			break
		}
	}
	return flagged
}
