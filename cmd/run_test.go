//go:build !integration

package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/leadscout/internal/model"
	"github.com/sells-group/leadscout/internal/progress"
)

func sampleLead() model.Lead {
	return model.Lead{
		ID:    "lead-1",
		RunID: "run-1",
		Business: model.BusinessRecord{
			BusinessCandidate: model.BusinessCandidate{Name: "Le Bistrot", Rating: 3.8, ReviewCount: 120},
			Email:             "contact@bistrot.fr",
			Website:           "https://bistrot.fr",
			Region:            model.Region{PostalCode: "75011", Country: "France"},
		},
		FlaggedReviews: []model.FlaggedReview{
			{Review: model.Review{Rating: 1, Text: "scam"}},
			{Review: model.Review{Rating: 2, Text: "scam again"}},
		},
	}
}

func TestRenderSummary_WithLeads(t *testing.T) {
	start := time.Date(2025, 6, 15, 10, 0, 0, 0, time.UTC)
	res := &model.RunResult{
		RunID: "abc12345-6789",
		State: model.RunStateCompleted,
		Leads: []model.Lead{sampleLead()},
		Stats: model.RunStats{
			BusinessesFound:  12,
			Leads:            1,
			EstimatedCostUSD: 0.0123,
			StartedAt:        start,
			FinishedAt:       start.Add(90 * time.Second),
		},
	}

	var buf bytes.Buffer
	renderSummary(&buf, res, []string{"out/violations_leads_x.csv"})

	output := buf.String()
	assert.Contains(t, strings.ToLower(output), "run abc12345 completed")
	assert.Contains(t, output, "Businesses found")
	assert.Contains(t, output, "$0.0123")
	assert.Contains(t, output, "1m30s")
	assert.Contains(t, output, "Le Bistrot")
	assert.Contains(t, output, "contact@bistrot.fr")
	assert.Contains(t, output, "Wrote out/violations_leads_x.csv")
}

func TestRenderSummary_NoLeads(t *testing.T) {
	res := &model.RunResult{RunID: "r", State: model.RunStateStopped}

	var buf bytes.Buffer
	renderSummary(&buf, res, nil)

	output := buf.String()
	assert.Contains(t, strings.ToLower(output), "stopped")
	assert.Contains(t, output, "No leads found; no export files written.")
	assert.NotContains(t, output, "Business ")
}

func TestConsolePrinter(t *testing.T) {
	var buf bytes.Buffer
	p := newConsolePrinter(&buf)
	now := time.Now()

	p.Emit(progress.Event{Status: progress.StatusSearching, Message: "Searching for cafe in 75011 France...", Time: now})
	p.Emit(progress.Event{Status: progress.StatusClassifyingReviews, Message: "Classifying review 1/5", Time: now})
	p.Emit(progress.Event{Status: progress.StatusBusinessFiltered, Message: "Found: Le Bistrot", Time: now})
	p.Emit(progress.Event{Status: progress.StatusLeadFound, Message: "LEAD FOUND: Le Bistrot (2 violations)", Time: now})
	p.Emit(progress.Event{Status: progress.StatusInfo, Time: now})

	output := buf.String()
	assert.Contains(t, output, "Searching for cafe in 75011 France...")
	assert.Contains(t, output, "LEAD FOUND: Le Bistrot (2 violations)")
	assert.NotContains(t, output, "Classifying review")
	assert.NotContains(t, output, "Found: Le Bistrot")
	assert.Equal(t, 2, bytes.Count(buf.Bytes(), []byte("\n")))
}

func TestDrain(t *testing.T) {
	events := progress.NewChannel(8)
	events.Emit(progress.Event{Status: progress.StatusStarting})
	events.Emit(progress.Event{Status: progress.StatusCompleted})
	events.Close()

	rec := progress.NewRecorder(10)
	var seen []progress.Status
	drain(events, rec, progress.SinkFunc(func(e progress.Event) { seen = append(seen, e.Status) }))

	assert.Equal(t, []progress.Status{progress.StatusStarting, progress.StatusCompleted}, seen)
	assert.True(t, rec.Done())
}

func TestRenderCategories(t *testing.T) {
	var buf bytes.Buffer
	renderCategories(&buf, []model.Category{
		{Name: "cafe", Tier: 1},
		{Name: "bar", Tier: 1},
		{Name: "spa", Tier: 2},
	})

	output := buf.String()
	assert.Contains(t, output, "cafe, bar")
	assert.Contains(t, output, "spa")
	assert.Contains(t, strings.ToUpper(output), "TIER")
}
