// Package sink delivers each lead, as soon as it is found, to the
// configured destinations.
package sink

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/leadscout/internal/export"
	"github.com/sells-group/leadscout/internal/model"
	"github.com/sells-group/leadscout/pkg/notion"
	"github.com/sells-group/leadscout/pkg/salesforce"
)

// LeadSink persists one lead.
type LeadSink interface {
	SaveLead(ctx context.Context, lead model.Lead) error
}

// Func adapts a function to LeadSink.
type Func func(ctx context.Context, lead model.Lead) error

func (f Func) SaveLead(ctx context.Context, lead model.Lead) error { return f(ctx, lead) }

type named struct {
	name string
	sink LeadSink
}

// Multi fans a lead out to several sinks concurrently. A failing sink does
// not stop the others.
type Multi struct {
	sinks []named

	mu       sync.Mutex
	failures map[string]int
}

// NewMulti returns an empty Multi.
func NewMulti() *Multi {
	return &Multi{failures: make(map[string]int)}
}

// Add registers s under name. Nil sinks are ignored.
func (m *Multi) Add(name string, s LeadSink) *Multi {
	if s != nil {
		m.sinks = append(m.sinks, named{name: name, sink: s})
	}
	return m
}

// Len returns the number of registered sinks.
func (m *Multi) Len() int { return len(m.sinks) }

// SaveLead writes lead to every sink and returns the joined failures.
func (m *Multi) SaveLead(ctx context.Context, lead model.Lead) error {
	var (
		g    errgroup.Group
		mu   sync.Mutex
		errs []error
	)
	for _, s := range m.sinks {
		g.Go(func() error {
			if err := s.sink.SaveLead(ctx, lead); err != nil {
				zap.L().Warn("sink: save lead failed",
					zap.String("sink", s.name),
					zap.String("business", lead.Business.Name),
					zap.Error(err),
				)
				m.mu.Lock()
				m.failures[s.name]++
				m.mu.Unlock()

				mu.Lock()
				errs = append(errs, eris.Wrapf(err, "sink %s", s.name))
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return errors.Join(errs...)
}

// Failures returns the per-sink failure counts.
func (m *Multi) Failures() map[string]int {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]int, len(m.failures))
	for k, v := range m.failures {
		out[k] = v
	}
	return out
}

// RegionCSV appends each lead to its region's incremental CSV file.
type RegionCSV struct {
	w *export.RegionCSV
}

// NewRegionCSV wraps an incremental region writer.
func NewRegionCSV(w *export.RegionCSV) *RegionCSV {
	return &RegionCSV{w: w}
}

func (r *RegionCSV) SaveLead(_ context.Context, lead model.Lead) error {
	return r.w.Append(lead)
}

// Notion upserts leads into a Notion database keyed by maps URL.
type Notion struct {
	client notion.Client
	dbID   string
}

// NewNotion creates a Notion sink.
func NewNotion(client notion.Client, dbID string) *Notion {
	return &Notion{client: client, dbID: dbID}
}

func (n *Notion) SaveLead(ctx context.Context, lead model.Lead) error {
	b := lead.Business
	_, created, err := notion.UpsertLead(ctx, n.client, n.dbID, notion.LeadPage{
		Name:       b.Name,
		MapsURL:    b.SourceURL,
		Website:    b.Website,
		Email:      b.Email,
		Phone:      b.Phone,
		Address:    b.Address,
		Category:   b.Category,
		Region:     b.Region.String(),
		Rating:     b.Rating,
		Violations: lead.ViolationsCount(),
		Summary:    Summary(lead),
	})
	if err != nil {
		return err
	}
	zap.L().Debug("sink: notion lead saved", zap.String("business", b.Name), zap.Bool("created", created))
	return nil
}

// Salesforce upserts leads as Salesforce Lead records keyed by website.
type Salesforce struct {
	client salesforce.Client
}

// NewSalesforce creates a Salesforce sink.
func NewSalesforce(client salesforce.Client) *Salesforce {
	return &Salesforce{client: client}
}

func (s *Salesforce) SaveLead(ctx context.Context, lead model.Lead) error {
	_, created, err := salesforce.UpsertLead(ctx, s.client, SalesforceFields(lead))
	if err != nil {
		return err
	}
	zap.L().Debug("sink: salesforce lead saved", zap.String("business", lead.Business.Name), zap.Bool("created", created))
	return nil
}

// SalesforceFields maps a lead onto standard Lead object fields.
func SalesforceFields(lead model.Lead) map[string]any {
	b := lead.Business
	fields := map[string]any{
		"Company":     b.Name,
		"Street":      b.Address,
		"PostalCode":  b.Region.PostalCode,
		"Country":     b.Region.Country,
		"Industry":    b.Category,
		"Description": Summary(lead),
	}
	website := b.Website
	if website == "" {
		website = b.SourceURL
	}
	fields["Website"] = website
	if b.Phone != "" {
		fields["Phone"] = b.Phone
	}
	if b.Email != "" {
		fields["Email"] = b.Email
	}
	return fields
}

// Summary renders a short plain-text account of the flagged reviews.
func Summary(lead model.Lead) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%d flagged review(s) on %s (%.1f stars, %d reviews).",
		lead.ViolationsCount(), lead.Business.Name, lead.Business.Rating, lead.Business.ReviewCount)
	for i, fr := range lead.FlaggedReviews {
		types := strings.Join(fr.Classification.ViolationTypes, ", ")
		if types == "" {
			types = "unspecified"
		}
		fmt.Fprintf(&sb, "\n%d. [%s, %.2f] %s", i+1, types, fr.Classification.Confidence, fr.Classification.Reasoning)
	}
	return sb.String()
}
