package main

import (
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/leadscout/internal/config"
	"github.com/sells-group/leadscout/internal/model"
)

// runParams are the per-run overrides accepted by both the run command and
// POST /runs. Nil fields keep the configured defaults.
type runParams struct {
	Regions             []string `json:"regions"`
	Categories          []string `json:"categories,omitempty"`
	Tiers               []int    `json:"tiers,omitempty"`
	Country             string   `json:"country,omitempty"`
	MinRating           *float64 `json:"min_rating,omitempty"`
	MaxRating           *float64 `json:"max_rating,omitempty"`
	MinReviews          *int     `json:"min_reviews,omitempty"`
	MaxReviews          *int     `json:"max_reviews_per_business,omitempty"`
	MinViolationsToStop *int     `json:"min_violations_to_stop,omitempty"`
	ClassifyAll         *bool    `json:"classify_all,omitempty"`
}

// request resolves p against c into a validated run request.
func (p runParams) request(c *config.Config) (model.RunRequest, error) {
	cats, err := p.categories(c)
	if err != nil {
		return model.RunRequest{}, err
	}

	f := c.RunFilters(cats)
	if p.Country != "" {
		f.Country = p.Country
	}
	if p.MinRating != nil {
		f.MinRating = *p.MinRating
	}
	if p.MaxRating != nil {
		f.MaxRating = *p.MaxRating
	}
	if p.MinReviews != nil {
		f.MinReviews = *p.MinReviews
	}
	if p.MaxReviews != nil {
		f.MaxReviewsPerBusiness = *p.MaxReviews
	}
	if p.MinViolationsToStop != nil {
		f.MinViolationsToStop = *p.MinViolationsToStop
	}
	if p.ClassifyAll != nil {
		f.ClassifyAll = *p.ClassifyAll
	}
	if err := f.Validate(); err != nil {
		return model.RunRequest{}, err
	}

	var regions []model.Region
	for _, raw := range p.Regions {
		for _, part := range splitList(raw) {
			regions = append(regions, model.ParseRegion(part, f.Country))
		}
	}
	if len(regions) == 0 {
		return model.RunRequest{}, eris.New("at least one region is required")
	}

	return model.RunRequest{Regions: regions, Filters: f}, nil
}

// categories returns explicit categories when given, else the configured
// set narrowed to the requested tiers.
func (p runParams) categories(c *config.Config) ([]model.Category, error) {
	if len(p.Categories) > 0 {
		var out []model.Category
		for _, raw := range p.Categories {
			for _, name := range splitList(raw) {
				out = append(out, model.Category{Name: name})
			}
		}
		return out, nil
	}

	if len(p.Tiers) == 0 {
		return c.Categories()
	}
	if c.Scrape.CategoriesFile == "" {
		return model.CategoriesForTiers(p.Tiers...), nil
	}
	cats, err := model.LoadCategories(c.Scrape.CategoriesFile)
	if err != nil {
		return nil, err
	}
	return model.FilterTiers(cats, p.Tiers...), nil
}

// splitList splits on semicolons so "Paris, France" stays one region.
func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ";") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
