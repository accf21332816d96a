package model

import (
	"github.com/rotisserie/eris"
)

// Filters is the immutable set of thresholds for one run.
type Filters struct {
	MinRating             float64    `json:"min_rating" yaml:"min_rating"`
	MaxRating             float64    `json:"max_rating" yaml:"max_rating"`
	MinReviews            int        `json:"min_reviews" yaml:"min_reviews"`
	MaxReviewsPerBusiness int        `json:"max_reviews_per_business" yaml:"max_reviews_per_business"`
	MinViolationsToStop   int        `json:"min_violations_to_stop" yaml:"min_violations_to_stop"`
	ClassifyAll           bool       `json:"classify_all" yaml:"classify_all"`
	Categories            []Category `json:"categories" yaml:"categories"`
	Country               string     `json:"country" yaml:"country"`
}

// DefaultFilters returns the stock thresholds with tier 1 categories.
func DefaultFilters() Filters {
	return Filters{
		MinRating:             1.0,
		MaxRating:             4.0,
		MinReviews:            10,
		MaxReviewsPerBusiness: 50,
		MinViolationsToStop:   3,
		Categories:            CategoriesForTiers(1),
		Country:               "France",
	}
}

// Accepts reports whether a candidate passes the rating and review-count window.
func (f Filters) Accepts(c BusinessCandidate) bool {
	return f.MinRating <= c.Rating && c.Rating <= f.MaxRating && c.ReviewCount >= f.MinReviews
}

// Validate checks the filters are internally consistent.
func (f Filters) Validate() error {
	switch {
	case f.MinRating < 0 || f.MaxRating > 5:
		return eris.Errorf("filters: rating window [%.1f, %.1f] outside [0, 5]", f.MinRating, f.MaxRating)
	case f.MinRating > f.MaxRating:
		return eris.Errorf("filters: min_rating %.1f exceeds max_rating %.1f", f.MinRating, f.MaxRating)
	case f.MinReviews < 0:
		return eris.New("filters: min_reviews must not be negative")
	case f.MaxReviewsPerBusiness <= 0:
		return eris.New("filters: max_reviews_per_business must be positive")
	case f.MinViolationsToStop <= 0:
		return eris.New("filters: min_violations_to_stop must be positive")
	case len(f.Categories) == 0:
		return eris.New("filters: at least one category is required")
	}
	return nil
}
