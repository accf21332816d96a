package model

import (
	"strings"
	"unicode/utf8"
)

// Region is a geographic search unit: a postal code (or area name) plus a country.
type Region struct {
	PostalCode string `json:"postal_code" yaml:"postal_code"`
	Country    string `json:"country" yaml:"country"`
}

// ParseRegion builds a Region from user input. "92100" uses defaultCountry;
// "Paris, France" splits on the last comma.
func ParseRegion(s, defaultCountry string) Region {
	s = strings.TrimSpace(s)
	if i := strings.LastIndex(s, ","); i >= 0 {
		country := strings.TrimSpace(s[i+1:])
		if country != "" {
			return Region{PostalCode: strings.TrimSpace(s[:i]), Country: country}
		}
		s = strings.TrimSpace(s[:i])
	}
	return Region{PostalCode: s, Country: defaultCountry}
}

// String returns the search locator used in map queries.
func (r Region) String() string {
	parts := make([]string, 0, 2)
	if r.PostalCode != "" {
		parts = append(parts, r.PostalCode)
	}
	if r.Country != "" {
		parts = append(parts, r.Country)
	}
	return strings.Join(parts, " ")
}

// SafeName returns a filesystem-friendly form of the region's postal code
// (the country when there is none), capped at 30 runes.
func (r Region) SafeName() string {
	s := strings.TrimSpace(r.PostalCode)
	if s == "" {
		s = strings.TrimSpace(r.Country)
	}
	s = strings.NewReplacer(",", "", " ", "_", "/", "_", "\\", "_").Replace(s)
	if runes := []rune(s); len(runes) > 30 {
		s = string(runes[:30])
	}
	return s
}

// BusinessCandidate is one entry collected from a search feed.
type BusinessCandidate struct {
	Name        string  `json:"name"`
	SourceURL   string  `json:"source_url"`
	Category    string  `json:"category"`
	Rating      float64 `json:"rating"`
	ReviewCount int     `json:"review_count"`
}

// BusinessRecord is a candidate enriched with details from its place page.
type BusinessRecord struct {
	BusinessCandidate
	Address string `json:"address,omitempty"`
	Phone   string `json:"phone,omitempty"`
	Website string `json:"website,omitempty"`
	Email   string `json:"email,omitempty"`
	Region  Region `json:"region"`
}

// Review is one public review left on a business.
type Review struct {
	ReviewerName string `json:"reviewer_name"`
	Rating       int    `json:"rating"`
	Text         string `json:"text"`
	Date         string `json:"date"`
}

// MinReviewTextLen is the shortest trimmed review text that is kept.
const MinReviewTextLen = 4

// HasUsableText reports whether the review carries enough text to classify.
func (r Review) HasUsableText() bool {
	return utf8.RuneCountInString(strings.TrimSpace(r.Text)) >= MinReviewTextLen
}

// Classification is the verdict returned for one review.
type Classification struct {
	HasViolation   bool     `json:"has_violation"`
	ViolationTypes []string `json:"violation_types"`
	Confidence     float64  `json:"confidence"`
	Reasoning      string   `json:"reasoning"`
}

// FlaggedReview is a review paired with a positive violation verdict.
type FlaggedReview struct {
	Review
	Classification Classification `json:"classification"`
}

// Lead is a business with at least one flagged review.
type Lead struct {
	ID             string          `json:"id,omitempty"`
	RunID          string          `json:"run_id,omitempty"`
	Business       BusinessRecord  `json:"business"`
	FlaggedReviews []FlaggedReview `json:"flagged_reviews"`
}

// ViolationsCount returns the number of flagged reviews on the lead.
func (l Lead) ViolationsCount() int {
	return len(l.FlaggedReviews)
}
