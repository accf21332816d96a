//go:build !integration

package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/leadscout/internal/config"
	"github.com/sells-group/leadscout/internal/model"
)

func testConfig() *config.Config {
	return &config.Config{
		Scrape: config.ScrapeConfig{Tiers: []int{1}},
		Filters: config.FiltersConfig{
			MinRating:             1.0,
			MaxRating:             4.0,
			MinReviews:            10,
			MaxReviewsPerBusiness: 50,
			MinViolationsToStop:   3,
			Country:               "France",
		},
	}
}

func ptr[T any](v T) *T { return &v }

func TestRunParams_Defaults(t *testing.T) {
	req, err := runParams{Regions: []string{"75011"}}.request(testConfig())
	require.NoError(t, err)

	require.Len(t, req.Regions, 1)
	assert.Equal(t, model.Region{PostalCode: "75011", Country: "France"}, req.Regions[0])
	assert.Equal(t, 1.0, req.Filters.MinRating)
	assert.Equal(t, 4.0, req.Filters.MaxRating)
	assert.Equal(t, 3, req.Filters.MinViolationsToStop)
	assert.False(t, req.Filters.ClassifyAll)
	assert.Equal(t, model.CategoriesForTiers(1), req.Filters.Categories)
}

func TestRunParams_Overrides(t *testing.T) {
	p := runParams{
		Regions:             []string{"10115; Lyon, France", "92100"},
		Categories:          []string{"plumber;locksmith"},
		Country:             "Germany",
		MinRating:           ptr(2.0),
		MaxRating:           ptr(3.5),
		MinReviews:          ptr(0),
		MaxReviews:          ptr(20),
		MinViolationsToStop: ptr(1),
		ClassifyAll:         ptr(true),
	}

	req, err := p.request(testConfig())
	require.NoError(t, err)

	assert.Equal(t, []model.Region{
		{PostalCode: "10115", Country: "Germany"},
		{PostalCode: "Lyon", Country: "France"},
		{PostalCode: "92100", Country: "Germany"},
	}, req.Regions)

	f := req.Filters
	assert.Equal(t, 2.0, f.MinRating)
	assert.Equal(t, 3.5, f.MaxRating)
	assert.Equal(t, 0, f.MinReviews)
	assert.Equal(t, 20, f.MaxReviewsPerBusiness)
	assert.Equal(t, 1, f.MinViolationsToStop)
	assert.True(t, f.ClassifyAll)
	assert.Equal(t, []model.Category{{Name: "plumber"}, {Name: "locksmith"}}, f.Categories)
}

func TestRunParams_Tiers(t *testing.T) {
	req, err := runParams{Regions: []string{"75011"}, Tiers: []int{2}}.request(testConfig())
	require.NoError(t, err)
	assert.Equal(t, model.CategoriesForTiers(2), req.Filters.Categories)
}

func TestRunParams_TiersFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "categories.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`categories:
  - name: kebab
    tier: 1
  - name: florist
    tier: 3
`), 0o600))

	c := testConfig()
	c.Scrape.CategoriesFile = path

	cats, err := runParams{Tiers: []int{3}}.categories(c)
	require.NoError(t, err)
	assert.Equal(t, []model.Category{{Name: "florist", Tier: 3}}, cats)
}

func TestRunParams_Errors(t *testing.T) {
	_, err := runParams{Regions: []string{" ; "}}.request(testConfig())
	assert.ErrorContains(t, err, "at least one region")

	_, err = runParams{Regions: []string{"75011"}, MinRating: ptr(4.5)}.request(testConfig())
	assert.ErrorContains(t, err, "exceeds max_rating")

	_, err = runParams{Regions: []string{"75011"}, MinViolationsToStop: ptr(0)}.request(testConfig())
	assert.ErrorContains(t, err, "min_violations_to_stop")
}

func TestSplitList(t *testing.T) {
	assert.Equal(t, []string{"Paris, France"}, splitList("Paris, France"))
	assert.Equal(t, []string{"75011", "92100"}, splitList(" 75011 ;;92100; "))
	assert.Nil(t, splitList(""))
}

func TestLocaleTag(t *testing.T) {
	assert.Equal(t, "en", localeTag("en-US"))
	assert.Equal(t, "fr", localeTag("fr_FR"))
	assert.Equal(t, "de", localeTag("de"))
	assert.Equal(t, "", localeTag(""))
}
