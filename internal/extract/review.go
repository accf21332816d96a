package extract

import (
	"cmp"
	"slices"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/sells-group/leadscout/internal/feed"
	"github.com/sells-group/leadscout/internal/model"
)

// Place page review selectors.
const (
	ReviewsTab       = `button[role="tab"][aria-label*="Reviews"]`
	ReviewNode       = `div[data-review-id]`
	ReviewsContainer = `div[role="main"]`
	ReviewsScroll    = `div[role="main"] div.m6QErb.DxyBCb`
	ReviewExpand     = `button.w8nwRe, button[aria-label="See more"]`
)

// ReviewerStrategies read the reviewer's display name.
var ReviewerStrategies = []Strategy[string]{
	{Name: "d4r55", Extract: textOf("div.d4r55")},
	{Name: "TSUbDb", Extract: textOf("div.TSUbDb")},
	{Name: "X43Kjb", Extract: textOf("span.X43Kjb")},
}

// StarStrategies read the 1-5 star rating from an accessible label.
var StarStrategies = []Strategy[int]{
	{Name: "kvMYJc", Extract: starsFrom("span.kvMYJc")},
	{Name: "star-label", Extract: starsFrom(`span[aria-label*="star"]`)},
}

// ReviewTextStrategies read the review body; the first non-empty wins.
var ReviewTextStrategies = []Strategy[string]{
	{Name: "wiI7pd", Extract: textOf("span.wiI7pd")},
	{Name: "data-value", Extract: textOf("span[data-value]")},
	{Name: "MyEned", Extract: textOf("div.MyEned")},
}

// DateStrategies read the relative review date.
var DateStrategies = []Strategy[string]{
	{Name: "rsqaWe", Extract: textOf("span.rsqaWe")},
	{Name: "xRkPPb", Extract: textOf("span.xRkPPb")},
}

func starsFrom(selector string) func(*goquery.Selection) (int, bool) {
	return func(s *goquery.Selection) (int, bool) {
		label, ok := attrOf(s, selector, "aria-label")
		if !ok {
			return 0, false
		}
		m := digitRe.FindStringSubmatch(label)
		if m == nil {
			return 0, false
		}
		n, err := strconv.Atoi(m[1])
		if err != nil || n < 1 || n > 5 {
			return 0, false
		}
		return n, true
	}
}

// Review parses one review node. Nodes without a star rating or without
// usable text are rejected.
func Review(node *goquery.Selection) (model.Review, bool) {
	rating, ok := First(node, StarStrategies)
	if !ok {
		return model.Review{}, false
	}
	text, _ := First(node, ReviewTextStrategies)
	r := model.Review{Rating: rating, Text: strings.TrimSpace(text)}
	if !r.HasUsableText() {
		return model.Review{}, false
	}
	r.ReviewerName, _ = First(node, ReviewerStrategies)
	r.Date, _ = First(node, DateStrategies)
	return r, true
}

// ReviewFeed returns the collector spec for a place page's review list.
// Reviews are deduplicated by normalized text and capped at limit.
func ReviewFeed(limit int) feed.Spec[model.Review] {
	return feed.Spec[model.Review]{
		Ready:        ReviewNode,
		Container:    ReviewsContainer,
		Item:         ReviewNode,
		ScrollTarget: ReviewsScroll,
		Expand:       ReviewExpand,
		Parse:        Review,
		Key:          func(r model.Review) string { return NormalizeText(r.Text) },
		Limit:        limit,
	}
}

// SortWorstFirst orders reviews by ascending rating, keeping collection
// order among equal ratings.
func SortWorstFirst(reviews []model.Review) {
	slices.SortStableFunc(reviews, func(a, b model.Review) int {
		return cmp.Compare(a.Rating, b.Rating)
	})
}
