package extract

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/sells-group/leadscout/internal/feed"
	"github.com/sells-group/leadscout/internal/model"
)

// Search results feed selectors.
const (
	FeedContainer = `div[role="feed"]`
	FeedCard      = `div[role="feed"] > div > div`
	PlaceLink     = `a[href*="/maps/place/"]`
	FeedEnd       = `span.HlvSq`
)

// DefaultSearchURL is the map search endpoint the query is appended to.
const DefaultSearchURL = "https://www.google.com/maps/search/"

// SearchURL builds the search page URL for a category in a region.
func SearchURL(base, category string, region model.Region) string {
	if base == "" {
		base = DefaultSearchURL
	}
	query := strings.Join(strings.Fields(category+" "+region.String()), " ")
	return strings.TrimRight(base, "/") + "/" + strings.ReplaceAll(url.PathEscape(query), "%20", "+")
}

// RatingStrategies read a card's star rating, structured label first.
var RatingStrategies = []Strategy[float64]{
	{Name: "star-label", Extract: func(s *goquery.Selection) (float64, bool) {
		for _, sel := range []string{"span.kvMYJc", `span[role="img"][aria-label*="star"]`} {
			if label, ok := attrOf(s, sel, "aria-label"); ok {
				if f, ok := parseDecimal(label); ok {
					return f, true
				}
			}
		}
		return 0, false
	}},
	{Name: "rating-text", Extract: func(s *goquery.Selection) (float64, bool) {
		if text, ok := textOf("span.MW4etd")(s); ok {
			return parseDecimal(text)
		}
		return 0, false
	}},
	{Name: "stars-regex", Extract: func(s *goquery.Selection) (float64, bool) {
		m := starsTextRe.FindStringSubmatch(s.Text())
		if m == nil {
			return 0, false
		}
		return parseDecimal(m[1])
	}},
}

// ReviewCountStrategies read a card's review count.
var ReviewCountStrategies = []Strategy[int]{
	{Name: "count-text", Extract: func(s *goquery.Selection) (int, bool) {
		text, ok := textOf("span.UY7F9")(s)
		if !ok {
			return 0, false
		}
		return ParseCount(strings.Trim(text, "() "))
	}},
	{Name: "parenthesized", Extract: func(s *goquery.Selection) (int, bool) {
		m := parenCount.FindStringSubmatch(s.Text())
		if m == nil {
			return 0, false
		}
		return ParseCount(m[1])
	}},
	{Name: "star-label", Extract: func(s *goquery.Selection) (int, bool) {
		label, ok := attrOf(s, "span.kvMYJc", "aria-label")
		if !ok {
			return 0, false
		}
		lower := strings.ToLower(label)
		i := strings.Index(lower, "review")
		if i < 0 {
			return 0, false
		}
		// "4.3 stars 1,234 Reviews": the count is the last number before "review".
		nums := countRe.FindAllString(label[:i], -1)
		if len(nums) == 0 {
			return 0, false
		}
		return ParseCount(nums[len(nums)-1])
	}},
}

// Business parses one search result card. Name and detail URL are
// required; rating and review count are best effort and default to zero.
func Business(card *goquery.Selection, category string) (model.BusinessCandidate, bool) {
	link := card.Find(PlaceLink).First()
	if link.Length() == 0 {
		if card.Is(PlaceLink) {
			link = card
		} else {
			return model.BusinessCandidate{}, false
		}
	}

	href, _ := link.Attr("href")
	href = absoluteMapsURL(strings.TrimSpace(href))
	name, _ := link.Attr("aria-label")
	name = strings.TrimSpace(name)
	if name == "" {
		name, _ = textOf("div.qBF1Pd", "div.fontHeadlineSmall")(card)
	}
	if name == "" || href == "" {
		return model.BusinessCandidate{}, false
	}

	rating, _ := First(card, RatingStrategies)
	count, _ := First(card, ReviewCountStrategies)

	return model.BusinessCandidate{
		Name:        name,
		SourceURL:   href,
		Category:    category,
		Rating:      rating,
		ReviewCount: count,
	}, true
}

func absoluteMapsURL(href string) string {
	if strings.HasPrefix(href, "/") {
		return "https://www.google.com" + href
	}
	return href
}

// BusinessFeed returns the collector spec for a search results feed. Cards
// are keyed by name (first seen wins) and filtered at source by f. The
// caller fills in pacing fields.
func BusinessFeed(category string, f model.Filters, onItem func(model.BusinessCandidate, bool)) feed.Spec[model.BusinessCandidate] {
	return feed.Spec[model.BusinessCandidate]{
		Container: FeedContainer,
		Item:      FeedCard,
		EndMarker: FeedEnd,
		Parse: func(s *goquery.Selection) (model.BusinessCandidate, bool) {
			return Business(s, category)
		},
		Key:    func(c model.BusinessCandidate) string { return c.Name },
		Accept: f.Accepts,
		OnItem: onItem,
	}
}
