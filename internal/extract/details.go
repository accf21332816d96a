package extract

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"
)

// Details are the contact fields read from a place page.
type Details struct {
	Address     string
	Phone       string
	Website     string
	Rating      float64
	ReviewCount int
}

var telRe = regexp.MustCompile(`tel:([+\d\s\-()]+)`)

// DetailRatingStrategies read the header star rating.
var DetailRatingStrategies = []Strategy[float64]{
	{Name: "F7nice", Extract: func(s *goquery.Selection) (float64, bool) {
		text, ok := textOf(`div.F7nice span[aria-hidden="true"]`)(s)
		if !ok {
			return 0, false
		}
		return parseDecimal(text)
	}},
}

// DetailReviewCountStrategies read the header review count.
var DetailReviewCountStrategies = []Strategy[int]{
	{Name: "F7nice-label", Extract: func(s *goquery.Selection) (int, bool) {
		for _, sel := range []string{`div.F7nice button[aria-label*="review"]`, `div.F7nice span[aria-label*="review"]`} {
			if label, ok := attrOf(s, sel, "aria-label"); ok {
				if m := countRe.FindString(label); m != "" {
					return ParseCount(m)
				}
			}
		}
		return 0, false
	}},
	{Name: "F7nice-text", Extract: func(s *goquery.Selection) (int, bool) {
		m := parenCount.FindStringSubmatch(s.Find("div.F7nice").Text())
		if m == nil {
			return 0, false
		}
		return ParseCount(m[1])
	}},
}

// WebsiteStrategies read the business's own website link.
var WebsiteStrategies = []Strategy[string]{
	{Name: "authority", Extract: func(s *goquery.Selection) (string, bool) {
		href, ok := attrOf(s, `a[data-item-id="authority"]`, "href")
		return unwrapRedirect(href), ok
	}},
	{Name: "website-label", Extract: func(s *goquery.Selection) (string, bool) {
		href, ok := attrOf(s, `a[aria-label^="Website"]`, "href")
		return unwrapRedirect(href), ok
	}},
}

// PhoneStrategies read the phone number.
var PhoneStrategies = []Strategy[string]{
	{Name: "data-item-id", Extract: func(s *goquery.Selection) (string, bool) {
		id, ok := attrOf(s, `button[data-item-id*="phone"]`, "data-item-id")
		if !ok {
			return "", false
		}
		m := telRe.FindStringSubmatch(id)
		if m == nil {
			return "", false
		}
		return strings.TrimSpace(m[1]), true
	}},
	{Name: "phone-label", Extract: func(s *goquery.Selection) (string, bool) {
		label, ok := attrOf(s, `button[aria-label^="Phone"]`, "aria-label")
		if !ok {
			return "", false
		}
		return stripLabel(label), true
	}},
}

// AddressStrategies read the street address.
var AddressStrategies = []Strategy[string]{
	{Name: "address-label", Extract: func(s *goquery.Selection) (string, bool) {
		label, ok := attrOf(s, `button[data-item-id="address"]`, "aria-label")
		if !ok {
			return "", false
		}
		return stripLabel(label), true
	}},
	{Name: "address-text", Extract: textOf(`button[data-item-id="address"] div.Io6YTe`)},
}

// stripLabel drops a "Phone: " or "Address: " prefix.
func stripLabel(label string) string {
	if i := strings.Index(label, ":"); i >= 0 {
		return strings.TrimSpace(label[i+1:])
	}
	return strings.TrimSpace(label)
}

// unwrapRedirect resolves google.com/url?q=<target> links to the target.
func unwrapRedirect(href string) string {
	u, err := url.Parse(href)
	if err != nil || !strings.HasSuffix(u.Host, "google.com") || u.Path != "/url" {
		return href
	}
	if q := u.Query().Get("q"); q != "" {
		return q
	}
	if q := u.Query().Get("url"); q != "" {
		return q
	}
	return href
}

// PlaceDetails reads every detail field from a place page document. All
// fields are best effort.
func PlaceDetails(doc *goquery.Selection) Details {
	var d Details
	d.Rating, _ = First(doc, DetailRatingStrategies)
	d.ReviewCount, _ = First(doc, DetailReviewCountStrategies)
	d.Website, _ = First(doc, WebsiteStrategies)
	d.Phone, _ = First(doc, PhoneStrategies)
	d.Address, _ = First(doc, AddressStrategies)
	return d
}

// ParseDetails parses html and reads its details.
func ParseDetails(html string) (Details, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return Details{}, eris.Wrap(err, "extract: parse place page")
	}
	return PlaceDetails(doc.Selection), nil
}
