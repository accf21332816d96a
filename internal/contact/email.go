// Package contact hunts for a business contact email on its own website.
package contact

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var emailRe = regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`)

// blockedFragments mark placeholder or unattended addresses.
var blockedFragments = []string{"example.com", "test.com", "placeholder", "noreply", "no-reply", "sentry", "wixpress.com"}

// assetSuffixes catch retina image names such as logo@2x.png.
var assetSuffixes = []string{".png", ".jpg", ".jpeg", ".gif", ".svg", ".webp"}

// Allowed reports whether email is worth keeping as a business contact.
func Allowed(email string) bool {
	lower := strings.ToLower(email)
	for _, frag := range blockedFragments {
		if strings.Contains(lower, frag) {
			return false
		}
	}
	for _, suf := range assetSuffixes {
		if strings.HasSuffix(lower, suf) {
			return false
		}
	}
	return true
}

// Sanitize strips mailto prefixes, query strings, URL escapes and stray
// punctuation, returning the lowercase address or "".
func Sanitize(raw string) string {
	const punct = "<>()[]{}.,;:\"'`“”’"
	clean := strings.Trim(strings.TrimSpace(raw), punct)
	if len(clean) >= 7 && strings.EqualFold(clean[:7], "mailto:") {
		clean = clean[7:]
	}
	if i := strings.Index(clean, "?"); i >= 0 {
		clean = clean[:i]
	}
	if decoded, err := url.QueryUnescape(clean); err == nil {
		clean = decoded
	}
	clean = strings.ReplaceAll(clean, " ", "")
	clean = strings.Trim(clean, punct)
	m := emailRe.FindString(clean)
	if m == "" {
		return ""
	}
	return strings.ToLower(m)
}

// Candidates returns allowed addresses found in raw HTML and mailto links,
// in page order, without duplicates.
func Candidates(html string, doc *goquery.Document) []string {
	seen := make(map[string]struct{})
	var out []string
	add := func(raw string) {
		e := Sanitize(raw)
		if e == "" || !Allowed(e) {
			return
		}
		if _, dup := seen[e]; dup {
			return
		}
		seen[e] = struct{}{}
		out = append(out, e)
	}

	for _, m := range emailRe.FindAllString(html, -1) {
		add(m)
	}
	if doc != nil {
		doc.Find(`a[href^="mailto:"], a[href^="MAILTO:"]`).Each(func(_ int, s *goquery.Selection) {
			href, _ := s.Attr("href")
			add(href)
		})
	}
	return out
}
