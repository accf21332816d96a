package contact

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// PageSource renders a page when a plain HTTP fetch is refused, usually
// through the scraping browser.
type PageSource interface {
	FetchHTML(ctx context.Context, rawURL string) (string, error)
}

// Options configures a Hunter.
type Options struct {
	Timeout      time.Duration
	MaxPages     int
	MaxBodyBytes int
	UserAgent    string
}

// contactHints mark links worth following when the landing page has no address.
var contactHints = []string{"contact", "kontakt", "nous-contacter", "contactez", "about", "a-propos", "qui-sommes", "impressum", "mentions"}

// Hunter finds a contact email on a business website.
type Hunter struct {
	http     *resty.Client
	opts     Options
	mx       MXChecker
	fallback PageSource
}

// NewHunter creates a Hunter. mx and fallback are optional.
func NewHunter(opts Options, mx MXChecker, fallback PageSource) *Hunter {
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	if opts.MaxPages <= 0 {
		opts.MaxPages = 3
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = 2 << 20
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	}

	client := resty.New()
	client.SetHeader("User-Agent", opts.UserAgent)
	client.SetHeader("Accept", "text/html,application/xhtml+xml")
	client.SetHeader("Accept-Language", "en-US,en;q=0.9,fr;q=0.8")
	client.SetTimeout(opts.Timeout)
	client.SetRedirectPolicy(resty.FlexibleRedirectPolicy(5))

	return &Hunter{http: client, opts: opts, mx: mx, fallback: fallback}
}

// Find returns the first acceptable email on the site, or "" when none is
// found. Only an unusable website URL is an error.
func (h *Hunter) Find(ctx context.Context, website string) (string, error) {
	start := NormalizeWebsite(website)
	root, err := url.Parse(start)
	if err != nil || root.Host == "" {
		return "", eris.Errorf("contact: invalid website %q", website)
	}

	queue := []string{start}
	visited := make(map[string]struct{})
	pages := 0

	for len(queue) > 0 && pages < h.opts.MaxPages {
		current := queue[0]
		queue = queue[1:]
		if _, ok := visited[current]; ok {
			continue
		}
		visited[current] = struct{}{}

		html, err := h.fetch(ctx, current, pages == 0)
		if err != nil {
			zap.L().Debug("contact: fetch failed", zap.String("url", current), zap.Error(err))
			continue
		}
		pages++

		doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
		if err != nil {
			continue
		}
		for _, email := range Candidates(html, doc) {
			if h.mx == nil || h.mx.HasMX(ctx, domainOf(email)) {
				return email, nil
			}
		}
		queue = append(queue, contactLinks(doc, current, root)...)
	}
	return "", nil
}

// fetch reads a page over HTTP. The landing page falls back to the
// browser when HTTP is refused.
func (h *Hunter) fetch(ctx context.Context, target string, landing bool) (string, error) {
	resp, err := h.http.R().SetContext(ctx).Get(target)
	if err == nil && resp.IsSuccess() {
		body := resp.Body()
		if len(body) > h.opts.MaxBodyBytes {
			body = body[:h.opts.MaxBodyBytes]
		}
		return string(body), nil
	}
	if err == nil {
		err = eris.Errorf("contact: %s responded with status %d", target, resp.StatusCode())
	}
	if landing && h.fallback != nil {
		zap.L().Debug("contact: falling back to browser", zap.String("url", target), zap.Error(err))
		return h.fallback.FetchHTML(ctx, target)
	}
	return "", err
}

// contactLinks returns same-host links that look like contact pages.
func contactLinks(doc *goquery.Document, pageURL string, root *url.URL) []string {
	base, err := url.Parse(pageURL)
	if err != nil {
		base = root
	}
	var links []string
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href := strings.TrimSpace(s.AttrOr("href", ""))
		if href == "" || strings.HasPrefix(strings.ToLower(href), "mailto:") {
			return
		}
		abs, err := base.Parse(href)
		if err != nil || !strings.EqualFold(abs.Hostname(), root.Hostname()) {
			return
		}
		abs.Fragment = ""
		combined := strings.ToLower(s.Text() + " " + abs.Path)
		for _, hint := range contactHints {
			if strings.Contains(combined, hint) {
				links = append(links, abs.String())
				return
			}
		}
	})
	return links
}

// NormalizeWebsite unwraps map redirect links and ensures a scheme.
func NormalizeWebsite(raw string) string {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "https://www.google.com/url?") {
		if u, err := url.Parse(raw); err == nil {
			if q := u.Query().Get("q"); q != "" {
				raw = q
			}
		}
	}
	if raw != "" && !strings.HasPrefix(strings.ToLower(raw), "http") {
		raw = "https://" + strings.TrimLeft(raw, "/")
	}
	return raw
}
