// Package browsertest provides a scripted browser.Page for tests.
package browsertest

import (
	"context"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"

	"github.com/sells-group/leadscout/internal/browser"
)

// Screen is the scripted content behind one URL. Frames are successive
// document states: scrolling any matching element shows the next frame.
type Screen struct {
	Title  string
	Frames []string
	// OnClick jumps to a frame index when the selector is clicked.
	OnClick map[string]int

	frame int
}

// Page is an in-memory browser.Page. Lookups run goquery over the current frame.
type Page struct {
	mu       sync.Mutex
	screens  map[string]*Screen
	failures map[string]int
	current  *Screen
	url      string

	Visits  []string
	Clicked []string
	Scrolls int
}

var _ browser.Page = (*Page)(nil)

// New returns an empty page.
func New() *Page {
	return &Page{screens: map[string]*Screen{}, failures: map[string]int{}}
}

// Add registers s behind rawURL.
func (p *Page) Add(rawURL string, s *Screen) *Page {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.screens[routeKey(rawURL)] = s
	return p
}

// Fail makes the next n navigations to rawURL fail.
func (p *Page) Fail(rawURL string, n int) *Page {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failures[routeKey(rawURL)] = n
	return p
}

// VisitCount returns how often rawURL was navigated to.
func (p *Page) VisitCount(rawURL string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	key := routeKey(rawURL)
	n := 0
	for _, v := range p.Visits {
		if routeKey(v) == key {
			n++
		}
	}
	return n
}

// routeKey drops the locale hint so screens match what callers registered.
func routeKey(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	q := u.Query()
	q.Del("hl")
	u.RawQuery = q.Encode()
	return u.String()
}

// Navigate implements browser.Page.
func (p *Page) Navigate(_ context.Context, rawURL string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.Visits = append(p.Visits, rawURL)
	key := routeKey(rawURL)
	if n := p.failures[key]; n > 0 {
		p.failures[key] = n - 1
		return eris.Errorf("browsertest: net::ERR_TIMED_OUT loading %s", rawURL)
	}
	s, ok := p.screens[key]
	if !ok {
		return eris.Errorf("browsertest: no screen for %s", rawURL)
	}
	s.frame = 0
	p.current = s
	p.url = rawURL
	return nil
}

func (p *Page) doc() *goquery.Document {
	if p.current == nil || len(p.current.Frames) == 0 {
		return nil
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(p.current.Frames[p.current.frame]))
	if err != nil {
		return nil
	}
	return doc
}

func (p *Page) find(selector string) *goquery.Selection {
	doc := p.doc()
	if doc == nil {
		return nil
	}
	sel := doc.Find(selector)
	if sel.Length() == 0 {
		return nil
	}
	return sel
}

// WaitFor implements browser.Page without waiting.
func (p *Page) WaitFor(ctx context.Context, selector string, _ time.Duration) (bool, error) {
	return p.Exists(ctx, selector)
}

// Exists implements browser.Page.
func (p *Page) Exists(_ context.Context, selector string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.find(selector) != nil, nil
}

// OuterHTML implements browser.Page.
func (p *Page) OuterHTML(_ context.Context, selector string) (string, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	sel := p.find(selector)
	if sel == nil {
		return "", false, nil
	}
	html, err := goquery.OuterHtml(sel.First())
	if err != nil {
		return "", false, eris.Wrap(err, "browsertest: outer html")
	}
	return html, true, nil
}

// HTML implements browser.Page.
func (p *Page) HTML(_ context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current == nil || len(p.current.Frames) == 0 {
		return "", nil
	}
	return p.current.Frames[p.current.frame], nil
}

// Click implements browser.Page.
func (p *Page) Click(ctx context.Context, selector string) (bool, error) {
	n, err := p.click(selector, 1)
	return n > 0, err
}

// ClickAll implements browser.Page.
func (p *Page) ClickAll(_ context.Context, selector string) (int, error) {
	return p.click(selector, 0)
}

func (p *Page) click(selector string, limit int) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	sel := p.find(selector)
	if sel == nil {
		return 0, nil
	}
	n := sel.Length()
	if limit > 0 && n > limit {
		n = limit
	}
	p.Clicked = append(p.Clicked, selector)
	if frame, ok := p.current.OnClick[selector]; ok && frame < len(p.current.Frames) {
		p.current.frame = frame
	}
	return n, nil
}

// ScrollBy implements browser.Page.
func (p *Page) ScrollBy(_ context.Context, selector string, _ int) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.find(selector) == nil {
		return false, nil
	}
	p.Scrolls++
	if p.current.frame < len(p.current.Frames)-1 {
		p.current.frame++
	}
	return true, nil
}

// Title implements browser.Page.
func (p *Page) Title(_ context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current == nil {
		return "", nil
	}
	return p.current.Title, nil
}

// Location implements browser.Page.
func (p *Page) Location(_ context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.url, nil
}
