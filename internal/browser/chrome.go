package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Options configures the Chrome launch.
type Options struct {
	Headless       bool
	ExecPath       string
	UserDataDir    string
	Locale         string
	AcceptLanguage string
	UserAgent      string
	WindowWidth    int
	WindowHeight   int
	NoSandbox      bool
	// CallTimeout bounds a single DevTools call that has no deadline of its own.
	CallTimeout time.Duration
}

const stealthScript = `
Object.defineProperty(navigator, 'webdriver', { get: () => undefined });
window.chrome = { runtime: {}, loadTimes: function() {}, csi: function() {}, app: {} };
Object.defineProperty(navigator, 'languages', { get: () => ['en-US', 'en'] });
`

// Chrome is a Page backed by a real Chrome process.
type Chrome struct {
	ctx         context.Context
	cancel      context.CancelFunc
	allocCancel context.CancelFunc
	callTimeout time.Duration
}

var _ Page = (*Chrome)(nil)

// allocatorOptions builds the Chrome flags for o.
func allocatorOptions(o Options) []chromedp.ExecAllocatorOption {
	lang := o.Locale
	if lang == "" {
		lang = "en-US"
	}
	opts := []chromedp.ExecAllocatorOption{
		chromedp.NoDefaultBrowserCheck,
		chromedp.NoFirstRun,
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("exclude-switches", "enable-automation"),
		chromedp.Flag("disable-infobars", true),
		chromedp.Flag("disable-extensions", true),
		chromedp.Flag("disable-default-apps", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("password-store", "basic"),
		chromedp.Flag("use-mock-keychain", true),
		chromedp.Flag("lang", lang),
		chromedp.Flag("accept-lang", lang+",en"),
	}
	if o.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(o.UserAgent))
	}
	if o.WindowWidth > 0 && o.WindowHeight > 0 {
		opts = append(opts, chromedp.WindowSize(o.WindowWidth, o.WindowHeight))
	}
	if o.UserDataDir != "" {
		opts = append(opts, chromedp.UserDataDir(o.UserDataDir))
	}
	if o.Headless {
		opts = append(opts, chromedp.Flag("headless", "new"))
	}
	if o.NoSandbox {
		opts = append(opts, chromedp.NoSandbox, chromedp.Flag("disable-setuid-sandbox", true))
	}
	if o.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(o.ExecPath))
	}
	return opts
}

// Launch starts Chrome with the stealth profile and opens one tab.
func Launch(ctx context.Context, o Options) (*Chrome, error) {
	if o.UserDataDir != "" {
		if err := os.MkdirAll(o.UserDataDir, 0o755); err != nil {
			return nil, eris.Wrap(err, "browser: create profile dir")
		}
	}
	if o.AcceptLanguage == "" {
		o.AcceptLanguage = "en-US,en;q=0.9"
	}
	if o.CallTimeout <= 0 {
		o.CallTimeout = 30 * time.Second
	}

	// The browser outlives any single run-scoped cancellation; Close tears it down.
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.WithoutCancel(ctx), allocatorOptions(o)...)
	tabCtx, cancel := chromedp.NewContext(allocCtx)

	err := chromedp.Run(tabCtx,
		chromedp.ActionFunc(func(ctx context.Context) error {
			_, err := page.AddScriptToEvaluateOnNewDocument(stealthScript).Do(ctx)
			return err
		}),
		network.SetExtraHTTPHeaders(network.Headers(map[string]interface{}{
			"Accept":          "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8",
			"Accept-Language": o.AcceptLanguage,
		})),
	)
	if err != nil {
		cancel()
		allocCancel()
		return nil, eris.Wrap(err, "browser: launch")
	}

	zap.L().Info("browser: launched",
		zap.Bool("headless", o.Headless),
		zap.String("profile", o.UserDataDir),
	)

	return &Chrome{ctx: tabCtx, cancel: cancel, allocCancel: allocCancel, callTimeout: o.CallTimeout}, nil
}

// Close shuts the tab and the browser process.
func (c *Chrome) Close() {
	c.cancel()
	c.allocCancel()
}

// run executes actions on the tab. Only the caller's deadline carries over;
// cancelling the caller does not interrupt a call already in flight.
func (c *Chrome) run(ctx context.Context, actions ...chromedp.Action) error {
	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(c.callTimeout)
	}
	runCtx, cancel := context.WithDeadline(c.ctx, deadline)
	defer cancel()
	return chromedp.Run(runCtx, actions...)
}

// Navigate implements Page.
func (c *Chrome) Navigate(ctx context.Context, url string) error {
	if err := c.run(ctx, chromedp.Navigate(url), chromedp.WaitReady("body", chromedp.ByQuery)); err != nil {
		return eris.Wrapf(err, "browser: navigate %s", url)
	}
	return nil
}

// WaitFor implements Page.
func (c *Chrome) WaitFor(ctx context.Context, selector string, timeout time.Duration) (bool, error) {
	waitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()

	err := c.run(waitCtx, chromedp.WaitReady(selector, chromedp.ByQuery))
	if err == nil {
		return true, nil
	}
	if waitCtx.Err() != nil {
		return false, nil
	}
	return false, eris.Wrapf(err, "browser: wait for %s", selector)
}

// Exists implements Page.
func (c *Chrome) Exists(ctx context.Context, selector string) (bool, error) {
	var nodes []*cdp.Node
	err := c.run(ctx, chromedp.Nodes(selector, &nodes, chromedp.ByQueryAll, chromedp.AtLeast(0)))
	if err != nil {
		return false, eris.Wrapf(err, "browser: query %s", selector)
	}
	return len(nodes) > 0, nil
}

// OuterHTML implements Page.
func (c *Chrome) OuterHTML(ctx context.Context, selector string) (string, bool, error) {
	var html string
	err := c.run(ctx, chromedp.Evaluate(fmt.Sprintf(outerHTMLScript, quote(selector)), &html))
	if err != nil {
		return "", false, eris.Wrapf(err, "browser: outer html %s", selector)
	}
	return html, html != "", nil
}

// HTML implements Page.
func (c *Chrome) HTML(ctx context.Context) (string, error) {
	var html string
	if err := c.run(ctx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", eris.Wrap(err, "browser: document html")
	}
	return html, nil
}

// Click implements Page.
func (c *Chrome) Click(ctx context.Context, selector string) (bool, error) {
	n, err := c.clickN(ctx, selector, 1)
	return n > 0, err
}

// ClickAll implements Page.
func (c *Chrome) ClickAll(ctx context.Context, selector string) (int, error) {
	return c.clickN(ctx, selector, 0)
}

func (c *Chrome) clickN(ctx context.Context, selector string, limit int) (int, error) {
	var n int
	err := c.run(ctx, chromedp.Evaluate(fmt.Sprintf(clickScript, quote(selector), limit), &n))
	if err != nil {
		return 0, eris.Wrapf(err, "browser: click %s", selector)
	}
	return n, nil
}

// ScrollBy implements Page.
func (c *Chrome) ScrollBy(ctx context.Context, selector string, delta int) (bool, error) {
	var ok bool
	err := c.run(ctx, chromedp.Evaluate(fmt.Sprintf(scrollScript, quote(selector), delta), &ok))
	if err != nil {
		return false, eris.Wrapf(err, "browser: scroll %s", selector)
	}
	return ok, nil
}

// Title implements Page.
func (c *Chrome) Title(ctx context.Context) (string, error) {
	var title string
	if err := c.run(ctx, chromedp.Title(&title)); err != nil {
		return "", eris.Wrap(err, "browser: title")
	}
	return title, nil
}

// Location implements Page.
func (c *Chrome) Location(ctx context.Context) (string, error) {
	var loc string
	if err := c.run(ctx, chromedp.Location(&loc)); err != nil {
		return "", eris.Wrap(err, "browser: location")
	}
	return loc, nil
}

const outerHTMLScript = `(function () {
  const el = document.querySelector(%s);
  return el ? el.outerHTML : '';
})();`

// clickScript clicks up to limit matches (0 = all) and returns the count.
const clickScript = `(function () {
  const els = Array.from(document.querySelectorAll(%s));
  const limit = %d;
  let n = 0;
  for (const el of els) {
    if (limit > 0 && n >= limit) break;
    el.click();
    n++;
  }
  return n;
})();`

const scrollScript = `(function () {
  const el = document.querySelector(%s);
  if (!el) return false;
  el.scrollBy(0, %d);
  return true;
})();`

// quote renders s as a JavaScript string literal.
func quote(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}
