// Package navigator loads pages through a rate limiter with retries, a
// forced interface language and a human-in-the-loop pause for
// verification challenges.
package navigator

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/leadscout/internal/browser"
	"github.com/sells-group/leadscout/internal/resilience"
)

// ErrChallengeTimeout is returned when a verification challenge is still
// present after the maximum wait.
var ErrChallengeTimeout = eris.New("navigator: verification challenge not cleared")

// ConsentSelectors are clicked, first match only, before challenge detection.
var ConsentSelectors = []string{
	`button[aria-label="Accept all"]`,
	`button[aria-label="Tout accepter"]`,
	`button[aria-label="I agree"]`,
	`#L2AGLb`,
	`form[action*="consent"] button`,
}

// ChallengeSelectors mark an interstitial verification page.
var ChallengeSelectors = []string{
	`form#captcha-form`,
	`div#recaptcha`,
	`iframe[src*="recaptcha"]`,
	`iframe[title*="challenge"]`,
}

var challengeTitles = []string{"unusual traffic", "just a moment", "are you a robot"}

// Options configures a Navigator.
type Options struct {
	// Locale is sent as the hl query parameter, e.g. "en".
	Locale           string
	Settle           time.Duration
	Retries          int
	RatePerSec       float64
	Burst            int
	RetryBackoff     time.Duration
	ChallengePoll    time.Duration
	ChallengeMaxWait time.Duration
	// OnChallenge is called once per challenge when the navigator starts waiting.
	OnChallenge func(url string)
}

// Navigator wraps a browser.Page with pacing and recovery.
type Navigator struct {
	page    browser.Page
	opts    Options
	limiter *rate.Limiter
}

// New creates a Navigator over page.
func New(page browser.Page, opts Options) *Navigator {
	if opts.Locale == "" {
		opts.Locale = "en"
	}
	if opts.Retries < 1 {
		opts.Retries = 1
	}
	if opts.Burst < 1 {
		opts.Burst = 1
	}
	if opts.ChallengePoll <= 0 {
		opts.ChallengePoll = 5 * time.Second
	}
	if opts.ChallengeMaxWait <= 0 {
		opts.ChallengeMaxWait = 5 * time.Minute
	}
	if opts.RetryBackoff <= 0 {
		opts.RetryBackoff = 2 * time.Second
	}
	limit := rate.Inf
	if opts.RatePerSec > 0 {
		limit = rate.Limit(opts.RatePerSec)
	}
	return &Navigator{
		page:    page,
		opts:    opts,
		limiter: rate.NewLimiter(limit, opts.Burst),
	}
}

// Page returns the underlying page.
func (n *Navigator) Page() browser.Page { return n.page }

// OnChallenge replaces the callback invoked when a challenge blocks navigation.
func (n *Navigator) OnChallenge(fn func(url string)) { n.opts.OnChallenge = fn }

// FetchHTML loads rawURL in the page and returns the rendered document.
func (n *Navigator) FetchHTML(ctx context.Context, rawURL string) (string, error) {
	if err := n.Go(ctx, rawURL, 1); err != nil {
		return "", err
	}
	html, err := n.page.HTML(ctx)
	return html, eris.Wrap(err, "navigator: read html")
}

// Navigate loads rawURL with up to retries attempts and reports success.
// Failure is never returned as an error: callers skip the unit of work.
func (n *Navigator) Navigate(ctx context.Context, rawURL string, retries int) bool {
	if err := n.Go(ctx, rawURL, retries); err != nil {
		zap.L().Warn("navigator: giving up",
			zap.String("url", rawURL),
			zap.Int("retries", retries),
			zap.Error(err),
		)
		return false
	}
	return true
}

// Go is Navigate with the failure cause. A retries value below one uses the
// configured default.
func (n *Navigator) Go(ctx context.Context, rawURL string, retries int) error {
	if retries < 1 {
		retries = n.opts.Retries
	}
	target := WithLocale(rawURL, n.opts.Locale)

	cfg := resilience.RetryConfig{
		MaxAttempts:    retries,
		InitialBackoff: n.opts.RetryBackoff,
		MaxBackoff:     4 * n.opts.RetryBackoff,
		Multiplier:     2.0,
		JitterFraction: 0.2,
		// Any load failure is worth another attempt; challenge timeouts are permanent.
		ShouldRetry: func(error) bool { return true },
		OnRetry:     resilience.RetryLogger("navigator", "navigate"),
	}
	return resilience.Do(ctx, cfg, func(ctx context.Context) error {
		return n.attempt(ctx, target)
	})
}

func (n *Navigator) attempt(ctx context.Context, target string) error {
	if err := n.limiter.Wait(ctx); err != nil {
		return resilience.Permanent(eris.Wrap(err, "navigator: rate limit wait"))
	}
	if err := n.page.Navigate(ctx, target); err != nil {
		return err
	}
	if err := sleep(ctx, n.opts.Settle); err != nil {
		return resilience.Permanent(err)
	}

	n.acceptConsent(ctx)

	challenged, err := n.challenged(ctx)
	if err != nil {
		return err
	}
	if challenged {
		return n.waitChallenge(ctx, target)
	}
	return nil
}

func (n *Navigator) acceptConsent(ctx context.Context) {
	for _, sel := range ConsentSelectors {
		clicked, err := n.page.Click(ctx, sel)
		if err != nil {
			zap.L().Debug("navigator: consent click failed", zap.String("selector", sel), zap.Error(err))
			continue
		}
		if clicked {
			zap.L().Info("navigator: accepted consent interstitial", zap.String("selector", sel))
			_ = sleep(ctx, n.opts.Settle)
			return
		}
	}
}

// challenged reports whether the current document is a verification page.
func (n *Navigator) challenged(ctx context.Context) (bool, error) {
	for _, sel := range ChallengeSelectors {
		ok, err := n.page.Exists(ctx, sel)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	title, err := n.page.Title(ctx)
	if err != nil {
		return false, err
	}
	title = strings.ToLower(title)
	for _, marker := range challengeTitles {
		if strings.Contains(title, marker) {
			return true, nil
		}
	}
	loc, err := n.page.Location(ctx)
	if err != nil {
		return false, err
	}
	return strings.Contains(loc, "/sorry/"), nil
}

// waitChallenge blocks until a human clears the challenge or the wait cap
// elapses.
func (n *Navigator) waitChallenge(ctx context.Context, target string) error {
	zap.L().Warn("navigator: verification challenge, waiting for it to be cleared",
		zap.String("url", target),
		zap.Duration("max_wait", n.opts.ChallengeMaxWait),
	)
	if n.opts.OnChallenge != nil {
		n.opts.OnChallenge(target)
	}

	deadline := time.Now().Add(n.opts.ChallengeMaxWait)
	for time.Now().Before(deadline) {
		if err := sleep(ctx, n.opts.ChallengePoll); err != nil {
			return resilience.Permanent(err)
		}
		challenged, err := n.challenged(ctx)
		if err != nil {
			return err
		}
		if !challenged {
			zap.L().Info("navigator: challenge cleared", zap.String("url", target))
			return nil
		}
	}
	return resilience.Permanent(ErrChallengeTimeout)
}

// WithLocale sets the hl query parameter on rawURL.
func WithLocale(rawURL, locale string) string {
	u, err := url.Parse(rawURL)
	if err != nil || locale == "" {
		return rawURL
	}
	q := u.Query()
	q.Set("hl", locale)
	u.RawQuery = q.Encode()
	return u.String()
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
