package main

import (
	"context"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/leadscout/internal/browser"
	"github.com/sells-group/leadscout/internal/classify"
	"github.com/sells-group/leadscout/internal/config"
	"github.com/sells-group/leadscout/internal/contact"
	"github.com/sells-group/leadscout/internal/cost"
	"github.com/sells-group/leadscout/internal/export"
	"github.com/sells-group/leadscout/internal/navigator"
	"github.com/sells-group/leadscout/internal/pipeline"
	"github.com/sells-group/leadscout/internal/progress"
	"github.com/sells-group/leadscout/internal/resilience"
	"github.com/sells-group/leadscout/internal/sink"
	"github.com/sells-group/leadscout/internal/store"
	anthropicpkg "github.com/sells-group/leadscout/pkg/anthropic"
	"github.com/sells-group/leadscout/pkg/notion"
	"github.com/sells-group/leadscout/pkg/openai"
	"github.com/sells-group/leadscout/pkg/salesforce"
)

// scrapeEnv holds the browser, clients and store shared by the runs of
// one process.
type scrapeEnv struct {
	Store      store.Store // may be nil
	Chrome     *browser.Chrome
	Navigator  *navigator.Navigator
	Classifier *classify.Classifier
	Email      pipeline.EmailFinder // may be nil
	Notion     notion.Client        // may be nil
	Salesforce salesforce.Client    // may be nil
}

// Close releases the browser and the store.
func (e *scrapeEnv) Close() {
	if e.Chrome != nil {
		e.Chrome.Close()
	}
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

// initEnv validates config for mode and builds everything a run needs.
// Callers should defer env.Close().
func initEnv(ctx context.Context, mode string) (*scrapeEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	env := &scrapeEnv{Store: st}

	env.Classifier, err = initClassifier(st)
	if err != nil {
		env.Close()
		return nil, err
	}

	if env.Notion, err = initNotion(); err != nil {
		env.Close()
		return nil, err
	}
	if env.Salesforce, err = initSalesforce(); err != nil {
		env.Close()
		return nil, err
	}

	env.Chrome, err = browser.Launch(ctx, browser.Options{
		Headless:       cfg.Browser.Headless,
		ExecPath:       cfg.Browser.ChromePath,
		UserDataDir:    cfg.Browser.UserDataDir,
		Locale:         cfg.Browser.Locale,
		AcceptLanguage: cfg.Browser.AcceptLanguage,
		UserAgent:      cfg.Browser.UserAgent,
		WindowWidth:    cfg.Browser.WindowWidth,
		WindowHeight:   cfg.Browser.WindowHeight,
		NoSandbox:      cfg.Browser.NoSandbox,
		CallTimeout:    time.Duration(cfg.Navigator.TimeoutSecs) * time.Second,
	})
	if err != nil {
		env.Close()
		return nil, err
	}
	env.Navigator = navigator.New(env.Chrome, navigatorOptions())

	if cfg.Email.Enabled {
		var mx contact.MXChecker
		if cfg.Email.VerifyMX {
			mx = contact.NewDNSVerifier(cfg.Email.DNSServers, 3*time.Second)
		}
		var fallback contact.PageSource
		if cfg.Email.BrowserFallback {
			fallback = env.Navigator
		}
		env.Email = contact.NewHunter(contact.Options{
			Timeout:   time.Duration(cfg.Email.TimeoutSecs) * time.Second,
			UserAgent: cfg.Browser.UserAgent,
		}, mx, fallback)
	}

	zap.L().Info("environment ready",
		zap.String("store", cfg.Store.Driver),
		zap.String("classifier", cfg.Classifier.Provider),
		zap.String("model", cfg.ClassifierModel()),
		zap.Bool("email", env.Email != nil),
		zap.Bool("notion", env.Notion != nil),
		zap.Bool("salesforce", env.Salesforce != nil),
	)
	return env, nil
}

// pipelineFor builds a Pipeline whose leads go to the region CSV files
// under ts plus every configured sink, and whose events go to events.
func (e *scrapeEnv) pipelineFor(events progress.Sink, dropped func() int64, ts time.Time) *pipeline.Pipeline {
	leads := leadSinks(e.Store, e.Notion, e.Salesforce, export.NewRegionCSV(cfg.Output.Dir, ts))

	deps := pipeline.Deps{
		Navigator:     e.Navigator,
		Classifier:    e.Classifier,
		Leads:         leads,
		Events:        events,
		Email:         e.Email,
		EventsDropped: dropped,
	}
	if e.Store != nil {
		deps.Runs = e.Store
	}
	return pipeline.New(deps, pipelineOptions())
}

// leadSinks fans a lead out to the incremental CSV and every optional
// destination that is configured.
func leadSinks(st store.Store, nc notion.Client, sf salesforce.Client, regionCSV *export.RegionCSV) *sink.Multi {
	m := sink.NewMulti().Add("csv", sink.NewRegionCSV(regionCSV))
	if st != nil {
		m.Add("store", st)
	}
	if nc != nil {
		m.Add("notion", sink.NewNotion(nc, cfg.Notion.LeadDB))
	}
	if sf != nil {
		m.Add("salesforce", sink.NewSalesforce(sf))
	}
	return m
}

func initStore(ctx context.Context) (store.Store, error) {
	st, err := store.Open(ctx, cfg.Store.Driver, cfg.Store.DatabaseURL, &store.PoolConfig{
		MaxConns: cfg.Store.MaxConns,
		MinConns: cfg.Store.MinConns,
	})
	if err != nil {
		return nil, eris.Wrap(err, "init store")
	}
	return st, nil
}

// requireStore opens the store for commands that only read history.
func requireStore(ctx context.Context) (store.Store, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if st == nil {
		return nil, eris.New("store.driver is none; run history is not kept")
	}
	return st, nil
}

func initClassifier(st store.Store) (*classify.Classifier, error) {
	var completer classify.Completer
	switch cfg.Classifier.Provider {
	case "anthropic":
		completer = classify.NewAnthropic(anthropicpkg.NewClient(cfg.Anthropic.Key), cfg.ClassifierModel(), cfg.Classifier.MaxTokens, cfg.Classifier.Temperature)
	case "openai":
		client := openai.NewClient(cfg.OpenAI.Key, openai.WithBaseURL(cfg.OpenAI.BaseURL), openai.WithModel(cfg.ClassifierModel()))
		completer = classify.NewOpenAI(client, cfg.ClassifierModel(), cfg.Classifier.MaxTokens, cfg.Classifier.Temperature)
	default:
		return nil, eris.Errorf("unknown classifier provider %q", cfg.Classifier.Provider)
	}

	opts := classify.Options{
		Retry:      resilience.FromRetryConfig(cfg.Classifier.RetryAttempts, 0, 0),
		Breaker:    resilience.NewCircuitBreaker(resilience.FromCircuitConfig(cfg.Classifier.BreakerThreshold, cfg.Classifier.BreakerResetSecs)),
		Calculator: cost.NewCalculator(pricingRates()),
	}
	if cfg.Classifier.Cache && st != nil {
		opts.Cache = st
	}
	return classify.New(completer, opts), nil
}

// pricingRates overlays configured prices onto the built-in rate table.
func pricingRates() cost.Rates {
	flatten := func(in map[string]config.ModelPricing) map[string][2]float64 {
		out := make(map[string][2]float64, len(in))
		for model, p := range in {
			out[model] = [2]float64{p.Input, p.Output}
		}
		return out
	}
	return cost.DefaultRates().Merge(flatten(cfg.Pricing.Anthropic), flatten(cfg.Pricing.OpenAI))
}

func initNotion() (notion.Client, error) {
	if cfg.Notion.Token == "" {
		return nil, nil
	}
	if cfg.Notion.LeadDB == "" {
		return nil, eris.New("notion.lead_db is required when notion.token is set")
	}
	return notion.NewClient(cfg.Notion.Token, 3), nil
}

func initSalesforce() (salesforce.Client, error) {
	if cfg.Salesforce.ClientID == "" {
		return nil, nil
	}

	pemData, err := os.ReadFile(cfg.Salesforce.KeyPath)
	if err != nil {
		return nil, eris.Wrap(err, "read salesforce JWT private key")
	}

	sf, err := salesforce.Init(salesforce.Creds{
		LoginURL: cfg.Salesforce.LoginURL,
		Username: cfg.Salesforce.Username,
		ClientID: cfg.Salesforce.ClientID,
		PEM:      string(pemData),
	}, salesforce.WithRateLimit(5))
	if err != nil {
		return nil, eris.Wrap(err, "init salesforce")
	}
	return sf, nil
}

func navigatorOptions() navigator.Options {
	n := cfg.Navigator
	return navigator.Options{
		Locale:           localeTag(cfg.Browser.Locale),
		Settle:           time.Duration(n.SettleMs) * time.Millisecond,
		Retries:          n.Retries,
		RatePerSec:       n.RatePerSec,
		Burst:            n.Burst,
		ChallengePoll:    time.Duration(n.ChallengePollSecs) * time.Second,
		ChallengeMaxWait: time.Duration(n.ChallengeMaxWaitSecs) * time.Second,
	}
}

func pipelineOptions() pipeline.Options {
	s := cfg.Scrape
	opts := pipeline.DefaultOptions()
	opts.SearchURL = s.SearchURL
	if cfg.Navigator.Retries > 0 {
		opts.NavigateRetries = cfg.Navigator.Retries
	}
	setInt(&opts.BusinessStallRounds, s.BusinessStallRounds)
	setInt(&opts.BusinessMaxRounds, s.BusinessMaxRounds)
	setInt(&opts.ReviewStallRounds, s.ReviewStallRounds)
	setInt(&opts.ReviewMaxRounds, s.ReviewMaxRounds)
	setInt(&opts.ScrollDelta, s.ScrollDelta)
	setDur(&opts.BusinessSettle, time.Duration(s.BusinessSettleMs)*time.Millisecond)
	setDur(&opts.ReviewSettle, time.Duration(s.ReviewSettleMs)*time.Millisecond)
	setDur(&opts.ReviewWait, time.Duration(s.ReviewWaitSecs)*time.Second)
	setDur(&opts.ReviewTimeout, time.Duration(s.ReviewTimeoutSecs)*time.Second)
	setDur(&opts.CategoryPause, time.Duration(s.CategoryPauseMs)*time.Millisecond)
	setDur(&opts.RegionPause, time.Duration(s.RegionPauseMs)*time.Millisecond)
	return opts
}

func setInt(dst *int, v int) {
	if v > 0 {
		*dst = v
	}
}

func setDur(dst *time.Duration, v time.Duration) {
	if v > 0 {
		*dst = v
	}
}

// localeTag reduces "en-US" to the "en" hint map URLs accept.
func localeTag(locale string) string {
	for i, r := range locale {
		if r == '-' || r == '_' {
			return locale[:i]
		}
	}
	return locale
}
