// Package classify asks a language model whether a review breaks the map
// service's content policy.
package classify

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/leadscout/internal/cost"
	"github.com/sells-group/leadscout/internal/model"
	"github.com/sells-group/leadscout/internal/resilience"
)

// Completion is one model reply.
type Completion struct {
	Text  string
	Model string
	Usage cost.Usage
}

// Completer sends one system + user prompt pair to a model provider.
type Completer interface {
	Provider() string
	Model() string
	Complete(ctx context.Context, system, user string) (Completion, error)
}

// Cache stores successful classifications by key.
type Cache interface {
	GetClassification(ctx context.Context, key string) (model.Classification, bool, error)
	PutClassification(ctx context.Context, key string, c model.Classification) error
}

// Options configures a Classifier. Zero values disable the corresponding feature.
type Options struct {
	Retry      resilience.RetryConfig
	Breaker    *resilience.CircuitBreaker
	Cache      Cache
	Calculator *cost.Calculator
}

// Stats are cumulative counters for one Classifier.
type Stats struct {
	Calls     int
	CacheHits int
	Errors    int
	CostUSD   float64
}

// Classifier turns reviews into classifications. It is safe for concurrent use.
type Classifier struct {
	completer Completer
	opts      Options

	mu    sync.Mutex
	stats Stats
}

// New creates a Classifier over completer.
func New(completer Completer, opts Options) *Classifier {
	if opts.Retry.MaxAttempts == 0 {
		opts.Retry = resilience.DefaultRetryConfig()
	}
	if opts.Retry.OnRetry == nil {
		opts.Retry.OnRetry = resilience.RetryLogger(completer.Provider(), "classify")
	}
	return &Classifier{completer: completer, opts: opts}
}

// Classify returns the verdict for r. Any service or parse failure yields
// SafeDefault carrying the error text; it never returns an error.
func (c *Classifier) Classify(ctx context.Context, r model.Review) model.Classification {
	key := CacheKey(c.completer.Model(), r)

	if c.opts.Cache != nil {
		cached, ok, err := c.opts.Cache.GetClassification(ctx, key)
		if err != nil {
			zap.L().Warn("classify: cache read failed", zap.Error(err))
		} else if ok {
			c.record(func(s *Stats) { s.CacheHits++ })
			return cached
		}
	}

	result, err := c.call(ctx, r)
	if err != nil {
		zap.L().Warn("classify: classification failed, using safe default",
			zap.String("reviewer", r.ReviewerName),
			zap.Int("rating", r.Rating),
			zap.Error(err),
		)
		c.record(func(s *Stats) { s.Errors++ })
		return SafeDefault(err)
	}

	if c.opts.Cache != nil {
		if err := c.opts.Cache.PutClassification(ctx, key, result); err != nil {
			zap.L().Warn("classify: cache write failed", zap.Error(err))
		}
	}
	return result
}

func (c *Classifier) call(ctx context.Context, r model.Review) (model.Classification, error) {
	user := UserPrompt(r)

	attempt := func(ctx context.Context) (Completion, error) {
		if c.opts.Breaker == nil {
			return c.completer.Complete(ctx, SystemPrompt, user)
		}
		return resilience.ExecuteVal(ctx, c.opts.Breaker, func(ctx context.Context) (Completion, error) {
			return c.completer.Complete(ctx, SystemPrompt, user)
		})
	}

	completion, err := resilience.DoVal(ctx, c.opts.Retry, func(ctx context.Context) (Completion, error) {
		comp, err := attempt(ctx)
		c.record(func(s *Stats) {
			s.Calls++
			if err == nil {
				s.CostUSD += c.opts.Calculator.Cost(c.completer.Provider(), comp.Model, comp.Usage)
			}
		})
		return comp, err
	})
	if err != nil {
		return model.Classification{}, eris.Wrap(err, "classify: complete")
	}

	return Parse(completion.Text)
}

func (c *Classifier) record(fn func(*Stats)) {
	c.mu.Lock()
	fn(&c.stats)
	c.mu.Unlock()
}

// Stats returns a snapshot of the counters.
func (c *Classifier) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

// SafeDefault is the non-violation verdict used when classification fails.
func SafeDefault(err error) model.Classification {
	reason := "classification error"
	if err != nil {
		reason = "classification error: " + err.Error()
	}
	return model.Classification{
		HasViolation:   false,
		ViolationTypes: []string{},
		Confidence:     0,
		Reasoning:      reason,
	}
}

// CacheKey identifies a review for a given model. Identical inputs always
// produce the same key.
func CacheKey(modelID string, r model.Review) string {
	h := sha256.New()
	for _, part := range []string{modelID, r.ReviewerName, strconv.Itoa(r.Rating), strings.TrimSpace(r.Text), r.Date} {
		fmt.Fprintf(h, "%d:%s|", len(part), part)
	}
	return hex.EncodeToString(h.Sum(nil))
}
