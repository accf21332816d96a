// Package cost prices language-model token usage.
package cost

// ModelRate holds per-model token pricing (USD per million tokens).
type ModelRate struct {
	Input         float64 `yaml:"input" mapstructure:"input"`
	Output        float64 `yaml:"output" mapstructure:"output"`
	CacheWriteMul float64 `yaml:"cache_write_mul" mapstructure:"cache_write_mul"`
	CacheReadMul  float64 `yaml:"cache_read_mul" mapstructure:"cache_read_mul"`
}

// Rates holds per-provider pricing keyed by model id.
type Rates struct {
	Anthropic map[string]ModelRate `yaml:"anthropic" mapstructure:"anthropic"`
	OpenAI    map[string]ModelRate `yaml:"openai" mapstructure:"openai"`
}

// Usage is provider-neutral token usage for one call.
type Usage struct {
	Input      int
	Output     int
	CacheWrite int
	CacheRead  int
}

// Calculator computes costs for API usage.
type Calculator struct {
	rates Rates
}

// NewCalculator creates a Calculator with the given rates.
func NewCalculator(rates Rates) *Calculator {
	return &Calculator{rates: rates}
}

// Cost returns the USD cost of one call. Unknown providers or models cost 0.
func (c *Calculator) Cost(provider, model string, u Usage) float64 {
	if c == nil {
		return 0
	}
	var table map[string]ModelRate
	switch provider {
	case "anthropic":
		table = c.rates.Anthropic
	case "openai":
		table = c.rates.OpenAI
	}
	rate, ok := table[model]
	if !ok {
		return 0
	}

	inCost := (float64(u.Input) / 1e6) * rate.Input
	outCost := (float64(u.Output) / 1e6) * rate.Output
	cwCost := (float64(u.CacheWrite) / 1e6) * rate.Input * rate.CacheWriteMul
	crCost := (float64(u.CacheRead) / 1e6) * rate.Input * rate.CacheReadMul

	return inCost + outCost + cwCost + crCost
}

// Claude computes the cost for a Claude API call.
func (c *Calculator) Claude(model string, input, output, cacheWrite, cacheRead int) float64 {
	return c.Cost("anthropic", model, Usage{Input: input, Output: output, CacheWrite: cacheWrite, CacheRead: cacheRead})
}

// DefaultRates returns the default pricing rates.
func DefaultRates() Rates {
	return Rates{
		Anthropic: map[string]ModelRate{
			"claude-haiku-4-5-20251001": {
				Input: 0.80, Output: 4.00,
				CacheWriteMul: 1.25, CacheReadMul: 0.1,
			},
			"claude-sonnet-4-5-20250929": {
				Input: 3.00, Output: 15.00,
				CacheWriteMul: 1.25, CacheReadMul: 0.1,
			},
		},
		OpenAI: map[string]ModelRate{
			"gpt-4o-mini": {Input: 0.15, Output: 0.60, CacheReadMul: 0.5},
			"gpt-4o":      {Input: 2.50, Output: 10.00, CacheReadMul: 0.5},
		},
	}
}

// Merge overlays configured input/output prices onto r. Cache multipliers
// of existing entries are kept.
func (r Rates) Merge(anthropic, openai map[string][2]float64) Rates {
	out := Rates{
		Anthropic: overlay(r.Anthropic, anthropic, 1.25, 0.1),
		OpenAI:    overlay(r.OpenAI, openai, 0, 0.5),
	}
	return out
}

func overlay(base map[string]ModelRate, prices map[string][2]float64, cw, cr float64) map[string]ModelRate {
	out := make(map[string]ModelRate, len(base)+len(prices))
	for k, v := range base {
		out[k] = v
	}
	for model, p := range prices {
		rate, ok := out[model]
		if !ok {
			rate = ModelRate{CacheWriteMul: cw, CacheReadMul: cr}
		}
		rate.Input, rate.Output = p[0], p[1]
		out[model] = rate
	}
	return out
}
