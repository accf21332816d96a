package cost

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func testRates() Rates {
	return Rates{
		Anthropic: map[string]ModelRate{
			"haiku": {Input: 0.80, Output: 4.00, CacheWriteMul: 1.25, CacheReadMul: 0.1},
		},
		OpenAI: map[string]ModelRate{
			"mini": {Input: 0.15, Output: 0.60, CacheReadMul: 0.5},
		},
	}
}

func TestCost(t *testing.T) {
	t.Parallel()
	calc := NewCalculator(testRates())

	tests := []struct {
		name     string
		provider string
		model    string
		usage    Usage
		want     float64
	}{
		{"haiku plain", "anthropic", "haiku", Usage{Input: 1_000_000, Output: 1_000_000}, 4.80},
		{"haiku cache", "anthropic", "haiku", Usage{CacheWrite: 1_000_000, CacheRead: 1_000_000}, 0.80*1.25 + 0.80*0.1},
		{"openai mini", "openai", "mini", Usage{Input: 2_000_000, Output: 500_000}, 0.30 + 0.30},
		{"unknown model", "anthropic", "opus", Usage{Input: 1_000_000}, 0},
		{"unknown provider", "mistral", "haiku", Usage{Input: 1_000_000}, 0},
		{"zero usage", "openai", "mini", Usage{}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.InDelta(t, tt.want, calc.Cost(tt.provider, tt.model, tt.usage), 1e-9)
		})
	}
}

func TestClaude(t *testing.T) {
	t.Parallel()
	calc := NewCalculator(testRates())
	assert.InDelta(t, 0.36, calc.Claude("haiku", 200_000, 50_000, 0, 0), 1e-9)
}

func TestNilCalculator(t *testing.T) {
	t.Parallel()
	var calc *Calculator
	assert.Zero(t, calc.Cost("anthropic", "haiku", Usage{Input: 10}))
}

func TestDefaultRates(t *testing.T) {
	t.Parallel()
	r := DefaultRates()
	assert.Contains(t, r.Anthropic, "claude-haiku-4-5-20251001")
	assert.Contains(t, r.OpenAI, "gpt-4o-mini")
	assert.InDelta(t, 0.15, r.OpenAI["gpt-4o-mini"].Input, 1e-9)
}

func TestMerge(t *testing.T) {
	t.Parallel()
	r := DefaultRates().Merge(
		map[string][2]float64{"claude-haiku-4-5-20251001": {1.00, 5.00}, "claude-new": {2, 8}},
		map[string][2]float64{"gpt-4.1-mini": {0.40, 1.60}},
	)

	haiku := r.Anthropic["claude-haiku-4-5-20251001"]
	assert.InDelta(t, 1.00, haiku.Input, 1e-9)
	assert.InDelta(t, 5.00, haiku.Output, 1e-9)
	assert.InDelta(t, 0.1, haiku.CacheReadMul, 1e-9)
	assert.InDelta(t, 1.25, r.Anthropic["claude-new"].CacheWriteMul, 1e-9)
	assert.InDelta(t, 0.40, r.OpenAI["gpt-4.1-mini"].Input, 1e-9)
	assert.Contains(t, r.OpenAI, "gpt-4o")

	// base untouched
	assert.InDelta(t, 0.80, DefaultRates().Anthropic["claude-haiku-4-5-20251001"].Input, 1e-9)
}
