package classify

import (
	"context"

	"github.com/sells-group/leadscout/internal/cost"
	"github.com/sells-group/leadscout/pkg/anthropic"
	"github.com/sells-group/leadscout/pkg/openai"
)

// AnthropicCompleter sends prompts through the Anthropic Messages API. The
// system prompt is marked cacheable.
type AnthropicCompleter struct {
	client      anthropic.Client
	model       string
	maxTokens   int64
	temperature float64
}

// NewAnthropic creates an AnthropicCompleter.
func NewAnthropic(client anthropic.Client, model string, maxTokens int, temperature float64) *AnthropicCompleter {
	if maxTokens <= 0 {
		maxTokens = 300
	}
	return &AnthropicCompleter{client: client, model: model, maxTokens: int64(maxTokens), temperature: temperature}
}

func (a *AnthropicCompleter) Provider() string { return "anthropic" }
func (a *AnthropicCompleter) Model() string    { return a.model }

func (a *AnthropicCompleter) Complete(ctx context.Context, system, user string) (Completion, error) {
	temp := a.temperature
	resp, err := a.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:       a.model,
		MaxTokens:   a.maxTokens,
		System:      []anthropic.SystemBlock{{Text: system, CacheControl: &anthropic.CacheControl{}}},
		Messages:    []anthropic.Message{{Role: "user", Content: user}},
		Temperature: &temp,
	})
	if err != nil {
		return Completion{}, err
	}
	resp.Usage.LogUsage(a.model, "classify")

	model := resp.Model
	if model == "" {
		model = a.model
	}
	return Completion{
		Text:  resp.Text(),
		Model: model,
		Usage: cost.Usage{
			Input:      int(resp.Usage.InputTokens),
			Output:     int(resp.Usage.OutputTokens),
			CacheWrite: int(resp.Usage.CacheCreationInputTokens),
			CacheRead:  int(resp.Usage.CacheReadInputTokens),
		},
	}, nil
}

// OpenAICompleter sends prompts to an OpenAI-compatible chat endpoint in
// JSON mode.
type OpenAICompleter struct {
	client      openai.Client
	model       string
	maxTokens   int
	temperature float64
}

// NewOpenAI creates an OpenAICompleter.
func NewOpenAI(client openai.Client, model string, maxTokens int, temperature float64) *OpenAICompleter {
	if maxTokens <= 0 {
		maxTokens = 300
	}
	return &OpenAICompleter{client: client, model: model, maxTokens: maxTokens, temperature: temperature}
}

func (o *OpenAICompleter) Provider() string { return "openai" }
func (o *OpenAICompleter) Model() string    { return o.model }

func (o *OpenAICompleter) Complete(ctx context.Context, system, user string) (Completion, error) {
	temp, maxTokens := o.temperature, o.maxTokens
	resp, err := o.client.ChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: o.model,
		Messages: []openai.Message{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		Temperature:    &temp,
		MaxTokens:      &maxTokens,
		ResponseFormat: openai.JSONObject,
	})
	if err != nil {
		return Completion{}, err
	}

	model := o.model
	if resp.Model != "" && o.model == "" {
		model = resp.Model
	}
	return Completion{
		Text:  resp.Content(),
		Model: model,
		Usage: cost.Usage{Input: resp.Usage.PromptTokens, Output: resp.Usage.CompletionTokens},
	}, nil
}
