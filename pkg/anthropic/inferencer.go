package anthropic

import (
	"context"
	"net/http"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// DefaultMaxTokens bounds the model's answer. Extraction answers are a
// small JSON object, so the limit stays low.
const DefaultMaxTokens = 1024

// Inferencer answers extraction prompts using a priority-ordered model
// list. Each call tries the first model and falls through to the next on
// server-side failures. A 429 aborts immediately: the quota is shared
// across models, so falling through would only burn more budget.
type Inferencer struct {
	client    Client
	models    []string
	maxTokens int64

	mu    sync.Mutex
	usage map[string]TokenUsage
	calls int64
}

// NewInferencer creates an Inferencer over the given client and model
// priority list. The first model is preferred.
func NewInferencer(client Client, models []string) *Inferencer {
	return &Inferencer{
		client:    client,
		models:    models,
		maxTokens: DefaultMaxTokens,
		usage:     make(map[string]TokenUsage),
	}
}

// Infer sends the prompt and returns the model's text answer.
func (inf *Inferencer) Infer(ctx context.Context, prompt string) (string, error) {
	if len(inf.models) == 0 {
		return "", eris.New("anthropic: infer: no models configured")
	}

	var lastErr error
	for _, model := range inf.models {
		resp, err := inf.client.CreateMessage(ctx, MessageRequest{
			Model:     model,
			MaxTokens: inf.maxTokens,
			Messages:  []Message{{Role: "user", Content: prompt}},
		})
		if err != nil {
			if StatusCode(err) == http.StatusTooManyRequests {
				return "", err
			}
			if ctx.Err() != nil {
				return "", err
			}
			zap.L().Warn("model failed, trying next",
				zap.String("model", model),
				zap.Error(err))
			lastErr = err
			continue
		}

		inf.record(model, resp.Usage)
		return resp.Text(), nil
	}

	return "", eris.Wrap(lastErr, "anthropic: infer: all models failed")
}

func (inf *Inferencer) record(model string, u TokenUsage) {
	inf.mu.Lock()
	defer inf.mu.Unlock()
	inf.calls++
	total := inf.usage[model]
	total.Add(u)
	inf.usage[model] = total
}

// Calls returns the number of successful model calls so far.
func (inf *Inferencer) Calls() int64 {
	inf.mu.Lock()
	defer inf.mu.Unlock()
	return inf.calls
}

// Usage returns accumulated token usage per model.
func (inf *Inferencer) Usage() map[string]TokenUsage {
	inf.mu.Lock()
	defer inf.mu.Unlock()
	out := make(map[string]TokenUsage, len(inf.usage))
	for k, v := range inf.usage {
		out[k] = v
	}
	return out
}
