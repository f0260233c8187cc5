package perplexity

import (
	"context"
	"sync"

	"github.com/rotisserie/eris"
)

const maxAnswerTokens = 1024

// Inferencer answers extraction prompts with a single Perplexity model.
// It is used when no Anthropic key is configured.
type Inferencer struct {
	client Client
	model  string

	mu    sync.Mutex
	calls int64
	usage Usage
}

// NewInferencer creates an Inferencer over the given client. An empty
// model falls back to the client default.
func NewInferencer(client Client, model string) *Inferencer {
	return &Inferencer{client: client, model: model}
}

// Infer sends the prompt and returns the model's text answer.
func (inf *Inferencer) Infer(ctx context.Context, prompt string) (string, error) {
	maxTokens := maxAnswerTokens
	resp, err := inf.client.ChatCompletion(ctx, ChatCompletionRequest{
		Model:     inf.model,
		Messages:  []Message{{Role: "user", Content: prompt}},
		MaxTokens: &maxTokens,
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", eris.New("perplexity: infer: empty response")
	}

	inf.mu.Lock()
	inf.calls++
	inf.usage.PromptTokens += resp.Usage.PromptTokens
	inf.usage.CompletionTokens += resp.Usage.CompletionTokens
	inf.mu.Unlock()

	return resp.Choices[0].Message.Content, nil
}

// Calls returns the number of successful completions so far.
func (inf *Inferencer) Calls() int64 {
	inf.mu.Lock()
	defer inf.mu.Unlock()
	return inf.calls
}

// TotalUsage returns accumulated token usage.
func (inf *Inferencer) TotalUsage() Usage {
	inf.mu.Lock()
	defer inf.mu.Unlock()
	return inf.usage
}
