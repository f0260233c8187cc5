package anthropic

import (
	"context"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInferFirstModelWins(t *testing.T) {
	mock := &MockClient{
		Responses: []*MessageResponse{
			{
				Model:   "claude-haiku-4-5-20251001",
				Content: []ContentBlock{{Type: "text", Text: `{"price": 12.50}`}},
				Usage:   TokenUsage{InputTokens: 900, OutputTokens: 15},
			},
		},
	}
	inf := NewInferencer(mock, []string{"claude-haiku-4-5-20251001", "claude-3-5-haiku-latest"})

	out, err := inf.Infer(context.Background(), "what is the price?")
	require.NoError(t, err)
	assert.Equal(t, `{"price": 12.50}`, out)

	require.Len(t, mock.Requests, 1)
	assert.Equal(t, "claude-haiku-4-5-20251001", mock.Requests[0].Model)
	assert.Equal(t, int64(DefaultMaxTokens), mock.Requests[0].MaxTokens)
	assert.Equal(t, int64(1), inf.Calls())
}

func TestInferFallsThroughToNextModel(t *testing.T) {
	mock := &MockClient{
		Errors: []error{eris.New("anthropic: create message: status 529")},
		Responses: []*MessageResponse{
			nil,
			{Content: []ContentBlock{{Type: "text", Text: "fallback answer"}}},
		},
	}
	inf := NewInferencer(mock, []string{"primary", "secondary"})

	out, err := inf.Infer(context.Background(), "prompt")
	require.NoError(t, err)
	assert.Equal(t, "fallback answer", out)

	require.Len(t, mock.Requests, 2)
	assert.Equal(t, "secondary", mock.Requests[1].Model)
}

func TestInferAllModelsFail(t *testing.T) {
	mock := &MockClient{
		Errors: []error{
			eris.New("anthropic: create message: status 500"),
			eris.New("anthropic: create message: status 529"),
		},
	}
	inf := NewInferencer(mock, []string{"primary", "secondary"})

	_, err := inf.Infer(context.Background(), "prompt")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "all models failed")
	assert.Equal(t, int64(0), inf.Calls())
}

func TestInferNoModelsConfigured(t *testing.T) {
	inf := NewInferencer(&MockClient{}, nil)

	_, err := inf.Infer(context.Background(), "prompt")
	require.Error(t, err)
}

func TestInferCanceledContextStops(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	mock := &MockClient{
		Errors: []error{context.Canceled},
	}
	inf := NewInferencer(mock, []string{"primary", "secondary"})

	_, err := inf.Infer(ctx, "prompt")
	require.Error(t, err)
	assert.Len(t, mock.Requests, 1)
}

func TestInferUsageAccumulates(t *testing.T) {
	mock := &MockClient{
		Responses: []*MessageResponse{
			{Content: []ContentBlock{{Type: "text", Text: "a"}}, Usage: TokenUsage{InputTokens: 100, OutputTokens: 10}},
			{Content: []ContentBlock{{Type: "text", Text: "b"}}, Usage: TokenUsage{InputTokens: 200, OutputTokens: 20}},
		},
	}
	inf := NewInferencer(mock, []string{"m"})

	_, err := inf.Infer(context.Background(), "one")
	require.NoError(t, err)
	_, err = inf.Infer(context.Background(), "two")
	require.NoError(t, err)

	usage := inf.Usage()
	require.Contains(t, usage, "m")
	assert.Equal(t, int64(300), usage["m"].InputTokens)
	assert.Equal(t, int64(30), usage["m"].OutputTokens)
	assert.Equal(t, int64(2), inf.Calls())
}
