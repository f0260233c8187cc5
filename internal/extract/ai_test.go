package extract

import (
	"context"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/price-patrol/internal/model"
	"github.com/sells-group/price-patrol/internal/resilience"
)

// mockInferencer scripts AI answers and records prompts.
type mockInferencer struct {
	answer  string
	err     error
	prompts []string
}

func (m *mockInferencer) Infer(_ context.Context, prompt string) (string, error) {
	m.prompts = append(m.prompts, prompt)
	if m.err != nil {
		return "", m.err
	}
	return m.answer, nil
}

func newTestBreaker() *resilience.CircuitBreaker {
	return resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{FailureThreshold: 3})
}

func TestAIExtractParsesAnswer(t *testing.T) {
	t.Parallel()

	client := &mockInferencer{answer: `{"price": 2450.00, "name": "Garrett GT2860RS", "description": "Ball bearing turbocharger rated to 360 hp.", "fitment": "Nissan SR20DET", "specs": "Rated power: 360 hp; Bearing: dual ball"}`}
	ex := NewAIExtractor(client, newTestBreaker(), 0)

	got := ex.Extract(context.Background(), &Page{URL: "https://x.test", Text: "page text"})
	byField := evidenceByField(got)

	require.Contains(t, byField, model.FieldPrice)
	assert.InDelta(t, 2450.00, byField[model.FieldPrice].Price, 0.001)
	assert.Equal(t, "Garrett GT2860RS", byField[model.FieldName].Text)
	assert.Equal(t, "Nissan SR20DET", byField[model.FieldFitment].Text)
	assert.Equal(t, "Rated power: 360 hp; Bearing: dual ball", byField[model.FieldSpecs].Text)
	assert.EqualValues(t, 1, ex.Calls())
	for _, e := range got {
		assert.Equal(t, model.SourceAiInference, e.Source)
	}
}

func TestAIExtractStripsFences(t *testing.T) {
	t.Parallel()

	client := &mockInferencer{answer: "```json\n{\"price\": 88.00, \"name\": \"\", \"description\": \"\", \"fitment\": \"\"}\n```"}
	got := NewAIExtractor(client, newTestBreaker(), 0).Extract(context.Background(), &Page{Text: "x"})
	require.Len(t, got, 1)
	assert.InDelta(t, 88.00, got[0].Price, 0.001)
}

func TestAIExtractZeroPriceMeansNotFound(t *testing.T) {
	t.Parallel()

	client := &mockInferencer{answer: `{"price": 0, "name": "", "description": "", "fitment": ""}`}
	got := NewAIExtractor(client, newTestBreaker(), 0).Extract(context.Background(), &Page{Text: "x"})
	assert.Empty(t, got)
}

func TestAIExtractGarbageYieldsNothing(t *testing.T) {
	t.Parallel()

	client := &mockInferencer{answer: "I could not find a price on this page, sorry!"}
	got := NewAIExtractor(client, newTestBreaker(), 0).Extract(context.Background(), &Page{Text: "x"})
	assert.Empty(t, got, "parse failure never raises, just yields no evidence")
}

func TestAIExtractCapsPromptText(t *testing.T) {
	t.Parallel()

	client := &mockInferencer{answer: `{"price": 10}`}
	long := strings.Repeat("a", 20000)
	NewAIExtractor(client, newTestBreaker(), 8000).Extract(context.Background(), &Page{Text: long})

	require.Len(t, client.prompts, 1)
	assert.Less(t, len(client.prompts[0]), 9000, "page text is capped before prompting")
}

func TestTruncateRunes(t *testing.T) {
	t.Parallel()

	t.Run("short text passes through", func(t *testing.T) {
		assert.Equal(t, "héllo", truncateRunes("héllo", 10))
	})

	t.Run("never splits a multibyte rune", func(t *testing.T) {
		text := strings.Repeat("é", 100) // 2 bytes each
		for max := 1; max < 12; max++ {
			got := truncateRunes(text, max)
			assert.True(t, utf8.ValidString(got), "max=%d", max)
			assert.LessOrEqual(t, len(got), max)
		}
	})

	t.Run("cuts at exact boundary", func(t *testing.T) {
		got := truncateRunes("日本語のページ", 9) // 3 bytes per rune
		assert.Equal(t, "日本語", got)
	})
}

func TestAIExtractBreakerOpenSkipsCall(t *testing.T) {
	t.Parallel()

	breaker := newTestBreaker()
	breaker.Record(resilience.NewRateLimitError(assert.AnError))
	require.True(t, breaker.Tripped())

	client := &mockInferencer{answer: `{"price": 10}`}
	ex := NewAIExtractor(client, breaker, 0)

	got := ex.Extract(context.Background(), &Page{Text: "x"})
	assert.Empty(t, got)
	assert.Empty(t, client.prompts, "open breaker suppresses the call entirely")
	assert.EqualValues(t, 0, ex.Calls())
}

func TestAIExtractFailuresTripBreaker(t *testing.T) {
	t.Parallel()

	breaker := newTestBreaker()
	client := &mockInferencer{err: assert.AnError}
	ex := NewAIExtractor(client, breaker, 0)

	for i := 0; i < 3; i++ {
		assert.Empty(t, ex.Extract(context.Background(), &Page{Text: "x"}))
	}
	assert.True(t, breaker.Tripped(), "three consecutive failures open the circuit")

	// Further extractions cost nothing.
	before := len(client.prompts)
	ex.Extract(context.Background(), &Page{Text: "x"})
	assert.Equal(t, before, len(client.prompts))
}

func TestAIExtractNilClient(t *testing.T) {
	t.Parallel()

	ex := NewAIExtractor(nil, newTestBreaker(), 0)
	assert.Empty(t, ex.Extract(context.Background(), &Page{Text: "x"}))
}

func TestCleanJSON(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		want string
	}{
		{`{"a":1}`, `{"a":1}`},
		{"```json\n{\"a\":1}\n```", `{"a":1}`},
		{"```\n{\"a\":1}\n```", `{"a":1}`},
		{`Here you go: {"a":1} hope that helps`, `{"a":1}`},
		{"no json at all", "no json at all"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, cleanJSON(tc.in), "input %q", tc.in)
	}
}
