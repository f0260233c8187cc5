package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync/atomic"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/sells-group/price-patrol/internal/model"
	"github.com/sells-group/price-patrol/internal/resilience"
)

// Inferencer is the AI collaborator: one bounded prompt in, one textual
// answer out. A quota-exhaustion response must surface as a rate-limit
// error (resilience.IsRateLimit) so the breaker can open on it.
type Inferencer interface {
	Infer(ctx context.Context, prompt string) (string, error)
}

// DefaultAIMaxChars caps the page text included in the prompt.
const DefaultAIMaxChars = 8000

const aiPromptTemplate = `Analyze this product page text and extract the fields below.
Return ONLY a JSON object, no prose, shaped exactly like:
{"price": 2450.00, "name": "...", "description": "...", "fitment": "...", "specs": "..."}

Rules:
- price: the current selling price as a bare decimal. Ignore currency
  symbols. If multiple prices exist, choose the lowest "sale" price.
  Use 0 if no price is found.
- name: the product's name, or "" if not found.
- description: the product's own descriptive copy (not navigation or
  legal text), or "" if not found.
- fitment: which vehicles or models the part fits, or "" if not stated.
- specs: technical specifications as "name: value" pairs joined by "; "
  (e.g. "Capacity: 4500 lb; Rope: synthetic"), or "" if none.

TEXT CONTENT:
%s`

// aiAnswer is the JSON shape the model is instructed to return.
type aiAnswer struct {
	Price       float64 `json:"price"`
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Fitment     string  `json:"fitment"`
	Specs       string  `json:"specs"`
}

// AIExtractor consults the AI collaborator through a circuit breaker.
// While the breaker is open it returns no evidence immediately at zero
// cost. Unparseable answers yield no evidence; nothing raises into the
// caller.
type AIExtractor struct {
	client   Inferencer
	breaker  *resilience.CircuitBreaker
	maxChars int
	calls    atomic.Int64
}

// NewAIExtractor wires the AI client behind the shared per-run breaker.
// maxChars <= 0 selects DefaultAIMaxChars.
func NewAIExtractor(client Inferencer, breaker *resilience.CircuitBreaker, maxChars int) *AIExtractor {
	if maxChars <= 0 {
		maxChars = DefaultAIMaxChars
	}
	return &AIExtractor{client: client, breaker: breaker, maxChars: maxChars}
}

func (e *AIExtractor) Source() model.Source {
	return model.SourceAiInference
}

// Calls reports how many inference calls actually went out this run.
func (e *AIExtractor) Calls() int64 {
	return e.calls.Load()
}

func (e *AIExtractor) Extract(ctx context.Context, page *Page) []model.Evidence {
	if e.client == nil || !e.breaker.Allow() {
		return nil
	}

	text := truncateRunes(page.Text, e.maxChars)
	prompt := fmt.Sprintf(aiPromptTemplate, text)

	e.calls.Add(1)
	answer, err := resilience.ExecuteVal(ctx, e.breaker, func(ctx context.Context) (string, error) {
		return e.client.Infer(ctx, prompt)
	})
	if err != nil {
		zap.L().Warn("extract: ai inference failed",
			zap.String("url", page.URL),
			zap.Bool("breaker_open", e.breaker.Tripped()),
			zap.Error(err),
		)
		return nil
	}

	return e.parse(answer, page.URL)
}

func (e *AIExtractor) parse(answer, url string) []model.Evidence {
	var parsed aiAnswer
	if err := json.Unmarshal([]byte(cleanJSON(answer)), &parsed); err != nil {
		zap.L().Warn("extract: ai answer is not valid JSON, discarding",
			zap.String("url", url),
			zap.Error(err),
		)
		return nil
	}

	var out []model.Evidence
	if parsed.Price > 0 {
		out = append(out, model.Evidence{Source: model.SourceAiInference, Field: model.FieldPrice, Price: parsed.Price})
	}
	add := func(field model.Field, text string) {
		if text = strings.TrimSpace(text); text != "" {
			out = append(out, model.Evidence{Source: model.SourceAiInference, Field: field, Text: text})
		}
	}
	add(model.FieldName, parsed.Name)
	add(model.FieldDescription, parsed.Description)
	add(model.FieldFitment, parsed.Fitment)
	add(model.FieldSpecs, parsed.Specs)
	return out
}

// truncateRunes cuts text to at most max bytes without splitting a
// multi-byte rune.
func truncateRunes(text string, max int) string {
	if len(text) <= max {
		return text
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut]
}

// cleanJSON strips markdown code fences and any prose around the first
// JSON object in a model response.
func cleanJSON(text string) string {
	text = strings.TrimSpace(text)

	if strings.HasPrefix(text, "```json") {
		text = strings.TrimPrefix(text, "```json")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	} else if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	}

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		text = text[start : end+1]
	}

	return strings.TrimSpace(text)
}
