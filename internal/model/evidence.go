package model

// Source identifies where a piece of extracted evidence came from.
type Source string

const (
	SourceStructured     Source = "structured_data"
	SourceMetaTag        Source = "meta_tag"
	SourceVisibleFocused Source = "visible_text_focused"
	SourceAiInference    Source = "ai_inference"
	SourceVisibleBroad   Source = "visible_text_broad"
)

// Trust returns the fixed priority weight for a source. Weights are
// source-level, not value-level, and do not change during a run.
func (s Source) Trust() int {
	switch s {
	case SourceStructured:
		return 10
	case SourceMetaTag:
		return 8
	case SourceVisibleFocused:
		return 6
	case SourceAiInference:
		return 4
	case SourceVisibleBroad:
		return 2
	default:
		return 0
	}
}

// Field identifies which product attribute a piece of evidence describes.
type Field string

const (
	FieldPrice       Field = "price"
	FieldName        Field = "name"
	FieldDescription Field = "description"
	FieldSpecs       Field = "specs"
	FieldImage       Field = "image"
	FieldFitment     Field = "fitment"
)

// Evidence is one extracted value for one field from one source.
// Price evidence carries Price; all other fields carry Text.
type Evidence struct {
	Source Source  `json:"source"`
	Field  Field   `json:"field"`
	Text   string  `json:"text,omitempty"`
	Price  float64 `json:"price,omitempty"`
}

// Trust returns the evidence's source trust weight.
func (e Evidence) Trust() int {
	return e.Source.Trust()
}

// PriceEvidence filters the given evidence down to price items.
func PriceEvidence(items []Evidence) []Evidence {
	var out []Evidence
	for _, e := range items {
		if e.Field == FieldPrice {
			out = append(out, e)
		}
	}
	return out
}

// FieldEvidence filters the given evidence down to one non-price field.
func FieldEvidence(items []Evidence, field Field) []Evidence {
	var out []Evidence
	for _, e := range items {
		if e.Field == field {
			out = append(out, e)
		}
	}
	return out
}
