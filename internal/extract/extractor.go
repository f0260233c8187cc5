package extract

import (
	"context"

	"github.com/sells-group/price-patrol/internal/model"
)

// Extractor reads one evidence source on a rendered page. Implementations
// are side-effect-free from the caller's point of view and never return an
// error: malformed input simply yields no evidence.
type Extractor interface {
	// Source identifies the extractor and fixes its trust weight.
	Source() model.Source
	// Extract returns the evidence found on the page, possibly none.
	Extract(ctx context.Context, page *Page) []model.Evidence
}

// Run executes each extractor in order and pools the evidence. A panic in
// one extractor is swallowed so it can never take the others down.
func Run(ctx context.Context, page *Page, extractors []Extractor) []model.Evidence {
	var all []model.Evidence
	for _, ex := range extractors {
		all = append(all, runOne(ctx, page, ex)...)
	}
	return all
}

func runOne(ctx context.Context, page *Page, ex Extractor) (out []model.Evidence) {
	defer func() {
		if recover() != nil {
			out = nil
		}
	}()
	return ex.Extract(ctx, page)
}
