package extract

import (
	"context"
	"regexp"
	"strconv"
	"strings"

	"github.com/sells-group/price-patrol/internal/model"
)

// focusedPriceRe matches currency-prefixed amounts with exactly two
// decimal places, the shape real price tags almost always take.
var focusedPriceRe = regexp.MustCompile(`\$\s?([0-9]{1,3}(?:,[0-9]{3})*\.[0-9]{2})`)

// broadPriceRe matches any currency-prefixed numeric token. It happily
// matches promotional copy ("win $1000"), which is why it carries the
// lowest trust; it exists only to guarantee a fallback candidate.
var broadPriceRe = regexp.MustCompile(`\$\s?([0-9][0-9,]*(?:\.[0-9]+)?)`)

// VisibleTextExtractor pattern-matches prices out of the page's plain
// text rendition. Focused and broad are the same machinery at different
// precision and trust levels.
type VisibleTextExtractor struct {
	source   model.Source
	re       *regexp.Regexp
	minPrice float64
	maxPrice float64
}

// NewFocusedTextExtractor matches two-decimal currency amounts inside the
// plausible band.
func NewFocusedTextExtractor(minPrice, maxPrice float64) *VisibleTextExtractor {
	return &VisibleTextExtractor{
		source:   model.SourceVisibleFocused,
		re:       focusedPriceRe,
		minPrice: minPrice,
		maxPrice: maxPrice,
	}
}

// NewBroadTextExtractor matches any currency-prefixed number inside the
// plausible band, at the lowest trust.
func NewBroadTextExtractor(minPrice, maxPrice float64) *VisibleTextExtractor {
	return &VisibleTextExtractor{
		source:   model.SourceVisibleBroad,
		re:       broadPriceRe,
		minPrice: minPrice,
		maxPrice: maxPrice,
	}
}

func (e *VisibleTextExtractor) Source() model.Source {
	return e.source
}

func (e *VisibleTextExtractor) Extract(_ context.Context, page *Page) []model.Evidence {
	var out []model.Evidence
	seen := make(map[float64]bool)
	for _, m := range e.re.FindAllStringSubmatch(page.Text, -1) {
		price, err := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", ""), 64)
		if err != nil {
			continue
		}
		// The band check here rejects sub-trivial rebate numbers and
		// absurd outliers before they ever reach the court.
		if price < e.minPrice || price > e.maxPrice {
			continue
		}
		if seen[price] {
			continue
		}
		seen[price] = true
		out = append(out, model.Evidence{Source: e.source, Field: model.FieldPrice, Price: price})
	}
	return out
}
