package extract

import (
	"context"
	"regexp"
	"strconv"
	"strings"

	"github.com/sells-group/price-patrol/internal/model"
)

// MetaExtractor reads the social and e-commerce meta tags most retail
// platforms emit. Each field has a fixed fallback order; the first
// populated tag wins.
type MetaExtractor struct{}

// NewMetaExtractor returns the meta-tag extractor.
func NewMetaExtractor() *MetaExtractor {
	return &MetaExtractor{}
}

func (e *MetaExtractor) Source() model.Source {
	return model.SourceMetaTag
}

// Fallback orders per field. Price amounts come from the OpenGraph
// commerce extension tags and their twitter equivalents.
var (
	metaNameTags  = []string{"og:title", "twitter:title"}
	metaDescTags  = []string{"og:description", "twitter:description", "description"}
	metaImageTags = []string{"og:image", "twitter:image", "twitter:image:src"}
	metaPriceTags = []string{"product:price:amount", "og:price:amount", "product:sale_price:amount", "twitter:data1"}
)

func (e *MetaExtractor) Extract(_ context.Context, page *Page) []model.Evidence {
	var out []model.Evidence
	add := func(field model.Field, tags []string) {
		for _, tag := range tags {
			if v := metaContent(page.HTML, tag); v != "" {
				out = append(out, model.Evidence{Source: model.SourceMetaTag, Field: field, Text: v})
				return
			}
		}
	}

	add(model.FieldName, metaNameTags)
	add(model.FieldDescription, metaDescTags)
	add(model.FieldImage, metaImageTags)

	for _, tag := range metaPriceTags {
		v := metaContent(page.HTML, tag)
		if v == "" {
			continue
		}
		if price, ok := parsePriceString(v); ok {
			out = append(out, model.Evidence{Source: model.SourceMetaTag, Field: model.FieldPrice, Price: price})
			break
		}
	}

	return out
}

var metaContentRe = regexp.MustCompile(`(?i)<meta\s[^>]*?(?:property|name|itemprop)\s*=\s*["']([^"']+)["'][^>]*?content\s*=\s*["']([^"']*?)["']`)
var metaContentRevRe = regexp.MustCompile(`(?i)<meta\s[^>]*?content\s*=\s*["']([^"']*?)["'][^>]*?(?:property|name|itemprop)\s*=\s*["']([^"']+)["']`)

// metaContent returns the content of a <meta> tag by property or name,
// tolerating either attribute order.
func metaContent(html, name string) string {
	lowerName := strings.ToLower(name)
	for _, m := range metaContentRe.FindAllStringSubmatch(html, -1) {
		if strings.ToLower(m[1]) == lowerName {
			return strings.TrimSpace(htmlUnescape(m[2]))
		}
	}
	for _, m := range metaContentRevRe.FindAllStringSubmatch(html, -1) {
		if strings.ToLower(m[2]) == lowerName {
			return strings.TrimSpace(htmlUnescape(m[1]))
		}
	}
	return ""
}

var nonNumericRe = regexp.MustCompile(`[^0-9.]`)

// parsePriceString normalizes a currency string by stripping everything
// non-numeric before parsing. "$1,299.00" and "USD 1299" both parse;
// zero, negative, and garbage do not.
func parsePriceString(s string) (float64, bool) {
	cleaned := nonNumericRe.ReplaceAllString(s, "")
	if cleaned == "" || strings.Count(cleaned, ".") > 1 {
		return 0, false
	}
	price, err := strconv.ParseFloat(cleaned, 64)
	if err != nil || price <= 0 {
		return 0, false
	}
	return price, true
}
