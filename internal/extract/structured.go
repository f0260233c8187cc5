package extract

import (
	"context"
	"encoding/json"
	"regexp"
	"strconv"
	"strings"

	"github.com/sells-group/price-patrol/internal/model"
)

// StructuredExtractor reads embedded JSON-LD Product markup. Retailers
// maintain this block for search engines, which makes it the most trusted
// source, but it can be stale or missing; malformed markup yields nothing.
type StructuredExtractor struct{}

// NewStructuredExtractor returns the JSON-LD product extractor.
func NewStructuredExtractor() *StructuredExtractor {
	return &StructuredExtractor{}
}

func (e *StructuredExtractor) Source() model.Source {
	return model.SourceStructured
}

var jsonLDRe = regexp.MustCompile(`(?is)<script[^>]*type\s*=\s*["']application/ld\+json["'][^>]*>(.*?)</script>`)

// jsonLDProduct is the subset of schema.org Product markup we read.
// Numeric fields arrive as either strings or numbers depending on the
// retailer, so they are kept raw and parsed leniently.
type jsonLDProduct struct {
	Type        any               `json:"@type"`
	Name        string            `json:"name"`
	Description string            `json:"description"`
	Image       any               `json:"image"`
	Offers      any               `json:"offers"`
	Properties  any               `json:"additionalProperty"`
	Graph       []json.RawMessage `json:"@graph"`
}

func (e *StructuredExtractor) Extract(_ context.Context, page *Page) []model.Evidence {
	var out []model.Evidence
	for _, m := range jsonLDRe.FindAllStringSubmatch(page.HTML, -1) {
		raw := strings.TrimSpace(m[1])

		for _, blob := range splitJSONLD(raw) {
			var p jsonLDProduct
			if err := json.Unmarshal(blob, &p); err != nil {
				continue
			}
			// Nested @graph containers hold the product one level down.
			if len(p.Graph) > 0 {
				for _, g := range p.Graph {
					var gp jsonLDProduct
					if err := json.Unmarshal(g, &gp); err == nil {
						out = append(out, e.fromProduct(gp)...)
					}
				}
				continue
			}
			out = append(out, e.fromProduct(p)...)
		}
	}
	return out
}

// splitJSONLD returns the objects in a JSON-LD block, which may be a
// single object or an array of them.
func splitJSONLD(raw string) []json.RawMessage {
	if strings.HasPrefix(raw, "[") {
		var arr []json.RawMessage
		if err := json.Unmarshal([]byte(raw), &arr); err == nil {
			return arr
		}
		return nil
	}
	return []json.RawMessage{json.RawMessage(raw)}
}

func (e *StructuredExtractor) fromProduct(p jsonLDProduct) []model.Evidence {
	if !isProductType(p.Type) {
		return nil
	}

	var out []model.Evidence
	add := func(field model.Field, text string) {
		if text = strings.TrimSpace(text); text != "" {
			out = append(out, model.Evidence{Source: model.SourceStructured, Field: field, Text: text})
		}
	}

	add(model.FieldName, p.Name)
	add(model.FieldDescription, p.Description)
	add(model.FieldImage, firstImage(p.Image))
	add(model.FieldSpecs, specsText(p.Properties))

	if price, ok := offerPrice(p.Offers); ok {
		out = append(out, model.Evidence{Source: model.SourceStructured, Field: model.FieldPrice, Price: price})
	}
	return out
}

// isProductType matches "@type" values of "Product" (string or array form).
func isProductType(t any) bool {
	switch v := t.(type) {
	case string:
		return strings.EqualFold(v, "product")
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok && strings.EqualFold(s, "product") {
				return true
			}
		}
	}
	return false
}

// specsText flattens schema.org additionalProperty markup (PropertyValue
// name/value pairs, single or array form) into one "name: value" list.
func specsText(props any) string {
	items, ok := props.([]any)
	if !ok {
		m, single := props.(map[string]any)
		if !single {
			return ""
		}
		items = []any{m}
	}

	var parts []string
	for _, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		name, _ := m["name"].(string)
		name = strings.TrimSpace(name)
		value := strings.TrimSpace(propertyValue(m["value"]))
		if name == "" || value == "" {
			continue
		}
		parts = append(parts, name+": "+value)
	}
	return strings.Join(parts, "; ")
}

// propertyValue renders a PropertyValue's value, which retailers emit as
// a string, a number, or a bool.
func propertyValue(v any) string {
	switch n := v.(type) {
	case string:
		return n
	case float64:
		return strconv.FormatFloat(n, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(n)
	}
	return ""
}

// firstImage handles image being a string, an array, or an ImageObject.
func firstImage(img any) string {
	switch v := img.(type) {
	case string:
		return v
	case []any:
		if len(v) > 0 {
			return firstImage(v[0])
		}
	case map[string]any:
		if u, ok := v["url"].(string); ok {
			return u
		}
	}
	return ""
}

// offerPrice digs the price out of an offers object or array, preferring
// a low/sale price field over the general price when both exist.
func offerPrice(offers any) (float64, bool) {
	switch v := offers.(type) {
	case map[string]any:
		if p, ok := parsePriceValue(v["lowPrice"]); ok {
			return p, true
		}
		if p, ok := parsePriceValue(v["price"]); ok {
			return p, true
		}
		// AggregateOffer sometimes nests the real offer.
		if nested, ok := v["offers"]; ok {
			return offerPrice(nested)
		}
	case []any:
		for _, item := range v {
			if p, ok := offerPrice(item); ok {
				return p, true
			}
		}
	}
	return 0, false
}

// parsePriceValue accepts a JSON number or a numeric string, tolerating
// currency symbols and thousands separators.
func parsePriceValue(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		if n > 0 {
			return n, true
		}
	case string:
		if p, ok := parsePriceString(n); ok {
			return p, true
		}
	}
	return 0, false
}
