package extract

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/price-patrol/internal/model"
)

func evidenceByField(items []model.Evidence) map[model.Field]model.Evidence {
	m := make(map[model.Field]model.Evidence)
	for _, e := range items {
		if _, ok := m[e.Field]; !ok {
			m[e.Field] = e
		}
	}
	return m
}

func TestStructuredExtractProduct(t *testing.T) {
	t.Parallel()

	page := &Page{URL: "https://shop.test/p/1", HTML: `<html><head>
<script type="application/ld+json">
{"@context":"https://schema.org","@type":"Product","name":"Bilstein B8 Shock",
 "description":"Monotube gas shock absorber valved for lowered vehicles.",
 "image":"https://shop.test/img/b8.jpg",
 "offers":{"@type":"Offer","price":"112.99","priceCurrency":"USD"}}
</script></head></html>`}

	got := NewStructuredExtractor().Extract(context.Background(), page)
	byField := evidenceByField(got)

	require.Contains(t, byField, model.FieldPrice)
	assert.InDelta(t, 112.99, byField[model.FieldPrice].Price, 0.001)
	assert.Equal(t, "Bilstein B8 Shock", byField[model.FieldName].Text)
	assert.Contains(t, byField[model.FieldDescription].Text, "Monotube")
	assert.Equal(t, "https://shop.test/img/b8.jpg", byField[model.FieldImage].Text)
	for _, e := range got {
		assert.Equal(t, model.SourceStructured, e.Source)
	}
}

func TestStructuredSpecsFromAdditionalProperty(t *testing.T) {
	t.Parallel()

	page := &Page{HTML: `<script type="application/ld+json">
{"@type":"Product","name":"Warn VR EVO 10-S",
 "offers":{"@type":"Offer","price":"699.99"},
 "additionalProperty":[
  {"@type":"PropertyValue","name":"Capacity","value":"10000 lb"},
  {"@type":"PropertyValue","name":"Rope","value":"synthetic"},
  {"@type":"PropertyValue","name":"Waterproof","value":true},
  {"@type":"PropertyValue","name":"Line length","value":90},
  {"@type":"PropertyValue","name":"","value":"ignored"},
  {"@type":"PropertyValue","name":"Empty","value":""}]}
</script>`}

	got := NewStructuredExtractor().Extract(context.Background(), page)
	byField := evidenceByField(got)

	require.Contains(t, byField, model.FieldSpecs)
	assert.Equal(t, "Capacity: 10000 lb; Rope: synthetic; Waterproof: true; Line length: 90", byField[model.FieldSpecs].Text)
	assert.Equal(t, model.SourceStructured, byField[model.FieldSpecs].Source)
}

func TestStructuredSpecsSingleProperty(t *testing.T) {
	t.Parallel()

	page := &Page{HTML: `<script type="application/ld+json">
{"@type":"Product","name":"X","offers":{"price":"10"},
 "additionalProperty":{"@type":"PropertyValue","name":"Finish","value":"powder coat"}}
</script>`}

	got := NewStructuredExtractor().Extract(context.Background(), page)
	byField := evidenceByField(got)
	require.Contains(t, byField, model.FieldSpecs)
	assert.Equal(t, "Finish: powder coat", byField[model.FieldSpecs].Text)
}

func TestStructuredPrefersLowPrice(t *testing.T) {
	t.Parallel()

	page := &Page{HTML: `<script type="application/ld+json">
{"@type":"Product","name":"X","offers":{"@type":"AggregateOffer","lowPrice":"89.00","price":"99.00"}}
</script>`}

	got := NewStructuredExtractor().Extract(context.Background(), page)
	byField := evidenceByField(got)
	require.Contains(t, byField, model.FieldPrice)
	assert.InDelta(t, 89.00, byField[model.FieldPrice].Price, 0.001)
}

func TestStructuredArrayAndGraph(t *testing.T) {
	t.Parallel()

	t.Run("top-level array", func(t *testing.T) {
		t.Parallel()
		page := &Page{HTML: `<script type="application/ld+json">
[{"@type":"BreadcrumbList"},{"@type":"Product","name":"Y","offers":{"price":12.50}}]
</script>`}
		got := NewStructuredExtractor().Extract(context.Background(), page)
		byField := evidenceByField(got)
		assert.Equal(t, "Y", byField[model.FieldName].Text)
		assert.InDelta(t, 12.50, byField[model.FieldPrice].Price, 0.001)
	})

	t.Run("graph container", func(t *testing.T) {
		t.Parallel()
		page := &Page{HTML: `<script type="application/ld+json">
{"@graph":[{"@type":"WebSite"},{"@type":["Product","Thing"],"name":"Z","offers":{"price":"45.00"}}]}
</script>`}
		got := NewStructuredExtractor().Extract(context.Background(), page)
		byField := evidenceByField(got)
		assert.Equal(t, "Z", byField[model.FieldName].Text)
	})
}

func TestStructuredMalformedYieldsNothing(t *testing.T) {
	t.Parallel()

	pages := []*Page{
		{HTML: `<script type="application/ld+json">{not json at all</script>`},
		{HTML: `<script type="application/ld+json">{"@type":"Organization","name":"Not A Product"}</script>`},
		{HTML: `<html><body>no markup here</body></html>`},
		{HTML: ""},
	}
	for _, page := range pages {
		assert.Empty(t, NewStructuredExtractor().Extract(context.Background(), page))
	}
}

func TestStructuredZeroPriceIgnored(t *testing.T) {
	t.Parallel()

	page := &Page{HTML: `<script type="application/ld+json">
{"@type":"Product","name":"Listed Not Priced","offers":{"price":0}}
</script>`}
	got := NewStructuredExtractor().Extract(context.Background(), page)
	byField := evidenceByField(got)
	assert.NotContains(t, byField, model.FieldPrice)
	assert.Contains(t, byField, model.FieldName)
}
