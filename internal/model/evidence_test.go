package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSourceTrustOrdering(t *testing.T) {
	t.Parallel()

	ordered := []Source{
		SourceStructured,
		SourceMetaTag,
		SourceVisibleFocused,
		SourceAiInference,
		SourceVisibleBroad,
	}

	for i := 1; i < len(ordered); i++ {
		assert.Greater(t, ordered[i-1].Trust(), ordered[i].Trust(),
			"%s must outrank %s", ordered[i-1], ordered[i])
	}

	assert.Equal(t, 0, Source("unknown").Trust())
}

func TestEvidenceFilters(t *testing.T) {
	t.Parallel()

	items := []Evidence{
		{Source: SourceMetaTag, Field: FieldPrice, Price: 369.00},
		{Source: SourceMetaTag, Field: FieldName, Text: "Brake Kit"},
		{Source: SourceVisibleBroad, Field: FieldPrice, Price: 1000.00},
		{Source: SourceStructured, Field: FieldDescription, Text: "Full description"},
	}

	prices := PriceEvidence(items)
	assert.Len(t, prices, 2)
	for _, e := range prices {
		assert.Equal(t, FieldPrice, e.Field)
	}

	names := FieldEvidence(items, FieldName)
	assert.Len(t, names, 1)
	assert.Equal(t, "Brake Kit", names[0].Text)

	assert.Empty(t, FieldEvidence(nil, FieldImage))
}

func TestWorkItemMode(t *testing.T) {
	t.Parallel()

	t.Run("known attributes patrol", func(t *testing.T) {
		t.Parallel()
		w := WorkItem{SourceID: "s1", KnownAttributes: true}
		assert.Equal(t, ModePatrol, w.Mode())
	})

	t.Run("unknown attributes discovery", func(t *testing.T) {
		t.Parallel()
		w := WorkItem{SourceID: "s1"}
		assert.Equal(t, ModeDiscovery, w.Mode())
	})

	t.Run("linked", func(t *testing.T) {
		t.Parallel()
		assert.False(t, WorkItem{}.Linked())
		assert.True(t, WorkItem{ProductID: "p1"}.Linked())
	})
}

func TestVerdictHelpers(t *testing.T) {
	t.Parallel()

	var nilVerdict *Verdict
	assert.False(t, nilVerdict.HasPrice())
	assert.False(t, nilVerdict.HasAttributes())

	empty := &Verdict{}
	assert.False(t, empty.HasPrice())
	assert.False(t, empty.HasAttributes())

	price := 42.50
	full := &Verdict{Price: &price, Name: "Oil Filter"}
	assert.True(t, full.HasPrice())
	assert.True(t, full.HasAttributes())

	zero := 0.0
	zeroPrice := &Verdict{Price: &zero}
	assert.False(t, zeroPrice.HasPrice(), "zero is not a usable price")
}
