package validate

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateLengthBoundary(t *testing.T) {
	t.Parallel()

	v := New(30, nil)

	exact := strings.Repeat("x", 30)
	got, ok := v.Validate(exact, "")
	assert.True(t, ok, "text at exactly the minimum length is accepted")
	assert.Equal(t, exact, got)

	short := strings.Repeat("x", 29)
	_, ok = v.Validate(short, "")
	assert.False(t, ok, "one rune under the minimum is rejected")
}

func TestValidateEmptyAndWhitespace(t *testing.T) {
	t.Parallel()

	v := New(0, nil)
	for _, text := range []string{"", "   ", "\n\t  \n"} {
		_, ok := v.Validate(text, "Widget")
		assert.False(t, ok, "%q must be rejected", text)
	}
}

func TestValidateBoilerplate(t *testing.T) {
	t.Parallel()

	v := New(10, nil)

	cases := []string{
		"Add to Cart now and get free gifts with purchase today",
		"This site uses cookies. See our Privacy Policy for details.",
		"Please enable JavaScript to view this product page properly.",
		"Copyright 2024 Acme Inc. All Rights Reserved worldwide.",
	}
	for _, text := range cases {
		_, ok := v.Validate(text, "")
		assert.False(t, ok, "boilerplate must be rejected: %q", text)
	}

	got, ok := v.Validate("Forged aluminum piston set for small-block V8 engines.", "")
	assert.True(t, ok)
	assert.NotEmpty(t, got)
}

func TestValidateExtraPhrases(t *testing.T) {
	t.Parallel()

	v := New(10, []string{"Hablamos Español", "  "})

	_, ok := v.Validate("Call us today, hablamos español, financing available", "")
	assert.False(t, ok, "profile-supplied phrase rejects case-insensitively")

	_, ok = v.Validate("Billet steel crankshaft with nitrided journals included", "")
	assert.True(t, ok)
}

func TestValidateTitleEcho(t *testing.T) {
	t.Parallel()

	v := New(10, nil)
	title := "Edelbrock Performer Intake Manifold"

	t.Run("title plus small padding rejected", func(t *testing.T) {
		t.Parallel()
		// Title plus 5 characters: material restatement.
		_, ok := v.Validate(title+" - Buy", title)
		assert.False(t, ok)
	})

	t.Run("title within real copy accepted", func(t *testing.T) {
		t.Parallel()
		text := title + " with a dual-plane design that boosts mid-range torque on 289-302 engines."
		got, ok := v.Validate(text, title)
		assert.True(t, ok)
		assert.Equal(t, text, got)
	})

	t.Run("no title given", func(t *testing.T) {
		t.Parallel()
		_, ok := v.Validate("Some legitimate product description here", "")
		assert.True(t, ok)
	})
}

func TestValidateCollapsesWhitespace(t *testing.T) {
	t.Parallel()

	v := New(10, nil)
	got, ok := v.Validate("  Cast  iron\n\nexhaust   manifold for inline six  ", "")
	assert.True(t, ok)
	assert.Equal(t, "Cast iron exhaust manifold for inline six", got)
}
