// Package validate filters extracted description text. It rejects
// boilerplate, too-short fragments, and restatements of the page title so
// they never become the trusted description for a product.
package validate

import (
	"strings"
	"unicode/utf8"
)

// DefaultMinLength is the minimum description length in runes.
const DefaultMinLength = 30

// titleEchoMargin is how many runes longer than the title a text may be
// while still counting as a restatement of it.
const titleEchoMargin = 10

// boilerplate holds phrases that mark navigation, legal, or cart chrome
// rather than product copy. Matched case-insensitively.
var boilerplate = []string{
	"add to cart",
	"add to wishlist",
	"free shipping on orders",
	"sign in to your account",
	"sign up for our newsletter",
	"subscribe to our newsletter",
	"accept all cookies",
	"cookie policy",
	"privacy policy",
	"terms of service",
	"terms and conditions",
	"all rights reserved",
	"skip to main content",
	"shopping cart",
	"checkout",
	"my account",
	"track your order",
	"javascript is disabled",
	"enable javascript",
	"404 not found",
	"page not found",
}

// Validator decides whether extracted text is usable as a product
// description. The zero value is not usable; construct with New.
type Validator struct {
	minLength int
	phrases   []string
}

// New builds a validator. minLength <= 0 selects DefaultMinLength. extra
// phrases (per-retailer boilerplate from site profiles) are matched in
// addition to the built-in list.
func New(minLength int, extra []string) *Validator {
	if minLength <= 0 {
		minLength = DefaultMinLength
	}
	phrases := make([]string, 0, len(boilerplate)+len(extra))
	phrases = append(phrases, boilerplate...)
	for _, p := range extra {
		if p = strings.TrimSpace(strings.ToLower(p)); p != "" {
			phrases = append(phrases, p)
		}
	}
	return &Validator{minLength: minLength, phrases: phrases}
}

// Validate returns the cleaned text and true when it is usable as a
// description, or "" and false when it is empty, too short, boilerplate,
// or materially just the title repeated.
func (v *Validator) Validate(text, title string) (string, bool) {
	cleaned := strings.Join(strings.Fields(text), " ")
	if cleaned == "" {
		return "", false
	}
	if utf8.RuneCountInString(cleaned) < v.minLength {
		return "", false
	}

	lower := strings.ToLower(cleaned)
	for _, p := range v.phrases {
		if strings.Contains(lower, p) {
			return "", false
		}
	}

	if v.isTitleEcho(cleaned, title) {
		return "", false
	}

	return cleaned, true
}

// isTitleEcho reports whether text is the title with at most a small
// amount of extra padding around it.
func (v *Validator) isTitleEcho(text, title string) bool {
	title = strings.TrimSpace(title)
	if title == "" {
		return false
	}
	if !strings.Contains(strings.ToLower(text), strings.ToLower(title)) {
		return false
	}
	return utf8.RuneCountInString(text) <= utf8.RuneCountInString(title)+titleEchoMargin
}
