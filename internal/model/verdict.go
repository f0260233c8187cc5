package model

import "time"

// Provenance records which source won a field and how strongly.
type Provenance struct {
	Source Source `json:"source"`
	// Trust is the winning source's own weight.
	Trust int `json:"trust"`
	// GroupTrust is the summed weight of every source that agreed on the
	// winning value. Equal to Trust when the value had no corroboration.
	GroupTrust int `json:"group_trust"`
	// Corroborators counts the agreeing sources, including the winner.
	Corroborators int `json:"corroborators"`
}

// Verdict is the reconciled outcome for one WorkItem in one run.
// A nil Price means no plausible price was found; that is a reportable
// result, never an error and never zero.
type Verdict struct {
	SourceID  string `json:"source_id"`
	ProductID string `json:"product_id"`
	URL       string `json:"url"`
	Mode      Mode   `json:"mode"`

	Price           *float64    `json:"price,omitempty"`
	PriceProvenance *Provenance `json:"price_provenance,omitempty"`

	Name        string `json:"name,omitempty"`
	Description string `json:"description,omitempty"`
	ImageURL    string `json:"image_url,omitempty"`
	Fitment     string `json:"fitment,omitempty"`
	Specs       string `json:"specs,omitempty"`

	// AttributeSources maps each populated attribute to the source that
	// supplied it.
	AttributeSources map[Field]Source `json:"attribute_sources,omitempty"`

	ObservedAt time.Time `json:"observed_at"`
}

// HasPrice reports whether the verdict carries a usable price.
func (v *Verdict) HasPrice() bool {
	return v != nil && v.Price != nil && *v.Price > 0
}

// HasAttributes reports whether any descriptive attribute was resolved.
func (v *Verdict) HasAttributes() bool {
	if v == nil {
		return false
	}
	return v.Name != "" || v.Description != "" || v.ImageURL != "" || v.Fitment != "" || v.Specs != ""
}
