package model

// Mode describes how much work a page visit should do.
type Mode string

const (
	// ModeDiscovery is the first-time deep extraction of a page: every
	// attribute is wanted, and the AI source may be consulted for gaps.
	ModeDiscovery Mode = "discovery"
	// ModePatrol is the lightweight recheck of an already-known item:
	// only the price needs refreshing.
	ModePatrol Mode = "patrol"
)

// WorkItem is one tracked page/product pairing pulled from the work list.
type WorkItem struct {
	SourceID string `json:"source_id"`
	// ProductID is empty when the source row was never linked to a
	// product; Record Repair creates and links a placeholder before the
	// item is processed.
	ProductID string `json:"product_id,omitempty"`
	URL       string `json:"url"`
	Retailer  string `json:"retailer,omitempty"`
	// KnownAttributes reports whether a prior run already extracted the
	// product's descriptive attributes.
	KnownAttributes bool `json:"known_attributes"`
}

// Mode derives the visit mode from prior extraction state. Computed once
// per item and passed down; never re-derived mid-pipeline.
func (w WorkItem) Mode() Mode {
	if w.KnownAttributes {
		return ModePatrol
	}
	return ModeDiscovery
}

// Linked reports whether the item already points at a product record.
func (w WorkItem) Linked() bool {
	return w.ProductID != ""
}
