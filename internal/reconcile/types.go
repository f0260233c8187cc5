package reconcile

import "github.com/sells-group/price-patrol/internal/model"

// PriceGroup is one candidate value and every source that agreed on it.
type PriceGroup struct {
	Value float64 `json:"value"`
	// TrustSum is the summed source trust of all agreeing evidence.
	TrustSum int `json:"trust_sum"`
	// TopTrust is the highest single-source trust in the group; it breaks
	// ties between groups with equal sums.
	TopTrust int              `json:"top_trust"`
	Sources  []model.Source   `json:"sources"`
	Evidence []model.Evidence `json:"-"`
}

// PriceRuling is the audited outcome of price reconciliation for one item.
type PriceRuling struct {
	// Price is nil when no evidence survived the plausible-range filter.
	// That is a reportable outcome, never an error.
	Price      *float64          `json:"price,omitempty"`
	Provenance *model.Provenance `json:"provenance,omitempty"`
	// Groups holds every surviving candidate group, winner first.
	Groups []PriceGroup `json:"groups,omitempty"`
	// Discarded holds evidence rejected by the range filter.
	Discarded []model.Evidence `json:"discarded,omitempty"`
}

// FieldRuling is the outcome for one descriptive attribute.
type FieldRuling struct {
	Field model.Field `json:"field"`
	Value string      `json:"value,omitempty"`
	// Source is the winning source; zero when no evidence was usable.
	Source model.Source `json:"source,omitempty"`
	// Rejected counts evidence dropped by validation (descriptions only).
	Rejected int `json:"rejected,omitempty"`
}
