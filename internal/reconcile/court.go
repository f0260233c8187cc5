// Package reconcile turns the evidence gathered for one work item into a
// single trusted verdict per field. Prices go through a trust-weighted
// vote: agreement across independent sources beats any one source's rank,
// because structured data goes stale, meta tags go missing, and broad text
// matching is noisy.
package reconcile

import (
	"math"
	"sort"
	"time"

	"github.com/sells-group/price-patrol/internal/model"
	"github.com/sells-group/price-patrol/internal/validate"
)

// Court reconciles evidence into verdicts. MinPrice and MaxPrice bound
// the plausible price band; evidence outside it is never selectable.
type Court struct {
	minPrice  float64
	maxPrice  float64
	validator *validate.Validator

	nowFunc func() time.Time
}

// NewCourt builds a court over the given plausible price band.
func NewCourt(minPrice, maxPrice float64, validator *validate.Validator) *Court {
	return &Court{
		minPrice:  minPrice,
		maxPrice:  maxPrice,
		validator: validator,
		nowFunc:   time.Now,
	}
}

// WithNow sets a fixed observation time for testing.
func (c *Court) WithNow(now func() time.Time) *Court {
	c.nowFunc = now
	return c
}

// Plausible reports whether a price lies inside the configured band.
func (c *Court) Plausible(price float64) bool {
	if math.IsNaN(price) || math.IsInf(price, 0) {
		return false
	}
	return price >= c.minPrice && price <= c.maxPrice
}

// DecidePrice runs the vote over price evidence:
//
//  1. discard evidence outside the plausible band,
//  2. group survivors by exact value and sum each group's source trust,
//  3. the highest sum wins; ties go to the group holding the highest
//     single-source trust,
//  4. an empty survivor set yields a nil price.
func (c *Court) DecidePrice(evidence []model.Evidence) PriceRuling {
	var ruling PriceRuling

	byValue := make(map[float64]*PriceGroup)
	for _, e := range evidence {
		if e.Field != model.FieldPrice {
			continue
		}
		if !c.Plausible(e.Price) {
			ruling.Discarded = append(ruling.Discarded, e)
			continue
		}
		g, ok := byValue[e.Price]
		if !ok {
			g = &PriceGroup{Value: e.Price}
			byValue[e.Price] = g
		}
		g.TrustSum += e.Trust()
		if e.Trust() > g.TopTrust {
			g.TopTrust = e.Trust()
		}
		g.Sources = append(g.Sources, e.Source)
		g.Evidence = append(g.Evidence, e)
	}

	if len(byValue) == 0 {
		return ruling
	}

	for _, g := range byValue {
		ruling.Groups = append(ruling.Groups, *g)
	}
	sort.Slice(ruling.Groups, func(i, j int) bool {
		a, b := ruling.Groups[i], ruling.Groups[j]
		if a.TrustSum != b.TrustSum {
			return a.TrustSum > b.TrustSum
		}
		if a.TopTrust != b.TopTrust {
			return a.TopTrust > b.TopTrust
		}
		// Stable order for equal groups so the audit trail is deterministic.
		return a.Value < b.Value
	})

	winner := ruling.Groups[0]
	price := winner.Value
	ruling.Price = &price

	var winningSource model.Source
	for _, e := range winner.Evidence {
		if e.Trust() == winner.TopTrust {
			winningSource = e.Source
			break
		}
	}
	ruling.Provenance = &model.Provenance{
		Source:        winningSource,
		Trust:         winner.TopTrust,
		GroupTrust:    winner.TrustSum,
		Corroborators: len(winner.Sources),
	}

	return ruling
}

// DecideField picks the winning value for one descriptive attribute by
// source trust. Description evidence must pass the validator to be
// eligible; title is the page title used for the echo check.
func (c *Court) DecideField(field model.Field, evidence []model.Evidence, title string) FieldRuling {
	ruling := FieldRuling{Field: field}

	best := -1
	for _, e := range evidence {
		if e.Field != field || e.Text == "" {
			continue
		}
		text := e.Text
		if field == model.FieldDescription {
			cleaned, ok := c.validator.Validate(text, title)
			if !ok {
				ruling.Rejected++
				continue
			}
			text = cleaned
		}
		if e.Trust() > best {
			best = e.Trust()
			ruling.Value = text
			ruling.Source = e.Source
		}
	}

	return ruling
}

// Decide assembles the full verdict for one work item from all of its
// evidence. In patrol mode only the price is refreshed; discovery mode
// resolves every attribute.
func (c *Court) Decide(item model.WorkItem, evidence []model.Evidence, title string) *model.Verdict {
	v := &model.Verdict{
		SourceID:   item.SourceID,
		ProductID:  item.ProductID,
		URL:        item.URL,
		Mode:       item.Mode(),
		ObservedAt: c.nowFunc().UTC(),
	}

	ruling := c.DecidePrice(evidence)
	v.Price = ruling.Price
	v.PriceProvenance = ruling.Provenance

	if item.Mode() == model.ModePatrol {
		return v
	}

	v.AttributeSources = make(map[model.Field]model.Source)
	assign := func(field model.Field, dst *string) {
		fr := c.DecideField(field, evidence, title)
		if fr.Value == "" {
			return
		}
		*dst = fr.Value
		v.AttributeSources[field] = fr.Source
	}
	assign(model.FieldName, &v.Name)
	assign(model.FieldDescription, &v.Description)
	assign(model.FieldImage, &v.ImageURL)
	assign(model.FieldFitment, &v.Fitment)
	assign(model.FieldSpecs, &v.Specs)
	if len(v.AttributeSources) == 0 {
		v.AttributeSources = nil
	}

	return v
}

// NeedsAI reports whether the AI source should still be consulted given
// the evidence collected so far. Discovery items ask when either the
// description or the price is unresolved; patrol items only when the
// price is.
func (c *Court) NeedsAI(mode model.Mode, evidence []model.Evidence, title string) bool {
	priceMissing := true
	for _, e := range evidence {
		if e.Field == model.FieldPrice && c.Plausible(e.Price) {
			priceMissing = false
			break
		}
	}
	if mode == model.ModePatrol {
		return priceMissing
	}

	descMissing := true
	for _, e := range evidence {
		if e.Field != model.FieldDescription {
			continue
		}
		if _, ok := c.validator.Validate(e.Text, title); ok {
			descMissing = false
			break
		}
	}
	return priceMissing || descMissing
}
