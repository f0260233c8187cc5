package salesforce

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// maxBatchSize is the Salesforce Collections API limit per request.
const maxBatchSize = 200

// priceObject is the custom object holding competitor price observations.
const priceObject = "Competitor_Price__c"

// CompetitorPrice represents one Competitor_Price__c record.
type CompetitorPrice struct {
	ID          string  `json:"Id" salesforce:"Id"`
	Name        string  `json:"Name" salesforce:"Name"`
	SourceURL   string  `json:"Source_URL__c" salesforce:"Source_URL__c"`
	SKU         string  `json:"SKU__c" salesforce:"SKU__c"`
	Retailer    string  `json:"Retailer__c" salesforce:"Retailer__c"`
	Price       float64 `json:"Price__c" salesforce:"Price__c"`
	LastChecked string  `json:"Last_Checked__c" salesforce:"Last_Checked__c"`
}

// priceFields are the SOQL fields selected for price queries.
var priceFields = []string{
	"Id", "Name", "Source_URL__c", "SKU__c", "Retailer__c", "Price__c", "Last_Checked__c",
}

// PriceObservation is one reconciled price heading into the CRM.
type PriceObservation struct {
	Name      string
	SourceURL string
	SKU       string
	Retailer  string
	Price     float64
	CheckedAt time.Time
}

func (o PriceObservation) fields() map[string]any {
	f := map[string]any{
		"Name":          o.Name,
		"Source_URL__c": o.SourceURL,
		"Price__c":      o.Price,
	}
	if o.SKU != "" {
		f["SKU__c"] = o.SKU
	}
	if o.Retailer != "" {
		f["Retailer__c"] = o.Retailer
	}
	if !o.CheckedAt.IsZero() {
		f["Last_Checked__c"] = o.CheckedAt.UTC().Format(time.RFC3339)
	}
	return f
}

// FindPriceBySourceURL looks up the price record tracking the given
// page. Returns nil when none exists.
func FindPriceBySourceURL(ctx context.Context, c Client, sourceURL string) (*CompetitorPrice, error) {
	soql := fmt.Sprintf(
		"SELECT %s FROM %s WHERE Source_URL__c = '%s' LIMIT 1",
		strings.Join(priceFields, ", "),
		priceObject,
		escapeSoql(sourceURL),
	)

	var prices []CompetitorPrice
	if err := c.Query(ctx, soql, &prices); err != nil {
		return nil, eris.Wrapf(err, "sf: find price by source url %s", sourceURL)
	}
	if len(prices) == 0 {
		return nil, nil
	}
	return &prices[0], nil
}

// SyncResult summarizes one SyncPrices call.
type SyncResult struct {
	Created int
	Updated int
	// Failed lists per-record errors reported by the Collections API.
	Failed []CollectionResult
}

// SyncPrices upserts observations keyed by Source_URL__c: one query to
// map existing records, then batched inserts and updates.
func SyncPrices(ctx context.Context, c Client, observations []PriceObservation) (*SyncResult, error) {
	if len(observations) == 0 {
		return &SyncResult{}, nil
	}

	existing, err := mapExistingPrices(ctx, c, observations)
	if err != nil {
		return nil, err
	}

	var inserts []map[string]any
	var updates []CollectionRecord
	for _, o := range observations {
		if o.SourceURL == "" {
			continue
		}
		if id, ok := existing[o.SourceURL]; ok {
			updates = append(updates, CollectionRecord{ID: id, Fields: o.fields()})
		} else {
			inserts = append(inserts, o.fields())
		}
	}

	res := &SyncResult{}

	for start := 0; start < len(inserts); start += maxBatchSize {
		batch := inserts[start:min(start+maxBatchSize, len(inserts))]
		results, err := c.InsertCollection(ctx, priceObject, batch)
		if err != nil {
			return res, eris.Wrapf(err, "sf: insert prices batch at %d", start)
		}
		tally(res, results, &res.Created)
	}

	for start := 0; start < len(updates); start += maxBatchSize {
		batch := updates[start:min(start+maxBatchSize, len(updates))]
		results, err := c.UpdateCollection(ctx, priceObject, batch)
		if err != nil {
			return res, eris.Wrapf(err, "sf: update prices batch at %d", start)
		}
		tally(res, results, &res.Updated)
	}

	return res, nil
}

func tally(res *SyncResult, results []CollectionResult, counter *int) {
	for _, r := range results {
		if r.Success {
			*counter++
		} else {
			res.Failed = append(res.Failed, r)
		}
	}
}

// mapExistingPrices queries Source_URL__c -> Id in chunks; SOQL IN
// lists have a statement-length ceiling, so chunks stay small.
func mapExistingPrices(ctx context.Context, c Client, observations []PriceObservation) (map[string]string, error) {
	const chunk = 100

	urls := make([]string, 0, len(observations))
	for _, o := range observations {
		if o.SourceURL != "" {
			urls = append(urls, o.SourceURL)
		}
	}

	out := make(map[string]string, len(urls))
	for start := 0; start < len(urls); start += chunk {
		batch := urls[start:min(start+chunk, len(urls))]

		quoted := make([]string, len(batch))
		for i, u := range batch {
			quoted[i] = "'" + escapeSoql(u) + "'"
		}
		soql := fmt.Sprintf(
			"SELECT Id, Source_URL__c FROM %s WHERE Source_URL__c IN (%s)",
			priceObject,
			strings.Join(quoted, ", "),
		)

		var prices []CompetitorPrice
		if err := c.Query(ctx, soql, &prices); err != nil {
			return nil, eris.Wrap(err, "sf: map existing prices")
		}
		for _, p := range prices {
			out[p.SourceURL] = p.ID
		}
	}
	return out, nil
}

// escapeSoql escapes single quotes in SOQL string literals to prevent injection.
func escapeSoql(s string) string {
	return strings.ReplaceAll(s, "'", "\\'")
}
