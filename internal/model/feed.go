package model

import "time"

// FeedRow is one normalized row from a supplier price list.
type FeedRow struct {
	URL           string   `json:"url"`
	Retailer      string   `json:"retailer,omitempty"`
	Title         string   `json:"title,omitempty"`
	SKU           string   `json:"sku,omitempty"`
	Currency      string   `json:"currency,omitempty"`
	ExpectedPrice *float64 `json:"expected_price,omitempty"`
}

// FeedSync records one supplier feed ingestion.
type FeedSync struct {
	ID           string     `json:"id"`
	Feed         string     `json:"feed"`
	URL          string     `json:"url"`
	Status       RunStatus  `json:"status"`
	RowsSeen     int        `json:"rows_seen"`
	RowsUpserted int        `json:"rows_upserted"`
	Error        string     `json:"error,omitempty"`
	StartedAt    time.Time  `json:"started_at"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
}
