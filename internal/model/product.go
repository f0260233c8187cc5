package model

import "time"

// Product is a tracked catalog item. Placeholder products created by
// Record Repair start with only an ID and a generated name.
type Product struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Description string     `json:"description,omitempty"`
	Specs       string     `json:"specs,omitempty"`
	ImageURL    string     `json:"image_url,omitempty"`
	Fitment     string     `json:"fitment,omitempty"`
	Price       *float64   `json:"price,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// ProductSource is one retailer page tracked for a product.
type ProductSource struct {
	ID        string `json:"id"`
	ProductID string `json:"product_id,omitempty"`
	URL       string `json:"url"`
	Retailer  string `json:"retailer,omitempty"`
	SKU       string `json:"sku,omitempty"`
	Active    bool   `json:"active"`
	// ExpectedPrice is the list/feed price, when a supplier feed supplied
	// one; used for drift reporting only, never for reconciliation.
	ExpectedPrice *float64   `json:"expected_price,omitempty"`
	LastPrice     *float64   `json:"last_price,omitempty"`
	LastChecked   *time.Time `json:"last_checked,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// PricePoint is one appended price-history observation.
type PricePoint struct {
	ID         string    `json:"id"`
	ProductID  string    `json:"product_id"`
	SourceID   string    `json:"source_id"`
	RunID      string    `json:"run_id,omitempty"`
	Price      float64   `json:"price"`
	Currency   string    `json:"currency"`
	ObservedAt time.Time `json:"observed_at"`
}
