// Package store persists products, tracked sources, price history, and
// patrol run records behind one interface with Postgres and SQLite
// implementations.
package store

import (
	"context"
	"time"

	"github.com/sells-group/price-patrol/internal/model"
)

// RunFilter specifies criteria for listing patrol runs.
type RunFilter struct {
	Status model.RunStatus `json:"status,omitempty"`
	Limit  int             `json:"limit,omitempty"`
	Offset int             `json:"offset,omitempty"`
}

// ProductFilter specifies criteria for listing products.
type ProductFilter struct {
	Query  string `json:"query,omitempty"`
	Limit  int    `json:"limit,omitempty"`
	Offset int    `json:"offset,omitempty"`
}

// SourceFilter specifies criteria for listing tracked sources.
type SourceFilter struct {
	Retailer string `json:"retailer,omitempty"`
	Limit    int    `json:"limit,omitempty"`
	Offset   int    `json:"offset,omitempty"`
}

// WorkFilter narrows the patrol work list.
type WorkFilter struct {
	// Retailer restricts the list to sources whose retailer matches.
	Retailer string `json:"retailer,omitempty"`
	// StaleBefore restricts the list to sources last checked before the
	// given time. Zero means every active source.
	StaleBefore time.Time `json:"stale_before,omitempty"`
	Limit       int       `json:"limit,omitempty"`
}

// Stats is a point-in-time health snapshot of the tracked catalog.
type Stats struct {
	Products      int `json:"products"`
	Sources       int `json:"sources"`
	ActiveSources int `json:"active_sources"`
	// StaleSources counts active sources not checked in the last week.
	StaleSources int `json:"stale_sources"`
	PricePoints  int `json:"price_points"`
}

// Store defines the persistence interface for the patrol pipeline.
type Store interface {
	// Work list
	WorkList(ctx context.Context, filter WorkFilter) ([]model.WorkItem, error)

	// Products
	CreateProduct(ctx context.Context, p model.Product) (*model.Product, error)
	GetProduct(ctx context.Context, id string) (*model.Product, error)
	ListProducts(ctx context.Context, filter ProductFilter) ([]model.Product, error)
	// UpdateProductAttributes writes the verdict's descriptive attributes
	// onto the product, skipping fields the verdict left empty.
	UpdateProductAttributes(ctx context.Context, productID string, v *model.Verdict) error

	// Sources
	CreateSource(ctx context.Context, s model.ProductSource) (*model.ProductSource, error)
	GetSource(ctx context.Context, id string) (*model.ProductSource, error)
	ListSources(ctx context.Context, filter SourceFilter) ([]model.ProductSource, error)
	LinkSource(ctx context.Context, sourceID, productID string) error
	// UpdateSourceTracking records the latest observation on the source row.
	// A nil price still advances last_checked.
	UpdateSourceTracking(ctx context.Context, sourceID string, price *float64, checkedAt time.Time) error
	// UpsertFeedSources bulk-upserts supplier feed rows into the source
	// table keyed by URL, leaving product links untouched.
	UpsertFeedSources(ctx context.Context, rows []model.FeedRow) (int64, error)

	// Price history
	AppendPricePoint(ctx context.Context, pp model.PricePoint) error
	PriceHistory(ctx context.Context, productID string, limit int) ([]model.PricePoint, error)

	// Runs
	CreateRun(ctx context.Context, run model.PatrolRun) (*model.PatrolRun, error)
	FinishRun(ctx context.Context, run *model.PatrolRun) error
	GetRun(ctx context.Context, runID string) (*model.PatrolRun, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]model.PatrolRun, error)
	RecordFailure(ctx context.Context, f model.FailureRecord) error
	ListFailures(ctx context.Context, runID string) ([]model.FailureRecord, error)

	// Feed syncs
	RecordFeedSync(ctx context.Context, fs model.FeedSync) error

	// Health
	Stats(ctx context.Context) (*Stats, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// staleWindow is how long a source may go unchecked before Stats counts
// it as stale.
const staleWindow = 7 * 24 * time.Hour
