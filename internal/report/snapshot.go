// Package report builds operational snapshots of the tracked catalog
// and renders them for humans: markdown reports and price-drop alerts.
package report

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/price-patrol/internal/model"
	"github.com/sells-group/price-patrol/internal/store"
)

// Snapshot is a point-in-time health picture.
type Snapshot struct {
	GeneratedAt time.Time         `json:"generated_at"`
	Stats       store.Stats       `json:"stats"`
	RecentRuns  []model.PatrolRun `json:"recent_runs"`
	// AICalls and AICostUSD aggregate the recent runs.
	AICalls   int     `json:"ai_calls"`
	AICostUSD float64 `json:"ai_cost_usd"`
}

// Health is the slice of the store a snapshot reads.
type Health interface {
	Stats(ctx context.Context) (*store.Stats, error)
	ListRuns(ctx context.Context, filter store.RunFilter) ([]model.PatrolRun, error)
}

// Builder assembles snapshots from the store.
type Builder struct {
	store   Health
	nowFunc func() time.Time
}

// NewBuilder creates a Builder.
func NewBuilder(st Health) *Builder {
	return &Builder{store: st, nowFunc: time.Now}
}

// WithNow sets a fixed clock for testing.
func (b *Builder) WithNow(now func() time.Time) *Builder {
	b.nowFunc = now
	return b
}

// Build reads counts and the most recent runs. runLimit zero means the
// last ten.
func (b *Builder) Build(ctx context.Context, runLimit int) (*Snapshot, error) {
	if runLimit <= 0 {
		runLimit = 10
	}

	stats, err := b.store.Stats(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "report: read stats")
	}

	runs, err := b.store.ListRuns(ctx, store.RunFilter{Limit: runLimit})
	if err != nil {
		return nil, eris.Wrap(err, "report: list runs")
	}

	snap := &Snapshot{
		GeneratedAt: b.nowFunc().UTC(),
		Stats:       *stats,
		RecentRuns:  runs,
	}
	for _, r := range runs {
		snap.AICalls += r.AICalls
		snap.AICostUSD += r.AICostUSD
	}
	return snap, nil
}
