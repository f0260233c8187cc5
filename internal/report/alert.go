package report

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/price-patrol/internal/model"
)

// Drop is one detected price drop.
type Drop struct {
	SourceID  string    `json:"source_id"`
	ProductID string    `json:"product_id"`
	URL       string    `json:"url"`
	OldPrice  float64   `json:"old_price"`
	NewPrice  float64   `json:"new_price"`
	Percent   float64   `json:"percent"`
	SeenAt    time.Time `json:"seen_at"`
}

// DropSink receives detected drops. The Notion exporter implements it;
// a nil sink means log-only alerting.
type DropSink interface {
	AppendDrop(ctx context.Context, d Drop) error
}

// Alerter flags verdicts that undercut the previous observed price by
// at least the configured percentage.
type Alerter struct {
	// Percent is the alert threshold. Zero or negative disables alerting.
	Percent float64
	Sink    DropSink
}

// Evaluate compares the previous price with a fresh verdict. It returns
// the drop when one triggers, nil otherwise. Sink failures are logged,
// not returned; an alert must never fail an item.
func (a *Alerter) Evaluate(ctx context.Context, prev *float64, v *model.Verdict) *Drop {
	if a.Percent <= 0 || prev == nil || *prev <= 0 || !v.HasPrice() {
		return nil
	}

	pct := (*prev - *v.Price) / *prev * 100
	if pct < a.Percent {
		return nil
	}

	drop := &Drop{
		SourceID:  v.SourceID,
		ProductID: v.ProductID,
		URL:       v.URL,
		OldPrice:  *prev,
		NewPrice:  *v.Price,
		Percent:   pct,
		SeenAt:    v.ObservedAt,
	}

	zap.L().Warn("price drop detected",
		zap.String("source_id", drop.SourceID),
		zap.String("url", drop.URL),
		zap.Float64("old_price", drop.OldPrice),
		zap.Float64("new_price", drop.NewPrice),
		zap.Float64("percent", drop.Percent))

	if a.Sink != nil {
		if err := a.Sink.AppendDrop(ctx, *drop); err != nil {
			zap.L().Warn("price drop sink append failed",
				zap.String("source_id", drop.SourceID),
				zap.Error(err))
		}
	}
	return drop
}
