package main

import (
	"context"

	"go.uber.org/zap"

	"github.com/sells-group/price-patrol/internal/report"
	notionpkg "github.com/sells-group/price-patrol/pkg/notion"
)

// notionDropSink appends price-drop alerts to the configured Notion
// database.
type notionDropSink struct {
	exporter *notionpkg.Exporter
}

func (s notionDropSink) AppendDrop(ctx context.Context, d report.Drop) error {
	return s.exporter.AppendDrop(ctx, notionpkg.DropRow{
		URL:      d.URL,
		OldPrice: d.OldPrice,
		NewPrice: d.NewPrice,
		Percent:  d.Percent,
		SeenAt:   d.SeenAt,
	})
}

// buildAlerter wires price-drop detection from config. The Notion sink is
// attached only when alerting to Notion is both enabled and credentialed;
// drops are always logged.
func buildAlerter() *report.Alerter {
	a := &report.Alerter{Percent: cfg.Alerts.DropPercent}

	if cfg.Alerts.Notion {
		if cfg.Notion.Token == "" || cfg.Notion.AlertDB == "" {
			zap.L().Warn("notion alerting enabled but notion.token or notion.alert_db is unset")
		} else {
			exporter := notionpkg.NewExporter(notionpkg.NewClient(cfg.Notion.Token), cfg.Notion.AlertDB)
			a.Sink = notionDropSink{exporter: exporter}
		}
	}

	return a
}
