// Package feed ingests supplier price lists: download over HTTP or FTP,
// unwrap, parse, and upsert the rows into the tracked source table so
// the next patrol picks them up.
package feed

import (
	"bytes"
	"context"
	"io"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/price-patrol/internal/model"
)

// Feed describes one supplier price list.
type Feed struct {
	// Name labels the feed in sync records and logs.
	Name string `yaml:"name"`
	URL  string `yaml:"url"`
	// Format overrides extension-based detection. Required when the URL
	// carries no recognizable extension.
	Format Format `yaml:"format,omitempty"`
	// Retailer is stamped on rows that do not carry their own.
	Retailer string `yaml:"retailer,omitempty"`
	// Sheet selects a named XLSX sheet. Empty means the first sheet.
	Sheet string `yaml:"sheet,omitempty"`
	// Element names the per-row XML element. Empty means "item".
	Element string `yaml:"element,omitempty"`
}

// Catalog is the slice of the store the syncer writes to.
type Catalog interface {
	UpsertFeedSources(ctx context.Context, rows []model.FeedRow) (int64, error)
	RecordFeedSync(ctx context.Context, fs model.FeedSync) error
}

// Syncer runs feed ingestions.
type Syncer struct {
	catalog Catalog
	dl      Downloader
	nowFunc func() time.Time
}

// NewSyncer creates a Syncer over the given catalog and downloader.
func NewSyncer(catalog Catalog, dl Downloader) *Syncer {
	return &Syncer{catalog: catalog, dl: dl, nowFunc: time.Now}
}

// WithNow sets a fixed clock for testing.
func (s *Syncer) WithNow(now func() time.Time) *Syncer {
	s.nowFunc = now
	return s
}

// Sync ingests one feed end to end. The sync record is written whether
// the ingestion succeeds or fails; a failed record write is only logged
// because the upsert already landed.
func (s *Syncer) Sync(ctx context.Context, f Feed) (*model.FeedSync, error) {
	started := s.nowFunc().UTC()
	log := zap.L().With(zap.String("feed", f.Name), zap.String("url", f.URL))
	log.Info("feed sync starting")

	fs := model.FeedSync{
		Feed:      f.Name,
		URL:       f.URL,
		Status:    model.RunStatusRunning,
		StartedAt: started,
	}

	rows, seen, err := s.ingest(ctx, f)
	completed := s.nowFunc().UTC()
	fs.CompletedAt = &completed
	fs.RowsSeen = seen

	if err != nil {
		fs.Status = model.RunStatusFailed
		fs.Error = err.Error()
		s.record(ctx, fs, log)
		return &fs, err
	}

	upserted, err := s.catalog.UpsertFeedSources(ctx, rows)
	if err != nil {
		fs.Status = model.RunStatusFailed
		fs.Error = err.Error()
		s.record(ctx, fs, log)
		return &fs, eris.Wrap(err, "feed: upsert sources")
	}

	fs.Status = model.RunStatusComplete
	fs.RowsUpserted = int(upserted)
	s.record(ctx, fs, log)

	log.Info("feed sync complete",
		zap.Int("rows_seen", fs.RowsSeen),
		zap.Int("rows_upserted", fs.RowsUpserted))
	return &fs, nil
}

func (s *Syncer) ingest(ctx context.Context, f Feed) ([]model.FeedRow, int, error) {
	body, err := s.dl.Download(ctx, f.URL)
	if err != nil {
		return nil, 0, err
	}
	defer body.Close()

	data, err := io.ReadAll(body)
	if err != nil {
		return nil, 0, eris.Wrap(err, "feed: read body")
	}

	format := f.Format
	if format == "" {
		format = DetectFormat(f.URL)
	}

	payload, innerName, err := unwrapArchive(data, format)
	if err != nil {
		return nil, 0, err
	}
	if innerName != "" {
		if inner := DetectFormat(innerName); inner != "" {
			format = inner
		}
	}
	if format == "" {
		return nil, 0, eris.Errorf("feed: cannot determine format of %s", f.URL)
	}

	var (
		rows []model.FeedRow
		seen int
	)
	switch format {
	case FormatCSV:
		rows, seen, err = ParseCSV(ctx, bytes.NewReader(payload), ',')
	case FormatTSV:
		rows, seen, err = ParseCSV(ctx, bytes.NewReader(payload), '\t')
	case FormatXLSX:
		rows, seen, err = ParseXLSX(payload, f.Sheet)
	case FormatXML:
		rows, seen, err = ParseXML(ctx, bytes.NewReader(payload), f.Element)
	case FormatJSON:
		rows, seen, err = ParseJSON(ctx, bytes.NewReader(payload))
	default:
		return nil, 0, eris.Errorf("feed: unsupported format %q", format)
	}
	if err != nil {
		return nil, seen, err
	}

	if f.Retailer != "" {
		for i := range rows {
			if rows[i].Retailer == "" {
				rows[i].Retailer = f.Retailer
			}
		}
	}
	return rows, seen, nil
}

func (s *Syncer) record(ctx context.Context, fs model.FeedSync, log *zap.Logger) {
	if err := s.catalog.RecordFeedSync(ctx, fs); err != nil {
		log.Warn("feed sync record write failed", zap.Error(err))
	}
}
