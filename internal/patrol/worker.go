// Package patrol runs price checks over the tracked work list: a bounded
// pool of page workers that fetch, extract, reconcile, and persist, with
// per-item failure isolation.
package patrol

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/price-patrol/internal/extract"
	"github.com/sells-group/price-patrol/internal/fetch"
	"github.com/sells-group/price-patrol/internal/model"
	"github.com/sells-group/price-patrol/internal/reconcile"
	"github.com/sells-group/price-patrol/internal/store"
)

// Outcome is the terminal result of processing one WorkItem.
type Outcome struct {
	Item    model.WorkItem
	Verdict *model.Verdict
	// Stage is the terminal stage: StageDone or StageFailed.
	Stage model.Stage
	// FailedAt names the pipeline stage a failed item died in.
	FailedAt model.Stage
	Repaired bool
	// PrevPrice is the source's last recorded price before this visit,
	// for drop detection.
	PrevPrice *float64
	Err       error
}

// WorkerConfig tunes per-item behavior.
type WorkerConfig struct {
	// PauseAfterLoadMin/Max bound the human-like pause after a page
	// renders, in seconds. Zero disables the pause.
	PauseAfterLoadMin int
	PauseAfterLoadMax int
}

// Worker drives one WorkItem through
// Fetching -> Extracting -> Reconciling -> Persisting.
type Worker struct {
	store      store.Store
	fetcher    fetch.Fetcher
	renderer   *extract.Renderer
	extractors []extract.Extractor
	ai         *extract.AIExtractor
	court      *reconcile.Court
	cfg        WorkerConfig
	sleep      func(ctx context.Context, d time.Duration)
}

// NewWorker assembles a Worker. The ai extractor may be nil; it is
// consulted only when the deterministic evidence leaves gaps.
func NewWorker(st store.Store, fetcher fetch.Fetcher, extractors []extract.Extractor, ai *extract.AIExtractor, court *reconcile.Court, cfg WorkerConfig) *Worker {
	return &Worker{
		store:      st,
		fetcher:    fetcher,
		renderer:   extract.NewRenderer(),
		extractors: extractors,
		ai:         ai,
		court:      court,
		cfg:        cfg,
		sleep:      sleepCtx,
	}
}

// Process runs the full pipeline for one item. It never returns an
// error to the caller; failures are reported in the Outcome so the
// batch can continue.
func (w *Worker) Process(ctx context.Context, item model.WorkItem, runID string) Outcome {
	log := zap.L().With(
		zap.String("run_id", runID),
		zap.String("source_id", item.SourceID),
		zap.String("url", item.URL),
	)

	out := Outcome{Item: item}

	// Record Repair: an unlinked source gets a placeholder product
	// before any network work is spent on it.
	if !item.Linked() {
		productID, err := w.repair(ctx, item)
		if err != nil {
			log.Error("repair failed, abandoning item", zap.Error(err))
			return failed(out, model.StagePersisting, eris.Wrap(err, "patrol: repair"))
		}
		item.ProductID = productID
		out.Item = item
		out.Repaired = true
		log.Info("repaired unlinked source", zap.String("product_id", productID))
	}

	mode := item.Mode()
	log = log.With(zap.String("mode", string(mode)))

	// Fetching.
	res, err := w.fetcher.Fetch(ctx, item.URL)
	if err != nil {
		log.Warn("fetch failed", zap.Error(err))
		return failed(out, model.StageFetching, err)
	}
	if res.Partial {
		log.Info("navigation timed out, extracting from partial content")
	}
	w.pauseAfterLoad(ctx)

	// Extracting.
	page := w.renderer.Render(res.URL, res.HTML, res.Partial)
	evidence := extract.Run(ctx, page, w.extractors)
	if w.ai != nil && w.court.NeedsAI(mode, evidence, page.Title()) {
		evidence = append(evidence, w.ai.Extract(ctx, page)...)
	}

	// Reconciling.
	verdict := w.court.Decide(item, evidence, page.Title())
	out.Verdict = verdict

	// Persisting: three independent writes with tolerated partial
	// success. Only a total write failure fails the item.
	if err := w.persist(ctx, item, runID, verdict, &out, log); err != nil {
		return failed(out, model.StagePersisting, err)
	}

	out.Stage = model.StageDone
	if verdict.HasPrice() {
		log.Info("price verdict",
			zap.Float64("price", *verdict.Price),
			zap.String("source", string(verdict.PriceProvenance.Source)))
	} else {
		log.Info("no plausible price found")
	}
	return out
}

func (w *Worker) repair(ctx context.Context, item model.WorkItem) (string, error) {
	return RepairLink(ctx, w.store, item)
}

// RepairLink creates a placeholder product for an unlinked source and
// links the source to it. Returns the new product ID.
func RepairLink(ctx context.Context, st store.Store, item model.WorkItem) (string, error) {
	name := fmt.Sprintf("Untracked product %s", item.SourceID)
	product, err := st.CreateProduct(ctx, model.Product{Name: name})
	if err != nil {
		return "", eris.Wrap(err, "create placeholder product")
	}
	if err := st.LinkSource(ctx, item.SourceID, product.ID); err != nil {
		return "", eris.Wrap(err, "link source")
	}
	return product.ID, nil
}

func (w *Worker) persist(ctx context.Context, item model.WorkItem, runID string, verdict *model.Verdict, out *Outcome, log *zap.Logger) error {
	// Read the prior price first so drop alerts can compare.
	if src, err := w.store.GetSource(ctx, item.SourceID); err != nil {
		log.Warn("read source before tracking update failed", zap.Error(err))
	} else if src != nil {
		out.PrevPrice = src.LastPrice
	}

	var attempted, failedWrites int

	if item.Mode() == model.ModeDiscovery && (verdict.HasAttributes() || verdict.HasPrice()) {
		attempted++
		if err := w.store.UpdateProductAttributes(ctx, item.ProductID, verdict); err != nil {
			failedWrites++
			log.Warn("product attribute upsert failed", zap.Error(err))
		}
	}

	attempted++
	if err := w.store.UpdateSourceTracking(ctx, item.SourceID, verdict.Price, verdict.ObservedAt); err != nil {
		failedWrites++
		log.Warn("source tracking update failed", zap.Error(err))
	}

	if verdict.HasPrice() {
		attempted++
		if err := w.store.AppendPricePoint(ctx, model.PricePoint{
			ProductID:  item.ProductID,
			SourceID:   item.SourceID,
			RunID:      runID,
			Price:      *verdict.Price,
			ObservedAt: verdict.ObservedAt,
		}); err != nil {
			failedWrites++
			log.Warn("price history append failed", zap.Error(err))
		}
	}

	if attempted > 0 && failedWrites == attempted {
		return eris.New("patrol: every persistence write failed")
	}
	return nil
}

func (w *Worker) pauseAfterLoad(ctx context.Context) {
	if w.cfg.PauseAfterLoadMax <= 0 {
		return
	}
	w.sleep(ctx, jitter(w.cfg.PauseAfterLoadMin, w.cfg.PauseAfterLoadMax))
}

func failed(out Outcome, at model.Stage, err error) Outcome {
	out.Stage = model.StageFailed
	out.FailedAt = at
	out.Err = err
	return out
}

// jitter returns a random duration between min and max seconds.
func jitter(min, max int) time.Duration {
	if max <= min {
		return time.Duration(min) * time.Second
	}
	return time.Duration(min)*time.Second + time.Duration(rand.Int63n(int64(max-min)*int64(time.Second)))
}

func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
