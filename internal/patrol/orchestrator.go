package patrol

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/price-patrol/internal/model"
	"github.com/sells-group/price-patrol/internal/resilience"
	"github.com/sells-group/price-patrol/internal/store"
)

// Processor handles one WorkItem. Satisfied by *Worker; stubbed in tests.
type Processor interface {
	Process(ctx context.Context, item model.WorkItem, runID string) Outcome
}

// SpendMeter reports accumulated AI usage for the run summary.
type SpendMeter interface {
	Calls() int64
	CostUSD() float64
}

// Options tunes a batch.
type Options struct {
	Concurrency int
	// PauseBetweenMin/Max bound the randomized delay before each item,
	// in seconds. Zero disables pacing.
	PauseBetweenMin int
	PauseBetweenMax int
	// Limit caps the work list size. Zero means no cap.
	Limit    int
	Retailer string
	// StaleBefore restricts the batch to sources not checked since then.
	StaleBefore time.Time
}

// Orchestrator runs one batch over the full work list with a bounded
// worker pool. Workers share only the circuit breaker; every other
// failure stays contained to its item.
type Orchestrator struct {
	store     store.Store
	processor Processor
	breaker   *resilience.CircuitBreaker
	spend     SpendMeter
	opts      Options
	sleep     func(ctx context.Context, d time.Duration)

	// OnOutcome, when set, observes every terminal outcome. Used for
	// price-drop alerting.
	OnOutcome func(Outcome)
}

// NewOrchestrator creates an Orchestrator. spend may be nil when no AI
// collaborator is wired.
func NewOrchestrator(st store.Store, p Processor, breaker *resilience.CircuitBreaker, spend SpendMeter, opts Options) *Orchestrator {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 3
	}
	return &Orchestrator{
		store:     st,
		processor: p,
		breaker:   breaker,
		spend:     spend,
		opts:      opts,
		sleep:     sleepCtx,
	}
}

// Run executes one batch. The only batch-fatal condition is failing to
// fetch the work list; item failures are quarantined and counted.
func (o *Orchestrator) Run(ctx context.Context) (*model.PatrolRun, error) {
	items, err := o.store.WorkList(ctx, store.WorkFilter{
		Retailer:    o.opts.Retailer,
		StaleBefore: o.opts.StaleBefore,
		Limit:       o.opts.Limit,
	})
	if err != nil {
		return nil, eris.Wrap(err, "patrol: fetch work list")
	}

	run, err := o.store.CreateRun(ctx, model.PatrolRun{Total: len(items), Mode: batchMode(items)})
	if err != nil {
		return nil, eris.Wrap(err, "patrol: create run record")
	}

	log := zap.L().With(zap.String("run_id", run.ID))
	log.Info("patrol batch starting",
		zap.Int("items", len(items)),
		zap.Int("concurrency", o.opts.Concurrency))

	var succeeded, failedCount, pricesFound, repaired atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.opts.Concurrency)

	for _, item := range items {
		g.Go(func() error {
			o.pauseBetween(gctx)
			if gctx.Err() != nil {
				return gctx.Err()
			}

			out := o.processor.Process(gctx, item, run.ID)
			switch out.Stage {
			case model.StageDone:
				succeeded.Add(1)
				if out.Verdict.HasPrice() {
					pricesFound.Add(1)
				}
			default:
				failedCount.Add(1)
				o.quarantine(gctx, run.ID, out)
			}
			if out.Repaired {
				repaired.Add(1)
			}
			if o.OnOutcome != nil {
				o.OnOutcome(out)
			}
			// Item failures never abort the batch.
			return nil
		})
	}

	waitErr := g.Wait()

	run.Succeeded = int(succeeded.Load())
	run.Failed = int(failedCount.Load())
	run.PricesFound = int(pricesFound.Load())
	run.Repaired = int(repaired.Load())
	run.Status = model.RunStatusComplete
	if waitErr != nil {
		run.Status = model.RunStatusFailed
		run.Error = waitErr.Error()
	}
	if o.breaker != nil {
		run.BreakerTripped = o.breaker.Tripped()
	}
	if o.spend != nil {
		run.AICalls = int(o.spend.Calls())
		run.AICostUSD = o.spend.CostUSD()
	}

	if err := o.store.FinishRun(ctx, run); err != nil {
		log.Warn("finish run record failed", zap.Error(err))
	}

	log.Info("patrol batch complete",
		zap.Int("succeeded", run.Succeeded),
		zap.Int("failed", run.Failed),
		zap.Int("prices_found", run.PricesFound),
		zap.Int("repaired", run.Repaired),
		zap.Bool("breaker_tripped", run.BreakerTripped))

	return run, waitErr
}

func (o *Orchestrator) quarantine(ctx context.Context, runID string, out Outcome) {
	reason := "unknown"
	if out.Err != nil {
		reason = out.Err.Error()
	}
	rec := model.FailureRecord{
		RunID:    runID,
		SourceID: out.Item.SourceID,
		URL:      out.Item.URL,
		Stage:    out.FailedAt,
		Reason:   reason,
		Class:    resilience.ClassifyError(out.Err),
	}
	if err := o.store.RecordFailure(ctx, rec); err != nil {
		zap.L().Warn("quarantine write failed",
			zap.String("source_id", out.Item.SourceID),
			zap.Error(err))
	}
}

func (o *Orchestrator) pauseBetween(ctx context.Context) {
	if o.opts.PauseBetweenMax <= 0 {
		return
	}
	o.sleep(ctx, jitter(o.opts.PauseBetweenMin, o.opts.PauseBetweenMax))
}

// batchMode labels the run by its dominant visit mode.
func batchMode(items []model.WorkItem) string {
	if len(items) == 0 {
		return ""
	}
	var discovery int
	for _, it := range items {
		if it.Mode() == model.ModeDiscovery {
			discovery++
		}
	}
	switch {
	case discovery == 0:
		return string(model.ModePatrol)
	case discovery == len(items):
		return string(model.ModeDiscovery)
	default:
		return "mixed"
	}
}
