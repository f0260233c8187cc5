package main

import (
	"context"
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/price-patrol/internal/extract"
	"github.com/sells-group/price-patrol/internal/model"
	"github.com/sells-group/price-patrol/internal/patrol"
	"github.com/sells-group/price-patrol/internal/reconcile"
	"github.com/sells-group/price-patrol/internal/store"
	"github.com/sells-group/price-patrol/internal/validate"
)

var (
	pageURL      string
	pageSourceID string
)

var pageCmd = &cobra.Command{
	Use:   "page",
	Short: "Visit a single product page",
	Long:  "Runs the extraction pipeline against one page. With --source the tracked source is processed and persisted exactly as a patrol batch would; with --url the page is fetched and reconciled ad hoc without touching the catalog.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		if (pageURL == "") == (pageSourceID == "") {
			return eris.New("exactly one of --url or --source is required")
		}

		env, err := buildPatrolEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")

		if pageSourceID != "" {
			src, err := env.Store.GetSource(ctx, pageSourceID)
			if err != nil {
				return eris.Wrap(err, "page: load source")
			}
			if src == nil {
				return eris.Errorf("page: source %s not found", pageSourceID)
			}
			item := model.WorkItem{
				SourceID:        src.ID,
				ProductID:       src.ProductID,
				URL:             src.URL,
				Retailer:        src.Retailer,
				KnownAttributes: knownAttributes(ctx, env.Store, src.ProductID),
			}

			run, err := env.Store.CreateRun(ctx, model.PatrolRun{
				Status: model.RunStatusRunning,
				Mode:   string(item.Mode()),
				Total:  1,
			})
			if err != nil {
				return eris.Wrap(err, "page: create run")
			}

			out := env.Worker.Process(ctx, item, run.ID)
			finishSingleItemRun(ctx, env, run, out)
			return enc.Encode(out)
		}

		// Ad-hoc visit: fetch, extract, reconcile. Site profiles may
		// narrow the plausible price band for this host.
		res, err := env.Fetcher.Fetch(ctx, pageURL)
		if err != nil {
			return eris.Wrap(err, "page: fetch")
		}

		page := extract.NewRenderer().Render(res.URL, res.HTML, res.Partial)
		evidence := extract.Run(ctx, page, buildExtractors())

		minPrice, maxPrice := env.Profiles.PriceBand(pageURL, cfg.Patrol.MinPrice, cfg.Patrol.MaxPrice)
		court := env.Court
		if minPrice != cfg.Patrol.MinPrice || maxPrice != cfg.Patrol.MaxPrice {
			validator := validate.New(cfg.Patrol.MinDescriptionLen, env.Profiles.ExtraBoilerplate())
			court = reconcile.NewCourt(minPrice, maxPrice, validator)
		}

		verdict := court.Decide(model.WorkItem{URL: pageURL}, evidence, page.Title())
		return enc.Encode(verdict)
	},
}

// knownAttributes mirrors the work list query: a source runs in Verify
// mode once its product carries a description from a prior run.
func knownAttributes(ctx context.Context, st store.Store, productID string) bool {
	if productID == "" {
		return false
	}
	p, err := st.GetProduct(ctx, productID)
	if err != nil {
		zap.L().Warn("product lookup failed, assuming discovery", zap.String("product_id", productID), zap.Error(err))
		return false
	}
	return p != nil && p.Description != ""
}

// finishSingleItemRun closes the run record opened for a one-item visit.
func finishSingleItemRun(ctx context.Context, env *patrolEnv, run *model.PatrolRun, out patrol.Outcome) {
	run.Status = model.RunStatusComplete
	switch out.Stage {
	case model.StageDone:
		run.Succeeded = 1
		if out.Verdict.HasPrice() {
			run.PricesFound = 1
		}
		if out.Repaired {
			run.Repaired = 1
		}
	default:
		run.Failed = 1
	}
	run.BreakerTripped = env.Breaker.Tripped()
	if env.Spend != nil {
		run.AICalls = int(env.Spend.Calls())
		run.AICostUSD = env.Spend.CostUSD()
	}
	if err := env.Store.FinishRun(ctx, run); err != nil {
		zap.L().Warn("finish run failed", zap.String("run_id", run.ID), zap.Error(err))
	}
}

func init() {
	pageCmd.Flags().StringVar(&pageURL, "url", "", "product page URL to visit ad hoc")
	pageCmd.Flags().StringVar(&pageSourceID, "source", "", "tracked source ID to process and persist")
	rootCmd.AddCommand(pageCmd)
}
