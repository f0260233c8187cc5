package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/price-patrol/internal/model"
	"github.com/sells-group/price-patrol/internal/patrol"
)

var (
	patrolLimit    int
	patrolRetailer string
	patrolStale    time.Duration
)

var patrolCmd = &cobra.Command{
	Use:   "patrol",
	Short: "Run one patrol batch over the tracked sources",
	Long:  "Fetches every due source page, extracts and reconciles price evidence, and records the results as one run. Item failures are quarantined; they never abort the batch.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		env, err := buildPatrolEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		opts := patrol.Options{
			Concurrency:     cfg.Patrol.Concurrency,
			PauseBetweenMin: cfg.Patrol.PauseBetweenMinSecs,
			PauseBetweenMax: cfg.Patrol.PauseBetweenMaxSecs,
			Limit:           patrolLimit,
			Retailer:        patrolRetailer,
		}
		if patrolStale > 0 {
			opts.StaleBefore = time.Now().Add(-patrolStale)
		}

		orch := patrol.NewOrchestrator(env.Store, env.Worker, env.Breaker, env.Spend, opts)

		alerter := buildAlerter()
		orch.OnOutcome = func(out patrol.Outcome) {
			alerter.Evaluate(ctx, out.PrevPrice, out.Verdict)
		}

		run, err := orch.Run(ctx)
		if err != nil {
			return err
		}

		formatRunSummary(os.Stdout, run)
		if run.BreakerTripped {
			zap.L().Warn("ai circuit was open for part of this run; some attributes may be missing")
		}
		return nil
	},
}

func formatRunSummary(out io.Writer, run *model.PatrolRun) {
	fmt.Fprintf(out, "Run %s: %s\n", truncateID(run.ID), run.Status)
	fmt.Fprintf(out, "  sources:      %d (%d ok, %d failed)\n", run.Total, run.Succeeded, run.Failed)
	fmt.Fprintf(out, "  prices found: %d\n", run.PricesFound)
	if run.Repaired > 0 {
		fmt.Fprintf(out, "  repaired:     %d\n", run.Repaired)
	}
	if run.AICalls > 0 {
		fmt.Fprintf(out, "  ai spend:     %d calls, $%.4f\n", run.AICalls, run.AICostUSD)
	}
}

func init() {
	patrolCmd.Flags().IntVar(&patrolLimit, "limit", 0, "max sources to visit (0 = all due)")
	patrolCmd.Flags().StringVar(&patrolRetailer, "retailer", "", "only visit sources for this retailer")
	patrolCmd.Flags().DurationVar(&patrolStale, "stale", 0, "only visit sources not checked within this window (e.g. 24h)")
	rootCmd.AddCommand(patrolCmd)
}
