package main

import (
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/price-patrol/internal/report"
)

var (
	reportOut  string
	reportRuns int
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Write a markdown health report",
	Long:  "Summarizes the tracked catalog and recent patrol runs, including AI spend, as a markdown document.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		snap, err := report.NewBuilder(st).Build(ctx, reportRuns)
		if err != nil {
			return err
		}

		out := os.Stdout
		if reportOut != "" {
			out, err = os.Create(reportOut)
			if err != nil {
				return eris.Wrap(err, "report: create output file")
			}
			defer out.Close() //nolint:errcheck
		}

		return report.NewMarkdownWriter(out).Write(snap)
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show catalog health at a glance",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		stats, err := st.Stats(ctx)
		if err != nil {
			return err
		}

		fmt.Printf("Products:       %d\n", stats.Products)
		fmt.Printf("Sources:        %d (%d active, %d stale)\n", stats.Sources, stats.ActiveSources, stats.StaleSources)
		fmt.Printf("Price points:   %d\n", stats.PricePoints)
		return nil
	},
}

func init() {
	reportCmd.Flags().StringVar(&reportOut, "out", "", "output file (default stdout)")
	reportCmd.Flags().IntVar(&reportRuns, "runs", 10, "number of recent runs to include")

	rootCmd.AddCommand(reportCmd)
	rootCmd.AddCommand(statusCmd)
}
