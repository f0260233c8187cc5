package main

import (
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/price-patrol/internal/feed"
)

var initSeed string

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create or migrate the database schema",
	Long:  "Applies schema migrations. With --seed, also upserts an initial set of source URLs from a CSV file.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("store"); err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		if err := st.Migrate(ctx); err != nil {
			return err
		}

		if initSeed != "" {
			f, err := os.Open(initSeed)
			if err != nil {
				return eris.Wrap(err, "init: open seed file")
			}
			defer f.Close() //nolint:errcheck

			rows, _, err := feed.ParseCSV(ctx, f, ',')
			if err != nil {
				return eris.Wrap(err, "init: parse seed file")
			}
			if _, err := st.UpsertFeedSources(ctx, rows); err != nil {
				return eris.Wrap(err, "init: seed sources")
			}
		}

		stats, err := st.Stats(ctx)
		if err != nil {
			return err
		}

		fmt.Printf("Schema ready (%s driver): %d products, %d sources tracked\n",
			cfg.Store.Driver, stats.Products, stats.Sources)
		return nil
	},
}

func init() {
	initCmd.Flags().StringVar(&initSeed, "seed", "", "CSV file of source URLs to seed")
	rootCmd.AddCommand(initCmd)
}
