package main

import (
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/price-patrol/internal/feed"
)

var (
	importFile     string
	importRetailer string
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import tracked source URLs from a CSV file",
	Long:  "Reads a CSV of product page URLs (with optional title, sku, price, and retailer columns) and upserts them as tracked sources. New sources are linked to products on their first patrol visit.",
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

		f, err := os.Open(importFile)
		if err != nil {
			return eris.Wrap(err, "import: open file")
		}
		defer f.Close() //nolint:errcheck

		rows, seen, err := feed.ParseCSV(ctx, f, ',')
		if err != nil {
			return eris.Wrap(err, "import: parse csv")
		}

		if importRetailer != "" {
			for i := range rows {
				if rows[i].Retailer == "" {
					rows[i].Retailer = importRetailer
				}
			}
		}

		upserted, err := st.UpsertFeedSources(ctx, rows)
		if err != nil {
			return eris.Wrap(err, "import: upsert sources")
		}

		fmt.Printf("Imported %d of %d rows from %s\n", upserted, seen, importFile)
		return nil
	},
}

func init() {
	importCmd.Flags().StringVar(&importFile, "file", "", "CSV file of source URLs (required)")
	importCmd.Flags().StringVar(&importRetailer, "retailer", "", "retailer label for rows that lack one")
	_ = importCmd.MarkFlagRequired("file")
	rootCmd.AddCommand(importCmd)
}
