package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/price-patrol/internal/model"
	"github.com/sells-group/price-patrol/internal/patrol"
	"github.com/sells-group/price-patrol/internal/store"
)

var repairCmd = &cobra.Command{
	Use:   "repair",
	Short: "Link unlinked sources to placeholder products",
	Long:  "Sweeps the work list for sources that were never linked to a product record and creates a placeholder product for each, without visiting any pages. Patrol does the same repair lazily before each visit; this command front-loads it.",
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

		items, err := st.WorkList(ctx, store.WorkFilter{})
		if err != nil {
			return err
		}

		repaired := 0
		for _, item := range items {
			if item.Linked() {
				continue
			}
			productID, err := patrol.RepairLink(ctx, st, item)
			if err != nil {
				zap.L().Warn("repair failed",
					zap.String("source_id", item.SourceID),
					zap.Error(err),
				)
				continue
			}
			zap.L().Info("source linked",
				zap.String("source_id", item.SourceID),
				zap.String("product_id", productID),
			)
			repaired++
		}

		fmt.Printf("Repaired %d of %d unlinked sources\n", repaired, countUnlinked(items))
		return nil
	},
}

func countUnlinked(items []model.WorkItem) int {
	n := 0
	for _, item := range items {
		if !item.Linked() {
			n++
		}
	}
	return n
}

func init() {
	rootCmd.AddCommand(repairCmd)
}
