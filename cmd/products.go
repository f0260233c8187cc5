package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/price-patrol/internal/model"
	"github.com/sells-group/price-patrol/internal/store"
)

var productsCmd = &cobra.Command{
	Use:   "products",
	Short: "Inspect the tracked product catalog",
}

// -- products list --

var productsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List tracked products",
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

		query, _ := cmd.Flags().GetString("query")
		limit, _ := cmd.Flags().GetInt("limit")

		products, err := st.ListProducts(ctx, store.ProductFilter{Query: query, Limit: limit})
		if err != nil {
			return eris.Wrap(err, "products list")
		}

		if len(products) == 0 {
			fmt.Fprintln(os.Stderr, "No products found.")
			return nil
		}

		formatProductsList(os.Stdout, products)
		return nil
	},
}

// -- products show --

var productsShowCmd = &cobra.Command{
	Use:   "show <product-id>",
	Short: "Show full details of a product",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		product, err := st.GetProduct(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "products show")
		}
		if product == nil {
			return eris.Errorf("product %s not found", args[0])
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(product)
	},
}

// -- history --

var historyCmd = &cobra.Command{
	Use:   "history <product-id>",
	Short: "Show a product's recorded price history",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		limit, _ := cmd.Flags().GetInt("limit")

		points, err := st.PriceHistory(ctx, args[0], limit)
		if err != nil {
			return eris.Wrap(err, "history")
		}

		if len(points) == 0 {
			fmt.Fprintln(os.Stderr, "No price points recorded.")
			return nil
		}

		formatPriceHistory(os.Stdout, points)
		return nil
	},
}

func formatProductsList(out io.Writer, products []model.Product) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tNAME\tPRICE\tUPDATED")
	_, _ = fmt.Fprintln(w, "--\t----\t-----\t-------")

	for _, p := range products {
		name := p.Name
		if len(name) > 40 {
			name = name[:37] + "..."
		}

		price := ""
		if p.Price != nil {
			price = fmt.Sprintf("$%.2f", *p.Price)
		}

		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
			truncateID(p.ID),
			name,
			price,
			p.UpdatedAt.Format("2006-01-02 15:04"),
		)
	}
	_ = w.Flush()
}

func formatPriceHistory(out io.Writer, points []model.PricePoint) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "OBSERVED\tPRICE\tCURRENCY\tSOURCE")
	_, _ = fmt.Fprintln(w, "--------\t-----\t--------\t------")

	for _, pp := range points {
		_, _ = fmt.Fprintf(w, "%s\t%.2f\t%s\t%s\n",
			pp.ObservedAt.Format("2006-01-02 15:04"),
			pp.Price,
			pp.Currency,
			truncateID(pp.SourceID),
		)
	}
	_ = w.Flush()
}

func init() {
	productsListCmd.Flags().String("query", "", "substring filter on product name")
	productsListCmd.Flags().Int("limit", 50, "max number of products to display")

	historyCmd.Flags().Int("limit", 50, "max number of price points to display")

	productsCmd.AddCommand(productsListCmd)
	productsCmd.AddCommand(productsShowCmd)
	rootCmd.AddCommand(productsCmd)
	rootCmd.AddCommand(historyCmd)
}
