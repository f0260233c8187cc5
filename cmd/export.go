package main

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/nao1215/markdown"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/price-patrol/internal/store"
	notionpkg "github.com/sells-group/price-patrol/pkg/notion"
	sfpkg "github.com/sells-group/price-patrol/pkg/salesforce"
)

var (
	exportOut      string
	exportRetailer string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the latest tracked prices",
}

// exportRow is one tracked source joined with its product name.
type exportRow struct {
	Name     string
	URL      string
	SKU      string
	Retailer string
	Price    *float64
	Checked  *time.Time
}

// loadExportRows joins active sources with their product names.
func loadExportRows(ctx context.Context, st store.Store) ([]exportRow, error) {
	sources, err := st.ListSources(ctx, store.SourceFilter{Retailer: exportRetailer})
	if err != nil {
		return nil, eris.Wrap(err, "export: list sources")
	}

	names := make(map[string]string)
	rows := make([]exportRow, 0, len(sources))
	for _, src := range sources {
		row := exportRow{
			URL:      src.URL,
			SKU:      src.SKU,
			Retailer: src.Retailer,
			Price:    src.LastPrice,
			Checked:  src.LastChecked,
		}
		if src.ProductID != "" {
			name, ok := names[src.ProductID]
			if !ok {
				p, err := st.GetProduct(ctx, src.ProductID)
				if err != nil {
					return nil, eris.Wrapf(err, "export: load product %s", src.ProductID)
				}
				if p != nil {
					name = p.Name
				}
				names[src.ProductID] = name
			}
			row.Name = name
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// -- export csv --

var exportCSVCmd = &cobra.Command{
	Use:   "csv",
	Short: "Write tracked prices as CSV",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runFileExport(cmd.Context(), func(rows []exportRow, f *os.File) error {
			w := csv.NewWriter(f)
			if err := w.Write([]string{"name", "url", "sku", "retailer", "price", "last_checked"}); err != nil {
				return eris.Wrap(err, "export: write header")
			}
			for _, r := range rows {
				if err := w.Write(csvRecord(r)); err != nil {
					return eris.Wrap(err, "export: write row")
				}
			}
			w.Flush()
			return eris.Wrap(w.Error(), "export: flush csv")
		})
	},
}

func csvRecord(r exportRow) []string {
	price := ""
	if r.Price != nil {
		price = strconv.FormatFloat(*r.Price, 'f', 2, 64)
	}
	checked := ""
	if r.Checked != nil {
		checked = r.Checked.UTC().Format(time.RFC3339)
	}
	return []string{r.Name, r.URL, r.SKU, r.Retailer, price, checked}
}

// -- export xlsx --

var exportXLSXCmd = &cobra.Command{
	Use:   "xlsx",
	Short: "Write tracked prices as an Excel workbook",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runFileExport(cmd.Context(), func(rows []exportRow, f *os.File) error {
			wb := xlsx.NewFile()
			sheet, err := wb.AddSheet("Prices")
			if err != nil {
				return eris.Wrap(err, "export: add sheet")
			}

			header := sheet.AddRow()
			for _, h := range []string{"Name", "URL", "SKU", "Retailer", "Price", "Last Checked"} {
				header.AddCell().SetString(h)
			}
			for _, r := range rows {
				row := sheet.AddRow()
				row.AddCell().SetString(r.Name)
				row.AddCell().SetString(r.URL)
				row.AddCell().SetString(r.SKU)
				row.AddCell().SetString(r.Retailer)
				if r.Price != nil {
					row.AddCell().SetFloat(*r.Price)
				} else {
					row.AddCell()
				}
				if r.Checked != nil {
					row.AddCell().SetString(r.Checked.UTC().Format(time.RFC3339))
				} else {
					row.AddCell()
				}
			}
			return eris.Wrap(wb.Write(f), "export: write xlsx")
		})
	},
}

// -- export markdown --

var exportMarkdownCmd = &cobra.Command{
	Use:   "markdown",
	Short: "Write tracked prices as a markdown table",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runFileExport(cmd.Context(), func(rows []exportRow, f *os.File) error {
			md := markdown.NewMarkdown(f)
			md.H1("Tracked Prices")

			table := markdown.TableSet{
				Header: []string{"Name", "URL", "SKU", "Retailer", "Price", "Last Checked"},
			}
			for _, r := range rows {
				rec := csvRecord(r)
				if rec[4] != "" {
					rec[4] = "$" + rec[4]
				}
				table.Rows = append(table.Rows, rec)
			}
			md.Table(table)
			return eris.Wrap(md.Build(), "export: write markdown")
		})
	},
}

// runFileExport loads rows and hands them to a format writer over the
// output file (stdout when --out is empty).
func runFileExport(ctx context.Context, write func([]exportRow, *os.File) error) error {
	st, err := initStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close() //nolint:errcheck
	if err := st.Migrate(ctx); err != nil {
		return err
	}

	rows, err := loadExportRows(ctx, st)
	if err != nil {
		return err
	}

	out := os.Stdout
	if exportOut != "" {
		out, err = os.Create(exportOut)
		if err != nil {
			return eris.Wrap(err, "export: create output file")
		}
		defer out.Close() //nolint:errcheck
	}

	if err := write(rows, out); err != nil {
		return err
	}
	if exportOut != "" {
		fmt.Fprintf(os.Stderr, "Exported %d rows to %s\n", len(rows), exportOut)
	}
	return nil
}

// -- export notion --

var exportNotionCmd = &cobra.Command{
	Use:   "notion",
	Short: "Upsert tracked prices into a Notion database",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		if cfg.Notion.Token == "" || cfg.Notion.PriceDB == "" {
			return eris.New("notion.token and notion.price_db are required")
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		rows, err := loadExportRows(ctx, st)
		if err != nil {
			return err
		}

		priceRows := make([]notionpkg.PriceRow, 0, len(rows))
		for _, r := range rows {
			pr := notionpkg.PriceRow{
				Name:     r.Name,
				URL:      r.URL,
				SKU:      r.SKU,
				Retailer: r.Retailer,
				Price:    r.Price,
			}
			if r.Checked != nil {
				pr.ObservedAt = *r.Checked
			}
			priceRows = append(priceRows, pr)
		}

		exporter := notionpkg.NewExporter(notionpkg.NewClient(cfg.Notion.Token), cfg.Notion.PriceDB)
		created, updated, err := exporter.ExportPrices(ctx, priceRows)
		if err != nil {
			return err
		}

		fmt.Printf("Notion: %d pages created, %d updated\n", created, updated)
		return nil
	},
}

// -- export salesforce --

var exportSalesforceCmd = &cobra.Command{
	Use:   "salesforce",
	Short: "Upsert tracked prices into Salesforce",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		sfClient, err := initSalesforce()
		if err != nil {
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

		rows, err := loadExportRows(ctx, st)
		if err != nil {
			return err
		}

		observations := make([]sfpkg.PriceObservation, 0, len(rows))
		for _, r := range rows {
			if r.Price == nil {
				continue
			}
			obs := sfpkg.PriceObservation{
				Name:      r.Name,
				SourceURL: r.URL,
				SKU:       r.SKU,
				Retailer:  r.Retailer,
				Price:     *r.Price,
			}
			if r.Checked != nil {
				obs.CheckedAt = *r.Checked
			}
			observations = append(observations, obs)
		}

		result, err := sfpkg.SyncPrices(ctx, sfClient, observations)
		if err != nil {
			return err
		}

		fmt.Printf("Salesforce: %d records created, %d updated, %d failed\n",
			result.Created, result.Updated, len(result.Failed))
		for _, f := range result.Failed {
			fmt.Fprintf(os.Stderr, "  failed %s: %s\n", f.ID, collectionErrors(f))
		}
		return nil
	},
}

func collectionErrors(res sfpkg.CollectionResult) string {
	if len(res.Errors) == 0 {
		return "unknown error"
	}
	return strings.Join(res.Errors, "; ")
}

func init() {
	exportCmd.PersistentFlags().StringVar(&exportOut, "out", "", "output file (default stdout)")
	exportCmd.PersistentFlags().StringVar(&exportRetailer, "retailer", "", "only export sources for this retailer")

	exportCmd.AddCommand(exportCSVCmd)
	exportCmd.AddCommand(exportXLSXCmd)
	exportCmd.AddCommand(exportMarkdownCmd)
	exportCmd.AddCommand(exportNotionCmd)
	exportCmd.AddCommand(exportSalesforceCmd)
	rootCmd.AddCommand(exportCmd)
}
