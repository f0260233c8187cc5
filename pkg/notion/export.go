package notion

import (
	"context"
	"fmt"
	"time"

	"github.com/jomei/notionapi"
	"github.com/rotisserie/eris"
)

// PriceRow is one tracked source's current price for export.
type PriceRow struct {
	Name       string
	URL        string
	SKU        string
	Retailer   string
	Price      *float64
	ObservedAt time.Time
}

// DropRow is one detected price drop for the alert database.
type DropRow struct {
	URL      string
	OldPrice float64
	NewPrice float64
	Percent  float64
	SeenAt   time.Time
}

// Exporter writes current prices and drop alerts into a Notion database
// keyed by the URL property: existing rows are updated, new ones created.
type Exporter struct {
	client Client
	dbID   string
}

// NewExporter creates an Exporter for the given database.
func NewExporter(client Client, dbID string) *Exporter {
	return &Exporter{client: client, dbID: dbID}
}

// ExportPrices upserts the rows. Returns (created, updated).
func (e *Exporter) ExportPrices(ctx context.Context, rows []PriceRow) (int, int, error) {
	existing, err := e.pagesByURL(ctx)
	if err != nil {
		return 0, 0, err
	}

	var created, updated int
	for _, row := range rows {
		if ctx.Err() != nil {
			return created, updated, eris.Wrap(ctx.Err(), "notion: export cancelled")
		}
		if row.URL == "" {
			continue
		}

		props := priceProperties(row)
		if pageID, ok := existing[row.URL]; ok {
			_, err = e.client.UpdatePage(ctx, pageID, &notionapi.PageUpdateRequest{Properties: props})
			if err != nil {
				return created, updated, eris.Wrapf(err, "notion: update price row %s", row.URL)
			}
			updated++
			continue
		}

		_, err = e.client.CreatePage(ctx, &notionapi.PageCreateRequest{
			Parent: notionapi.Parent{
				Type:       notionapi.ParentTypeDatabaseID,
				DatabaseID: notionapi.DatabaseID(e.dbID),
			},
			Properties: props,
		})
		if err != nil {
			return created, updated, eris.Wrapf(err, "notion: create price row %s", row.URL)
		}
		created++
	}
	return created, updated, nil
}

// AppendDrop adds one alert row. Drops are events, never upserted.
func (e *Exporter) AppendDrop(ctx context.Context, d DropRow) error {
	name := fmt.Sprintf("Price drop %.0f%%: %s", d.Percent, d.URL)
	props := notionapi.Properties{
		"Name":      title(name),
		"URL":       urlProp(d.URL),
		"Old price": number(d.OldPrice),
		"New price": number(d.NewPrice),
		"Percent":   number(d.Percent),
		"Seen":      date(d.SeenAt),
	}
	_, err := e.client.CreatePage(ctx, &notionapi.PageCreateRequest{
		Parent: notionapi.Parent{
			Type:       notionapi.ParentTypeDatabaseID,
			DatabaseID: notionapi.DatabaseID(e.dbID),
		},
		Properties: props,
	})
	if err != nil {
		return eris.Wrapf(err, "notion: append drop %s", d.URL)
	}
	return nil
}

// pagesByURL maps the database's URL property to page IDs.
func (e *Exporter) pagesByURL(ctx context.Context) (map[string]string, error) {
	pages, err := QueryAll(ctx, e.client, e.dbID, nil)
	if err != nil {
		return nil, eris.Wrap(err, "notion: list existing rows")
	}

	out := make(map[string]string, len(pages))
	for _, p := range pages {
		if u := pageURL(p); u != "" {
			out[u] = string(p.ID)
		}
	}
	return out, nil
}

func pageURL(p notionapi.Page) string {
	prop, ok := p.Properties["URL"]
	if !ok {
		return ""
	}
	switch v := prop.(type) {
	case *notionapi.URLProperty:
		return v.URL
	case notionapi.URLProperty:
		return v.URL
	default:
		return ""
	}
}

func priceProperties(row PriceRow) notionapi.Properties {
	props := notionapi.Properties{
		"Name": title(row.Name),
		"URL":  urlProp(row.URL),
	}
	if row.SKU != "" {
		props["SKU"] = richText(row.SKU)
	}
	if row.Retailer != "" {
		props["Retailer"] = richText(row.Retailer)
	}
	if row.Price != nil {
		props["Price"] = number(*row.Price)
	}
	if !row.ObservedAt.IsZero() {
		props["Checked"] = date(row.ObservedAt)
	}
	return props
}

func title(s string) notionapi.TitleProperty {
	return notionapi.TitleProperty{
		Type: notionapi.PropertyTypeTitle,
		Title: []notionapi.RichText{
			{Type: notionapi.ObjectTypeText, Text: &notionapi.Text{Content: s}},
		},
	}
}

func richText(s string) notionapi.RichTextProperty {
	return notionapi.RichTextProperty{
		Type: notionapi.PropertyTypeRichText,
		RichText: []notionapi.RichText{
			{Type: notionapi.ObjectTypeText, Text: &notionapi.Text{Content: s}},
		},
	}
}

func urlProp(s string) notionapi.URLProperty {
	return notionapi.URLProperty{
		Type: notionapi.PropertyTypeURL,
		URL:  s,
	}
}

func number(v float64) notionapi.NumberProperty {
	return notionapi.NumberProperty{
		Type:   notionapi.PropertyTypeNumber,
		Number: v,
	}
}

func date(t time.Time) notionapi.DateProperty {
	d := notionapi.Date(t)
	return notionapi.DateProperty{
		Type: notionapi.PropertyTypeDate,
		Date: &notionapi.DateObject{Start: &d},
	}
}
