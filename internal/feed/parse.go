package feed

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"encoding/xml"
	"io"
	"regexp"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
	"golang.org/x/text/encoding/htmlindex"

	"github.com/sells-group/price-patrol/internal/model"
)

// Format identifies a supplier price-list format.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatTSV  Format = "tsv"
	FormatXLSX Format = "xlsx"
	FormatXML  Format = "xml"
	FormatJSON Format = "json"
)

// DetectFormat guesses the format from a URL or file name. Empty when
// the extension is unrecognized.
func DetectFormat(name string) Format {
	lower := strings.ToLower(name)
	if i := strings.IndexAny(lower, "?#"); i >= 0 {
		lower = lower[:i]
	}
	switch {
	case strings.HasSuffix(lower, ".csv"):
		return FormatCSV
	case strings.HasSuffix(lower, ".tsv") || strings.HasSuffix(lower, ".tab"):
		return FormatTSV
	case strings.HasSuffix(lower, ".xlsx"):
		return FormatXLSX
	case strings.HasSuffix(lower, ".xml"):
		return FormatXML
	case strings.HasSuffix(lower, ".json"):
		return FormatJSON
	default:
		return ""
	}
}

var zipMagic = []byte{'P', 'K', 0x03, 0x04}

// unwrapArchive returns the payload of a zipped feed, or the input
// unchanged when it is not a zip. XLSX files are themselves zip
// archives, so a declared xlsx format is never unwrapped.
func unwrapArchive(data []byte, format Format) (payload []byte, name string, err error) {
	if format == FormatXLSX || !bytes.HasPrefix(data, zipMagic) {
		return data, "", nil
	}

	r, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, "", eris.Wrap(err, "feed: open zip")
	}

	var files []*zip.File
	for _, f := range r.File {
		if !f.FileInfo().IsDir() {
			files = append(files, f)
		}
	}
	if len(files) != 1 {
		return nil, "", eris.Errorf("feed: expected exactly 1 file in zip, got %d", len(files))
	}

	rc, err := files[0].Open()
	if err != nil {
		return nil, "", eris.Wrap(err, "feed: open zip entry")
	}
	defer rc.Close()

	payload, err = io.ReadAll(rc)
	if err != nil {
		return nil, "", eris.Wrap(err, "feed: read zip entry")
	}
	return payload, files[0].Name, nil
}

// Column aliases seen across supplier exports, lowercased with spaces,
// dashes, and underscores squashed.
var (
	urlAliases      = []string{"url", "link", "producturl", "pageurl", "productlink"}
	titleAliases    = []string{"title", "name", "productname", "product"}
	skuAliases      = []string{"sku", "partnumber", "part", "mpn", "itemnumber", "item"}
	priceAliases    = []string{"price", "msrp", "listprice", "unitprice", "retailprice"}
	currencyAliases = []string{"currency", "currencycode"}
	retailerAliases = []string{"retailer", "vendor", "supplier", "seller", "store"}
)

type columnMap struct {
	url, title, sku, price, currency, retailer int
}

func mapHeader(header []string) (columnMap, error) {
	cm := columnMap{url: -1, title: -1, sku: -1, price: -1, currency: -1, retailer: -1}
	find := func(aliases []string) int {
		for i, h := range header {
			key := normalizeHeader(h)
			for _, a := range aliases {
				if key == a {
					return i
				}
			}
		}
		return -1
	}
	cm.url = find(urlAliases)
	cm.title = find(titleAliases)
	cm.sku = find(skuAliases)
	cm.price = find(priceAliases)
	cm.currency = find(currencyAliases)
	cm.retailer = find(retailerAliases)

	if cm.url < 0 {
		return cm, eris.Errorf("feed: no url column in header %v", header)
	}
	return cm, nil
}

func normalizeHeader(h string) string {
	h = strings.ToLower(strings.TrimSpace(h))
	return strings.NewReplacer(" ", "", "_", "", "-", "").Replace(h)
}

func (cm columnMap) row(cells []string) (model.FeedRow, bool) {
	get := func(i int) string {
		if i < 0 || i >= len(cells) {
			return ""
		}
		return strings.TrimSpace(cells[i])
	}

	row := model.FeedRow{
		URL:      get(cm.url),
		Title:    get(cm.title),
		SKU:      get(cm.sku),
		Currency: get(cm.currency),
		Retailer: get(cm.retailer),
	}
	if row.URL == "" {
		return row, false
	}
	if p, ok := parseMoney(get(cm.price)); ok {
		row.ExpectedPrice = &p
	}
	return row, true
}

var moneyJunkRe = regexp.MustCompile(`[^0-9.]`)

// parseMoney strips currency symbols and separators before parsing.
// Zero and negative amounts do not count as prices.
func parseMoney(s string) (float64, bool) {
	cleaned := moneyJunkRe.ReplaceAllString(s, "")
	if cleaned == "" || strings.Count(cleaned, ".") > 1 {
		return 0, false
	}
	v, err := strconv.ParseFloat(cleaned, 64)
	if err != nil || v <= 0 {
		return 0, false
	}
	return v, true
}

// ParseCSV reads a delimited price list. The first row must be a header
// containing at least a url column; rows without a URL are skipped.
func ParseCSV(ctx context.Context, r io.Reader, delimiter rune) (rows []model.FeedRow, seen int, err error) {
	reader := csv.NewReader(r)
	if delimiter != 0 {
		reader.Comma = delimiter
	}
	reader.LazyQuotes = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, 0, eris.Wrap(err, "feed: read csv header")
	}
	cm, err := mapHeader(header)
	if err != nil {
		return nil, 0, err
	}

	for {
		if ctx.Err() != nil {
			return nil, seen, eris.Wrap(ctx.Err(), "feed: csv cancelled")
		}
		record, err := reader.Read()
		if err == io.EOF {
			return rows, seen, nil
		}
		if err != nil {
			return nil, seen, eris.Wrap(err, "feed: read csv row")
		}
		seen++
		if row, ok := cm.row(record); ok {
			rows = append(rows, row)
		}
	}
}

// ParseXLSX reads the first sheet of an XLSX price list, treating the
// first row as the header.
func ParseXLSX(data []byte, sheetName string) (rows []model.FeedRow, seen int, err error) {
	f, err := xlsx.OpenBinary(data)
	if err != nil {
		return nil, 0, eris.Wrap(err, "feed: open xlsx")
	}

	var sheet *xlsx.Sheet
	if sheetName != "" {
		var ok bool
		sheet, ok = f.Sheet[sheetName]
		if !ok {
			return nil, 0, eris.Errorf("feed: sheet %q not found", sheetName)
		}
	} else {
		if len(f.Sheets) == 0 {
			return nil, 0, eris.New("feed: xlsx has no sheets")
		}
		sheet = f.Sheets[0]
	}

	var cm columnMap
	for i, row := range sheet.Rows {
		cells := make([]string, len(row.Cells))
		for j, cell := range row.Cells {
			cells[j] = cell.String()
		}

		if i == 0 {
			cm, err = mapHeader(cells)
			if err != nil {
				return nil, 0, err
			}
			continue
		}

		seen++
		if r, ok := cm.row(cells); ok {
			rows = append(rows, r)
		}
	}
	return rows, seen, nil
}

// xmlItem covers the element shapes suppliers actually emit; .Row
// coalesces the aliases.
type xmlItem struct {
	URL      string `xml:"url"`
	Link     string `xml:"link"`
	Title    string `xml:"title"`
	Name     string `xml:"name"`
	SKU      string `xml:"sku"`
	Part     string `xml:"part_number"`
	Price    string `xml:"price"`
	MSRP     string `xml:"msrp"`
	Currency string `xml:"currency"`
	Retailer string `xml:"retailer"`
	Vendor   string `xml:"vendor"`
}

func (it xmlItem) row() (model.FeedRow, bool) {
	row := model.FeedRow{
		URL:      strings.TrimSpace(coalesce(it.URL, it.Link)),
		Title:    strings.TrimSpace(coalesce(it.Title, it.Name)),
		SKU:      strings.TrimSpace(coalesce(it.SKU, it.Part)),
		Currency: strings.TrimSpace(it.Currency),
		Retailer: strings.TrimSpace(coalesce(it.Retailer, it.Vendor)),
	}
	if row.URL == "" {
		return row, false
	}
	if p, ok := parseMoney(coalesce(it.Price, it.MSRP)); ok {
		row.ExpectedPrice = &p
	}
	return row, true
}

func coalesce(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

// ParseXML reads item elements from an XML price list. Legacy supplier
// feeds commonly declare windows-1252 or iso-8859-1, so the decoder
// resolves charsets through htmlindex.
func ParseXML(ctx context.Context, r io.Reader, elementName string) (rows []model.FeedRow, seen int, err error) {
	if elementName == "" {
		elementName = "item"
	}

	decoder := xml.NewDecoder(r)
	decoder.CharsetReader = func(charset string, input io.Reader) (io.Reader, error) {
		enc, err := htmlindex.Get(charset)
		if err != nil {
			return nil, eris.Wrapf(err, "feed: unsupported charset %q", charset)
		}
		return enc.NewDecoder().Reader(input), nil
	}

	for {
		if ctx.Err() != nil {
			return nil, seen, eris.Wrap(ctx.Err(), "feed: xml cancelled")
		}

		tok, err := decoder.Token()
		if err == io.EOF {
			return rows, seen, nil
		}
		if err != nil {
			return nil, seen, eris.Wrap(err, "feed: read xml token")
		}

		se, ok := tok.(xml.StartElement)
		if !ok || se.Name.Local != elementName {
			continue
		}

		var item xmlItem
		if err := decoder.DecodeElement(&item, &se); err != nil {
			return nil, seen, eris.Wrap(err, "feed: decode xml element")
		}
		seen++
		if row, ok := item.row(); ok {
			rows = append(rows, row)
		}
	}
}

// jsonItem tolerates prices shipped as either numbers or strings.
type jsonItem struct {
	URL      string `json:"url"`
	Link     string `json:"link"`
	Title    string `json:"title"`
	Name     string `json:"name"`
	SKU      string `json:"sku"`
	Price    any    `json:"price"`
	MSRP     any    `json:"msrp"`
	Currency string `json:"currency"`
	Retailer string `json:"retailer"`
	Vendor   string `json:"vendor"`
}

func moneyString(v any) string {
	switch n := v.(type) {
	case string:
		return n
	case float64:
		return strconv.FormatFloat(n, 'f', -1, 64)
	case json.Number:
		return n.String()
	default:
		return ""
	}
}

func (it jsonItem) row() (model.FeedRow, bool) {
	row := model.FeedRow{
		URL:      strings.TrimSpace(coalesce(it.URL, it.Link)),
		Title:    strings.TrimSpace(coalesce(it.Title, it.Name)),
		SKU:      strings.TrimSpace(it.SKU),
		Currency: strings.TrimSpace(it.Currency),
		Retailer: strings.TrimSpace(coalesce(it.Retailer, it.Vendor)),
	}
	if row.URL == "" {
		return row, false
	}
	if p, ok := parseMoney(coalesce(moneyString(it.Price), moneyString(it.MSRP))); ok {
		row.ExpectedPrice = &p
	}
	return row, true
}

// ParseJSON streams a JSON array of feed objects.
func ParseJSON(ctx context.Context, r io.Reader) (rows []model.FeedRow, seen int, err error) {
	decoder := json.NewDecoder(r)

	tok, err := decoder.Token()
	if err != nil {
		if err == io.EOF {
			return nil, 0, nil
		}
		return nil, 0, eris.Wrap(err, "feed: read json opening token")
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '[' {
		return nil, 0, eris.Errorf("feed: expected json array, got %v", tok)
	}

	for decoder.More() {
		if ctx.Err() != nil {
			return nil, seen, eris.Wrap(ctx.Err(), "feed: json cancelled")
		}
		var item jsonItem
		if err := decoder.Decode(&item); err != nil {
			return nil, seen, eris.Wrap(err, "feed: decode json element")
		}
		seen++
		if row, ok := item.row(); ok {
			rows = append(rows, row)
		}
	}
	return rows, seen, nil
}
