// Package extract holds the signal extractors. Each one reads a rendered
// page and emits zero or more evidence items for the fields it covers,
// tagged with its fixed source trust. Extractors are independent: any may
// be skipped or fail without affecting the others.
package extract

import (
	"regexp"
	"strings"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
	"go.uber.org/zap"
)

// Page is the rendered evidence for one URL: the raw HTML plus a plain
// visible-text rendition.
type Page struct {
	URL  string
	HTML string
	// Text is the markdown rendition of the visible content. The text
	// extractors and the AI prompt read this, never the raw HTML.
	Text string
	// Partial marks content captured after a navigation timeout; partial
	// data still flows through extraction.
	Partial bool
}

// Title returns the page's <title> text, or "".
func (p *Page) Title() string {
	m := titleRe.FindStringSubmatch(p.HTML)
	if len(m) < 2 {
		return ""
	}
	return strings.TrimSpace(htmlUnescape(m[1]))
}

var titleRe = regexp.MustCompile(`(?is)<title[^>]*>(.*?)</title>`)

// Renderer converts fetched HTML into the plain-text rendition carried on
// a Page. The markdown conversion drops script/style content and keeps
// table layouts (spec grids) readable.
type Renderer struct {
	conv *converter.Converter
}

// NewRenderer builds the shared HTML-to-text renderer.
func NewRenderer() *Renderer {
	return &Renderer{
		conv: converter.NewConverter(
			converter.WithPlugins(
				base.NewBasePlugin(),
				commonmark.NewCommonmarkPlugin(),
				table.NewTablePlugin(),
			),
		),
	}
}

// Render builds a Page from raw HTML. Conversion failure falls back to a
// crude tag strip so extraction always has some text to work with.
func (r *Renderer) Render(url, html string, partial bool) *Page {
	text, err := r.conv.ConvertString(html, converter.WithDomain(url))
	if err != nil {
		zap.L().Debug("extract: markdown conversion failed, falling back to tag strip",
			zap.String("url", url),
			zap.Error(err),
		)
		text = stripTags(html)
	}
	return &Page{URL: url, HTML: html, Text: text, Partial: partial}
}

var tagRe = regexp.MustCompile(`(?s)<script.*?</script>|<style.*?</style>|<[^>]+>`)

// stripTags is the fallback plain-text rendition.
func stripTags(html string) string {
	return strings.Join(strings.Fields(tagRe.ReplaceAllString(html, " ")), " ")
}

var entityReplacer = strings.NewReplacer(
	"&amp;", "&",
	"&lt;", "<",
	"&gt;", ">",
	"&quot;", `"`,
	"&#39;", "'",
	"&apos;", "'",
	"&nbsp;", " ",
)

func htmlUnescape(s string) string {
	return entityReplacer.Replace(s)
}
