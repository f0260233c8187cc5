package fetch

import (
	"context"

	"github.com/sells-group/price-patrol/pkg/browser"
)

// BrowserFetcher renders pages through the headless browser. It is the
// preferred fetcher: storefronts that assemble prices client-side only
// show them to a real rendering engine.
type BrowserFetcher struct {
	b *browser.Browser
}

// NewBrowserFetcher wraps a running browser.
func NewBrowserFetcher(b *browser.Browser) *BrowserFetcher {
	return &BrowserFetcher{b: b}
}

func (f *BrowserFetcher) Name() string { return "browser" }

func (f *BrowserFetcher) Fetch(ctx context.Context, url string) (*Result, error) {
	res, err := f.b.Visit(ctx, url)
	if err != nil {
		return nil, err
	}
	return &Result{
		URL:     url,
		HTML:    res.HTML,
		Partial: res.Partial,
		Source:  f.Name(),
	}, nil
}
