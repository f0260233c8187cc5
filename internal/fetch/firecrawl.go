package fetch

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/price-patrol/pkg/firecrawl"
)

// FirecrawlFetcher wraps the remote scrape API as the last-resort
// fetcher for sites that block both the browser and plain HTTP.
type FirecrawlFetcher struct {
	client firecrawl.Client
}

// NewFirecrawlFetcher creates a FirecrawlFetcher from a Firecrawl client.
func NewFirecrawlFetcher(client firecrawl.Client) *FirecrawlFetcher {
	return &FirecrawlFetcher{client: client}
}

func (f *FirecrawlFetcher) Name() string { return "firecrawl" }

func (f *FirecrawlFetcher) Fetch(ctx context.Context, targetURL string) (*Result, error) {
	resp, err := f.client.Scrape(ctx, firecrawl.ScrapeRequest{
		URL:     targetURL,
		Formats: []string{"html", "markdown"},
	})
	if err != nil {
		return nil, err
	}
	if !resp.Success || resp.Data.HTML == "" {
		return nil, eris.New("firecrawl: scrape returned no content")
	}
	return &Result{
		URL:    targetURL,
		HTML:   resp.Data.HTML,
		Source: f.Name(),
	}, nil
}
