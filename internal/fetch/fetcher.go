// Package fetch retrieves raw page content for the extractors. Fetchers
// are tried in priority order: the headless browser first (full rendering,
// stealth identity), plain HTTP when the browser is unavailable, and the
// remote scrape API as a last resort for blocked sites.
package fetch

import "context"

// Result holds fetched page content before rendering.
type Result struct {
	URL  string
	HTML string
	// Partial marks content captured after a navigation timeout; it still
	// goes to extraction.
	Partial bool
	// Source names the fetcher that produced the content.
	Source string
}

// Fetcher retrieves one URL's content.
type Fetcher interface {
	Name() string
	Fetch(ctx context.Context, url string) (*Result, error)
}
