package fetch

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Chain tries fetchers in priority order, returning the first success.
// A partial result from one fetcher is still a success; only a hard
// failure falls through to the next.
type Chain struct {
	fetchers []Fetcher
}

// NewChain builds a chain over the given fetchers, tried in order.
func NewChain(fetchers ...Fetcher) *Chain {
	return &Chain{fetchers: fetchers}
}

func (c *Chain) Name() string { return "chain" }

// Fetch tries each fetcher until one returns content.
func (c *Chain) Fetch(ctx context.Context, url string) (*Result, error) {
	var lastErr error
	for _, f := range c.fetchers {
		result, err := f.Fetch(ctx, url)
		if err == nil && result != nil && result.HTML != "" {
			return result, nil
		}
		if err != nil {
			zap.L().Debug("fetch: fetcher failed, trying next",
				zap.String("fetcher", f.Name()),
				zap.String("url", url),
				zap.Error(err),
			)
			lastErr = err
		}
		if err := ctx.Err(); err != nil {
			return nil, eris.Wrap(err, "fetch: canceled")
		}
	}
	if lastErr != nil {
		return nil, eris.Wrapf(lastErr, "fetch: all fetchers failed for %s", url)
	}
	return nil, eris.Errorf("fetch: no fetcher produced content for %s", url)
}
