// Package browser is the rendering collaborator: it drives a headless
// Chrome via rod and returns best-effort rendered HTML for a URL. A
// navigation timeout is not fatal: whatever content loaded is returned
// with a partial flag.
package browser

import (
	"context"
	"errors"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// userAgents is the fixed pool of desktop client identities; one is
// chosen per page visit.
var userAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/119.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:109.0) Gecko/20100101 Firefox/121.0",
}

// expanderSelectors are the collapsed-section toggles worth clicking
// before reading content. Spec tables and fitment lists commonly hide
// behind these.
var expanderSelectors = []string{
	`button[aria-expanded="false"]`,
	`[class*="show-more"]`,
	`[class*="read-more"]`,
	`[class*="expand"]`,
	`details:not([open]) summary`,
}

// Config configures the browser collaborator.
type Config struct {
	// Headless launches Chrome without a display. Default true.
	Headless bool
	// NavTimeout bounds one navigation. Default 60s.
	NavTimeout time.Duration
	// MaxExpanders bounds how many collapsed-section toggles a visit may
	// click. Zero disables expansion.
	MaxExpanders int
}

func (c *Config) defaults() {
	if c.NavTimeout <= 0 {
		c.NavTimeout = 60 * time.Second
	}
}

// Result is the outcome of one page visit.
type Result struct {
	URL  string
	HTML string
	// Partial marks content captured after a navigation or load timeout.
	Partial bool
	// UserAgent is the client identity used for this visit.
	UserAgent string
}

// Browser wraps one Chrome instance. Page visits each get their own
// stealth page, closed on every exit path.
type Browser struct {
	cfg     Config
	lnch    *launcher.Launcher
	browser *rod.Browser

	// pickUA is swappable in tests.
	pickUA func() string
}

// New launches Chrome and connects to it.
func New(cfg Config) (*Browser, error) {
	cfg.defaults()

	l := launcher.New().
		Headless(cfg.Headless).
		Set("disable-blink-features", "AutomationControlled")

	wsURL, err := l.Launch()
	if err != nil {
		return nil, eris.Wrap(err, "browser: launch")
	}

	b := rod.New().ControlURL(wsURL)
	if err := b.Connect(); err != nil {
		l.Cleanup()
		return nil, eris.Wrap(err, "browser: connect")
	}

	zap.L().Debug("browser: launched", zap.Bool("headless", cfg.Headless))
	return &Browser{cfg: cfg, lnch: l, browser: b, pickUA: randomUserAgent}, nil
}

// Visit renders a URL and returns its HTML. On navigation or load
// timeout it returns whatever content is present with Partial set; only
// a failure to open or address the page at all returns an error.
func (b *Browser) Visit(ctx context.Context, url string) (*Result, error) {
	page, err := stealth.Page(b.browser)
	if err != nil {
		return nil, eris.Wrap(err, "browser: create page")
	}
	defer page.Close()

	ua := b.pickUA()
	if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: ua}); err != nil {
		zap.L().Warn("browser: set user agent failed", zap.Error(err))
	}

	result := &Result{URL: url, UserAgent: ua}

	navCtx, cancel := context.WithTimeout(ctx, b.cfg.NavTimeout)
	defer cancel()

	if err := page.Context(navCtx).Navigate(url); err != nil {
		if !isTimeout(err) {
			return nil, eris.Wrapf(err, "browser: navigate %s", url)
		}
		result.Partial = true
		zap.L().Warn("browser: navigation timed out, using partial content", zap.String("url", url))
	}

	if !result.Partial {
		if err := page.Context(navCtx).WaitLoad(); err != nil {
			result.Partial = true
			zap.L().Warn("browser: wait load timed out, using partial content",
				zap.String("url", url),
				zap.Error(err),
			)
		}
	}

	if !result.Partial && b.cfg.MaxExpanders > 0 {
		b.expandSections(ctx, page)
	}

	html, err := b.outerHTML(ctx, page)
	if err != nil {
		return nil, eris.Wrapf(err, "browser: read content %s", url)
	}
	result.HTML = html

	return result, nil
}

// expandSections clicks up to MaxExpanders collapsed-section toggles so
// hidden spec and fitment text makes it into the snapshot. Best effort;
// failures are ignored.
func (b *Browser) expandSections(ctx context.Context, page *rod.Page) {
	evalCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	js := `(selectors, max) => {
		let clicked = 0;
		for (const sel of selectors) {
			for (const el of document.querySelectorAll(sel)) {
				if (clicked >= max) return clicked;
				try { el.click(); clicked++; } catch (e) {}
			}
		}
		return clicked;
	}`
	res, err := page.Context(evalCtx).Eval(js, expanderSelectors, b.cfg.MaxExpanders)
	if err != nil {
		zap.L().Debug("browser: expander pass failed", zap.Error(err))
		return
	}
	if n := res.Value.Int(); n > 0 {
		zap.L().Debug("browser: expanded collapsed sections", zap.Int("clicked", n))
		// Give toggled content a moment to render.
		select {
		case <-time.After(500 * time.Millisecond):
		case <-ctx.Done():
		}
	}
}

func (b *Browser) outerHTML(ctx context.Context, page *rod.Page) (string, error) {
	evalCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	res, err := page.Context(evalCtx).Eval(`() => document.documentElement.outerHTML`)
	if err != nil {
		return "", err
	}
	return res.Value.Str(), nil
}

// Close shuts Chrome down.
func (b *Browser) Close() error {
	var err error
	if b.browser != nil {
		err = b.browser.Close()
		b.browser = nil
	}
	if b.lnch != nil {
		b.lnch.Cleanup()
		b.lnch = nil
	}
	return err
}

func randomUserAgent() string {
	return userAgents[rand.IntN(len(userAgents))]
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "deadline exceeded") ||
		strings.Contains(strings.ToLower(err.Error()), "timeout")
}
