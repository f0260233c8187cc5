package main

import (
	"context"
	"os"
	"time"

	"github.com/k-capehart/go-salesforce/v3"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/price-patrol/internal/config"
	"github.com/sells-group/price-patrol/internal/cost"
	"github.com/sells-group/price-patrol/internal/extract"
	"github.com/sells-group/price-patrol/internal/fetch"
	"github.com/sells-group/price-patrol/internal/patrol"
	"github.com/sells-group/price-patrol/internal/profile"
	"github.com/sells-group/price-patrol/internal/reconcile"
	"github.com/sells-group/price-patrol/internal/resilience"
	"github.com/sells-group/price-patrol/internal/store"
	"github.com/sells-group/price-patrol/internal/validate"
	anthropicpkg "github.com/sells-group/price-patrol/pkg/anthropic"
	"github.com/sells-group/price-patrol/pkg/browser"
	"github.com/sells-group/price-patrol/pkg/firecrawl"
	"github.com/sells-group/price-patrol/pkg/perplexity"
	sfpkg "github.com/sells-group/price-patrol/pkg/salesforce"
)

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		path := cfg.Store.SQLitePath
		if path == "" {
			path = config.DefaultSQLitePath()
		}
		return store.NewSQLite(path)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, nil)
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

func initSalesforce() (sfpkg.Client, error) {
	if cfg.Salesforce.ClientID == "" {
		return nil, eris.New("salesforce client ID is required (PATROL_SALESFORCE_CLIENT_ID)")
	}

	pemData, err := os.ReadFile(cfg.Salesforce.KeyPath)
	if err != nil {
		return nil, eris.Wrap(err, "read salesforce JWT private key")
	}

	sf, err := salesforce.Init(salesforce.Creds{
		Domain:         cfg.Salesforce.LoginURL,
		Username:       cfg.Salesforce.Username,
		ConsumerKey:    cfg.Salesforce.ClientID,
		ConsumerRSAPem: string(pemData),
	})
	if err != nil {
		return nil, eris.Wrap(err, "init salesforce")
	}

	return sfpkg.NewClient(sf), nil
}

// spendMeter reports accumulated AI calls and estimated spend for the run
// summary. At most one of the inferencers is non-nil.
type spendMeter struct {
	calc *cost.Calculator
	anth *anthropicpkg.Inferencer
	pplx *perplexity.Inferencer
}

func (s *spendMeter) Calls() int64 {
	switch {
	case s.anth != nil:
		return s.anth.Calls()
	case s.pplx != nil:
		return s.pplx.Calls()
	}
	return 0
}

func (s *spendMeter) CostUSD() float64 {
	switch {
	case s.anth != nil:
		var total float64
		for model, u := range s.anth.Usage() {
			total += s.calc.Claude(model, u.InputTokens, u.OutputTokens)
		}
		return total
	case s.pplx != nil:
		return float64(s.pplx.Calls()) * s.calc.PerplexityQuery()
	}
	return 0
}

// patrolEnv bundles the collaborators a patrol needs. Close releases the
// browser and store.
type patrolEnv struct {
	Store    store.Store
	Profiles *profile.Set
	Court    *reconcile.Court
	Breaker  *resilience.CircuitBreaker
	Worker   *patrol.Worker
	Fetcher  fetch.Fetcher
	Spend    patrol.SpendMeter

	browser *browser.Browser
}

func (e *patrolEnv) Close() {
	if e.browser != nil {
		_ = e.browser.Close()
	}
	_ = e.Store.Close()
}

// buildPatrolEnv assembles the full extraction pipeline: store, fetch
// chain, extractors, breaker-guarded AI collaborator, and reconciliation
// court.
func buildPatrolEnv(ctx context.Context) (*patrolEnv, error) {
	if err := cfg.Validate("patrol"); err != nil {
		return nil, err
	}

	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	profiles, err := profile.Load(cfg.Profiles)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	validator := validate.New(cfg.Patrol.MinDescriptionLen, profiles.ExtraBoilerplate())
	court := reconcile.NewCourt(cfg.Patrol.MinPrice, cfg.Patrol.MaxPrice, validator)

	breaker := resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
		FailureThreshold: cfg.Patrol.BreakerThreshold,
		OnStateChange: func(from, to resilience.CircuitState, reason string) {
			zap.L().Warn("ai circuit opened for the rest of this run",
				zap.String("reason", reason),
			)
		},
	})

	env := &patrolEnv{
		Store:    st,
		Profiles: profiles,
		Court:    court,
		Breaker:  breaker,
	}

	spend := &spendMeter{calc: cost.NewCalculator(pricingRates())}
	var ai *extract.AIExtractor
	switch {
	case cfg.Anthropic.Key != "":
		inf := anthropicpkg.NewInferencer(anthropicpkg.NewClient(cfg.Anthropic.Key), cfg.Anthropic.Models)
		spend.anth = inf
		ai = extract.NewAIExtractor(inf, breaker, cfg.Patrol.AIMaxChars)
	case cfg.Perplexity.Key != "":
		client := perplexity.NewClient(cfg.Perplexity.Key,
			perplexity.WithBaseURL(cfg.Perplexity.BaseURL),
			perplexity.WithModel(cfg.Perplexity.Model),
		)
		inf := perplexity.NewInferencer(client, cfg.Perplexity.Model)
		spend.pplx = inf
		ai = extract.NewAIExtractor(inf, breaker, cfg.Patrol.AIMaxChars)
	default:
		zap.L().Info("no AI credential configured, deterministic extraction only")
	}
	env.Spend = spend

	env.Fetcher = buildFetcher(env)

	env.Worker = patrol.NewWorker(st, env.Fetcher, buildExtractors(), ai, court, patrol.WorkerConfig{
		PauseAfterLoadMin: cfg.Patrol.PauseAfterLoadMinSecs,
		PauseAfterLoadMax: cfg.Patrol.PauseAfterLoadMaxSecs,
	})

	return env, nil
}

// buildFetcher layers the fetch chain: headless browser first, Firecrawl
// when a key is configured, plain HTTP last. A browser launch failure
// degrades the chain instead of aborting the batch.
func buildFetcher(env *patrolEnv) fetch.Fetcher {
	var fetchers []fetch.Fetcher

	b, err := browser.New(browser.Config{
		Headless:     cfg.Browser.Headless,
		NavTimeout:   time.Duration(cfg.Browser.NavTimeoutSecs) * time.Second,
		MaxExpanders: cfg.Browser.MaxExpanders,
	})
	if err != nil {
		zap.L().Warn("browser launch failed, continuing without rendered fetches", zap.Error(err))
	} else {
		env.browser = b
		fetchers = append(fetchers, fetch.NewBrowserFetcher(b))
	}

	if cfg.Firecrawl.Key != "" {
		client := firecrawl.NewClient(cfg.Firecrawl.Key, firecrawl.WithBaseURL(cfg.Firecrawl.BaseURL))
		fetchers = append(fetchers, fetch.NewFirecrawlFetcher(client))
	}

	fetchers = append(fetchers, fetch.NewLocalFetcher())
	return fetch.NewChain(fetchers...)
}

func buildExtractors() []extract.Extractor {
	return []extract.Extractor{
		extract.NewStructuredExtractor(),
		extract.NewMetaExtractor(),
		extract.NewFocusedTextExtractor(cfg.Patrol.MinPrice, cfg.Patrol.MaxPrice),
		extract.NewBroadTextExtractor(cfg.Patrol.MinPrice, cfg.Patrol.MaxPrice),
	}
}

// pricingRates converts configured pricing into calculator rates.
func pricingRates() cost.Rates {
	rates := cost.Rates{
		Anthropic:  make(map[string]cost.ModelRate, len(cfg.Pricing.Anthropic)),
		Perplexity: cost.PerplexityRate{PerQuery: cfg.Pricing.Perplexity.PerQuery},
	}
	for model, r := range cfg.Pricing.Anthropic {
		rates.Anthropic[model] = cost.ModelRate{Input: r.Input, Output: r.Output}
	}
	if len(rates.Anthropic) == 0 {
		return cost.DefaultRates()
	}
	return rates
}
