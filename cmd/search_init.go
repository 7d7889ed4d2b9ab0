package main

import (
	"context"
	"os"
	"time"

	"github.com/k-capehart/go-salesforce/v3"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/prospector/internal/estimate"
	"github.com/sells-group/prospector/internal/extract"
	"github.com/sells-group/prospector/internal/filter"
	"github.com/sells-group/prospector/internal/generate"
	"github.com/sells-group/prospector/internal/geo"
	"github.com/sells-group/prospector/internal/intent"
	"github.com/sells-group/prospector/internal/lookup"
	"github.com/sells-group/prospector/internal/search"
	"github.com/sells-group/prospector/internal/store"
	anthropicpkg "github.com/sells-group/prospector/pkg/anthropic"
	"github.com/sells-group/prospector/pkg/perplexity"
	sfpkg "github.com/sells-group/prospector/pkg/salesforce"
	"github.com/sells-group/prospector/pkg/websearch"
)

// searchEnv holds the store and the fully wired Searcher used by the
// search and serve commands.
type searchEnv struct {
	Store    store.Store
	Searcher *search.Searcher
}

// Close releases resources held by the search environment.
func (se *searchEnv) Close() {
	if se.Store != nil {
		_ = se.Store.Close()
	}
}

// initStore opens the configured store backend and runs migrations.
func initStore(ctx context.Context) (store.Store, error) {
	st, err := store.Open(ctx, cfg.Store)
	if err != nil {
		return nil, err
	}

	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	return st, nil
}

// initSalesforce authenticates with the JWT bearer flow and returns a
// ready client.
func initSalesforce() (sfpkg.Client, error) {
	if cfg.Salesforce.ClientID == "" {
		return nil, eris.New("salesforce client ID is required (PROSPECTOR_SALESFORCE_CLIENT_ID)")
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

// initLocalities builds the locality table, merging the alias file when
// one is configured.
func initLocalities() *geo.Table {
	table := geo.NewTable()
	if cfg.Search.AliasFile == "" {
		return table
	}

	if err := table.LoadAliases(cfg.Search.AliasFile); err != nil {
		zap.L().Warn("alias file not loaded, using built-in localities only",
			zap.String("path", cfg.Search.AliasFile), zap.Error(err))
	}

	return table
}

// initSearch sets up the store, all API clients, and the full discovery
// stack. Callers should defer env.Close().
func initSearch(ctx context.Context, mode string) (*searchEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}

	localities := initLocalities()

	anthropicClient := anthropicpkg.NewClient(cfg.Anthropic.Key)
	websearchClient := websearch.NewClient(cfg.WebSearch.Key, websearch.WithBaseURL(cfg.WebSearch.BaseURL))

	sources := []lookup.Source{lookup.NewWebSearchSource(websearchClient)}
	if cfg.Perplexity.Key != "" {
		perplexityClient := perplexity.NewClient(cfg.Perplexity.Key,
			perplexity.WithBaseURL(cfg.Perplexity.BaseURL),
			perplexity.WithModel(cfg.Perplexity.Model))
		sources = append(sources, lookup.NewPerplexitySource(perplexityClient))
	} else {
		zap.L().Debug("PROSPECTOR_PERPLEXITY_KEY not set, Perplexity lookup fallback disabled")
	}

	limiter := lookup.NewAdaptiveLimiter(cfg.Search.LookupRatePerSec)
	fetcher := lookup.New(sources, limiter,
		time.Duration(cfg.Search.FetchTimeoutSecs)*time.Second,
		cfg.Search.FetchPoolSize)

	planner := intent.New(anthropicClient, cfg.Anthropic.HaikuModel, cfg.Search.DefaultTarget, localities)
	generator := generate.New(anthropicClient, cfg.Anthropic.HaikuModel)
	estimator := estimate.New(st, cfg.Search.MaxPerRound)
	extractor := extract.New(anthropicClient, cfg.Anthropic.SonnetModel,
		cfg.Search.BatchSize,
		cfg.Search.ExtractConcurrency,
		time.Duration(cfg.Search.ExtractTimeoutSecs)*time.Second)
	criteria := filter.New(localities)

	searcher := search.New(planner, estimator, generator, fetcher, extractor, criteria, st, search.Config{
		MaxIterations: cfg.Search.MaxIterations,
		CacheTTL:      time.Duration(cfg.Store.CacheTTLHours) * time.Hour,
	})

	return &searchEnv{Store: st, Searcher: searcher}, nil
}
