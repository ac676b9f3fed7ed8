// Package pipeline orchestrates one product search end to end:
// whitelist -> channel search -> page fetch -> extraction ->
// normalization. The pipeline itself retries nothing; every stage
// degrades per item and the batch always completes.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/use-agent/pricehound/cache"
	"github.com/use-agent/pricehound/extract"
	"github.com/use-agent/pricehound/fetcher"
	"github.com/use-agent/pricehound/models"
	"github.com/use-agent/pricehound/normalize"
)

// maxChannels caps how many channels one search may touch.
const maxChannels = 20

// Searcher is the channel-search collaborator.
type Searcher interface {
	Products(ctx context.Context, keyword string, channels []models.ChannelInfo) []models.SearchHit
}

// Whitelister resolves keyword+locale to retail channels.
type Whitelister interface {
	Generate(ctx context.Context, keyword, locale string, maxChannels int) []models.ChannelInfo
}

// Batcher fetches a batch of targets.
type Batcher interface {
	FetchAll(ctx context.Context, targets []fetcher.FetchTarget) []fetcher.FetchResult
}

// Options carries the pipeline's tunables.
type Options struct {
	// TargetCurrency is the ISO code all result prices use.
	TargetCurrency string

	// ProductTTL is the cache lifetime of a completed search.
	ProductTTL time.Duration
}

// Pipeline wires the collaborators for the /search flow.
type Pipeline struct {
	whitelist  Whitelister
	search     Searcher
	fetcher    Batcher
	extractors extract.Chain
	normalizer *normalize.Normalizer
	store      *cache.Tiered // nil disables result caching
	opts       Options
}

// New assembles a Pipeline.
func New(w Whitelister, s Searcher, f Batcher, extractors extract.Chain, n *normalize.Normalizer, store *cache.Tiered, opts Options) *Pipeline {
	if opts.TargetCurrency == "" {
		opts.TargetCurrency = "USD"
	}
	return &Pipeline{
		whitelist:  w,
		search:     s,
		fetcher:    f,
		extractors: extractors,
		normalizer: n,
		store:      store,
		opts:       opts,
	}
}

// searchArtifact is the cacheable part of a completed search: the
// full normalized product list before per-request filtering.
type searchArtifact struct {
	Products []models.Product `json:"products"`
	Channels []string         `json:"channels"`
}

// Run executes one search request and always returns a response; the
// error is non-nil only when the whitelist stage yields no channels
// at all.
func (p *Pipeline) Run(ctx context.Context, req models.SearchRequest) (*models.SearchResponse, error) {
	req.Defaults()
	start := time.Now()

	cacheKey := fmt.Sprintf("search:%s:%s:render=%t", req.Query, req.Locale, req.Render)

	if p.store != nil {
		var artifact searchArtifact
		if p.store.GetJSON(ctx, cacheKey, &artifact) {
			slog.Info("pipeline: cache hit", "query", req.Query, "locale", req.Locale)
			return p.respond(req, artifact, start, "hit"), nil
		}
	}

	channels := p.whitelist.Generate(ctx, req.Query, req.Locale, maxChannels)
	if len(channels) == 0 {
		return nil, models.NewCrawlError(models.ErrCodeInternal, "failed to generate channel whitelist", nil)
	}
	slog.Info("pipeline: whitelist generated", "query", req.Query, "channels", len(channels))

	artifact := searchArtifact{Channels: channelDomains(channels)}

	hits := p.search.Products(ctx, req.Query, channels)
	if len(hits) == 0 {
		slog.Warn("pipeline: no search results", "query", req.Query)
		return p.respond(req, artifact, start, ""), nil
	}
	slog.Info("pipeline: search complete", "query", req.Query, "hits", len(hits))

	raws := p.extractAll(ctx, hits, req.Render)

	artifact.Products = p.normalizer.Normalize(raws, p.opts.TargetCurrency)

	if p.store != nil && len(artifact.Products) > 0 {
		p.store.SetJSON(ctx, cacheKey, artifact, p.opts.ProductTTL)
	}

	slog.Info("pipeline: search finished",
		"query", req.Query,
		"products", len(artifact.Products),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return p.respond(req, artifact, start, cacheStatus(p.store)), nil
}

// extractAll fetches every hit's page and runs the matching extractor
// over the successful ones. Search-hit confidence is carried onto the
// raw record; extraction failures skip the item.
func (p *Pipeline) extractAll(ctx context.Context, hits []models.SearchHit, render bool) []models.RawProduct {
	targets := make([]fetcher.FetchTarget, len(hits))
	for i, hit := range hits {
		targets[i] = fetcher.NewTarget(hit.URL, render)
	}

	results := p.fetcher.FetchAll(ctx, targets)

	raws := make([]models.RawProduct, 0, len(results))
	for i, result := range results {
		if !result.Success {
			slog.Debug("pipeline: fetch failed", "url", result.URL, "error", result.Error)
			continue
		}

		extractor := p.extractors.For(result.URL)
		if extractor == nil {
			continue
		}

		raw, err := extractor.Extract(ctx, result.Body, result.URL)
		if err != nil {
			slog.Error("pipeline: extraction failed",
				"url", result.URL, "extractor", extractor.Name(), "error", err)
			continue
		}
		if raw == nil {
			// Not a product page.
			continue
		}

		raw.Confidence = hits[i].Confidence
		if raw.Retailer == "" {
			raw.Retailer = hits[i].Channel
		}
		if raw.Snippet == "" {
			raw.Snippet = hits[i].Snippet
		}

		raws = append(raws, *raw)
	}
	return raws
}

// respond applies the per-request view (stock filter, truncation) to
// the artifact.
func (p *Pipeline) respond(req models.SearchRequest, artifact searchArtifact, start time.Time, cacheStatus string) *models.SearchResponse {
	products := artifact.Products

	if req.IncludeOutOfStock != nil && !*req.IncludeOutOfStock {
		kept := make([]models.Product, 0, len(products))
		for _, product := range products {
			if product.StockState != models.StockOut {
				kept = append(kept, product)
			}
		}
		products = kept
	}

	if len(products) > req.MaxResults {
		products = products[:req.MaxResults]
	}

	return &models.SearchResponse{
		Query:        req.Query,
		TotalResults: len(products),
		Results:      products,
		SearchTimeMs: time.Since(start).Milliseconds(),
		ChannelsUsed: artifact.Channels,
		CacheStatus:  cacheStatus,
	}
}

func channelDomains(channels []models.ChannelInfo) []string {
	domains := make([]string, len(channels))
	for i, channel := range channels {
		domains[i] = channel.Domain
	}
	return domains
}

func cacheStatus(store *cache.Tiered) string {
	if store == nil {
		return ""
	}
	return "miss"
}
