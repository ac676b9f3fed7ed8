// Package fetcher retrieves batches of product pages under per-domain
// concurrency control. Two retrieval strategies sit behind one
// interface: a plain HTTP client with a Chrome TLS fingerprint, and a
// shared headless browser for pages that need JavaScript rendering.
package fetcher

import (
	"context"
	"log/slog"
	"sync"

	"github.com/use-agent/pricehound/config"
	"github.com/use-agent/pricehound/models"
)

// Fetcher fetches batches of URLs with an independent concurrency cap
// per source domain. It is safe for concurrent use; a single instance
// is shared for the process lifetime.
type Fetcher struct {
	cfg  config.FetcherConfig
	http *httpClient

	// renderer is nil when the browser is disabled or failed to
	// launch; all render-strategy requests then take the HTTP path.
	renderer *renderer

	// gates maps domain -> buffered-channel semaphore. Gates are
	// created lazily on first use of a domain and retained for the
	// fetcher's lifetime; the map is bounded in practice by the number
	// of distinct domains seen.
	mu    sync.Mutex
	gates map[string]chan struct{}
}

// New constructs a Fetcher. When the browser is enabled but fails to
// launch, the error is logged and the fetcher runs HTTP-only — a
// missing render capability must never fail the batch.
func New(cfg config.FetcherConfig, browserCfg config.BrowserConfig) *Fetcher {
	f := &Fetcher{
		cfg:   cfg,
		http:  newHTTPClient(cfg.UserAgent),
		gates: make(map[string]chan struct{}),
	}

	if browserCfg.Enabled {
		r, err := newRenderer(browserCfg)
		if err != nil {
			slog.Warn("render capability unavailable, falling back to http",
				"error", err)
		} else {
			f.renderer = r
		}
	}

	return f
}

// Stats reports the browser page pool state; zero-valued when the
// render capability is unavailable.
func (f *Fetcher) Stats() models.PoolStats {
	if f.renderer == nil {
		return models.PoolStats{}
	}
	return f.renderer.stats()
}

// Close releases the shared browser, if any.
func (f *Fetcher) Close() {
	if f.renderer != nil {
		f.renderer.close()
	}
}

// gate returns the concurrency gate for a domain, creating it on first
// use. Creation happens exactly once per domain even under concurrent
// first access.
func (f *Fetcher) gate(domain string) chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()

	g, ok := f.gates[domain]
	if !ok {
		limit := f.cfg.DomainLimit
		if override, ok := f.cfg.DomainOverrides[domain]; ok {
			limit = override
		}
		if limit <= 0 {
			limit = 1
		}
		g = make(chan struct{}, limit)
		f.gates[domain] = g
	}
	return g
}

// FetchAll fetches every target and returns exactly one result per
// input, in input order. Individual failures (transport errors,
// timeouts, non-2xx statuses) are recorded per item; no error escapes
// the call. At most N requests are in flight per domain at any
// instant, where N is that domain's configured limit; domains do not
// throttle each other.
func (f *Fetcher) FetchAll(ctx context.Context, targets []FetchTarget) []FetchResult {
	results := make([]FetchResult, len(targets))

	var wg sync.WaitGroup
	for i, target := range targets {
		wg.Add(1)
		go func(i int, target FetchTarget) {
			defer wg.Done()
			results[i] = f.fetchOne(ctx, target)
		}(i, target)
	}
	wg.Wait()

	return results
}

// fetchOne acquires the domain gate, performs a single fetch under the
// per-request timeout, and releases the gate unconditionally.
func (f *Fetcher) fetchOne(ctx context.Context, target FetchTarget) FetchResult {
	gate := f.gate(target.Domain)

	select {
	case gate <- struct{}{}:
	case <-ctx.Done():
		return FetchResult{
			URL:      target.URL,
			FinalURL: target.URL,
			Strategy: StrategyHTTP,
			Error:    describeFetchError(ctx.Err()),
		}
	}
	defer func() { <-gate }()

	reqCtx, cancel := context.WithTimeout(ctx, f.cfg.RequestTimeout)
	defer cancel()

	if target.Render {
		if r := f.renderer; r != nil {
			result, degrade := r.fetch(reqCtx, target, f.cfg.UserAgent)
			if !degrade {
				return result
			}
			// Page acquisition failed: treat exactly like an absent
			// render capability and retry over plain HTTP.
		} else {
			slog.Debug("render requested but capability absent, using http",
				"url", target.URL)
		}
	}

	return f.http.fetch(reqCtx, target)
}
