package fetcher

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"github.com/use-agent/pricehound/config"
	"github.com/use-agent/pricehound/models"
	"github.com/ysmood/gson"
)

// renderer owns the shared headless browser and its reusable page
// pool. One renderer lives for the whole process; launching a browser
// per fetch is disallowed for cost reasons.
type renderer struct {
	browser     *rod.Browser
	pagePool    rod.Pool[rod.Page]
	settleDelay time.Duration
	maxPages    int
	activePages atomic.Int32
}

// newRenderer launches the headless browser and initialises the page
// pool. Errors here leave the fetcher in HTTP-only mode.
func newRenderer(cfg config.BrowserConfig) (*renderer, error) {
	l := launcher.New().
		Headless(cfg.Headless).
		NoSandbox(cfg.NoSandbox)

	if cfg.BrowserBin != "" {
		l = l.Bin(cfg.BrowserBin)
	}

	// ── Stealth flags ────────────────────────────────────────────────
	l.Set(flags.Flag("disable-blink-features"), "AutomationControlled")
	l.Delete(flags.Flag("enable-automation"))
	l.Set(flags.Flag("disable-dev-shm-usage"))
	l.Set(flags.Flag("disable-extensions"))
	l.Set(flags.Flag("disable-default-apps"))
	l.Set(flags.Flag("disable-component-update"))
	l.Set(flags.Flag("no-first-run"))

	controlURL, err := l.Launch()
	if err != nil {
		return nil, models.NewCrawlError(
			models.ErrCodeBrowserCrash,
			"failed to launch browser",
			err,
		)
	}
	slog.Info("browser launched", "controlURL", controlURL)

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		return nil, models.NewCrawlError(
			models.ErrCodeBrowserCrash,
			"failed to connect to browser",
			err,
		)
	}

	pool := rod.NewPagePool(cfg.MaxPages)
	slog.Info("page pool created", "maxPages", cfg.MaxPages)

	return &renderer{
		browser:     browser,
		pagePool:    pool,
		settleDelay: cfg.SettleDelay,
		maxPages:    cfg.MaxPages,
	}, nil
}

// stats returns a snapshot of the pool's current state.
func (r *renderer) stats() models.PoolStats {
	return models.PoolStats{
		MaxPages:    r.maxPages,
		ActivePages: int(r.activePages.Load()),
	}
}

// close drains the page pool and kills the browser process. Call on
// graceful shutdown to prevent zombie Chrome processes.
func (r *renderer) close() {
	slog.Info("renderer shutting down: draining page pool")
	r.pagePool.Cleanup(func(p *rod.Page) {
		_ = p.Close()
	})
	r.browser.MustClose()
	slog.Info("renderer shutdown complete")
}

// fetch renders the target in a pooled page and returns the fully
// rendered markup.
//
// The second return is true only when the page-level resource could
// not be acquired at all — the caller should retry the target over
// plain HTTP, exactly as if the render capability were absent.
// Navigation failures on an acquired page are final: they become a
// failure result, not an HTTP retry.
//
// Lifecycle:
//  1. Acquire page from the pool (or create one)
//  2. DEFER: about:blank + return to pool — leak prevention, runs even
//     when navigation errors or the request context expires
//  3. Stealth injection + UA header (before navigation!)
//  4. Bind request context, navigate
//  5. Bounded DOM-stable settle
//  6. Extract rendered HTML, final URL, status code
func (r *renderer) fetch(ctx context.Context, target FetchTarget, userAgent string) (FetchResult, bool) {
	result := FetchResult{
		URL:      target.URL,
		FinalURL: target.URL,
		Strategy: StrategyBrowser,
	}

	r.activePages.Add(1)
	defer r.activePages.Add(-1)

	page, acquireErr := r.pagePool.Get(func() (*rod.Page, error) {
		return r.browser.Page(proto.TargetCreateTarget{})
	})
	if acquireErr != nil {
		slog.Warn("render: page acquisition failed, degrading to http",
			"url", target.URL, "error", acquireErr)
		return result, true
	}

	// The cleanup uses the ORIGINAL page reference (without request
	// context) so it succeeds even after the request context expires.
	defer func() {
		if navErr := page.Navigate("about:blank"); navErr != nil {
			slog.Warn("render cleanup: failed to navigate to about:blank",
				"error", navErr)
		}
		r.pagePool.Put(page)
	}()

	if _, evalErr := page.EvalOnNewDocument(stealth.JS); evalErr != nil {
		slog.Warn("stealth injection failed, proceeding without stealth",
			"error", evalErr)
	}

	_ = proto.NetworkSetExtraHTTPHeaders{
		Headers: proto.NetworkHeaders{"User-Agent": gson.New(userAgent)},
	}.Call(page)

	p := page.Context(ctx)

	if navErr := p.Navigate(target.URL); navErr != nil {
		result.Error = describeRenderError(navErr)
		return result, false
	}

	// Bounded settle: wait for the DOM to stop mutating, but never
	// block past the request deadline.
	if stableErr := p.WaitDOMStable(r.settleDelay, 0.1); stableErr != nil {
		slog.Debug("WaitDOMStable did not converge, proceeding with current DOM",
			"url", target.URL, "error", stableErr)
	}

	rawHTML, htmlErr := p.HTML()
	if htmlErr != nil {
		result.Error = describeRenderError(htmlErr)
		return result, false
	}
	result.Body = rawHTML

	// Status code via the Performance API — avoids CDP event listeners
	// that conflict with the Fetch domain on newer Chromium.
	if res, err := p.Eval(`() => {
		try {
			const entries = performance.getEntriesByType("navigation");
			if (entries.length > 0) return entries[0].responseStatus || 0;
		} catch(e) {}
		return 0;
	}`); err == nil {
		result.StatusCode = res.Value.Int()
	}

	if finalURL := evalStringOrEmpty(p, `() => window.location.href`); finalURL != "" {
		result.FinalURL = finalURL
	}

	result.Success = true
	return result, false
}

// evalStringOrEmpty evaluates a JS expression and returns the string
// result, swallowing any errors (optional metadata only).
func evalStringOrEmpty(page *rod.Page, js string) string {
	res, err := page.Eval(js)
	if err != nil {
		return ""
	}
	return res.Value.Str()
}

// describeRenderError converts navigation/extraction errors into
// per-item failure reasons.
func describeRenderError(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "render timed out"
	case errors.Is(err, context.Canceled):
		return "render canceled"
	default:
		return "navigation failed: " + err.Error()
	}
}
