// Package search finds candidate product pages on whitelisted retail
// channels. It prefers the SerpAPI and Bing web search APIs when keys
// are configured and falls back to scraping a search results page
// otherwise. Channels are searched concurrently under one bound; a
// failed channel contributes nothing and never fails the batch.
package search

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/sync/errgroup"

	"github.com/use-agent/pricehound/config"
	"github.com/use-agent/pricehound/models"
)

const (
	defaultSerpURL   = "https://serpapi.com/search"
	defaultBingURL   = "https://api.bing.microsoft.com/v7.0/search"
	defaultScrapeURL = "https://www.google.com/search"
)

// Engine performs domain-restricted product searches.
type Engine struct {
	httpClient *http.Client
	cfg        config.SearchConfig
	userAgent  string

	serpURL   string
	bingURL   string
	scrapeURL string
}

// NewEngine builds an Engine. httpClient may be nil to use a default
// client with the configured timeout.
func NewEngine(httpClient *http.Client, cfg config.SearchConfig, userAgent string) *Engine {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	return &Engine{
		httpClient: httpClient,
		cfg:        cfg,
		userAgent:  userAgent,
		serpURL:    defaultSerpURL,
		bingURL:    defaultBingURL,
		scrapeURL:  defaultScrapeURL,
	}
}

// Products searches every channel for the keyword, at most
// MaxConcurrent channels in flight at once, and returns the combined
// product-page hits. Per-channel failures are logged and skipped.
func (e *Engine) Products(ctx context.Context, keyword string, channels []models.ChannelInfo) []models.SearchHit {
	perChannel := make([][]models.SearchHit, len(channels))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.MaxConcurrent)

	for i, channel := range channels {
		g.Go(func() error {
			hits, err := e.searchChannel(gctx, keyword, channel)
			if err != nil {
				slog.Error("search: channel failed", "channel", channel.Domain, "error", err)
				return nil
			}
			perChannel[i] = hits
			return nil
		})
	}
	// Workers never return errors; Wait only orders the writes.
	_ = g.Wait()

	var results []models.SearchHit
	for _, hits := range perChannel {
		results = append(results, hits...)
	}
	return results
}

func (e *Engine) searchChannel(ctx context.Context, keyword string, channel models.ChannelInfo) ([]models.SearchHit, error) {
	ctx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
	defer cancel()

	switch {
	case e.cfg.SerpAPIKey != "":
		return e.searchSerpAPI(ctx, keyword, channel)
	case e.cfg.BingAPIKey != "":
		return e.searchBing(ctx, keyword, channel)
	default:
		return e.scrapeSearch(ctx, keyword, channel)
	}
}

func (e *Engine) searchSerpAPI(ctx context.Context, keyword string, channel models.ChannelInfo) ([]models.SearchHit, error) {
	params := url.Values{
		"api_key": {e.cfg.SerpAPIKey},
		"q":       {keyword},
		"engine":  {"google"},
		"site":    {channel.Domain},
		"num":     {strconv.Itoa(min(e.cfg.MaxResultsPerChannel, 10))},
		"gl":      {strings.ToLower(channel.Locale)},
		"hl":      {"en"},
	}

	body, err := e.getJSON(ctx, e.serpURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}

	var parsed struct {
		OrganicResults []struct {
			Title   string `json:"title"`
			Link    string `json:"link"`
			Snippet string `json:"snippet"`
		} `json:"organic_results"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("search: parse serpapi response: %w", err)
	}

	hits := make([]models.SearchHit, 0, len(parsed.OrganicResults))
	for _, result := range parsed.OrganicResults {
		if !IsProductPage(result.Link, result.Title) {
			continue
		}
		hits = append(hits, models.SearchHit{
			Title:      result.Title,
			URL:        result.Link,
			Snippet:    result.Snippet,
			Channel:    channel.Domain,
			Label:      channel.Label,
			Confidence: channel.Confidence,
		})
	}
	return hits, nil
}

func (e *Engine) searchBing(ctx context.Context, keyword string, channel models.ChannelInfo) ([]models.SearchHit, error) {
	params := url.Values{
		"q":              {fmt.Sprintf("%s site:%s", keyword, channel.Domain)},
		"count":          {strconv.Itoa(min(e.cfg.MaxResultsPerChannel, 10))},
		"mkt":            {"en-" + strings.ToUpper(channel.Locale)},
		"responseFilter": {"Webpages"},
	}
	headers := map[string]string{"Ocp-Apim-Subscription-Key": e.cfg.BingAPIKey}

	body, err := e.getJSON(ctx, e.bingURL+"?"+params.Encode(), headers)
	if err != nil {
		return nil, err
	}

	var parsed struct {
		WebPages struct {
			Value []struct {
				Name    string `json:"name"`
				URL     string `json:"url"`
				Snippet string `json:"snippet"`
			} `json:"value"`
		} `json:"webPages"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("search: parse bing response: %w", err)
	}

	hits := make([]models.SearchHit, 0, len(parsed.WebPages.Value))
	for _, page := range parsed.WebPages.Value {
		if !IsProductPage(page.URL, page.Name) {
			continue
		}
		hits = append(hits, models.SearchHit{
			Title:      page.Name,
			URL:        page.URL,
			Snippet:    page.Snippet,
			Channel:    channel.Domain,
			Label:      channel.Label,
			Confidence: channel.Confidence,
		})
	}
	return hits, nil
}

// scrapeSearch is the keyless fallback: fetch a results page and pull
// out anchors pointing at the channel. Hits carry reduced confidence
// because nothing vouches for their ranking.
func (e *Engine) scrapeSearch(ctx context.Context, keyword string, channel models.ChannelInfo) ([]models.SearchHit, error) {
	params := url.Values{
		"q":   {fmt.Sprintf("%s site:%s", keyword, channel.Domain)},
		"num": {strconv.Itoa(e.cfg.MaxResultsPerChannel)},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.scrapeURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", e.userAgent)

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("search: scrape returned status %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("search: parse scrape response: %w", err)
	}

	var hits []models.SearchHit
	doc.Find("a[href]").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		href, _ := sel.Attr("href")
		if !strings.Contains(href, channel.Domain) || !strings.HasPrefix(href, "http") {
			return true
		}
		if !IsProductPage(href, sel.Text()) {
			return true
		}

		title := strings.TrimSpace(sel.Text())
		if title == "" {
			title = "Product from " + channel.Domain
		}
		hits = append(hits, models.SearchHit{
			Title:      title,
			URL:        href,
			Snippet:    "Product page from " + channel.Domain,
			Channel:    channel.Domain,
			Label:      channel.Label,
			Confidence: channel.Confidence * 0.7,
		})
		return len(hits) < e.cfg.MaxResultsPerChannel
	})
	return hits, nil
}

func (e *Engine) getJSON(ctx context.Context, rawURL string, headers map[string]string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", e.userAgent)
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("search: api returned status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

// Pages under these paths are editorial or support content, never
// product listings.
var skipPathPatterns = []string{
	"/blog/", "/news/", "/article/", "/forum/", "/help/", "/support/",
	"/about/", "/contact/", "/careers/", "/press/", "/legal/",
}

var productPatterns = []string{
	"/product/", "/item/", "/p/", "/dp/", "/gp/product/",
	"buy", "shop", "purchase", "add to cart", "add to basket",
}

// IsProductPage reports whether a search hit looks like a purchasable
// product page rather than editorial content.
func IsProductPage(pageURL, title string) bool {
	lowerURL := strings.ToLower(pageURL)
	lowerTitle := strings.ToLower(title)

	for _, pattern := range skipPathPatterns {
		if strings.Contains(lowerURL, pattern) {
			return false
		}
	}
	for _, pattern := range productPatterns {
		if strings.Contains(lowerURL, pattern) || strings.Contains(lowerTitle, pattern) {
			return true
		}
	}
	return false
}
