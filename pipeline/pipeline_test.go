package pipeline

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/use-agent/pricehound/cache"
	"github.com/use-agent/pricehound/extract"
	"github.com/use-agent/pricehound/fetcher"
	"github.com/use-agent/pricehound/models"
	"github.com/use-agent/pricehound/normalize"
)

type fakeWhitelist struct {
	channels []models.ChannelInfo
	calls    int
}

func (f *fakeWhitelist) Generate(_ context.Context, _, _ string, _ int) []models.ChannelInfo {
	f.calls++
	return f.channels
}

type fakeSearch struct {
	hits []models.SearchHit
}

func (f *fakeSearch) Products(_ context.Context, _ string, _ []models.ChannelInfo) []models.SearchHit {
	return f.hits
}

type fakeBatcher struct {
	// failURLs marks targets that fail to fetch.
	failURLs map[string]bool
}

func (f *fakeBatcher) FetchAll(_ context.Context, targets []fetcher.FetchTarget) []fetcher.FetchResult {
	results := make([]fetcher.FetchResult, len(targets))
	for i, target := range targets {
		if f.failURLs[target.URL] {
			results[i] = fetcher.FetchResult{URL: target.URL, Error: "connection refused"}
			continue
		}
		results[i] = fetcher.FetchResult{
			URL:      target.URL,
			FinalURL: target.URL,
			Body:     "<html>product page for " + target.URL + "</html>",
			Success:  true,
		}
	}
	return results
}

// titleExtractor fabricates a record per URL from a fixed table.
type titleExtractor struct {
	records map[string]models.RawProduct
}

func (e *titleExtractor) Name() string          { return "fake" }
func (e *titleExtractor) CanHandle(string) bool { return true }

func (e *titleExtractor) Extract(_ context.Context, _, url string) (*models.RawProduct, error) {
	raw, ok := e.records[url]
	if !ok {
		return nil, nil
	}
	return &raw, nil
}

func fptr(v float64) *float64 { return &v }

func usChannels() []models.ChannelInfo {
	return []models.ChannelInfo{
		{Domain: "amazon.com", Label: "marketplace", Locale: "US", Confidence: 0.9},
		{Domain: "bestbuy.com", Label: "big_box", Locale: "US", Confidence: 0.9},
	}
}

func newTestPipeline(w *fakeWhitelist, s *fakeSearch, b *fakeBatcher, ext extract.Extractor, store *cache.Tiered) *Pipeline {
	return New(w, s, b, extract.Chain{ext}, normalize.New(nil), store, Options{
		TargetCurrency: "USD",
		ProductTTL:     time.Hour,
	})
}

func TestRun_EndToEnd(t *testing.T) {
	hits := []models.SearchHit{
		{URL: "https://amazon.com/dp/B01", Channel: "amazon.com", Snippet: "$999.99", Confidence: 0.9},
		{URL: "https://bestbuy.com/site/p/1", Channel: "bestbuy.com", Confidence: 0.8},
	}
	ext := &titleExtractor{records: map[string]models.RawProduct{
		"https://amazon.com/dp/B01": {
			Title: "Apple iPhone 15 Pro 256GB", URL: "https://amazon.com/dp/B01",
			Price: fptr(999.99), Currency: "USD", StockState: models.StockIn,
		},
		"https://bestbuy.com/site/p/1": {
			Title: "Sony WH-1000XM5 Headphones", URL: "https://bestbuy.com/site/p/1",
			Price: fptr(349.99), Currency: "USD", StockState: models.StockIn,
		},
	}}

	p := newTestPipeline(&fakeWhitelist{channels: usChannels()}, &fakeSearch{hits: hits}, &fakeBatcher{}, ext, nil)

	resp, err := p.Run(context.Background(), models.SearchRequest{Query: "electronics"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if resp.TotalResults != 2 || len(resp.Results) != 2 {
		t.Fatalf("results = %d, want 2", resp.TotalResults)
	}
	// Cheapest first.
	if *resp.Results[0].Price != 349.99 {
		t.Errorf("first price = %v", *resp.Results[0].Price)
	}
	// Confidence carried from the search hit.
	if resp.Results[1].Confidence != 0.9 {
		t.Errorf("confidence = %v", resp.Results[1].Confidence)
	}
	if len(resp.ChannelsUsed) != 2 || resp.ChannelsUsed[0] != "amazon.com" {
		t.Errorf("channels used = %v", resp.ChannelsUsed)
	}
	if resp.Query != "electronics" {
		t.Errorf("query = %q", resp.Query)
	}
}

func TestRun_FetchFailureSkipsItem(t *testing.T) {
	hits := []models.SearchHit{
		{URL: "https://ok.com/p/1", Channel: "ok.com", Confidence: 0.9},
		{URL: "https://down.com/p/1", Channel: "down.com", Confidence: 0.9},
	}
	ext := &titleExtractor{records: map[string]models.RawProduct{
		"https://ok.com/p/1":   {Title: "Survivor Widget", URL: "https://ok.com/p/1", Price: fptr(10)},
		"https://down.com/p/1": {Title: "Unreachable Widget", URL: "https://down.com/p/1", Price: fptr(5)},
	}}
	batcher := &fakeBatcher{failURLs: map[string]bool{"https://down.com/p/1": true}}

	p := newTestPipeline(&fakeWhitelist{channels: usChannels()}, &fakeSearch{hits: hits}, batcher, ext, nil)

	resp, err := p.Run(context.Background(), models.SearchRequest{Query: "widget"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if resp.TotalResults != 1 || resp.Results[0].Title != "Survivor Widget" {
		t.Errorf("results = %+v", resp.Results)
	}
}

func TestRun_OutOfStockFilter(t *testing.T) {
	hits := []models.SearchHit{
		{URL: "https://a.com/p/1", Channel: "a.com", Confidence: 0.9},
		{URL: "https://b.com/p/1", Channel: "b.com", Confidence: 0.9},
	}
	ext := &titleExtractor{records: map[string]models.RawProduct{
		"https://a.com/p/1": {Title: "Widget In Stock", URL: "https://a.com/p/1", Price: fptr(10), StockState: models.StockIn},
		"https://b.com/p/1": {Title: "Gadget Sold Out", URL: "https://b.com/p/1", Price: fptr(10), StockState: models.StockOut},
	}}

	p := newTestPipeline(&fakeWhitelist{channels: usChannels()}, &fakeSearch{hits: hits}, &fakeBatcher{}, ext, nil)

	exclude := false
	resp, err := p.Run(context.Background(), models.SearchRequest{Query: "widget", IncludeOutOfStock: &exclude})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if resp.TotalResults != 1 || resp.Results[0].StockState != models.StockIn {
		t.Errorf("results = %+v", resp.Results)
	}
}

func TestRun_MaxResultsTruncates(t *testing.T) {
	titles := map[string]string{
		"alpha":   "Mechanical Keyboard RGB",
		"bravo":   "USB Condenser Microphone",
		"charlie": "27-inch 4K Monitor",
	}
	var hits []models.SearchHit
	records := map[string]models.RawProduct{}
	for name, title := range titles {
		url := "https://" + name + ".com/p/1"
		hits = append(hits, models.SearchHit{URL: url, Channel: name + ".com", Confidence: 0.9})
		records[url] = models.RawProduct{Title: title, URL: url, Price: fptr(10)}
	}

	p := newTestPipeline(&fakeWhitelist{channels: usChannels()}, &fakeSearch{hits: hits}, &fakeBatcher{}, &titleExtractor{records: records}, nil)

	resp, err := p.Run(context.Background(), models.SearchRequest{Query: "x", MaxResults: 2})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if resp.TotalResults != 2 {
		t.Errorf("results = %d, want 2", resp.TotalResults)
	}
}

func TestRun_NoSearchHits(t *testing.T) {
	p := newTestPipeline(&fakeWhitelist{channels: usChannels()}, &fakeSearch{}, &fakeBatcher{}, &titleExtractor{}, nil)

	resp, err := p.Run(context.Background(), models.SearchRequest{Query: "obscure thing"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if resp.TotalResults != 0 || len(resp.ChannelsUsed) != 2 {
		t.Errorf("resp = %+v", resp)
	}
}

func TestRun_EmptyWhitelistFails(t *testing.T) {
	p := newTestPipeline(&fakeWhitelist{}, &fakeSearch{}, &fakeBatcher{}, &titleExtractor{}, nil)

	_, err := p.Run(context.Background(), models.SearchRequest{Query: "anything"})
	if err == nil {
		t.Fatal("expected error for empty whitelist")
	}
	var crawlErr *models.CrawlError
	if !asCrawlError(err, &crawlErr) || crawlErr.Code != models.ErrCodeInternal {
		t.Errorf("err = %v", err)
	}
}

func asCrawlError(err error, target **models.CrawlError) bool {
	ce, ok := err.(*models.CrawlError)
	if ok {
		*target = ce
	}
	return ok
}

func TestRun_SecondCallServedFromCache(t *testing.T) {
	durable, err := cache.NewSQLite(filepath.Join(t.TempDir(), "cache.db"))
	if err != nil {
		t.Fatalf("NewSQLite: %v", err)
	}
	store := cache.NewTiered(durable, nil, time.Hour)
	t.Cleanup(store.Stop)
	t.Cleanup(func() { durable.Close() })

	hits := []models.SearchHit{{URL: "https://a.com/p/1", Channel: "a.com", Confidence: 0.9}}
	ext := &titleExtractor{records: map[string]models.RawProduct{
		"https://a.com/p/1": {Title: "Cached Widget", URL: "https://a.com/p/1", Price: fptr(10)},
	}}
	w := &fakeWhitelist{channels: usChannels()}

	p := newTestPipeline(w, &fakeSearch{hits: hits}, &fakeBatcher{}, ext, store)

	ctx := context.Background()
	first, err := p.Run(ctx, models.SearchRequest{Query: "widget"})
	if err != nil {
		t.Fatalf("first Run: %v", err)
	}
	if first.CacheStatus != "miss" {
		t.Errorf("first cache status = %q", first.CacheStatus)
	}

	second, err := p.Run(ctx, models.SearchRequest{Query: "widget"})
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if second.CacheStatus != "hit" {
		t.Errorf("second cache status = %q", second.CacheStatus)
	}
	if w.calls != 1 {
		t.Errorf("whitelist called %d times, want 1 (second run cached)", w.calls)
	}
	if second.TotalResults != 1 || second.Results[0].Title != "Cached Widget" {
		t.Errorf("cached results = %+v", second.Results)
	}
}

func TestRun_RenderFlagReachesTargets(t *testing.T) {
	var sawRender bool
	batcher := &recordingBatcher{onFetch: func(targets []fetcher.FetchTarget) {
		for _, tgt := range targets {
			if tgt.Render {
				sawRender = true
			}
		}
	}}

	hits := []models.SearchHit{{URL: "https://a.com/p/1", Channel: "a.com"}}
	p := newTestPipeline(&fakeWhitelist{channels: usChannels()}, &fakeSearch{hits: hits}, nil, &titleExtractor{}, nil)
	p.fetcher = batcher

	if _, err := p.Run(context.Background(), models.SearchRequest{Query: "x", Render: true}); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !sawRender {
		t.Error("render flag not propagated to fetch targets")
	}
}

type recordingBatcher struct {
	onFetch func([]fetcher.FetchTarget)
}

func (r *recordingBatcher) FetchAll(_ context.Context, targets []fetcher.FetchTarget) []fetcher.FetchResult {
	r.onFetch(targets)
	results := make([]fetcher.FetchResult, len(targets))
	for i, target := range targets {
		results[i] = fetcher.FetchResult{URL: target.URL, Success: true, Body: "<html></html>"}
	}
	return results
}
