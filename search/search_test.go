package search

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/use-agent/pricehound/config"
	"github.com/use-agent/pricehound/models"
)

func testCfg() config.SearchConfig {
	return config.SearchConfig{
		MaxConcurrent:        5,
		MaxResultsPerChannel: 5,
		Timeout:              5 * time.Second,
	}
}

func TestIsProductPage(t *testing.T) {
	tests := []struct {
		url, title string
		want       bool
	}{
		{"https://amazon.com/dp/B0XYZ", "Apple iPhone 15", true},
		{"https://bestbuy.com/site/p/6534608", "iPhone 15 Pro", true},
		{"https://walmart.com/item/123", "widget", true},
		{"https://example.com/page", "Buy the new iPhone", true},
		{"https://example.com/blog/iphone-review", "iPhone review", false},
		{"https://example.com/help/returns", "buy and return policy", false},
		{"https://example.com/news/launch", "shop opening", false},
		{"https://example.com/somewhere", "launch event", false},
	}

	for _, tt := range tests {
		if got := IsProductPage(tt.url, tt.title); got != tt.want {
			t.Errorf("IsProductPage(%q, %q) = %v, want %v", tt.url, tt.title, got, tt.want)
		}
	}
}

func TestProducts_SerpAPI(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("api_key") != "serp-key" {
			http.Error(w, "missing key", http.StatusUnauthorized)
			return
		}
		w.Write([]byte(`{"organic_results": [
			{"title": "iPhone 15 Pro", "link": "https://amazon.com/dp/B0XYZ", "snippet": "$999.99 In Stock"},
			{"title": "iPhone rumors", "link": "https://amazon.com/blog/rumors", "snippet": "editorial"}
		]}`))
	}))
	defer srv.Close()

	cfg := testCfg()
	cfg.SerpAPIKey = "serp-key"
	e := NewEngine(srv.Client(), cfg, "test-agent")
	e.serpURL = srv.URL

	hits := e.Products(context.Background(), "iphone 15", []models.ChannelInfo{
		{Domain: "amazon.com", Label: "marketplace", Locale: "US", Confidence: 0.9},
	})

	if len(hits) != 1 {
		t.Fatalf("got %d hits, want 1 (blog result filtered): %+v", len(hits), hits)
	}
	hit := hits[0]
	if hit.URL != "https://amazon.com/dp/B0XYZ" || hit.Channel != "amazon.com" || hit.Confidence != 0.9 {
		t.Errorf("hit = %+v", hit)
	}
}

func TestProducts_BingSendsSubscriptionKey(t *testing.T) {
	var gotKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("Ocp-Apim-Subscription-Key")
		w.Write([]byte(`{"webPages": {"value": [
			{"name": "RTX 4090 Graphics Card", "url": "https://newegg.com/p/N82E168", "snippet": "$1599.99"}
		]}}`))
	}))
	defer srv.Close()

	cfg := testCfg()
	cfg.BingAPIKey = "bing-key"
	e := NewEngine(srv.Client(), cfg, "test-agent")
	e.bingURL = srv.URL

	hits := e.Products(context.Background(), "rtx 4090", []models.ChannelInfo{
		{Domain: "newegg.com", Locale: "US", Confidence: 0.8},
	})

	if gotKey != "bing-key" {
		t.Errorf("subscription key header = %q", gotKey)
	}
	if len(hits) != 1 || hits[0].Title != "RTX 4090 Graphics Card" {
		t.Errorf("hits = %+v", hits)
	}
}

func TestProducts_ScrapeFallback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><body>
			<a href="https://target.com/p/apple-iphone-15/A-89712345">Apple iPhone 15 128GB</a>
			<a href="https://target.com/help/returns">Returns</a>
			<a href="/relative/ignored">ignored</a>
		</body></html>`))
	}))
	defer srv.Close()

	e := NewEngine(srv.Client(), testCfg(), "test-agent")
	e.scrapeURL = srv.URL

	hits := e.Products(context.Background(), "iphone 15", []models.ChannelInfo{
		{Domain: "target.com", Label: "big_box", Locale: "US", Confidence: 0.8},
	})

	if len(hits) != 1 {
		t.Fatalf("got %d hits, want 1: %+v", len(hits), hits)
	}
	if hits[0].Title != "Apple iPhone 15 128GB" {
		t.Errorf("title = %q", hits[0].Title)
	}
	// Scraped hits carry reduced confidence.
	if hits[0].Confidence != 0.8*0.7 {
		t.Errorf("confidence = %v", hits[0].Confidence)
	}
}

func TestProducts_FailedChannelSkipped(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("site") == "broken.com" {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		w.Write([]byte(`{"organic_results": [
			{"title": "SSD 2TB", "link": "https://ok.com/product/ssd-2tb", "snippet": "$129"}
		]}`))
	}))
	defer srv.Close()

	cfg := testCfg()
	cfg.SerpAPIKey = "serp-key"
	e := NewEngine(srv.Client(), cfg, "test-agent")
	e.serpURL = srv.URL

	hits := e.Products(context.Background(), "ssd", []models.ChannelInfo{
		{Domain: "broken.com", Locale: "US", Confidence: 0.9},
		{Domain: "ok.com", Locale: "US", Confidence: 0.9},
	})

	if len(hits) != 1 || hits[0].Channel != "ok.com" {
		t.Errorf("hits = %+v", hits)
	}
}

func TestProducts_NoChannels(t *testing.T) {
	e := NewEngine(nil, testCfg(), "test-agent")
	if hits := e.Products(context.Background(), "anything", nil); len(hits) != 0 {
		t.Errorf("got %d hits from zero channels", len(hits))
	}
}
