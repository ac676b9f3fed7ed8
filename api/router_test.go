package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/pricehound/cache"
	"github.com/use-agent/pricehound/config"
	"github.com/use-agent/pricehound/fetcher"
	"github.com/use-agent/pricehound/models"
)

type fakeRunner struct {
	resp *models.SearchResponse
	err  error

	lastReq models.SearchRequest
}

func (f *fakeRunner) Run(_ context.Context, req models.SearchRequest) (*models.SearchResponse, error) {
	f.lastReq = req
	if f.err != nil {
		return nil, f.err
	}
	return f.resp, nil
}

type fakeChannels struct {
	channels    []models.ChannelInfo
	lastKeyword string
}

func (f *fakeChannels) Generate(_ context.Context, keyword, _ string, _ int) []models.ChannelInfo {
	f.lastKeyword = keyword
	return f.channels
}

func newTestStore(t *testing.T) *cache.Tiered {
	t.Helper()
	durable, err := cache.NewSQLite(filepath.Join(t.TempDir(), "cache.db"))
	if err != nil {
		t.Fatalf("NewSQLite: %v", err)
	}
	store := cache.NewTiered(durable, nil, time.Hour)
	t.Cleanup(store.Stop)
	t.Cleanup(func() { durable.Close() })
	return store
}

func newTestFetcher(t *testing.T) *fetcher.Fetcher {
	t.Helper()
	f := fetcher.New(config.FetcherConfig{
		DomainLimit:    1,
		RequestTimeout: time.Second,
		UserAgent:      "test",
	}, config.BrowserConfig{Enabled: false})
	t.Cleanup(f.Close)
	return f
}

type routerOpts struct {
	runner   *fakeRunner
	channels *fakeChannels
	store    *cache.Tiered
	cfg      *config.Config
}

func newTestRouter(t *testing.T, opts routerOpts) *gin.Engine {
	t.Helper()
	if opts.runner == nil {
		opts.runner = &fakeRunner{resp: &models.SearchResponse{}}
	}
	if opts.channels == nil {
		opts.channels = &fakeChannels{}
	}
	if opts.store == nil {
		opts.store = newTestStore(t)
	}
	if opts.cfg == nil {
		opts.cfg = &config.Config{
			Server:    config.ServerConfig{Mode: "test"},
			RateLimit: config.RateLimitConfig{RequestsPerSecond: 1000, Burst: 100},
		}
	}
	return NewRouter(opts.runner, opts.channels, newTestFetcher(t), opts.store, opts.cfg, time.Now())
}

func do(r *gin.Engine, method, target string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func authedConfig() *config.Config {
	return &config.Config{
		Server:    config.ServerConfig{Mode: "test"},
		Auth:      config.AuthConfig{Enabled: true, APIKeys: []string{"secret-key"}},
		RateLimit: config.RateLimitConfig{RequestsPerSecond: 1000, Burst: 100},
	}
}

func TestHealth_OpenWithoutAuth(t *testing.T) {
	r := newTestRouter(t, routerOpts{cfg: authedConfig()})

	w := do(r, http.MethodGet, "/api/v1/health", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}

	var resp models.HealthResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Status != "healthy" {
		t.Errorf("status = %q", resp.Status)
	}
}

func TestSearch_RequiresAPIKey(t *testing.T) {
	r := newTestRouter(t, routerOpts{cfg: authedConfig()})

	w := do(r, http.MethodGet, "/api/v1/search?query=iphone", nil)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("no key: status = %d", w.Code)
	}
	var resp models.ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Error == nil || resp.Error.Code != models.ErrCodeUnauthorized {
		t.Errorf("error = %+v", resp.Error)
	}

	w = do(r, http.MethodGet, "/api/v1/search?query=iphone", map[string]string{"X-API-Key": "wrong"})
	if w.Code != http.StatusUnauthorized {
		t.Errorf("wrong key: status = %d", w.Code)
	}

	w = do(r, http.MethodGet, "/api/v1/search?query=iphone", map[string]string{"X-API-Key": "secret-key"})
	if w.Code != http.StatusOK {
		t.Errorf("valid key: status = %d", w.Code)
	}

	w = do(r, http.MethodGet, "/api/v1/search?query=iphone", map[string]string{"Authorization": "Bearer secret-key"})
	if w.Code != http.StatusOK {
		t.Errorf("bearer key: status = %d", w.Code)
	}
}

func TestSearch_MissingQueryRejected(t *testing.T) {
	r := newTestRouter(t, routerOpts{})

	w := do(r, http.MethodGet, "/api/v1/search", nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", w.Code)
	}
	var resp models.ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Error == nil || resp.Error.Code != models.ErrCodeInvalidInput {
		t.Errorf("error = %+v", resp.Error)
	}
}

func TestSearch_QueryParamsBound(t *testing.T) {
	runner := &fakeRunner{resp: &models.SearchResponse{Query: "iphone 15"}}
	r := newTestRouter(t, routerOpts{runner: runner})

	w := do(r, http.MethodGet, "/api/v1/search?query=iphone+15&locale=UK&max_results=5&render=true", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}

	req := runner.lastReq
	if req.Query != "iphone 15" || req.Locale != "UK" || req.MaxResults != 5 || !req.Render {
		t.Errorf("bound request = %+v", req)
	}
}

func TestSearch_ErrorStatusMapping(t *testing.T) {
	tests := []struct {
		code   string
		status int
	}{
		{models.ErrCodeInvalidInput, http.StatusBadRequest},
		{models.ErrCodeTimeout, http.StatusGatewayTimeout},
		{models.ErrCodeNavigation, http.StatusBadGateway},
		{models.ErrCodeLLMRateLimited, http.StatusTooManyRequests},
		{models.ErrCodeInternal, http.StatusInternalServerError},
		{models.ErrCodeExtraction, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			runner := &fakeRunner{err: models.NewCrawlError(tt.code, "boom", nil)}
			r := newTestRouter(t, routerOpts{runner: runner})

			w := do(r, http.MethodGet, "/api/v1/search?query=x", nil)
			if w.Code != tt.status {
				t.Errorf("status = %d, want %d", w.Code, tt.status)
			}
			var resp models.ErrorResponse
			if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if resp.Error == nil || resp.Error.Code != tt.code {
				t.Errorf("error = %+v", resp.Error)
			}
		})
	}
}

func TestRateLimit_Exceeded(t *testing.T) {
	cfg := &config.Config{
		Server:    config.ServerConfig{Mode: "test"},
		RateLimit: config.RateLimitConfig{RequestsPerSecond: 0.01, Burst: 1},
	}
	r := newTestRouter(t, routerOpts{cfg: cfg})

	if w := do(r, http.MethodGet, "/api/v1/search?query=x", nil); w.Code != http.StatusOK {
		t.Fatalf("first request: status = %d", w.Code)
	}
	w := do(r, http.MethodGet, "/api/v1/search?query=x", nil)
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("second request: status = %d", w.Code)
	}
	var resp models.ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Error == nil || resp.Error.Code != models.ErrCodeRateLimited {
		t.Errorf("error = %+v", resp.Error)
	}
}

func TestChannels_FallbackWithoutQuery(t *testing.T) {
	gen := &fakeChannels{}
	r := newTestRouter(t, routerOpts{channels: gen})

	w := do(r, http.MethodGet, "/api/v1/channels?locale=UK", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if gen.lastKeyword != "" {
		t.Errorf("generator called without a query: %q", gen.lastKeyword)
	}

	var resp models.ChannelsResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Total == 0 || resp.Channels[0].Domain != "amazon.co.uk" {
		t.Errorf("channels = %+v", resp.Channels)
	}
	if len(resp.SupportedLocales) == 0 {
		t.Error("supported locales missing")
	}
}

func TestChannels_GeneratedForQuery(t *testing.T) {
	gen := &fakeChannels{channels: []models.ChannelInfo{
		{Domain: "bestbuy.com", Label: "big_box", Locale: "US", Confidence: 0.9},
	}}
	r := newTestRouter(t, routerOpts{channels: gen})

	w := do(r, http.MethodGet, "/api/v1/channels?query=gaming+laptop", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if gen.lastKeyword != "gaming laptop" {
		t.Errorf("generator keyword = %q", gen.lastKeyword)
	}

	var resp models.ChannelsResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Total != 1 || resp.Channels[0].Domain != "bestbuy.com" {
		t.Errorf("channels = %+v", resp.Channels)
	}
}

func TestCache_StatsAndClear(t *testing.T) {
	store := newTestStore(t)
	r := newTestRouter(t, routerOpts{store: store})

	store.Set(context.Background(), "k", []byte("v"), time.Hour)

	w := do(r, http.MethodGet, "/api/v1/cache/stats", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("stats: status = %d", w.Code)
	}
	var stats models.CacheStatsResponse
	if err := json.Unmarshal(w.Body.Bytes(), &stats); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if stats.DurableEntries != 1 {
		t.Errorf("durable entries = %d, want 1", stats.DurableEntries)
	}

	if w := do(r, http.MethodDelete, "/api/v1/cache", nil); w.Code != http.StatusOK {
		t.Fatalf("clear: status = %d", w.Code)
	}

	w = do(r, http.MethodGet, "/api/v1/cache/stats", nil)
	if err := json.Unmarshal(w.Body.Bytes(), &stats); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if stats.DurableEntries != 0 {
		t.Errorf("durable entries after clear = %d", stats.DurableEntries)
	}
}
