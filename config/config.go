package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig
	Browser   BrowserConfig
	Fetcher   FetcherConfig
	Cache     CacheConfig
	Search    SearchConfig
	LLM       LLMConfig
	Normalize NormalizeConfig
	Auth      AuthConfig
	RateLimit RateLimitConfig
	Log       LogConfig
}

// ServerConfig controls the HTTP server.
type ServerConfig struct {
	Host string // default: "0.0.0.0"
	Port int    // default: 8080
	Mode string // "debug", "release", "test"; default: "release"
}

// BrowserConfig controls the shared Rod browser instance used by the
// render fetch strategy. The browser is optional: when launch fails,
// the fetcher degrades to plain HTTP.
type BrowserConfig struct {
	// Enabled toggles the render strategy entirely.
	Enabled bool // default: true

	// Headless controls whether the browser runs headless.
	Headless bool // default: true

	// MaxPages is the page pool capacity (max concurrent tabs).
	MaxPages int // default: 10

	// NoSandbox disables Chrome's sandbox (needed in Docker).
	NoSandbox bool // default: false

	// BrowserBin overrides the Chromium binary path.
	BrowserBin string

	// SettleDelay is the bounded wait after navigation for the DOM to
	// stop mutating before the rendered HTML is extracted.
	SettleDelay time.Duration // default: 300ms
}

// FetcherConfig controls batch fetching behavior.
type FetcherConfig struct {
	// DomainLimit is the default number of concurrent in-flight
	// requests allowed per source domain.
	DomainLimit int // default: 2

	// DomainOverrides maps a domain to its own concurrency limit,
	// parsed from "domain=N,domain=N" form.
	DomainOverrides map[string]int

	// RequestTimeout is the per-URL fetch deadline.
	RequestTimeout time.Duration // default: 30s

	// UserAgent identifies the crawler in outgoing requests and is the
	// agent name matched against robots.txt groups.
	UserAgent string
}

// CacheConfig controls the tiered response cache.
type CacheConfig struct {
	// SQLitePath is the durable tier database file.
	SQLitePath string // default: "cache.db"

	// RedisURL enables the fast tier when non-empty.
	RedisURL string

	// SweepInterval is how often expired durable entries are reaped.
	SweepInterval time.Duration // default: 5m

	// WhitelistTTL is the cache lifetime for generated channel lists.
	WhitelistTTL time.Duration // default: 24h

	// ProductTTL is the cache lifetime for normalized product sets.
	ProductTTL time.Duration // default: 1h
}

// SearchConfig controls domain-restricted product search.
type SearchConfig struct {
	SerpAPIKey string
	BingAPIKey string

	// MaxConcurrent bounds how many channels are searched at once.
	MaxConcurrent int // default: 5

	// MaxResultsPerChannel caps hits taken from a single channel.
	MaxResultsPerChannel int // default: 5

	// Timeout is the per-channel search deadline.
	Timeout time.Duration // default: 10s
}

// LLMConfig controls the OpenAI-compatible client used for whitelist
// generation and generic product extraction.
type LLMConfig struct {
	APIKey  string
	Model   string // default: "gpt-4o-mini"
	BaseURL string // default: "https://api.openai.com/v1"
}

// NormalizeConfig controls product normalization.
type NormalizeConfig struct {
	// TargetCurrency is the ISO code all prices are converted to.
	TargetCurrency string // default: "USD"

	// Rates maps currency code -> units per USD (USD is the pivot).
	// Parsed from "EUR=0.85,GBP=0.73" form; merged over defaults.
	Rates map[string]float64
}

// AuthConfig controls API key authentication.
type AuthConfig struct {
	// Enabled toggles API key authentication.
	Enabled bool // default: false

	// APIKeys is the list of valid API keys.
	APIKeys []string
}

// RateLimitConfig controls per-key rate limiting.
type RateLimitConfig struct {
	// RequestsPerSecond is the sustained rate per API key.
	RequestsPerSecond float64 // default: 5

	// Burst is the maximum burst size per API key.
	Burst int // default: 10
}

// LogConfig controls structured logging.
type LogConfig struct {
	Level  string // default: "info"
	Format string // "json" or "text"; default: "json"
}

const defaultUserAgent = "Mozilla/5.0 (compatible; pricehound/1.0; +https://github.com/use-agent/pricehound)"

// Load reads configuration from environment variables with sane defaults.
func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Host: envOr("PRICEHOUND_HOST", "0.0.0.0"),
			Port: envIntOr("PRICEHOUND_PORT", 8080),
			Mode: envOr("PRICEHOUND_MODE", "release"),
		},
		Browser: BrowserConfig{
			Enabled:     envBoolOr("PRICEHOUND_BROWSER", true),
			Headless:    envBoolOr("PRICEHOUND_HEADLESS", true),
			MaxPages:    envIntOr("PRICEHOUND_MAX_PAGES", 10),
			NoSandbox:   envBoolOr("PRICEHOUND_NO_SANDBOX", false),
			BrowserBin:  os.Getenv("PRICEHOUND_BROWSER_BIN"),
			SettleDelay: envDurationOr("PRICEHOUND_SETTLE_DELAY", 300*time.Millisecond),
		},
		Fetcher: FetcherConfig{
			DomainLimit:     envIntOr("PRICEHOUND_DOMAIN_LIMIT", 2),
			DomainOverrides: envIntMapOr("PRICEHOUND_DOMAIN_OVERRIDES", nil),
			RequestTimeout:  envDurationOr("PRICEHOUND_REQUEST_TIMEOUT", 30*time.Second),
			UserAgent:       envOr("PRICEHOUND_USER_AGENT", defaultUserAgent),
		},
		Cache: CacheConfig{
			SQLitePath:    envOr("PRICEHOUND_CACHE_DB", "cache.db"),
			RedisURL:      os.Getenv("PRICEHOUND_REDIS_URL"),
			SweepInterval: envDurationOr("PRICEHOUND_CACHE_SWEEP", 5*time.Minute),
			WhitelistTTL:  envDurationOr("PRICEHOUND_WHITELIST_TTL", 24*time.Hour),
			ProductTTL:    envDurationOr("PRICEHOUND_PRODUCT_TTL", time.Hour),
		},
		Search: SearchConfig{
			SerpAPIKey:           os.Getenv("PRICEHOUND_SERPAPI_KEY"),
			BingAPIKey:           os.Getenv("PRICEHOUND_BING_KEY"),
			MaxConcurrent:        envIntOr("PRICEHOUND_SEARCH_CONCURRENCY", 5),
			MaxResultsPerChannel: envIntOr("PRICEHOUND_SEARCH_PER_CHANNEL", 5),
			Timeout:              envDurationOr("PRICEHOUND_SEARCH_TIMEOUT", 10*time.Second),
		},
		LLM: LLMConfig{
			APIKey:  os.Getenv("PRICEHOUND_LLM_KEY"),
			Model:   envOr("PRICEHOUND_LLM_MODEL", "gpt-4o-mini"),
			BaseURL: envOr("PRICEHOUND_LLM_BASE_URL", "https://api.openai.com/v1"),
		},
		Normalize: NormalizeConfig{
			TargetCurrency: envOr("PRICEHOUND_CURRENCY", "USD"),
			Rates:          envFloatMapOr("PRICEHOUND_RATES", nil),
		},
		Auth: AuthConfig{
			Enabled: envBoolOr("PRICEHOUND_AUTH_ENABLED", false),
			APIKeys: envSliceOr("PRICEHOUND_API_KEYS", nil),
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: envFloatOr("PRICEHOUND_RATE_RPS", 5.0),
			Burst:             envIntOr("PRICEHOUND_RATE_BURST", 10),
		},
		Log: LogConfig{
			Level:  envOr("PRICEHOUND_LOG_LEVEL", "info"),
			Format: envOr("PRICEHOUND_LOG_FORMAT", "json"),
		},
	}
}

// --- helper functions ---

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envBoolOr(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envFloatOr(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envDurationOr(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func envSliceOr(key string, fallback []string) []string {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		return result
	}
	return fallback
}

// envIntMapOr parses "key=int,key=int" pairs.
func envIntMapOr(key string, fallback map[string]int) map[string]int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	result := make(map[string]int)
	for _, pair := range strings.Split(v, ",") {
		k, val, ok := strings.Cut(strings.TrimSpace(pair), "=")
		if !ok {
			continue
		}
		if i, err := strconv.Atoi(strings.TrimSpace(val)); err == nil && i > 0 {
			result[strings.ToLower(strings.TrimSpace(k))] = i
		}
	}
	if len(result) == 0 {
		return fallback
	}
	return result
}

// envFloatMapOr parses "key=float,key=float" pairs.
func envFloatMapOr(key string, fallback map[string]float64) map[string]float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	result := make(map[string]float64)
	for _, pair := range strings.Split(v, ",") {
		k, val, ok := strings.Cut(strings.TrimSpace(pair), "=")
		if !ok {
			continue
		}
		if f, err := strconv.ParseFloat(strings.TrimSpace(val), 64); err == nil && f > 0 {
			result[strings.ToUpper(strings.TrimSpace(k))] = f
		}
	}
	if len(result) == 0 {
		return fallback
	}
	return result
}
