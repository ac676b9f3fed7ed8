package models

// SearchResponse is the response for GET /api/v1/search.
type SearchResponse struct {
	// Query echoes the original search keyword.
	Query string `json:"query"`

	// TotalResults is len(Results).
	TotalResults int `json:"total_results"`

	// Results is the ranked, deduplicated product list.
	Results []Product `json:"results"`

	// SearchTimeMs is the end-to-end pipeline duration.
	SearchTimeMs int64 `json:"search_time_ms"`

	// ChannelsUsed lists the domains that were searched.
	ChannelsUsed []string `json:"channels_used"`

	// CacheStatus indicates whether the response was served from cache.
	// Values: "hit", "miss", or empty (caching not in play).
	CacheStatus string `json:"cache_status,omitempty"`

	// Error is populated only on failure responses.
	Error *ErrorDetail `json:"error,omitempty"`
}

// ErrorResponse is the envelope for non-2xx responses.
type ErrorResponse struct {
	Error *ErrorDetail `json:"error"`
}

// PolicyResponse is the response for GET /api/v1/policy/:domain.
type PolicyResponse struct {
	Domain         string `json:"domain"`
	Exists         bool   `json:"exists"`
	AllowsCrawling bool   `json:"allows_crawling"`
}

// ChannelsResponse is the response for GET /api/v1/channels.
type ChannelsResponse struct {
	Channels         []ChannelInfo `json:"channels"`
	Total            int           `json:"total"`
	SupportedLocales []string      `json:"supported_locales"`
}

// CacheStatsResponse is the response for GET /api/v1/cache/stats.
type CacheStatsResponse struct {
	DurableEntries int64 `json:"durable_entries"`
	FastEntries    int64 `json:"fast_entries"`
	FastTier       bool  `json:"fast_tier"`
}

// HealthResponse is the response for GET /api/v1/health.
type HealthResponse struct {
	Status    string    `json:"status"` // "healthy" or "degraded"
	Uptime    string    `json:"uptime"`
	PoolStats PoolStats `json:"pool_stats"`
	Version   string    `json:"version"`
}

// PoolStats reports the state of the browser page pool. MaxPages is 0
// when the render capability is unavailable.
type PoolStats struct {
	MaxPages    int `json:"max_pages"`
	ActivePages int `json:"active_pages"`
}
