// Package api builds the HTTP surface: routes, auth, and rate limiting.
package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/pricehound/api/handler"
	"github.com/use-agent/pricehound/api/middleware"
	"github.com/use-agent/pricehound/cache"
	"github.com/use-agent/pricehound/config"
	"github.com/use-agent/pricehound/fetcher"
)

// NewRouter creates a configured Gin engine with all routes and middleware.
//
// Middleware chain:
//
//	Global:  Recovery → Logger
//	API:     Auth (if enabled) → RateLimit
//
// Health endpoint is intentionally outside auth so monitoring probes always work.
func NewRouter(p handler.SearchRunner, gen handler.ChannelSource, f *fetcher.Fetcher, store *cache.Tiered, cfg *config.Config, startTime time.Time) *gin.Engine {
	gin.SetMode(cfg.Server.Mode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.Logger())

	v1 := r.Group("/api/v1")

	// Health — no auth required.
	v1.GET("/health", handler.Health(f, startTime))

	// Protected group — auth + rate limit.
	protected := v1.Group("")
	if cfg.Auth.Enabled {
		protected.Use(middleware.Auth(cfg.Auth.APIKeys))
	}
	protected.Use(middleware.RateLimit(cfg.RateLimit))

	// Product search
	protected.GET("/search", handler.Search(p))

	// Channel whitelist
	protected.GET("/channels", handler.Channels(gen))

	// Crawl policy lookup
	protected.GET("/policy/:domain", handler.Policy(f))

	// Cache administration
	protected.GET("/cache/stats", handler.CacheStats(store))
	protected.DELETE("/cache", handler.CacheClear(store))

	return r
}
