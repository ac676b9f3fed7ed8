package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/pricehound/cache"
	"github.com/use-agent/pricehound/models"
)

// CacheStats returns a handler for GET /api/v1/cache/stats.
func CacheStats(store *cache.Tiered) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, store.Stats(c.Request.Context()))
	}
}

// CacheClear returns a handler for DELETE /api/v1/cache.
func CacheClear(store *cache.Tiered) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := store.Flush(c.Request.Context()); err != nil {
			c.JSON(http.StatusInternalServerError, models.ErrorResponse{
				Error: &models.ErrorDetail{
					Code:    models.ErrCodeCacheBackend,
					Message: "failed to clear cache",
				},
			})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "cleared"})
	}
}
