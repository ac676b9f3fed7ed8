package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/pricehound/fetcher"
	"github.com/use-agent/pricehound/models"
)

// PolicyChecker resolves a domain's robots.txt crawl policy.
type PolicyChecker interface {
	CheckPolicy(ctx context.Context, domain string) fetcher.PolicyResult
}

// Policy returns a handler for GET /api/v1/policy/:domain.
func Policy(f PolicyChecker) gin.HandlerFunc {
	return func(c *gin.Context) {
		domain := c.Param("domain")
		if domain == "" {
			c.JSON(http.StatusBadRequest, models.ErrorResponse{
				Error: &models.ErrorDetail{
					Code:    models.ErrCodeInvalidInput,
					Message: "domain is required",
				},
			})
			return
		}

		result := f.CheckPolicy(c.Request.Context(), domain)
		c.JSON(http.StatusOK, models.PolicyResponse{
			Domain:         result.Domain,
			Exists:         result.Exists,
			AllowsCrawling: result.AllowsCrawling,
		})
	}
}
