package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/pricehound/models"
)

// SearchRunner executes one product search end to end.
type SearchRunner interface {
	Run(ctx context.Context, req models.SearchRequest) (*models.SearchResponse, error)
}

// Search returns a handler for GET /api/v1/search.
func Search(p SearchRunner) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.SearchRequest
		if err := c.ShouldBindQuery(&req); err != nil {
			c.JSON(http.StatusBadRequest, models.ErrorResponse{
				Error: &models.ErrorDetail{
					Code:    models.ErrCodeInvalidInput,
					Message: err.Error(),
				},
			})
			return
		}

		resp, err := p.Run(c.Request.Context(), req)
		if err != nil {
			status, detail := errorStatus(err)
			c.JSON(status, models.ErrorResponse{Error: detail})
			return
		}

		c.JSON(http.StatusOK, resp)
	}
}

// errorStatus maps a pipeline error to an HTTP status and API detail.
func errorStatus(err error) (int, *models.ErrorDetail) {
	var crawlErr *models.CrawlError
	if !errors.As(err, &crawlErr) {
		return http.StatusInternalServerError, &models.ErrorDetail{
			Code:    models.ErrCodeInternal,
			Message: err.Error(),
		}
	}

	status := http.StatusInternalServerError
	switch crawlErr.Code {
	case models.ErrCodeInvalidInput:
		status = http.StatusBadRequest
	case models.ErrCodeUnauthorized, models.ErrCodeLLMAuthFailure:
		status = http.StatusUnauthorized
	case models.ErrCodeRateLimited, models.ErrCodeLLMRateLimited:
		status = http.StatusTooManyRequests
	case models.ErrCodeTimeout:
		status = http.StatusGatewayTimeout
	case models.ErrCodeNavigation:
		status = http.StatusBadGateway
	}
	return status, crawlErr.ToDetail()
}
