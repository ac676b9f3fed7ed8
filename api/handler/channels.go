package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/pricehound/models"
	"github.com/use-agent/pricehound/whitelist"
)

// maxChannelsPerRequest caps the channel list one call may return.
const maxChannelsPerRequest = 20

// ChannelSource resolves keyword+locale to retail channels.
type ChannelSource interface {
	Generate(ctx context.Context, keyword, locale string, maxChannels int) []models.ChannelInfo
}

// Channels returns a handler for GET /api/v1/channels.
//
// With a ?query= the channel list is generated for that keyword; without
// one the locale's static fallback set is returned.
func Channels(gen ChannelSource) gin.HandlerFunc {
	return func(c *gin.Context) {
		locale := c.DefaultQuery("locale", "US")

		var channels []models.ChannelInfo
		if query := c.Query("query"); query != "" {
			channels = gen.Generate(c.Request.Context(), query, locale, maxChannelsPerRequest)
		} else {
			channels = whitelist.FallbackChannels(locale)
		}

		c.JSON(http.StatusOK, models.ChannelsResponse{
			Channels:         channels,
			Total:            len(channels),
			SupportedLocales: whitelist.SupportedLocales(),
		})
	}
}
