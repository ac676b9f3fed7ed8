// Package whitelist produces the list of retail channels worth
// searching for a keyword. An LLM proposes candidates, which are then
// validated, ranked, and cached; when no LLM is configured or the call
// fails, a static per-locale fallback set is used instead.
package whitelist

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/use-agent/pricehound/cache"
	"github.com/use-agent/pricehound/llm"
	"github.com/use-agent/pricehound/models"
)

const systemPrompt = "You are an expert e-commerce analyst. Generate a list of relevant e-commerce domains for product searches."

// Domains containing these words are content sites, not retail
// channels, regardless of what the model claims.
var junkDomainWords = []string{"forum", "news", "blog", "wiki", "download"}

// Generator resolves keyword+locale to ranked retail channels.
type Generator struct {
	llm   *llm.Client
	store *cache.Tiered
	ttl   time.Duration
}

// NewGenerator builds a Generator. store may be nil to disable
// caching; llm may be disabled (no API key), in which case only the
// fallback sets are served.
func NewGenerator(client *llm.Client, store *cache.Tiered, ttl time.Duration) *Generator {
	return &Generator{llm: client, store: store, ttl: ttl}
}

// Generate returns up to maxChannels channels for the keyword. It
// never fails: LLM errors degrade to the locale's fallback set.
func (g *Generator) Generate(ctx context.Context, keyword, locale string, maxChannels int) []models.ChannelInfo {
	cacheKey := fmt.Sprintf("whitelist:%s:%s", keyword, locale)

	if g.store != nil {
		var cached []models.ChannelInfo
		if g.store.GetJSON(ctx, cacheKey, &cached) {
			slog.Info("whitelist: cache hit", "keyword", keyword, "locale", locale)
			return cached
		}
	}

	if !g.llm.Enabled() {
		slog.Info("whitelist: llm not configured, using fallback channels", "locale", locale)
		return FallbackChannels(locale)
	}

	channels, err := g.callLLM(ctx, keyword, locale, maxChannels)
	if err != nil {
		slog.Error("whitelist: generation failed, using fallback channels", "keyword", keyword, "error", err)
		return FallbackChannels(locale)
	}

	channels = validateChannels(channels, maxChannels)
	if len(channels) == 0 {
		slog.Warn("whitelist: no channels survived validation, using fallback", "keyword", keyword)
		return FallbackChannels(locale)
	}

	if g.store != nil {
		g.store.SetJSON(ctx, cacheKey, channels, g.ttl)
	}

	return channels
}

func (g *Generator) callLLM(ctx context.Context, keyword, locale string, maxChannels int) ([]models.ChannelInfo, error) {
	content, err := g.llm.Complete(ctx, llm.CompletionRequest{
		System:   systemPrompt,
		User:     buildPrompt(keyword, locale, maxChannels),
		JSONMode: true,
	})
	if err != nil {
		return nil, err
	}
	return parseChannels(content)
}

func buildPrompt(keyword, locale string, maxChannels int) string {
	return fmt.Sprintf(`Generate a whitelist of %d most relevant e-commerce domains for searching: %q

Requirements:
- Focus on %s market
- Include official stores, major retailers, and specialized platforms
- Exclude content sites, review sites, or C2C platforms
- Only return valid, existing domains
- Do not make up domains

Output format (JSON only):
{
  "channels": [
    {
      "domain": "example.com",
      "label": "official|big_box|vertical_electronics|specialized",
      "locale": %q,
      "confidence": 0.95,
      "candidate_reason": "Official brand store"
    }
  ]
}

Labels:
- official: Brand's official store
- big_box: Major retail chains (Best Buy, Walmart, Target)
- vertical_electronics: Electronics specialists (Newegg, B&H Photo)
- specialized: Category-specific retailers
- marketplace: Amazon, eBay (if relevant)

Keyword: %s
Locale: %s
Max channels: %d`, maxChannels, keyword, locale, locale, keyword, locale, maxChannels)
}

// parseChannels pulls the channel list out of a model response: a
// ```json fence when present, otherwise the outermost brace span.
func parseChannels(content string) ([]models.ChannelInfo, error) {
	payload := content
	if i := strings.Index(content, "```json"); i >= 0 {
		payload = content[i+len("```json"):]
		if j := strings.Index(payload, "```"); j >= 0 {
			payload = payload[:j]
		}
	} else {
		start := strings.IndexByte(content, '{')
		end := strings.LastIndexByte(content, '}')
		if start < 0 || end <= start {
			return nil, fmt.Errorf("whitelist: no JSON object in LLM response")
		}
		payload = content[start : end+1]
	}

	var parsed struct {
		Channels []models.ChannelInfo `json:"channels"`
	}
	if err := json.Unmarshal([]byte(strings.TrimSpace(payload)), &parsed); err != nil {
		return nil, fmt.Errorf("whitelist: parse LLM response: %w", err)
	}
	return parsed.Channels, nil
}

// validateChannels cleans domains, discards junk, and keeps the top
// maxChannels by confidence.
func validateChannels(channels []models.ChannelInfo, maxChannels int) []models.ChannelInfo {
	validated := make([]models.ChannelInfo, 0, len(channels))

	for _, channel := range channels {
		domain := strings.TrimPrefix(channel.Domain, "https://")
		domain = strings.TrimPrefix(domain, "http://")
		domain = strings.TrimPrefix(domain, "www.")
		domain = strings.TrimSuffix(strings.ToLower(domain), "/")

		if domain == "" || !strings.Contains(domain, ".") {
			continue
		}
		if containsAny(domain, junkDomainWords) {
			continue
		}

		channel.Domain = domain
		validated = append(validated, channel)
	}

	sort.SliceStable(validated, func(i, j int) bool {
		return validated[i].Confidence > validated[j].Confidence
	})
	if maxChannels > 0 && len(validated) > maxChannels {
		validated = validated[:maxChannels]
	}
	return validated
}

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}

// FallbackChannels returns the static channel set for a locale,
// defaulting to the US set for unknown locales.
func FallbackChannels(locale string) []models.ChannelInfo {
	if channels, ok := fallbackChannels[strings.ToUpper(locale)]; ok {
		return channels
	}
	return fallbackChannels["US"]
}

// SupportedLocales lists the locales with a curated fallback set.
func SupportedLocales() []string {
	locales := make([]string, 0, len(fallbackChannels))
	for locale := range fallbackChannels {
		locales = append(locales, locale)
	}
	sort.Strings(locales)
	return locales
}

var fallbackChannels = map[string][]models.ChannelInfo{
	"US": {
		{Domain: "amazon.com", Label: "marketplace", Locale: "US", Confidence: 0.9},
		{Domain: "bestbuy.com", Label: "big_box", Locale: "US", Confidence: 0.9},
		{Domain: "walmart.com", Label: "big_box", Locale: "US", Confidence: 0.9},
		{Domain: "target.com", Label: "big_box", Locale: "US", Confidence: 0.8},
		{Domain: "newegg.com", Label: "vertical_electronics", Locale: "US", Confidence: 0.9},
		{Domain: "bhphotovideo.com", Label: "vertical_electronics", Locale: "US", Confidence: 0.8},
	},
	"UK": {
		{Domain: "amazon.co.uk", Label: "marketplace", Locale: "UK", Confidence: 0.9},
		{Domain: "currys.co.uk", Label: "big_box", Locale: "UK", Confidence: 0.9},
		{Domain: "argos.co.uk", Label: "big_box", Locale: "UK", Confidence: 0.8},
		{Domain: "johnlewis.com", Label: "big_box", Locale: "UK", Confidence: 0.8},
	},
}
