// Package extract turns fetched product-page HTML into raw product
// records. Retailer-specific extractors parse known DOM structures;
// the generic LLM extractor is the fallback for everything else.
package extract

import (
	"context"

	"github.com/use-agent/pricehound/models"
)

// Extractor pulls a raw product record out of one page. Extract
// returns (nil, nil) when the page holds no product — that is a
// skip, not an error.
type Extractor interface {
	// Name identifies the extractor in logs.
	Name() string

	// CanHandle reports whether this extractor understands pages at
	// the given URL.
	CanHandle(url string) bool

	// Extract parses the page.
	Extract(ctx context.Context, html, url string) (*models.RawProduct, error)
}

// Chain is an ordered extractor list; the first CanHandle match wins.
// Keep the generic fallback last.
type Chain []Extractor

// For selects the extractor for a URL, or nil when none matches.
func (c Chain) For(url string) Extractor {
	for _, e := range c {
		if e.CanHandle(url) {
			return e
		}
	}
	return nil
}
