package fetcher

import (
	"net/url"
	"strings"
)

// Strategy names the retrieval mechanism used for a fetch.
const (
	StrategyHTTP    = "http"
	StrategyBrowser = "browser"
)

// FetchTarget is one URL to retrieve. Domain is derived once at
// construction and never recomputed.
type FetchTarget struct {
	URL    string
	Domain string

	// Render requests the browser strategy. The fetcher silently
	// downgrades to HTTP when the render capability is unavailable.
	Render bool
}

// NewTarget builds a FetchTarget with its derived domain.
func NewTarget(rawURL string, render bool) FetchTarget {
	return FetchTarget{
		URL:    rawURL,
		Domain: DomainOf(rawURL),
		Render: render,
	}
}

// DomainOf extracts the host from a URL, lowercased, with any "www."
// prefix stripped. Unparseable input falls back to the lowercased
// input string so targets still group deterministically.
func DomainOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return strings.ToLower(rawURL)
	}
	domain := strings.ToLower(u.Hostname())
	return strings.TrimPrefix(domain, "www.")
}

// FetchResult is the outcome of one fetch attempt. Exactly one is
// produced per input target; it is never mutated after return.
type FetchResult struct {
	URL        string            `json:"url"`
	FinalURL   string            `json:"final_url"`
	StatusCode int               `json:"status_code"`
	Body       string            `json:"body"`
	Headers    map[string]string `json:"headers"`
	Strategy   string            `json:"strategy"`
	Success    bool              `json:"success"`
	Error      string            `json:"error,omitempty"`
}

// PolicyResult is the outcome of a robots.txt policy check.
type PolicyResult struct {
	Domain         string
	Exists         bool
	AllowsCrawling bool
}
