package normalize

import (
	"html"
	"net/url"
	"regexp"
	"strings"
	"unicode"

	"github.com/use-agent/pricehound/models"
)

var whitespaceRE = regexp.MustCompile(`\s+`)

// Retailer suffixes are stripped from the tail of cleaned titles. The
// first match wins.
var retailerSuffixes = []string{
	" - Amazon.com",
	" | Amazon.com",
	" - Best Buy",
	" | Best Buy",
	" - Walmart",
	" | Walmart",
	" - Target",
	" | Target",
	" - Newegg.com",
	" | Newegg.com",
}

var inStockPhrases = []string{
	"in stock",
	"available",
	"add to cart",
	"add to basket",
	"buy now",
	"purchase",
	"order now",
	"pickup today",
	"ship to store",
	"free shipping",
}

var outOfStockPhrases = []string{
	"out of stock",
	"unavailable",
	"sold out",
	"currently unavailable",
	"backordered",
	"pre-order",
	"coming soon",
	"notify when available",
}

// cleanText decodes HTML entities and collapses runs of whitespace.
func cleanText(text string) string {
	if text == "" {
		return ""
	}
	text = html.UnescapeString(text)
	return strings.TrimSpace(whitespaceRE.ReplaceAllString(text, " "))
}

func stripRetailerSuffix(title string) string {
	for _, suffix := range retailerSuffixes {
		if strings.HasSuffix(title, suffix) {
			return strings.TrimSpace(strings.TrimSuffix(title, suffix))
		}
	}
	return title
}

// InferStock classifies availability text by keyword. In-stock phrases
// are checked first; "currently unavailable" therefore loses to an
// "add to cart" appearing earlier on the same page text, matching how
// retailers present the dominant state.
func InferStock(text string) string {
	if text == "" {
		return models.StockUnknown
	}
	lower := strings.ToLower(text)
	for _, phrase := range inStockPhrases {
		if strings.Contains(lower, phrase) {
			return models.StockIn
		}
	}
	for _, phrase := range outOfStockPhrases {
		if strings.Contains(lower, phrase) {
			return models.StockOut
		}
	}
	return models.StockUnknown
}

// ensureURL protocol-qualifies bare-host URLs. Rooted-relative paths
// carry no host to guess, so they are rejected as malformed.
func ensureURL(raw string) string {
	if raw == "" {
		return ""
	}
	if strings.HasPrefix(raw, "http://") || strings.HasPrefix(raw, "https://") {
		return raw
	}
	if strings.HasPrefix(raw, "//") {
		return "https:" + raw
	}
	if strings.HasPrefix(raw, "/") {
		return ""
	}
	return "https://" + raw
}

func hostOf(pageURL string) string {
	u, err := url.Parse(pageURL)
	if err != nil {
		return ""
	}
	return u.Hostname()
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	runes := []rune(s)
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}
