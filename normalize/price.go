package normalize

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

// Price patterns are tried in order; the first capture group is the
// numeric amount. Thousands separators are commas, cents optional.
var pricePatterns = []*regexp.Regexp{
	regexp.MustCompile(`[$€£¥₹](\d+(?:,\d{3})*(?:\.\d{2})?)`),
	regexp.MustCompile(`(?i)(\d+(?:,\d{3})*(?:\.\d{2})?)\s*(?:USD|EUR|GBP|JPY|CAD|AUD|CHF|CNY|INR)`),
	regexp.MustCompile(`(?i)(\d+(?:,\d{3})*(?:\.\d{2})?)\s*dollars`),
	regexp.MustCompile(`(\d+(?:,\d{3})*(?:\.\d{2})?)\s*[$€£]`),
}

// currencyMarkers pairs a symbol or code with its ISO currency. Order
// matters: the first marker found in the text wins.
var currencyMarkers = []struct {
	pattern *regexp.Regexp
	code    string
}{
	{regexp.MustCompile(`\$`), "USD"},
	{regexp.MustCompile(`(?i)\bUSD\b`), "USD"},
	{regexp.MustCompile(`€`), "EUR"},
	{regexp.MustCompile(`(?i)\bEUR\b`), "EUR"},
	{regexp.MustCompile(`£`), "GBP"},
	{regexp.MustCompile(`(?i)\bGBP\b`), "GBP"},
	{regexp.MustCompile(`¥`), "JPY"},
	{regexp.MustCompile(`(?i)\bJPY\b`), "JPY"},
	{regexp.MustCompile(`₹`), "INR"},
	{regexp.MustCompile(`(?i)\bINR\b`), "INR"},
	{regexp.MustCompile(`(?i)\bCAD\b`), "CAD"},
	{regexp.MustCompile(`(?i)\bAUD\b`), "AUD"},
	{regexp.MustCompile(`(?i)\bCHF\b`), "CHF"},
	{regexp.MustCompile(`(?i)\bCNY\b`), "CNY"},
}

// ExtractPrice pulls the first recognizable price amount out of free
// text, or nil when none is found.
func ExtractPrice(text string) *float64 {
	if text == "" {
		return nil
	}
	for _, pattern := range pricePatterns {
		m := pattern.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		amount, err := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", ""), 64)
		if err != nil {
			continue
		}
		return &amount
	}
	return nil
}

// InferCurrency guesses the ISO currency code from symbols or codes in
// price text, defaulting to USD.
func InferCurrency(text string) string {
	for _, marker := range currencyMarkers {
		if marker.pattern.MatchString(text) {
			return marker.code
		}
	}
	return "USD"
}

func roundCents(v float64) float64 {
	return math.Round(v*100) / 100
}
