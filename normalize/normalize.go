// Package normalize converts the loosely-typed records extractors pull
// from retailer pages into canonical products: one currency, one stock
// vocabulary, cleaned titles, near-duplicates collapsed.
package normalize

import (
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/use-agent/pricehound/models"
)

// defaultRates maps currency code to units per USD. USD is the pivot
// for all conversions.
var defaultRates = map[string]float64{
	"USD": 1.0,
	"EUR": 0.85,
	"GBP": 0.73,
	"JPY": 110.0,
	"CAD": 1.25,
	"AUD": 1.35,
	"CHF": 0.92,
	"CNY": 6.45,
	"INR": 74.0,
}

// Normalizer carries the conversion rate table. Construct with New;
// the zero value has no rates.
type Normalizer struct {
	rates map[string]float64

	now func() time.Time
}

// New builds a Normalizer with the default rate table, overlaid with
// any configured overrides.
func New(overrides map[string]float64) *Normalizer {
	rates := make(map[string]float64, len(defaultRates)+len(overrides))
	for code, rate := range defaultRates {
		rates[code] = rate
	}
	for code, rate := range overrides {
		rates[strings.ToUpper(code)] = rate
	}
	return &Normalizer{rates: rates, now: time.Now}
}

// Normalize converts raw records into canonical products in the target
// currency, drops unusable records, collapses near-duplicate titles,
// and orders the survivors cheapest-first. A malformed record is
// logged and skipped; it never aborts the batch.
func (n *Normalizer) Normalize(raw []models.RawProduct, targetCurrency string) []models.Product {
	if len(raw) == 0 {
		return nil
	}
	targetCurrency = strings.ToUpper(targetCurrency)

	products := make([]models.Product, 0, len(raw))
	for _, record := range raw {
		product, ok := n.normalizeOne(record, targetCurrency)
		if !ok {
			continue
		}
		products = append(products, product)
	}

	products = dedupe(products)
	sortProducts(products)
	return products
}

func (n *Normalizer) normalizeOne(raw models.RawProduct, targetCurrency string) (models.Product, bool) {
	title := stripRetailerSuffix(cleanText(raw.Title))
	pageURL := ensureURL(raw.URL)

	if title == "" && pageURL == "" {
		slog.Warn("normalize: record has neither title nor url, dropping", "retailer", raw.Retailer)
		return models.Product{}, false
	}

	price, currency := n.resolvePrice(raw, targetCurrency)
	originalPrice := n.resolveOriginalPrice(raw, targetCurrency)

	return models.Product{
		Retailer:      resolveRetailer(raw.Retailer, pageURL),
		Title:         title,
		URL:           pageURL,
		Price:         price,
		Currency:      currency,
		StockState:    resolveStock(raw),
		OriginalPrice: originalPrice,
		FetchedAt:     n.now().Unix(),
		Description:   cleanText(firstNonEmpty(raw.Description, raw.Snippet)),
		ImageURL:      ensureURL(raw.ImageURL),
		Confidence:    raw.Confidence,
	}, true
}

// resolvePrice prefers the structured price field; failing that it
// scans the free-text price fields and the snippet. The returned
// currency is always the target currency: anything else is converted.
func (n *Normalizer) resolvePrice(raw models.RawProduct, targetCurrency string) (*float64, string) {
	var (
		price    *float64
		currency = targetCurrency
	)

	if raw.Price != nil {
		v := *raw.Price
		price = &v
		if raw.Currency != "" {
			currency = strings.ToUpper(raw.Currency)
		}
	}

	if price == nil {
		text := firstNonEmpty(raw.PriceText, raw.Snippet)
		if text != "" {
			price = ExtractPrice(text)
			currency = InferCurrency(text)
		}
	}

	if price == nil {
		return nil, targetCurrency
	}

	converted := n.Convert(*price, currency, targetCurrency)
	return &converted, targetCurrency
}

func (n *Normalizer) resolveOriginalPrice(raw models.RawProduct, targetCurrency string) *float64 {
	if raw.OriginalPrice == "" {
		return nil
	}
	// Extractors emit either a bare amount ("899.99") or marked-up
	// price text ("$1,099.00").
	var price *float64
	if v, err := strconv.ParseFloat(strings.TrimSpace(raw.OriginalPrice), 64); err == nil {
		price = &v
	} else {
		price = ExtractPrice(raw.OriginalPrice)
	}
	if price == nil {
		return nil
	}
	currency := targetCurrency
	if raw.Currency != "" {
		currency = strings.ToUpper(raw.Currency)
	}
	converted := n.Convert(*price, currency, targetCurrency)
	return &converted
}

// Convert moves an amount between currencies through the USD pivot,
// rounded to cents. A missing or zero rate passes the amount through
// unchanged with a warning; conversion never fails.
func (n *Normalizer) Convert(amount float64, from, to string) float64 {
	from, to = strings.ToUpper(from), strings.ToUpper(to)
	if from == to {
		return amount
	}

	fromRate, ok := n.rates[from]
	if !ok || fromRate == 0 {
		slog.Warn("normalize: no conversion rate, passing amount through", "currency", from)
		return amount
	}
	toRate, ok := n.rates[to]
	if !ok || toRate == 0 {
		slog.Warn("normalize: no conversion rate, passing amount through", "currency", to)
		return amount
	}

	return roundCents(amount / fromRate * toRate)
}

// SupportedCurrencies lists the codes the rate table can convert.
func (n *Normalizer) SupportedCurrencies() []string {
	codes := make([]string, 0, len(n.rates))
	for code := range n.rates {
		codes = append(codes, code)
	}
	return codes
}

func resolveStock(raw models.RawProduct) string {
	switch raw.StockState {
	case models.StockIn, models.StockOut, models.StockUnknown:
		return raw.StockState
	}
	return InferStock(firstNonEmpty(raw.StockText, raw.Snippet))
}

// resolveRetailer falls back to the first label of the URL's host when
// the extractor did not name the retailer.
func resolveRetailer(retailer, pageURL string) string {
	name := retailer
	if name == "" {
		name = hostOf(pageURL)
	}
	if name == "" {
		return "unknown"
	}

	name = strings.TrimPrefix(name, "https://")
	name = strings.TrimPrefix(name, "http://")
	name = strings.TrimPrefix(name, "www.")
	if i := strings.IndexByte(name, '.'); i >= 0 {
		name = name[:i]
	}
	return titleCase(name)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
