package extract

import (
	"context"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/use-agent/pricehound/models"
	"github.com/use-agent/pricehound/normalize"
)

// Amazon's product DOM has been stable for years but varies across
// page templates, so every field is tried against several selectors.
var (
	amazonTitleSelectors = []string{
		"#productTitle",
		"h1.a-size-large",
		"h1.a-size-base-plus",
		".product-title",
	}
	amazonPriceSelectors = []string{
		".a-price .a-offscreen",
		".a-price-current .a-offscreen",
		"#priceblock_ourprice",
		"#priceblock_dealprice",
		".a-price-range .a-offscreen",
		".a-price-whole",
	}
	amazonOriginalPriceSelectors = []string{
		".a-text-strike",
		".a-price.a-text-price .a-offscreen",
	}
	amazonImageSelectors = []string{
		"#landingImage",
		"#main-image",
		".a-dynamic-image",
	}
)

// AmazonExtractor parses Amazon product pages directly, without any
// LLM round trip.
type AmazonExtractor struct{}

func NewAmazonExtractor() *AmazonExtractor { return &AmazonExtractor{} }

func (a *AmazonExtractor) Name() string { return "amazon" }

func (a *AmazonExtractor) CanHandle(url string) bool {
	return strings.Contains(strings.ToLower(url), "amazon.")
}

func (a *AmazonExtractor) Extract(_ context.Context, html, url string) (*models.RawProduct, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, models.NewCrawlError(models.ErrCodeExtraction, "parse amazon page", err)
	}

	title := a.title(doc)
	if title == "" {
		// A page without a product title is a search page, a captcha
		// interstitial, or a dead listing.
		return nil, nil
	}

	return &models.RawProduct{
		Retailer:      "amazon.com",
		Title:         title,
		URL:           url,
		Price:         firstPrice(doc, amazonPriceSelectors),
		OriginalPrice: firstText(doc, amazonOriginalPriceSelectors),
		Currency:      "USD",
		StockState:    a.stockState(doc),
		StockText:     strings.TrimSpace(doc.Find("#availability").First().Text()),
		Description:   a.description(doc),
		ImageURL:      a.imageURL(doc),
	}, nil
}

func (a *AmazonExtractor) title(doc *goquery.Document) string {
	if title := firstText(doc, amazonTitleSelectors); title != "" {
		return title
	}
	// Fall back to the page title, minus Amazon's suffix.
	title := strings.TrimSpace(doc.Find("title").First().Text())
	if i := strings.Index(title, "Amazon.com"); i >= 0 {
		title = strings.TrimSpace(strings.TrimRight(title[:i], " -|:"))
	}
	return title
}

func (a *AmazonExtractor) stockState(doc *goquery.Document) string {
	for _, sel := range []string{"#availability .a-color-state", "#availability .a-color-price"} {
		text := strings.ToLower(strings.TrimSpace(doc.Find(sel).First().Text()))
		if text == "" {
			continue
		}
		for _, word := range []string{"out of stock", "unavailable", "sold out"} {
			if strings.Contains(text, word) {
				return models.StockOut
			}
		}
	}

	text := strings.ToLower(strings.TrimSpace(doc.Find("#availability .a-color-success").First().Text()))
	for _, word := range []string{"in stock", "available"} {
		if strings.Contains(text, word) {
			return models.StockIn
		}
	}

	if doc.Find("#add-to-cart-button").Length() > 0 {
		return models.StockIn
	}
	return ""
}

func (a *AmazonExtractor) description(doc *goquery.Document) string {
	if desc := strings.TrimSpace(doc.Find("#productDescription p").First().Text()); len(desc) > 10 {
		return desc
	}

	var features []string
	doc.Find("#feature-bullets .a-list-item").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		if text := strings.TrimSpace(sel.Text()); len(text) > 5 {
			features = append(features, text)
		}
		return len(features) < 5
	})
	if len(features) > 0 {
		return "Features: " + strings.Join(features, "; ")
	}
	return ""
}

func (a *AmazonExtractor) imageURL(doc *goquery.Document) string {
	for _, sel := range amazonImageSelectors {
		img := doc.Find(sel).First()
		src, ok := img.Attr("src")
		if !ok {
			src, _ = img.Attr("data-src")
		}
		if strings.HasPrefix(src, "http") {
			return src
		}
	}
	return ""
}

func firstText(doc *goquery.Document, selectors []string) string {
	for _, sel := range selectors {
		if text := strings.TrimSpace(doc.Find(sel).First().Text()); text != "" {
			return text
		}
	}
	return ""
}

func firstPrice(doc *goquery.Document, selectors []string) *float64 {
	for _, sel := range selectors {
		text := strings.TrimSpace(doc.Find(sel).First().Text())
		if text == "" {
			continue
		}
		if price := normalize.ExtractPrice(text); price != nil {
			return price
		}
	}
	return nil
}
