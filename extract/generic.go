package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"

	"github.com/use-agent/pricehound/llm"
	"github.com/use-agent/pricehound/models"
)

const extractSystemPrompt = "You are a product data extraction specialist. Extract product information from webpage content and return it as JSON."

// GenericLLMExtractor is the catch-all: it reduces any product page
// to Markdown and asks the model for the structured record. It always
// claims to handle a URL, so it must be last in the chain.
type GenericLLMExtractor struct {
	llm  *llm.Client
	conv *converter.Converter
}

func NewGenericLLMExtractor(client *llm.Client) *GenericLLMExtractor {
	return &GenericLLMExtractor{llm: client, conv: newMarkdownConverter()}
}

func (g *GenericLLMExtractor) Name() string { return "generic_llm" }

func (g *GenericLLMExtractor) CanHandle(string) bool { return true }

// llmProduct mirrors the JSON object the prompt requests. Prices are
// accepted as number or string — models do both.
type llmProduct struct {
	Title         string          `json:"title"`
	Price         json.RawMessage `json:"price"`
	Currency      string          `json:"currency"`
	StockState    string          `json:"stock_state"`
	StockText     string          `json:"stock_text"`
	OriginalPrice json.RawMessage `json:"original_price"`
	Description   string          `json:"description"`
}

func (g *GenericLLMExtractor) Extract(ctx context.Context, html, url string) (*models.RawProduct, error) {
	if !g.llm.Enabled() {
		return nil, nil
	}

	content := prepareContent(g.conv, html, url)

	response, err := g.llm.Complete(ctx, llm.CompletionRequest{
		System:   extractSystemPrompt,
		User:     buildExtractionPrompt(content, url),
		JSONMode: true,
	})
	if err != nil {
		return nil, err
	}

	parsed, err := parseExtraction(response)
	if err != nil {
		return nil, models.NewCrawlError(models.ErrCodeExtraction, "parse LLM extraction", err)
	}

	if strings.TrimSpace(parsed.Title) == "" {
		// The model found no product on the page.
		return nil, nil
	}

	return &models.RawProduct{
		Title:         parsed.Title,
		URL:           url,
		Price:         decodePrice(parsed.Price),
		OriginalPrice: decodePriceText(parsed.OriginalPrice),
		Currency:      strings.ToUpper(parsed.Currency),
		StockState:    parsed.StockState,
		StockText:     parsed.StockText,
		Description:   parsed.Description,
	}, nil
}

func buildExtractionPrompt(content, url string) string {
	return fmt.Sprintf(`Extract product information from the following webpage content. Return ONLY a valid JSON object with the specified fields.

URL: %s

Content:
%s

Extract the following information and return as JSON:
{
  "title": "Full product name/title",
  "price": 0.00,
  "currency": "USD",
  "stock_state": "in_stock|out_of_stock|unknown",
  "stock_text": "Raw availability text found",
  "original_price": 0.00,
  "description": "Product description if available"
}

Rules:
- price: the main selling price as a number (no currency symbol)
- currency: the currency code (USD, EUR, GBP, etc.)
- stock_state: determine from availability text
- original_price: only if there is a sale/discount
- stock_text: raw text about stock status
- description: brief product description if available
- If this page is not a product page, set title to null
- If a field cannot be determined, use null

Return ONLY the JSON object, no other text.`, url, content)
}

// parseExtraction tolerates prose around the JSON object by scanning
// for the outermost braces.
func parseExtraction(response string) (*llmProduct, error) {
	start := strings.IndexByte(response, '{')
	end := strings.LastIndexByte(response, '}')
	if start < 0 || end <= start {
		return nil, fmt.Errorf("no JSON object in response")
	}

	var parsed llmProduct
	if err := json.Unmarshal([]byte(response[start:end+1]), &parsed); err != nil {
		return nil, err
	}
	return &parsed, nil
}

func decodePrice(raw json.RawMessage) *float64 {
	text := decodePriceText(raw)
	if text == "" {
		return nil
	}
	v, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return nil
	}
	return &v
}

// decodePriceText unquotes string-typed prices and passes numbers
// through; null and absent both become "".
func decodePriceText(raw json.RawMessage) string {
	text := strings.TrimSpace(string(raw))
	if text == "" || text == "null" {
		return ""
	}
	if unquoted, err := strconv.Unquote(text); err == nil {
		text = unquoted
	}
	return strings.TrimSpace(text)
}
