package models

// Stock states carried by normalized products. Anything a source
// reports that is not one of these is mapped to StockUnknown.
const (
	StockIn      = "in_stock"
	StockOut     = "out_of_stock"
	StockUnknown = "unknown"
)

// ChannelInfo describes one retail channel produced by whitelist
// generation.
type ChannelInfo struct {
	// Domain is the channel host without protocol or www. prefix.
	Domain string `json:"domain"`

	// Label classifies the channel: "official", "big_box",
	// "vertical_electronics", "specialized", or "marketplace".
	Label string `json:"label"`

	// Locale is the market the channel serves (e.g. "US").
	Locale string `json:"locale"`

	// Confidence is the generator's relevance score in [0,1].
	Confidence float64 `json:"confidence"`

	// CandidateReason explains why the channel was included.
	CandidateReason string `json:"candidate_reason,omitempty"`
}

// SearchHit is one result from a domain-restricted product search.
type SearchHit struct {
	Title      string  `json:"title"`
	URL        string  `json:"url"`
	Snippet    string  `json:"snippet"`
	Channel    string  `json:"channel"`
	Label      string  `json:"channel_label,omitempty"`
	Confidence float64 `json:"confidence"`
}

// RawProduct is the loosely-typed record an extractor pulls from one
// page. Fields are pointers/empty when the source did not provide
// them; the normalizer decides what survives.
type RawProduct struct {
	Retailer      string   `json:"retailer,omitempty"`
	Title         string   `json:"title,omitempty"`
	URL           string   `json:"url,omitempty"`
	Price         *float64 `json:"price,omitempty"`
	PriceText     string   `json:"price_text,omitempty"`
	OriginalPrice string   `json:"original_price,omitempty"`
	Currency      string   `json:"currency,omitempty"`
	StockState    string   `json:"stock_state,omitempty"`
	StockText     string   `json:"stock_text,omitempty"`
	Snippet       string   `json:"snippet,omitempty"`
	Description   string   `json:"description,omitempty"`
	ImageURL      string   `json:"image_url,omitempty"`
	Confidence    float64  `json:"confidence,omitempty"`
}

// Product is the canonical, currency-unified output record. Currency
// always equals the pipeline's target currency after normalization;
// Price is nil only when no source price could be parsed.
type Product struct {
	Retailer      string   `json:"retailer"`
	Title         string   `json:"title"`
	URL           string   `json:"url"`
	Price         *float64 `json:"price"`
	Currency      string   `json:"currency"`
	StockState    string   `json:"stock_state"`
	OriginalPrice *float64 `json:"original_price,omitempty"`
	FetchedAt     int64    `json:"fetched_at"`
	Description   string   `json:"description,omitempty"`
	ImageURL      string   `json:"image_url,omitempty"`
	Confidence    float64  `json:"confidence"`
}
