package models

// SearchRequest is the query contract for GET /api/v1/search.
type SearchRequest struct {
	// Query is the product search keyword. Required.
	Query string `form:"query" binding:"required"`

	// Locale is the target market. Default: "US".
	Locale string `form:"locale"`

	// MaxResults caps the returned product list. Default: 20. Max: 100.
	MaxResults int `form:"max_results" binding:"omitempty,min=1,max=100"`

	// IncludeOutOfStock keeps out-of-stock items in the result set.
	// Default: true.
	IncludeOutOfStock *bool `form:"include_out_of_stock"`

	// Render forces the browser strategy for page fetches.
	// Default: false (plain HTTP).
	Render bool `form:"render"`
}

// Defaults applies default values to unset fields.
func (r *SearchRequest) Defaults() {
	if r.Locale == "" {
		r.Locale = "US"
	}
	if r.MaxResults == 0 {
		r.MaxResults = 20
	}
	if r.IncludeOutOfStock == nil {
		t := true
		r.IncludeOutOfStock = &t
	}
}
