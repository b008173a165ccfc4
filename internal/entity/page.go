package entity

import "net/http"

// Page is the result of fetching one URL as text.
type Page struct {
	URL        string
	FinalURL   string
	StatusCode int
	Header     http.Header
	Body       []byte
}

// PageSignals is what the LLM collaborator sees of a candidate page.
type PageSignals struct {
	URL    string   `json:"url"`
	HTML   string   `json:"html"`
	Text   string   `json:"text"`
	Images []string `json:"images"`
}

// Classification is the LLM verdict on whether a page is a product detail page.
type Classification struct {
	IsPDP      bool    `json:"is_pdp"`
	Confidence float64 `json:"confidence"`
	Reason     string  `json:"reason"`
}

// ExtractedVariant is one variant as returned by LLM extraction.
type ExtractedVariant struct {
	SKU      string   `json:"sku,omitempty"`
	Color    string   `json:"color,omitempty"`
	Size     string   `json:"size,omitempty"`
	Fit      string   `json:"fit,omitempty"`
	Material string   `json:"material,omitempty"`
	Price    *float64 `json:"price,omitempty"`
	Currency string   `json:"currency,omitempty"`
	InStock  *bool    `json:"in_stock,omitempty"`
}

// Extraction is the LLM-extracted product payload.
type Extraction struct {
	Title       string             `json:"title"`
	Description string             `json:"description,omitempty"`
	Variants    []ExtractedVariant `json:"variants"`
	Images      []string           `json:"images"`
}
