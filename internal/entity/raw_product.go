package entity

import "encoding/json"

// Raw payload sources produced by catalog adapters.
const (
	SourceShopify = "shopify"
	SourceJSONLD  = "jsonld"
	SourceLLM     = "llm"
)

// ProductRef is a candidate product location found by discovery.
type ProductRef struct {
	URL        string
	ExternalID string
}

// RawProduct is a product in its native representation, before normalization.
type RawProduct struct {
	Source     string
	URL        string
	ExternalID string
	Payload    json.RawMessage
}
