package usecase_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/catalog-service/internal/entity"
	"github.com/user/catalog-service/internal/usecase"
)

var testBrand = &entity.Brand{ID: "brand-1", Name: "Example", SiteURL: "https://example-brand.test", Platform: "shopify"}

func TestNormalize_Shopify(t *testing.T) {
	raw := &entity.RawProduct{
		Source:     entity.SourceShopify,
		URL:        "https://example-brand.test/products/linen-shirt",
		ExternalID: "11",
		Payload: []byte(`{
			"id": 11,
			"title": "Women's Striped Linen Shirt",
			"body_html": "<p>Relaxed fit shirt for <b>summer</b> days.</p>",
			"product_type": "Shirts",
			"tags": "beach, new",
			"options": [{"name": "Color", "position": 1}, {"name": "Size", "position": 2}],
			"variants": [
				{"id": 101, "sku": "LS-BLU-S", "price": "49.00", "option1": "Blue", "option2": "S", "available": true, "inventory_quantity": 4, "image_id": 7},
				{"id": 102, "sku": "LS-BLU-M", "price": "0.00", "option1": "Blue", "option2": "M", "available": false},
				{"id": 103, "sku": "LS-BLU-L", "price": "9999999", "option1": "Blue", "option2": "L"}
			],
			"images": [{"id": 7, "src": "https://cdn.test/blue.jpg", "variant_ids": [101]}, {"id": 8, "src": "https://cdn.test/alt.jpg"}],
			"image": {"id": 7, "src": "https://cdn.test/blue.jpg"}
		}`),
	}

	p, err := usecase.NewNormalizer().Normalize(testBrand, "shopify", raw)
	require.NoError(t, err)

	assert.Equal(t, "brand-1", p.BrandID)
	assert.Equal(t, "11", p.ExternalID)
	assert.Equal(t, "shopify", p.Platform)
	assert.Equal(t, "Women's Striped Linen Shirt", p.Name)
	assert.Equal(t, "Relaxed fit shirt for summer days.", p.Description)
	assert.Equal(t, "tops", p.Category)
	assert.Equal(t, "shirts", p.Subcategory)
	assert.Equal(t, "women", p.Gender)
	assert.Equal(t, "summer", p.Season)
	assert.Contains(t, p.MaterialTags, "linen")
	assert.Contains(t, p.PatternTags, "striped")
	assert.Contains(t, p.OccasionTags, "beach")
	assert.Contains(t, p.StyleTags, "casual")
	assert.Equal(t, "https://cdn.test/blue.jpg", p.CoverImage)

	require.Len(t, p.Variants, 3)
	first := p.Variants[0]
	assert.Equal(t, "shopify:101", first.VariantKey)
	assert.Equal(t, "Blue", first.Color)
	assert.Equal(t, "S", first.Size)
	require.NotNil(t, first.Price)
	assert.InDelta(t, 49.0, *first.Price, 0.001)
	assert.Equal(t, entity.StockInStock, first.StockStatus)
	require.NotNil(t, first.StockCount)
	assert.Equal(t, 4, *first.StockCount)
	assert.Equal(t, []string{"https://cdn.test/blue.jpg"}, first.Images)

	assert.Nil(t, p.Variants[1].Price, "zero price is not sane")
	assert.Equal(t, entity.StockOutOfStock, p.Variants[1].StockStatus)
	assert.Nil(t, p.Variants[2].Price, "absurd price is not sane")
	assert.Equal(t, entity.StockUnknown, p.Variants[2].StockStatus)
}

func TestNormalize_JSONLDProductGroup(t *testing.T) {
	raw := &entity.RawProduct{
		Source: entity.SourceJSONLD,
		URL:    "https://example-brand.test/p/wool-coat?utm_source=x",
		Payload: []byte(`{
			"@type": "ProductGroup",
			"name": "Men's Wool Overcoat",
			"description": "A classic winter coat.",
			"image": {"@type": "ImageObject", "url": "https://cdn.test/coat.jpg"},
			"hasVariant": [
				{"@type": "Product", "sku": "C-40", "size": "40", "color": "Navy", "offers": {"price": "1.299,00", "priceCurrency": "eur", "availability": "https://schema.org/InStock"}},
				{"@type": "Product", "sku": "C-42", "size": "42", "color": "Navy", "offers": {"price": 1299, "priceCurrency": "EUR", "availability": "OutOfStock"}}
			]
		}`),
	}

	p, err := usecase.NewNormalizer().Normalize(testBrand, "generic", raw)
	require.NoError(t, err)
	assert.Equal(t, "outerwear", p.Category)
	assert.Equal(t, "coats", p.Subcategory)
	assert.Equal(t, "men", p.Gender)
	assert.Equal(t, "winter", p.Season)
	assert.Contains(t, p.MaterialTags, "wool")
	assert.Equal(t, "https://cdn.test/coat.jpg", p.CoverImage)
	assert.Contains(t, p.ExternalID, "url:")

	require.Len(t, p.Variants, 2)
	assert.Equal(t, "sku:c-40", p.Variants[0].VariantKey)
	assert.InDelta(t, 1299.0, *p.Variants[0].Price, 0.001)
	assert.Equal(t, "EUR", p.Variants[0].Currency)
	assert.Equal(t, entity.StockInStock, p.Variants[0].StockStatus)
	assert.Equal(t, entity.StockOutOfStock, p.Variants[1].StockStatus)

	again, err := usecase.NewNormalizer().Normalize(testBrand, "generic", &entity.RawProduct{
		Source: raw.Source, URL: "https://example-brand.test/p/wool-coat", Payload: raw.Payload,
	})
	require.NoError(t, err)
	assert.Equal(t, p.ExternalID, again.ExternalID, "tracking params do not change the url key")
}

func TestNormalize_Extraction(t *testing.T) {
	raw := &entity.RawProduct{
		Source:  entity.SourceLLM,
		URL:     "https://example-brand.test/silk-scarf",
		Payload: []byte(`{"title":"Silk Scarf","variants":[{"color":"Red","price":89,"currency":"usd","in_stock":true},{"color":"Red","price":-1}],"images":["https://cdn.test/scarf.jpg"]}`),
	}
	p, err := usecase.NewNormalizer().Normalize(testBrand, "unknown", raw)
	require.NoError(t, err)
	assert.Equal(t, "accessories", p.Category)
	assert.Equal(t, []string{"silk"}, p.MaterialTags)
	require.Len(t, p.Variants, 2)
	assert.Equal(t, "attr:red|||", p.Variants[0].VariantKey)
	assert.Equal(t, "attr:red|||#2", p.Variants[1].VariantKey)
	assert.Equal(t, "USD", p.Variants[0].Currency)
	assert.Nil(t, p.Variants[1].Price)
}

func TestNormalize_NoVariantsGetsDefault(t *testing.T) {
	raw := &entity.RawProduct{Source: entity.SourceJSONLD, URL: "https://example-brand.test/p/tote", Payload: []byte(`{"@type":"Product","name":"Canvas Tote"}`)}
	p, err := usecase.NewNormalizer().Normalize(testBrand, "generic", raw)
	require.NoError(t, err)
	require.Len(t, p.Variants, 1)
	assert.Equal(t, "default", p.Variants[0].VariantKey)
	assert.Equal(t, entity.StockUnknown, p.Variants[0].StockStatus)
}

func TestNormalize_MissingNameIsSoft(t *testing.T) {
	raw := &entity.RawProduct{Source: entity.SourceLLM, URL: "https://example-brand.test/x", Payload: []byte(`{"title":"  "}`)}
	_, err := usecase.NewNormalizer().Normalize(testBrand, "unknown", raw)
	require.Error(t, err)
	assert.Equal(t, entity.KindSoft, usecase.ClassifyError(err))
}
