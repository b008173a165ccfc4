package platform

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/user/catalog-service/internal/entity"
)

type mapFetcher map[string]string

func (m mapFetcher) Fetch(_ context.Context, url string) (*entity.Page, error) {
	body, ok := m[url]
	if !ok {
		return nil, &entity.FetchError{URL: url, StatusCode: 404, Kind: entity.KindSoft}
	}
	return &entity.Page{URL: url, StatusCode: 200, Header: http.Header{}, Body: []byte(body)}, nil
}

type stubClassifier struct {
	verdict    entity.Classification
	extraction *entity.Extraction
	err        error
}

func (s *stubClassifier) Classify(context.Context, entity.PageSignals) (*entity.Classification, error) {
	if s.err != nil {
		return nil, s.err
	}
	v := s.verdict
	return &v, nil
}

func (s *stubClassifier) Extract(context.Context, entity.PageSignals) (*entity.Extraction, error) {
	return s.extraction, nil
}

var brand = &entity.Brand{ID: "b1", SiteURL: "https://brand.test"}

func TestRegistry_FallsBackToGeneric(t *testing.T) {
	generic := NewGeneric(mapFetcher{}, zap.NewNop())
	shop := NewShopify(mapFetcher{}, zap.NewNop())
	r := NewRegistry(generic, shop, NewWooCommerce(mapFetcher{}, generic))

	assert.Equal(t, Shopify, r.Get("Shopify").Name())
	assert.Equal(t, WooCommerce, r.Get("woocommerce").Name())
	assert.Equal(t, Generic, r.Get("custom").Name())
	assert.Equal(t, Generic, r.Get("magento").Name())
	assert.True(t, r.IsGeneric("unknown"))
	assert.False(t, r.IsGeneric("shopify"))
}

func TestIsLikelyProductURL(t *testing.T) {
	tests := []struct {
		url  string
		want bool
	}{
		{"https://brand.test/products/linen-shirt", true},
		{"https://brand.test/collections/men/products/linen-shirt", true},
		{"https://brand.test/product/wool-coat/", true},
		{"https://brand.test/shop/wool-coat", true},
		{"https://brand.test/products/", false},
		{"https://brand.test/blog/products/spring-lookbook", false},
		{"https://brand.test/products/shirt.jpg", false},
		{"https://brand.test/pages/about", false},
		{"https://brand.test/", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, IsLikelyProductURL(tt.url), tt.url)
	}
}

func TestParsePrice(t *testing.T) {
	tests := []struct {
		in   string
		want float64
	}{
		{"19.99", 19.99},
		{"1,299.00", 1299},
		{"1.299,00", 1299},
		{"€ 49,90", 49.9},
		{"1,299", 1299},
	}
	for _, tt := range tests {
		got := ParsePrice(tt.in)
		require.NotNil(t, got, tt.in)
		assert.InDelta(t, tt.want, *got, 0.001, tt.in)
	}
	assert.Nil(t, ParsePrice("call us"))
}

func TestDetectFromPage(t *testing.T) {
	shop := &entity.Page{Header: http.Header{"X-Shopid": []string{"1"}}}
	assert.Equal(t, Shopify, DetectFromPage(shop))

	woo := &entity.Page{Body: []byte(`<html><head><meta name="generator" content="WooCommerce 8.1"></head></html>`)}
	assert.Equal(t, WooCommerce, DetectFromPage(woo))

	plain := &entity.Page{Body: []byte(`<html><body>hello</body></html>`)}
	assert.Equal(t, Unknown, DetectFromPage(plain))
}

func TestDetector_FetchFailureIsUnknown(t *testing.T) {
	assert.Equal(t, Unknown, NewDetector(mapFetcher{}, zap.NewNop()).Detect(context.Background(), "https://brand.test"))
}

func TestShopify_DiscoverAndFetch(t *testing.T) {
	f := mapFetcher{
		"https://brand.test/products.json?limit=250&page=1": `{"products":[{"id":11,"handle":"linen-shirt"},{"id":12,"handle":"wool-coat"}]}`,
		"https://brand.test/products.json?limit=250&page=2": `{"products":[]}`,
		"https://brand.test/products/linen-shirt.json":      `{"product":{"id":11,"title":"Linen Shirt","tags":"summer, linen","variants":[{"id":1,"price":"49.00","option1":"M"}]}}`,
	}
	a := NewShopify(f, zap.NewNop())

	refs := a.DiscoverProducts(context.Background(), brand, 10)
	require.Len(t, refs, 2)
	assert.Equal(t, entity.ProductRef{URL: "https://brand.test/products/linen-shirt", ExternalID: "11"}, refs[0])

	raw, err := a.FetchProduct(context.Background(), brand, entity.ProductRef{URL: "https://brand.test/collections/all/products/linen-shirt"})
	require.NoError(t, err)
	require.NotNil(t, raw)
	assert.Equal(t, entity.SourceShopify, raw.Source)
	assert.Equal(t, "11", raw.ExternalID)

	var p ShopifyProduct
	require.NoError(t, json.Unmarshal(raw.Payload, &p))
	assert.Equal(t, TagList{"summer", "linen"}, p.Tags)
	assert.Equal(t, "49.00", p.Variants[0].Price.String())

	missing, err := a.FetchProduct(context.Background(), brand, entity.ProductRef{URL: "https://brand.test/products/gone"})
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestShopify_DiscoverRespectsLimit(t *testing.T) {
	f := mapFetcher{
		"https://brand.test/products.json?limit=250&page=1": `{"products":[{"id":1,"handle":"a"},{"id":2,"handle":"b"},{"id":3,"handle":"c"}]}`,
	}
	refs := NewShopify(f, zap.NewNop()).DiscoverProducts(context.Background(), brand, 2)
	assert.Len(t, refs, 2)
}

func TestWooCommerce_Discover(t *testing.T) {
	f := mapFetcher{
		"https://brand.test/wp-json/wc/store/v1/products?per_page=100&page=1": `[{"id":7,"permalink":"https://brand.test/product/tote"},{"id":8,"permalink":"https://elsewhere.test/product/x"}]`,
	}
	a := NewWooCommerce(f, NewGeneric(f, zap.NewNop()))
	refs := a.DiscoverProducts(context.Background(), brand, 10)
	assert.Equal(t, []entity.ProductRef{{URL: "https://brand.test/product/tote", ExternalID: "7"}}, refs)
}

const jsonldPage = `<html><head>
<script type="application/ld+json">{"@context":"https://schema.org","@graph":[
 {"@type":"Organization","name":"Brand"},
 {"@type":"Product","name":"Wool Coat","sku":"WC-1","image":["https://brand.test/c.jpg"],
  "offers":{"@type":"AggregateOffer","offers":[{"price":"199.00","priceCurrency":"EUR","availability":"https://schema.org/InStock"}]}}
]}</script></head><body></body></html>`

func TestGeneric_FetchJSONLD(t *testing.T) {
	f := mapFetcher{"https://brand.test/products/wool-coat": jsonldPage}
	raw, err := NewGeneric(f, zap.NewNop()).FetchProduct(context.Background(), brand, entity.ProductRef{URL: "https://brand.test/products/wool-coat"})
	require.NoError(t, err)
	require.NotNil(t, raw)
	assert.Equal(t, entity.SourceJSONLD, raw.Source)
	assert.Equal(t, "WC-1", raw.ExternalID)

	var p JSONLDProduct
	require.NoError(t, json.Unmarshal(raw.Payload, &p))
	offers := p.OfferList()
	require.Len(t, offers, 1)
	assert.InDelta(t, 199.0, *offers[0].PriceValue(), 0.001)
	require.NotNil(t, offers[0].InStock())
	assert.True(t, *offers[0].InStock())
	assert.Equal(t, []string{"https://brand.test/c.jpg"}, p.Images())
}

func TestGeneric_RenderFallback(t *testing.T) {
	static := mapFetcher{"https://brand.test/p/1": `<html><body><div id="app"></div></body></html>`}
	rendered := mapFetcher{"https://brand.test/p/1": jsonldPage}
	g := NewGeneric(static, zap.NewNop(), WithRenderer(rendered))

	raw, err := g.FetchProduct(context.Background(), brand, entity.ProductRef{URL: "https://brand.test/p/1"})
	require.NoError(t, err)
	require.NotNil(t, raw)
	assert.Equal(t, entity.SourceJSONLD, raw.Source)
}

func TestGeneric_ClassifierFallback(t *testing.T) {
	f := mapFetcher{"https://brand.test/p/1": `<html><body><h1>Silk Scarf</h1><img src="/s.jpg"></body></html>`}
	price := 89.0

	t.Run("confident product", func(t *testing.T) {
		c := &stubClassifier{
			verdict:    entity.Classification{IsPDP: true, Confidence: 0.9},
			extraction: &entity.Extraction{Title: "Silk Scarf", Variants: []entity.ExtractedVariant{{Price: &price}}},
		}
		raw, err := NewGeneric(f, zap.NewNop(), WithClassifier(c, 0.6)).FetchProduct(context.Background(), brand, entity.ProductRef{URL: "https://brand.test/p/1"})
		require.NoError(t, err)
		require.NotNil(t, raw)
		assert.Equal(t, entity.SourceLLM, raw.Source)
	})

	t.Run("low confidence", func(t *testing.T) {
		c := &stubClassifier{verdict: entity.Classification{IsPDP: true, Confidence: 0.3}}
		raw, err := NewGeneric(f, zap.NewNop(), WithClassifier(c, 0.6)).FetchProduct(context.Background(), brand, entity.ProductRef{URL: "https://brand.test/p/1"})
		require.NoError(t, err)
		assert.Nil(t, raw)
	})

	t.Run("classifier error propagates", func(t *testing.T) {
		c := &stubClassifier{err: errors.New("llm down")}
		_, err := NewGeneric(f, zap.NewNop(), WithClassifier(c, 0.6)).FetchProduct(context.Background(), brand, entity.ProductRef{URL: "https://brand.test/p/1"})
		assert.Error(t, err)
	})
}

func TestGeneric_DiscoverFromHomeAndListing(t *testing.T) {
	f := mapFetcher{
		"https://brand.test/": `<a href="/products/a">A</a><a href="/collections/new">New</a>
<a href="https://www.brand.test/products/b?utm_source=x">B</a><a href="https://other.test/products/z">Z</a><a href="/blog/post">Blog</a>`,
		"https://brand.test/collections/new": `<a href="/products/c">C</a><a href="/products/a">A</a>`,
	}
	refs := NewGeneric(f, zap.NewNop()).DiscoverProducts(context.Background(), brand, 10)
	var urls []string
	for _, r := range refs {
		urls = append(urls, r.URL)
	}
	assert.Equal(t, []string{"https://brand.test/products/a", "https://www.brand.test/products/b", "https://brand.test/products/c"}, urls)
}

func TestSignals(t *testing.T) {
	page := &entity.Page{
		URL:  "https://brand.test/p/1",
		Body: []byte(`<html><head><meta property="og:image" content="https://cdn.test/og.jpg"><style>.x{}</style></head><body><p>Silk   scarf</p><script>var x=1</script><img src="/a.jpg"></body></html>`),
	}
	s, err := Signals(page)
	require.NoError(t, err)
	assert.Equal(t, "Silk scarf", s.Text)
	assert.Equal(t, []string{"https://cdn.test/og.jpg", "https://brand.test/a.jpg"}, s.Images)
}
