package platform

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/user/catalog-service/internal/entity"
	"github.com/user/catalog-service/internal/repository"
	"github.com/user/catalog-service/pkg/utils"
)

const (
	shopifyPageSize = 250
	shopifyMaxPages = 40
)

// ShopifyProduct is the product document served at /products/<handle>.json
// and listed by /products.json.
type ShopifyProduct struct {
	ID          int64            `json:"id"`
	Title       string           `json:"title"`
	BodyHTML    string           `json:"body_html"`
	Vendor      string           `json:"vendor"`
	ProductType string           `json:"product_type"`
	Handle      string           `json:"handle"`
	Tags        TagList          `json:"tags"`
	Options     []ShopifyOption  `json:"options"`
	Variants    []ShopifyVariant `json:"variants"`
	Images      []ShopifyImage   `json:"images"`
	Image       *ShopifyImage    `json:"image"`
}

type ShopifyOption struct {
	Name     string   `json:"name"`
	Position int      `json:"position"`
	Values   []string `json:"values"`
}

type ShopifyVariant struct {
	ID                int64         `json:"id"`
	Title             string        `json:"title"`
	SKU               string        `json:"sku"`
	Price             Text          `json:"price"`
	PriceCurrency     string        `json:"price_currency"`
	Option1           *string       `json:"option1"`
	Option2           *string       `json:"option2"`
	Option3           *string       `json:"option3"`
	Available         *bool         `json:"available"`
	InventoryQuantity *int          `json:"inventory_quantity"`
	ImageID           *int64        `json:"image_id"`
	FeaturedImage     *ShopifyImage `json:"featured_image"`
}

type ShopifyImage struct {
	ID         int64   `json:"id"`
	Src        string  `json:"src"`
	VariantIDs []int64 `json:"variant_ids"`
}

// OptionValues returns option1..3 in position order, "" for missing ones.
func (v ShopifyVariant) OptionValues() []string {
	out := make([]string, 3)
	for i, o := range []*string{v.Option1, v.Option2, v.Option3} {
		if o != nil {
			out[i] = strings.TrimSpace(*o)
		}
	}
	return out
}

// TagList decodes Shopify tags, which are a comma separated string on the
// single product document and an array on the listing.
type TagList []string

// UnmarshalJSON implements json.Unmarshaler.
func (t *TagList) UnmarshalJSON(b []byte) error {
	var list []string
	if err := json.Unmarshal(b, &list); err == nil {
		*t = list
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return nil
	}
	var out []string
	for _, tag := range strings.Split(s, ",") {
		if tag = strings.TrimSpace(tag); tag != "" {
			out = append(out, tag)
		}
	}
	*t = out
	return nil
}

// ShopifyAdapter uses the public storefront JSON endpoints.
type ShopifyAdapter struct {
	fetcher repository.PageFetcher
	logger  *zap.Logger
}

// NewShopify creates a ShopifyAdapter.
func NewShopify(fetcher repository.PageFetcher, logger *zap.Logger) *ShopifyAdapter {
	return &ShopifyAdapter{fetcher: fetcher, logger: logger}
}

func (a *ShopifyAdapter) Name() string { return Shopify }

// DiscoverProducts pages through /products.json.
func (a *ShopifyAdapter) DiscoverProducts(ctx context.Context, brand *entity.Brand, limit int) []entity.ProductRef {
	origin := utils.Origin(brand.SiteURL)
	if origin == "" || limit <= 0 {
		return nil
	}

	var refs []entity.ProductRef
	for page := 1; page <= shopifyMaxPages && len(refs) < limit; page++ {
		listURL := fmt.Sprintf("%s/products.json?limit=%d&page=%d", origin, shopifyPageSize, page)
		res, err := a.fetcher.Fetch(ctx, listURL)
		if err != nil {
			a.logger.Warn("shopify product listing failed", zap.String("url", listURL), zap.Error(err))
			break
		}
		var listing struct {
			Products []struct {
				ID     int64  `json:"id"`
				Handle string `json:"handle"`
			} `json:"products"`
		}
		if err := json.Unmarshal(res.Body, &listing); err != nil {
			a.logger.Warn("shopify product listing is not json", zap.String("url", listURL), zap.Error(err))
			break
		}
		if len(listing.Products) == 0 {
			break
		}
		for _, p := range listing.Products {
			if p.Handle == "" {
				continue
			}
			refs = append(refs, entity.ProductRef{
				URL:        origin + "/products/" + url.PathEscape(p.Handle),
				ExternalID: strconv.FormatInt(p.ID, 10),
			})
			if len(refs) >= limit {
				break
			}
		}
	}
	return refs
}

// FetchProduct reads the product document for the handle in ref.URL.
func (a *ShopifyAdapter) FetchProduct(ctx context.Context, _ *entity.Brand, ref entity.ProductRef) (*entity.RawProduct, error) {
	handle := shopifyHandle(ref.URL)
	origin := utils.Origin(ref.URL)
	if handle == "" || origin == "" {
		return nil, nil
	}

	res, err := a.fetcher.Fetch(ctx, origin+"/products/"+url.PathEscape(handle)+".json")
	if err != nil {
		if isSoft(err) {
			return nil, nil
		}
		return nil, err
	}

	var doc struct {
		Product json.RawMessage `json:"product"`
	}
	if err := json.Unmarshal(res.Body, &doc); err != nil || len(doc.Product) == 0 {
		a.logger.Debug("shopify product document unreadable", zap.String("url", ref.URL), zap.Error(err))
		return nil, nil
	}
	var head struct {
		ID int64 `json:"id"`
	}
	if err := json.Unmarshal(doc.Product, &head); err != nil || head.ID == 0 {
		return nil, nil
	}

	return &entity.RawProduct{
		Source:     entity.SourceShopify,
		URL:        ref.URL,
		ExternalID: strconv.FormatInt(head.ID, 10),
		Payload:    doc.Product,
	}, nil
}

// shopifyHandle extracts the handle from /products/<handle> and
// /collections/<c>/products/<handle> paths.
func shopifyHandle(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	p := strings.TrimSuffix(u.Path, "/")
	i := strings.LastIndex(p, "/products/")
	if i < 0 {
		return ""
	}
	handle := strings.TrimSuffix(p[i+len("/products/"):], ".json")
	if handle == "" || strings.Contains(handle, "/") {
		return ""
	}
	if unescaped, err := url.PathUnescape(handle); err == nil {
		handle = unescaped
	}
	return handle
}

func isSoft(err error) bool {
	var fe *entity.FetchError
	return errors.As(err, &fe) && fe.Kind == entity.KindSoft
}
