package platform

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"go.uber.org/zap"

	"github.com/user/catalog-service/internal/entity"
	"github.com/user/catalog-service/internal/repository"
	"github.com/user/catalog-service/pkg/utils"
)

const (
	wooPageSize = 100
	wooMaxPages = 50
)

// WooCommerceAdapter discovers through the public Store API and fetches
// product pages the generic way.
type WooCommerceAdapter struct {
	*GenericAdapter
	fetcher repository.PageFetcher
}

// NewWooCommerce creates a WooCommerceAdapter that delegates page fetching to generic.
func NewWooCommerce(fetcher repository.PageFetcher, generic *GenericAdapter) *WooCommerceAdapter {
	return &WooCommerceAdapter{GenericAdapter: generic, fetcher: fetcher}
}

func (a *WooCommerceAdapter) Name() string { return WooCommerce }

// DiscoverProducts pages through /wp-json/wc/store/v1/products.
func (a *WooCommerceAdapter) DiscoverProducts(ctx context.Context, brand *entity.Brand, limit int) []entity.ProductRef {
	origin := utils.Origin(brand.SiteURL)
	if origin == "" || limit <= 0 {
		return nil
	}

	var refs []entity.ProductRef
	for page := 1; page <= wooMaxPages && len(refs) < limit; page++ {
		listURL := fmt.Sprintf("%s/wp-json/wc/store/v1/products?per_page=%d&page=%d", origin, wooPageSize, page)
		res, err := a.fetcher.Fetch(ctx, listURL)
		if err != nil {
			a.logger.Warn("woocommerce store api listing failed", zap.String("url", listURL), zap.Error(err))
			break
		}
		var products []struct {
			ID        int64  `json:"id"`
			Permalink string `json:"permalink"`
		}
		if err := json.Unmarshal(res.Body, &products); err != nil {
			a.logger.Warn("woocommerce store api listing is not json", zap.String("url", listURL), zap.Error(err))
			break
		}
		if len(products) == 0 {
			break
		}
		for _, p := range products {
			if p.Permalink == "" || !utils.SameSite(p.Permalink, origin) {
				continue
			}
			refs = append(refs, entity.ProductRef{URL: p.Permalink, ExternalID: strconv.FormatInt(p.ID, 10)})
			if len(refs) >= limit {
				break
			}
		}
		if len(products) < wooPageSize {
			break
		}
	}
	return refs
}
