package platform

import (
	"bytes"
	"context"
	"net/http"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/user/catalog-service/internal/entity"
	"github.com/user/catalog-service/internal/repository"
	"github.com/user/catalog-service/pkg/utils"
)

type signature struct {
	platform string
	headers  []string
	markers  []string
}

var signatures = []signature{
	{Shopify, []string{"X-Shopid", "X-Shopify-Stage", "X-Shardid"}, []string{"cdn.shopify.com", "shopify.theme", "myshopify.com"}},
	{WooCommerce, nil, []string{"wp-content/plugins/woocommerce", "woocommerce-page", "wc-block-"}},
	{BigCommerce, []string{"X-Bc-Storefront"}, []string{"cdn11.bigcommerce.com", "bigcommerce.com/s-"}},
	{Magento, nil, []string{"mage/cookies", "magento_", "/static/version"}},
	{Squarespace, nil, []string{"static1.squarespace.com", "squarespace-commerce"}},
	{Wix, []string{"X-Wix-Request-Id"}, []string{"static.wixstatic.com", "wix-ecommerce"}},
}

// Detector infers the storefront platform from a brand's home page.
type Detector struct {
	fetcher repository.PageFetcher
	logger  *zap.Logger
}

// NewDetector creates a Detector.
func NewDetector(fetcher repository.PageFetcher, logger *zap.Logger) *Detector {
	return &Detector{fetcher: fetcher, logger: logger}
}

// Detect returns a platform identifier, or Unknown when the home page cannot
// be fetched or carries no recognizable signature.
func (d *Detector) Detect(ctx context.Context, siteURL string) string {
	origin := utils.Origin(siteURL)
	if origin == "" {
		return Unknown
	}
	page, err := d.fetcher.Fetch(ctx, origin+"/")
	if err != nil {
		d.logger.Warn("platform detection fetch failed", zap.String("site", origin), zap.Error(err))
		return Unknown
	}
	p := DetectFromPage(page)
	d.logger.Info("platform detected", zap.String("site", origin), zap.String("platform", p))
	return p
}

// DetectFromPage matches response headers, the generator meta tag and
// well-known asset hosts.
func DetectFromPage(page *entity.Page) string {
	for _, sig := range signatures {
		if hasHeader(page.Header, sig.headers) {
			return sig.platform
		}
	}
	if strings.Contains(strings.ToLower(page.Header.Get("Powered-By")), "shopify") {
		return Shopify
	}

	if doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page.Body)); err == nil {
		generator := strings.ToLower(doc.Find(`meta[name="generator"]`).AttrOr("content", ""))
		for _, sig := range signatures {
			if generator != "" && strings.Contains(generator, sig.platform) {
				return sig.platform
			}
		}
	}

	body := strings.ToLower(string(page.Body))
	for _, sig := range signatures {
		for _, m := range sig.markers {
			if strings.Contains(body, m) {
				return sig.platform
			}
		}
	}
	return Unknown
}

func hasHeader(h http.Header, names []string) bool {
	for _, n := range names {
		if h.Get(n) != "" {
			return true
		}
	}
	return false
}
