// Package platform holds the per-platform catalog adapters and the registry
// that selects one from a brand's platform identifier.
package platform

import (
	"context"
	"strings"

	"github.com/user/catalog-service/internal/entity"
)

// Platform identifiers stored on brands and runs.
const (
	Shopify     = "shopify"
	WooCommerce = "woocommerce"
	BigCommerce = "bigcommerce"
	Magento     = "magento"
	Squarespace = "squarespace"
	Wix         = "wix"
	Generic     = "generic"
	Custom      = "custom"
	Unknown     = "unknown"
)

// CatalogAdapter discovers and fetches products using platform-native affordances.
type CatalogAdapter interface {
	// Name is the platform identifier the adapter serves.
	Name() string
	// DiscoverProducts is best effort: on failure it returns what it found so far.
	DiscoverProducts(ctx context.Context, brand *entity.Brand, limit int) []entity.ProductRef
	// FetchProduct returns (nil, nil) when the reference is not a parseable product.
	FetchProduct(ctx context.Context, brand *entity.Brand, ref entity.ProductRef) (*entity.RawProduct, error)
}

// Registry maps platform identifiers to adapters. Unregistered identifiers
// get the fallback adapter.
type Registry struct {
	adapters map[string]CatalogAdapter
	fallback CatalogAdapter
}

// NewRegistry creates a registry with the given fallback and adapters.
func NewRegistry(fallback CatalogAdapter, adapters ...CatalogAdapter) *Registry {
	r := &Registry{adapters: make(map[string]CatalogAdapter), fallback: fallback}
	for _, a := range adapters {
		r.Register(a)
	}
	return r
}

// Register adds or replaces the adapter for a.Name().
func (r *Registry) Register(a CatalogAdapter) {
	r.adapters[Key(a.Name())] = a
}

// Get returns the adapter for a platform hint.
func (r *Registry) Get(platform string) CatalogAdapter {
	if a, ok := r.adapters[Key(platform)]; ok {
		return a
	}
	return r.fallback
}

// IsGeneric reports whether the hint resolves to the fallback adapter.
func (r *Registry) IsGeneric(platform string) bool {
	_, ok := r.adapters[Key(platform)]
	return !ok
}

// Key normalizes a platform hint.
func Key(platform string) string {
	return strings.ToLower(strings.TrimSpace(platform))
}

// IsUnknown reports whether a platform hint carries no usable information.
func IsUnknown(platform string) bool {
	switch Key(platform) {
	case "", Unknown, Custom, Generic:
		return true
	}
	return false
}
