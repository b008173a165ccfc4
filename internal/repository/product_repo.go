package repository

import (
	"context"

	"github.com/user/catalog-service/internal/entity"
)

// ProductRepository stores canonical products.
type ProductRepository interface {
	// UpsertProduct inserts or updates a product and its variants keyed by
	// (brand, external id) and appends price/stock history on change.
	UpsertProduct(ctx context.Context, p *entity.Product) (*entity.UpsertResult, error)
}
