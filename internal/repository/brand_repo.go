package repository

import (
	"context"
	"time"

	"github.com/user/catalog-service/internal/entity"
)

// BrandRepository defines the catalog-related reads and writes on brands.
type BrandRepository interface {
	// GetBrand returns entity.ErrNotFound when the brand does not exist.
	GetBrand(ctx context.Context, id string) (*entity.Brand, error)
	// UpdatePlatform stores a detected e-commerce platform identifier.
	UpdatePlatform(ctx context.Context, id, platform string) error
	// MarkCatalogCompleted records a completed refresh and schedules the next one.
	MarkCatalogCompleted(ctx context.Context, id string, completedAt, nextDueAt time.Time) error
	// MarkCatalogFinished excludes the brand from future refreshes.
	MarkCatalogFinished(ctx context.Context, id, reason string, at time.Time) error
	// ListDueBrands returns unfinished brands whose next refresh is due.
	ListDueBrands(ctx context.Context, now time.Time, limit int) ([]*entity.Brand, error)
}
