package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/user/catalog-service/internal/entity"
)

// ProductRepoImpl implements repository.ProductRepository on products,
// product_variants and the two history tables.
type ProductRepoImpl struct {
	db *pgxpool.Pool
}

// NewProductRepo creates a new instance of ProductRepoImpl.
func NewProductRepo(db *pgxpool.Pool) *ProductRepoImpl {
	return &ProductRepoImpl{db: db}
}

// UpsertProduct writes the product, its variants and any price or stock
// history within a single transaction.
func (r *ProductRepoImpl) UpsertProduct(ctx context.Context, p *entity.Product) (*entity.UpsertResult, error) {
	if p.BrandID == "" || p.ExternalID == "" {
		return nil, errors.New("product needs a brand and an external id")
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	res := &entity.UpsertResult{Variants: len(p.Variants)}
	err = tx.QueryRow(ctx, `
		INSERT INTO products (brand_id, external_id, source_url, platform, name, description, category, subcategory,
			style_tags, material_tags, pattern_tags, occasion_tags, gender, season, cover_image)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (brand_id, external_id) DO UPDATE SET
			source_url = EXCLUDED.source_url,
			platform = EXCLUDED.platform,
			name = EXCLUDED.name,
			description = EXCLUDED.description,
			category = EXCLUDED.category,
			subcategory = EXCLUDED.subcategory,
			style_tags = EXCLUDED.style_tags,
			material_tags = EXCLUDED.material_tags,
			pattern_tags = EXCLUDED.pattern_tags,
			occasion_tags = EXCLUDED.occasion_tags,
			gender = EXCLUDED.gender,
			season = EXCLUDED.season,
			cover_image = EXCLUDED.cover_image,
			updated_at = NOW()
		RETURNING id, (xmax = 0)`,
		p.BrandID, p.ExternalID, p.SourceURL, p.Platform, p.Name, p.Description, p.Category, p.Subcategory,
		textArray(p.StyleTags), textArray(p.MaterialTags), textArray(p.PatternTags), textArray(p.OccasionTags),
		p.Gender, p.Season, p.CoverImage,
	).Scan(&res.ProductID, &res.Created)
	if err != nil {
		return nil, fmt.Errorf("upsert product: %w", err)
	}

	existing, err := lockVariants(ctx, tx, res.ProductID)
	if err != nil {
		return nil, err
	}

	// Variants are upserted in one round trip; results come back in queue order.
	batch := &pgx.Batch{}
	for _, v := range p.Variants {
		batch.Queue(`
			INSERT INTO product_variants (product_id, variant_key, sku, color, size, fit, material, price, currency,
				stock_count, stock_status, images)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
			ON CONFLICT (product_id, variant_key) DO UPDATE SET
				sku = EXCLUDED.sku,
				color = EXCLUDED.color,
				size = EXCLUDED.size,
				fit = EXCLUDED.fit,
				material = EXCLUDED.material,
				price = EXCLUDED.price,
				currency = EXCLUDED.currency,
				stock_count = EXCLUDED.stock_count,
				stock_status = EXCLUDED.stock_status,
				images = EXCLUDED.images,
				updated_at = NOW()
			RETURNING id`,
			res.ProductID, v.VariantKey, v.SKU, v.Color, v.Size, v.Fit, v.Material, v.Price, v.Currency,
			v.StockCount, v.StockStatus, textArray(v.Images),
		)
	}
	ids := make([]int64, len(p.Variants))
	br := tx.SendBatch(ctx, batch)
	for i := range p.Variants {
		if err := br.QueryRow().Scan(&ids[i]); err != nil {
			br.Close()
			return nil, fmt.Errorf("upsert variant %s: %w", p.Variants[i].VariantKey, err)
		}
	}
	if err := br.Close(); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	history := &pgx.Batch{}
	for i, v := range p.Variants {
		next := v
		next.ID = ids[i]
		old := existing[v.VariantKey]
		if change, ok := entity.DiffPrice(old, next, now); ok {
			history.Queue(`
				INSERT INTO price_history (variant_id, old_price, new_price, currency, recorded_at)
				VALUES ($1, $2, $3, $4, $5)`,
				change.VariantID, change.OldPrice, change.NewPrice, change.Currency, change.RecordedAt,
			)
			res.PriceChanges++
		}
		if change, ok := entity.DiffStock(old, next, now); ok {
			history.Queue(`
				INSERT INTO stock_history (variant_id, old_count, new_count, old_status, new_status, recorded_at)
				VALUES ($1, $2, $3, $4, $5, $6)`,
				change.VariantID, change.OldCount, change.NewCount, change.OldStatus, change.NewStatus, change.RecordedAt,
			)
			res.StockChanges++
		}
	}
	if history.Len() > 0 {
		if err := tx.SendBatch(ctx, history).Close(); err != nil {
			return nil, fmt.Errorf("append history: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return res, nil
}

// lockVariants reads the stored variants of a product FOR UPDATE, keyed by variant key.
func lockVariants(ctx context.Context, tx pgx.Tx, productID int64) (map[string]*entity.Variant, error) {
	rows, err := tx.Query(ctx, `
		SELECT id, variant_key, price, currency, stock_count, stock_status
		FROM product_variants
		WHERE product_id = $1
		FOR UPDATE`,
		productID,
	)
	if err != nil {
		return nil, err
	}
	variants, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*entity.Variant, error) {
		var v entity.Variant
		err := row.Scan(&v.ID, &v.VariantKey, &v.Price, &v.Currency, &v.StockCount, &v.StockStatus)
		return &v, err
	})
	if err != nil {
		return nil, fmt.Errorf("load variants: %w", err)
	}

	byKey := make(map[string]*entity.Variant, len(variants))
	for _, v := range variants {
		byKey[v.VariantKey] = v
	}
	return byKey, nil
}

// textArray keeps NOT NULL array columns from receiving NULL for nil slices.
func textArray(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
