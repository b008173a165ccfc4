package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/user/catalog-service/internal/entity"
)

const brandColumns = `id, name, site_url, platform, catalog_last_completed_at, catalog_next_due_at,
	catalog_finished_at, catalog_finish_reason, created_at, updated_at`

// BrandRepoImpl implements repository.BrandRepository on the brands table.
type BrandRepoImpl struct {
	db *pgxpool.Pool
}

// NewBrandRepo creates a new instance of BrandRepoImpl.
func NewBrandRepo(db *pgxpool.Pool) *BrandRepoImpl {
	return &BrandRepoImpl{db: db}
}

func scanBrand(row pgx.Row) (*entity.Brand, error) {
	var b entity.Brand
	err := row.Scan(
		&b.ID,
		&b.Name,
		&b.SiteURL,
		&b.Platform,
		&b.CatalogLastCompletedAt,
		&b.CatalogNextDueAt,
		&b.CatalogFinishedAt,
		&b.CatalogFinishReason,
		&b.CreatedAt,
		&b.UpdatedAt,
	)
	if err != nil {
		return nil, notFound(err)
	}
	return &b, nil
}

func (r *BrandRepoImpl) GetBrand(ctx context.Context, id string) (*entity.Brand, error) {
	return scanBrand(r.db.QueryRow(ctx, `SELECT `+brandColumns+` FROM brands WHERE id = $1`, id))
}

// UpsertBrand inserts a brand or refreshes its name and site. It is used to
// seed brands from the operator CLI and local runs.
func (r *BrandRepoImpl) UpsertBrand(ctx context.Context, b *entity.Brand) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO brands (id, name, site_url, platform)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			site_url = EXCLUDED.site_url,
			updated_at = NOW()`,
		b.ID, b.Name, b.SiteURL, b.Platform,
	)
	return err
}

func (r *BrandRepoImpl) UpdatePlatform(ctx context.Context, id, platform string) error {
	return r.exec(ctx, `UPDATE brands SET platform = $2, updated_at = NOW() WHERE id = $1`, id, platform)
}

func (r *BrandRepoImpl) MarkCatalogCompleted(ctx context.Context, id string, completedAt, nextDueAt time.Time) error {
	return r.exec(ctx, `
		UPDATE brands
		SET catalog_last_completed_at = $2, catalog_next_due_at = $3, updated_at = NOW()
		WHERE id = $1`,
		id, completedAt, nextDueAt,
	)
}

func (r *BrandRepoImpl) MarkCatalogFinished(ctx context.Context, id, reason string, at time.Time) error {
	return r.exec(ctx, `
		UPDATE brands
		SET catalog_finished_at = $2, catalog_finish_reason = $3, updated_at = NOW()
		WHERE id = $1`,
		id, at, reason,
	)
}

// ListDueBrands orders never-refreshed brands first, then by due time.
func (r *BrandRepoImpl) ListDueBrands(ctx context.Context, now time.Time, limit int) ([]*entity.Brand, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+brandColumns+`
		FROM brands b
		WHERE b.catalog_finished_at IS NULL
		  AND (b.catalog_next_due_at IS NULL OR b.catalog_next_due_at <= $1)
		  AND NOT EXISTS (
			SELECT 1 FROM catalog_runs r
			WHERE r.brand_id = b.id AND r.status = ANY($2)
		  )
		ORDER BY b.catalog_next_due_at ASC NULLS FIRST, b.id
		LIMIT $3`,
		now, runStatusStrings(entity.OpenRunStatuses), nullLimit(limit),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var brands []*entity.Brand
	for rows.Next() {
		b, err := scanBrand(rows)
		if err != nil {
			return nil, err
		}
		brands = append(brands, b)
	}
	return brands, rows.Err()
}

// exec runs a single-row update and reports entity.ErrNotFound when no row matched.
func (r *BrandRepoImpl) exec(ctx context.Context, sql string, args ...any) error {
	tag, err := r.db.Exec(ctx, sql, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return entity.ErrNotFound
	}
	return nil
}
