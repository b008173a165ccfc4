package entity

import "time"

// Brand mirrors the `brands` PostgreSQL table schema. Brands are onboarded
// elsewhere; the catalog pipeline reads them and maintains the catalog_* columns.
type Brand struct {
	ID                     string
	Name                   string
	SiteURL                string
	Platform               string
	CatalogLastCompletedAt *time.Time
	CatalogNextDueAt       *time.Time
	CatalogFinishedAt      *time.Time
	CatalogFinishReason    string
	CreatedAt              time.Time
	UpdatedAt              time.Time
}

// IsFinished reports whether catalog extraction was permanently closed for the brand.
func (b *Brand) IsFinished() bool {
	return b.CatalogFinishedAt != nil
}
