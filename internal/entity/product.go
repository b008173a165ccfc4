package entity

import "time"

// Price bounds in major currency units. Values outside are treated as extraction garbage.
const (
	MinSanePrice = 0.0
	MaxSanePrice = 1_000_000.0
)

// Stock statuses stored on variants.
const (
	StockInStock    = "in_stock"
	StockOutOfStock = "out_of_stock"
	StockUnknown    = "unknown"
)

// Product mirrors the `products` PostgreSQL table schema.
type Product struct {
	ID           int64
	BrandID      string
	ExternalID   string
	SourceURL    string
	Platform     string
	Name         string
	Description  string
	Category     string
	Subcategory  string
	StyleTags    []string
	MaterialTags []string
	PatternTags  []string
	OccasionTags []string
	Gender       string
	Season       string
	CoverImage   string
	Variants     []Variant
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Variant mirrors the `product_variants` PostgreSQL table schema.
type Variant struct {
	ID          int64
	ProductID   int64
	VariantKey  string
	SKU         string
	Color       string
	Size        string
	Fit         string
	Material    string
	Price       *float64
	Currency    string
	StockCount  *int
	StockStatus string
	Images      []string
}

// PriceChange is an append-only `price_history` row.
type PriceChange struct {
	VariantID  int64
	OldPrice   *float64
	NewPrice   *float64
	Currency   string
	RecordedAt time.Time
}

// StockChange is an append-only `stock_history` row.
type StockChange struct {
	VariantID  int64
	OldCount   *int
	NewCount   *int
	OldStatus  string
	NewStatus  string
	RecordedAt time.Time
}

// SanePrice returns p when it lies in (MinSanePrice, MaxSanePrice], nil otherwise.
func SanePrice(p *float64) *float64 {
	if p == nil {
		return nil
	}
	if *p <= MinSanePrice || *p > MaxSanePrice || *p != *p {
		return nil
	}
	v := *p
	return &v
}

// UpsertResult reports what an upsert changed.
type UpsertResult struct {
	ProductID    int64
	Created      bool
	Variants     int
	PriceChanges int
	StockChanges int
}

// DiffPrice returns the history row for a variant whose price or currency
// differs from the stored one. A new variant with a price counts as a change
// from nothing.
func DiffPrice(old *Variant, next Variant, at time.Time) (PriceChange, bool) {
	var prev *float64
	if old != nil {
		prev = old.Price
		if floatPtrEqual(prev, next.Price) && old.Currency == next.Currency {
			return PriceChange{}, false
		}
	} else if next.Price == nil {
		return PriceChange{}, false
	}
	return PriceChange{VariantID: next.ID, OldPrice: prev, NewPrice: next.Price, Currency: next.Currency, RecordedAt: at}, true
}

// DiffStock is DiffPrice for stock count and status.
func DiffStock(old *Variant, next Variant, at time.Time) (StockChange, bool) {
	change := StockChange{VariantID: next.ID, NewCount: next.StockCount, NewStatus: next.StockStatus, RecordedAt: at}
	if old == nil {
		return change, next.StockCount != nil || next.StockStatus != StockUnknown
	}
	if intPtrEqual(old.StockCount, next.StockCount) && old.StockStatus == next.StockStatus {
		return StockChange{}, false
	}
	change.OldCount, change.OldStatus = old.StockCount, old.StockStatus
	return change, true
}

func floatPtrEqual(a, b *float64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func intPtrEqual(a, b *int) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
