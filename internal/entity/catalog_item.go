package entity

import "time"

// ItemStatus is the processing state of a CatalogItem.
type ItemStatus string

const (
	ItemPending    ItemStatus = "pending"
	ItemProcessing ItemStatus = "processing"
	ItemCompleted  ItemStatus = "completed"
	ItemFailed     ItemStatus = "failed"
)

// CatalogItem mirrors the `catalog_items` PostgreSQL table schema.
type CatalogItem struct {
	ID        string
	RunID     string
	URL       string
	Status    ItemStatus
	Attempts  int
	LastError string
	// QueuedAt is set while the item sits in the broker and cleared when processing starts.
	QueuedAt  *time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}
