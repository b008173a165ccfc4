package repository

import (
	"context"
	"time"

	"github.com/user/catalog-service/internal/entity"
)

// RunRepository is the persistence boundary for catalog runs and their items.
// Every state change is a single-row conditional update.
type RunRepository interface {
	// CreateRun inserts the run and one pending item per URL.
	// It returns entity.ErrActiveRunExists when the brand already has an open run.
	CreateRun(ctx context.Context, run *entity.CatalogRun, urls []string) error
	GetRun(ctx context.Context, id string) (*entity.CatalogRun, error)
	// FindCurrentRun returns the newest run in one of entity.CurrentRunStatuses.
	FindCurrentRun(ctx context.Context, brandID string) (*entity.CatalogRun, error)
	// FindOpenRun returns the newest run in one of entity.OpenRunStatuses.
	FindOpenRun(ctx context.Context, brandID string) (*entity.CatalogRun, error)
	// FindOldestProcessingRun returns the least recently updated processing run,
	// optionally restricted to one brand (empty brandID means any brand).
	FindOldestProcessingRun(ctx context.Context, brandID string) (*entity.CatalogRun, error)
	// TransitionRun moves a run to status `to` if its current status is in `from`.
	// It returns entity.ErrInvalidTransition when the guard does not hold.
	TransitionRun(ctx context.Context, id string, from []entity.RunStatus, to entity.RunStatus, reason string) (*entity.CatalogRun, error)
	// ResetRun unblocks a blocked run, clearing its block reason and error counter.
	ResetRun(ctx context.Context, id string) (*entity.CatalogRun, error)
	// RecordProgress folds one item attempt into the run and returns the updated run.
	RecordProgress(ctx context.Context, id string, p entity.RunProgress) (*entity.CatalogRun, error)
	// CompleteRun marks a processing run completed.
	CompleteRun(ctx context.Context, id string, at time.Time) (*entity.CatalogRun, error)

	GetItem(ctx context.Context, id string) (*entity.CatalogItem, error)
	// ListPendingItems returns unqueued pending items under the attempt cap, oldest update first.
	ListPendingItems(ctx context.Context, runID string, maxAttempts, limit int) ([]*entity.CatalogItem, error)
	// StartItem moves a pending item to processing and increments its attempts.
	// It returns entity.ErrItemNotEligible when the item is not pending or out of attempts.
	StartItem(ctx context.Context, id string, maxAttempts int) (*entity.CatalogItem, error)
	// FinishItem stores a terminal status (completed or failed) for a processing item.
	FinishItem(ctx context.Context, id string, status entity.ItemStatus, lastError string) error
	// RequeueItem returns a processing item to pending while it has attempts left,
	// and fails it permanently otherwise. It reports the resulting status.
	RequeueItem(ctx context.Context, id string, maxAttempts int, lastError string) (entity.ItemStatus, error)
	// MarkItemsQueued stamps items handed to the broker.
	MarkItemsQueued(ctx context.Context, ids []string, at time.Time) error
	// UnmarkItemsQueued clears the queued stamp of pending items the broker did not accept.
	UnmarkItemsQueued(ctx context.Context, ids []string) error
	// ResetStuckItems returns items processing since before olderThan to pending
	// (or failed when out of attempts). It is idempotent.
	ResetStuckItems(ctx context.Context, runID string, olderThan time.Time, maxAttempts int) (int, error)
	// ResetQueuedItems clears the queued stamp of pending items queued before olderThan.
	ResetQueuedItems(ctx context.Context, runID string, olderThan time.Time) (int, error)
	// CountItemsByStatus returns item counts grouped by status.
	CountItemsByStatus(ctx context.Context, runID string) (map[entity.ItemStatus]int, error)
}
