package repository

import (
	"context"
	"time"
)

// JobQueue is the broker used to fan item-processing jobs out to workers.
type JobQueue interface {
	// AddBulk enqueues item ids, skipping ids that already hold a job key.
	// It returns the ids actually enqueued.
	AddBulk(ctx context.Context, itemIDs []string) ([]string, error)
	// Pop blocks up to timeout for the next item id. It returns "" on timeout.
	Pop(ctx context.Context, timeout time.Duration) (string, error)
	// Release drops the job key of an item so it can be enqueued again.
	Release(ctx context.Context, itemID string) error
	// Size returns the current number of waiting jobs.
	Size(ctx context.Context) (int64, error)
	Ping(ctx context.Context) error
}
