package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/user/catalog-service/internal/entity"
)

const runColumns = `id, brand_id, status, platform, total_items, completed_items, failed_items,
	started_at, updated_at, finished_at, last_url, last_stage, last_error, block_reason, consecutive_errors`

const itemColumns = `id, run_id, url, status, attempts, last_error, queued_at, created_at, updated_at`

// RunRepoImpl implements repository.RunRepository on catalog_runs and
// catalog_items. Every state change is one conditional UPDATE.
type RunRepoImpl struct {
	db *pgxpool.Pool
}

// NewRunRepo creates a new instance of RunRepoImpl.
func NewRunRepo(db *pgxpool.Pool) *RunRepoImpl {
	return &RunRepoImpl{db: db}
}

func scanRun(row pgx.Row) (*entity.CatalogRun, error) {
	var (
		run    entity.CatalogRun
		status string
	)
	err := row.Scan(
		&run.ID,
		&run.BrandID,
		&status,
		&run.Platform,
		&run.TotalItems,
		&run.CompletedItems,
		&run.FailedItems,
		&run.StartedAt,
		&run.UpdatedAt,
		&run.FinishedAt,
		&run.LastURL,
		&run.LastStage,
		&run.LastError,
		&run.BlockReason,
		&run.ConsecutiveErrors,
	)
	if err != nil {
		return nil, notFound(err)
	}
	run.Status = entity.RunStatus(status)
	return &run, nil
}

func scanItem(row pgx.Row) (*entity.CatalogItem, error) {
	var (
		item   entity.CatalogItem
		status string
	)
	err := row.Scan(
		&item.ID,
		&item.RunID,
		&item.URL,
		&status,
		&item.Attempts,
		&item.LastError,
		&item.QueuedAt,
		&item.CreatedAt,
		&item.UpdatedAt,
	)
	if err != nil {
		return nil, notFound(err)
	}
	item.Status = entity.ItemStatus(status)
	return &item, nil
}

// CreateRun inserts the run and copies its items in one transaction. The
// partial unique index on open runs turns a concurrent start into
// entity.ErrActiveRunExists.
func (r *RunRepoImpl) CreateRun(ctx context.Context, run *entity.CatalogRun, urls []string) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	now := time.Now().UTC()
	if run.StartedAt.IsZero() {
		run.StartedAt = now
	}
	run.UpdatedAt = now

	seen := make(map[string]bool, len(urls))
	rows := make([][]any, 0, len(urls))
	for _, u := range urls {
		if seen[u] {
			continue
		}
		seen[u] = true
		rows = append(rows, []any{uuid.NewString(), run.ID, u, string(entity.ItemPending), now, now})
	}
	run.TotalItems = len(rows)

	_, err = tx.Exec(ctx, `
		INSERT INTO catalog_runs (id, brand_id, status, platform, total_items, started_at, updated_at, last_stage)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		run.ID, run.BrandID, string(run.Status), run.Platform, run.TotalItems, run.StartedAt, run.UpdatedAt, run.LastStage,
	)
	if isUniqueViolation(err) {
		return entity.ErrActiveRunExists
	}
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	if _, err := tx.CopyFrom(ctx,
		pgx.Identifier{"catalog_items"},
		[]string{"id", "run_id", "url", "status", "created_at", "updated_at"},
		pgx.CopyFromRows(rows),
	); err != nil {
		return fmt.Errorf("copy items: %w", err)
	}
	return tx.Commit(ctx)
}

func (r *RunRepoImpl) GetRun(ctx context.Context, id string) (*entity.CatalogRun, error) {
	return scanRun(r.db.QueryRow(ctx, `SELECT `+runColumns+` FROM catalog_runs WHERE id = $1`, id))
}

func (r *RunRepoImpl) FindCurrentRun(ctx context.Context, brandID string) (*entity.CatalogRun, error) {
	return r.newestRun(ctx, brandID, entity.CurrentRunStatuses)
}

func (r *RunRepoImpl) FindOpenRun(ctx context.Context, brandID string) (*entity.CatalogRun, error) {
	return r.newestRun(ctx, brandID, entity.OpenRunStatuses)
}

func (r *RunRepoImpl) newestRun(ctx context.Context, brandID string, statuses []entity.RunStatus) (*entity.CatalogRun, error) {
	return scanRun(r.db.QueryRow(ctx, `
		SELECT `+runColumns+`
		FROM catalog_runs
		WHERE brand_id = $1 AND status = ANY($2)
		ORDER BY started_at DESC
		LIMIT 1`,
		brandID, runStatusStrings(statuses),
	))
}

func (r *RunRepoImpl) FindOldestProcessingRun(ctx context.Context, brandID string) (*entity.CatalogRun, error) {
	return scanRun(r.db.QueryRow(ctx, `
		SELECT `+runColumns+`
		FROM catalog_runs
		WHERE status = 'processing' AND ($1::text = '' OR brand_id = $1::text)
		ORDER BY updated_at, id
		LIMIT 1`,
		brandID,
	))
}

func (r *RunRepoImpl) TransitionRun(ctx context.Context, id string, from []entity.RunStatus, to entity.RunStatus, reason string) (*entity.CatalogRun, error) {
	run, err := scanRun(r.db.QueryRow(ctx, `
		UPDATE catalog_runs SET
			status = $3::text,
			block_reason = CASE WHEN $3::text = 'blocked' THEN $4::text ELSE block_reason END,
			finished_at = CASE WHEN $3::text IN ('stopped', 'completed') THEN NOW() ELSE finished_at END,
			updated_at = NOW()
		WHERE id = $1 AND status = ANY($2)
		RETURNING `+runColumns,
		id, runStatusStrings(from), string(to), reason,
	))
	if errors.Is(err, entity.ErrNotFound) {
		return nil, r.guardFailed(ctx, "catalog_runs", id, entity.ErrInvalidTransition)
	}
	return run, err
}

func (r *RunRepoImpl) ResetRun(ctx context.Context, id string) (*entity.CatalogRun, error) {
	run, err := scanRun(r.db.QueryRow(ctx, `
		UPDATE catalog_runs
		SET status = 'processing', block_reason = '', consecutive_errors = 0, updated_at = NOW()
		WHERE id = $1 AND status = 'blocked'
		RETURNING `+runColumns,
		id,
	))
	if errors.Is(err, entity.ErrNotFound) {
		return nil, r.guardFailed(ctx, "catalog_runs", id, entity.ErrInvalidTransition)
	}
	return run, err
}

func (r *RunRepoImpl) RecordProgress(ctx context.Context, id string, p entity.RunProgress) (*entity.CatalogRun, error) {
	return scanRun(r.db.QueryRow(ctx, `
		UPDATE catalog_runs SET
			last_url = COALESCE(NULLIF($2::text, ''), last_url),
			last_stage = COALESCE(NULLIF($3::text, ''), last_stage),
			last_error = COALESCE(NULLIF($4::text, ''), last_error),
			consecutive_errors = CASE WHEN $5::boolean THEN 0 ELSE consecutive_errors + $6::int END,
			completed_items = completed_items + $7::int,
			failed_items = failed_items + $8::int,
			updated_at = NOW()
		WHERE id = $1
		RETURNING `+runColumns,
		id, p.LastURL, p.LastStage, p.LastError, p.ResetErrors, p.ErrorDelta, p.Completed, p.Failed,
	))
}

func (r *RunRepoImpl) CompleteRun(ctx context.Context, id string, at time.Time) (*entity.CatalogRun, error) {
	run, err := scanRun(r.db.QueryRow(ctx, `
		UPDATE catalog_runs
		SET status = 'completed', finished_at = $2, updated_at = $2
		WHERE id = $1 AND status = 'processing'
		RETURNING `+runColumns,
		id, at,
	))
	if errors.Is(err, entity.ErrNotFound) {
		return nil, r.guardFailed(ctx, "catalog_runs", id, entity.ErrInvalidTransition)
	}
	return run, err
}

func (r *RunRepoImpl) GetItem(ctx context.Context, id string) (*entity.CatalogItem, error) {
	return scanItem(r.db.QueryRow(ctx, `SELECT `+itemColumns+` FROM catalog_items WHERE id = $1`, id))
}

func (r *RunRepoImpl) ListPendingItems(ctx context.Context, runID string, maxAttempts, limit int) ([]*entity.CatalogItem, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+itemColumns+`
		FROM catalog_items
		WHERE run_id = $1 AND status = 'pending' AND attempts < $2 AND queued_at IS NULL
		ORDER BY updated_at, id
		LIMIT $3`,
		runID, maxAttempts, nullLimit(limit),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*entity.CatalogItem
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (r *RunRepoImpl) StartItem(ctx context.Context, id string, maxAttempts int) (*entity.CatalogItem, error) {
	item, err := scanItem(r.db.QueryRow(ctx, `
		UPDATE catalog_items
		SET status = 'processing', attempts = attempts + 1, queued_at = NULL, updated_at = NOW()
		WHERE id = $1 AND status = 'pending' AND attempts < $2
		RETURNING `+itemColumns,
		id, maxAttempts,
	))
	if errors.Is(err, entity.ErrNotFound) {
		return nil, r.guardFailed(ctx, "catalog_items", id, entity.ErrItemNotEligible)
	}
	return item, err
}

func (r *RunRepoImpl) FinishItem(ctx context.Context, id string, status entity.ItemStatus, lastError string) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE catalog_items SET status = $2, last_error = $3, updated_at = NOW() WHERE id = $1`,
		id, string(status), lastError,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return entity.ErrNotFound
	}
	return nil
}

func (r *RunRepoImpl) RequeueItem(ctx context.Context, id string, maxAttempts int, lastError string) (entity.ItemStatus, error) {
	var status string
	err := r.db.QueryRow(ctx, `
		UPDATE catalog_items
		SET status = CASE WHEN attempts >= $2 THEN 'failed' ELSE 'pending' END,
			last_error = $3,
			updated_at = NOW()
		WHERE id = $1
		RETURNING status`,
		id, maxAttempts, lastError,
	).Scan(&status)
	if err != nil {
		return "", notFound(err)
	}
	return entity.ItemStatus(status), nil
}

func (r *RunRepoImpl) MarkItemsQueued(ctx context.Context, ids []string, at time.Time) error {
	_, err := r.db.Exec(ctx, `
		UPDATE catalog_items SET queued_at = $2 WHERE id = ANY($1) AND status = 'pending'`,
		ids, at,
	)
	return err
}

func (r *RunRepoImpl) UnmarkItemsQueued(ctx context.Context, ids []string) error {
	_, err := r.db.Exec(ctx, `
		UPDATE catalog_items SET queued_at = NULL WHERE id = ANY($1) AND status = 'pending'`,
		ids,
	)
	return err
}

func (r *RunRepoImpl) ResetStuckItems(ctx context.Context, runID string, olderThan time.Time, maxAttempts int) (int, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE catalog_items
		SET status = CASE WHEN attempts >= $3 THEN 'failed' ELSE 'pending' END,
			last_error = 'reset after being stuck in processing',
			updated_at = NOW()
		WHERE run_id = $1 AND status = 'processing' AND updated_at < $2`,
		runID, olderThan, maxAttempts,
	)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

func (r *RunRepoImpl) ResetQueuedItems(ctx context.Context, runID string, olderThan time.Time) (int, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE catalog_items
		SET queued_at = NULL
		WHERE run_id = $1 AND status = 'pending' AND queued_at < $2`,
		runID, olderThan,
	)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

func (r *RunRepoImpl) CountItemsByStatus(ctx context.Context, runID string) (map[entity.ItemStatus]int, error) {
	rows, err := r.db.Query(ctx, `
		SELECT status, COUNT(*) FROM catalog_items WHERE run_id = $1 GROUP BY status`,
		runID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[entity.ItemStatus]int)
	for rows.Next() {
		var (
			status string
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[entity.ItemStatus(status)] = n
	}
	return counts, rows.Err()
}

// guardFailed tells a missing row apart from a failed status guard after a
// conditional UPDATE matched nothing.
func (r *RunRepoImpl) guardFailed(ctx context.Context, table, id string, guardErr error) error {
	var exists bool
	if err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM `+table+` WHERE id = $1)`, id).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return entity.ErrNotFound
	}
	return guardErr
}
