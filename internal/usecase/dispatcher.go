package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/user/catalog-service/internal/entity"
	"github.com/user/catalog-service/internal/repository"
	"github.com/user/catalog-service/pkg/metrics"
)

// DispatchOptions bound one dispatch call.
type DispatchOptions struct {
	Concurrency int
	// Deadline is checked before each item starts; in-flight items are not cancelled.
	Deadline time.Time
}

// Dispatcher hands pending items to the item processor, either in-process
// or through a broker. It is chosen once at startup.
type Dispatcher interface {
	Name() string
	// Dispatch returns how many items were processed or enqueued and the last
	// processed result, if any.
	Dispatch(ctx context.Context, items []*entity.CatalogItem, opts DispatchOptions) (int, *ItemResult, error)
}

// InlineDispatcher processes items in the calling process with bounded concurrency.
type InlineDispatcher struct {
	processor ItemProcessor
	logger    *zap.Logger
}

// NewInlineDispatcher creates an InlineDispatcher.
func NewInlineDispatcher(processor ItemProcessor, logger *zap.Logger) *InlineDispatcher {
	return &InlineDispatcher{processor: processor, logger: logger}
}

func (d *InlineDispatcher) Name() string { return "inline" }

func (d *InlineDispatcher) Dispatch(ctx context.Context, items []*entity.CatalogItem, opts DispatchOptions) (int, *ItemResult, error) {
	var (
		mu        sync.Mutex
		processed int
		last      *ItemResult
	)

	expired := func() bool {
		return ctx.Err() != nil || (!opts.Deadline.IsZero() && !time.Now().Before(opts.Deadline))
	}

	var g errgroup.Group
	g.SetLimit(max(opts.Concurrency, 1))
	for _, item := range items {
		if expired() {
			break
		}
		// g.Go blocks until a slot frees, so the budget is checked again
		// once the item holds one.
		g.Go(func() error {
			if expired() {
				return nil
			}
			res := d.process(ctx, item.ID)
			mu.Lock()
			defer mu.Unlock()
			processed++
			if res != nil {
				last = res
			}
			return nil
		})
	}
	_ = g.Wait()
	return processed, last, nil
}

// process never lets an item failure escape, panics included.
func (d *InlineDispatcher) process(ctx context.Context, itemID string) (res *ItemResult) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("item processing panicked", zap.String("item_id", itemID), zap.Any("panic", r))
			res = nil
		}
	}()
	res, err := d.processor.ProcessItem(ctx, itemID)
	if err != nil {
		d.logger.Error("item processing failed", zap.String("item_id", itemID), zap.Error(err))
		return nil
	}
	return res
}

// QueueDispatcher enqueues item ids on the job queue for QueueWorker or the
// process-item callback to pick up.
type QueueDispatcher struct {
	queue  repository.JobQueue
	runs   repository.RunRepository
	logger *zap.Logger
}

// NewQueueDispatcher creates a QueueDispatcher.
func NewQueueDispatcher(queue repository.JobQueue, runs repository.RunRepository, logger *zap.Logger) *QueueDispatcher {
	metrics.Init()
	return &QueueDispatcher{queue: queue, runs: runs, logger: logger}
}

func (d *QueueDispatcher) Name() string { return "queue" }

// Dispatch stamps items as queued before enqueueing them, so a crash in
// between leaves items that ResetQueuedItems recovers. Items the broker
// skips lose the stamp again.
func (d *QueueDispatcher) Dispatch(ctx context.Context, items []*entity.CatalogItem, _ DispatchOptions) (int, *ItemResult, error) {
	if len(items) == 0 {
		return 0, nil, nil
	}
	ids := make([]string, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.ID)
	}
	if err := d.runs.MarkItemsQueued(ctx, ids, time.Now().UTC()); err != nil {
		return 0, nil, fmt.Errorf("mark items queued: %w", err)
	}
	enqueued, err := d.queue.AddBulk(ctx, ids)
	if err != nil {
		return 0, nil, fmt.Errorf("enqueue items: %w", err)
	}
	if skipped := notEnqueued(ids, enqueued); len(skipped) > 0 {
		if err := d.runs.UnmarkItemsQueued(ctx, skipped); err != nil {
			return len(enqueued), nil, fmt.Errorf("unmark skipped items: %w", err)
		}
	}
	if size, err := d.queue.Size(ctx); err == nil {
		metrics.QueueDepth.Set(float64(size))
	}
	d.logger.Info("enqueued catalog items", zap.Int("requested", len(ids)), zap.Int("enqueued", len(enqueued)))
	return len(enqueued), nil, nil
}

func notEnqueued(ids, enqueued []string) []string {
	accepted := make(map[string]struct{}, len(enqueued))
	for _, id := range enqueued {
		accepted[id] = struct{}{}
	}
	var skipped []string
	for _, id := range ids {
		if _, ok := accepted[id]; !ok {
			skipped = append(skipped, id)
		}
	}
	return skipped
}

// SelectDispatcher returns the queue dispatcher when the broker is enabled
// and answers a ping, and the inline dispatcher otherwise.
func SelectDispatcher(ctx context.Context, queue repository.JobQueue, runs repository.RunRepository, processor ItemProcessor, logger *zap.Logger) Dispatcher {
	if queue != nil {
		pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		defer cancel()
		err := queue.Ping(pingCtx)
		if err == nil {
			logger.Info("dispatching catalog items through the job queue")
			return NewQueueDispatcher(queue, runs, logger)
		}
		logger.Warn("job queue unreachable, processing items inline", zap.Error(err))
	}
	return NewInlineDispatcher(processor, logger)
}
