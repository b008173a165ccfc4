package usecase

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/user/catalog-service/internal/repository"
	"github.com/user/catalog-service/pkg/metrics"
)

// releaseTimeout bounds the job key release after an item attempt.
const releaseTimeout = 5 * time.Second

// QueueWorker consumes item jobs from the job queue with a fixed pool of
// goroutines and processes them with the item processor.
type QueueWorker struct {
	queue      repository.JobQueue
	processor  ItemProcessor
	workers    int
	popTimeout time.Duration
	itemTTL    time.Duration
	logger     *zap.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewQueueWorker creates a QueueWorker. itemTTL bounds one item attempt.
func NewQueueWorker(queue repository.JobQueue, processor ItemProcessor, workers int, itemTTL time.Duration, logger *zap.Logger) *QueueWorker {
	if workers <= 0 {
		workers = 1
	}
	if itemTTL <= 0 {
		itemTTL = 2 * time.Minute
	}
	metrics.Init()
	return &QueueWorker{
		queue:      queue,
		processor:  processor,
		workers:    workers,
		popTimeout: 5 * time.Second,
		itemTTL:    itemTTL,
		logger:     logger,
	}
}

// Start launches the worker goroutines.
func (w *QueueWorker) Start(ctx context.Context) {
	ctx, w.cancel = context.WithCancel(ctx)
	for i := 0; i < w.workers; i++ {
		w.wg.Add(1)
		go w.worker(ctx, i)
	}
	w.logger.Info("queue worker started", zap.Int("workers", w.workers))
}

// Stop cancels the pop loops and waits for in-flight items to finish.
func (w *QueueWorker) Stop() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
}

func (w *QueueWorker) worker(ctx context.Context, id int) {
	defer w.wg.Done()
	log := w.logger.With(zap.Int("worker", id))
	for {
		if ctx.Err() != nil {
			return
		}
		itemID, err := w.queue.Pop(ctx, w.popTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Error("failed to pop item job", zap.Error(err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}
		if itemID == "" {
			continue
		}
		w.handle(log, itemID)
	}
}

// handle processes one job outside the pop context so shutdown lets the
// item finish, then releases the job key.
func (w *QueueWorker) handle(log *zap.Logger, itemID string) {
	ctx, cancel := context.WithTimeout(context.Background(), w.itemTTL)
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			log.Error("item job panicked", zap.String("item_id", itemID), zap.Any("panic", r))
		}
		// The item context may already be past itemTTL here.
		releaseCtx, cancelRelease := context.WithTimeout(context.Background(), releaseTimeout)
		defer cancelRelease()
		if err := w.queue.Release(releaseCtx, itemID); err != nil {
			log.Warn("failed to release item job key", zap.String("item_id", itemID), zap.Error(err))
		}
		if size, err := w.queue.Size(releaseCtx); err == nil {
			metrics.QueueDepth.Set(float64(size))
		}
	}()

	res, err := w.processor.ProcessItem(ctx, itemID)
	if err != nil {
		log.Error("item job failed", zap.String("item_id", itemID), zap.Error(err))
		return
	}
	log.Info("item job processed",
		zap.String("item_id", itemID),
		zap.String("outcome", res.Outcome),
		zap.String("run_status", string(res.RunStatus)),
	)
}
