package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/user/catalog-service/internal/entity"
	"github.com/user/catalog-service/internal/repository"
	"github.com/user/catalog-service/pkg/metrics"
)

// Drain limits applied when a request leaves a field at zero or exceeds the maximum.
const (
	MaxDrainBatch       = 200
	MaxDrainConcurrency = 16
	MaxDrainWallClock   = 280 * time.Second
)

// Reasons a drain returned, reported in DrainResult.StoppedBy.
const (
	StopBatchFull   = "batch_full"
	StopDeadline    = "deadline"
	StopNoRun       = "no_run"
	StopRunInactive = "run_inactive"
	StopIdle        = "idle"
	StopNoProgress  = "no_progress"
)

// DrainRequest is one bounded slice of work.
type DrainRequest struct {
	BrandID      string
	BatchSize    int
	Concurrency  int
	MaxWallClock time.Duration
}

// DrainResult reports the slice.
type DrainResult struct {
	Processed  int                `json:"processed"`
	LastResult *ItemResult        `json:"lastResult"`
	RunID      string             `json:"runId,omitempty"`
	RunStatus  entity.RunStatus   `json:"runStatus,omitempty"`
	Summary    *entity.RunSummary `json:"summary,omitempty"`
	Dispatcher string             `json:"dispatcher"`
	StoppedBy  string             `json:"stoppedBy"`
}

// DrainConfig holds defaults and recovery thresholds.
type DrainConfig struct {
	DefaultBatch       int
	DefaultConcurrency int
	DefaultWallClock   time.Duration
	MaxAttempts        int
	StuckItemAge       time.Duration
	QueuedItemAge      time.Duration
	RefreshInterval    time.Duration
}

// DrainController processes pending items of the oldest processing run under
// a batch size, concurrency limit and wall-clock budget.
type DrainController interface {
	// Drain never returns item-level errors; only store failures escape.
	Drain(ctx context.Context, req DrainRequest) (*DrainResult, error)
}

type drainUseCase struct {
	runs       repository.RunRepository
	dispatcher Dispatcher
	finalizer  *runFinalizer
	config     DrainConfig
	logger     *zap.Logger
}

// NewDrainController creates a DrainController.
func NewDrainController(
	runs repository.RunRepository,
	brands repository.BrandRepository,
	dispatcher Dispatcher,
	cfg DrainConfig,
	logger *zap.Logger,
) DrainController {
	if cfg.DefaultBatch <= 0 {
		cfg.DefaultBatch = 10
	}
	if cfg.DefaultConcurrency <= 0 {
		cfg.DefaultConcurrency = 3
	}
	if cfg.DefaultWallClock <= 0 {
		cfg.DefaultWallClock = 25 * time.Second
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	metrics.Init()
	return &drainUseCase{
		runs:       runs,
		dispatcher: dispatcher,
		finalizer: &runFinalizer{
			runs:            runs,
			brands:          brands,
			refreshInterval: cfg.RefreshInterval,
			logger:          logger,
		},
		config: cfg,
		logger: logger,
	}
}

func (uc *drainUseCase) normalize(req DrainRequest) DrainRequest {
	if req.BatchSize <= 0 {
		req.BatchSize = uc.config.DefaultBatch
	}
	if req.Concurrency <= 0 {
		req.Concurrency = uc.config.DefaultConcurrency
	}
	if req.MaxWallClock <= 0 {
		req.MaxWallClock = uc.config.DefaultWallClock
	}
	req.BatchSize = min(req.BatchSize, MaxDrainBatch)
	req.Concurrency = min(req.Concurrency, MaxDrainConcurrency, req.BatchSize)
	req.MaxWallClock = min(req.MaxWallClock, MaxDrainWallClock)
	return req
}

func (uc *drainUseCase) Drain(ctx context.Context, req DrainRequest) (*DrainResult, error) {
	req = uc.normalize(req)
	start := time.Now()
	deadline := start.Add(req.MaxWallClock)
	defer func() {
		metrics.DrainDuration.Observe(time.Since(start).Seconds())
	}()

	res := &DrainResult{Dispatcher: uc.dispatcher.Name()}
	var current *entity.CatalogRun
	for res.StoppedBy == "" {
		if res.Processed >= req.BatchSize {
			res.StoppedBy = StopBatchFull
			break
		}
		if !time.Now().Before(deadline) {
			res.StoppedBy = StopDeadline
			break
		}

		run, err := uc.runs.FindOldestProcessingRun(ctx, req.BrandID)
		if errors.Is(err, entity.ErrNotFound) {
			res.StoppedBy = StopNoRun
			break
		}
		if err != nil {
			return res, fmt.Errorf("find processing run: %w", err)
		}
		current = run
		res.RunID, res.RunStatus = run.ID, run.Status

		if err := uc.recoverItems(ctx, run); err != nil {
			return res, err
		}

		items, err := uc.runs.ListPendingItems(ctx, run.ID, uc.config.MaxAttempts, req.BatchSize-res.Processed)
		if err != nil {
			return res, fmt.Errorf("list pending items: %w", err)
		}
		if len(items) == 0 {
			final, summary, err := uc.finalizer.finalize(ctx, run)
			if err != nil {
				return res, err
			}
			current, res.RunStatus, res.Summary = final, final.Status, summary
			if final.Status != entity.RunCompleted {
				// Remaining items are in flight or queued elsewhere.
				res.StoppedBy = StopIdle
			}
			continue
		}

		n, last, err := uc.dispatcher.Dispatch(ctx, items, DispatchOptions{Concurrency: req.Concurrency, Deadline: deadline})
		res.Processed += n
		if last != nil {
			res.LastResult = last
		}
		if err != nil {
			return res, err
		}

		after, err := uc.runs.GetRun(ctx, run.ID)
		if err != nil {
			return res, fmt.Errorf("reload run %s: %w", run.ID, err)
		}
		current, res.RunStatus = after, after.Status
		switch {
		case after.Status == entity.RunCompleted:
			res.Summary = nil
		case after.Status != entity.RunProcessing:
			res.StoppedBy = StopRunInactive
		case n == 0 && time.Now().Before(deadline):
			res.StoppedBy = StopNoProgress
		}
	}

	if current != nil && res.Summary == nil {
		summary, err := summarizeRun(ctx, uc.runs, current.ID)
		if err != nil {
			return res, err
		}
		res.Summary = summary
	}

	uc.logger.Info("drain finished",
		zap.String("brand_id", req.BrandID),
		zap.String("run_id", res.RunID),
		zap.String("run_status", string(res.RunStatus)),
		zap.Int("processed", res.Processed),
		zap.String("stopped_by", res.StoppedBy),
		zap.Duration("elapsed", time.Since(start)),
	)
	return res, nil
}

// recoverItems returns crashed and never-started items of a run to selection.
// Both resets are idempotent.
func (uc *drainUseCase) recoverItems(ctx context.Context, run *entity.CatalogRun) error {
	now := time.Now().UTC()
	if uc.config.StuckItemAge > 0 {
		n, err := uc.runs.ResetStuckItems(ctx, run.ID, now.Add(-uc.config.StuckItemAge), uc.config.MaxAttempts)
		if err != nil {
			return fmt.Errorf("reset stuck items: %w", err)
		}
		if n > 0 {
			uc.logger.Warn("reset stuck catalog items", zap.String("run_id", run.ID), zap.Int("count", n))
		}
	}
	if uc.config.QueuedItemAge > 0 {
		n, err := uc.runs.ResetQueuedItems(ctx, run.ID, now.Add(-uc.config.QueuedItemAge))
		if err != nil {
			return fmt.Errorf("reset queued items: %w", err)
		}
		if n > 0 {
			uc.logger.Warn("re-queued stale catalog items", zap.String("run_id", run.ID), zap.Int("count", n))
		}
	}
	return nil
}
