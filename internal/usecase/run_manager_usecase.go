package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/user/catalog-service/internal/entity"
	"github.com/user/catalog-service/internal/repository"
	"github.com/user/catalog-service/pkg/metrics"
)

// StartRequest starts a catalog run for one brand.
type StartRequest struct {
	BrandID string
	// BatchSize sizes the discovery limit; zero uses the configured default.
	BatchSize   int
	ForceDetect bool
}

// RunState is a brand's current run with ground-truth item counts.
// Run and Summary are nil when the brand has no current run.
type RunState struct {
	BrandID string
	Run     *entity.CatalogRun
	Summary *entity.RunSummary
}

// RefreshResult reports what StartDueRuns did per brand.
type RefreshResult struct {
	Started []string          `json:"started"`
	Skipped map[string]string `json:"skipped"`
}

// RunManager drives the run state machine from operator and scheduler calls.
type RunManager interface {
	Start(ctx context.Context, req StartRequest) (*RunState, error)
	Pause(ctx context.Context, brandID string) (*RunState, error)
	Resume(ctx context.Context, brandID string) (*RunState, error)
	Stop(ctx context.Context, brandID string) (*RunState, error)
	Reset(ctx context.Context, brandID string) (*RunState, error)
	State(ctx context.Context, brandID string) (*RunState, error)
	SummarizeRun(ctx context.Context, runID string) (*entity.RunSummary, error)
	Finish(ctx context.Context, brandID, reason string) (*entity.Brand, error)
	StartDueRuns(ctx context.Context, limit int) (*RefreshResult, error)
}

type runManagerUseCase struct {
	runs             repository.RunRepository
	brands           repository.BrandRepository
	discovery        Discovery
	defaultBatchSize int
	logger           *zap.Logger
}

// NewRunManager creates a RunManager.
func NewRunManager(
	runs repository.RunRepository,
	brands repository.BrandRepository,
	discovery Discovery,
	defaultBatchSize int,
	logger *zap.Logger,
) RunManager {
	metrics.Init()
	return &runManagerUseCase{
		runs:             runs,
		brands:           brands,
		discovery:        discovery,
		defaultBatchSize: defaultBatchSize,
		logger:           logger,
	}
}

func (uc *runManagerUseCase) Start(ctx context.Context, req StartRequest) (*RunState, error) {
	brand, err := uc.brands.GetBrand(ctx, req.BrandID)
	if err != nil {
		return nil, fmt.Errorf("get brand %s: %w", req.BrandID, err)
	}
	if brand.IsFinished() {
		return nil, entity.ErrBrandFinished
	}

	open, err := uc.runs.FindOpenRun(ctx, brand.ID)
	switch {
	case err == nil:
		return nil, fmt.Errorf("run %s is %s: %w", open.ID, open.Status, entity.ErrActiveRunExists)
	case !errors.Is(err, entity.ErrNotFound):
		return nil, fmt.Errorf("find open run: %w", err)
	}

	batch := req.BatchSize
	if batch <= 0 {
		batch = uc.defaultBatchSize
	}
	found := uc.discovery.Discover(ctx, brand, DiscoverOptions{BatchSize: batch, ForceDetect: req.ForceDetect})
	if len(found.URLs) == 0 {
		return nil, entity.ErrNoProductsDiscovered
	}

	now := time.Now().UTC()
	run := &entity.CatalogRun{
		ID:         uuid.NewString(),
		BrandID:    brand.ID,
		Status:     entity.RunProcessing,
		Platform:   found.Platform,
		TotalItems: len(found.URLs),
		StartedAt:  now,
		UpdatedAt:  now,
		LastStage:  entity.StageDiscover,
	}
	if err := uc.runs.CreateRun(ctx, run, found.URLs); err != nil {
		return nil, fmt.Errorf("create run: %w", err)
	}
	metrics.RunsTotal.WithLabelValues(string(entity.RunProcessing)).Inc()
	uc.logger.Info("catalog run started",
		zap.String("brand_id", brand.ID),
		zap.String("run_id", run.ID),
		zap.String("platform", run.Platform),
		zap.String("strategy", found.Strategy),
		zap.Int("items", run.TotalItems),
	)
	return uc.stateOf(ctx, brand.ID, run)
}

func (uc *runManagerUseCase) Pause(ctx context.Context, brandID string) (*RunState, error) {
	return uc.transition(ctx, brandID, []entity.RunStatus{entity.RunProcessing}, entity.RunPaused)
}

func (uc *runManagerUseCase) Resume(ctx context.Context, brandID string) (*RunState, error) {
	return uc.transition(ctx, brandID, []entity.RunStatus{entity.RunPaused}, entity.RunProcessing)
}

func (uc *runManagerUseCase) Stop(ctx context.Context, brandID string) (*RunState, error) {
	return uc.transition(ctx, brandID, entity.OpenRunStatuses, entity.RunStopped)
}

// Reset unblocks a blocked run.
func (uc *runManagerUseCase) Reset(ctx context.Context, brandID string) (*RunState, error) {
	run, err := uc.runs.FindOpenRun(ctx, brandID)
	if err != nil {
		return nil, err
	}
	if run.Status != entity.RunBlocked {
		return nil, fmt.Errorf("run %s is %s: %w", run.ID, run.Status, entity.ErrInvalidTransition)
	}
	reset, err := uc.runs.ResetRun(ctx, run.ID)
	if err != nil {
		return nil, fmt.Errorf("reset run %s: %w", run.ID, err)
	}
	metrics.RunsTotal.WithLabelValues(string(entity.RunProcessing)).Inc()
	uc.logger.Info("catalog run reset", zap.String("brand_id", brandID), zap.String("run_id", run.ID),
		zap.String("previous_block_reason", run.BlockReason))
	return uc.stateOf(ctx, brandID, reset)
}

func (uc *runManagerUseCase) transition(ctx context.Context, brandID string, from []entity.RunStatus, to entity.RunStatus) (*RunState, error) {
	run, err := uc.runs.FindOpenRun(ctx, brandID)
	if err != nil {
		return nil, err
	}
	updated, err := uc.runs.TransitionRun(ctx, run.ID, from, to, "")
	if err != nil {
		return nil, fmt.Errorf("run %s %s -> %s: %w", run.ID, run.Status, to, err)
	}
	metrics.RunsTotal.WithLabelValues(string(to)).Inc()
	uc.logger.Info("catalog run transitioned",
		zap.String("brand_id", brandID),
		zap.String("run_id", run.ID),
		zap.String("from", string(run.Status)),
		zap.String("to", string(to)),
	)
	return uc.stateOf(ctx, brandID, updated)
}

func (uc *runManagerUseCase) State(ctx context.Context, brandID string) (*RunState, error) {
	if _, err := uc.brands.GetBrand(ctx, brandID); err != nil {
		return nil, err
	}
	run, err := uc.runs.FindCurrentRun(ctx, brandID)
	if errors.Is(err, entity.ErrNotFound) {
		return &RunState{BrandID: brandID}, nil
	}
	if err != nil {
		return nil, err
	}
	return uc.stateOf(ctx, brandID, run)
}

func (uc *runManagerUseCase) stateOf(ctx context.Context, brandID string, run *entity.CatalogRun) (*RunState, error) {
	summary, err := summarizeRun(ctx, uc.runs, run.ID)
	if err != nil {
		return nil, err
	}
	return &RunState{BrandID: brandID, Run: run, Summary: summary}, nil
}

func (uc *runManagerUseCase) SummarizeRun(ctx context.Context, runID string) (*entity.RunSummary, error) {
	return summarizeRun(ctx, uc.runs, runID)
}

// Finish stops any open run and excludes the brand from future refreshes.
func (uc *runManagerUseCase) Finish(ctx context.Context, brandID, reason string) (*entity.Brand, error) {
	if _, err := uc.brands.GetBrand(ctx, brandID); err != nil {
		return nil, err
	}
	if reason == "" {
		reason = "finished by operator"
	}

	run, err := uc.runs.FindOpenRun(ctx, brandID)
	switch {
	case err == nil:
		_, terr := uc.runs.TransitionRun(ctx, run.ID, entity.OpenRunStatuses, entity.RunStopped, "")
		switch {
		case terr == nil:
			metrics.RunsTotal.WithLabelValues(string(entity.RunStopped)).Inc()
		case !errors.Is(terr, entity.ErrInvalidTransition):
			return nil, fmt.Errorf("stop run %s: %w", run.ID, terr)
		}
	case !errors.Is(err, entity.ErrNotFound):
		return nil, err
	}

	if err := uc.brands.MarkCatalogFinished(ctx, brandID, reason, time.Now().UTC()); err != nil {
		return nil, fmt.Errorf("mark brand finished: %w", err)
	}
	uc.logger.Info("catalog extraction finished for brand", zap.String("brand_id", brandID), zap.String("reason", reason))
	return uc.brands.GetBrand(ctx, brandID)
}

// StartDueRuns starts a run for every brand whose refresh is due.
func (uc *runManagerUseCase) StartDueRuns(ctx context.Context, limit int) (*RefreshResult, error) {
	due, err := uc.brands.ListDueBrands(ctx, time.Now().UTC(), limit)
	if err != nil {
		return nil, fmt.Errorf("list due brands: %w", err)
	}

	res := &RefreshResult{Started: []string{}, Skipped: map[string]string{}}
	for _, brand := range due {
		if ctx.Err() != nil {
			break
		}
		state, err := uc.Start(ctx, StartRequest{BrandID: brand.ID})
		if err != nil {
			res.Skipped[brand.ID] = err.Error()
			uc.logger.Warn("refresh run not started", zap.String("brand_id", brand.ID), zap.Error(err))
			continue
		}
		res.Started = append(res.Started, state.Run.ID)
	}
	return res, nil
}

// summarizeRun counts items from the store instead of trusting the run's
// denormalized counters. Processing items count as pending.
func summarizeRun(ctx context.Context, runs repository.RunRepository, runID string) (*entity.RunSummary, error) {
	counts, err := runs.CountItemsByStatus(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("count items of run %s: %w", runID, err)
	}
	s := &entity.RunSummary{
		Completed:  counts[entity.ItemCompleted],
		Failed:     counts[entity.ItemFailed],
		Processing: counts[entity.ItemProcessing],
		Pending:    counts[entity.ItemPending] + counts[entity.ItemProcessing],
	}
	s.Total = s.Completed + s.Failed + s.Pending
	return s, nil
}

// runFinalizer completes runs whose items are all terminal and records the
// refresh on the brand.
type runFinalizer struct {
	runs            repository.RunRepository
	brands          repository.BrandRepository
	refreshInterval time.Duration
	logger          *zap.Logger
}

func (f *runFinalizer) finalize(ctx context.Context, run *entity.CatalogRun) (*entity.CatalogRun, *entity.RunSummary, error) {
	summary, err := summarizeRun(ctx, f.runs, run.ID)
	if err != nil {
		return run, nil, err
	}
	if !summary.IsDone() || run.Status != entity.RunProcessing {
		return run, summary, nil
	}

	now := time.Now().UTC()
	completed, err := f.runs.CompleteRun(ctx, run.ID, now)
	if errors.Is(err, entity.ErrInvalidTransition) {
		current, err := f.runs.GetRun(ctx, run.ID)
		if err != nil {
			return run, summary, err
		}
		return current, summary, nil
	}
	if err != nil {
		return run, summary, fmt.Errorf("complete run %s: %w", run.ID, err)
	}

	metrics.RunsTotal.WithLabelValues(string(entity.RunCompleted)).Inc()
	if err := f.brands.MarkCatalogCompleted(ctx, run.BrandID, now, now.Add(f.refreshInterval)); err != nil {
		f.logger.Error("failed to record catalog refresh on brand", zap.String("brand_id", run.BrandID), zap.Error(err))
	}
	f.logger.Info("catalog run completed",
		zap.String("run_id", run.ID),
		zap.String("brand_id", run.BrandID),
		zap.Int("completed", summary.Completed),
		zap.Int("failed", summary.Failed),
	)
	return completed, summary, nil
}
