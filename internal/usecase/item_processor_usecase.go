package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/user/catalog-service/internal/entity"
	"github.com/user/catalog-service/internal/platform"
	"github.com/user/catalog-service/internal/repository"
	"github.com/user/catalog-service/pkg/metrics"
)

// Item outcomes reported in ItemResult.Outcome.
const (
	OutcomeCompleted = "completed"
	OutcomeFailed    = "failed"
	OutcomeRequeued  = "requeued"
	OutcomeSkipped   = "skipped"
)

// ItemResult is the structured result of one item attempt.
type ItemResult struct {
	ItemID    string           `json:"itemId"`
	RunID     string           `json:"runId"`
	URL       string           `json:"url"`
	Outcome   string           `json:"outcome"`
	Stage     string           `json:"stage,omitempty"`
	Kind      entity.ErrorKind `json:"kind,omitempty"`
	Error     string           `json:"error,omitempty"`
	ProductID int64            `json:"productId,omitempty"`
	Attempts  int              `json:"attempts"`
	RunStatus entity.RunStatus `json:"runStatus,omitempty"`
}

// ProcessorConfig holds the retry and breaker limits.
type ProcessorConfig struct {
	MaxAttempts      int
	BreakerThreshold int
	RefreshInterval  time.Duration
}

// ItemProcessor runs one item through claim, fetch, normalize and persist.
type ItemProcessor interface {
	// ProcessItem returns an error only when the store fails. Item failures
	// are recorded on the item and run and reported in the result.
	ProcessItem(ctx context.Context, itemID string) (*ItemResult, error)
}

type itemProcessorUseCase struct {
	runs       repository.RunRepository
	brands     repository.BrandRepository
	products   repository.ProductRepository
	registry   *platform.Registry
	normalizer Normalizer
	finalizer  *runFinalizer
	config     ProcessorConfig
	logger     *zap.Logger
}

// NewItemProcessor creates an ItemProcessor.
func NewItemProcessor(
	runs repository.RunRepository,
	brands repository.BrandRepository,
	products repository.ProductRepository,
	registry *platform.Registry,
	normalizer Normalizer,
	cfg ProcessorConfig,
	logger *zap.Logger,
) ItemProcessor {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.BreakerThreshold <= 0 {
		cfg.BreakerThreshold = 5
	}
	metrics.Init()
	return &itemProcessorUseCase{
		runs:       runs,
		brands:     brands,
		products:   products,
		registry:   registry,
		normalizer: normalizer,
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

func (uc *itemProcessorUseCase) ProcessItem(ctx context.Context, itemID string) (*ItemResult, error) {
	item, err := uc.runs.GetItem(ctx, itemID)
	if err != nil {
		return nil, fmt.Errorf("get item %s: %w", itemID, err)
	}
	res := &ItemResult{ItemID: item.ID, RunID: item.RunID, URL: item.URL, Attempts: item.Attempts}

	run, err := uc.runs.GetRun(ctx, item.RunID)
	if err != nil {
		return nil, fmt.Errorf("get run %s: %w", item.RunID, err)
	}
	res.RunStatus = run.Status
	if run.Status != entity.RunProcessing {
		res.Outcome = OutcomeSkipped
		return res, nil
	}

	brand, err := uc.brands.GetBrand(ctx, run.BrandID)
	if err != nil {
		return nil, fmt.Errorf("get brand %s: %w", run.BrandID, err)
	}

	res.Stage = entity.StageClaim
	started, err := uc.runs.StartItem(ctx, item.ID, uc.config.MaxAttempts)
	if errors.Is(err, entity.ErrItemNotEligible) {
		res.Outcome = OutcomeSkipped
		return res, nil
	}
	if err != nil {
		return nil, fmt.Errorf("start item %s: %w", item.ID, err)
	}
	res.Attempts = started.Attempts

	begin := time.Now()
	defer func() {
		metrics.ItemDuration.WithLabelValues(run.Platform).Observe(time.Since(begin).Seconds())
	}()

	log := uc.logger.With(
		zap.String("run_id", run.ID),
		zap.String("item_id", item.ID),
		zap.String("url", item.URL),
		zap.Int("attempt", started.Attempts),
	)

	res.Stage = entity.StageFetch
	raw, err := uc.registry.Get(run.Platform).FetchProduct(ctx, brand, entity.ProductRef{URL: item.URL})
	if err != nil {
		return uc.fail(ctx, log, run, res, err)
	}
	if raw == nil {
		return uc.fail(ctx, log, run, res, &entity.FetchError{URL: item.URL, Kind: entity.KindSoft, Err: errors.New("no product found at url")})
	}

	res.Stage = entity.StageNormalize
	product, err := uc.normalizer.Normalize(brand, run.Platform, raw)
	if err != nil {
		return uc.fail(ctx, log, run, res, err)
	}

	res.Stage = entity.StagePersist
	upserted, err := uc.products.UpsertProduct(ctx, product)
	if err != nil {
		return uc.fail(ctx, log, run, res, fmt.Errorf("upsert product: %w", err))
	}

	if err := uc.runs.FinishItem(ctx, item.ID, entity.ItemCompleted, ""); err != nil {
		return nil, fmt.Errorf("finish item %s: %w", item.ID, err)
	}
	updated, err := uc.runs.RecordProgress(ctx, run.ID, entity.RunProgress{
		LastURL:     item.URL,
		LastStage:   entity.StagePersist,
		ResetErrors: true,
		Completed:   1,
	})
	if err != nil {
		return nil, fmt.Errorf("record progress on run %s: %w", run.ID, err)
	}

	metrics.ItemsTotal.WithLabelValues(OutcomeCompleted, "").Inc()
	log.Info("catalog item completed",
		zap.Int64("product_id", upserted.ProductID),
		zap.Bool("created", upserted.Created),
		zap.Int("variants", upserted.Variants),
		zap.Int("price_changes", upserted.PriceChanges),
		zap.Int("stock_changes", upserted.StockChanges),
	)
	res.Outcome = OutcomeCompleted
	res.ProductID = upserted.ProductID
	return uc.finish(ctx, updated, res)
}

// fail records a failed attempt according to its error kind and trips the
// circuit breaker when the run reaches the threshold.
func (uc *itemProcessorUseCase) fail(ctx context.Context, log *zap.Logger, run *entity.CatalogRun, res *ItemResult, cause error) (*ItemResult, error) {
	kind := ClassifyError(cause)
	msg := fmt.Sprintf("%s: %v", res.Stage, cause)
	res.Kind = kind
	res.Error = msg

	progress := entity.RunProgress{LastURL: res.URL, LastStage: res.Stage}
	switch kind {
	case entity.KindSoft, entity.KindFatal:
		if err := uc.runs.FinishItem(ctx, res.ItemID, entity.ItemFailed, msg); err != nil {
			return nil, fmt.Errorf("fail item %s: %w", res.ItemID, err)
		}
		res.Outcome = OutcomeFailed
		progress.Failed = 1
		if kind == entity.KindFatal {
			progress.LastError = msg
		}
	default:
		status, err := uc.runs.RequeueItem(ctx, res.ItemID, uc.config.MaxAttempts, msg)
		if err != nil {
			return nil, fmt.Errorf("requeue item %s: %w", res.ItemID, err)
		}
		res.Outcome = OutcomeRequeued
		if status == entity.ItemFailed {
			res.Outcome = OutcomeFailed
			progress.Failed = 1
		}
		progress.ErrorDelta = 1
		if kind == entity.KindSystemic {
			progress.LastError = msg
		}
	}

	updated, err := uc.runs.RecordProgress(ctx, run.ID, progress)
	if err != nil {
		return nil, fmt.Errorf("record progress on run %s: %w", run.ID, err)
	}
	metrics.ItemsTotal.WithLabelValues(res.Outcome, string(kind)).Inc()
	log.Warn("catalog item attempt failed",
		zap.String("stage", res.Stage),
		zap.String("kind", string(kind)),
		zap.String("outcome", res.Outcome),
		zap.Int("consecutive_errors", updated.ConsecutiveErrors),
		zap.Error(cause),
	)

	var reason string
	switch {
	case kind == entity.KindFatal:
		reason = "fatal error: " + msg
	case countsTowardBreaker(kind) && updated.ConsecutiveErrors >= uc.config.BreakerThreshold:
		reason = fmt.Sprintf("circuit breaker: %d consecutive errors, last: %s", updated.ConsecutiveErrors, msg)
	}
	if reason != "" {
		blocked, err := uc.runs.TransitionRun(ctx, run.ID, []entity.RunStatus{entity.RunProcessing}, entity.RunBlocked, reason)
		switch {
		case err == nil:
			updated = blocked
			metrics.RunsTotal.WithLabelValues(string(entity.RunBlocked)).Inc()
			log.Error("catalog run blocked", zap.String("block_reason", reason))
		case !errors.Is(err, entity.ErrInvalidTransition):
			return nil, fmt.Errorf("block run %s: %w", run.ID, err)
		}
	}
	return uc.finish(ctx, updated, res)
}

func (uc *itemProcessorUseCase) finish(ctx context.Context, run *entity.CatalogRun, res *ItemResult) (*ItemResult, error) {
	final, _, err := uc.finalizer.finalize(ctx, run)
	if err != nil {
		return nil, err
	}
	res.RunStatus = final.Status
	return res, nil
}
