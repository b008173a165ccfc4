package usecase_test

import (
	"context"
	"errors"
	"fmt"
	"hash/crc32"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/user/catalog-service/internal/adapter/memory"
	"github.com/user/catalog-service/internal/entity"
	"github.com/user/catalog-service/internal/mock"
	"github.com/user/catalog-service/internal/platform"
	"github.com/user/catalog-service/internal/usecase"
)

type fetchFunc func(ctx context.Context, brand *entity.Brand, ref entity.ProductRef) (*entity.RawProduct, error)

type pipeline struct {
	store     *memory.Store
	processor usecase.ItemProcessor
	drain     usecase.DrainController
	manager   usecase.RunManager
}

type pipelineConfig struct {
	maxAttempts int
	threshold   int
	stuckAge    time.Duration
}

func newPipeline(t *testing.T, fetch fetchFunc, cfg pipelineConfig) *pipeline {
	t.Helper()
	if cfg.maxAttempts == 0 {
		cfg.maxAttempts = 3
	}
	if cfg.threshold == 0 {
		cfg.threshold = 5
	}

	store := memory.NewStore()
	store.AddBrand(&entity.Brand{ID: "brand-1", Name: "Example", SiteURL: site, Platform: platform.Shopify})

	shopify := &mock.Adapter{NameValue: platform.Shopify, FetchProductFn: fetch}
	registry := platform.NewRegistry(refsAdapter(platform.Generic), shopify)
	logger := zap.NewNop()

	processor := usecase.NewItemProcessor(store, store, store, registry, usecase.NewNormalizer(),
		usecase.ProcessorConfig{MaxAttempts: cfg.maxAttempts, BreakerThreshold: cfg.threshold, RefreshInterval: 24 * time.Hour},
		logger)
	drain := usecase.NewDrainController(store, store, usecase.NewInlineDispatcher(processor, logger),
		usecase.DrainConfig{MaxAttempts: cfg.maxAttempts, StuckItemAge: cfg.stuckAge, RefreshInterval: 24 * time.Hour},
		logger)
	discovery := usecase.NewDiscovery(store, staticSitemap(nil, nil), registry, nil, usecase.DiscoveryConfig{}, logger)

	return &pipeline{
		store:     store,
		processor: processor,
		drain:     drain,
		manager:   usecase.NewRunManager(store, store, discovery, 10, logger),
	}
}

func (p *pipeline) createRun(t *testing.T, urls ...string) *entity.CatalogRun {
	t.Helper()
	run := &entity.CatalogRun{ID: uuid.NewString(), BrandID: "brand-1", Status: entity.RunProcessing, Platform: platform.Shopify}
	require.NoError(t, p.store.CreateRun(context.Background(), run, urls))
	return run
}

func (p *pipeline) run(t *testing.T, id string) *entity.CatalogRun {
	t.Helper()
	run, err := p.store.GetRun(context.Background(), id)
	require.NoError(t, err)
	return run
}

func productURLs(handles ...string) []string {
	urls := make([]string, 0, len(handles))
	for _, h := range handles {
		urls = append(urls, site+"/products/"+h)
	}
	return urls
}

// shopifyRaw builds a one-variant Shopify payload whose ids derive from the handle.
func shopifyRaw(ref entity.ProductRef, price string) *entity.RawProduct {
	handle := ref.URL[strings.LastIndex(ref.URL, "/")+1:]
	id := int64(crc32.ChecksumIEEE([]byte(handle)))
	return &entity.RawProduct{
		Source:     entity.SourceShopify,
		URL:        ref.URL,
		ExternalID: strconv.FormatInt(id, 10),
		Payload: []byte(fmt.Sprintf(`{"id":%d,"title":"Cotton Tee %s","variants":[{"id":%d,"price":%q,"available":true}]}`,
			id, handle, id+1, price)),
	}
}

func TestDrain_CompletesRunWithSoftFailures(t *testing.T) {
	p := newPipeline(t, func(_ context.Context, _ *entity.Brand, ref entity.ProductRef) (*entity.RawProduct, error) {
		if strings.HasSuffix(ref.URL, "/missing") {
			return nil, nil
		}
		return shopifyRaw(ref, "25.00"), nil
	}, pipelineConfig{})
	run := p.createRun(t, productURLs("tee-a", "tee-b", "missing")...)

	res, err := p.drain.Drain(context.Background(), usecase.DrainRequest{BrandID: "brand-1", BatchSize: 3, Concurrency: 2})
	require.NoError(t, err)

	assert.Equal(t, 3, res.Processed)
	assert.Equal(t, run.ID, res.RunID)
	assert.Equal(t, entity.RunCompleted, res.RunStatus)
	assert.Equal(t, "inline", res.Dispatcher)
	require.NotNil(t, res.Summary)
	assert.Equal(t, entity.RunSummary{Total: 3, Completed: 2, Failed: 1, Pending: 0}, *res.Summary)

	stored := p.run(t, run.ID)
	assert.Equal(t, entity.RunCompleted, stored.Status)
	assert.NotNil(t, stored.FinishedAt)
	assert.Equal(t, 0, stored.ConsecutiveErrors)
	assert.Len(t, p.store.Products(), 2)

	brand, err := p.store.GetBrand(context.Background(), "brand-1")
	require.NoError(t, err)
	require.NotNil(t, brand.CatalogLastCompletedAt)
	require.NotNil(t, brand.CatalogNextDueAt)
	assert.WithinDuration(t, brand.CatalogLastCompletedAt.Add(24*time.Hour), *brand.CatalogNextDueAt, time.Second)
}

func TestDrain_CircuitBreakerBlocksRun(t *testing.T) {
	p := newPipeline(t, func(context.Context, *entity.Brand, entity.ProductRef) (*entity.RawProduct, error) {
		return nil, errors.New("upstream returned a malformed payload")
	}, pipelineConfig{threshold: 5})
	run := p.createRun(t, productURLs("a", "b", "c", "d", "e", "f")...)

	res, err := p.drain.Drain(context.Background(), usecase.DrainRequest{BrandID: "brand-1", BatchSize: 5, Concurrency: 1})
	require.NoError(t, err)
	assert.Equal(t, 5, res.Processed)
	assert.Equal(t, entity.RunBlocked, res.RunStatus)
	assert.Equal(t, usecase.StopRunInactive, res.StoppedBy)
	require.NotNil(t, res.LastResult)
	assert.Equal(t, entity.KindSystemic, res.LastResult.Kind)
	assert.Equal(t, usecase.OutcomeRequeued, res.LastResult.Outcome)

	blocked := p.run(t, run.ID)
	assert.Equal(t, entity.RunBlocked, blocked.Status)
	assert.Equal(t, 5, blocked.ConsecutiveErrors)
	assert.Contains(t, blocked.BlockReason, "circuit breaker")
	assert.Contains(t, blocked.LastError, "malformed payload")

	// A blocked run is never drained.
	again, err := p.drain.Drain(context.Background(), usecase.DrainRequest{BrandID: "brand-1"})
	require.NoError(t, err)
	assert.Equal(t, 0, again.Processed)
	assert.Equal(t, usecase.StopNoRun, again.StoppedBy)

	state, err := p.manager.Reset(context.Background(), "brand-1")
	require.NoError(t, err)
	assert.Equal(t, entity.RunProcessing, state.Run.Status)
	assert.Equal(t, 0, state.Run.ConsecutiveErrors)
	assert.Empty(t, state.Run.BlockReason)
	assert.Equal(t, 6, state.Summary.Pending)
}

func TestDrain_SoftFailuresDoNotTripBreaker(t *testing.T) {
	p := newPipeline(t, func(_ context.Context, _ *entity.Brand, ref entity.ProductRef) (*entity.RawProduct, error) {
		return nil, &entity.FetchError{URL: ref.URL, StatusCode: 404, Kind: entity.KindSoft}
	}, pipelineConfig{threshold: 2})
	run := p.createRun(t, productURLs("a", "b", "c", "d")...)

	res, err := p.drain.Drain(context.Background(), usecase.DrainRequest{BrandID: "brand-1", BatchSize: 10, Concurrency: 1})
	require.NoError(t, err)
	assert.Equal(t, 4, res.Processed)
	assert.Equal(t, entity.RunCompleted, res.RunStatus)

	stored := p.run(t, run.ID)
	assert.Equal(t, 0, stored.ConsecutiveErrors)
	assert.Equal(t, 4, stored.FailedItems)
	assert.Empty(t, stored.BlockReason)
}

func TestDrain_FatalErrorBlocksImmediately(t *testing.T) {
	p := newPipeline(t, func(context.Context, *entity.Brand, entity.ProductRef) (*entity.RawProduct, error) {
		return nil, fmt.Errorf("llm credentials rejected: %w", entity.ErrFatal)
	}, pipelineConfig{threshold: 5})
	run := p.createRun(t, productURLs("a", "b", "c")...)

	res, err := p.drain.Drain(context.Background(), usecase.DrainRequest{BrandID: "brand-1", BatchSize: 3, Concurrency: 1})
	require.NoError(t, err)
	assert.Equal(t, entity.RunBlocked, res.RunStatus)

	stored := p.run(t, run.ID)
	assert.Equal(t, entity.RunBlocked, stored.Status)
	assert.True(t, strings.HasPrefix(stored.BlockReason, "fatal error"))
	assert.Equal(t, entity.RunSummary{Total: 3, Completed: 0, Failed: 1, Pending: 2}, *res.Summary)
}

func TestDrain_TransientErrorsExhaustAttempts(t *testing.T) {
	var calls atomic.Int32
	p := newPipeline(t, func(_ context.Context, _ *entity.Brand, ref entity.ProductRef) (*entity.RawProduct, error) {
		calls.Add(1)
		return nil, &entity.FetchError{URL: ref.URL, StatusCode: 503, Kind: entity.KindTransient}
	}, pipelineConfig{maxAttempts: 2, threshold: 100})
	run := p.createRun(t, productURLs("flaky")...)

	res, err := p.drain.Drain(context.Background(), usecase.DrainRequest{BrandID: "brand-1", BatchSize: 10})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Processed)
	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, entity.RunCompleted, res.RunStatus)
	assert.Equal(t, 1, res.Summary.Failed)

	items, err := p.store.ListPendingItems(context.Background(), run.ID, 10, 0)
	require.NoError(t, err)
	assert.Empty(t, items)
	stored := p.run(t, run.ID)
	assert.Equal(t, 2, stored.ConsecutiveErrors)
	assert.Equal(t, entity.StageFetch, stored.LastStage)
}

func TestDrain_RecoversStuckItems(t *testing.T) {
	p := newPipeline(t, func(_ context.Context, _ *entity.Brand, ref entity.ProductRef) (*entity.RawProduct, error) {
		return shopifyRaw(ref, "10.00"), nil
	}, pipelineConfig{stuckAge: 10 * time.Minute})

	past := time.Now().Add(-time.Hour)
	p.store.SetClock(func() time.Time { return past })
	run := p.createRun(t, productURLs("stuck", "fresh")...)
	items, err := p.store.ListPendingItems(context.Background(), run.ID, 3, 1)
	require.NoError(t, err)
	stuck, err := p.store.StartItem(context.Background(), items[0].ID, 3)
	require.NoError(t, err)
	p.store.SetClock(time.Now)

	res, err := p.drain.Drain(context.Background(), usecase.DrainRequest{BrandID: "brand-1", BatchSize: 10})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Processed)
	assert.Equal(t, entity.RunCompleted, res.RunStatus)

	recovered, err := p.store.GetItem(context.Background(), stuck.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.ItemCompleted, recovered.Status)
	assert.Equal(t, 2, recovered.Attempts)
}

func TestDrain_ReprocessingIsIdempotent(t *testing.T) {
	p := newPipeline(t, func(_ context.Context, _ *entity.Brand, ref entity.ProductRef) (*entity.RawProduct, error) {
		return shopifyRaw(ref, "30.00"), nil
	}, pipelineConfig{})

	first := p.createRun(t, productURLs("tee")...)
	_, err := p.drain.Drain(context.Background(), usecase.DrainRequest{BrandID: "brand-1"})
	require.NoError(t, err)
	require.Equal(t, entity.RunCompleted, p.run(t, first.ID).Status)

	second := p.createRun(t, productURLs("tee")...)
	_, err = p.drain.Drain(context.Background(), usecase.DrainRequest{BrandID: "brand-1"})
	require.NoError(t, err)
	require.Equal(t, entity.RunCompleted, p.run(t, second.ID).Status)

	assert.Len(t, p.store.Products(), 1)
	assert.Len(t, p.store.PriceHistory(), 1, "unchanged price is not recorded twice")
	assert.Len(t, p.store.StockHistory(), 1)
}

func TestDrain_PausedRunIsNotDrained(t *testing.T) {
	var calls atomic.Int32
	p := newPipeline(t, func(_ context.Context, _ *entity.Brand, ref entity.ProductRef) (*entity.RawProduct, error) {
		calls.Add(1)
		return shopifyRaw(ref, "10.00"), nil
	}, pipelineConfig{})
	p.createRun(t, productURLs("a", "b")...)

	_, err := p.manager.Pause(context.Background(), "brand-1")
	require.NoError(t, err)

	res, err := p.drain.Drain(context.Background(), usecase.DrainRequest{BrandID: "brand-1"})
	require.NoError(t, err)
	assert.Equal(t, usecase.StopNoRun, res.StoppedBy)
	assert.Equal(t, int32(0), calls.Load())

	_, err = p.manager.Resume(context.Background(), "brand-1")
	require.NoError(t, err)
	res, err = p.drain.Drain(context.Background(), usecase.DrainRequest{BrandID: "brand-1"})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Processed)
	assert.Equal(t, entity.RunCompleted, res.RunStatus)
}

func TestDrain_BatchSizeBoundsOneCall(t *testing.T) {
	p := newPipeline(t, func(_ context.Context, _ *entity.Brand, ref entity.ProductRef) (*entity.RawProduct, error) {
		return shopifyRaw(ref, "10.00"), nil
	}, pipelineConfig{})
	p.createRun(t, productURLs("a", "b", "c", "d", "e")...)

	res, err := p.drain.Drain(context.Background(), usecase.DrainRequest{BrandID: "brand-1", BatchSize: 2, Concurrency: 8})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Processed)
	assert.Equal(t, usecase.StopBatchFull, res.StoppedBy)
	assert.Equal(t, entity.RunProcessing, res.RunStatus)
	assert.Equal(t, 3, res.Summary.Pending)
}

func TestProcessItem_SkipsWhenRunNotProcessing(t *testing.T) {
	p := newPipeline(t, func(context.Context, *entity.Brand, entity.ProductRef) (*entity.RawProduct, error) {
		t.Fatal("fetch must not be called")
		return nil, nil
	}, pipelineConfig{})
	run := p.createRun(t, productURLs("a")...)
	items, err := p.store.ListPendingItems(context.Background(), run.ID, 3, 0)
	require.NoError(t, err)

	_, err = p.manager.Stop(context.Background(), "brand-1")
	require.NoError(t, err)

	res, err := p.processor.ProcessItem(context.Background(), items[0].ID)
	require.NoError(t, err)
	assert.Equal(t, usecase.OutcomeSkipped, res.Outcome)
	assert.Equal(t, entity.RunStopped, res.RunStatus)
}
