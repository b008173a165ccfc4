// Package mock provides function-field fakes of the service's interfaces.
// A nil function field panics when called.
package mock

import (
	"context"
	"time"

	"github.com/user/catalog-service/internal/entity"
	"github.com/user/catalog-service/internal/repository"
	"github.com/user/catalog-service/internal/usecase"
)

// Adapter fakes platform.CatalogAdapter.
type Adapter struct {
	NameValue          string
	DiscoverProductsFn func(ctx context.Context, brand *entity.Brand, limit int) []entity.ProductRef
	FetchProductFn     func(ctx context.Context, brand *entity.Brand, ref entity.ProductRef) (*entity.RawProduct, error)
}

func (a *Adapter) Name() string { return a.NameValue }

func (a *Adapter) DiscoverProducts(ctx context.Context, brand *entity.Brand, limit int) []entity.ProductRef {
	return a.DiscoverProductsFn(ctx, brand, limit)
}

func (a *Adapter) FetchProduct(ctx context.Context, brand *entity.Brand, ref entity.ProductRef) (*entity.RawProduct, error) {
	return a.FetchProductFn(ctx, brand, ref)
}

var _ repository.SitemapSource = (*SitemapSource)(nil)

// SitemapSource fakes repository.SitemapSource.
type SitemapSource struct {
	DiscoverURLsFn func(ctx context.Context, siteURL string, scanCap int) ([]string, error)
}

func (s *SitemapSource) DiscoverURLs(ctx context.Context, siteURL string, scanCap int) ([]string, error) {
	return s.DiscoverURLsFn(ctx, siteURL, scanCap)
}

var _ repository.PageFetcher = (*Fetcher)(nil)

// Fetcher fakes repository.PageFetcher.
type Fetcher struct {
	FetchFn func(ctx context.Context, url string) (*entity.Page, error)
}

func (f *Fetcher) Fetch(ctx context.Context, url string) (*entity.Page, error) {
	return f.FetchFn(ctx, url)
}

// Detector fakes usecase.PlatformDetector.
type Detector struct {
	DetectFn func(ctx context.Context, siteURL string) string
}

func (d *Detector) Detect(ctx context.Context, siteURL string) string {
	return d.DetectFn(ctx, siteURL)
}

var _ repository.JobQueue = (*JobQueue)(nil)

// JobQueue fakes repository.JobQueue.
type JobQueue struct {
	AddBulkFn func(ctx context.Context, itemIDs []string) ([]string, error)
	PopFn     func(ctx context.Context, timeout time.Duration) (string, error)
	ReleaseFn func(ctx context.Context, itemID string) error
	SizeFn    func(ctx context.Context) (int64, error)
	PingFn    func(ctx context.Context) error
}

func (q *JobQueue) AddBulk(ctx context.Context, itemIDs []string) ([]string, error) {
	return q.AddBulkFn(ctx, itemIDs)
}

func (q *JobQueue) Pop(ctx context.Context, timeout time.Duration) (string, error) {
	return q.PopFn(ctx, timeout)
}

func (q *JobQueue) Release(ctx context.Context, itemID string) error {
	return q.ReleaseFn(ctx, itemID)
}

func (q *JobQueue) Size(ctx context.Context) (int64, error) {
	return q.SizeFn(ctx)
}

func (q *JobQueue) Ping(ctx context.Context) error {
	return q.PingFn(ctx)
}

var _ usecase.ItemProcessor = (*ItemProcessor)(nil)

// ItemProcessor fakes usecase.ItemProcessor.
type ItemProcessor struct {
	ProcessItemFn func(ctx context.Context, itemID string) (*usecase.ItemResult, error)
}

func (p *ItemProcessor) ProcessItem(ctx context.Context, itemID string) (*usecase.ItemResult, error) {
	return p.ProcessItemFn(ctx, itemID)
}

var _ usecase.DrainController = (*DrainController)(nil)

// DrainController fakes usecase.DrainController.
type DrainController struct {
	DrainFn func(ctx context.Context, req usecase.DrainRequest) (*usecase.DrainResult, error)
}

func (d *DrainController) Drain(ctx context.Context, req usecase.DrainRequest) (*usecase.DrainResult, error) {
	return d.DrainFn(ctx, req)
}

var _ usecase.RunManager = (*RunManager)(nil)

// RunManager fakes usecase.RunManager.
type RunManager struct {
	StartFn        func(ctx context.Context, req usecase.StartRequest) (*usecase.RunState, error)
	PauseFn        func(ctx context.Context, brandID string) (*usecase.RunState, error)
	ResumeFn       func(ctx context.Context, brandID string) (*usecase.RunState, error)
	StopFn         func(ctx context.Context, brandID string) (*usecase.RunState, error)
	ResetFn        func(ctx context.Context, brandID string) (*usecase.RunState, error)
	StateFn        func(ctx context.Context, brandID string) (*usecase.RunState, error)
	SummarizeRunFn func(ctx context.Context, runID string) (*entity.RunSummary, error)
	FinishFn       func(ctx context.Context, brandID, reason string) (*entity.Brand, error)
	StartDueRunsFn func(ctx context.Context, limit int) (*usecase.RefreshResult, error)
}

func (m *RunManager) Start(ctx context.Context, req usecase.StartRequest) (*usecase.RunState, error) {
	return m.StartFn(ctx, req)
}

func (m *RunManager) Pause(ctx context.Context, brandID string) (*usecase.RunState, error) {
	return m.PauseFn(ctx, brandID)
}

func (m *RunManager) Resume(ctx context.Context, brandID string) (*usecase.RunState, error) {
	return m.ResumeFn(ctx, brandID)
}

func (m *RunManager) Stop(ctx context.Context, brandID string) (*usecase.RunState, error) {
	return m.StopFn(ctx, brandID)
}

func (m *RunManager) Reset(ctx context.Context, brandID string) (*usecase.RunState, error) {
	return m.ResetFn(ctx, brandID)
}

func (m *RunManager) State(ctx context.Context, brandID string) (*usecase.RunState, error) {
	return m.StateFn(ctx, brandID)
}

func (m *RunManager) SummarizeRun(ctx context.Context, runID string) (*entity.RunSummary, error) {
	return m.SummarizeRunFn(ctx, runID)
}

func (m *RunManager) Finish(ctx context.Context, brandID, reason string) (*entity.Brand, error) {
	return m.FinishFn(ctx, brandID, reason)
}

func (m *RunManager) StartDueRuns(ctx context.Context, limit int) (*usecase.RefreshResult, error) {
	return m.StartDueRunsFn(ctx, limit)
}
