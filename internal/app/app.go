// Package app wires repositories, adapters and use cases from configuration.
// Both the API server and the queue worker build on it.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/user/catalog-service/internal/adapter/chromedp_crawler"
	"github.com/user/catalog-service/internal/adapter/httpfetch"
	"github.com/user/catalog-service/internal/adapter/llm"
	"github.com/user/catalog-service/internal/adapter/memory"
	"github.com/user/catalog-service/internal/adapter/postgres"
	redis_adapter "github.com/user/catalog-service/internal/adapter/redis"
	"github.com/user/catalog-service/internal/adapter/sitemap"
	"github.com/user/catalog-service/internal/delivery/http/handler"
	"github.com/user/catalog-service/internal/platform"
	"github.com/user/catalog-service/internal/repository"
	"github.com/user/catalog-service/internal/usecase"
	"github.com/user/catalog-service/pkg/config"
)

// App holds the constructed use cases and the handles that need closing.
type App struct {
	Runs      repository.RunRepository
	Brands    repository.BrandRepository
	Products  repository.ProductRepository
	Queue     repository.JobQueue
	Processor usecase.ItemProcessor
	Drain     usecase.DrainController
	RunMgr    usecase.RunManager
	// Checks are the dependencies reported by the health endpoint.
	Checks map[string]handler.Pinger

	closers []func()
}

// Build connects the configured stores and constructs every use case.
func Build(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	a := &App{Checks: make(map[string]handler.Pinger)}

	if err := a.openStore(ctx, cfg, logger); err != nil {
		a.Close()
		return nil, err
	}
	if cfg.QueueEnabled {
		a.openQueue(cfg, logger)
	}

	rotation := httpfetch.NewRotation(cfg.Proxies(), cfg.UserAgents())
	fetcher := httpfetch.New(httpfetch.Config{
		Timeout: cfg.FetchTimeout,
		RPS:     cfg.FetchRPS,
		Burst:   cfg.FetchBurst,
	}, rotation, logger.Named("fetch"))

	var genericOpts []platform.GenericOption
	if cfg.RenderEnabled {
		renderer := chromedp_crawler.NewRenderFetcher(cfg.DrainConcurrency, cfg.RenderTimeout, rotation, logger.Named("render"))
		a.closers = append(a.closers, renderer.Close)
		genericOpts = append(genericOpts, platform.WithRenderer(renderer))
	}
	if cfg.LLMEndpoint != "" {
		classifier := llm.NewClient(cfg.LLMEndpoint, cfg.LLMAPIKey, 0, logger.Named("llm"))
		genericOpts = append(genericOpts, platform.WithClassifier(classifier, cfg.LLMMinConfidence))
	}

	generic := platform.NewGeneric(fetcher, logger.Named("generic"), genericOpts...)
	registry := platform.NewRegistry(generic,
		platform.NewShopify(fetcher, logger.Named("shopify")),
		platform.NewWooCommerce(fetcher, generic),
	)

	discovery := usecase.NewDiscovery(
		a.Brands,
		sitemap.NewSource(fetcher, 0, logger.Named("sitemap")),
		registry,
		platform.NewDetector(fetcher, logger.Named("detect")),
		usecase.DiscoveryConfig{
			SitemapScanCap: cfg.DiscoverySitemapScanCap,
			Multiplier:     cfg.DiscoveryMultiplier,
			HardCeiling:    cfg.DiscoveryHardCeiling,
		},
		logger.Named("discovery"),
	)

	a.Processor = usecase.NewItemProcessor(a.Runs, a.Brands, a.Products, registry, usecase.NewNormalizer(),
		usecase.ProcessorConfig{
			MaxAttempts:      cfg.MaxItemAttempts,
			BreakerThreshold: cfg.BreakerThreshold,
			RefreshInterval:  cfg.RefreshInterval,
		},
		logger.Named("processor"),
	)

	dispatcher := usecase.SelectDispatcher(ctx, a.Queue, a.Runs, a.Processor, logger.Named("dispatch"))
	a.Drain = usecase.NewDrainController(a.Runs, a.Brands, dispatcher, usecase.DrainConfig{
		DefaultBatch:       cfg.DrainBatch,
		DefaultConcurrency: cfg.DrainConcurrency,
		DefaultWallClock:   cfg.DrainMaxWall,
		MaxAttempts:        cfg.MaxItemAttempts,
		StuckItemAge:       cfg.StuckItemAge,
		QueuedItemAge:      cfg.QueuedItemAge,
		RefreshInterval:    cfg.RefreshInterval,
	}, logger.Named("drain"))

	a.RunMgr = usecase.NewRunManager(a.Runs, a.Brands, discovery, cfg.DiscoveryBatchSize, logger.Named("runs"))
	return a, nil
}

func (a *App) openStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	switch cfg.StoreDriver {
	case "memory":
		store := memory.NewStore()
		a.Runs, a.Brands, a.Products = store, store, store
		logger.Warn("using the in-memory store; state is lost on exit")
		return nil
	case "postgres":
		pool, err := postgres.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, pool.Close)
		if err := postgres.Migrate(ctx, pool); err != nil {
			return err
		}
		a.Runs = postgres.NewRunRepo(pool)
		a.Brands = postgres.NewBrandRepo(pool)
		a.Products = postgres.NewProductRepo(pool)
		a.Checks["postgres"] = pool
		logger.Info("PostgreSQL connection pool established")
		return nil
	default:
		return fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}
}

// openQueue leaves a.Queue nil until the client exists, so a disabled queue
// reaches SelectDispatcher as a nil interface.
func (a *App) openQueue(cfg *config.Config, logger *zap.Logger) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	a.closers = append(a.closers, func() {
		if err := rdb.Close(); err != nil {
			logger.Warn("failed to close redis client", zap.Error(err))
		}
	})
	queue := redis_adapter.NewQueueRepo(rdb, cfg.QueueJobTTL)
	a.Queue = queue
	a.Checks["redis"] = queue
}

// Close releases handles in reverse order of creation.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

// ShutdownTimeout bounds graceful shutdown of servers and workers.
const ShutdownTimeout = 10 * time.Second
