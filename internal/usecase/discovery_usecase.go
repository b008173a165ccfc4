package usecase

import (
	"context"

	"go.uber.org/zap"

	"github.com/user/catalog-service/internal/entity"
	"github.com/user/catalog-service/internal/platform"
	"github.com/user/catalog-service/internal/repository"
	"github.com/user/catalog-service/pkg/metrics"
	"github.com/user/catalog-service/pkg/utils"
)

// Discovery strategies reported in DiscoveryResult.Strategy.
const (
	StrategySitemap           = "sitemap"
	StrategyAdapter           = "adapter"
	StrategySitemapUnfiltered = "sitemap_unfiltered"
	StrategyNone              = "none"
)

// PlatformDetector infers a storefront platform from a site.
type PlatformDetector interface {
	Detect(ctx context.Context, siteURL string) string
}

// DiscoveryConfig bounds discovery cost.
type DiscoveryConfig struct {
	SitemapScanCap int
	Multiplier     int
	HardCeiling    int
}

// DiscoverOptions are per-call discovery parameters.
type DiscoverOptions struct {
	// BatchSize is multiplied by the configured multiplier to get the limit.
	BatchSize   int
	ForceDetect bool
}

// DiscoveryResult is a deduplicated candidate list and how it was found.
type DiscoveryResult struct {
	Platform string
	Strategy string
	URLs     []string
}

// Discovery enumerates candidate product URLs for a brand. It never fails:
// every strategy degrades to the next one and the result may be empty.
type Discovery interface {
	Discover(ctx context.Context, brand *entity.Brand, opts DiscoverOptions) *DiscoveryResult
}

type discoveryUseCase struct {
	brands   repository.BrandRepository
	sitemaps repository.SitemapSource
	registry *platform.Registry
	detector PlatformDetector
	config   DiscoveryConfig
	logger   *zap.Logger
}

// NewDiscovery creates a Discovery use case.
func NewDiscovery(
	brands repository.BrandRepository,
	sitemaps repository.SitemapSource,
	registry *platform.Registry,
	detector PlatformDetector,
	cfg DiscoveryConfig,
	logger *zap.Logger,
) Discovery {
	if cfg.Multiplier <= 0 {
		cfg.Multiplier = 3
	}
	if cfg.HardCeiling <= 0 {
		cfg.HardCeiling = 5000
	}
	if cfg.SitemapScanCap <= 0 {
		cfg.SitemapScanCap = 20000
	}
	metrics.Init()
	return &discoveryUseCase{
		brands:   brands,
		sitemaps: sitemaps,
		registry: registry,
		detector: detector,
		config:   cfg,
		logger:   logger,
	}
}

// Limit returns min(batchSize * multiplier, hard ceiling).
func (c DiscoveryConfig) Limit(batchSize int) int {
	if batchSize <= 0 {
		return c.HardCeiling
	}
	return min(batchSize*c.Multiplier, c.HardCeiling)
}

func (uc *discoveryUseCase) Discover(ctx context.Context, brand *entity.Brand, opts DiscoverOptions) *DiscoveryResult {
	platformID := uc.resolvePlatform(ctx, brand, opts.ForceDetect)
	limit := uc.config.Limit(opts.BatchSize)
	log := uc.logger.With(zap.String("brand_id", brand.ID), zap.String("platform", platformID), zap.Int("limit", limit))

	sitemapURLs, err := uc.sitemaps.DiscoverURLs(ctx, brand.SiteURL, uc.config.SitemapScanCap)
	if err != nil {
		log.Warn("sitemap discovery failed", zap.Error(err))
	}

	if urls := dedupeSameSite(brand.SiteURL, sitemapURLs, limit, platform.IsLikelyProductURL); len(urls) > 0 {
		return uc.result(log, platformID, StrategySitemap, urls)
	}

	refs := uc.registry.Get(platformID).DiscoverProducts(ctx, brand, limit)
	adapterURLs := make([]string, 0, len(refs))
	for _, ref := range refs {
		adapterURLs = append(adapterURLs, ref.URL)
	}
	if urls := dedupeSameSite(brand.SiteURL, adapterURLs, limit, nil); len(urls) > 0 {
		return uc.result(log, platformID, StrategyAdapter, urls)
	}

	if uc.registry.IsGeneric(platformID) {
		if urls := dedupeSameSite(brand.SiteURL, sitemapURLs, limit, nil); len(urls) > 0 {
			return uc.result(log, platformID, StrategySitemapUnfiltered, urls)
		}
	}

	log.Warn("no candidate product urls discovered")
	return &DiscoveryResult{Platform: platformID, Strategy: StrategyNone}
}

func (uc *discoveryUseCase) result(log *zap.Logger, platformID, strategy string, urls []string) *DiscoveryResult {
	metrics.DiscoveredURLs.WithLabelValues(strategy).Add(float64(len(urls)))
	log.Info("discovered candidate product urls", zap.String("strategy", strategy), zap.Int("count", len(urls)))
	return &DiscoveryResult{Platform: platformID, Strategy: strategy, URLs: urls}
}

// resolvePlatform detects and persists the platform when it is unset,
// unknown, custom or generic, or when detection is forced.
func (uc *discoveryUseCase) resolvePlatform(ctx context.Context, brand *entity.Brand, force bool) string {
	current := platform.Key(brand.Platform)
	if !force && !platform.IsUnknown(current) {
		return current
	}
	if uc.detector == nil {
		return fallbackPlatform(current)
	}

	detected := uc.detector.Detect(ctx, brand.SiteURL)
	if detected == platform.Unknown {
		return fallbackPlatform(current)
	}
	if detected != current {
		if err := uc.brands.UpdatePlatform(ctx, brand.ID, detected); err != nil {
			uc.logger.Warn("failed to persist detected platform",
				zap.String("brand_id", brand.ID), zap.String("platform", detected), zap.Error(err))
		} else {
			brand.Platform = detected
		}
	}
	return detected
}

func fallbackPlatform(current string) string {
	if current == "" {
		return platform.Unknown
	}
	return current
}

// dedupeSameSite normalizes, filters to the brand's site and truncates.
// A nil keep accepts every same-site URL.
func dedupeSameSite(siteURL string, urls []string, limit int, keep func(string) bool) []string {
	seen := make(map[string]bool, len(urls))
	var out []string
	for _, raw := range urls {
		if len(out) >= limit {
			break
		}
		norm, err := utils.NormalizeURL(raw)
		if err != nil || seen[norm] || !utils.SameSite(norm, siteURL) {
			continue
		}
		if keep != nil && !keep(norm) {
			continue
		}
		seen[norm] = true
		out = append(out, norm)
	}
	return out
}
