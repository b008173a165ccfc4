package repository

import (
	"context"

	"github.com/user/catalog-service/internal/entity"
)

// PageFetcher fetches a URL as text. Failures should be *entity.FetchError when
// the implementation knows the error kind.
type PageFetcher interface {
	Fetch(ctx context.Context, url string) (*entity.Page, error)
}

// SitemapSource enumerates URLs listed in a site's sitemaps.
type SitemapSource interface {
	// DiscoverURLs returns at most scanCap page URLs.
	DiscoverURLs(ctx context.Context, siteURL string, scanCap int) ([]string, error)
}

// ProductClassifier is the LLM collaborator for pages without structured data.
type ProductClassifier interface {
	Classify(ctx context.Context, page entity.PageSignals) (*entity.Classification, error)
	Extract(ctx context.Context, page entity.PageSignals) (*entity.Extraction, error)
}
