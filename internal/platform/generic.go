package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/user/catalog-service/internal/entity"
	"github.com/user/catalog-service/internal/repository"
	"github.com/user/catalog-service/pkg/utils"
)

const maxListingPages = 5

// GenericAdapter serves custom storefronts. It reads embedded JSON-LD, retries
// with a rendered page when configured, and finally asks the classifier.
type GenericAdapter struct {
	fetcher       repository.PageFetcher
	renderer      repository.PageFetcher
	classifier    repository.ProductClassifier
	minConfidence float64
	logger        *zap.Logger
}

// GenericOption configures optional collaborators.
type GenericOption func(*GenericAdapter)

// WithRenderer enables a headless-browser re-fetch for pages without JSON-LD.
func WithRenderer(r repository.PageFetcher) GenericOption {
	return func(g *GenericAdapter) { g.renderer = r }
}

// WithClassifier enables LLM classification and extraction.
func WithClassifier(c repository.ProductClassifier, minConfidence float64) GenericOption {
	return func(g *GenericAdapter) {
		g.classifier = c
		g.minConfidence = minConfidence
	}
}

// NewGeneric creates a GenericAdapter.
func NewGeneric(fetcher repository.PageFetcher, logger *zap.Logger, opts ...GenericOption) *GenericAdapter {
	g := &GenericAdapter{fetcher: fetcher, logger: logger}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *GenericAdapter) Name() string { return Generic }

// DiscoverProducts collects product-looking links from the home page and
// from up to maxListingPages collection pages linked there.
func (g *GenericAdapter) DiscoverProducts(ctx context.Context, brand *entity.Brand, limit int) []entity.ProductRef {
	origin := utils.Origin(brand.SiteURL)
	if origin == "" || limit <= 0 {
		return nil
	}

	seen := make(map[string]bool)
	var refs []entity.ProductRef
	collect := func(links []string) {
		for _, l := range links {
			if len(refs) >= limit {
				return
			}
			if !IsLikelyProductURL(l) || seen[l] {
				continue
			}
			seen[l] = true
			refs = append(refs, entity.ProductRef{URL: l})
		}
	}

	home, err := g.links(ctx, origin+"/", origin)
	if err != nil {
		g.logger.Warn("home page discovery failed", zap.String("site", origin), zap.Error(err))
		return nil
	}
	collect(home)

	visited := 0
	for _, l := range home {
		if len(refs) >= limit || visited >= maxListingPages {
			break
		}
		if !IsListingURL(l) || IsLikelyProductURL(l) {
			continue
		}
		visited++
		links, err := g.links(ctx, l, origin)
		if err != nil {
			g.logger.Debug("listing page discovery failed", zap.String("url", l), zap.Error(err))
			continue
		}
		collect(links)
	}
	return refs
}

// links returns normalized same-site anchors of a page.
func (g *GenericAdapter) links(ctx context.Context, pageURL, origin string) ([]string, error) {
	page, err := g.fetcher.Fetch(ctx, pageURL)
	if err != nil {
		return nil, err
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page.Body))
	if err != nil {
		return nil, err
	}
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var out []string
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		abs, err := utils.ToAbsoluteURL(base, strings.TrimSpace(href))
		if err != nil || !utils.SameSite(abs, origin) {
			return
		}
		norm, err := utils.NormalizeURL(abs)
		if err != nil || seen[norm] {
			return
		}
		seen[norm] = true
		out = append(out, norm)
	})
	return out, nil
}

// FetchProduct returns (nil, nil) when no strategy finds a product.
func (g *GenericAdapter) FetchProduct(ctx context.Context, _ *entity.Brand, ref entity.ProductRef) (*entity.RawProduct, error) {
	page, err := g.fetcher.Fetch(ctx, ref.URL)
	if err != nil {
		if isSoft(err) {
			return nil, nil
		}
		return nil, err
	}
	if raw := structuredProduct(page, ref); raw != nil {
		return raw, nil
	}

	if g.renderer != nil {
		rendered, err := g.renderer.Fetch(ctx, ref.URL)
		if err != nil {
			g.logger.Warn("render fallback failed", zap.String("url", ref.URL), zap.Error(err))
		} else {
			if raw := structuredProduct(rendered, ref); raw != nil {
				return raw, nil
			}
			page = rendered
		}
	}

	if g.classifier == nil {
		return nil, nil
	}
	return g.classify(ctx, page, ref)
}

func (g *GenericAdapter) classify(ctx context.Context, page *entity.Page, ref entity.ProductRef) (*entity.RawProduct, error) {
	signals, err := Signals(page)
	if err != nil {
		return nil, nil
	}
	verdict, err := g.classifier.Classify(ctx, signals)
	if err != nil {
		return nil, err
	}
	if !verdict.IsPDP || verdict.Confidence < g.minConfidence {
		g.logger.Debug("page classified as non-product",
			zap.String("url", ref.URL),
			zap.Float64("confidence", verdict.Confidence),
			zap.String("reason", verdict.Reason),
		)
		return nil, nil
	}

	extraction, err := g.classifier.Extract(ctx, signals)
	if err != nil {
		return nil, err
	}
	if extraction == nil || strings.TrimSpace(extraction.Title) == "" {
		return nil, nil
	}
	payload, err := json.Marshal(extraction)
	if err != nil {
		return nil, err
	}
	return &entity.RawProduct{Source: entity.SourceLLM, URL: ref.URL, Payload: payload}, nil
}

func structuredProduct(page *entity.Page, ref entity.ProductRef) *entity.RawProduct {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page.Body))
	if err != nil {
		return nil
	}
	node := FindProductJSONLD(doc)
	if node == nil {
		return nil
	}
	var p JSONLDProduct
	if err := json.Unmarshal(node, &p); err != nil || p.Name == "" {
		return nil
	}
	externalID := string(p.ProductGroupID)
	if externalID == "" && !p.IsGroup() {
		externalID = string(p.SKU)
	}
	return &entity.RawProduct{Source: entity.SourceJSONLD, URL: ref.URL, ExternalID: externalID, Payload: node}
}

// Signals extracts the page content handed to the classifier.
func Signals(page *entity.Page) (entity.PageSignals, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page.Body))
	if err != nil {
		return entity.PageSignals{}, err
	}
	base, _ := url.Parse(page.URL)

	seen := make(map[string]bool)
	var images []string
	addImage := func(src string) {
		src = strings.TrimSpace(src)
		if src == "" || strings.HasPrefix(src, "data:") {
			return
		}
		if base != nil {
			if abs, err := utils.ToAbsoluteURL(base, src); err == nil {
				src = abs
			}
		}
		if !seen[src] {
			seen[src] = true
			images = append(images, src)
		}
	}
	doc.Find(`meta[property="og:image"]`).Each(func(_ int, s *goquery.Selection) {
		addImage(s.AttrOr("content", ""))
	})
	doc.Find("img").Each(func(_ int, s *goquery.Selection) {
		src := s.AttrOr("src", "")
		if src == "" {
			src = s.AttrOr("data-src", "")
		}
		addImage(src)
	})

	doc.Find("script, style, noscript, svg").Remove()
	text := strings.Join(strings.Fields(doc.Find("body").Text()), " ")

	return entity.PageSignals{
		URL:    page.URL,
		HTML:   string(page.Body),
		Text:   text,
		Images: images,
	}, nil
}
