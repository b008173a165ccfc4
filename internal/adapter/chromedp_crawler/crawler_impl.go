package chromedp_crawler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/user/catalog-service/internal/adapter/httpfetch"
	"github.com/user/catalog-service/internal/entity"
	"github.com/user/catalog-service/pkg/metrics"
	"github.com/user/catalog-service/pkg/utils"
)

// RenderFetcher renders pages in headless Chrome. It is the PageFetcher used
// for product pages that only build their markup client-side.
type RenderFetcher struct {
	allocCtx    context.Context
	cancelAlloc context.CancelFunc
	slots       chan struct{}
	timeout     time.Duration
	rotation    *httpfetch.Rotation
	logger      *zap.Logger
}

// NewRenderFetcher starts a shared browser allocator. Close releases it.
func NewRenderFetcher(maxConcurrency int, pageLoadTimeout time.Duration, rotation *httpfetch.Rotation, logger *zap.Logger) *RenderFetcher {
	if maxConcurrency <= 0 {
		maxConcurrency = 2
	}
	metrics.Init()

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.UserAgent(rotation.UserAgent()),
	)
	if proxy := rotation.NextProxy(); proxy != "" {
		opts = append(opts, chromedp.ProxyServer(proxy))
	}
	allocCtx, cancel := chromedp.NewExecAllocator(context.Background(), opts...)

	return &RenderFetcher{
		allocCtx:    allocCtx,
		cancelAlloc: cancel,
		slots:       make(chan struct{}, maxConcurrency),
		timeout:     pageLoadTimeout,
		rotation:    rotation,
		logger:      logger,
	}
}

// Fetch navigates to the URL and returns the rendered document.
func (c *RenderFetcher) Fetch(ctx context.Context, url string) (*entity.Page, error) {
	select {
	case c.slots <- struct{}{}:
		defer func() { <-c.slots }()
	case <-ctx.Done():
		return nil, &entity.FetchError{URL: url, Kind: entity.KindTransient, Err: ctx.Err()}
	}

	taskCtx, cancel := chromedp.NewContext(c.allocCtx)
	defer cancel()
	taskCtx, cancelTimeout := context.WithTimeout(taskCtx, c.timeout)
	defer cancelTimeout()
	// Stop the tab when the caller gives up.
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	var (
		mu         sync.Mutex
		statusCode int
		finalURL   string
	)
	chromedp.ListenTarget(taskCtx, func(ev interface{}) {
		if e, ok := ev.(*network.EventResponseReceived); ok && e.Type == network.ResourceTypeDocument {
			mu.Lock()
			statusCode = int(e.Response.Status)
			finalURL = e.Response.URL
			mu.Unlock()
		}
	})

	start := time.Now()
	var html string
	err := chromedp.Run(taskCtx,
		network.Enable(),
		network.SetExtraHTTPHeaders(network.Headers{"Accept-Language": "en-US,en;q=0.9"}),
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	metrics.FetchDuration.WithLabelValues("render", utils.Host(url)).Observe(time.Since(start).Seconds())

	if err != nil {
		c.logger.Warn("render failed", zap.String("url", url), zap.Error(err))
		// Kind is left empty so the message signatures decide.
		return nil, &entity.FetchError{URL: url, Err: fmt.Errorf("render: %w", err)}
	}

	mu.Lock()
	code, final := statusCode, finalURL
	mu.Unlock()
	if code != 0 && (code < 200 || code >= 300) {
		return nil, &entity.FetchError{URL: url, StatusCode: code, Kind: entity.KindForStatus(code), Err: fmt.Errorf("http %d", code)}
	}
	if final == "" {
		final = url
	}

	c.logger.Debug("rendered page", zap.String("url", url), zap.Int("status", code), zap.Duration("duration", time.Since(start)))
	return &entity.Page{URL: url, FinalURL: final, StatusCode: code, Body: []byte(html)}, nil
}

// Close shuts the browser down.
func (c *RenderFetcher) Close() {
	c.cancelAlloc()
}
