package httpfetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/user/catalog-service/internal/entity"
	"github.com/user/catalog-service/pkg/metrics"
	"github.com/user/catalog-service/pkg/utils"
)

// Config configures the fetcher.
type Config struct {
	Timeout  time.Duration // Default: 20s.
	MaxBytes int64         // Default: 8MB.
	// RPS and Burst bound requests per host.
	RPS   float64
	Burst int
}

func (c *Config) defaults() {
	if c.Timeout <= 0 {
		c.Timeout = 20 * time.Second
	}
	if c.MaxBytes <= 0 {
		c.MaxBytes = 8 << 20
	}
	if c.RPS <= 0 {
		c.RPS = 2
	}
	if c.Burst <= 0 {
		c.Burst = 1
	}
}

// Fetcher is the plain HTTP PageFetcher. It rate limits per host and
// reports failures as *entity.FetchError.
type Fetcher struct {
	client   *http.Client
	rotation *Rotation
	config   Config
	logger   *zap.Logger

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// New creates a Fetcher that routes through the rotation's proxies.
func New(cfg Config, rotation *Rotation, logger *zap.Logger) *Fetcher {
	cfg.defaults()
	metrics.Init()
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.Proxy = rotation.Proxy
	return &Fetcher{
		client: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: transport,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 5 {
					return fmt.Errorf("too many redirects (%d)", len(via))
				}
				return nil
			},
		},
		rotation: rotation,
		config:   cfg,
		logger:   logger,
		limiters: make(map[string]*rate.Limiter),
	}
}

// Fetch retrieves a URL and returns its body when the status is 2xx.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (*entity.Page, error) {
	host := utils.Host(rawURL)
	if err := f.limiter(host).Wait(ctx); err != nil {
		return nil, &entity.FetchError{URL: rawURL, Kind: entity.KindTransient, Err: fmt.Errorf("rate limit wait: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, &entity.FetchError{URL: rawURL, Kind: entity.KindSoft, Err: fmt.Errorf("could not fetch: %w", err)}
	}
	req.Header.Set("User-Agent", f.rotation.UserAgent())
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/json;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	start := time.Now()
	resp, err := f.client.Do(req)
	metrics.FetchDuration.WithLabelValues("http", host).Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, &entity.FetchError{URL: rawURL, Kind: networkKind(err), Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		// Drain a little so the connection can be reused.
		_, _ = io.CopyN(io.Discard, resp.Body, 4<<10)
		return nil, &entity.FetchError{
			URL:        rawURL,
			StatusCode: resp.StatusCode,
			Kind:       entity.KindForStatus(resp.StatusCode),
			Err:        fmt.Errorf("http %d", resp.StatusCode),
		}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.config.MaxBytes))
	if err != nil {
		return nil, &entity.FetchError{URL: rawURL, Kind: networkKind(err), Err: fmt.Errorf("read body: %w", err)}
	}

	f.logger.Debug("fetched page",
		zap.String("url", rawURL),
		zap.Int("status", resp.StatusCode),
		zap.Int("bytes", len(body)),
		zap.Duration("duration", time.Since(start)),
	)

	return &entity.Page{
		URL:        rawURL,
		FinalURL:   resp.Request.URL.String(),
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       body,
	}, nil
}

func (f *Fetcher) limiter(host string) *rate.Limiter {
	f.mu.Lock()
	defer f.mu.Unlock()
	l, ok := f.limiters[host]
	if !ok {
		l = rate.NewLimiter(rate.Limit(f.config.RPS), f.config.Burst)
		f.limiters[host] = l
	}
	return l
}

func networkKind(err error) entity.ErrorKind {
	var netErr net.Error
	var dnsErr *net.DNSError
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return entity.KindTransient
	case errors.As(err, &dnsErr):
		return entity.KindTransient
	case errors.As(err, &netErr):
		return entity.KindTransient
	case errors.Is(err, io.ErrUnexpectedEOF), errors.Is(err, io.EOF):
		return entity.KindTransient
	default:
		return entity.KindSystemic
	}
}
