package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/user/catalog-service/internal/entity"
)

const (
	maxHTMLChars = 60_000
	maxTextChars = 20_000
	maxImages    = 20
)

// Client calls the product classification/extraction service over JSON.
//
//	POST {endpoint}/classify  {url, html, text, images} -> {is_pdp, confidence, reason}
//	POST {endpoint}/extract   {url, html, text, images} -> {title, variants, images}
type Client struct {
	endpoint string
	apiKey   string
	client   *http.Client
	logger   *zap.Logger
}

// NewClient creates a Client.
func NewClient(endpoint, apiKey string, timeout time.Duration, logger *zap.Logger) *Client {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		endpoint: strings.TrimRight(endpoint, "/"),
		apiKey:   apiKey,
		client:   &http.Client{Timeout: timeout},
		logger:   logger,
	}
}

// Classify asks whether the page is a product detail page.
func (c *Client) Classify(ctx context.Context, page entity.PageSignals) (*entity.Classification, error) {
	var out entity.Classification
	if err := c.post(ctx, "/classify", page, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Extract asks for the product title, variants and images.
func (c *Client) Extract(ctx context.Context, page entity.PageSignals) (*entity.Extraction, error) {
	var out entity.Extraction
	if err := c.post(ctx, "/extract", page, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) post(ctx context.Context, path string, page entity.PageSignals, out any) error {
	body, err := json.Marshal(trimSignals(page))
	if err != nil {
		return fmt.Errorf("encode llm request: %w", err)
	}
	url := c.endpoint + path
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("new llm request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		return &entity.FetchError{URL: url, Kind: entity.KindTransient, Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("llm rejected credentials (http %d): %w", resp.StatusCode, entity.ErrFatal)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		kind := entity.KindForStatus(resp.StatusCode)
		if kind == entity.KindSoft {
			kind = entity.KindSystemic
		}
		return &entity.FetchError{URL: url, StatusCode: resp.StatusCode, Kind: kind, Err: fmt.Errorf("http %d", resp.StatusCode)}
	}

	if err := json.NewDecoder(io.LimitReader(resp.Body, 4<<20)).Decode(out); err != nil {
		return fmt.Errorf("decode llm response from %s: %w", path, err)
	}
	c.logger.Debug("llm call", zap.String("path", path), zap.String("page", page.URL), zap.Duration("duration", time.Since(start)))
	return nil
}

func trimSignals(p entity.PageSignals) entity.PageSignals {
	if len(p.HTML) > maxHTMLChars {
		p.HTML = p.HTML[:maxHTMLChars]
	}
	if len(p.Text) > maxTextChars {
		p.Text = p.Text[:maxTextChars]
	}
	if len(p.Images) > maxImages {
		p.Images = p.Images[:maxImages]
	}
	return p
}
