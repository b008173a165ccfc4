// Package client calls the catalog extractor admin API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// BasePath is the route group of the admin API.
const BasePath = "/catalog-extractor"

// APIError is a non-2xx answer from the server.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.StatusCode, e.Message)
}

// APIClient sends authenticated admin requests.
type APIClient struct {
	http   *http.Client
	server string
	token  string
}

// NewAPIClient creates an APIClient. The server URL gets an http scheme when it has none.
func NewAPIClient(server, token string, timeout time.Duration) (*APIClient, error) {
	normalized, err := normalizeServerURL(server)
	if err != nil {
		return nil, fmt.Errorf("invalid server URL: %w", err)
	}
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return &APIClient{
		http:   &http.Client{Timeout: timeout},
		server: normalized,
		token:  token,
	}, nil
}

func normalizeServerURL(server string) (string, error) {
	if !strings.Contains(server, "://") {
		server = "http://" + server
	}
	u, err := url.Parse(server)
	if err != nil || u.Host == "" {
		return "", fmt.Errorf("invalid server URL %q", server)
	}
	return fmt.Sprintf("%s://%s", u.Scheme, u.Host), nil
}

// Post sends body as JSON to an admin endpoint and returns the raw JSON answer.
func (c *APIClient) Post(ctx context.Context, endpoint string, body any) (json.RawMessage, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}
	return c.do(ctx, http.MethodPost, endpoint, nil, bytes.NewReader(payload))
}

// Get queries an admin endpoint.
func (c *APIClient) Get(ctx context.Context, endpoint string, query url.Values) (json.RawMessage, error) {
	return c.do(ctx, http.MethodGet, endpoint, query, nil)
}

func (c *APIClient) do(ctx context.Context, method, endpoint string, query url.Values, body io.Reader) (json.RawMessage, error) {
	target := c.server + BasePath + endpoint
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request %s %s: %w", method, endpoint, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		var e struct {
			Error string `json:"error"`
		}
		msg := strings.TrimSpace(string(raw))
		if json.Unmarshal(raw, &e) == nil && e.Error != "" {
			msg = e.Error
		}
		return nil, &APIError{StatusCode: resp.StatusCode, Message: msg}
	}
	return raw, nil
}
