package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/richxcame/creator-payouts/pkg/resilience"
)

// DefaultTimeout bounds outbound calls when no timeout is given.
const DefaultTimeout = 10 * time.Second

// Client is a JSON HTTP client with optional retry support.
type Client struct {
	baseURL     string
	httpClient  *http.Client
	retryConfig *resilience.RetryConfig
	headers     map[string]string
}

// NewClient creates a client for the given base URL. An optional timeout may
// be passed; zero or absent falls back to DefaultTimeout.
func NewClient(baseURL string, timeout ...time.Duration) *Client {
	t := DefaultTimeout
	if len(timeout) > 0 && timeout[0] > 0 {
		t = timeout[0]
	}

	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: t},
		headers:    make(map[string]string),
	}
}

// WithRetry enables retries with the given configuration.
func (c *Client) WithRetry(config resilience.RetryConfig) *Client {
	c.retryConfig = &config
	return c
}

// WithHeader sets a default header sent on every request.
func (c *Client) WithHeader(key, value string) *Client {
	c.headers[key] = value
	return c
}

// PostJSON sends a JSON body to baseURL+path and decodes a JSON response into
// out when out is non-nil. Non-2xx responses are returned as errors.
func (c *Client) PostJSON(ctx context.Context, path string, body interface{}, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request body: %w", err)
	}

	operation := func(ctx context.Context) (interface{}, error) {
		return nil, c.doJSON(ctx, http.MethodPost, path, payload, out)
	}

	if c.retryConfig != nil {
		_, err = resilience.Retry(ctx, *c.retryConfig, operation)
		return err
	}

	_, err = operation(ctx)
	return err
}

// GetJSON fetches baseURL+path and decodes the JSON response into out.
func (c *Client) GetJSON(ctx context.Context, path string, out interface{}) error {
	operation := func(ctx context.Context) (interface{}, error) {
		return nil, c.doJSON(ctx, http.MethodGet, path, nil, out)
	}

	if c.retryConfig != nil {
		_, err := resilience.Retry(ctx, *c.retryConfig, operation)
		return err
	}

	_, err := operation(ctx)
	return err
}

func (c *Client) doJSON(ctx context.Context, method, path string, payload []byte, out interface{}) error {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	for key, value := range c.headers {
		req.Header.Set(key, value)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%s %s returned status %d: %s", method, path, resp.StatusCode, snippet)
	}

	if out == nil {
		// Drain so the connection can be reused
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	return json.NewDecoder(resp.Body).Decode(out)
}
