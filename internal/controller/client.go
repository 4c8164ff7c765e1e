// ABOUTME: Read-only client for the upstream controller metrics API
// ABOUTME: Resolves the API base from the metrics URL and fetches raw JSON documents

package controller

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// DefaultTimeout bounds each upstream request.
const DefaultTimeout = 10 * time.Second

const maxBody = 8 << 20

// ErrNotConfigured is returned when no controller URL is set.
var ErrNotConfigured = errors.New("controller url not configured")

// StatusError is returned for non-2xx upstream responses.
type StatusError struct {
	StatusCode int
	URL        string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("controller: unexpected status %d from %s", e.StatusCode, e.URL)
}

// Client fetches controller documents.
type Client struct {
	MetricsURL string
	BaseURL    string

	httpClient *http.Client
	timeout    time.Duration
}

// New creates a controller client. A zero timeout uses DefaultTimeout.
func New(metricsURL, baseURL string, timeout time.Duration, httpClient *http.Client) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Client{
		MetricsURL: strings.TrimSpace(metricsURL),
		BaseURL:    strings.TrimSpace(baseURL),
		httpClient: httpClient,
		timeout:    timeout,
	}
}

// ResolveBaseURL returns the configured base URL, or the metrics URL without
// its last path segment.
func (c *Client) ResolveBaseURL() string {
	if c.BaseURL != "" {
		return strings.TrimRight(c.BaseURL, "/")
	}
	u := strings.TrimRight(c.MetricsURL, "/")
	if i := strings.LastIndex(u, "/"); i >= 0 {
		return u[:i]
	}
	return u
}

// Metrics fetches the raw metrics document.
func (c *Client) Metrics(ctx context.Context) (json.RawMessage, error) {
	if c.MetricsURL == "" {
		return nil, ErrNotConfigured
	}
	return c.get(ctx, c.MetricsURL)
}

// Fetch gets path relative to the base URL. rawQuery, when set, is appended
// unchanged.
func (c *Client) Fetch(ctx context.Context, path, rawQuery string) (json.RawMessage, error) {
	base := c.ResolveBaseURL()
	if base == "" {
		return nil, ErrNotConfigured
	}
	url := base + "/" + strings.TrimLeft(path, "/")
	if rawQuery != "" {
		url += "?" + rawQuery
	}
	return c.get(ctx, url)
}

func (c *Client) get(ctx context.Context, url string) (json.RawMessage, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("controller: create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("controller: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBody))
		return nil, &StatusError{StatusCode: resp.StatusCode, URL: url}
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, fmt.Errorf("controller: read response: %w", err)
	}
	if !json.Valid(raw) {
		return nil, fmt.Errorf("controller: response from %s is not JSON", url)
	}
	return raw, nil
}
