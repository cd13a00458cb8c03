package backend

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

const defaultTimeout = 5 * time.Minute

// Client issues REST calls against the upload.ai backend. It carries the
// base address and default headers shared by every call.
type Client struct {
	mu      sync.RWMutex
	baseURL *url.URL
	headers http.Header
	http    *http.Client
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithHeader adds a header sent with every request.
func WithHeader(key, value string) Option {
	return func(c *Client) {
		c.headers.Add(key, value)
	}
}

// WithTimeout bounds each request.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.http.Timeout = d
		}
	}
}

// NewClient builds a client for baseURL.
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	parsed, err := ParseBaseURL(baseURL)
	if err != nil {
		return nil, err
	}

	c := &Client{
		baseURL: parsed,
		headers: http.Header{},
		http:    &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// ParseBaseURL validates an absolute http(s) base address.
func ParseBaseURL(raw string) (*url.URL, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, fmt.Errorf("backend base URL is required")
	}
	parsed, err := url.Parse(trimmed)
	if err != nil {
		return nil, fmt.Errorf("parse backend base URL: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, fmt.Errorf("backend base URL must use http or https: %s", trimmed)
	}
	if parsed.Host == "" {
		return nil, fmt.Errorf("backend base URL has no host: %s", trimmed)
	}
	parsed.Path = strings.TrimSuffix(parsed.Path, "/")
	parsed.RawPath = ""
	return parsed, nil
}

// BaseURL returns the current base address.
func (c *Client) BaseURL() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.baseURL.String()
}

// SetBaseURL points later calls at a different backend.
func (c *Client) SetBaseURL(raw string) error {
	parsed, err := ParseBaseURL(raw)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.baseURL = parsed
	c.mu.Unlock()
	return nil
}

// endpoint joins already-escaped path segments onto the base address.
func (c *Client) endpoint(segments ...string) string {
	c.mu.RLock()
	base := c.baseURL
	c.mu.RUnlock()

	return base.JoinPath(segments...).String()
}

func (c *Client) newRequest(ctx context.Context, method, target string, body io.Reader, contentType string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, err
	}
	for key, values := range c.headers {
		for _, value := range values {
			req.Header.Add(key, value)
		}
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	return req, nil
}

func (c *Client) do(req *http.Request) (*http.Response, error) {
	return c.http.Do(req)
}

// readErrorBody returns a short excerpt of a failed response body.
func readErrorBody(body io.Reader) string {
	data, _ := io.ReadAll(io.LimitReader(body, 2048))
	return strings.TrimSpace(string(data))
}

func isSuccess(status int) bool {
	return status >= 200 && status < 300
}
