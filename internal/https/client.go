// Package https provides a unified HTTP client for making API requests
// with centralized auth, error handling, throttling and debug logging.
package https

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/dataloop-tools/dataloop-go/logger"
)

// HTTPError represents an HTTP error response with status code.
type HTTPError struct {
	StatusCode int
	Body       string
	err        error
}

func (e *HTTPError) Error() string {
	return e.err.Error()
}

func (e *HTTPError) Unwrap() error {
	return e.err
}

// Is lets a 404 response match ErrNotFound.
func (e *HTTPError) Is(target error) bool {
	return target == ErrNotFound && e.StatusCode == http.StatusNotFound
}

// ErrNotFound is returned (or matched by a 404 *HTTPError) when a resource
// does not exist.
var ErrNotFound = errors.New("not found")

// StatusCode returns the status code of an *HTTPError in err's chain, or 0.
func StatusCode(err error) int {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode
	}
	return 0
}

// IsNotFound reports whether err is ErrNotFound or carries a 404 response.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// Client is a unified HTTP client for API requests.
type Client struct {
	mu         sync.RWMutex
	token      string
	baseURL    string // e.g. "https://gate.dataloop.ai/api/v1"
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     logger.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithRateLimit throttles outgoing requests to rps requests per second.
// A non-positive rps disables throttling.
func WithRateLimit(rps float64) Option {
	return func(c *Client) {
		if rps <= 0 {
			c.limiter = nil
			return
		}
		burst := int(rps)
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// NewClient creates a new HTTP client with the given bearer token and base URL.
// The token may be empty for unauthenticated calls such as login; it can be
// set later with SetToken.
func NewClient(token, baseURL string, log logger.Logger, opts ...Option) *Client {
	if log == nil {
		log = logger.Discard()
	}

	c := &Client{
		token:   token,
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: log,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewWrappedClient creates a new HTTP client with a custom http.Client.
// This is useful for tests that need to wrap the HTTP client (e.g., with VCR).
func NewWrappedClient(token, baseURL string, httpClient *http.Client, log logger.Logger) *Client {
	return NewClient(token, baseURL, log, WithHTTPClient(httpClient))
}

// SetToken replaces the bearer token used for subsequent requests.
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = token
}

// Token returns the current bearer token.
func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// BaseURL returns the base URL requests are resolved against.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// GET makes a GET request with query parameters.
// The path is appended to the base URL (e.g., "/projects").
func (c *Client) GET(ctx context.Context, path string, params url.Values) (*http.Response, error) {
	u, err := c.url(path)
	if err != nil {
		return nil, err
	}
	if len(params) > 0 {
		u = u + "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	return c.doRequest(req)
}

// POST makes a POST request with a JSON body.
func (c *Client) POST(ctx context.Context, path string, body any) (*http.Response, error) {
	return c.sendJSON(ctx, http.MethodPost, path, body)
}

// PATCH makes a PATCH request with a JSON body.
func (c *Client) PATCH(ctx context.Context, path string, body any) (*http.Response, error) {
	return c.sendJSON(ctx, http.MethodPatch, path, body)
}

// DELETE makes a DELETE request.
func (c *Client) DELETE(ctx context.Context, path string) (*http.Response, error) {
	u, err := c.url(path)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, u, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	return c.doRequest(req)
}

// Multipart POSTs a multipart/form-data body made of the given text fields
// and a single file part read from r.
func (c *Client) Multipart(ctx context.Context, path string, fields map[string]string, fileField, fileName string, r io.Reader) (*http.Response, error) {
	u, err := c.url(path)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			return nil, fmt.Errorf("error writing form field %q: %w", k, err)
		}
	}
	fw, err := mw.CreateFormFile(fileField, fileName)
	if err != nil {
		return nil, fmt.Errorf("error creating form file: %w", err)
	}
	n, err := io.Copy(fw, r)
	if err != nil {
		return nil, fmt.Errorf("error reading %s: %w", fileName, err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("error closing multipart body: %w", err)
	}

	c.logger.Debug("http multipart body", "file", fileName, "bytes", n)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, &buf)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	return c.doRequest(req)
}

// Client returns the underlying http.Client.
func (c *Client) Client() *http.Client {
	return c.httpClient
}

func (c *Client) url(path string) (string, error) {
	u, err := url.JoinPath(c.baseURL, path)
	if err != nil {
		return "", fmt.Errorf("failed to join URL: %w", err)
	}
	return u, nil
}

func (c *Client) sendJSON(ctx context.Context, method, path string, body any) (*http.Response, error) {
	u, err := c.url(path)
	if err != nil {
		return nil, err
	}

	var reqBody io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("error marshaling request: %w", err)
		}
		reqBody = bytes.NewReader(jsonData)

		c.logger.Debug("http request body", "body", redact(path, jsonData))
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return c.doRequest(req)
}

// doRequest executes the HTTP request with auth, throttling, error checking, and logging.
func (c *Client) doRequest(req *http.Request) (*http.Response, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(req.Context()); err != nil {
			return nil, fmt.Errorf("rate limiter: %w", err)
		}
	}

	if token := c.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-Id", uuid.NewString())

	start := time.Now()
	c.logger.Debug("http request",
		"method", req.Method,
		"url", req.URL.String())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Debug("http request failed",
			"method", req.Method,
			"url", req.URL.String(),
			"error", err,
			"duration", time.Since(start))
		return nil, fmt.Errorf("error making request: %w", err)
	}

	c.logger.Debug("http response",
		"method", req.Method,
		"url", req.URL.String(),
		"status", resp.StatusCode,
		"duration", time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		_ = resp.Body.Close()

		c.logger.Debug("http error response",
			"method", req.Method,
			"url", req.URL.String(),
			"status", resp.StatusCode,
			"body", string(body))

		return nil, &HTTPError{
			StatusCode: resp.StatusCode,
			Body:       string(body),
			err:        fmt.Errorf("unexpected status code: %d, body: %s", resp.StatusCode, string(body)),
		}
	}

	return resp, nil
}

// redact keeps credentials out of debug logs.
func redact(path string, body []byte) string {
	if strings.Contains(path, "auth") {
		return "<redacted>"
	}
	return string(body)
}
