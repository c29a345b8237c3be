// Package api provides a client for the annotation platform's REST API.
package api

import (
	"net/http"

	"github.com/dataloop-tools/dataloop-go/api/annotations"
	"github.com/dataloop-tools/dataloop-go/api/datasets"
	"github.com/dataloop-tools/dataloop-go/api/items"
	"github.com/dataloop-tools/dataloop-go/api/projects"
	"github.com/dataloop-tools/dataloop-go/internal/https"
	"github.com/dataloop-tools/dataloop-go/logger"
)

// DefaultAPIURL is the platform's public API endpoint.
const DefaultAPIURL = "https://gate.dataloop.ai/api/v1"

// API is the main API client.
type API struct {
	client *https.Client
}

// Option configures an API client.
type Option func(*options)

// options holds configuration for creating an API client.
type options struct {
	apiURL     string
	logger     logger.Logger
	httpClient *http.Client
	rateLimit  float64
}

// WithAPIURL sets the API URL for the client.
// If not provided, defaults to DefaultAPIURL.
func WithAPIURL(url string) Option {
	return func(o *options) {
		o.apiURL = url
	}
}

// WithLogger sets a custom logger for the client.
// If not provided, no logging will occur.
func WithLogger(log logger.Logger) Option {
	return func(o *options) {
		o.logger = log
	}
}

// WithHTTPClient sets the http.Client used for requests, e.g. one wrapped
// with tracing.
func WithHTTPClient(hc *http.Client) Option {
	return func(o *options) {
		o.httpClient = hc
	}
}

// WithRateLimit caps outgoing requests per second. Zero disables the limit.
func WithRateLimit(rps float64) Option {
	return func(o *options) {
		o.rateLimit = rps
	}
}

// NewClient creates a new API client. The token may be empty when a
// session will log in on the client's behalf.
func NewClient(token string, opts ...Option) *API {
	options := &options{
		apiURL: DefaultAPIURL,
	}

	for _, opt := range opts {
		opt(options)
	}

	client := https.NewClient(token, options.apiURL, options.logger,
		https.WithHTTPClient(options.httpClient),
		https.WithRateLimit(options.rateLimit))

	return &API{
		client: client,
	}
}

// HTTPS returns the shared transport client. Sessions authenticate it in place.
func (a *API) HTTPS() *https.Client {
	return a.client
}

// Projects returns a client for project operations
func (a *API) Projects() *projects.API {
	return projects.New(a.client)
}

// Datasets returns a client for dataset operations
func (a *API) Datasets() *datasets.API {
	return datasets.New(a.client)
}

// Items returns a client for item operations
func (a *API) Items() *items.API {
	return items.New(a.client)
}

// Annotations returns a client for annotation operations
func (a *API) Annotations() *annotations.API {
	return annotations.New(a.client)
}
