// Package dataloop curates datasets on the annotation platform: it resolves
// a dataset, uploads images, tags them with metadata, attaches classification
// and keypoint annotations, and reports items by label.
//
// A Client owns an authenticated session. Close it when done:
//
//	client, err := dataloop.New(ctx, cfg)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer client.Close(ctx)
//
//	ds, err := client.CreateDataset(ctx, "my-project", "my-dataset")
package dataloop

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"os"
	"time"

	oteltrace "go.opentelemetry.io/otel/trace"

	"github.com/dataloop-tools/dataloop-go/api"
	"github.com/dataloop-tools/dataloop-go/config"
	"github.com/dataloop-tools/dataloop-go/internal/auth"
	"github.com/dataloop-tools/dataloop-go/logger"
	"github.com/dataloop-tools/dataloop-go/trace"
)

// Client runs curation operations over an authenticated session.
type Client struct {
	api     *api.API
	session *auth.Session
	logger  logger.Logger
	out     io.Writer
	now     func() time.Time
	rand    *rand.Rand
	tracer  oteltrace.Tracer
}

// Option configures a Client.
type Option func(*options)

type options struct {
	logger         logger.Logger
	out            io.Writer
	now            func() time.Time
	rand           *rand.Rand
	httpClient     *http.Client
	tracerProvider oteltrace.TracerProvider
}

// WithLogger sets the logger. Defaults to logger.Discard().
func WithLogger(log logger.Logger) Option {
	return func(o *options) {
		o.logger = log
	}
}

// WithOutput sets where reports are printed. Defaults to os.Stdout.
func WithOutput(w io.Writer) Option {
	return func(o *options) {
		o.out = w
	}
}

// WithClock overrides the clock used for metadata timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

// WithRand sets the random source used by keypoint generation.
func WithRand(r *rand.Rand) Option {
	return func(o *options) {
		o.rand = r
	}
}

// WithHTTPClient sets the base http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(o *options) {
		o.httpClient = hc
	}
}

// WithTracerProvider enables tracing of operations and HTTP requests.
func WithTracerProvider(tp oteltrace.TracerProvider) Option {
	return func(o *options) {
		o.tracerProvider = tp
	}
}

// New creates a client and opens its session, logging in unless
// cfg.Token is still valid.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*Client, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}

	o := &options{
		logger: logger.Discard(),
		out:    os.Stdout,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.rand == nil {
		o.rand = newRand(cfg.Seed)
	}

	hc := o.httpClient
	if hc == nil {
		hc = &http.Client{Timeout: 30 * time.Second}
	}
	if o.tracerProvider != nil {
		hc = trace.WrapClient(hc, o.tracerProvider)
	}

	apiClient := api.NewClient(cfg.Token,
		api.WithAPIURL(cfg.APIURL),
		api.WithLogger(o.logger),
		api.WithHTTPClient(hc),
		api.WithRateLimit(cfg.RateLimit))

	session, err := auth.Open(ctx, auth.Options{
		Email:    cfg.Email,
		Password: cfg.Password,
		Token:    cfg.Token,
		Client:   apiClient.HTTPS(),
		Logger:   o.logger,
	})
	if err != nil {
		return nil, err
	}

	return &Client{
		api:     apiClient,
		session: session,
		logger:  o.logger,
		out:     o.out,
		now:     o.now,
		rand:    o.rand,
		tracer:  trace.Tracer(o.tracerProvider),
	}, nil
}

// API exposes the underlying REST client.
func (c *Client) API() *api.API {
	return c.api
}

// Close logs out. It is safe to call more than once.
func (c *Client) Close(ctx context.Context) error {
	return c.session.Close(ctx)
}

func newRand(seed int64) *rand.Rand {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return rand.New(rand.NewSource(seed))
}
