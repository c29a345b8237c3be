// Package trace wires OpenTelemetry into the client: a TracerProvider
// factory selected by configuration and an http.Client wrapper that records
// one client span per API request.
//
//	tp, err := trace.NewProvider(ctx, trace.ModeStdout, os.Stderr)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer tp.Shutdown(ctx)
//
//	httpClient := trace.WrapClient(nil, tp)
package trace

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	oteltrace "go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/dataloop-tools/dataloop-go"

// Exporter modes accepted by NewProvider.
const (
	ModeOff    = "off"
	ModeStdout = "stdout"
	ModeOTLP   = "otlp"
)

// NewProvider returns a TracerProvider exporting according to mode. ModeOff
// records nothing. ModeOTLP reads the standard OTEL_EXPORTER_OTLP_* variables.
func NewProvider(ctx context.Context, mode string, w io.Writer) (*sdktrace.TracerProvider, error) {
	switch mode {
	case "", ModeOff:
		return sdktrace.NewTracerProvider(sdktrace.WithSampler(sdktrace.NeverSample())), nil
	case ModeStdout:
		exp, err := stdouttrace.New(stdouttrace.WithWriter(w), stdouttrace.WithPrettyPrint())
		if err != nil {
			return nil, fmt.Errorf("stdout exporter: %w", err)
		}
		return sdktrace.NewTracerProvider(sdktrace.WithSyncer(exp)), nil
	case ModeOTLP:
		exp, err := otlptracehttp.New(ctx)
		if err != nil {
			return nil, fmt.Errorf("otlp exporter: %w", err)
		}
		return sdktrace.NewTracerProvider(sdktrace.WithBatcher(exp)), nil
	default:
		return nil, fmt.Errorf("unknown trace mode %q", mode)
	}
}

// Tracer returns the package tracer from tp, or from the global provider
// when tp is nil.
func Tracer(tp oteltrace.TracerProvider) oteltrace.Tracer {
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	return tp.Tracer(instrumentationName)
}

// WrapClient wraps an existing http.Client with tracing middleware.
// If client is nil, a new client with the default transport is created.
func WrapClient(client *http.Client, tp oteltrace.TracerProvider) *http.Client {
	if client == nil {
		client = &http.Client{}
	}

	transport := client.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}

	client.Transport = &roundTripper{base: transport, tracer: Tracer(tp)}
	return client
}

// roundTripper wraps an http.RoundTripper with OpenTelemetry tracing.
type roundTripper struct {
	base   http.RoundTripper
	tracer oteltrace.Tracer
}

// RoundTrip implements http.RoundTripper.
func (rt *roundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx, span := rt.tracer.Start(req.Context(), req.Method+" "+req.URL.Path,
		oteltrace.WithSpanKind(oteltrace.SpanKindClient),
		oteltrace.WithAttributes(
			attribute.String("http.request.method", req.Method),
			attribute.String("server.address", req.URL.Host),
			attribute.String("url.path", req.URL.Path),
		))
	defer span.End()

	resp, err := rt.base.RoundTrip(req.WithContext(ctx))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))
	if resp.StatusCode >= http.StatusBadRequest {
		span.SetStatus(codes.Error, resp.Status)
	}
	return resp, nil
}
