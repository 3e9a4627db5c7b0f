package tracing

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

const (
	ExporterNone     = "none"
	ExporterStdout   = "stdout"
	ExporterOTLPHTTP = "otlp-http"
	ExporterOTLPGRPC = "otlp-grpc"
)

type ShutdownFunc func(context.Context) error

// Setup installs the global tracer provider. The otlp exporters read their
// endpoint from the standard OTEL_EXPORTER_OTLP_* variables. With "none" the
// global no-op provider stays in place.
func Setup(ctx context.Context, exporter, serviceName, version string) (ShutdownFunc, error) {
	return setup(ctx, exporter, serviceName, version, os.Stderr)
}

func setup(ctx context.Context, exporter, serviceName, version string, w io.Writer) (ShutdownFunc, error) {
	noop := func(context.Context) error { return nil }

	var (
		exp sdktrace.SpanExporter
		err error
	)
	switch strings.ToLower(strings.TrimSpace(exporter)) {
	case "", ExporterNone:
		return noop, nil
	case ExporterStdout:
		exp, err = stdouttrace.New(stdouttrace.WithWriter(w))
	case ExporterOTLPHTTP:
		exp, err = otlptracehttp.New(ctx)
	case ExporterOTLPGRPC:
		exp, err = otlptracegrpc.New(ctx)
	default:
		return noop, fmt.Errorf("unknown trace exporter %q", exporter)
	}
	if err != nil {
		return noop, fmt.Errorf("failed to create %s exporter: %w", exporter, err)
	}

	res := resource.NewWithAttributes("",
		attribute.String("service.name", serviceName),
		attribute.String("service.version", version),
	)

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return tp.Shutdown, nil
}
