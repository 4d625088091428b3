package observe

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	promexporter "go.opentelemetry.io/otel/exporters/prometheus"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.39.0"
)

// ProviderOption configures [InitProvider].
type ProviderOption func(*providerConfig)

type providerConfig struct {
	service    string
	version    string
	instanceID string
	spans      sdktrace.SpanExporter
}

// WithServiceVersion sets service.version, normally the build version.
func WithServiceVersion(v string) ProviderOption {
	return func(c *providerConfig) { c.version = v }
}

// WithInstanceID sets service.instance.id. A random UUID is used otherwise.
func WithInstanceID(id string) ProviderOption {
	return func(c *providerConfig) { c.instanceID = id }
}

// WithSpanExporter batches finished spans to exp. Without it spans are
// sampled for log correlation but never leave the process.
func WithSpanExporter(exp sdktrace.SpanExporter) ProviderOption {
	return func(c *providerConfig) { c.spans = exp }
}

// InitProvider installs global meter and tracer providers for the bot.
// Metrics are exposed through the Prometheus default registry, which the
// /metrics handler serves. The returned function flushes and stops both
// providers.
func InitProvider(ctx context.Context, opts ...ProviderOption) (func(context.Context) error, error) {
	cfg := providerConfig{service: "ppmusicbot"}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.instanceID == "" {
		cfg.instanceID = uuid.NewString()
	}

	res, err := resource.New(ctx,
		resource.WithSchemaURL(semconv.SchemaURL),
		resource.WithTelemetrySDK(),
		resource.WithFromEnv(),
		resource.WithAttributes(
			semconv.ServiceName(cfg.service),
			semconv.ServiceVersion(cfg.version),
			semconv.ServiceInstanceID(cfg.instanceID),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("observe: build resource: %w", err)
	}

	exporter, err := promexporter.New()
	if err != nil {
		return nil, fmt.Errorf("observe: prometheus exporter: %w", err)
	}
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(exporter),
	)

	tpOpts := []sdktrace.TracerProviderOption{sdktrace.WithResource(res)}
	if cfg.spans != nil {
		tpOpts = append(tpOpts, sdktrace.WithBatcher(cfg.spans))
	}
	tp := sdktrace.NewTracerProvider(tpOpts...)

	otel.SetMeterProvider(mp)
	otel.SetTracerProvider(tp)

	return func(ctx context.Context) error {
		return errors.Join(tp.Shutdown(ctx), mp.Shutdown(ctx))
	}, nil
}
