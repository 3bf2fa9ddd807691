// Package telemetry sets up OpenTelemetry tracing for checks.
package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
)

// Config describes the traced service.
type Config struct {
	ServiceName string
	Version     string
	// TargetURL is recorded on the resource so spans from several watchers
	// can be told apart.
	TargetURL string
	// SampleRatio is the fraction of root checks traced. Values >= 1 (or 0,
	// meaning unset) trace everything; negative values trace nothing.
	SampleRatio float64
}

// Sampler maps SampleRatio to a parent-based sampler so Pub/Sub consumers
// follow the watcher's decision.
func (c Config) Sampler() sdktrace.Sampler {
	switch {
	case c.SampleRatio < 0:
		return sdktrace.ParentBased(sdktrace.NeverSample())
	case c.SampleRatio == 0 || c.SampleRatio >= 1:
		return sdktrace.ParentBased(sdktrace.AlwaysSample())
	default:
		return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(c.SampleRatio))
	}
}

// InitTracerProvider installs the global tracer provider and the W3C trace
// context propagator used to stamp change events. No exporter is attached;
// callers register one on the returned provider.
func InitTracerProvider(ctx context.Context, cfg Config) (*sdktrace.TracerProvider, error) {
	if cfg.ServiceName == "" {
		return nil, fmt.Errorf("service name is required")
	}
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(cfg.Version),
			semconv.HTTPURL(cfg.TargetURL),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithSampler(cfg.Sampler()),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))

	return tp, nil
}
