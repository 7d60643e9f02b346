package xtrace

import (
	"fmt"

	"go.opentelemetry.io/otel/exporters/jaeger"
	"go.opentelemetry.io/otel/exporters/zipkin"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.7.0"
)

// ProviderConfig selects and configures the exporter NewTracerProvider
// builds a batching SpanProcessor around.
type ProviderConfig struct {
	Exporter    string // "jaeger" or "zipkin"
	EndpointURL string
	ServiceName string
}

// NewTracerProvider builds a batching *sdktrace.TracerProvider backed by
// either a Jaeger or a Zipkin collector, per cfg.Exporter. Callers install
// it with otel.SetTracerProvider before anything calls
// otel.GetTracerProvider().Tracer(Name).
func NewTracerProvider(cfg ProviderConfig) (*sdktrace.TracerProvider, error) {
	var exp sdktrace.SpanExporter
	var err error

	switch cfg.Exporter {
	case "jaeger":
		exp, err = jaeger.New(jaeger.WithCollectorEndpoint(jaeger.WithEndpoint(cfg.EndpointURL)))
	case "zipkin":
		exp, err = zipkin.New(cfg.EndpointURL)
	default:
		return nil, fmt.Errorf("xtrace: unknown exporter %q", cfg.Exporter)
	}
	if err != nil {
		return nil, err
	}

	res := resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceNameKey.String(cfg.ServiceName),
	)

	return sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(res),
	), nil
}
