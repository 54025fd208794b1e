// Package otel installs the OpenTelemetry trace pipeline that carries the
// gateway and experimenter-stream connection spans to an OTLP collector.
package otel

import (
	"context"
	"errors"
	"os"
	"strings"

	otelapi "go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	sdkresource "go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

const defaultServiceName = "pairlab"

// SDKOptions configures span export. An empty Endpoint leaves the global
// no-op provider in place.
type SDKOptions struct {
	Endpoint           string
	ServiceName        string
	ServiceVersion     string
	ResourceAttributes map[string]string
}

func (o SDKOptions) Enabled() bool {
	return normalizeEndpoint(o.Endpoint) != ""
}

// SetupSDK registers a batching OTLP/HTTP tracer provider and the W3C
// propagators. The returned func flushes and stops the provider.
func SetupSDK(ctx context.Context, options SDKOptions) (func(context.Context) error, error) {
	if !options.Enabled() {
		return func(context.Context) error { return nil }, nil
	}

	exporter, err := otlptracehttp.New(ctx,
		otlptracehttp.WithEndpoint(normalizeEndpoint(options.Endpoint)),
		otlptracehttp.WithInsecure(),
	)
	if err != nil {
		return nil, err
	}

	serviceName := strings.TrimSpace(options.ServiceName)
	if serviceName == "" {
		serviceName = defaultServiceName
	}
	resourceAttrs := []attribute.KeyValue{
		attribute.String("service.name", serviceName),
	}
	if version := strings.TrimSpace(options.ServiceVersion); version != "" {
		resourceAttrs = append(resourceAttrs, attribute.String("service.version", version))
	}
	if host, err := os.Hostname(); err == nil && strings.TrimSpace(host) != "" {
		resourceAttrs = append(resourceAttrs, attribute.String("host.name", host))
	}
	for key, value := range options.ResourceAttributes {
		if key = strings.TrimSpace(key); key != "" {
			resourceAttrs = append(resourceAttrs, attribute.String(key, value))
		}
	}

	res, err := sdkresource.New(ctx, sdkresource.WithAttributes(resourceAttrs...))
	if err != nil {
		return nil, errors.Join(err, exporter.Shutdown(ctx))
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithBatcher(exporter),
	)
	otelapi.SetTracerProvider(provider)
	otelapi.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return provider.Shutdown, nil
}

// ParseResourceAttributes reads "k=v,k2=v2". Malformed pairs are skipped.
func ParseResourceAttributes(raw string) map[string]string {
	attributes := make(map[string]string)
	for _, pair := range strings.Split(raw, ",") {
		key, value, found := strings.Cut(strings.TrimSpace(pair), "=")
		if !found {
			continue
		}
		if key = strings.TrimSpace(key); key == "" {
			continue
		}
		attributes[key] = strings.TrimSpace(value)
	}
	if len(attributes) == 0 {
		return nil
	}
	return attributes
}

func normalizeEndpoint(raw string) string {
	endpoint := strings.TrimSpace(raw)
	endpoint = strings.TrimSuffix(endpoint, "/")
	endpoint = strings.TrimPrefix(endpoint, "http://")
	endpoint = strings.TrimPrefix(endpoint, "https://")
	return strings.TrimSuffix(endpoint, "/")
}
