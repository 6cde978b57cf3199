package telemetry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

var (
	globalProvider trace.TracerProvider
	globalShutdown func(context.Context) error
	providerMu     sync.RWMutex
)

// Config holds configuration for the tracer provider.
type Config struct {
	// ServiceName identifies this process in traces.
	ServiceName string

	// ServiceVersion is the build version.
	ServiceVersion string

	// Enabled selects between a real provider and a noop one.
	Enabled bool

	// Endpoint is the OTLP/HTTP collector endpoint. Empty means spans
	// are recorded but not exported.
	Endpoint string
}

// DefaultConfig returns the default tracer configuration, disabled for a
// desktop tool unless the user opts in.
func DefaultConfig() Config {
	return Config{
		ServiceName:    "voxop",
		ServiceVersion: "dev",
		Enabled:        false,
	}
}

// retryingExporter retries failed span exports with a doubling backoff
// before giving up on a batch.
type retryingExporter struct {
	exporter sdktrace.SpanExporter
}

func (re *retryingExporter) ExportSpans(ctx context.Context, spans []sdktrace.ReadOnlySpan) error {
	const maxAttempts = 3
	backoff := 200 * time.Millisecond

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if err := re.exporter.ExportSpans(ctx, spans); err == nil {
			return nil
		} else {
			lastErr = err
		}
		if attempt < maxAttempts-1 {
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
			backoff *= 2
		}
	}
	return fmt.Errorf("span export failed after %d attempts: %w", maxAttempts, lastErr)
}

func (re *retryingExporter) Shutdown(ctx context.Context) error {
	return re.exporter.Shutdown(ctx)
}

// InitProvider initializes the global tracer provider and returns its
// shutdown function. With tracing disabled every span is a noop.
func InitProvider(ctx context.Context, cfg Config) (func(context.Context) error, error) {
	providerMu.Lock()
	defer providerMu.Unlock()

	if !cfg.Enabled {
		globalProvider = noop.NewTracerProvider()
		globalShutdown = func(context.Context) error { return nil }
		otel.SetTracerProvider(globalProvider)
		return globalShutdown, nil
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			attribute.String("service.name", cfg.ServiceName),
			attribute.String("service.version", cfg.ServiceVersion),
		),
		resource.WithHost(),
		resource.WithOS(),
		resource.WithTelemetrySDK(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	opts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	}

	if cfg.Endpoint != "" {
		exporter, err := otlptracehttp.New(ctx,
			otlptracehttp.WithEndpoint(cfg.Endpoint),
			otlptracehttp.WithCompression(otlptracehttp.GzipCompression),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create OTLP exporter: %w", err)
		}
		opts = append(opts, sdktrace.WithBatcher(
			&retryingExporter{exporter: exporter},
			sdktrace.WithBatchTimeout(5*time.Second),
		))
	}

	tp := sdktrace.NewTracerProvider(opts...)
	globalProvider = tp
	otel.SetTracerProvider(tp)
	globalShutdown = func(shutdownCtx context.Context) error {
		return tp.Shutdown(shutdownCtx)
	}
	return globalShutdown, nil
}

// Shutdown gracefully shuts down the tracer provider.
func Shutdown(ctx context.Context) error {
	providerMu.RLock()
	shutdown := globalShutdown
	providerMu.RUnlock()

	if shutdown != nil {
		return shutdown(ctx)
	}
	return nil
}

// ForceFlush exports all pending spans.
func ForceFlush(ctx context.Context) error {
	providerMu.RLock()
	provider := globalProvider
	providerMu.RUnlock()

	if tp, ok := provider.(*sdktrace.TracerProvider); ok {
		return tp.ForceFlush(ctx)
	}
	return nil
}

// GetTracerProvider returns the current global tracer provider.
func GetTracerProvider() trace.TracerProvider {
	providerMu.RLock()
	defer providerMu.RUnlock()

	if globalProvider != nil {
		return globalProvider
	}
	return noop.NewTracerProvider()
}
