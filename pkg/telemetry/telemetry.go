// Package telemetry sets up OpenTelemetry tracing from the standard OTEL_*
// environment variables.
//
//	OTEL_ENABLED                 enable tracing (default false)
//	OTEL_SERVICE_NAME            default il2cpp-liveness
//	OTEL_SERVICE_VERSION         default unknown
//	OTEL_EXPORTER_OTLP_ENDPOINT  collector endpoint
//	OTEL_EXPORTER_OTLP_PROTOCOL  grpc or http/protobuf (default grpc)
//	OTEL_EXPORTER_OTLP_HEADERS   k=v,... e.g. Authorization=Bearer xxx
//	OTEL_EXPORTER_OTLP_INSECURE  plaintext connection
//	OTEL_TRACES_SAMPLER          sampler name (default always_on)
//	OTEL_TRACES_SAMPLER_ARG      sampler ratio
//	OTEL_RESOURCE_ATTRIBUTES     extra resource attributes
//
// When tracing is disabled the global provider stays the no-op one, so
// spans started through Tracer cost nothing.
package telemetry

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// InstrumentationName names the tracer used across the module.
const InstrumentationName = "github.com/No1412lee/il2cpp-plus"

var (
	globalConfig *Config
	configOnce   sync.Once
)

// ShutdownFunc flushes and stops the tracer provider.
type ShutdownFunc func(ctx context.Context) error

func noopShutdown(context.Context) error { return nil }

// Init installs a global tracer provider exporting over OTLP. It is a no-op
// unless OTEL_ENABLED=true.
func Init(ctx context.Context) (ShutdownFunc, error) {
	cfg := loadConfig()
	if !cfg.Enabled {
		return noopShutdown, nil
	}

	res, err := newResource(cfg)
	if err != nil {
		return noopShutdown, err
	}
	exporter, err := newExporter(ctx, cfg)
	if err != nil {
		return noopShutdown, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithBatcher(exporter),
		sdktrace.WithSampler(cfg.sampler()),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	return tp.Shutdown, nil
}

// Enabled reports whether OTEL_ENABLED=true.
func Enabled() bool {
	return loadConfig().Enabled
}

// GetConfig returns the cached environment configuration.
func GetConfig() *Config {
	return loadConfig()
}

func loadConfig() *Config {
	configOnce.Do(func() {
		globalConfig = LoadFromEnv()
	})
	return globalConfig
}

// Tracer returns the module's tracer from the global provider.
func Tracer() trace.Tracer {
	return otel.Tracer(InstrumentationName)
}

// EndSpan records err on span, if any, and ends it.
func EndSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
