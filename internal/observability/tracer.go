// Package observability provides the supervisor's tracing and metrics,
// adapted from the teacher's pkg/observability package: OpenTelemetry spans
// per iteration and per task execution, and in-process Prometheus
// counters/histograms.
package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// TracerConfig configures OpenTelemetry tracing.
type TracerConfig struct {
	Enabled     bool
	ServiceName string
}

// InitTracer installs a global tracer provider. When tracing is disabled it
// installs the no-op provider already wired in as otel's default, avoiding
// a dependency on the separate noop package.
func InitTracer(ctx context.Context, cfg TracerConfig) (trace.TracerProvider, func(context.Context) error, error) {
	if !cfg.Enabled {
		return otel.GetTracerProvider(), func(context.Context) error { return nil }, nil
	}

	exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
	if err != nil {
		return nil, nil, err
	}

	tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(exporter))
	otel.SetTracerProvider(tp)
	return tp, tp.Shutdown, nil
}

// Tracer returns a named tracer from the currently installed provider.
func Tracer(name string) trace.Tracer {
	return otel.Tracer(name)
}
