// Package telemetry wires OpenTelemetry tracing and metrics to stdout
// exporters: enough for an operator to see spans and counters on a
// single trusted local process, without standing up a collector
// (spec.md Non-goal: distributed deployment).
package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

const instrumentationName = "github.com/ravelhq/ravel"

// Providers bundles the tracer/meter providers installed as globals
// for the process, plus a Shutdown hook flushing both exporters.
type Providers struct {
	tracerProvider *sdktrace.TracerProvider
	meterProvider  *sdkmetric.MeterProvider
}

// Setup installs stdout-backed tracer and meter providers as the
// otel globals. verbose controls whether spans are printed with
// timestamps (useful for `ravelctl --debug`) or kept compact.
func Setup(verbose bool) (*Providers, error) {
	var traceOpts []stdouttrace.Option
	if !verbose {
		traceOpts = append(traceOpts, stdouttrace.WithoutTimestamps())
	}

	traceExporter, err := stdouttrace.New(traceOpts...)
	if err != nil {
		return nil, fmt.Errorf("telemetry: trace exporter: %w", err)
	}
	metricExporter, err := stdoutmetric.New()
	if err != nil {
		return nil, fmt.Errorf("telemetry: metric exporter: %w", err)
	}

	tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(traceExporter))
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExporter)))

	otel.SetTracerProvider(tp)
	otel.SetMeterProvider(mp)

	return &Providers{tracerProvider: tp, meterProvider: mp}, nil
}

// Shutdown flushes and stops both providers. Call once at process exit.
func (p *Providers) Shutdown(ctx context.Context) error {
	if p == nil {
		return nil
	}
	if err := p.tracerProvider.Shutdown(ctx); err != nil {
		return err
	}
	return p.meterProvider.Shutdown(ctx)
}

// WorkflowMetrics holds the workflow service's transition/cascade/
// unblock counters (spec.md §4 implementation notes).
type WorkflowMetrics struct {
	Transitions metric.Int64Counter
	Cascades    metric.Int64Counter
	Unblocks    metric.Int64Counter
}

// NewWorkflowMetrics creates the three workflow counters against the
// global meter provider. Counter creation errors are logged to the
// returned error but never panic: metrics are a diagnostic aid, not a
// correctness dependency.
func NewWorkflowMetrics() (*WorkflowMetrics, error) {
	meter := otel.Meter(instrumentationName)
	transitions, err := meter.Int64Counter("ravel.workflow.transitions",
		metric.WithDescription("count of successful role transitions"))
	if err != nil {
		return nil, err
	}
	cascades, err := meter.Int64Counter("ravel.workflow.cascade_candidates",
		metric.WithDescription("count of cascade candidates raised"))
	if err != nil {
		return nil, err
	}
	unblocks, err := meter.Int64Counter("ravel.workflow.items_unblocked",
		metric.WithDescription("count of items reported unblocked after a transition"))
	if err != nil {
		return nil, err
	}
	return &WorkflowMetrics{Transitions: transitions, Cascades: cascades, Unblocks: unblocks}, nil
}

// TracerName is the instrumentation name internal/workflow passes to
// otel.Tracer for application-level spans
// (store-level spans are opened directly in internal/store/sqlite
// under their own name).
const TracerName = instrumentationName
