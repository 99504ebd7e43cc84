package telemetry

import (
	"context"
	"log/slog"
	"os"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"google.golang.org/grpc"
)

// InitTracer configures a global tracer provider exporting via OTLP gRPC.
// endpoint defaults to localhost:4317, overridable with
// OTEL_EXPORTER_OTLP_ENDPOINT. Returns a shutdown func safe to call even
// if the exporter never connected.
func InitTracer(ctx context.Context, service string) func(context.Context) error {
	endpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	if endpoint == "" {
		endpoint = "localhost:4317"
	}
	exp, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(endpoint),
		otlptracegrpc.WithDialOption(grpc.WithInsecure()),
	)
	if err != nil {
		slog.Warn("otel trace exporter init failed", "error", err)
		return func(context.Context) error { return nil }
	}
	res, _ := resource.Merge(resource.Default(), resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(service),
	))
	tp := trace.NewTracerProvider(trace.WithBatcher(exp), trace.WithResource(res))
	otel.SetTracerProvider(tp)
	slog.Info("otel tracer initialized", "endpoint", endpoint)
	return tp.Shutdown
}

// Instruments holds the named OTel instruments the processor reports
// through: scheduled/processed counters, a per-instruction duration
// histogram, and a fusion counter. The ready-queue depth gauge is
// registered separately via RegisterReadyQueueDepth once the caller has a
// depth function to poll (it depends on a live *dag.Processor).
type Instruments struct {
	InstructionsScheduled metric.Int64Counter
	InstructionsProcessed metric.Int64Counter
	InstructionDuration   metric.Float64Histogram
	RewritesFused         metric.Int64Counter
}

// RegisterReadyQueueDepth registers flow.ready_queue.depth as an
// observable gauge backed by depth, called each collection cycle.
func RegisterReadyQueueDepth(depth func() int64) (metric.Int64ObservableGauge, error) {
	meter := otel.Meter("unshacled")
	return meter.Int64ObservableGauge("flow.ready_queue.depth",
		metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
			o.Observe(depth())
			return nil
		}),
	)
}

// InitMetrics configures a global OTLP metrics exporter (push, 10s
// period) and returns its shutdown func alongside the named flow.*
// instruments.
func InitMetrics(ctx context.Context, service string) (shutdown func(context.Context) error, instruments Instruments) {
	res, _ := resource.Merge(resource.Default(), resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(service),
	))
	endpoint := os.Getenv("OTEL_EXPORTER_OTLP_METRICS_ENDPOINT")
	if endpoint == "" {
		endpoint = os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	}
	if endpoint == "" {
		endpoint = "localhost:4317"
	}
	initCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	exp, err := otlpmetricgrpc.New(initCtx,
		otlpmetricgrpc.WithEndpoint(endpoint),
		otlpmetricgrpc.WithDialOption(grpc.WithInsecure()),
	)
	if err != nil {
		slog.Warn("otel metrics exporter init failed", "error", err)
		return func(context.Context) error { return nil }, newInstruments()
	}
	reader := sdkmetric.NewPeriodicReader(exp, sdkmetric.WithInterval(10*time.Second))
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader), sdkmetric.WithResource(res))
	otel.SetMeterProvider(mp)
	slog.Info("otel metrics initialized", "endpoint", endpoint)
	return mp.Shutdown, newInstruments()
}

func newInstruments() Instruments {
	meter := otel.Meter("unshacled")
	scheduled, _ := meter.Int64Counter("flow.instructions.scheduled")
	processed, _ := meter.Int64Counter("flow.instructions.processed")
	duration, _ := meter.Float64Histogram("flow.instruction.duration")
	fused, _ := meter.Int64Counter("flow.rewrites.fused")
	return Instruments{
		InstructionsScheduled: scheduled,
		InstructionsProcessed: processed,
		InstructionDuration:   duration,
		RewritesFused:         fused,
	}
}
