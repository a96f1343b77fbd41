// Package observability wires OpenTelemetry tracing and metrics around the
// decision path: how many transitions were decided and why, how long the
// guard chain takes, and how often the ledger grows.
package observability

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

const scopeName = "pawl"

// Config configures the OpenTelemetry providers.
type Config struct {
	ServiceName    string
	ServiceVersion string
	Environment    string
	OTLPEndpoint   string
	SampleRate     float64
	BatchTimeout   time.Duration
	MetricInterval time.Duration
	Enabled        bool
	Insecure       bool
}

// DefaultConfig samples everything and points at a local collector.
func DefaultConfig() *Config {
	return &Config{
		ServiceName:    "pawl",
		ServiceVersion: "1.0.0",
		Environment:    "development",
		OTLPEndpoint:   "localhost:4317",
		SampleRate:     1.0,
		BatchTimeout:   5 * time.Second,
		MetricInterval: 15 * time.Second,
		Enabled:        true,
		Insecure:       false,
	}
}

// Provider manages the trace and metric providers plus the decision-path
// instruments. A disabled provider is fully usable; every recording method
// is a no-op.
type Provider struct {
	config         *Config
	tracerProvider *sdktrace.TracerProvider
	meterProvider  *sdkmetric.MeterProvider
	tracer         trace.Tracer
	meter          metric.Meter
	logger         *slog.Logger

	decisions         metric.Int64Counter
	appends           metric.Int64Counter
	kernelDuration    metric.Float64Histogram
	activeEvaluations metric.Int64UpDownCounter
}

// New builds a provider and installs it globally. Exporter connections are
// lazy; a missing collector surfaces as export errors later, never here.
func New(ctx context.Context, config *Config) (*Provider, error) {
	if config == nil {
		config = DefaultConfig()
	}

	p := &Provider{
		config: config,
		logger: slog.Default().With("component", "observability"),
	}

	if !config.Enabled {
		p.logger.InfoContext(ctx, "observability disabled")
		return p, nil
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(config.ServiceName),
			semconv.ServiceVersion(config.ServiceVersion),
			semconv.DeploymentEnvironment(config.Environment),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("observability: resource: %w", err)
	}

	if err := p.initTraceProvider(ctx, res); err != nil {
		return nil, fmt.Errorf("observability: trace provider: %w", err)
	}
	if err := p.initMetricProvider(ctx, res); err != nil {
		return nil, fmt.Errorf("observability: metric provider: %w", err)
	}

	p.tracer = otel.Tracer(scopeName,
		trace.WithInstrumentationVersion(config.ServiceVersion))
	p.meter = otel.Meter(scopeName,
		metric.WithInstrumentationVersion(config.ServiceVersion))

	if err := p.initInstruments(); err != nil {
		return nil, fmt.Errorf("observability: instruments: %w", err)
	}

	p.logger.InfoContext(ctx, "observability initialized",
		"service", config.ServiceName,
		"environment", config.Environment,
		"endpoint", config.OTLPEndpoint,
		"sample_rate", config.SampleRate,
	)
	return p, nil
}

func (p *Provider) initTraceProvider(ctx context.Context, res *resource.Resource) error {
	opts := []otlptracegrpc.Option{
		otlptracegrpc.WithEndpoint(p.config.OTLPEndpoint),
	}
	// Secure transport relies on system certs; Insecure is for local dev.
	if p.config.Insecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}

	exporter, err := otlptracegrpc.New(ctx, opts...)
	if err != nil {
		return err
	}

	var sampler sdktrace.Sampler
	switch {
	case p.config.SampleRate >= 1.0:
		sampler = sdktrace.AlwaysSample()
	case p.config.SampleRate <= 0.0:
		sampler = sdktrace.NeverSample()
	default:
		sampler = sdktrace.TraceIDRatioBased(p.config.SampleRate)
	}

	p.tracerProvider = sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithBatcher(exporter,
			sdktrace.WithBatchTimeout(p.config.BatchTimeout),
		),
		sdktrace.WithSampler(sampler),
	)

	otel.SetTracerProvider(p.tracerProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	return nil
}

func (p *Provider) initMetricProvider(ctx context.Context, res *resource.Resource) error {
	opts := []otlpmetricgrpc.Option{
		otlpmetricgrpc.WithEndpoint(p.config.OTLPEndpoint),
	}
	if p.config.Insecure {
		opts = append(opts, otlpmetricgrpc.WithInsecure())
	}

	exporter, err := otlpmetricgrpc.New(ctx, opts...)
	if err != nil {
		return err
	}

	p.meterProvider = sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter,
			sdkmetric.WithInterval(p.config.MetricInterval),
		)),
	)

	otel.SetMeterProvider(p.meterProvider)
	return nil
}

func (p *Provider) initInstruments() error {
	var err error

	p.decisions, err = p.meter.Int64Counter("pawl.decisions",
		metric.WithDescription("Capability transition decisions by reason"),
		metric.WithUnit("{decision}"),
	)
	if err != nil {
		return err
	}

	p.appends, err = p.meter.Int64Counter("pawl.ledger.appends",
		metric.WithDescription("Entries appended to the capability ledger"),
		metric.WithUnit("{entry}"),
	)
	if err != nil {
		return err
	}

	p.kernelDuration, err = p.meter.Float64Histogram("pawl.kernel.duration",
		metric.WithDescription("Guard chain evaluation duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(
			0.0001, 0.00025, 0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1),
	)
	if err != nil {
		return err
	}

	p.activeEvaluations, err = p.meter.Int64UpDownCounter("pawl.evaluations.active",
		metric.WithDescription("Evaluations currently in flight"),
		metric.WithUnit("{evaluation}"),
	)
	if err != nil {
		return err
	}

	return nil
}

// Shutdown flushes and stops both providers.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p.tracerProvider != nil {
		if err := p.tracerProvider.Shutdown(ctx); err != nil {
			p.logger.ErrorContext(ctx, "trace provider shutdown failed", "error", err)
		}
	}
	if p.meterProvider != nil {
		if err := p.meterProvider.Shutdown(ctx); err != nil {
			p.logger.ErrorContext(ctx, "metric provider shutdown failed", "error", err)
		}
	}
	return nil
}

// Tracer returns the configured tracer.
func (p *Provider) Tracer() trace.Tracer {
	if p.tracer == nil {
		return otel.Tracer(scopeName)
	}
	return p.tracer
}

// Meter returns the configured meter.
func (p *Provider) Meter() metric.Meter {
	if p.meter == nil {
		return otel.Meter(scopeName)
	}
	return p.meter
}

// StartSpan starts a span on the provider's tracer.
func (p *Provider) StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return p.Tracer().Start(ctx, name, opts...)
}

// RecordDecision counts one decision by reason and verdict.
func (p *Provider) RecordDecision(ctx context.Context, reason string, allowed bool) {
	if p.decisions != nil {
		p.decisions.Add(ctx, 1, metric.WithAttributes(DecisionAttrs(reason, allowed)...))
	}
}

// RecordAppend counts one accepted ledger entry.
func (p *Provider) RecordAppend(ctx context.Context, changeType string) {
	if p.appends != nil {
		p.appends.Add(ctx, 1, metric.WithAttributes(AttrChangeType.String(changeType)))
	}
}

// RecordKernelDuration records one guard chain evaluation.
func (p *Provider) RecordKernelDuration(ctx context.Context, d time.Duration, attrs ...attribute.KeyValue) {
	if p.kernelDuration != nil {
		p.kernelDuration.Record(ctx, d.Seconds(), metric.WithAttributes(attrs...))
	}
}

// TrackEvaluation opens a span around one evaluation and returns the
// completion callback. The callback records duration and, when err is
// non-nil, marks the span.
func (p *Provider) TrackEvaluation(ctx context.Context, attrs ...attribute.KeyValue) (context.Context, func(error)) {
	start := time.Now()

	ctx, span := p.StartSpan(ctx, "pawl.evaluate",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attrs...),
	)

	if p.activeEvaluations != nil {
		p.activeEvaluations.Add(ctx, 1)
	}

	return ctx, func(err error) {
		if p.activeEvaluations != nil {
			p.activeEvaluations.Add(ctx, -1)
		}
		p.RecordKernelDuration(ctx, time.Since(start))
		if err != nil {
			span.RecordError(err)
		}
		span.End()
	}
}
