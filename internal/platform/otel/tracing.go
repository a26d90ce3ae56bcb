package otel

import (
	"context"
	"io"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.uber.org/zap"
)

type tracerConfig struct {
	version     string
	writer      io.Writer
	pretty      bool
	sampleRatio float64
	propagator  propagation.TextMapPropagator
	syncExport  bool
}

type Option func(*tracerConfig)

// WithVersion sets service.version on every exported span.
func WithVersion(v string) Option {
	return func(c *tracerConfig) { c.version = v }
}

// WithWriter sends exported spans to w instead of stdout.
func WithWriter(w io.Writer) Option {
	return func(c *tracerConfig) { c.writer = w }
}

// WithCompactOutput writes one span per line.
func WithCompactOutput() Option {
	return func(c *tracerConfig) { c.pretty = false }
}

// WithSampleRatio samples root spans at ratio; child spans follow their parent.
// Values outside (0, 1) are clamped by the sampler.
func WithSampleRatio(ratio float64) Option {
	return func(c *tracerConfig) { c.sampleRatio = ratio }
}

// WithPropagator replaces the W3C trace context + baggage propagator.
func WithPropagator(p propagation.TextMapPropagator) Option {
	return func(c *tracerConfig) { c.propagator = p }
}

// WithSyncExport exports each span as it ends rather than in batches.
func WithSyncExport() Option {
	return func(c *tracerConfig) { c.syncExport = true }
}

// InitTracer installs the global tracer provider and propagator and returns
// the provider's shutdown function, to be called on exit.
func InitTracer(serviceName string, logger *zap.Logger, opts ...Option) (func(context.Context) error, error) {
	cfg := tracerConfig{
		writer:      os.Stdout,
		pretty:      true,
		sampleRatio: 1,
		propagator: propagation.NewCompositeTextMapPropagator(
			propagation.TraceContext{},
			propagation.Baggage{},
		),
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	exporterOpts := []stdouttrace.Option{stdouttrace.WithWriter(cfg.writer)}
	if cfg.pretty {
		exporterOpts = append(exporterOpts, stdouttrace.WithPrettyPrint())
	}
	exporter, err := stdouttrace.New(exporterOpts...)
	if err != nil {
		return nil, err
	}

	res, err := newResource(serviceName, cfg.version)
	if err != nil {
		return nil, err
	}

	export := sdktrace.WithBatcher(exporter)
	if cfg.syncExport {
		export = sdktrace.WithSyncer(exporter)
	}
	tp := sdktrace.NewTracerProvider(
		export,
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.sampleRatio))),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(cfg.propagator)

	logger.Info("OpenTelemetry tracer initialized",
		zap.String("service", serviceName),
		zap.Float64("sample_ratio", cfg.sampleRatio),
	)

	return tp.Shutdown, nil
}

// newResource is built without resource.Default(); merging the two fails when
// their schema URLs differ.
func newResource(serviceName, version string) (*resource.Resource, error) {
	attrs := []resource.Option{
		resource.WithHost(),
		resource.WithOS(),
		resource.WithProcess(),
	}
	if version != "" {
		attrs = append(attrs, resource.WithAttributes(
			semconv.ServiceName(serviceName),
			semconv.ServiceVersion(version),
		))
	} else {
		attrs = append(attrs, resource.WithAttributes(semconv.ServiceName(serviceName)))
	}
	return resource.New(context.Background(), attrs...)
}
