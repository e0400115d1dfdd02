// Package observability provides tracing and metrics for the relay pipeline
package observability

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kart-io/relayhub/pkg/config"
)

const instrumentationName = "github.com/kart-io/relayhub"

// TelemetryProvider provides observability features. A nil provider is
// valid and records nothing.
type TelemetryProvider struct {
	config        config.TelemetryConfig
	tracer        trace.Tracer
	meter         metric.Meter
	traceProvider *sdktrace.TracerProvider
	meterProvider *sdkmetric.MeterProvider
	readers       []sdkmetric.Reader
	external      trace.TracerProvider

	// Metrics
	submissions        metric.Int64Counter
	deliveries         metric.Int64Counter
	attachmentOutcomes metric.Int64Counter
	sendDuration       metric.Float64Histogram
}

// Option configures a TelemetryProvider
type Option func(*TelemetryProvider)

// WithMetricReader exports the pipeline instruments through r
func WithMetricReader(r sdkmetric.Reader) Option {
	return func(tp *TelemetryProvider) {
		if r != nil {
			tp.readers = append(tp.readers, r)
		}
	}
}

// WithTracerProvider takes spans from p instead of installing an exporter
func WithTracerProvider(p trace.TracerProvider) Option {
	return func(tp *TelemetryProvider) {
		tp.external = p
	}
}

// NewPrometheusReader returns a metric reader that exposes the pipeline
// instruments as collectors registered on reg
func NewPrometheusReader(reg prometheus.Registerer) (sdkmetric.Reader, error) {
	exporter, err := otelprom.New(otelprom.WithRegisterer(reg))
	if err != nil {
		return nil, fmt.Errorf("create prometheus exporter: %w", err)
	}
	return exporter, nil
}

// NewTelemetryProvider creates a telemetry provider. When tracing is
// disabled spans come from the global no-op provider. Instruments are
// recorded by an SDK meter provider feeding every configured reader.
func NewTelemetryProvider(cfg config.TelemetryConfig, opts ...Option) (*TelemetryProvider, error) {
	tp := &TelemetryProvider{config: cfg}
	for _, opt := range opts {
		opt(tp)
	}

	switch {
	case tp.external != nil:
		tp.tracer = tp.external.Tracer(instrumentationName)
	case cfg.Enabled:
		if err := tp.initTracing(); err != nil {
			return nil, fmt.Errorf("init tracing: %w", err)
		}
	default:
		tp.tracer = otel.Tracer(instrumentationName)
	}

	if err := tp.initMetrics(); err != nil {
		return nil, fmt.Errorf("init metrics: %w", err)
	}
	return tp, nil
}

// initTracing installs an OTLP/HTTP exporter as the global tracer provider
func (tp *TelemetryProvider) initTracing() error {
	var clientOpts []otlptracehttp.Option
	if tp.config.OTLPEndpoint != "" {
		clientOpts = append(clientOpts, otlptracehttp.WithEndpointURL(tp.config.OTLPEndpoint))
	}
	exporter, err := otlptrace.New(context.Background(), otlptracehttp.NewClient(clientOpts...))
	if err != nil {
		return fmt.Errorf("create exporter: %w", err)
	}

	tp.traceProvider = sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(tp.serviceResource()),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(tp.config.SampleRate))),
	)
	otel.SetTracerProvider(tp.traceProvider)
	otel.SetTextMapPropagator(propagation.TraceContext{})

	tp.tracer = tp.traceProvider.Tracer(instrumentationName,
		trace.WithSchemaURL(semconv.SchemaURL),
	)
	return nil
}

func (tp *TelemetryProvider) serviceResource() *resource.Resource {
	return resource.NewWithAttributes(semconv.SchemaURL,
		semconv.ServiceName(tp.config.ServiceName),
		semconv.ServiceVersion(tp.config.ServiceVersion),
		semconv.DeploymentEnvironment(tp.config.Environment),
	)
}

func (tp *TelemetryProvider) initMetrics() error {
	mpOpts := []sdkmetric.Option{sdkmetric.WithResource(tp.serviceResource())}
	for _, r := range tp.readers {
		mpOpts = append(mpOpts, sdkmetric.WithReader(r))
	}
	tp.meterProvider = sdkmetric.NewMeterProvider(mpOpts...)
	tp.meter = tp.meterProvider.Meter(instrumentationName, metric.WithSchemaURL(semconv.SchemaURL))

	var err error
	tp.submissions, err = tp.meter.Int64Counter(
		"relayhub_submissions_total",
		metric.WithDescription("Submissions processed, by receipt status"),
	)
	if err != nil {
		return fmt.Errorf("create submissions counter: %w", err)
	}

	tp.deliveries, err = tp.meter.Int64Counter(
		"relayhub_deliveries_total",
		metric.WithDescription("Per-destination deliveries, by result"),
	)
	if err != nil {
		return fmt.Errorf("create deliveries counter: %w", err)
	}

	tp.attachmentOutcomes, err = tp.meter.Int64Counter(
		"relayhub_attachment_outcomes_total",
		metric.WithDescription("Attachment outcomes per destination"),
	)
	if err != nil {
		return fmt.Errorf("create attachment outcome counter: %w", err)
	}

	tp.sendDuration, err = tp.meter.Float64Histogram(
		"relayhub_destination_duration_seconds",
		metric.WithDescription("Time spent delivering to one destination"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return fmt.Errorf("create send duration histogram: %w", err)
	}
	return nil
}

// TraceOperation starts a span for an operation
func (tp *TelemetryProvider) TraceOperation(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	if tp == nil || tp.tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return tp.tracer.Start(ctx, name,
		trace.WithAttributes(attrs...),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

// TraceSubmission starts the span covering one submission. The id is not
// known until the submission is normalized; see SetSubmissionID.
func (tp *TelemetryProvider) TraceSubmission(ctx context.Context) (context.Context, trace.Span) {
	return tp.TraceOperation(ctx, "relayhub.submission")
}

// SetSubmissionID tags span with the submission id
func (tp *TelemetryProvider) SetSubmissionID(span trace.Span, submissionID string) {
	if span != nil {
		span.SetAttributes(attribute.String("relayhub.submission.id", submissionID))
	}
}

// TraceDelivery starts the span covering delivery to one destination
func (tp *TelemetryProvider) TraceDelivery(ctx context.Context, submissionID, destination, origin string) (context.Context, trace.Span) {
	return tp.TraceOperation(ctx, "relayhub.deliver",
		attribute.String("relayhub.submission.id", submissionID),
		attribute.String("relayhub.destination.id", destination),
		attribute.String("relayhub.destination.origin", origin),
	)
}

// RecordSubmission counts a processed submission
func (tp *TelemetryProvider) RecordSubmission(ctx context.Context, status string, destinations int) {
	if tp == nil || tp.submissions == nil {
		return
	}
	tp.submissions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("status", status),
		attribute.Int("destinations", destinations),
	))
}

// RecordDelivery counts one destination result and its duration
func (tp *TelemetryProvider) RecordDelivery(ctx context.Context, success bool, attachmentOutcome string, duration time.Duration) {
	if tp == nil {
		return
	}
	status := "success"
	if !success {
		status = "error"
	}
	if tp.deliveries != nil {
		tp.deliveries.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
	}
	if tp.attachmentOutcomes != nil {
		tp.attachmentOutcomes.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", attachmentOutcome)))
	}
	if tp.sendDuration != nil {
		tp.sendDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attribute.String("status", status)))
	}
}

// SetSpanError sets an error on the span
func (tp *TelemetryProvider) SetSpanError(span trace.Span, err error) {
	if span != nil && err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}

// SetSpanSuccess marks the span as successful
func (tp *TelemetryProvider) SetSpanSuccess(span trace.Span) {
	if span != nil {
		span.SetStatus(codes.Ok, "")
	}
}

// Shutdown flushes and stops the trace exporter and the meter provider
func (tp *TelemetryProvider) Shutdown(ctx context.Context) error {
	if tp == nil {
		return nil
	}
	var errs []error
	if tp.traceProvider != nil {
		errs = append(errs, tp.traceProvider.Shutdown(ctx))
	}
	if tp.meterProvider != nil {
		errs = append(errs, tp.meterProvider.Shutdown(ctx))
	}
	return errors.Join(errs...)
}

// Tracer returns the tracer instance
func (tp *TelemetryProvider) Tracer() trace.Tracer {
	return tp.tracer
}
