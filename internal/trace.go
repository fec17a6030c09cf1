package internal

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/url"
	"runtime/trace"

	"go.opentelemetry.io/contrib/propagators/jaeger"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	tracesdk "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
	otrace "go.opentelemetry.io/otel/trace"
)

const tracerName = "realtime-collab-editor"

type Task struct {
	t *trace.Task
	o otrace.Span
}

func (s *Task) End() {
	s.t.End()
	s.o.End()
}

// combined runtime/trace and OTLP span
type RuntimeTraceOTLPSpan struct {
	region *trace.Region
	span   otrace.Span
}

func (s *RuntimeTraceOTLPSpan) End() {
	s.region.End()
	s.span.End()
}

// SetAttributes annotates the OTLP half of the span.
func (s *RuntimeTraceOTLPSpan) SetAttributes(kv ...attribute.KeyValue) {
	s.span.SetAttributes(kv...)
}

// RecordError marks the span as failed.
func (s *RuntimeTraceOTLPSpan) RecordError(err error) {
	s.span.RecordError(err)
}

func Logf(ctx context.Context, category, format string, args ...interface{}) {
	trace.Logf(ctx, category, format, args...)
	s := otrace.SpanFromContext(ctx)
	s.AddEvent(fmt.Sprintf(format, args...), otrace.WithAttributes(
		attribute.String("category", category),
	))
}

func StartSpan(ctx context.Context, name string) (newCtx context.Context, span *RuntimeTraceOTLPSpan) {
	region := trace.StartRegion(ctx, name)
	newCtx, ospan := otel.Tracer(tracerName).Start(ctx, name)
	return newCtx, &RuntimeTraceOTLPSpan{
		region: region,
		span:   ospan,
	}
}

func StartTask(ctx context.Context, name string) (context.Context, *Task) {
	ctx, task := trace.NewTask(ctx, name)
	newCtx, ospan := otel.Tracer(tracerName).Start(ctx, name)
	return newCtx, &Task{
		t: task,
		o: ospan,
	}
}

// OTLPConfig points the exporter at a collector. URL must be a bare scheme://host[:port]; http://
// disables TLS. User and Pass, when both set, are sent as basic auth.
type OTLPConfig struct {
	URL  string
	User string
	Pass string
}

func (c OTLPConfig) exporterOptions() ([]otlptracehttp.Option, error) {
	parsed, err := url.Parse(c.URL)
	if err != nil {
		return nil, err
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, fmt.Errorf("OTLP URL %s must be http:// or https://", c.URL)
	}
	if parsed.Path != "" && parsed.Path != "/" {
		return nil, fmt.Errorf("OTLP URL %s cannot contain any path segments", c.URL)
	}
	opts := []otlptracehttp.Option{
		otlptracehttp.WithEndpoint(parsed.Host),
	}
	if parsed.Scheme == "http" {
		opts = append(opts, otlptracehttp.WithInsecure())
	}
	if c.User != "" && c.Pass != "" {
		creds := base64.StdEncoding.EncodeToString([]byte(c.User + ":" + c.Pass))
		opts = append(opts, otlptracehttp.WithHeaders(map[string]string{
			"Authorization": "Basic " + creds,
		}))
	}
	return opts, nil
}

// ConfigureOTLP installs a global tracer provider exporting spans to the collector. Call the
// returned func before exiting to flush buffered spans.
func ConfigureOTLP(cfg OTLPConfig, version string) (shutdown func(context.Context) error, err error) {
	opts, err := cfg.exporterOptions()
	if err != nil {
		return nil, fmt.Errorf("ConfigureOTLP: %w", err)
	}
	exp, err := otlptrace.New(context.Background(), otlptracehttp.NewClient(opts...))
	if err != nil {
		return nil, fmt.Errorf("ConfigureOTLP: %w", err)
	}
	tp := tracesdk.NewTracerProvider(
		tracesdk.WithBatcher(exp),
		tracesdk.WithResource(resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(tracerName),
			attribute.String("version", version),
		)),
	)
	otel.SetTracerProvider(tp)
	// accept uber-trace-id from older collectors as well as traceparent
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.Baggage{}, propagation.TraceContext{}, jaeger.Jaeger{},
	))
	logger.Info().Str("url", cfg.URL).Msg("exporting traces over OTLP")
	return tp.Shutdown, nil
}
