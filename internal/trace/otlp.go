// Package trace emits OpenTelemetry spans for pipeline runs: one span per
// task run, a child per stage, and a grandchild per agent process.
package trace

import (
	"context"
	"os"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.4.0"
	oteltrace "go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

const instrumentationName = "taskflow/pipeline"

// Attribute keys.
const (
	KeyRunID    = attribute.Key("taskflow.run.id")
	KeyTaskID   = attribute.Key("taskflow.task.id")
	KeyStage    = attribute.Key("taskflow.stage")
	KeyAgent    = attribute.Key("taskflow.agent")
	KeyProvider = attribute.Key("taskflow.provider")
	KeyCommand  = attribute.Key("taskflow.process.command")
	KeyExitCode = attribute.Key("taskflow.process.exit_code")
	KeyOutcome  = attribute.Key("taskflow.outcome")
)

// Tracer starts pipeline spans.
type Tracer struct {
	tracer oteltrace.Tracer
}

// New returns a Tracer backed by tp.
func New(tp oteltrace.TracerProvider) *Tracer {
	return &Tracer{tracer: tp.Tracer(instrumentationName)}
}

// Noop returns a Tracer that records nothing.
func Noop() *Tracer {
	return New(noop.NewTracerProvider())
}

// StartRun starts the root span for one task run.
func (t *Tracer) StartRun(ctx context.Context, runID, taskID string) (context.Context, oteltrace.Span) {
	return t.tracer.Start(ctx, "task "+taskID,
		oteltrace.WithAttributes(KeyRunID.String(runID), KeyTaskID.String(taskID)))
}

// StartStage starts a span for one stage of a task.
func (t *Tracer) StartStage(ctx context.Context, taskID, stage, agent, provider string) (context.Context, oteltrace.Span) {
	return t.tracer.Start(ctx, "stage "+stage,
		oteltrace.WithAttributes(
			KeyTaskID.String(taskID),
			KeyStage.String(stage),
			KeyAgent.String(agent),
			KeyProvider.String(provider),
		))
}

// StartProcess starts a span around an external process.
func (t *Tracer) StartProcess(ctx context.Context, command string) (context.Context, oteltrace.Span) {
	return t.tracer.Start(ctx, "exec "+command,
		oteltrace.WithSpanKind(oteltrace.SpanKindClient),
		oteltrace.WithAttributes(KeyCommand.String(command)))
}

// End records the outcome and error (if any) on span and ends it.
func End(span oteltrace.Span, outcome string, err error) {
	if outcome != "" {
		span.SetAttributes(KeyOutcome.String(outcome))
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// OTLPExporter exports spans to an OTLP/HTTP endpoint.
type OTLPExporter struct {
	provider *sdktrace.TracerProvider
}

// NewOTLPExporter creates an exporter if OTEL_EXPORTER_OTLP_ENDPOINT is set.
// Returns nil if the endpoint is not configured (disabled).
func NewOTLPExporter(ctx context.Context) (*OTLPExporter, error) {
	endpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	if endpoint == "" {
		return nil, nil
	}

	opts := []otlptracehttp.Option{otlptracehttp.WithEndpointURL(endpoint)}
	if os.Getenv("OTEL_EXPORTER_OTLP_INSECURE") == "true" {
		opts = append(opts, otlptracehttp.WithInsecure())
	}
	exporter, err := otlptracehttp.New(ctx, opts...)
	if err != nil {
		return nil, err
	}

	serviceName := os.Getenv("OTEL_SERVICE_NAME")
	if serviceName == "" {
		serviceName = "taskflow"
	}
	res := resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceNameKey.String(serviceName),
	)

	return &OTLPExporter{
		provider: sdktrace.NewTracerProvider(
			sdktrace.WithBatcher(exporter),
			sdktrace.WithResource(res),
		),
	}, nil
}

// Tracer returns a Tracer exporting through e, or a no-op Tracer when e is nil.
func (e *OTLPExporter) Tracer() *Tracer {
	if e == nil {
		return Noop()
	}
	return New(e.provider)
}

// Shutdown flushes and closes the exporter.
func (e *OTLPExporter) Shutdown(ctx context.Context) error {
	if e == nil {
		return nil
	}
	return e.provider.Shutdown(ctx)
}
