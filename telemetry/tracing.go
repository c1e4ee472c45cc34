// OpenTelemetry tracing for dock cycles, express batches and operator commands.
package telemetry

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// Tracer wraps OpenTelemetry tracing with sorting line helpers.
type Tracer struct {
	tracer trace.Tracer
}

var (
	globalTracer *Tracer
	tracerMu     sync.RWMutex
)

// SetGlobalTracer sets the global tracer instance.
func SetGlobalTracer(t *Tracer) {
	tracerMu.Lock()
	defer tracerMu.Unlock()
	globalTracer = t
}

// GetTracer returns the global tracer, or a no-op tracer if not set.
func GetTracer() *Tracer {
	tracerMu.RLock()
	defer tracerMu.RUnlock()
	if globalTracer == nil {
		return &Tracer{tracer: noop.NewTracerProvider().Tracer("")}
	}
	return globalTracer
}

// NewTracer creates a tracer from the global provider.
func NewTracer(name string) *Tracer {
	return &Tracer{tracer: otel.Tracer(name)}
}

// NewTracerFrom creates a tracer from a specific provider.
func NewTracerFrom(tp trace.TracerProvider, name string) *Tracer {
	return &Tracer{tracer: tp.Tracer(name)}
}

// StartSpan starts a span with the given name.
func (t *Tracer) StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, name, opts...)
}

// --- Dock spans ---

// DockSpanOptions describes a finished loading phase.
type DockSpanOptions struct {
	Reason   string
	Items    int
	LoadKg   float64
	VolumeM3 float64
}

// StartDockSpan starts a span covering one truck's stay at the dock.
func (t *Tracer) StartDockSpan(ctx context.Context, truck int, identity string) (context.Context, trace.Span) {
	ctx, span := t.tracer.Start(ctx, "dock", trace.WithSpanKind(trace.SpanKindInternal))
	span.SetAttributes(
		attribute.Int("truck.number", truck),
		attribute.String("truck.identity", identity),
	)
	return ctx, span
}

// EndDockSpan ends a dock span.
func (t *Tracer) EndDockSpan(span trace.Span, opts DockSpanOptions, err error) {
	span.SetAttributes(
		attribute.String("dock.departure_reason", opts.Reason),
		attribute.Int("dock.items", opts.Items),
		attribute.Float64("truck.load_kg", opts.LoadKg),
		attribute.Float64("truck.volume_m3", opts.VolumeM3),
	)
	end(span, err)
}

// --- Express spans ---

// StartExpressSpan starts a span for one express batch.
func (t *Tracer) StartExpressSpan(ctx context.Context) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "express.batch", trace.WithSpanKind(trace.SpanKindInternal))
}

// EndExpressSpan ends an express span.
func (t *Tracer) EndExpressSpan(span trace.Span, requested, admitted int, err error) {
	span.SetAttributes(
		attribute.Int("express.requested", requested),
		attribute.Int("express.admitted", admitted),
	)
	end(span, err)
}

// --- Command spans ---

// StartCommandSpan starts a span for an operator command. source is
// "stdin" or "bus".
func (t *Tracer) StartCommandSpan(ctx context.Context, command, source string) (context.Context, trace.Span) {
	ctx, span := t.tracer.Start(ctx, "command."+command, trace.WithSpanKind(trace.SpanKindServer))
	span.SetAttributes(
		attribute.String("command.name", command),
		attribute.String("command.source", source),
	)
	return ctx, span
}

// EndCommandSpan ends a command span.
func (t *Tracer) EndCommandSpan(span trace.Span, result string, err error) {
	span.SetAttributes(attribute.String("command.result", result))
	end(span, err)
}

func end(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}
