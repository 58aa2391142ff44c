// Package tracing emits per-turn/per-tool-call spans for the agent runner
// (C8) directly on OpenTelemetry — replacing the teacher's DB-backed
// internal/tracing package (which persisted traces/spans as Postgres rows
// via a TraceStore) with the standard otel SDK/export pipeline. A nil
// *Collector disables tracing entirely; every method is nil-safe so Loop
// can carry one unconditionally.
package tracing

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/nextlevelbuilder/prime-gateway/internal/agent"

// Collector owns the otel tracer the agent runner emits spans through.
type Collector struct {
	tracer  trace.Tracer
	verbose bool
}

// NewCollector wraps provider's tracer. Pass nil to use whatever global
// TracerProvider otel.SetTracerProvider registered (the no-op default if
// none was set, in which case spans are created but immediately dropped).
func NewCollector(provider trace.TracerProvider, verbose bool) *Collector {
	if provider == nil {
		provider = otel.GetTracerProvider()
	}
	return &Collector{tracer: provider.Tracer(tracerName), verbose: verbose}
}

// Verbose reports whether full message/tool payloads should be attached to
// spans instead of short previews. Safe to call on a nil Collector.
func (c *Collector) Verbose() bool { return c != nil && c.verbose }

// StartRun opens the root span for one agent turn. When parentTraceID is
// set, the span is linked under that trace by reconstructing a remote
// SpanContext instead of nesting via ctx — needed when the parent run
// happened on a different goroutine (a cron-triggered "announce" run tied
// back to the chat turn that scheduled it).
func (c *Collector) StartRun(ctx context.Context, name string, parentTraceID, parentSpanID uuid.UUID, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	if c == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	if parentTraceID != uuid.Nil {
		remote := trace.NewSpanContext(trace.SpanContextConfig{
			TraceID:    traceIDFromUUID(parentTraceID),
			SpanID:     spanIDFromUUID(parentSpanID),
			TraceFlags: trace.FlagsSampled,
			Remote:     true,
		})
		ctx = trace.ContextWithRemoteSpanContext(ctx, remote)
	}
	return c.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

// StartSpan opens a child span nested under whatever span ctx already
// carries — an LLM call or tool call within an in-flight run.
func (c *Collector) StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	if c == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return c.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

// StartSpanAt is StartSpan with an explicit start time, for recording a
// span after the work it covers already finished (the agent loop times
// LLM/tool calls itself and reports them retroactively).
func (c *Collector) StartSpanAt(ctx context.Context, name string, start time.Time, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	if c == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return c.tracer.Start(ctx, name, trace.WithTimestamp(start), trace.WithAttributes(attrs...))
}

// EndAt closes span successfully at the given end time.
func EndAt(span trace.Span, end time.Time, ok bool, err error) {
	if !ok && err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End(trace.WithTimestamp(end))
}

// EndOK closes span successfully.
func EndOK(span trace.Span) {
	span.SetStatus(codes.Ok, "")
	span.End()
}

// EndErr closes span with an error status and records err on it.
func EndErr(span trace.Span, err error) {
	if err == nil {
		EndOK(span)
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	span.End()
}

// TraceID returns ctx's current span's trace ID as a UUID, so a run that
// spawns further async work (cron, delegated sub-agents) can pass it
// through RunRequest.ParentTraceID. Returns uuid.Nil if no span is active.
func TraceID(ctx context.Context) uuid.UUID {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		return uuid.Nil
	}
	var u uuid.UUID
	copy(u[:], sc.TraceID[:])
	return u
}

// SpanID returns ctx's current span ID, zero-extended into a UUID's low 8
// bytes, paired with TraceID for cross-goroutine linking.
func SpanID(ctx context.Context) uuid.UUID {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		return uuid.Nil
	}
	var u uuid.UUID
	copy(u[:8], sc.SpanID[:])
	return u
}

func traceIDFromUUID(id uuid.UUID) trace.TraceID {
	var t trace.TraceID
	copy(t[:], id[:])
	return t
}

func spanIDFromUUID(id uuid.UUID) trace.SpanID {
	var s trace.SpanID
	copy(s[:], id[:8])
	return s
}
