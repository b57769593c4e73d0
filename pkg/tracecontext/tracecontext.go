// Copyright (c) 2026 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package tracecontext provides the identifier pair which links spans together
// across process boundaries and helpers for reading it from, and attaching it
// to, a context.Context.
package tracecontext

import (
	"context"

	"go.opentelemetry.io/otel/trace"
)

// Canonical string forms of the all-zero identifiers. These are what
// log records carry when no span is active.
var (
	EmptyTraceID = trace.TraceID{}.String()
	EmptySpanID  = trace.SpanID{}.String()
)

// TraceContext identifies a single span within a trace.
//
// A TraceContext is a value and is never mutated once built. Nested scopes
// derive a new TraceContext instead.
type TraceContext struct {
	TraceID trace.TraceID
	SpanID  trace.SpanID

	// ParentSpanID is the zero value for root spans.
	ParentSpanID trace.SpanID

	// Remote is true when the TraceContext was extracted from a carrier
	// rather than created by this process.
	Remote bool

	Flags trace.TraceFlags
}

// IsValid reports whether both the trace id and span id are non-zero.
func (tc TraceContext) IsValid() bool {
	return tc.TraceID.IsValid() && tc.SpanID.IsValid()
}

// HasParent reports whether tc was created as the child of another span.
func (tc TraceContext) HasParent() bool {
	return tc.ParentSpanID.IsValid()
}

// TraceIDString returns the hex encoded trace id.
func (tc TraceContext) TraceIDString() string {
	return tc.TraceID.String()
}

// SpanIDString returns the hex encoded span id.
func (tc TraceContext) SpanIDString() string {
	return tc.SpanID.String()
}

// SpanContext converts tc into its OpenTelemetry representation.
func (tc TraceContext) SpanContext() trace.SpanContext {
	return trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    tc.TraceID,
		SpanID:     tc.SpanID,
		TraceFlags: tc.Flags,
		Remote:     tc.Remote,
	})
}

// FromSpanContext converts an OpenTelemetry span context into a TraceContext.
// The parent span id is not part of a span context so it is left unset.
func FromSpanContext(sc trace.SpanContext) TraceContext {
	return TraceContext{
		TraceID: sc.TraceID(),
		SpanID:  sc.SpanID(),
		Remote:  sc.IsRemote(),
		Flags:   sc.TraceFlags(),
	}
}

// FromContext returns the TraceContext which is ambient in ctx. The
// boolean is false when ctx carries no valid span.
func FromContext(ctx context.Context) (TraceContext, bool) {
	if ctx == nil {
		return TraceContext{}, false
	}
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		return TraceContext{}, false
	}
	return FromSpanContext(sc), true
}

// ContextWith returns a copy of ctx in which tc is the ambient TraceContext.
// Remote contexts are attached as a remote parent so that spans started from
// the returned context continue tc's trace.
func ContextWith(ctx context.Context, tc TraceContext) context.Context {
	if tc.Remote {
		return trace.ContextWithRemoteSpanContext(ctx, tc.SpanContext())
	}
	return trace.ContextWithSpanContext(ctx, tc.SpanContext())
}
