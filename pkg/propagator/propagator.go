// Copyright (c) 2026 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package propagator moves a TraceContext across process boundaries using
// the W3C traceparent carrier format.
package propagator

import (
	"context"

	"github.com/z5labs/stitch/pkg/tracecontext"

	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc/metadata"
)

// Key is the carrier key which holds the encoded
// "version-traceid-spanid-flags" value.
const Key = "traceparent"

var w3c propagation.TraceContext

// Extract reads the TraceContext encoded in carrier. The boolean is false
// when the key is absent or its value is malformed; the two cases are
// deliberately indistinguishable so a corrupt upstream value is simply
// treated as having no parent. The carrier is never modified.
func Extract(carrier propagation.TextMapCarrier) (tc tracecontext.TraceContext, ok bool) {
	if carrier == nil {
		return tracecontext.TraceContext{}, false
	}
	defer func() {
		if r := recover(); r != nil {
			tc, ok = tracecontext.TraceContext{}, false
		}
	}()

	ctx := w3c.Extract(context.Background(), carrier)
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		return tracecontext.TraceContext{}, false
	}
	return tracecontext.FromSpanContext(sc), true
}

// Inject writes tc into carrier under Key, replacing any previous value.
// Other keys are left untouched. Nothing is written for an invalid tc.
func Inject(tc tracecontext.TraceContext, carrier propagation.TextMapCarrier) {
	if carrier == nil || !tc.IsValid() {
		return
	}
	ctx := trace.ContextWithSpanContext(context.Background(), tc.SpanContext())
	w3c.Inject(ctx, carrier)
}

// InjectContext injects the TraceContext which is ambient in ctx. It is a
// no-op when ctx has no active span.
func InjectContext(ctx context.Context, carrier propagation.TextMapCarrier) {
	tc, ok := tracecontext.FromContext(ctx)
	if !ok {
		return
	}
	Inject(tc, carrier)
}

// MetadataCarrier adapts gRPC metadata to a propagation.TextMapCarrier.
type MetadataCarrier metadata.MD

// Get implements the propagation.TextMapCarrier interface.
func (c MetadataCarrier) Get(key string) string {
	vs := metadata.MD(c).Get(key)
	if len(vs) == 0 {
		return ""
	}
	return vs[0]
}

// Set implements the propagation.TextMapCarrier interface.
func (c MetadataCarrier) Set(key, value string) {
	metadata.MD(c).Set(key, value)
}

// Keys implements the propagation.TextMapCarrier interface.
func (c MetadataCarrier) Keys() []string {
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	return keys
}
