// Copyright (c) 2026 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package span creates spans and runs units of work with a span as the
// ambient trace context.
package span

import (
	"context"
	"errors"
	"log/slog"

	"github.com/z5labs/stitch/pkg/noop"
	"github.com/z5labs/stitch/pkg/slogfield"
	"github.com/z5labs/stitch/pkg/tracecontext"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

type options struct {
	logHandler slog.Handler
}

// Option configures a Factory.
type Option func(*options)

// LogHandler configures the slog.Handler used for reporting
// instrumentation failures.
func LogHandler(h slog.Handler) Option {
	return func(o *options) {
		o.logHandler = h
	}
}

// Factory creates spans from a single named tracer. A Factory is built once
// at startup and shared by every wrapper. The zero value, and a nil *Factory,
// create non-recording spans.
type Factory struct {
	tracer trace.Tracer
	log    *slog.Logger
}

// NewFactory returns a Factory whose spans come from the tracer named name.
func NewFactory(tp trace.TracerProvider, name string, opts ...Option) *Factory {
	o := &options{
		logHandler: noop.LogHandler{},
	}
	for _, opt := range opts {
		opt(o)
	}
	if tp == nil {
		tp = tracenoop.NewTracerProvider()
	}
	return &Factory{
		tracer: tp.Tracer(name),
		log:    slog.New(o.logHandler),
	}
}

// ActiveSpan is a span which has been started but not yet ended.
type ActiveSpan struct {
	span trace.Span
	tc   tracecontext.TraceContext
}

// TraceContext returns the TraceContext which is ambient while the span is open.
func (s *ActiveSpan) TraceContext() tracecontext.TraceContext {
	return s.tc
}

// End closes the span. Calling End more than once has no further effect.
func (s *ActiveSpan) End() {
	if s == nil || s.span == nil {
		return
	}
	s.span.End()
}

// SetAttributes records attrs on the span.
func (s *ActiveSpan) SetAttributes(attrs ...attribute.KeyValue) {
	if s == nil || s.span == nil {
		return
	}
	s.span.SetAttributes(attrs...)
}

// Start creates a new span named name.
//
// If parent is a remote TraceContext the span continues parent's trace.
// Otherwise the span is the root of a new trace. The returned context has the
// new span as its ambient trace context; ctx itself is left untouched.
func (f *Factory) Start(ctx context.Context, name string, parent *tracecontext.TraceContext) (spanCtx context.Context, active *ActiveSpan) {
	var parentSpanID trace.SpanID
	startOpts := []trace.SpanStartOption{}
	if parent != nil && parent.Remote && parent.IsValid() {
		ctx = tracecontext.ContextWith(ctx, *parent)
		parentSpanID = parent.SpanID
	} else {
		startOpts = append(startOpts, trace.WithNewRoot())
	}

	defer func() {
		r := recover()
		if r == nil {
			return
		}
		f.logger().ErrorContext(ctx, "failed to start span", slogfield.String("span_name", name), slogfield.Any("panic", r))

		s := trace.SpanFromContext(context.Background())
		spanCtx = trace.ContextWithSpan(ctx, s)
		active = &ActiveSpan{span: s}
	}()

	spanCtx, s := f.tracerOrNoop().Start(ctx, name, startOpts...)

	tc := tracecontext.FromSpanContext(s.SpanContext())
	tc.ParentSpanID = parentSpanID
	return spanCtx, &ActiveSpan{span: s, tc: tc}
}

// RunScoped runs work with active as the ambient span and returns work's error
// unchanged. The span is always ended once work returns, including when work
// fails, panics or observes the cancellation of ctx. Since ctx is never
// modified the caller's ambient context is the same after RunScoped returns.
func RunScoped(ctx context.Context, active *ActiveSpan, work func(context.Context) error) (err error) {
	if active == nil || active.span == nil {
		return work(ctx)
	}

	spanCtx := trace.ContextWithSpan(ctx, active.span)
	defer active.End()
	defer func() {
		r := recover()
		if r != nil {
			active.span.SetStatus(codes.Error, "panic")
			panic(r)
		}
		recordOutcome(spanCtx, active.span, err)
	}()

	return work(spanCtx)
}

// Run is shorthand for Start followed by RunScoped.
func (f *Factory) Run(ctx context.Context, name string, parent *tracecontext.TraceContext, work func(context.Context) error) error {
	_, active := f.Start(ctx, name, parent)
	return RunScoped(ctx, active, work)
}

func recordOutcome(ctx context.Context, s trace.Span, err error) {
	if err == nil {
		if ctx.Err() != nil {
			s.AddEvent("context cancelled")
		}
		return
	}
	s.RecordError(err)
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		s.SetStatus(codes.Error, "cancelled")
		return
	}
	s.SetStatus(codes.Error, err.Error())
}

func (f *Factory) tracerOrNoop() trace.Tracer {
	if f == nil || f.tracer == nil {
		return tracenoop.NewTracerProvider().Tracer("")
	}
	return f.tracer
}

func (f *Factory) logger() *slog.Logger {
	if f == nil || f.log == nil {
		return slog.New(noop.LogHandler{})
	}
	return f.log
}
