// Copyright (c) 2026 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package http

import (
	"bufio"
	"context"
	"net"
	"net/http"

	"github.com/z5labs/stitch/pkg/propagator"
	"github.com/z5labs/stitch/pkg/span"
	"github.com/z5labs/stitch/pkg/tracecontext"

	"go.opentelemetry.io/otel/propagation"
)

// DefaultSpanName is the name of the span Middleware starts for every request.
const DefaultSpanName = "http middleware"

type middlewareOptions struct {
	spanName string
}

// MiddlewareOption configures Middleware.
type MiddlewareOption func(*middlewareOptions)

// SpanName overrides DefaultSpanName.
func SpanName(name string) MiddlewareOption {
	return func(mo *middlewareOptions) {
		mo.spanName = name
	}
}

// Middleware serves every request under a span created by f. A traceparent
// in the request headers is continued, otherwise a new trace is started.
//
// The serving span's traceparent is set on the response headers before the
// first byte of the response is written. Handlers which write nothing still
// get it set once they return.
func Middleware(f *span.Factory, opts ...MiddlewareOption) func(http.Handler) http.Handler {
	mo := &middlewareOptions{
		spanName: DefaultSpanName,
	}
	for _, opt := range opts {
		opt(mo)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var parent *tracecontext.TraceContext
			if tc, ok := propagator.Extract(propagation.HeaderCarrier(r.Header)); ok {
				parent = &tc
			}

			ctx := r.Context()
			_, active := f.Start(ctx, mo.spanName, parent)

			tw := &traceparentWriter{
				ResponseWriter: w,
				tc:             active.TraceContext(),
			}
			var rw http.ResponseWriter = tw
			if _, ok := w.(http.Hijacker); ok {
				rw = hijackWriter{tw}
			}
			_ = span.RunScoped(ctx, active, func(spanCtx context.Context) error {
				next.ServeHTTP(rw, r.WithContext(spanCtx))
				return nil
			})
			tw.inject()
		})
	}
}

// traceparentWriter sets the traceparent response header right before the
// headers are sent.
type traceparentWriter struct {
	http.ResponseWriter

	tc       tracecontext.TraceContext
	injected bool
}

func (w *traceparentWriter) inject() {
	if w.injected {
		return
	}
	w.injected = true
	propagator.Inject(w.tc, propagation.HeaderCarrier(w.Header()))
}

func (w *traceparentWriter) WriteHeader(code int) {
	w.inject()
	w.ResponseWriter.WriteHeader(code)
}

func (w *traceparentWriter) Write(b []byte) (int, error) {
	w.inject()
	return w.ResponseWriter.Write(b)
}

func (w *traceparentWriter) Flush() {
	w.inject()
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Unwrap is used by http.ResponseController.
func (w *traceparentWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

// hijackWriter is only used when the wrapped writer supports hijacking so
// handlers asserting http.Hijacker see the same answer as without Middleware.
type hijackWriter struct {
	*traceparentWriter
}

func (w hijackWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	w.inject()
	return http.NewResponseController(w.ResponseWriter).Hijack()
}

// Transport forwards the trace context ambient in each request's context
// as a traceparent header. It does not create spans. Requests sent without
// an ambient trace context are passed to base untouched.
//
// A nil base defaults to http.DefaultTransport.
func Transport(base http.RoundTripper) http.RoundTripper {
	if base == nil {
		base = http.DefaultTransport
	}
	return &transport{base: base}
}

type transport struct {
	base http.RoundTripper
}

// RoundTrip implements the http.RoundTripper interface.
func (t *transport) RoundTrip(req *http.Request) (*http.Response, error) {
	tc, ok := tracecontext.FromContext(req.Context())
	if !ok {
		return t.base.RoundTrip(req)
	}

	// a RoundTripper must not modify the request it was given
	out := req.Clone(req.Context())
	if out.Header == nil {
		out.Header = make(http.Header)
	}
	propagator.Inject(tc, propagation.HeaderCarrier(out.Header))
	return t.base.RoundTrip(out)
}
