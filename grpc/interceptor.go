// Copyright (c) 2026 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package grpc

import (
	"context"
	"strings"

	"github.com/z5labs/stitch/pkg/propagator"
	"github.com/z5labs/stitch/pkg/span"
	"github.com/z5labs/stitch/pkg/tracecontext"

	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
)

// DefaultSpanName is the name of the span the server interceptors start
// for every call. The full method name is recorded as an attribute.
const DefaultSpanName = "grpc server"

type interceptorOptions struct {
	spanName string
}

// InterceptorOption configures the server interceptors.
type InterceptorOption func(*interceptorOptions)

// SpanName overrides DefaultSpanName.
func SpanName(name string) InterceptorOption {
	return func(o *interceptorOptions) {
		o.spanName = name
	}
}

func newInterceptorOptions(opts []InterceptorOption) *interceptorOptions {
	o := &interceptorOptions{
		spanName: DefaultSpanName,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// UnaryServerInterceptor serves every unary call under a span created by f.
// A traceparent in the incoming metadata is continued, otherwise a new trace
// is started. The serving span's traceparent is sent back in the response
// header metadata.
func UnaryServerInterceptor(f *span.Factory, opts ...InterceptorOption) grpc.UnaryServerInterceptor {
	o := newInterceptorOptions(opts)

	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (resp any, err error) {
		_, active := f.Start(ctx, o.spanName, incomingParent(ctx))
		annotate(active, info.FullMethod)

		// SetHeader only fails when ctx carries no server stream,
		// which leaves nothing to send the header on.
		_ = grpc.SetHeader(ctx, responseHeader(active))

		err = span.RunScoped(ctx, active, func(spanCtx context.Context) error {
			var herr error
			resp, herr = handler(spanCtx, req)
			return herr
		})
		return resp, err
	}
}

// StreamServerInterceptor is the streaming counterpart of UnaryServerInterceptor.
func StreamServerInterceptor(f *span.Factory, opts ...InterceptorOption) grpc.StreamServerInterceptor {
	o := newInterceptorOptions(opts)

	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		ctx := ss.Context()
		_, active := f.Start(ctx, o.spanName, incomingParent(ctx))
		annotate(active, info.FullMethod)

		_ = ss.SetHeader(responseHeader(active))

		return span.RunScoped(ctx, active, func(spanCtx context.Context) error {
			return handler(srv, &serverStream{ServerStream: ss, ctx: spanCtx})
		})
	}
}

// UnaryClientInterceptor forwards the trace context ambient in each call's
// context as outgoing metadata. It does not create spans.
func UnaryClientInterceptor() grpc.UnaryClientInterceptor {
	return func(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
		return invoker(outgoingContext(ctx), method, req, reply, cc, opts...)
	}
}

// StreamClientInterceptor is the streaming counterpart of UnaryClientInterceptor.
func StreamClientInterceptor() grpc.StreamClientInterceptor {
	return func(ctx context.Context, desc *grpc.StreamDesc, cc *grpc.ClientConn, method string, streamer grpc.Streamer, opts ...grpc.CallOption) (grpc.ClientStream, error) {
		return streamer(outgoingContext(ctx), desc, cc, method, opts...)
	}
}

func incomingParent(ctx context.Context) *tracecontext.TraceContext {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return nil
	}
	tc, ok := propagator.Extract(propagator.MetadataCarrier(md))
	if !ok {
		return nil
	}
	return &tc
}

func outgoingContext(ctx context.Context) context.Context {
	tc, ok := tracecontext.FromContext(ctx)
	if !ok {
		return ctx
	}

	md, _ := metadata.FromOutgoingContext(ctx)
	md = md.Copy()
	propagator.Inject(tc, propagator.MetadataCarrier(md))
	return metadata.NewOutgoingContext(ctx, md)
}

func responseHeader(active *span.ActiveSpan) metadata.MD {
	md := metadata.MD{}
	propagator.Inject(active.TraceContext(), propagator.MetadataCarrier(md))
	return md
}

// annotate records the service and method of a full method name,
// e.g. "/grpc.health.v1.Health/Check".
func annotate(active *span.ActiveSpan, fullMethod string) {
	service, method, ok := strings.Cut(strings.TrimPrefix(fullMethod, "/"), "/")
	if !ok {
		active.SetAttributes(semconv.RPCSystemGRPC)
		return
	}
	active.SetAttributes(
		semconv.RPCSystemGRPC,
		semconv.RPCService(service),
		semconv.RPCMethod(method),
	)
}

type serverStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (s *serverStream) Context() context.Context {
	return s.ctx
}
