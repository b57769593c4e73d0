// Copyright (c) 2024 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package stitch stitches distributed trace context across process
// boundaries and writes log records which carry the active trace and
// span ids.
//
// Init is called once at startup. It names the component, installs the
// W3C traceparent propagator and a tracer provider, and returns the
// span.Factory shared by the instrumentation wrappers:
//
//   - http.Middleware continues the trace of an inbound request and
//     returns its traceparent in the response headers.
//   - http.Transport forwards the ambient trace context on outbound requests.
//   - grpc interceptors do the same over gRPC metadata.
//   - queue.Consume and scheduler.Trace start a new trace for every
//     message or scheduled run.
//
// Log records are rendered by logfmt, as JSON or as readable lines, and
// always include trace_id and span_id, which are all zeros outside of a span.
//
//	t, err := stitch.Init(ctx, stitch.Config{Name: "checkout", LogFormat: logfmt.FormatJSON})
//	if err != nil {
//	    return err
//	}
//	defer t.Shutdown(context.Background())
//
//	mux := http.NewServeMux()
//	srv := &http.Server{Handler: stitchhttp.Middleware(t.Factory)(mux)}
//
// App wraps all of this up with config files, environment variables and
// signal handling for a command line program.
package stitch
