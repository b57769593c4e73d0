// Copyright (c) 2023 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package http continues distributed traces across HTTP requests.
//
// Middleware serves inbound requests under a span, Transport forwards the
// ambient trace context on outbound requests and Runtime is an HTTP server
// with Middleware already applied.
package http

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/z5labs/stitch/pkg/health"
	"github.com/z5labs/stitch/pkg/noop"
	"github.com/z5labs/stitch/pkg/slogfield"
	"github.com/z5labs/stitch/pkg/span"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sync/errgroup"
)

type runtimeOptions struct {
	port            uint
	mux             *http.ServeMux
	logHandler      slog.Handler
	shutdownTimeout time.Duration
	middleware      []MiddlewareOption
	liveness        health.Metric
	readiness       health.Metric
}

// RuntimeOption configures a Runtime.
type RuntimeOption func(*runtimeOptions)

// ListenOnPort will configure the HTTP server to listen on the given port.
//
// Default port is 8080.
func ListenOnPort(port uint) RuntimeOption {
	return func(ro *runtimeOptions) {
		ro.port = port
	}
}

// LogHandler
func LogHandler(h slog.Handler) RuntimeOption {
	return func(ro *runtimeOptions) {
		ro.logHandler = h
	}
}

// Handle registers a http.Handler for the given path pattern.
func Handle(pattern string, h http.Handler) RuntimeOption {
	return func(ro *runtimeOptions) {
		registerEndpoint(ro.mux, pattern, h)
	}
}

// HandleFunc registers a http.HandlerFunc for the given path pattern.
func HandleFunc(pattern string, f func(http.ResponseWriter, *http.Request)) RuntimeOption {
	return func(ro *runtimeOptions) {
		registerEndpoint(ro.mux, pattern, http.HandlerFunc(f))
	}
}

// ShutdownTimeout bounds how long in flight requests are given to
// complete once the Runtime is cancelled.
//
// Default: 10s
func ShutdownTimeout(d time.Duration) RuntimeOption {
	return func(ro *runtimeOptions) {
		ro.shutdownTimeout = d
	}
}

// Liveness serves m at LivenessPath.
func Liveness(m health.Metric) RuntimeOption {
	return func(ro *runtimeOptions) {
		ro.liveness = m
	}
}

// Readiness serves m at ReadinessPath.
func Readiness(m health.Metric) RuntimeOption {
	return func(ro *runtimeOptions) {
		ro.readiness = m
	}
}

// WithMiddlewareOptions configures the Middleware every request is served by.
func WithMiddlewareOptions(opts ...MiddlewareOption) RuntimeOption {
	return func(ro *runtimeOptions) {
		ro.middleware = append(ro.middleware, opts...)
	}
}

// Runtime is an HTTP server which serves every request through Middleware.
type Runtime struct {
	port   uint
	listen func(string, string) (net.Listener, error)

	log *slog.Logger

	shutdownTimeout time.Duration
	h               http.Handler
}

// NewRuntime returns a Runtime whose request spans are created by f.
func NewRuntime(f *span.Factory, opts ...RuntimeOption) *Runtime {
	ros := &runtimeOptions{
		port:            8080,
		mux:             http.NewServeMux(),
		logHandler:      noop.LogHandler{},
		shutdownTimeout: 10 * time.Second,
	}
	for _, opt := range opts {
		opt(ros)
	}

	return &Runtime{
		port:            ros.port,
		listen:          net.Listen,
		log:             slog.New(ros.logHandler),
		shutdownTimeout: ros.shutdownTimeout,
		h:               withHealth(Middleware(f, ros.middleware...)(ros.mux), ros.liveness, ros.readiness),
	}
}

// Health endpoint paths. Requests to them are not traced.
const (
	LivenessPath  = "/health/liveness"
	ReadinessPath = "/health/readiness"
)

func withHealth(h http.Handler, liveness, readiness health.Metric) http.Handler {
	if liveness == nil && readiness == nil {
		return h
	}

	mux := http.NewServeMux()
	mux.Handle("/", h)
	if liveness != nil {
		mux.Handle(LivenessPath, healthHandler(liveness))
	}
	if readiness != nil {
		mux.Handle(ReadinessPath, healthHandler(readiness))
	}
	return mux
}

// healthHandler responds 200 while m is healthy and 503 otherwise.
func healthHandler(m health.Metric) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.Healthy(r.Context()) {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
	})
}

// Run implements the stitch.Runtime interface.
func (rt *Runtime) Run(ctx context.Context) error {
	ls, err := rt.listen("tcp", fmt.Sprintf(":%d", rt.port))
	if err != nil {
		rt.log.ErrorContext(ctx, "failed to listen for connections", slogfield.Error(err))
		return err
	}

	s := &http.Server{
		Handler: rt.h,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		<-gctx.Done()

		ctx, cancel := context.WithTimeout(context.Background(), rt.shutdownTimeout)
		defer cancel()
		defer rt.log.Info("shut down service")

		rt.log.Info("shutting down service")
		return s.Shutdown(ctx)
	})
	g.Go(func() error {
		rt.log.Info("started service")
		return s.Serve(ls)
	})

	err = g.Wait()
	if err == nil || err == http.ErrServerClosed {
		return nil
	}
	rt.log.Error("service encountered unexpected error", slogfield.Error(err))
	return err
}

// registerEndpoint tags the request span with the route pattern.
func registerEndpoint(mux *http.ServeMux, pattern string, h http.Handler) {
	mux.Handle(
		pattern,
		otelhttp.WithRouteTag(pattern, h),
	)
}
