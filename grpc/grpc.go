// Copyright (c) 2023 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package grpc continues distributed traces across gRPC calls by carrying
// the traceparent in call metadata.
package grpc

import (
	"context"
	"fmt"
	"log/slog"
	"net"

	"github.com/z5labs/stitch/pkg/noop"
	"github.com/z5labs/stitch/pkg/slogfield"
	"github.com/z5labs/stitch/pkg/span"

	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	grpchealth "google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
)

type runtimeOptions struct {
	port          uint
	logHandler    slog.Handler
	tc            credentials.TransportCredentials
	services      []service
	interceptors  []InterceptorOption
	serverOptions []grpc.ServerOption
}

// RuntimeOption are options for configuring the gRPC runtime.
type RuntimeOption func(*runtimeOptions)

// ListenOnPort will configure the gRPC server to listen on the given port.
//
// Default port is 8090.
func ListenOnPort(port uint) RuntimeOption {
	return func(ro *runtimeOptions) {
		ro.port = port
	}
}

// LogHandler configures the underlying slog.Handler.
func LogHandler(h slog.Handler) RuntimeOption {
	return func(ro *runtimeOptions) {
		ro.logHandler = h
	}
}

// TransportCredentials configures the gRPC transport credentials which the gRPC server uses.
func TransportCredentials(tc credentials.TransportCredentials) RuntimeOption {
	return func(ro *runtimeOptions) {
		ro.tc = tc
	}
}

// WithInterceptorOptions configures the server interceptors every call is
// served by.
func WithInterceptorOptions(opts ...InterceptorOption) RuntimeOption {
	return func(ro *runtimeOptions) {
		ro.interceptors = append(ro.interceptors, opts...)
	}
}

// ChainUnaryInterceptor registers unary interceptors which run inside the
// span started for the call.
func ChainUnaryInterceptor(interceptors ...grpc.UnaryServerInterceptor) RuntimeOption {
	return func(ro *runtimeOptions) {
		ro.serverOptions = append(ro.serverOptions, grpc.ChainUnaryInterceptor(interceptors...))
	}
}

// ChainStreamInterceptor registers stream interceptors which run inside the
// span started for the call.
func ChainStreamInterceptor(interceptors ...grpc.StreamServerInterceptor) RuntimeOption {
	return func(ro *runtimeOptions) {
		ro.serverOptions = append(ro.serverOptions, grpc.ChainStreamInterceptor(interceptors...))
	}
}

type service struct {
	name         string
	registerFunc func(*grpc.Server)
}

// ServiceOption are options for configuring a registered service.
type ServiceOption func(*service)

// ServiceName configures the service name which will be reported by the gRPC health service.
func ServiceName(name string) ServiceOption {
	return func(s *service) {
		s.name = name
	}
}

// Service registers a gRPC service with the underlying gRPC server.
func Service(f func(*grpc.Server), opts ...ServiceOption) RuntimeOption {
	return func(ro *runtimeOptions) {
		svc := service{
			registerFunc: f,
		}
		for _, opt := range opts {
			opt(&svc)
		}
		ro.services = append(ro.services, svc)
	}
}

type grpcServer interface {
	Serve(net.Listener) error
	GracefulStop()
}

// Runtime runs a gRPC server whose calls are all served under a span. It
// reports every registered service as serving through the standard gRPC
// health service until it is shut down.
type Runtime struct {
	port   uint
	listen func(string, string) (net.Listener, error)

	log *slog.Logger

	serviceNames []string

	grpc   grpcServer
	health *grpchealth.Server
}

// NewRuntime returns a fully initialized gRPC Runtime whose call spans are
// created by f.
func NewRuntime(f *span.Factory, opts ...RuntimeOption) *Runtime {
	ro := &runtimeOptions{
		port:       8090,
		logHandler: noop.LogHandler{},
		tc:         insecure.NewCredentials(),
	}
	for _, opt := range opts {
		opt(ro)
	}

	serverOpts := []grpc.ServerOption{
		grpc.Creds(ro.tc),
		grpc.ChainUnaryInterceptor(UnaryServerInterceptor(f, ro.interceptors...)),
		grpc.ChainStreamInterceptor(StreamServerInterceptor(f, ro.interceptors...)),
	}
	s := grpc.NewServer(append(serverOpts, ro.serverOptions...)...)

	// the empty name is the overall server health
	names := []string{""}
	for _, svc := range ro.services {
		svc.registerFunc(s)
		if svc.name != "" {
			names = append(names, svc.name)
		}
	}

	healthServer := grpchealth.NewServer()
	grpc_health_v1.RegisterHealthServer(s, healthServer)

	return &Runtime{
		port:         ro.port,
		listen:       net.Listen,
		log:          slog.New(ro.logHandler),
		serviceNames: names,
		grpc:         s,
		health:       healthServer,
	}
}

// Run implements the stitch.Runtime interface.
func (rt *Runtime) Run(ctx context.Context) error {
	ls, err := rt.listen("tcp", fmt.Sprintf(":%d", rt.port))
	if err != nil {
		rt.log.ErrorContext(ctx, "failed to listen for connections", slogfield.Error(err))
		return err
	}

	if rt.health != nil {
		for _, name := range rt.serviceNames {
			rt.health.SetServingStatus(name, grpc_health_v1.HealthCheckResponse_SERVING)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		<-gctx.Done()

		rt.log.InfoContext(gctx, "shutting down service")
		if rt.health != nil {
			rt.health.Shutdown()
		}
		rt.grpc.GracefulStop()
		rt.log.InfoContext(gctx, "shut down service")
		return nil
	})
	g.Go(func() error {
		rt.log.InfoContext(gctx, "started service")
		return rt.grpc.Serve(ls)
	})

	err = g.Wait()
	if err == nil || err == grpc.ErrServerStopped {
		return nil
	}
	rt.log.ErrorContext(gctx, "service encountered unexpected error", slogfield.Error(err))
	return err
}
