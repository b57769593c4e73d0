// Copyright (c) 2023 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package otelconfig

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// OTLPConfig exports spans to an OTLP collector over gRPC.
type OTLPConfig struct {
	// gRPC target string which is passed to grpc.DialContext()
	Target string

	DialTimeout time.Duration
	DialOptions []grpc.DialOption
}

// OTLPOption configures OTLP.
type OTLPOption func(*OTLPConfig)

// DialTimeout bounds how long Init waits for the collector connection.
//
// Default: 1 second
func DialTimeout(d time.Duration) OTLPOption {
	return func(oc *OTLPConfig) {
		oc.DialTimeout = d
	}
}

// DialOptions appends to the options the collector connection is dialed with.
func DialOptions(opts ...grpc.DialOption) OTLPOption {
	return func(oc *OTLPConfig) {
		oc.DialOptions = append(oc.DialOptions, opts...)
	}
}

// OTLP returns an Initializer for the collector at target.
func OTLP(target string, opts ...OTLPOption) Initializer {
	cfg := OTLPConfig{
		Target:      target,
		DialTimeout: time.Second,
		DialOptions: []grpc.DialOption{
			// Note the use of insecure transport here. TLS is recommended in production.
			grpc.WithTransportCredentials(insecure.NewCredentials()),
		},
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// Init implements the Initializer interface.
func (cfg OTLPConfig) Init(ctx context.Context) (sdktrace.SpanExporter, error) {
	dialCtx, cancel := context.WithTimeout(ctx, cfg.DialTimeout)
	defer cancel()

	dialOpts := append([]grpc.DialOption{grpc.WithBlock()}, cfg.DialOptions...)
	conn, err := grpc.DialContext(dialCtx, cfg.Target, dialOpts...)
	if err != nil {
		return nil, err
	}

	exporter, err := otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
	if err != nil {
		conn.Close()
		return nil, err
	}
	return exporter, nil
}
