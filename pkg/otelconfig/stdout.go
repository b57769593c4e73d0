// Copyright (c) 2023 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package otelconfig

import (
	"context"
	"io"
	"os"

	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// LocalConfig writes spans as JSON to Out.
type LocalConfig struct {
	Out         io.Writer
	PrettyPrint bool
}

// LocalOption configures Local.
type LocalOption func(*LocalConfig)

// PrettyPrint indents each exported span.
func PrettyPrint() LocalOption {
	return func(lc *LocalConfig) {
		lc.PrettyPrint = true
	}
}

// Local returns an Initializer which writes spans to out, or stdout if out is nil.
func Local(out io.Writer, opts ...LocalOption) Initializer {
	cfg := LocalConfig{
		Out: out,
	}
	if cfg.Out == nil {
		cfg.Out = os.Stdout
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// Init implements the Initializer interface.
func (cfg LocalConfig) Init(_ context.Context) (sdktrace.SpanExporter, error) {
	opts := []stdouttrace.Option{
		stdouttrace.WithWriter(cfg.Out),
	}
	if cfg.PrettyPrint {
		opts = append(opts, stdouttrace.WithPrettyPrint())
	}
	exporter, err := stdouttrace.New(opts...)
	if err != nil {
		return nil, err
	}
	return exporter, nil
}
