// Copyright (c) 2023 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package otelconfig builds the OpenTelemetry TracerProvider spans are
// created from, exporting them to one of several backends.
package otelconfig

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/z5labs/stitch/pkg/noop"
	"github.com/z5labs/stitch/pkg/slogfield"

	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
)

// Kind names a span export backend.
type Kind int

const (
	// KindNone creates spans, so ids are still generated and logged, but never exports them.
	KindNone Kind = iota
	KindStdout
	KindOTLP
	KindGoogleCloud
)

// String implements the fmt.Stringer interface.
func (k Kind) String() string {
	switch k {
	case KindStdout:
		return "stdout"
	case KindOTLP:
		return "otlp"
	case KindGoogleCloud:
		return "gcp"
	default:
		return "none"
	}
}

// UnknownKindError is returned when an exporter name can not be parsed.
type UnknownKindError struct {
	Name string
}

// Error implements the [builtin.error] interface.
func (e UnknownKindError) Error() string {
	return fmt.Sprintf("unknown exporter: %q", e.Name)
}

// UnmarshalText implements the encoding.TextUnmarshaler interface.
func (k *Kind) UnmarshalText(b []byte) error {
	switch strings.ToLower(strings.TrimSpace(string(b))) {
	case "", "none":
		*k = KindNone
	case "stdout":
		*k = KindStdout
	case "otlp":
		*k = KindOTLP
	case "gcp", "googlecloud":
		*k = KindGoogleCloud
	default:
		return UnknownKindError{Name: string(b)}
	}
	return nil
}

// MarshalText implements the encoding.TextMarshaler interface.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Initializer creates the exporter for a single backend. A nil exporter
// with a nil error means spans are not exported.
type Initializer interface {
	Init(context.Context) (sdktrace.SpanExporter, error)
}

// Detector is implemented by Initializers whose backend can describe
// the environment the process is running in.
type Detector interface {
	Detectors() []resource.Detector
}

// Noop never exports spans.
var Noop Initializer = noopInitializer{}

type noopInitializer struct{}

func (noopInitializer) Init(_ context.Context) (sdktrace.SpanExporter, error) {
	return nil, nil
}

// ExporterError is logged when an exporter can not be created.
type ExporterError struct {
	Cause error
}

// Error implements the [builtin.error] interface.
func (e ExporterError) Error() string {
	return fmt.Sprintf("failed to initialize span exporter: %s", e.Cause)
}

// Unwrap implements the implicit interface used by [errors.Is] and [errors.As].
func (e ExporterError) Unwrap() error {
	return e.Cause
}

type providerOptions struct {
	serviceName string
	logHandler  slog.Handler
	processors  []sdktrace.SpanProcessor
}

// ProviderOption configures NewTracerProvider.
type ProviderOption func(*providerOptions)

// ServiceName sets the service.name resource attribute.
func ServiceName(name string) ProviderOption {
	return func(po *providerOptions) {
		po.serviceName = name
	}
}

// LogHandler configures where initialization failures are reported.
func LogHandler(h slog.Handler) ProviderOption {
	return func(po *providerOptions) {
		po.logHandler = h
	}
}

// WithSpanProcessor registers an additional span processor with the provider.
func WithSpanProcessor(sp sdktrace.SpanProcessor) ProviderOption {
	return func(po *providerOptions) {
		po.processors = append(po.processors, sp)
	}
}

// NewTracerProvider returns a TracerProvider which samples every span and
// batches them to the exporter created by initializer.
//
// Failing to create the exporter, or to detect the resource, is logged and
// otherwise ignored. The returned provider always creates valid spans.
func NewTracerProvider(ctx context.Context, initializer Initializer, opts ...ProviderOption) *sdktrace.TracerProvider {
	po := &providerOptions{
		logHandler: noop.LogHandler{},
	}
	for _, opt := range opts {
		opt(po)
	}
	log := slog.New(po.logHandler)

	if initializer == nil {
		initializer = Noop
	}

	res := newResource(ctx, log, po.serviceName, initializer)

	tpOpts := []sdktrace.TracerProviderOption{
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithResource(res),
	}

	exporter, err := initializer.Init(ctx)
	if err != nil {
		log.ErrorContext(ctx, "exporting spans is disabled", slogfield.Error(ExporterError{Cause: err}))
	}
	if exporter != nil {
		tpOpts = append(tpOpts, sdktrace.WithBatcher(exporter))
	}
	for _, sp := range po.processors {
		tpOpts = append(tpOpts, sdktrace.WithSpanProcessor(sp))
	}
	return sdktrace.NewTracerProvider(tpOpts...)
}

func newResource(ctx context.Context, log *slog.Logger, serviceName string, initializer Initializer) *resource.Resource {
	resOpts := []resource.Option{
		resource.WithTelemetrySDK(),
	}
	if d, ok := initializer.(Detector); ok {
		resOpts = append(resOpts, resource.WithDetectors(d.Detectors()...))
	}
	if serviceName != "" {
		resOpts = append(resOpts, resource.WithAttributes(semconv.ServiceName(serviceName)))
	}

	res, err := resource.New(ctx, resOpts...)
	if err != nil {
		log.WarnContext(ctx, "failed to fully detect resource", slogfield.Error(err))
	}
	if res == nil {
		return resource.Default()
	}
	return res
}
