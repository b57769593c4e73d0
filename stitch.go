// Copyright (c) 2023 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package stitch

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/z5labs/stitch/pkg/logfmt"
	"github.com/z5labs/stitch/pkg/maskslog"
	"github.com/z5labs/stitch/pkg/otelconfig"
	"github.com/z5labs/stitch/pkg/otelslog"
	"github.com/z5labs/stitch/pkg/slogfield"
	"github.com/z5labs/stitch/pkg/span"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

var componentName atomic.Pointer[string]

// ErrComponentNameAlreadySet is returned by SetComponentName, and Init,
// once a component name has been set.
var ErrComponentNameAlreadySet = errors.New("stitch: component name already set")

// SetComponentName records the name this process reports itself as. Only
// the first call succeeds; later calls leave the first name in effect.
func SetComponentName(name string) error {
	if !componentName.CompareAndSwap(nil, &name) {
		return ErrComponentNameAlreadySet
	}
	return nil
}

// ComponentName returns the name set by SetComponentName.
func ComponentName() (string, bool) {
	name := componentName.Load()
	if name == nil {
		return "", false
	}
	return *name, true
}

// DefaultOTLPEndpoint is the collector Init exports to when the otlp
// exporter is selected without an endpoint.
const DefaultOTLPEndpoint = "localhost:4317"

// Config is everything Init needs to know. It can be read from any
// config.Source by its "config" tags.
type Config struct {
	// Name is the component name. Defaults to the executable name.
	Name string `config:"name"`

	LogLevel  logfmt.Level  `config:"log_level"`
	LogFormat logfmt.Format `config:"log_format"`

	Exporter     otelconfig.Kind `config:"exporter"`
	OTLPEndpoint string          `config:"otlp_endpoint"`
	GCPProjectID string          `config:"gcp_project_id"`
}

type options struct {
	logWriter   io.Writer
	logHandler  slog.Handler
	spanWriter  io.Writer
	initializer otelconfig.Initializer
	processors  []sdktrace.SpanProcessor
	masks       []maskslog.Option
}

// Option configures Init.
type Option func(*options)

// LogWriter sets where log records are written.
//
// Default: os.Stderr
func LogWriter(w io.Writer) Option {
	return func(o *options) {
		o.logWriter = w
	}
}

// LogHandler replaces the logfmt handler with h. Records passed to h still
// carry trace_id and span_id attrs.
func LogHandler(h slog.Handler) Option {
	return func(o *options) {
		o.logHandler = h
	}
}

// MaskAttrs masks sensitive attrs of every record before it is written.
// The trace_id and span_id keys are never masked.
func MaskAttrs(opts ...maskslog.Option) Option {
	return func(o *options) {
		o.masks = append(o.masks, opts...)
	}
}

// SpanWriter sets where the stdout exporter writes spans.
//
// Default: os.Stdout
func SpanWriter(w io.Writer) Option {
	return func(o *options) {
		o.spanWriter = w
	}
}

// Exporter overrides the exporter selected by Config.Exporter.
func Exporter(initializer otelconfig.Initializer) Option {
	return func(o *options) {
		o.initializer = initializer
	}
}

// SpanProcessor registers an additional span processor.
func SpanProcessor(sp sdktrace.SpanProcessor) Option {
	return func(o *options) {
		o.processors = append(o.processors, sp)
	}
}

// Telemetry is what Init sets up.
type Telemetry struct {
	Factory        *span.Factory
	Logger         *slog.Logger
	TracerProvider trace.TracerProvider

	shutdown func(context.Context) error
}

// Shutdown flushes any buffered spans and stops exporting.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	if t == nil || t.shutdown == nil {
		return nil
	}
	return t.shutdown(ctx)
}

// Init sets the component name, then installs a logger and a tracer
// provider as the process defaults. The W3C traceparent propagator is
// installed as the global propagator.
//
// Init only fails when the component name has already been set. Failing
// to create the span exporter is logged and Init carries on without one.
func Init(ctx context.Context, cfg Config, opts ...Option) (*Telemetry, error) {
	o := &options{
		logWriter: os.Stderr,
	}
	for _, opt := range opts {
		opt(o)
	}

	name := cfg.Name
	if name == "" && len(os.Args) > 0 {
		name = filepath.Base(os.Args[0])
	}
	err := SetComponentName(name)
	if err != nil {
		return nil, err
	}

	logger := newLogger(cfg, o)
	slog.SetDefault(logger)
	otel.SetErrorHandler(otel.ErrorHandlerFunc(func(err error) {
		logger.Error("opentelemetry error", slogfield.Error(err))
	}))
	otel.SetTextMapPropagator(propagation.TraceContext{})

	exporter := o.initializer
	if exporter == nil {
		exporter = initializerFor(cfg, o)
	}

	providerOpts := []otelconfig.ProviderOption{
		otelconfig.ServiceName(name),
		otelconfig.LogHandler(logger.Handler()),
	}
	for _, sp := range o.processors {
		providerOpts = append(providerOpts, otelconfig.WithSpanProcessor(sp))
	}
	tp := otelconfig.NewTracerProvider(ctx, exporter, providerOpts...)
	otel.SetTracerProvider(tp)

	logger.DebugContext(
		ctx,
		"initialized telemetry",
		slogfield.String("component", name),
		slogfield.String("exporter", cfg.Exporter.String()),
	)

	t := &Telemetry{
		Factory:        span.NewFactory(tp, name, span.LogHandler(logger.Handler())),
		Logger:         logger,
		TracerProvider: tp,
		shutdown:       tp.Shutdown,
	}
	return t, nil
}

func newLogger(cfg Config, o *options) *slog.Logger {
	var h slog.Handler
	if o.logHandler != nil {
		h = otelslog.NewHandler(o.logHandler)
	} else {
		h = logfmt.NewHandler(
			o.logWriter,
			logfmt.MinLevel(cfg.LogLevel),
			logfmt.WithFormat(cfg.LogFormat),
		)
	}
	if len(o.masks) > 0 {
		h = maskslog.NewHandler(h, o.masks...)
	}
	return slog.New(h)
}

func initializerFor(cfg Config, o *options) otelconfig.Initializer {
	switch cfg.Exporter {
	case otelconfig.KindStdout:
		return otelconfig.Local(o.spanWriter)
	case otelconfig.KindOTLP:
		endpoint := cfg.OTLPEndpoint
		if endpoint == "" {
			endpoint = DefaultOTLPEndpoint
		}
		return otelconfig.OTLP(endpoint)
	case otelconfig.KindGoogleCloud:
		return otelconfig.GoogleCloud(cfg.GCPProjectID)
	default:
		return otelconfig.Noop
	}
}
