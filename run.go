// Copyright (c) 2023 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package stitch

import (
	"context"
	"errors"
	"fmt"

	"github.com/z5labs/stitch/config"
	"github.com/z5labs/stitch/internal/try"

	"golang.org/x/sync/errgroup"
)

// Runtime is the user code an App runs once telemetry is initialized,
// e.g. an HTTP server, a queue consumer or a scheduler.
type Runtime interface {
	Run(context.Context) error
}

// RuntimeFunc is a functional implementation of the Runtime interface.
type RuntimeFunc func(context.Context) error

// Run implements the Runtime interface.
func (f RuntimeFunc) Run(ctx context.Context) error {
	return f(ctx)
}

// RuntimeBuilder builds a Runtime from the initialized Telemetry.
type RuntimeBuilder interface {
	Build(context.Context, *Telemetry) (Runtime, error)
}

// RuntimeBuilderFunc is a functional implementation of
// the RuntimeBuilder interface.
type RuntimeBuilderFunc func(context.Context, *Telemetry) (Runtime, error)

// Build implements the RuntimeBuilder interface.
func (f RuntimeBuilderFunc) Build(ctx context.Context, t *Telemetry) (Runtime, error) {
	return f(ctx, t)
}

// Run reads Config from srcs, initializes telemetry with it, then builds
// and runs the Runtime. Spans are flushed before Run returns.
func Run(ctx context.Context, builder RuntimeBuilder, srcs ...config.Source) error {
	return run(ctx, builder, srcs, nil)
}

func run(ctx context.Context, builder RuntimeBuilder, srcs []config.Source, opts []Option) (err error) {
	cfg, err := readConfig(srcs...)
	if err != nil {
		return err
	}

	t, err := Init(ctx, cfg, opts...)
	if err != nil {
		return err
	}
	defer func() {
		serr := t.Shutdown(context.WithoutCancel(ctx))
		if serr != nil {
			err = errors.Join(err, ShutdownError{Cause: serr})
		}
	}()

	rt, err := builder.Build(ctx, t)
	if err != nil {
		return RuntimeBuildError{Cause: err}
	}
	if rt == nil {
		return RuntimeBuildError{Cause: errNilRuntime}
	}

	err = runRecovered(ctx, rt)
	if err != nil {
		return RuntimeRunError{Cause: err}
	}
	return nil
}

var errNilRuntime = errors.New("nil runtime")

func readConfig(srcs ...config.Source) (Config, error) {
	var cfg Config

	m, err := config.Read(srcs...)
	if err != nil {
		return cfg, ConfigReadError{Cause: err}
	}

	err = m.Unmarshal(&cfg)
	if err != nil {
		return cfg, ConfigUnmarshalError{Cause: err}
	}
	return cfg, nil
}

func runRecovered(ctx context.Context, rt Runtime) (err error) {
	defer try.Recover(&err)
	return rt.Run(ctx)
}

// Multi runs every Runtime concurrently. The first to fail cancels the
// context given to the rest.
func Multi(rs ...Runtime) Runtime {
	return RuntimeFunc(func(ctx context.Context) error {
		g, gctx := errgroup.WithContext(ctx)
		for _, rt := range rs {
			rt := rt
			g.Go(func() error {
				return runRecovered(gctx, rt)
			})
		}
		return g.Wait()
	})
}

// ConfigReadError
type ConfigReadError struct {
	Cause error
}

// Error implements the [builtin.error] interface.
func (e ConfigReadError) Error() string {
	return fmt.Sprintf("failed to read config source(s): %s", e.Cause)
}

// Unwrap implements the implicit interface used by [errors.Is] and [errors.As].
func (e ConfigReadError) Unwrap() error {
	return e.Cause
}

// ConfigUnmarshalError
type ConfigUnmarshalError struct {
	Cause error
}

// Error implements the [builtin.error] interface.
func (e ConfigUnmarshalError) Error() string {
	return fmt.Sprintf("failed to unmarshal config: %s", e.Cause)
}

// Unwrap implements the implicit interface used by [errors.Is] and [errors.As].
func (e ConfigUnmarshalError) Unwrap() error {
	return e.Cause
}

// RuntimeBuildError
type RuntimeBuildError struct {
	Cause error
}

// Error implements the [builtin.error] interface.
func (e RuntimeBuildError) Error() string {
	return fmt.Sprintf("failed to build runtime: %s", e.Cause)
}

// Unwrap implements the implicit interface used by [errors.Is] and [errors.As].
func (e RuntimeBuildError) Unwrap() error {
	return e.Cause
}

// RuntimeRunError
type RuntimeRunError struct {
	Cause error
}

// Error implements the [builtin.error] interface.
func (e RuntimeRunError) Error() string {
	return fmt.Sprintf("failed to run runtime: %s", e.Cause)
}

// Unwrap implements the implicit interface used by [errors.Is] and [errors.As].
func (e RuntimeRunError) Unwrap() error {
	return e.Cause
}

// ShutdownError
type ShutdownError struct {
	Cause error
}

// Error implements the [builtin.error] interface.
func (e ShutdownError) Error() string {
	return fmt.Sprintf("failed to shutdown telemetry: %s", e.Cause)
}

// Unwrap implements the implicit interface used by [errors.Is] and [errors.As].
func (e ShutdownError) Unwrap() error {
	return e.Cause
}
