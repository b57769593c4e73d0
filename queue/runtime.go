// Copyright (c) 2023 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package queue

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/z5labs/stitch/internal/try"
	"github.com/z5labs/stitch/pkg/noop"
	"github.com/z5labs/stitch/pkg/otelslog"
	"github.com/z5labs/stitch/pkg/slogfield"
	"github.com/z5labs/stitch/pkg/span"

	"golang.org/x/sync/errgroup"
)

// DefaultPollInterval is how long a runtime waits before consuming again
// after its Consumer returned ErrNoItem.
const DefaultPollInterval = 100 * time.Millisecond

type commonOptions struct {
	logHandler   slog.Handler
	factory      *span.Factory
	pollInterval time.Duration
}

// CommonOption configures both SequentialRuntime and PipeRuntime.
type CommonOption interface {
	SequentialOption
	PipeOption
}

type commonOptionFunc func(*commonOptions)

func (f commonOptionFunc) applySequential(so *sequentialOptions) {
	f(&so.commonOptions)
}

func (f commonOptionFunc) applyPipe(po *pipeOptions) {
	f(&po.commonOptions)
}

// LogHandler configures where consume and process failures are logged.
// Records carry the trace and span ids of the item being processed.
func LogHandler(h slog.Handler) CommonOption {
	return commonOptionFunc(func(co *commonOptions) {
		co.logHandler = h
	})
}

// Tracing processes every item under a new root span created by f.
func Tracing(f *span.Factory) CommonOption {
	return commonOptionFunc(func(co *commonOptions) {
		co.factory = f
	})
}

// PollInterval configures how long to wait after the Consumer returns
// ErrNoItem. Zero consumes again immediately, for Consumers which already
// block until an item is available.
//
// Default: DefaultPollInterval
func PollInterval(d time.Duration) CommonOption {
	return commonOptionFunc(func(co *commonOptions) {
		co.pollInterval = d
	})
}

func newLogger(h slog.Handler) *slog.Logger {
	if h == nil {
		return slog.New(noop.LogHandler{})
	}
	return otelslog.New(h)
}

// wrapProcessor adds panic recovery and error logging to p, tracing it
// when a Factory was configured.
func wrapProcessor[T any](co commonOptions, log *slog.Logger, p Processor[T]) Processor[T] {
	var wrapped Processor[T] = ProcessorFunc[T](func(ctx context.Context, t T) error {
		err := process(ctx, p, t)
		if err != nil {
			log.ErrorContext(ctx, "failed to process", slogfield.Error(err))
		}
		return err
	})
	if co.factory == nil {
		return wrapped
	}
	return Traced(co.factory, wrapped)
}

type sequentialOptions struct {
	commonOptions
}

// SequentialOption configures a SequentialRuntime.
type SequentialOption interface {
	applySequential(*sequentialOptions)
}

// SequentialRuntime consumes and processes one item at a time.
type SequentialRuntime[T any] struct {
	log *slog.Logger
	c   Consumer[T]
	p   Processor[T]

	pollInterval time.Duration
}

// Sequential returns a SequentialRuntime which processes every item c
// consumes with p.
func Sequential[T any](c Consumer[T], p Processor[T], opts ...SequentialOption) *SequentialRuntime[T] {
	so := &sequentialOptions{
		commonOptions: commonOptions{
			pollInterval: DefaultPollInterval,
		},
	}
	for _, opt := range opts {
		opt.applySequential(so)
	}

	log := newLogger(so.logHandler)
	return &SequentialRuntime[T]{
		log:          log,
		c:            c,
		p:            wrapProcessor(so.commonOptions, log, p),
		pollInterval: so.pollInterval,
	}
}

// Run implements the stitch.Runtime interface.
func (rt *SequentialRuntime[T]) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		v, err := consume(ctx, rt.c)
		if errors.Is(err, ErrNoItem) {
			if !wait(ctx, rt.pollInterval) {
				return nil
			}
			continue
		}
		if err != nil {
			rt.log.ErrorContext(ctx, "failed to consume", slogfield.Error(err))
			continue
		}

		select {
		case <-ctx.Done():
			return nil
		default:
		}

		// failures are logged by the wrapped processor
		_ = rt.p.Process(ctx, v)
	}
}

type pipeOptions struct {
	commonOptions

	maxConcurrentProcessors int
}

// PipeOption configures a PipeRuntime.
type PipeOption interface {
	applyPipe(*pipeOptions)
}

type pipeOptionFunc func(*pipeOptions)

func (f pipeOptionFunc) applyPipe(po *pipeOptions) {
	f(po)
}

// MaxConcurrentProcessors limits how many items are processed at once.
//
// Default: unlimited
func MaxConcurrentProcessors(n uint) PipeOption {
	return pipeOptionFunc(func(po *pipeOptions) {
		if n == 0 {
			return
		}
		po.maxConcurrentProcessors = int(n)
	})
}

// PipeRuntime consumes items on one goroutine and processes each of them on
// its own goroutine.
type PipeRuntime[T any] struct {
	log *slog.Logger
	c   Consumer[T]
	p   Processor[T]

	pollInterval            time.Duration
	maxConcurrentProcessors int
}

// Pipe returns a PipeRuntime which processes every item c consumes with p.
func Pipe[T any](c Consumer[T], p Processor[T], opts ...PipeOption) *PipeRuntime[T] {
	po := &pipeOptions{
		commonOptions: commonOptions{
			pollInterval: DefaultPollInterval,
		},
		maxConcurrentProcessors: -1,
	}
	for _, opt := range opts {
		opt.applyPipe(po)
	}

	log := newLogger(po.logHandler)
	return &PipeRuntime[T]{
		log:                     log,
		c:                       c,
		p:                       wrapProcessor(po.commonOptions, log, p),
		pollInterval:            po.pollInterval,
		maxConcurrentProcessors: po.maxConcurrentProcessors,
	}
}

// Run implements the stitch.Runtime interface.
func (rt *PipeRuntime[T]) Run(ctx context.Context) error {
	itemCh := make(chan T)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(rt.consumeItems(gctx, itemCh))
	g.Go(rt.processItems(gctx, itemCh))
	return g.Wait()
}

func (rt *PipeRuntime[T]) consumeItems(ctx context.Context, itemCh chan<- T) func() error {
	return func() error {
		defer close(itemCh)

		for {
			select {
			case <-ctx.Done():
				return nil
			default:
			}

			v, err := consume(ctx, rt.c)
			if errors.Is(err, ErrNoItem) {
				if !wait(ctx, rt.pollInterval) {
					return nil
				}
				continue
			}
			if err != nil {
				rt.log.ErrorContext(ctx, "failed to consume", slogfield.Error(err))
				continue
			}

			select {
			case <-ctx.Done():
				return nil
			case itemCh <- v:
			}
		}
	}
}

func (rt *PipeRuntime[T]) processItems(ctx context.Context, itemCh <-chan T) func() error {
	return func() error {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(rt.maxConcurrentProcessors)

		for {
			var v T
			var ok bool
			select {
			case <-gctx.Done():
				return g.Wait()
			case v, ok = <-itemCh:
			}
			if !ok {
				rt.log.Debug("stopping item processing since item channel was closed")
				return g.Wait()
			}

			g.Go(func() error {
				// failures are logged by the wrapped processor
				_ = rt.p.Process(gctx, v)
				return nil
			})
		}
	}
}

// wait reports false if ctx is done before d elapses.
func wait(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func consume[T any](ctx context.Context, c Consumer[T]) (v T, err error) {
	defer try.Recover(&err)

	return c.Consume(ctx)
}

func process[T any](ctx context.Context, p Processor[T], v T) (err error) {
	defer try.Recover(&err)

	return p.Process(ctx, v)
}
