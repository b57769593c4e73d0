// Copyright (c) 2023 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package queue runs message handlers under their own trace.
//
// Every message is handled under a new root span named "queue consumer".
// Trace context carried in message metadata is never extracted, so a
// message handler never joins the trace of whoever published the message.
package queue

import (
	"context"
	"errors"

	"github.com/z5labs/stitch/pkg/span"
)

// DefaultSpanName is the name of the span every message is handled under.
const DefaultSpanName = "queue consumer"

// ErrNoItem should be returned by a Consumer when there was nothing to
// consume. Runtimes treat it as a normal empty poll.
var ErrNoItem = errors.New("queue: no item")

// Consumer
type Consumer[T any] interface {
	Consume(context.Context) (T, error)
}

// ConsumerFunc is a functional implementation of the Consumer interface.
type ConsumerFunc[T any] func(context.Context) (T, error)

// Consume implements the Consumer interface.
func (f ConsumerFunc[T]) Consume(ctx context.Context) (T, error) {
	return f(ctx)
}

// Processor
type Processor[T any] interface {
	Process(context.Context, T) error
}

// ProcessorFunc is a functional implementation of the Processor interface.
type ProcessorFunc[T any] func(context.Context, T) error

// Process implements the Processor interface.
func (f ProcessorFunc[T]) Process(ctx context.Context, t T) error {
	return f(ctx, t)
}

// Consume wraps handler so every call runs under a new root span created
// by f. The message is passed to handler unchanged and handler's error is
// returned unchanged.
func Consume[T any](f *span.Factory, handler func(context.Context, T) error) func(context.Context, T) error {
	return func(ctx context.Context, msg T) error {
		return f.Run(ctx, DefaultSpanName, nil, func(spanCtx context.Context) error {
			return handler(spanCtx, msg)
		})
	}
}

// Traced is Consume for a Processor.
func Traced[T any](f *span.Factory, p Processor[T]) Processor[T] {
	return ProcessorFunc[T](Consume(f, p.Process))
}
