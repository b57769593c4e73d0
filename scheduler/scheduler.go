// Copyright (c) 2024 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package scheduler runs periodic tasks, each execution under its own trace.
package scheduler

import (
	"context"

	"github.com/z5labs/stitch/pkg/span"
)

// DefaultSpanName is the name of the span every task execution runs under.
const DefaultSpanName = "scheduler"

// Trace wraps action so every call runs under a new root span created by f.
// The error returned by action is returned unchanged.
func Trace(f *span.Factory, action func(context.Context) error) func(context.Context) error {
	return func(ctx context.Context) error {
		return f.Run(ctx, DefaultSpanName, nil, action)
	}
}
