// Copyright (c) 2023 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package otelslog adapts any slog.Handler so its records carry the ambient
// trace context, for when the logfmt formatters are not in use.
package otelslog

import (
	"context"
	"log/slog"

	"github.com/z5labs/stitch/pkg/slogfield"
	"github.com/z5labs/stitch/pkg/tracecontext"
)

// Handler is an slog.Handler which adds top level trace_id and span_id
// attrs to every record. Records logged outside of a span get the all
// zero ids so the keys are always present.
//
// Attrs are added to the record directly, so a group opened with WithGroup
// on the wrapped handler will also contain them.
type Handler struct {
	slog slog.Handler
}

// NewHandler wraps h.
func NewHandler(h slog.Handler) *Handler {
	return &Handler{slog: h}
}

// New provides a simple wrapper for slog.New(NewHandler(h)).
func New(h slog.Handler) *slog.Logger {
	return slog.New(NewHandler(h))
}

// Enabled implements the slog.Handler interface.
func (h *Handler) Enabled(ctx context.Context, lvl slog.Level) bool {
	return h.slog.Enabled(ctx, lvl)
}

// Handle implements the slog.Handler interface.
func (h *Handler) Handle(ctx context.Context, record slog.Record) error {
	tc, _ := tracecontext.FromContext(ctx)

	r := record.Clone()
	r.AddAttrs(
		slogfield.TraceID(tc),
		slogfield.SpanID(tc),
	)
	return h.slog.Handle(ctx, r)
}

// WithAttrs implements the slog.Handler interface.
func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return NewHandler(h.slog.WithAttrs(attrs))
}

// WithGroup implements the slog.Handler interface.
func (h *Handler) WithGroup(name string) slog.Handler {
	return NewHandler(h.slog.WithGroup(name))
}
