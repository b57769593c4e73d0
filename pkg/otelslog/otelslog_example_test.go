// Copyright (c) 2024 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package otelslog

import (
	"context"
	"log/slog"
	"os"

	"github.com/z5labs/stitch/pkg/tracecontext"

	"go.opentelemetry.io/otel/trace"
)

func dropTime(groups []string, a slog.Attr) slog.Attr {
	if len(groups) == 0 && a.Key == slog.TimeKey {
		return slog.Attr{}
	}
	return a
}

func ExampleNew() {
	log := New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{ReplaceAttr: dropTime}))

	traceID, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	spanID, _ := trace.SpanIDFromHex("00f067aa0ba902b7")
	ctx := tracecontext.ContextWith(context.Background(), tracecontext.TraceContext{
		TraceID: traceID,
		SpanID:  spanID,
	})

	log.InfoContext(ctx, "order placed", slog.Int("items", 3))
	// Output: {"level":"INFO","msg":"order placed","items":3,"trace_id":"4bf92f3577b34da6a3ce929d0e0e4736","span_id":"00f067aa0ba902b7"}
}

func ExampleNew_outsideSpan() {
	log := New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{ReplaceAttr: dropTime}))

	log.Info("starting")
	// Output: {"level":"INFO","msg":"starting","trace_id":"00000000000000000000000000000000","span_id":"0000000000000000"}
}
