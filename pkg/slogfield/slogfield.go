// Copyright (c) 2023 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package slogfield provides typed slog.Attr constructors for the fields
// stitch writes in its own log records.
package slogfield

import (
	"log/slog"
	"time"

	"github.com/z5labs/stitch/pkg/tracecontext"
)

// Any returns an slog.Attr for the supplied value.
func Any(key string, value any) slog.Attr {
	return slog.Any(key, value)
}

// Bool returns an slog.Attr for a bool.
func Bool(key string, value bool) slog.Attr {
	return slog.Bool(key, value)
}

// Duration returns an slog.Attr for a time.Duration.
func Duration(key string, d time.Duration) slog.Attr {
	return slog.Duration(key, d)
}

// Time returns an slog.Attr for a time.Time.
func Time(key string, t time.Time) slog.Attr {
	return slog.Time(key, t)
}

// Error returns an slog.Attr for a error.
func Error(err error) slog.Attr {
	return slog.Any("error", err)
}

// String returns an slog.Attr for a string.
func String(key, value string) slog.Attr {
	return slog.String(key, value)
}

// Strings returns an slog.Attr for a slice of strings.
func Strings(key string, values []string) slog.Attr {
	return slog.Any(key, values)
}

// Int returns an slog.Attr for a int.
func Int(key string, n int) slog.Attr {
	return slog.Int(key, n)
}

// Int64 returns an slog.Attr for a int64.
func Int64(key string, n int64) slog.Attr {
	return slog.Int64(key, n)
}

// Uint64 returns an slog.Attr for a uint64.
func Uint64(key string, n uint64) slog.Attr {
	return slog.Uint64(key, n)
}

// Float64 returns an slog.Attr for a float64.
func Float64(key string, f float64) slog.Attr {
	return slog.Float64(key, f)
}

// TraceID returns the "trace_id" attr for tc.
func TraceID(tc tracecontext.TraceContext) slog.Attr {
	return slog.String("trace_id", tc.TraceIDString())
}

// SpanID returns the "span_id" attr for tc.
func SpanID(tc tracecontext.TraceContext) slog.Attr {
	return slog.String("span_id", tc.SpanIDString())
}

// ParentSpanID returns the "parent_span_id" attr for tc.
func ParentSpanID(tc tracecontext.TraceContext) slog.Attr {
	return slog.String("parent_span_id", tc.ParentSpanID.String())
}
