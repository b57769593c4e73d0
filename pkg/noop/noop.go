// Copyright (c) 2023 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package noop provides implementations which discard everything given to them.
package noop

import (
	"context"
	"log/slog"
)

// LogHandler is a slog.Handler which drops every record. It is the default
// handler for instrumentation which only logs its own failures.
type LogHandler struct{}

func (LogHandler) Enabled(_ context.Context, _ slog.Level) bool  { return false }
func (LogHandler) Handle(_ context.Context, _ slog.Record) error { return nil }
func (h LogHandler) WithAttrs(_ []slog.Attr) slog.Handler        { return h }
func (h LogHandler) WithGroup(_ string) slog.Handler             { return h }

// Shutdown is a shutdown func which has nothing to release.
func Shutdown(_ context.Context) error { return nil }
