// Copyright (c) 2026 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package logfmt renders log events, together with the trace context that was
// ambient when they were emitted, as single lines of output.
//
// Two formatters are provided. JSON renders a flat JSON object whose required
// keys (trace_id, span_id, level, target, line_number and timestamp) always
// win over caller supplied fields of the same name. Line renders a human
// readable line and is meant for local development.
package logfmt

import (
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/z5labs/stitch/pkg/tracecontext"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Source is where an event was emitted from.
type Source struct {
	// Target is the import path of the package which emitted the event.
	Target string
	Line   int
}

// Field is a single named and typed value attached to an event.
type Field struct {
	Name  string
	Value slog.Value
}

// Event is one log event. Events are consumed once by a Formatter and must
// not be modified afterwards.
type Event struct {
	Level   slog.Level
	Message string
	Fields  []Field
	Time    time.Time
	Source  *Source
}

// Formatter renders a single Event as one line of output, including the
// trailing newline. Implementations never fail.
type Formatter interface {
	Format(ev Event, ambient *tracecontext.TraceContext) []byte
}

// Format selects which Formatter is used.
type Format int

const (
	FormatLine Format = iota
	FormatJSON
)

// String implements the fmt.Stringer interface.
func (f Format) String() string {
	switch f {
	case FormatJSON:
		return "json"
	default:
		return "line"
	}
}

// UnknownFormatError is returned when a format name can not be parsed.
type UnknownFormatError struct {
	Name string
}

// Error implements the [builtin.error] interface.
func (e UnknownFormatError) Error() string {
	return fmt.Sprintf("unknown log format: %q", e.Name)
}

// UnmarshalText implements the encoding.TextUnmarshaler interface.
func (f *Format) UnmarshalText(b []byte) error {
	switch strings.ToLower(strings.TrimSpace(string(b))) {
	case "line", "text", "":
		*f = FormatLine
	case "json":
		*f = FormatJSON
	default:
		return UnknownFormatError{Name: string(b)}
	}
	return nil
}

// MarshalText implements the encoding.TextMarshaler interface.
func (f Format) MarshalText() ([]byte, error) {
	return []byte(f.String()), nil
}

type formatterOptions struct {
	now func() time.Time
}

// FormatterOption configures the formatters returned by NewFormatter, NewJSON and NewLine.
type FormatterOption func(*formatterOptions)

// Clock overrides the time source. JSON always reads it, Line only when
// an event has no time of its own.
func Clock(now func() time.Time) FormatterOption {
	return func(fo *formatterOptions) {
		fo.now = now
	}
}

// NewFormatter returns the Formatter for f.
func NewFormatter(f Format, opts ...FormatterOption) Formatter {
	switch f {
	case FormatJSON:
		return NewJSON(opts...)
	default:
		return NewLine(opts...)
	}
}

func applyFormatterOptions(opts []FormatterOption) *formatterOptions {
	fo := &formatterOptions{
		now: time.Now,
	}
	for _, opt := range opts {
		opt(fo)
	}
	return fo
}

// record is an insertion ordered set of zap fields where writing
// an existing key replaces its value.
type record struct {
	fields []zapcore.Field
	index  map[string]int
}

func newRecord(n int) *record {
	return &record{
		fields: make([]zapcore.Field, 0, n),
		index:  make(map[string]int, n),
	}
}

func (r *record) set(f zapcore.Field) {
	i, ok := r.index[f.Key]
	if ok {
		r.fields[i] = f
		return
	}
	r.index[f.Key] = len(r.fields)
	r.fields = append(r.fields, f)
}

// override removes any previous value for f.Key and appends f.
func (r *record) override(f zapcore.Field) {
	i, ok := r.index[f.Key]
	if ok {
		r.fields = append(r.fields[:i], r.fields[i+1:]...)
		for k, j := range r.index {
			if j > i {
				r.index[k] = j - 1
			}
		}
	}
	r.index[f.Key] = len(r.fields)
	r.fields = append(r.fields, f)
}

func (r *record) setValue(key string, v slog.Value) {
	v = v.Resolve()
	switch v.Kind() {
	case slog.KindGroup:
		for _, attr := range v.Group() {
			if attr.Equal(slog.Attr{}) {
				continue
			}
			name := attr.Key
			if key != "" {
				name = key + "." + attr.Key
			}
			r.setValue(name, attr.Value)
		}
	default:
		if key == "" {
			return
		}
		r.set(field(key, v))
	}
}

func field(key string, v slog.Value) zapcore.Field {
	switch v.Kind() {
	case slog.KindBool:
		return zap.Bool(key, v.Bool())
	case slog.KindInt64:
		return zap.Int64(key, v.Int64())
	case slog.KindUint64:
		return zap.Uint64(key, v.Uint64())
	case slog.KindFloat64:
		return zap.Float64(key, finite(v.Float64()))
	case slog.KindString:
		return zap.String(key, v.String())
	case slog.KindDuration:
		return zap.String(key, v.Duration().String())
	case slog.KindTime:
		return zap.String(key, v.Time().Format(time.RFC3339Nano))
	default:
		return anyField(key, v.Any())
	}
}

func anyField(key string, x any) zapcore.Field {
	switch y := x.(type) {
	case nil:
		return zap.String(key, "<nil>")
	case error:
		return zap.String(key, fmt.Sprintf("%v", y))
	case float32:
		return zap.Float64(key, finite(float64(y)))
	default:
		return zap.String(key, fmt.Sprintf("%+v", y))
	}
}

// finite maps NaN and ±Inf to 0 since neither has a JSON number representation.
func finite(f float64) float64 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return f
}

func traceIDs(ambient *tracecontext.TraceContext) (traceID, spanID string) {
	if ambient == nil {
		return tracecontext.EmptyTraceID, tracecontext.EmptySpanID
	}
	return ambient.TraceIDString(), ambient.SpanIDString()
}

func sourceOf(ev Event) (target string, line int) {
	if ev.Source == nil {
		return "", 0
	}
	line = ev.Source.Line
	if line < 0 {
		line = 0
	}
	return ev.Source.Target, line
}

func timestampOf(ev Event, now func() time.Time) time.Time {
	if !ev.Time.IsZero() {
		return ev.Time
	}
	return now()
}
