// Copyright (c) 2026 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package logfmt

import (
	"context"
	"io"
	"log/slog"
	"runtime"
	"strings"
	"sync"

	"github.com/z5labs/stitch/pkg/tracecontext"
)

type handlerOptions struct {
	level     slog.Leveler
	formatter Formatter
}

// HandlerOption configures a Handler.
type HandlerOption func(*handlerOptions)

// MinLevel sets the minimum level which will be written.
//
// Default: slog.LevelInfo
func MinLevel(l slog.Leveler) HandlerOption {
	return func(ho *handlerOptions) {
		ho.level = l
	}
}

// WithFormatter sets the Formatter used to render events.
//
// Default: NewJSON()
func WithFormatter(f Formatter) HandlerOption {
	return func(ho *handlerOptions) {
		ho.formatter = f
	}
}

// WithFormat is shorthand for WithFormatter(NewFormatter(f)).
func WithFormat(f Format) HandlerOption {
	return WithFormatter(NewFormatter(f))
}

// Handler is a slog.Handler which renders every record with a Formatter,
// using the trace context ambient in the context.Context given to Handle.
// Writes to the underlying io.Writer are serialized so a single writer can
// be shared by every goroutine in the process.
type Handler struct {
	mu *sync.Mutex
	w  io.Writer

	level     slog.Leveler
	formatter Formatter

	prefix string
	attrs  []Field
}

// NewHandler returns a Handler which writes to w.
func NewHandler(w io.Writer, opts ...HandlerOption) *Handler {
	ho := &handlerOptions{
		level:     slog.LevelInfo,
		formatter: NewJSON(),
	}
	for _, opt := range opts {
		opt(ho)
	}
	return &Handler{
		mu:        &sync.Mutex{},
		w:         w,
		level:     ho.level,
		formatter: ho.formatter,
	}
}

// Enabled implements the slog.Handler interface.
func (h *Handler) Enabled(_ context.Context, lvl slog.Level) bool {
	return lvl >= h.level.Level()
}

// Handle implements the slog.Handler interface.
func (h *Handler) Handle(ctx context.Context, r slog.Record) error {
	ev := Event{
		Level:   r.Level,
		Message: r.Message,
		Time:    r.Time,
		Fields:  make([]Field, 0, len(h.attrs)+r.NumAttrs()),
	}
	ev.Fields = append(ev.Fields, h.attrs...)
	r.Attrs(func(a slog.Attr) bool {
		ev.Fields = append(ev.Fields, Field{Name: qualify(h.prefix, a.Key), Value: a.Value})
		return true
	})
	if r.PC != 0 {
		ev.Source = sourceFromPC(r.PC)
	}

	var ambient *tracecontext.TraceContext
	if tc, ok := tracecontext.FromContext(ctx); ok {
		ambient = &tc
	}

	b := h.formatter.Format(ev, ambient)

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := h.w.Write(b)
	return err
}

// WithAttrs implements the slog.Handler interface.
func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return h
	}
	h2 := *h
	h2.attrs = make([]Field, 0, len(h.attrs)+len(attrs))
	h2.attrs = append(h2.attrs, h.attrs...)
	for _, a := range attrs {
		h2.attrs = append(h2.attrs, Field{Name: qualify(h.prefix, a.Key), Value: a.Value})
	}
	return &h2
}

// WithGroup implements the slog.Handler interface. Groups are flattened
// into dotted key names.
func (h *Handler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	h2 := *h
	h2.prefix = h.prefix + name + "."
	return &h2
}

func qualify(prefix, key string) string {
	if key == "" {
		return strings.TrimSuffix(prefix, ".")
	}
	return prefix + key
}

func sourceFromPC(pc uintptr) *Source {
	frames := runtime.CallersFrames([]uintptr{pc})
	f, _ := frames.Next()
	return &Source{
		Target: packagePath(f.Function),
		Line:   f.Line,
	}
}

// packagePath trims the symbol name off of a fully qualified function
// name, e.g. "example.com/a/b.(*T).M" becomes "example.com/a/b".
func packagePath(fn string) string {
	slash := strings.LastIndex(fn, "/")
	dot := strings.Index(fn[slash+1:], ".")
	if dot < 0 {
		return fn
	}
	return fn[:slash+1+dot]
}
