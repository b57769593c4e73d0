// Copyright (c) 2026 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package logfmt

import (
	"log/slog"
	"time"

	"github.com/z5labs/stitch/pkg/tracecontext"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const zapTraceLevel = zapcore.Level(-2)

// Line renders events as tab separated, human readable lines:
//
//	2026-01-02T15:04:05.000000007Z	INFO	example.com/pkg:42	hello	{"k": "v", "trace_id": "...", "span_id": "..."}
type Line struct {
	enc zapcore.Encoder
	now func() time.Time
}

// NewLine returns a Line formatter.
func NewLine(opts ...FormatterOption) *Line {
	fo := applyFormatterOptions(opts)
	return &Line{
		enc: zapcore.NewConsoleEncoder(zapcore.EncoderConfig{
			TimeKey:        KeyTimestamp,
			LevelKey:       KeyLevel,
			CallerKey:      KeyTarget,
			MessageKey:     KeyMessage,
			LineEnding:     zapcore.DefaultLineEnding,
			EncodeTime:     zapcore.RFC3339NanoTimeEncoder,
			EncodeLevel:    encodeLevel,
			EncodeCaller:   zapcore.FullCallerEncoder,
			EncodeDuration: zapcore.StringDurationEncoder,
		}),
		now: fo.now,
	}
}

// Format implements the Formatter interface.
func (f *Line) Format(ev Event, ambient *tracecontext.TraceContext) []byte {
	r := newRecord(len(ev.Fields) + 2)
	for _, fld := range ev.Fields {
		r.setValue(fld.Name, fld.Value)
	}

	traceID, spanID := traceIDs(ambient)
	r.override(zap.String(KeyTraceID, traceID))
	r.override(zap.String(KeySpanID, spanID))

	ent := zapcore.Entry{
		Level:   zapLevel(ev.Level),
		Time:    timestampOf(ev, f.now).UTC(),
		Message: ev.Message,
	}
	if target, line := sourceOf(ev); target != "" {
		ent.Caller = zapcore.EntryCaller{
			Defined: true,
			File:    target,
			Line:    line,
		}
	}
	return encode(f.enc, ent, r.fields)
}

func zapLevel(l slog.Level) zapcore.Level {
	switch LevelString(l) {
	case "ERROR":
		return zapcore.ErrorLevel
	case "WARN":
		return zapcore.WarnLevel
	case "INFO":
		return zapcore.InfoLevel
	case "DEBUG":
		return zapcore.DebugLevel
	default:
		return zapTraceLevel
	}
}

func encodeLevel(l zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
	if l <= zapTraceLevel {
		enc.AppendString("TRACE")
		return
	}
	enc.AppendString(l.CapitalString())
}
