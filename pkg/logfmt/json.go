// Copyright (c) 2026 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package logfmt

import (
	"time"

	"github.com/z5labs/stitch/pkg/tracecontext"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Required keys present in every JSON record.
const (
	KeyMessage    = "message"
	KeyTraceID    = "trace_id"
	KeySpanID     = "span_id"
	KeyLevel      = "level"
	KeyTarget     = "target"
	KeyLineNumber = "line_number"
	KeyTimestamp  = "timestamp"
)

// JSON renders events as one flat JSON object per line.
//
// Caller fields are written first, in order, with later fields replacing
// earlier ones of the same name. trace_id, span_id, level, target,
// line_number and timestamp are written afterwards and always replace a
// caller field of the same name. timestamp is the time of formatting, read
// from the Clock, not the event time.
type JSON struct {
	enc zapcore.Encoder
	now func() time.Time
}

// NewJSON returns a JSON formatter.
func NewJSON(opts ...FormatterOption) *JSON {
	fo := applyFormatterOptions(opts)
	return &JSON{
		enc: zapcore.NewJSONEncoder(zapcore.EncoderConfig{
			LineEnding: zapcore.DefaultLineEnding,
		}),
		now: fo.now,
	}
}

// Format implements the Formatter interface.
func (f *JSON) Format(ev Event, ambient *tracecontext.TraceContext) []byte {
	r := newRecord(len(ev.Fields) + 7)
	r.set(zap.String(KeyMessage, ev.Message))
	for _, fld := range ev.Fields {
		r.setValue(fld.Name, fld.Value)
	}

	traceID, spanID := traceIDs(ambient)
	target, line := sourceOf(ev)
	ts := f.now()

	r.override(zap.String(KeyTraceID, traceID))
	r.override(zap.String(KeySpanID, spanID))
	r.override(zap.String(KeyLevel, LevelString(ev.Level)))
	r.override(zap.String(KeyTarget, target))
	r.override(zap.Int(KeyLineNumber, line))
	r.override(zap.String(KeyTimestamp, ts.UTC().Format(time.RFC3339Nano)))

	return encode(f.enc, zapcore.Entry{}, r.fields)
}

func encode(enc zapcore.Encoder, ent zapcore.Entry, fields []zapcore.Field) []byte {
	buf, err := enc.EncodeEntry(ent, fields)
	if err != nil {
		// only reflection based fields can fail and none are ever produced
		return []byte("{}\n")
	}
	defer buf.Free()

	b := make([]byte, buf.Len())
	copy(b, buf.Bytes())
	return b
}
