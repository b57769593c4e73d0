// Copyright (c) 2026 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package logfmt

import (
	"fmt"
	"log/slog"
	"strings"
)

// LevelTrace is one step more verbose than slog.LevelDebug.
const LevelTrace = slog.Level(-8)

// Level is a slog.Level which also understands "trace" when parsed from text.
type Level slog.Level

// Level implements the slog.Leveler interface.
func (l Level) Level() slog.Level {
	return slog.Level(l)
}

// String returns one of ERROR, WARN, INFO, DEBUG or TRACE.
func (l Level) String() string {
	return LevelString(slog.Level(l))
}

// UnmarshalText implements the encoding.TextUnmarshaler interface.
func (l *Level) UnmarshalText(b []byte) error {
	lvl, err := ParseLevel(string(b))
	if err != nil {
		return err
	}
	*l = Level(lvl)
	return nil
}

// MarshalText implements the encoding.TextMarshaler interface.
func (l Level) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

// UnknownLevelError is returned when a level name can not be parsed.
type UnknownLevelError struct {
	Name string
}

// Error implements the [builtin.error] interface.
func (e UnknownLevelError) Error() string {
	return fmt.Sprintf("unknown log level: %q", e.Name)
}

// ParseLevel parses error, warn, info, debug or trace, ignoring case.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "error":
		return slog.LevelError, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "trace":
		return LevelTrace, nil
	default:
		return 0, UnknownLevelError{Name: s}
	}
}

// LevelString buckets an arbitrary slog.Level into one of the five level names.
func LevelString(l slog.Level) string {
	switch {
	case l >= slog.LevelError:
		return "ERROR"
	case l >= slog.LevelWarn:
		return "WARN"
	case l >= slog.LevelInfo:
		return "INFO"
	case l >= slog.LevelDebug:
		return "DEBUG"
	default:
		return "TRACE"
	}
}
