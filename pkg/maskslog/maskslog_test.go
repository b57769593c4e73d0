// Copyright (c) 2024 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package maskslog

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func decode(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()

	var record map[string]any
	err := json.Unmarshal(buf.Bytes(), &record)
	if !assert.Nil(t, err) {
		return nil
	}
	return record
}

func TestHandler_Handle(t *testing.T) {
	testCases := []struct {
		Name     string
		Options  []Option
		Attrs    []any
		Expected map[string]any
	}{
		{
			Name:     "will not mask attrs if no options are given",
			Attrs:    []any{slog.String("secret", "value")},
			Expected: map[string]any{"secret": "value"},
		},
		{
			Name:     "will not mask attrs if no key matches",
			Options:  []Option{Attr("other", AnonymousStringAttr)},
			Attrs:    []any{slog.String("secret", "value")},
			Expected: map[string]any{"secret": "value"},
		},
		{
			Name:    "will mask attrs registered with Keys regardless of type",
			Options: []Option{Keys("password", "pin")},
			Attrs: []any{
				slog.String("password", "hunter2"),
				slog.Int("pin", 1234),
				slog.String("user", "bob"),
			},
			Expected: map[string]any{"password": Masked, "pin": Masked, "user": "bob"},
		},
		{
			Name:    "will mask attrs nested inside groups",
			Options: []Option{Keys("authorization")},
			Attrs: []any{
				slog.Group("headers",
					slog.String("authorization", "Bearer abc"),
					slog.String("accept", "application/json"),
				),
			},
			Expected: map[string]any{
				"headers": map[string]any{
					"authorization": Masked,
					"accept":        "application/json",
				},
			},
		},
		{
			Name: "will apply a custom Attr func",
			Options: []Option{Attr("email", func(a slog.Attr) slog.Attr {
				return slog.String(a.Key, "b***@example.com")
			})},
			Attrs:    []any{slog.String("email", "bob@example.com")},
			Expected: map[string]any{"email": "b***@example.com"},
		},
	}

	for _, testCase := range testCases {
		testCase := testCase
		t.Run(testCase.Name, func(t *testing.T) {
			var buf bytes.Buffer
			log := slog.New(NewHandler(slog.NewJSONHandler(&buf, nil), testCase.Options...))

			log.Info("hello world", testCase.Attrs...)

			record := decode(t, &buf)
			if record == nil {
				return
			}
			if !assert.Equal(t, "hello world", record["msg"]) {
				return
			}
			for key, value := range testCase.Expected {
				if !assert.Equal(t, value, record[key], key) {
					return
				}
			}
		})
	}

	t.Run("will mask the message", func(t *testing.T) {
		t.Run("if a Message func is registered", func(t *testing.T) {
			var buf bytes.Buffer
			log := slog.New(NewHandler(
				slog.NewJSONHandler(&buf, nil),
				Message(func(string) string { return "redacted" }),
			))

			log.Info("card 4111111111111111", slog.String("user", "bob"))

			record := decode(t, &buf)
			if record == nil {
				return
			}
			if !assert.Equal(t, "redacted", record["msg"]) {
				return
			}
			assert.Equal(t, "bob", record["user"])
		})
	})
}

func TestHandler_WithAttrs(t *testing.T) {
	t.Run("will mask attrs", func(t *testing.T) {
		t.Run("if they were added to the logger ahead of time", func(t *testing.T) {
			var buf bytes.Buffer
			log := slog.New(NewHandler(slog.NewJSONHandler(&buf, nil), Keys("api_key")))
			log = log.With(slog.String("api_key", "abc"), slog.String("service", "orders"))

			log.Info("hello world")

			record := decode(t, &buf)
			if record == nil {
				return
			}
			if !assert.Equal(t, Masked, record["api_key"]) {
				return
			}
			assert.Equal(t, "orders", record["service"])
		})
	})
}

func TestHandler_WithGroup(t *testing.T) {
	t.Run("will not mask the whole group", func(t *testing.T) {
		t.Run("if the group name matches a registered key", func(t *testing.T) {
			var buf bytes.Buffer
			log := slog.New(NewHandler(slog.NewJSONHandler(&buf, nil), Keys("secret")))
			log = log.WithGroup("secret")

			log.Info("hello world", slog.String("a", "value"))

			record := decode(t, &buf)
			if record == nil {
				return
			}
			assert.Equal(t, map[string]any{"a": "value"}, record["secret"])
		})
	})

	t.Run("will mask attrs logged into the group", func(t *testing.T) {
		t.Run("if their key matches", func(t *testing.T) {
			var buf bytes.Buffer
			log := slog.New(NewHandler(slog.NewJSONHandler(&buf, nil), Keys("a")))
			log = log.WithGroup("request")

			log.Info("hello world", slog.String("a", "value"), slog.String("b", "value"))

			record := decode(t, &buf)
			if record == nil {
				return
			}
			assert.Equal(t, map[string]any{"a": Masked, "b": "value"}, record["request"])
		})
	})
}
