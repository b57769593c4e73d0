// Copyright (c) 2024 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package maskslog

import (
	"log/slog"
	"os"
	"strings"
)

func withoutTime(groups []string, a slog.Attr) slog.Attr {
	if len(groups) == 0 && a.Key == slog.TimeKey {
		return slog.Attr{}
	}
	return a
}

func ExampleKeys() {
	h := NewHandler(
		slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{ReplaceAttr: withoutTime}),
		Keys("password"),
	)
	log := slog.New(h)

	log.Info(
		"user logged in",
		slog.String("user", "bob"),
		slog.Group("credentials", slog.String("password", "hunter2")),
	)
	// Output: {"level":"INFO","msg":"user logged in","user":"bob","credentials":{"password":"****"}}
}

func ExampleMessage() {
	h := NewHandler(
		slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{ReplaceAttr: withoutTime}),
		Message(func(s string) string {
			verb, _, _ := strings.Cut(s, " ")
			return verb + " " + Masked
		}),
	)
	log := slog.New(h)

	log.Info("charged card 4111111111111111")
	// Output: {"level":"INFO","msg":"charged ****"}
}
