// Copyright (c) 2023 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package httpclient

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"

	"github.com/z5labs/stitch/pkg/propagator"
	"github.com/z5labs/stitch/pkg/span"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func newJSONHandler(w io.Writer) slog.Handler {
	return slog.NewJSONHandler(w, &slog.HandlerOptions{Level: slog.LevelDebug})
}

func ExampleNew() {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Println(len(r.Header.Get(propagator.Key)) > 0)
	}))
	defer srv.Close()

	f := span.NewFactory(sdktrace.NewTracerProvider(), "example")
	c := New(Name("example"))

	err := f.Run(context.Background(), "send", nil, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL, nil)
		if err != nil {
			return err
		}
		resp, err := c.Do(req)
		if err != nil {
			return err
		}
		return resp.Body.Close()
	})
	if err != nil {
		fmt.Println(err)
	}
	// Output: true
}
