// Copyright (c) 2023 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package http

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/z5labs/stitch/pkg/health"
	"github.com/z5labs/stitch/pkg/propagator"
	"github.com/z5labs/stitch/pkg/tracecontext"

	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"golang.org/x/sync/errgroup"
)

type acceptFunc func() (net.Conn, error)

func (f acceptFunc) Accept() (net.Conn, error) {
	return f()
}

func (acceptFunc) Close() error   { return nil }
func (acceptFunc) Addr() net.Addr { return nil }

func discardHandler() slog.Handler {
	return slog.NewTextHandler(io.Discard, nil)
}

func TestRuntime_Run(t *testing.T) {
	t.Run("will return an error", func(t *testing.T) {
		t.Run("if it fails to listen", func(t *testing.T) {
			listenErr := errors.New("failed to listen")
			rt := NewRuntime(
				nil,
				ListenOnPort(0),
				LogHandler(discardHandler()),
			)
			rt.listen = func(s1, s2 string) (net.Listener, error) {
				return nil, listenErr
			}

			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			err := rt.Run(ctx)
			if !assert.Equal(t, listenErr, err) {
				return
			}
		})

		t.Run("if it fails to acquire a connection", func(t *testing.T) {
			acceptErr := errors.New("failed to accept conn")
			rt := NewRuntime(
				nil,
				ListenOnPort(0),
				LogHandler(discardHandler()),
			)
			rt.listen = func(s1, s2 string) (net.Listener, error) {
				ls := acceptFunc(func() (net.Conn, error) {
					return nil, acceptErr
				})
				return ls, nil
			}

			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			err := rt.Run(ctx)
			if !assert.Equal(t, acceptErr, err) {
				return
			}
		})
	})

	t.Run("will not return an error", func(t *testing.T) {
		t.Run("if the context is cancelled", func(t *testing.T) {
			rt := NewRuntime(
				nil,
				ListenOnPort(0),
				LogHandler(discardHandler()),
			)

			ctx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
			defer cancel()

			err := rt.Run(ctx)
			if !assert.Nil(t, err) {
				return
			}
		})
	})

	t.Run("will serve requests under a span", func(t *testing.T) {
		f, sr := newRecordingFactory()

		ls, err := net.Listen("tcp", "127.0.0.1:0")
		if !assert.Nil(t, err) {
			return
		}

		served := make(chan tracecontext.TraceContext, 1)
		rt := NewRuntime(
			f,
			LogHandler(discardHandler()),
			HandleFunc("/hello", func(w http.ResponseWriter, r *http.Request) {
				tc, _ := tracecontext.FromContext(r.Context())
				served <- tc
				w.WriteHeader(http.StatusOK)
			}),
		)
		rt.listen = func(_, _ string) (net.Listener, error) {
			return ls, nil
		}

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			return rt.Run(gctx)
		})

		var resp *http.Response
		g.Go(func() error {
			defer cancel()

			req, err := http.NewRequestWithContext(gctx, http.MethodGet, fmt.Sprintf("http://%s/hello", ls.Addr()), nil)
			if err != nil {
				return err
			}
			req.Header.Set(propagator.Key, upstreamTraceparent)

			resp, err = http.DefaultClient.Do(req)
			if err != nil {
				return err
			}
			return resp.Body.Close()
		})

		err = g.Wait()
		if !assert.Nil(t, err) {
			return
		}

		serving := <-served
		if !assert.Equal(t, upstreamTraceID, serving.TraceIDString()) {
			return
		}

		tc, ok := propagator.Extract(propagation.HeaderCarrier(resp.Header))
		if !assert.True(t, ok) {
			return
		}
		if !assert.Equal(t, serving.SpanIDString(), tc.SpanIDString()) {
			return
		}

		spans := sr.Ended()
		if !assert.Len(t, spans, 1) {
			return
		}
		assert.Contains(t, spans[0].Attributes(), semconv.HTTPRoute("/hello"))
	})

	t.Run("will serve health endpoints without tracing them", func(t *testing.T) {
		f, sr := newRecordingFactory()

		var ready health.Binary
		ready.MarkUnhealthy()

		rt := NewRuntime(
			f,
			LogHandler(discardHandler()),
			Liveness(&health.Binary{}),
			Readiness(&ready),
			HandleFunc("/hello", func(w http.ResponseWriter, r *http.Request) {}),
		)

		get := func(path string) int {
			w := httptest.NewRecorder()
			rt.h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
			return w.Code
		}

		if !assert.Equal(t, http.StatusOK, get(LivenessPath)) {
			return
		}
		if !assert.Equal(t, http.StatusServiceUnavailable, get(ReadinessPath)) {
			return
		}

		ready.MarkHealthy()
		if !assert.Equal(t, http.StatusOK, get(ReadinessPath)) {
			return
		}
		if !assert.Len(t, sr.Ended(), 0) {
			return
		}

		if !assert.Equal(t, http.StatusOK, get("/hello")) {
			return
		}
		assert.Len(t, sr.Ended(), 1)
	})
}
