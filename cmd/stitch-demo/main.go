// Copyright (c) 2024 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Command stitch-demo runs an HTTP service, a gRPC health service, a
// scheduled job and an in-memory queue consumer which all log with the
// trace ids of the work they are doing.
package main

import (
	"bytes"
	"context"
	_ "embed"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/z5labs/stitch"
	"github.com/z5labs/stitch/config"
	"github.com/z5labs/stitch/grpc"
	stitchhttp "github.com/z5labs/stitch/http"
	"github.com/z5labs/stitch/http/httpclient"
	"github.com/z5labs/stitch/pkg/health"
	"github.com/z5labs/stitch/pkg/slogfield"
	"github.com/z5labs/stitch/queue"
	"github.com/z5labs/stitch/scheduler"
)

//go:embed config.yaml
var configBytes []byte

type order struct {
	id string
}

// orders is an in-memory queue.Consumer.
type orders chan order

func (o orders) Consume(ctx context.Context) (order, error) {
	select {
	case <-ctx.Done():
		return order{}, queue.ErrNoItem
	case v := <-o:
		return v, nil
	}
}

func buildRuntime(ctx context.Context, t *stitch.Telemetry) (stitch.Runtime, error) {
	log := t.Logger
	h := log.Handler()

	queued := make(orders, 100)

	httpRt := stitchhttp.NewRuntime(
		t.Factory,
		stitchhttp.ListenOnPort(8080),
		stitchhttp.LogHandler(h),
		stitchhttp.Liveness(&health.Binary{}),
		stitchhttp.Readiness(health.MetricFunc(func(ctx context.Context) bool {
			return len(queued) < cap(queued)
		})),
		stitchhttp.HandleFunc("/hello", func(w http.ResponseWriter, r *http.Request) {
			log.InfoContext(r.Context(), "saying hello")
			fmt.Fprintln(w, "hello")
		}),
		stitchhttp.HandleFunc("/orders", func(w http.ResponseWriter, r *http.Request) {
			id := r.URL.Query().Get("id")
			log.InfoContext(r.Context(), "queueing order", slogfield.String("order_id", id))

			select {
			case queued <- order{id: id}:
				w.WriteHeader(http.StatusAccepted)
			default:
				w.WriteHeader(http.StatusServiceUnavailable)
			}
		}),
	)

	grpcRt := grpc.NewRuntime(
		t.Factory,
		grpc.ListenOnPort(8090),
		grpc.LogHandler(h),
	)

	queueRt := queue.Pipe[order](
		queued,
		queue.ProcessorFunc[order](func(ctx context.Context, o order) error {
			log.InfoContext(ctx, "processing order", slogfield.String("order_id", o.id))
			return nil
		}),
		queue.LogHandler(h),
		queue.Tracing(t.Factory),
		queue.MaxConcurrentProcessors(10),
	)

	client := httpclient.New(
		httpclient.Name("self"),
		httpclient.LogHandler(h),
		httpclient.Timeout(5*time.Second),
		httpclient.MaxRetries(2),
		httpclient.TripAfter(5),
	)

	schedulerRt := scheduler.NewRuntime(
		t.Factory,
		scheduler.LogHandler(h),
		scheduler.SkipIfStillRunning(),
		scheduler.Job("ping", "@every 30s", func(ctx context.Context) error {
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://localhost:8080/hello", nil)
			if err != nil {
				return err
			}
			resp, err := client.Do(req)
			if err != nil {
				return err
			}
			defer resp.Body.Close()

			_, err = io.Copy(io.Discard, resp.Body)
			if err != nil {
				return err
			}
			log.InfoContext(ctx, "pinged self", slogfield.Int("status_code", resp.StatusCode))
			return nil
		}),
	)

	return stitch.Multi(httpRt, grpcRt, queueRt, schedulerRt), nil
}

func main() {
	app := stitch.NewApp(
		stitch.Name("stitch-demo"),
		stitch.ConfigSource(config.FromYaml(
			config.RenderTextTemplate(bytes.NewReader(configBytes)),
		)),
		stitch.WithRuntimeBuilderFunc(buildRuntime),
	)

	err := app.Run(os.Args[1:]...)
	if err != nil {
		os.Exit(1)
	}
}
