// Copyright (c) 2024 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/z5labs/stitch/internal/try"
	"github.com/z5labs/stitch/pkg/noop"
	"github.com/z5labs/stitch/pkg/otelslog"
	"github.com/z5labs/stitch/pkg/slogfield"
	"github.com/z5labs/stitch/pkg/span"

	"github.com/robfig/cron/v3"
)

// ErrNilAction is returned by Run if a job was registered without an action.
var ErrNilAction = errors.New("scheduler: job action cannot be nil")

type job struct {
	name     string
	schedule string
	action   func(context.Context) error
}

type runtimeOptions struct {
	logHandler         slog.Handler
	location           *time.Location
	seconds            bool
	skipIfStillRunning bool
	jobs               []job
}

// RuntimeOption configures a Runtime.
type RuntimeOption func(*runtimeOptions)

// LogHandler configures where cron events and job failures are logged.
func LogHandler(h slog.Handler) RuntimeOption {
	return func(ro *runtimeOptions) {
		ro.logHandler = h
	}
}

// Location configures the time zone schedules are interpreted in.
//
// Default: time.Local
func Location(loc *time.Location) RuntimeOption {
	return func(ro *runtimeOptions) {
		ro.location = loc
	}
}

// WithSeconds enables an optional leading seconds field in schedules.
func WithSeconds() RuntimeOption {
	return func(ro *runtimeOptions) {
		ro.seconds = true
	}
}

// SkipIfStillRunning skips an execution if the previous execution of the
// same job has not finished yet.
func SkipIfStillRunning() RuntimeOption {
	return func(ro *runtimeOptions) {
		ro.skipIfStillRunning = true
	}
}

// Job registers action to run on schedule. Schedules use the standard cron
// format or one of the descriptors, e.g. "@hourly" or "@every 30s".
func Job(name, schedule string, action func(context.Context) error) RuntimeOption {
	return func(ro *runtimeOptions) {
		ro.jobs = append(ro.jobs, job{
			name:     name,
			schedule: schedule,
			action:   action,
		})
	}
}

// Runtime executes every registered job on its schedule until its context
// is cancelled.
type Runtime struct {
	log     *slog.Logger
	factory *span.Factory
	cron    *cron.Cron
	jobs    []job
}

// NewRuntime returns a Runtime whose job executions are traced with f.
func NewRuntime(f *span.Factory, opts ...RuntimeOption) *Runtime {
	ro := &runtimeOptions{
		logHandler: noop.LogHandler{},
		location:   time.Local,
	}
	for _, opt := range opts {
		opt(ro)
	}

	log := otelslog.New(ro.logHandler)
	cl := cronLogger{log: log}

	cronOpts := []cron.Option{
		cron.WithLocation(ro.location),
		cron.WithLogger(cl),
	}
	if ro.seconds {
		cronOpts = append(cronOpts, cron.WithSeconds())
	}
	if ro.skipIfStillRunning {
		cronOpts = append(cronOpts, cron.WithChain(cron.SkipIfStillRunning(cl)))
	}

	return &Runtime{
		log:     log,
		factory: f,
		cron:    cron.New(cronOpts...),
		jobs:    ro.jobs,
	}
}

// Run implements the stitch.Runtime interface.
func (rt *Runtime) Run(ctx context.Context) error {
	for _, j := range rt.jobs {
		if j.action == nil {
			return ErrNilAction
		}

		_, err := rt.cron.AddJob(j.schedule, rt.cronJob(ctx, j))
		if err != nil {
			return fmt.Errorf("scheduler: failed to add job %q: %w", j.name, err)
		}
	}

	rt.cron.Start()
	rt.log.InfoContext(ctx, "started scheduler", slogfield.Int("num_of_jobs", len(rt.jobs)))

	<-ctx.Done()

	stopped := rt.cron.Stop()
	<-stopped.Done()
	rt.log.Info("stopped scheduler")
	return nil
}

func (rt *Runtime) cronJob(ctx context.Context, j job) cron.Job {
	action := Trace(rt.factory, func(spanCtx context.Context) error {
		err := runAction(spanCtx, j.action)
		if err != nil {
			rt.log.ErrorContext(spanCtx, "job failed", slogfield.String("job_name", j.name), slogfield.Error(err))
		}
		return err
	})
	return cron.FuncJob(func() {
		// failures are logged inside the job's span
		_ = action(ctx)
	})
}

func runAction(ctx context.Context, action func(context.Context) error) (err error) {
	defer try.Recover(&err)

	return action(ctx)
}

// cronLogger implements cron.Logger on top of slog.
type cronLogger struct {
	log *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.log.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.log.Error(msg, append(keysAndValues, slogfield.Error(err))...)
}
