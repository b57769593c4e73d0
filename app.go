// Copyright (c) 2023 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package stitch

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/z5labs/stitch/config"

	"github.com/spf13/cobra"
)

// EnvPrefix prefixes the environment variables App reads Config from,
// e.g. STITCH_LOG_LEVEL.
const EnvPrefix = "STITCH"

// AppOption configures an App.
type AppOption func(*App)

// Name configures the name of the command. It is also the default
// component name.
func Name(name string) AppOption {
	return func(a *App) {
		a.name = name
	}
}

// ConfigSource registers a config source with the application. Sources
// are merged in the order they are registered, followed by the file
// named by the --config flag and finally the environment.
func ConfigSource(src config.Source) AppOption {
	return func(a *App) {
		a.srcs = append(a.srcs, src)
	}
}

// WithRuntimeBuilder registers the given RuntimeBuilder with the App.
// Every registered Runtime is run concurrently.
func WithRuntimeBuilder(rb RuntimeBuilder) AppOption {
	return func(a *App) {
		a.rbs = append(a.rbs, rb)
	}
}

// WithRuntimeBuilderFunc registers the given function as a RuntimeBuilder.
func WithRuntimeBuilderFunc(f func(context.Context, *Telemetry) (Runtime, error)) AppOption {
	return func(a *App) {
		a.rbs = append(a.rbs, RuntimeBuilderFunc(f))
	}
}

// InitOptions are passed to Init when the App starts.
func InitOptions(opts ...Option) AppOption {
	return func(a *App) {
		a.initOpts = append(a.initOpts, opts...)
	}
}

// App handles the lower level things of running a service in Go.
// App is responsible for the following:
//   - Parsing (and merging) your config(s)
//   - Initializing telemetry and flushing it on exit
//   - Running your Runtime(s) and propagating any OS interrupts
//     via context.Context cancellation
type App struct {
	name     string
	srcs     []config.Source
	rbs      []RuntimeBuilder
	initOpts []Option
}

// NewApp returns a fully initialized App.
func NewApp(opts ...AppOption) *App {
	var name string
	if len(os.Args) > 0 {
		name = filepath.Base(os.Args[0])
	}
	app := &App{
		name: name,
	}
	for _, opt := range opts {
		opt(app)
	}
	return app
}

// Run executes the application with the given command line args. It also
// handles listening for interrupts from the underlying OS and terminates
// the application when one is received.
func (app *App) Run(args ...string) error {
	cmd := buildCmd(app)
	cmd.SetArgs(args)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	return cmd.ExecuteContext(ctx)
}

func buildCmd(app *App) *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:           app.name,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			srcs := []config.Source{
				config.Map{"name": app.name},
			}
			srcs = append(srcs, app.srcs...)
			if configPath != "" {
				f := config.NewFileReader(os.DirFS(filepath.Dir(configPath)), filepath.Base(configPath))
				srcs = append(srcs, config.FromYaml(config.RenderTextTemplate(f)))
			}
			srcs = append(srcs, config.FromEnv(EnvPrefix))

			rbs := app.rbs
			builder := RuntimeBuilderFunc(func(ctx context.Context, t *Telemetry) (Runtime, error) {
				rs := make([]Runtime, 0, len(rbs))
				for _, rb := range rbs {
					rt, err := rb.Build(ctx, t)
					if err != nil {
						return nil, err
					}
					if rt == nil {
						return nil, errNilRuntime
					}
					rs = append(rs, rt)
				}
				return Multi(rs...), nil
			})
			return run(cmd.Context(), builder, srcs, app.initOpts)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to a YAML config file, rendered as a text/template")
	return cmd
}
