// Copyright (c) 2023 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package stitch

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/z5labs/stitch/config"
	"github.com/z5labs/stitch/internal/try"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
)

func TestRun(t *testing.T) {
	noopBuilder := RuntimeBuilderFunc(func(ctx context.Context, t *Telemetry) (Runtime, error) {
		return RuntimeFunc(func(ctx context.Context) error { return nil }), nil
	})

	t.Run("will return a ConfigReadError", func(t *testing.T) {
		t.Run("if a config.Source fails", func(t *testing.T) {
			resetGlobals(t)

			srcErr := errors.New("failed to apply config")
			src := config.SourceFunc(func(_ *viper.Viper) error {
				return srcErr
			})

			err := Run(context.Background(), noopBuilder, src)

			var rerr ConfigReadError
			if !assert.ErrorAs(t, err, &rerr) {
				return
			}
			if !assert.NotEmpty(t, rerr.Error()) {
				return
			}
			assert.ErrorIs(t, rerr, srcErr)
		})
	})

	t.Run("will return a ConfigUnmarshalError", func(t *testing.T) {
		t.Run("if the exporter is unknown", func(t *testing.T) {
			resetGlobals(t)

			err := Run(context.Background(), noopBuilder, config.Map{"exporter": "zipkin"})

			var uerr ConfigUnmarshalError
			if !assert.ErrorAs(t, err, &uerr) {
				return
			}
			assert.NotEmpty(t, uerr.Error())
		})
	})

	t.Run("will return a RuntimeBuildError", func(t *testing.T) {
		t.Run("if the builder fails", func(t *testing.T) {
			resetGlobals(t)

			buildErr := errors.New("failed to build")
			b := RuntimeBuilderFunc(func(ctx context.Context, t *Telemetry) (Runtime, error) {
				return nil, buildErr
			})

			err := run(context.Background(), b, []config.Source{config.Map{"name": "svc"}}, []Option{LogWriter(io.Discard)})

			var berr RuntimeBuildError
			if !assert.ErrorAs(t, err, &berr) {
				return
			}
			assert.ErrorIs(t, berr, buildErr)
		})

		t.Run("if the builder returns a nil runtime", func(t *testing.T) {
			resetGlobals(t)

			b := RuntimeBuilderFunc(func(ctx context.Context, t *Telemetry) (Runtime, error) {
				return nil, nil
			})

			err := run(context.Background(), b, nil, []Option{LogWriter(io.Discard)})

			var berr RuntimeBuildError
			if !assert.ErrorAs(t, err, &berr) {
				return
			}
			assert.ErrorIs(t, berr, errNilRuntime)
		})
	})

	t.Run("will return a RuntimeRunError", func(t *testing.T) {
		t.Run("if the runtime panics", func(t *testing.T) {
			resetGlobals(t)

			b := RuntimeBuilderFunc(func(ctx context.Context, t *Telemetry) (Runtime, error) {
				return RuntimeFunc(func(ctx context.Context) error {
					panic("boom")
				}), nil
			})

			err := run(context.Background(), b, nil, []Option{LogWriter(io.Discard)})

			var rerr RuntimeRunError
			if !assert.ErrorAs(t, err, &rerr) {
				return
			}
			var perr try.PanicError
			if !assert.ErrorAs(t, err, &perr) {
				return
			}
			assert.Equal(t, "boom", perr.Value)
		})
	})

	t.Run("will give the runtime the initialized telemetry", func(t *testing.T) {
		resetGlobals(t)

		var got *Telemetry
		b := RuntimeBuilderFunc(func(ctx context.Context, t *Telemetry) (Runtime, error) {
			got = t
			return RuntimeFunc(func(ctx context.Context) error { return nil }), nil
		})

		err := run(context.Background(), b, []config.Source{config.Map{"name": "svc"}}, []Option{LogWriter(io.Discard)})
		if !assert.Nil(t, err) {
			return
		}
		if !assert.NotNil(t, got) {
			return
		}
		assert.NotNil(t, got.Factory)

		name, _ := ComponentName()
		assert.Equal(t, "svc", name)
	})
}

func TestMulti(t *testing.T) {
	t.Run("will run every runtime", func(t *testing.T) {
		var count atomic.Int32
		rt := RuntimeFunc(func(ctx context.Context) error {
			count.Add(1)
			return nil
		})

		err := Multi(rt, rt, rt).Run(context.Background())
		if !assert.Nil(t, err) {
			return
		}
		assert.Equal(t, int32(3), count.Load())
	})

	t.Run("will cancel the others", func(t *testing.T) {
		t.Run("if one runtime fails", func(t *testing.T) {
			runErr := errors.New("failed")
			failing := RuntimeFunc(func(ctx context.Context) error {
				return runErr
			})
			waiting := RuntimeFunc(func(ctx context.Context) error {
				<-ctx.Done()
				return nil
			})

			err := Multi(waiting, failing).Run(context.Background())
			assert.ErrorIs(t, err, runErr)
		})
	})
}

func TestApp_Run(t *testing.T) {
	t.Run("will read the config file named by the flag", func(t *testing.T) {
		resetGlobals(t)

		dir := t.TempDir()
		path := filepath.Join(dir, "config.yaml")
		err := os.WriteFile(path, []byte("name: from-file\nlog_format: json\n"), 0o600)
		if !assert.Nil(t, err) {
			return
		}

		var ran atomic.Bool
		app := NewApp(
			Name("app"),
			InitOptions(LogWriter(io.Discard)),
			WithRuntimeBuilderFunc(func(ctx context.Context, t *Telemetry) (Runtime, error) {
				return RuntimeFunc(func(ctx context.Context) error {
					ran.Store(true)
					return nil
				}), nil
			}),
		)

		err = app.Run("--config", path)
		if !assert.Nil(t, err) {
			return
		}
		assert.True(t, ran.Load())

		name, _ := ComponentName()
		assert.Equal(t, "from-file", name)
	})

	t.Run("will default the component name to the app name", func(t *testing.T) {
		resetGlobals(t)

		app := NewApp(
			Name("app"),
			InitOptions(LogWriter(io.Discard)),
		)

		err := app.Run()
		if !assert.Nil(t, err) {
			return
		}

		name, _ := ComponentName()
		assert.Equal(t, "app", name)
	})

	t.Run("will return a ConfigReadError", func(t *testing.T) {
		t.Run("if the config file does not exist", func(t *testing.T) {
			resetGlobals(t)

			app := NewApp(Name("app"), InitOptions(LogWriter(io.Discard)))

			err := app.Run("--config", filepath.Join(t.TempDir(), "missing.yaml"))

			var rerr ConfigReadError
			assert.ErrorAs(t, err, &rerr)
		})

		t.Run("if a registered source fails", func(t *testing.T) {
			resetGlobals(t)

			app := NewApp(
				Name("app"),
				ConfigSource(config.FromYaml(strings.NewReader("name: ["))),
			)

			err := app.Run()

			var rerr ConfigReadError
			assert.ErrorAs(t, err, &rerr)
		})
	})
}
