// Copyright (c) 2024 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package config

import (
	"os"
	"strings"

	"github.com/spf13/viper"
)

// Env represents a Source where its underlying values
// are extracted from environment variables.
type Env struct {
	prefix  string
	environ func() []string
}

// FromEnv returns a Source which applies every environment variable
// starting with prefix followed by an underscore. The prefix is removed
// and the rest of the name is lower cased, so with the prefix "STITCH"
// the variable STITCH_LOG_LEVEL sets the key "log_level".
func FromEnv(prefix string) Env {
	return Env{
		prefix:  strings.ToUpper(prefix) + "_",
		environ: os.Environ,
	}
}

// Apply implements the Source interface.
func (src Env) Apply(v *viper.Viper) error {
	m := make(map[string]any)
	for _, pair := range src.environ() {
		k, val, ok := strings.Cut(pair, "=")
		if !ok {
			continue
		}
		name, ok := strings.CutPrefix(k, src.prefix)
		if !ok || name == "" {
			continue
		}
		m[strings.ToLower(name)] = val
	}
	if len(m) == 0 {
		return nil
	}
	return v.MergeConfigMap(m)
}
