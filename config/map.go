// Copyright (c) 2024 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package config

import "github.com/spf13/viper"

// Map is an ordinary map[string]any but implements the Source interface.
// Nested maps become nested keys.
type Map map[string]any

// Apply implements the Source interface.
func (m Map) Apply(v *viper.Viper) error {
	return v.MergeConfigMap(m)
}
