// Copyright (c) 2024 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package config

import (
	"bytes"
	"fmt"
	"io"

	"github.com/z5labs/stitch/internal/try"

	"github.com/spf13/viper"
)

// Encoded is a Source which merges config decoded from an io.Reader.
type Encoded struct {
	format string
	r      io.Reader
}

// FromYaml returns a Source which merges the YAML read from r. If r is
// also an io.Closer it is closed once read.
func FromYaml(r io.Reader) Encoded {
	return Encoded{format: "yaml", r: r}
}

// FromJson returns a Source which merges the JSON read from r. If r is
// also an io.Closer it is closed once read.
func FromJson(r io.Reader) Encoded {
	return Encoded{format: "json", r: r}
}

// DecodeError is returned when the content of an Encoded source
// does not match its format.
type DecodeError struct {
	Format string
	Cause  error
}

// Error implements the [builtin.error] interface.
func (e DecodeError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Format, e.Cause)
}

// Unwrap implements the interface used by errors.Is and errors.As.
func (e DecodeError) Unwrap() error {
	return e.Cause
}

// Apply implements the Source interface.
func (src Encoded) Apply(v *viper.Viper) (err error) {
	defer try.Close(&err, src.r)

	b, err := io.ReadAll(src.r)
	if err != nil {
		return err
	}

	v.SetConfigType(src.format)
	if err := v.MergeConfig(bytes.NewReader(b)); err != nil {
		return DecodeError{Format: src.format, Cause: err}
	}
	return nil
}
