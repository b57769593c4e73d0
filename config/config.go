// Copyright (c) 2024 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package config reads configuration from layered sources into a struct.
//
// Sources are applied in order and later sources override earlier ones.
// Struct fields are matched using the "config" tag and any field whose type
// implements encoding.TextUnmarshaler is decoded from its string value.
package config

import (
	"encoding"
	"errors"
	"fmt"
	"reflect"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// Source defines valid config sources as those who can
// merge themselves into a viper key value store.
type Source interface {
	Apply(*viper.Viper) error
}

// SourceFunc is a functional implementation of the Source interface.
type SourceFunc func(*viper.Viper) error

// Apply implements the Source interface.
func (f SourceFunc) Apply(v *viper.Viper) error {
	return f(v)
}

// Manager holds the merged result of one or more sources.
type Manager struct {
	v *viper.Viper
}

// Read merges srcs, in order, into a single Manager.
func Read(srcs ...Source) (*Manager, error) {
	v := viper.New()
	for _, src := range srcs {
		err := src.Apply(v)
		if err != nil {
			return nil, err
		}
	}
	return &Manager{v: v}, nil
}

// Get returns the merged value for key, with nested keys separated by ".".
func (m *Manager) Get(key string) any {
	return m.v.Get(key)
}

// Unmarshal decodes the merged values into v, which must be a pointer to a struct.
func (m *Manager) Unmarshal(v any) error {
	return m.v.Unmarshal(
		v,
		viper.DecodeHook(composeDecodeHooks(
			textUnmarshalerHookFunc(),
			timeDurationHookFunc(),
		)),
		func(dc *mapstructure.DecoderConfig) {
			dc.TagName = "config"
		},
	)
}

var errInvalidDecodeCondition = errors.New("invalid decode condition")

// TypeCoercionError occurs when attempting to unmarshal a config
// value to a struct field whose type does not match the config
// value type, up to, coercion.
type TypeCoercionError struct {
	From  reflect.Type
	To    reflect.Type
	Cause error
}

// Error implements the error interface.
func (e TypeCoercionError) Error() string {
	return fmt.Sprintf("failed to coerce value from %s to %s: %s", e.From, e.To, e.Cause)
}

// Unwrap implements the implicit interface for usage with errors.Is and errors.As.
func (e TypeCoercionError) Unwrap() error {
	return e.Cause
}

func composeDecodeHooks(hs ...mapstructure.DecodeHookFuncType) mapstructure.DecodeHookFuncType {
	return func(f, t reflect.Type, data any) (any, error) {
		for _, h := range hs {
			v, err := h(f, t, data)
			if err == nil {
				return v, nil
			}
			if err == errInvalidDecodeCondition {
				continue
			}
			return nil, TypeCoercionError{
				From:  f,
				To:    t,
				Cause: err,
			}
		}
		return data, nil
	}
}

func textUnmarshalerHookFunc() mapstructure.DecodeHookFuncType {
	return func(f reflect.Type, t reflect.Type, data any) (any, error) {
		if f.Kind() != reflect.String {
			return nil, errInvalidDecodeCondition
		}
		result := reflect.New(t)
		u, ok := result.Interface().(encoding.TextUnmarshaler)
		if !ok {
			return nil, errInvalidDecodeCondition
		}
		err := u.UnmarshalText([]byte(reflect.ValueOf(data).String()))
		if err != nil {
			return nil, err
		}
		return result.Elem().Interface(), nil
	}
}

func timeDurationHookFunc() mapstructure.DecodeHookFuncType {
	return func(f reflect.Type, t reflect.Type, data any) (any, error) {
		if t != reflect.TypeOf(time.Duration(0)) {
			return nil, errInvalidDecodeCondition
		}

		switch f.Kind() {
		case reflect.String:
			return time.ParseDuration(reflect.ValueOf(data).String())
		case reflect.Int:
			return time.Duration(int64(data.(int))), nil
		default:
			return nil, errInvalidDecodeCondition
		}
	}
}
