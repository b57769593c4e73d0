// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package try turns panics and deferred close failures into errors so that
// runtimes can log them from inside the span they occurred in.
package try

import (
	"errors"
	"fmt"
	"io"
)

// PanicError is returned in place of a panic caught by Recover.
type PanicError struct {
	Value any
}

// Error implements the [builtin.error] interface.
func (e PanicError) Error() string {
	return fmt.Sprintf("recovered from panic: %v", e.Value)
}

// Unwrap returns the panic value when it is an error and nil otherwise.
func (e PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}

// CloseError is returned when a deferred Close fails.
type CloseError struct {
	Cause error
}

// Error implements the [builtin.error] interface.
func (e CloseError) Error() string {
	return fmt.Sprintf("failed to close: %s", e.Cause)
}

// Unwrap implements the interface used by errors.Is and errors.As.
func (e CloseError) Unwrap() error {
	return e.Cause
}

// Recover must be called directly by a defer statement.
func Recover(err *error) {
	if r := recover(); r != nil {
		join(err, PanicError{Value: r})
	}
}

// Close closes v, if it is an io.Closer, and records a failure on err.
// It is meant to be deferred.
func Close(err *error, v any) {
	c, ok := v.(io.Closer)
	if !ok {
		return
	}
	if cerr := c.Close(); cerr != nil {
		join(err, CloseError{Cause: cerr})
	}
}

func join(dst *error, err error) {
	if *dst == nil {
		*dst = err
		return
	}
	*dst = errors.Join(*dst, err)
}
