// Copyright (c) 2023 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package health reports whether parts of a service are able to do work.
package health

import (
	"context"
	"sync/atomic"
)

// Metric represents anything that can report its health status.
type Metric interface {
	Healthy(context.Context) bool
}

// MetricFunc is a functional implementation of the Metric interface.
type MetricFunc func(context.Context) bool

// Healthy implements the Metric interface.
func (f MetricFunc) Healthy(ctx context.Context) bool {
	return f(ctx)
}

// Binary is a Metric which is either healthy or not. The zero value is healthy.
type Binary struct {
	unhealthy atomic.Bool
}

// MarkHealthy
func (m *Binary) MarkHealthy() {
	m.unhealthy.Store(false)
}

// MarkUnhealthy
func (m *Binary) MarkUnhealthy() {
	m.unhealthy.Store(true)
}

// Healthy implements the Metric interface.
func (m *Binary) Healthy(ctx context.Context) bool {
	return !m.unhealthy.Load()
}

// And returns a Metric which is only healthy while every one of metrics is.
func And(metrics ...Metric) Metric {
	return MetricFunc(func(ctx context.Context) bool {
		for _, metric := range metrics {
			if !metric.Healthy(ctx) {
				return false
			}
		}
		return true
	})
}
