// Copyright (c) 2023 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package otelconfig

import (
	"context"

	texporter "github.com/GoogleCloudPlatform/opentelemetry-operations-go/exporter/trace"
	"go.opentelemetry.io/contrib/detectors/gcp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"google.golang.org/api/option"
)

// GoogleCloudConfig is the config for the Google Cloud Initializer.
type GoogleCloudConfig struct {
	ProjectId string
}

// GoogleCloud returns an Initializer for exporting traces directly to Cloud Trace.
// An empty projectId lets the exporter discover it from the environment.
func GoogleCloud(projectId string) Initializer {
	return GoogleCloudConfig{
		ProjectId: projectId,
	}
}

// Init implements the Initializer interface.
func (cfg GoogleCloudConfig) Init(_ context.Context) (sdktrace.SpanExporter, error) {
	opts := []texporter.Option{
		texporter.WithTraceClientOptions([]option.ClientOption{option.WithTelemetryDisabled()}),
	}
	if cfg.ProjectId != "" {
		opts = append(opts, texporter.WithProjectID(cfg.ProjectId))
	}
	exporter, err := texporter.New(opts...)
	if err != nil {
		return nil, err
	}
	return exporter, nil
}

// Detectors implements the Detector interface.
func (cfg GoogleCloudConfig) Detectors() []resource.Detector {
	return []resource.Detector{gcp.NewDetector()}
}
