// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package tracing

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/agentdesk/agentdesk/internal/tracing/export"
)

// Config holds observability configuration.
type Config struct {
	// Enabled controls whether spans are recorded and exported.
	Enabled bool

	// Metrics installs the meter provider that backs HTTP server metrics.
	Metrics bool

	// ServiceName identifies this service in traces.
	ServiceName string

	// ServiceVersion is the application version.
	ServiceVersion string

	// Exporter selects where spans go.
	Exporter export.Config

	// SampleRate is the fraction of traces to sample (0.0 - 1.0).
	SampleRate float64

	// AlwaysSampleErrors samples root spans flagged as errors at start.
	AlwaysSampleErrors bool

	// Registerer receives the OpenTelemetry Prometheus collector.
	// Default: prometheus.DefaultRegisterer
	Registerer prometheus.Registerer
}

// DefaultConfig returns configuration with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Enabled:            false, // Opt-in
		ServiceName:        "agentdesk",
		ServiceVersion:     "unknown",
		Exporter:           export.Config{Type: export.TypeConsole},
		SampleRate:         1.0,
		AlwaysSampleErrors: true,
	}
}
