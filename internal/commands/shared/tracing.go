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

package shared

import (
	"context"
	"io"

	"github.com/agentdesk/agentdesk/internal/config"
	"github.com/agentdesk/agentdesk/internal/tracing"
	"github.com/agentdesk/agentdesk/internal/tracing/export"
)

// TracingConfig maps the tracing section of cfg onto a tracing.Config.
// Console spans are written to w. HTTP server metrics follow
// server.metrics_enabled so they land on the same /metrics endpoint.
func TracingConfig(cfg *config.Config, w io.Writer) tracing.Config {
	tc := tracing.DefaultConfig()
	tc.Enabled = cfg.Tracing.Enabled
	tc.Metrics = cfg.Server.MetricsEnabled
	tc.ServiceVersion = version
	tc.SampleRate = cfg.Tracing.SampleRate
	tc.Exporter = export.Config{
		Type:       cfg.Tracing.Exporter,
		Endpoint:   cfg.Tracing.Endpoint,
		Insecure:   cfg.Tracing.Insecure,
		CACertPath: cfg.Tracing.CACert,
		Headers:    cfg.Tracing.Headers,
		Writer:     w,
	}
	return tc
}

// SetupTracing installs the global tracer and meter providers for cfg.
func SetupTracing(ctx context.Context, cfg *config.Config, w io.Writer) (*tracing.Provider, error) {
	provider, err := tracing.Setup(ctx, TracingConfig(cfg, w))
	if err != nil {
		return nil, NewConfigError("failed to set up tracing", err)
	}
	return provider, nil
}
