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
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	"github.com/agentdesk/agentdesk/internal/tracing/export"
)

// Provider owns the SDK providers installed by Setup.
type Provider struct {
	tp *sdktrace.TracerProvider
	mp *sdkmetric.MeterProvider
}

// Setup installs the W3C propagator and, as configured, a global tracer
// provider exporting through cfg.Exporter and a global meter provider read
// by Prometheus. With neither enabled it returns a Provider whose methods
// are no-ops, and spans stay on the default no-op provider.
func Setup(ctx context.Context, cfg Config, opts ...sdktrace.TracerProviderOption) (*Provider, error) {
	otel.SetTextMapPropagator(W3CPropagator())

	p := &Provider{}
	if !cfg.Enabled && !cfg.Metrics {
		return p, nil
	}

	res, err := newResource(cfg)
	if err != nil {
		return nil, err
	}

	if cfg.Enabled {
		exporter, err := export.New(ctx, cfg.Exporter)
		if err != nil {
			return nil, err
		}

		// Prepend defaults so callers can override them.
		allOpts := append([]sdktrace.TracerProviderOption{
			sdktrace.WithResource(res),
			sdktrace.WithSampler(NewSampler(cfg.SampleRate, cfg.AlwaysSampleErrors)),
			sdktrace.WithBatcher(exporter),
		}, opts...)

		p.tp = sdktrace.NewTracerProvider(allOpts...)
		otel.SetTracerProvider(p.tp)
	}

	if cfg.Metrics {
		reg := cfg.Registerer
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		promExporter, err := otelprom.New(otelprom.WithRegisterer(reg))
		if err != nil {
			_ = p.Shutdown(ctx)
			return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
		}
		p.mp = sdkmetric.NewMeterProvider(
			sdkmetric.WithResource(res),
			sdkmetric.WithReader(promExporter),
		)
		otel.SetMeterProvider(p.mp)
	}

	return p, nil
}

func newResource(cfg Config) (*resource.Resource, error) {
	// No schema URL, so the merge with the default resource cannot conflict.
	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			"",
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(cfg.ServiceVersion),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}
	return res, nil
}

// Shutdown flushes any pending spans and releases resources.
func (p *Provider) Shutdown(ctx context.Context) error {
	var errs []error
	if p.tp != nil {
		errs = append(errs, p.tp.Shutdown(ctx))
	}
	if p.mp != nil {
		errs = append(errs, p.mp.Shutdown(ctx))
	}
	return errors.Join(errs...)
}

// ForceFlush exports all pending spans synchronously.
func (p *Provider) ForceFlush(ctx context.Context) error {
	if p.tp == nil {
		return nil
	}
	return p.tp.ForceFlush(ctx)
}

// TracingEnabled reports whether Setup installed a tracer provider.
func (p *Provider) TracingEnabled() bool {
	return p.tp != nil
}
