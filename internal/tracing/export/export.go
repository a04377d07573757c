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

// Package export builds span exporters for external observability platforms.
package export

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"go.opentelemetry.io/otel/sdk/trace"
)

// Exporter types accepted by New.
const (
	TypeConsole  = "console"
	TypeOTLP     = "otlp"
	TypeOTLPHTTP = "otlp-http"
)

// Config selects and configures a span exporter.
type Config struct {
	// Type is the exporter type: "console", "otlp" (gRPC), or "otlp-http".
	Type string

	// Endpoint is the collector address, e.g. "localhost:4317".
	Endpoint string

	// Insecure disables TLS (for development only).
	Insecure bool

	// CACertPath, if set, verifies the collector against this CA.
	CACertPath string

	// Headers are sent with every export request.
	Headers map[string]string

	// Timeout bounds each export call. Zero uses the exporter default.
	Timeout time.Duration

	// Writer is the console exporter's destination (default: os.Stderr).
	Writer io.Writer
}

// New creates the span exporter cfg describes.
func New(ctx context.Context, cfg Config) (trace.SpanExporter, error) {
	switch cfg.Type {
	case TypeConsole, "":
		w := cfg.Writer
		if w == nil {
			w = os.Stderr
		}
		return NewConsoleExporter(ConsoleConfig{Writer: w})
	case TypeOTLP:
		tlsCfg, err := tlsConfig(cfg)
		if err != nil {
			return nil, err
		}
		return NewOTLPExporter(ctx, OTLPConfig{
			Endpoint:  cfg.Endpoint,
			Insecure:  cfg.Insecure,
			TLSConfig: tlsCfg,
			Headers:   cfg.Headers,
			Timeout:   cfg.Timeout,
		})
	case TypeOTLPHTTP:
		tlsCfg, err := tlsConfig(cfg)
		if err != nil {
			return nil, err
		}
		return NewOTLPHTTPExporter(ctx, OTLPHTTPConfig{
			Endpoint:  cfg.Endpoint,
			Insecure:  cfg.Insecure,
			TLSConfig: tlsCfg,
			Headers:   cfg.Headers,
			Timeout:   cfg.Timeout,
		})
	default:
		return nil, fmt.Errorf("unknown exporter type %q", cfg.Type)
	}
}
