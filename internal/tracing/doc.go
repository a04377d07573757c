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

/*
Package tracing wires OpenTelemetry into agentdesk.

Setup installs a global tracer provider that exports spans from the gateway
client and the chat proxy, plus a meter provider whose instruments are served
from the Prometheus registry next to the gateway metrics.

# Quick Start

	provider, err := tracing.Setup(ctx, tracing.Config{
	    Enabled:        true,
	    ServiceName:    "agentdesk",
	    ServiceVersion: version,
	    Exporter:       export.Config{Type: export.TypeOTLPHTTP, Endpoint: "localhost:4318"},
	    SampleRate:     0.25,
	})
	if err != nil {
	    return err
	}
	defer provider.Shutdown(context.Background())

# Spans

The gateway client opens a client span per request ("gateway.<method>") and
one per chat turn ("gateway.chat"). HTTPMiddleware opens the server span for
each proxy request and continues any W3C trace context the caller sent, so
a chat turn shows up as one trace from the HTTP edge to the gateway.

# Sampling

With a SampleRate below 1, traces are sampled by trace ID ratio. Spans that
carry error=true at start are always sampled when AlwaysSampleErrors is set.
*/
package tracing
