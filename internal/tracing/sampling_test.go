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
	"testing"

	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

func samplingParams(attrs ...attribute.KeyValue) sdktrace.SamplingParameters {
	return sdktrace.SamplingParameters{
		ParentContext: context.Background(),
		TraceID:       trace.TraceID{0x4b, 0xf9, 0x2f, 0x35, 0x77, 0xb3, 0x4d, 0xa6, 0xa3, 0xce, 0x92, 0x9d, 0x0e, 0x0e, 0x47, 0x36},
		Name:          "gateway.chat",
		Kind:          trace.SpanKindClient,
		Attributes:    attrs,
	}
}

func TestNewSampler(t *testing.T) {
	errorAttr := attribute.Bool("error", true)

	tests := []struct {
		name         string
		rate         float64
		sampleErrors bool
		attrs        []attribute.KeyValue
		want         sdktrace.SamplingDecision
	}{
		{name: "full rate", rate: 1.0, want: sdktrace.RecordAndSample},
		{name: "above one clamps", rate: 2.5, want: sdktrace.RecordAndSample},
		{name: "zero rate drops", rate: 0, want: sdktrace.Drop},
		{name: "zero rate drops errors when disabled", rate: 0, attrs: []attribute.KeyValue{errorAttr}, want: sdktrace.Drop},
		{name: "zero rate keeps errors", rate: 0, sampleErrors: true, attrs: []attribute.KeyValue{errorAttr}, want: sdktrace.RecordAndSample},
		{name: "error false is not an error", rate: 0, sampleErrors: true, attrs: []attribute.KeyValue{attribute.Bool("error", false)}, want: sdktrace.Drop},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sampler := NewSampler(tt.rate, tt.sampleErrors)
			got := sampler.ShouldSample(samplingParams(tt.attrs...))
			if got.Decision != tt.want {
				t.Errorf("decision = %v, want %v", got.Decision, tt.want)
			}
		})
	}
}

func TestNewSampler_Description(t *testing.T) {
	sampler := NewSampler(0.5, true)
	want := "ParentBased{root:ErrorAwareSampler{base=TraceIDRatioBased{0.5}}"
	if got := sampler.Description(); len(got) < len(want) || got[:len(want)] != want {
		t.Errorf("Description() = %q, want prefix %q", got, want)
	}
}
