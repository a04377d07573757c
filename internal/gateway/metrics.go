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

package gateway

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	agenterrors "github.com/agentdesk/agentdesk/pkg/errors"
)

var (
	requestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agentdesk_gateway_requests_total",
			Help: "Total gateway requests by method and outcome",
		},
		[]string{"method", "status"},
	)

	requestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "agentdesk_gateway_request_duration_seconds",
			Help:    "Gateway request latency in seconds",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 16),
		},
		[]string{"method"},
	)

	pendingRequests = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "agentdesk_gateway_pending_requests",
		Help: "Requests currently awaiting a gateway response",
	})

	connectsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agentdesk_gateway_connects_total",
			Help: "Gateway connection attempts by result",
		},
		[]string{"result"},
	)

	framesDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agentdesk_gateway_frames_dropped_total",
			Help: "Inbound frames dropped by reason",
		},
		[]string{"reason"},
	)

	eventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agentdesk_gateway_events_total",
			Help: "Inbound gateway events by name",
		},
		[]string{"event"},
	)

	listenerPanics = promauto.NewCounter(prometheus.CounterOpts{
		Name: "agentdesk_gateway_listener_panics_total",
		Help: "Event listeners that panicked during dispatch",
	})

	chatStreamsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agentdesk_gateway_chat_streams_total",
			Help: "Aggregated chat streams by outcome",
		},
		[]string{"outcome"},
	)
)

// recordRequest records a completed request.
func recordRequest(method string, err error, duration time.Duration) {
	requestsTotal.WithLabelValues(method, outcome(err)).Inc()
	requestDuration.WithLabelValues(method).Observe(duration.Seconds())
}

// outcome maps an error to a bounded metric label.
func outcome(err error) string {
	if err == nil {
		return "ok"
	}
	var timeoutErr *agenterrors.TimeoutError
	var reqErr *RequestError
	var chatErr *ChatError
	switch {
	case errors.As(err, &timeoutErr):
		return "timeout"
	case errors.Is(err, ErrConnectionClosed):
		return "closed"
	case errors.Is(err, ErrChatAborted):
		return "aborted"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	case errors.As(err, &reqErr), errors.As(err, &chatErr):
		return "error"
	default:
		return "failed"
	}
}
