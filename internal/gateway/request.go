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
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/agentdesk/agentdesk/internal/log"
	agenterrors "github.com/agentdesk/agentdesk/pkg/errors"
)

// RequestOption customizes a single Request call.
type RequestOption func(*requestOptions)

type requestOptions struct {
	timeout time.Duration

	// superseded reports that the caller no longer needs the result, so a
	// cancellation is not a failure.
	superseded func() bool
}

// WithTimeout overrides the client's RequestTimeout for one call. A
// non-positive value disables the per-call timer; ctx still applies.
func WithTimeout(d time.Duration) RequestOption {
	return func(o *requestOptions) {
		o.timeout = d
	}
}

// whenSuperseded marks a call whose cancellation is expected once done
// reports true. Such a cancellation is neither counted nor logged as a
// failed request.
func whenSuperseded(done func() bool) RequestOption {
	return func(o *requestOptions) {
		o.superseded = done
	}
}

// Request connects if needed, sends method with params and waits for the
// correlated response. On success the result payload is returned exactly as
// the gateway sent it.
//
// The call fails with a *RequestError when the gateway answers ok:false, a
// *errors.TimeoutError when the timeout expires first, and an error wrapping
// ErrConnectionClosed when the connection drops while waiting. In every
// case the pending entry is removed before Request returns.
func (c *Client) Request(ctx context.Context, method string, params any, opts ...RequestOption) (json.RawMessage, error) {
	o := requestOptions{timeout: c.config.RequestTimeout}
	for _, opt := range opts {
		opt(&o)
	}

	ctx, span := c.tracer.Start(ctx, "gateway."+method,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("rpc.method", method)),
	)
	defer span.End()

	start := time.Now()
	payload, err := c.request(ctx, method, params, o.timeout)
	duration := time.Since(start)

	if err != nil && o.superseded != nil && errors.Is(err, context.Canceled) && o.superseded() {
		span.SetAttributes(attribute.Bool("gateway.superseded", true))
		return nil, err
	}
	recordRequest(method, err, duration)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		c.logger.Debug("gateway request failed",
			log.MethodKey, method,
			log.DurationKey, duration.Milliseconds(),
			"error", err)
		return nil, err
	}
	span.SetStatus(codes.Ok, "")
	return payload, nil
}

func (c *Client) request(ctx context.Context, method string, params any, timeout time.Duration) (json.RawMessage, error) {
	if err := c.Connect(ctx); err != nil {
		return nil, err
	}
	s := c.current()
	if s == nil {
		return nil, fmt.Errorf("%s: %w", method, ErrConnectionClosed)
	}
	return s.call(ctx, method, params, timeout)
}

// call sends one request on s and waits for it to settle. Exactly one of
// three paths settles a call: the response, the close sweep, or this
// function giving up. Giving up only counts if remove wins; otherwise the
// result already on the channel is returned.
func (s *session) call(ctx context.Context, method string, params any, timeout time.Duration) (json.RawMessage, error) {
	id := newRequestID()
	data, err := encodeRequest(id, method, params)
	if err != nil {
		return nil, err
	}

	call, err := s.pending.add(id, method)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", method, err)
	}

	if err := s.transport.WriteMessage(data); err != nil {
		if s.pending.remove(id) {
			return nil, fmt.Errorf("%s: %w: %v", method, ErrConnectionClosed, err)
		}
		res := <-call.ch
		return res.payload, res.err
	}

	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	select {
	case res := <-call.ch:
		return res.payload, res.err

	case <-expired:
		if s.pending.remove(id) {
			return nil, &agenterrors.TimeoutError{
				Operation: "gateway request " + method,
				Duration:  timeout,
			}
		}

	case <-ctx.Done():
		if s.pending.remove(id) {
			return nil, ctx.Err()
		}
	}

	res := <-call.ch
	return res.payload, res.err
}

// ChatHistory returns the transcript of sessionKey verbatim. A limit of zero
// lets the gateway choose.
func (c *Client) ChatHistory(ctx context.Context, sessionKey string, limit int) (json.RawMessage, error) {
	if sessionKey == "" {
		return nil, &agenterrors.ValidationError{Field: "sessionKey", Message: "must not be empty"}
	}
	return c.Request(ctx, MethodChatHistory, ChatHistoryParams{SessionKey: sessionKey, Limit: limit})
}

// ChatAbort asks the gateway to stop the active run of sessionKey. An empty
// runID aborts whatever run is active. The result is returned verbatim.
func (c *Client) ChatAbort(ctx context.Context, sessionKey, runID string) (json.RawMessage, error) {
	if sessionKey == "" {
		return nil, &agenterrors.ValidationError{Field: "sessionKey", Message: "must not be empty"}
	}
	return c.Request(ctx, MethodChatAbort, ChatAbortParams{SessionKey: sessionKey, RunID: runID})
}

// SessionsList returns the gateway's session list verbatim.
func (c *Client) SessionsList(ctx context.Context) (json.RawMessage, error) {
	return c.Request(ctx, MethodSessionsList, struct{}{})
}
