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
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"

	"github.com/agentdesk/agentdesk/internal/gateway/gatewaytest"
)

func newRecordedClient(t *testing.T, srv *gatewaytest.Server) (*Client, *tracetest.SpanRecorder) {
	t.Helper()
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	client := newTestClient(t, srv, func(c *Config) {
		c.TracerProvider = tp
	})
	return client, recorder
}

func spanAttr(span sdktrace.ReadOnlySpan, key attribute.Key) (attribute.Value, bool) {
	for _, kv := range span.Attributes() {
		if kv.Key == key {
			return kv.Value, true
		}
	}
	return attribute.Value{}, false
}

func TestRequest_RecordsClientSpan(t *testing.T) {
	srv := gatewaytest.NewServer(t)
	srv.Handle(MethodSessionsList, func(c *gatewaytest.Conn, req *gatewaytest.Request) {
		_ = c.Respond(req.ID, map[string]any{"sessions": []any{}})
	})
	client, recorder := newRecordedClient(t, srv)

	_, err := client.SessionsList(context.Background())
	require.NoError(t, err)

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	span := spans[0]
	assert.Equal(t, "gateway.sessions.list", span.Name())
	assert.Equal(t, trace.SpanKindClient, span.SpanKind())
	assert.Equal(t, codes.Ok, span.Status().Code)

	method, ok := spanAttr(span, "rpc.method")
	require.True(t, ok)
	assert.Equal(t, MethodSessionsList, method.AsString())
}

func TestRequest_SpanRecordsError(t *testing.T) {
	srv := gatewaytest.NewServer(t)
	srv.Handle(MethodChatHistory, func(c *gatewaytest.Conn, req *gatewaytest.Request) {
		_ = c.Fail(req.ID, "NOT_FOUND", "no such session")
	})
	client, recorder := newRecordedClient(t, srv)

	_, err := client.ChatHistory(context.Background(), testSession, 0)
	require.Error(t, err)

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Error, spans[0].Status().Code)
	assert.Contains(t, spans[0].Status().Description, "no such session")
	require.NotEmpty(t, spans[0].Events())
	assert.Equal(t, "exception", spans[0].Events()[0].Name)
}

func TestChatSend_SpanParentsRequest(t *testing.T) {
	srv := gatewaytest.NewServer(t)
	srv.Handle(MethodChatSend, scriptedChat(
		chatFrame(testSession, "run-1", ChatStateFinal, "done"),
	))
	client, recorder := newRecordedClient(t, srv)

	_, err := client.ChatSend(context.Background(), testSession, "hi")
	require.NoError(t, err)

	require.Eventually(t, func() bool { return len(recorder.Ended()) == 2 }, time.Second, 10*time.Millisecond)

	var chat, send sdktrace.ReadOnlySpan
	for _, s := range recorder.Ended() {
		switch s.Name() {
		case "gateway.chat":
			chat = s
		case "gateway.chat.send":
			send = s
		}
	}
	require.NotNil(t, chat)
	require.NotNil(t, send)
	assert.Equal(t, chat.SpanContext().SpanID(), send.Parent().SpanID())

	runID, ok := spanAttr(chat, "gateway.run_id")
	require.True(t, ok)
	assert.Equal(t, "run-1", runID.AsString())
}

func TestChatSend_FinalBeforeAckIsNotAFailure(t *testing.T) {
	srv := gatewaytest.NewServer(t)
	acked := make(chan struct{})
	srv.Handle(MethodChatSend, func(c *gatewaytest.Conn, req *gatewaytest.Request) {
		_ = c.Event(EventChat, chatFrame(testSession, "run-1", ChatStateFinal, "done"))
		go func() {
			defer close(acked)
			time.Sleep(100 * time.Millisecond)
			_ = c.Respond(req.ID, map[string]any{"runId": "run-1", "status": "started"})
		}()
	})
	client, recorder := newRecordedClient(t, srv)

	canceled := requestsTotal.WithLabelValues(MethodChatSend, "canceled")
	before := testutil.ToFloat64(canceled)

	resp, err := client.ChatSend(context.Background(), testSession, "hi")
	require.NoError(t, err)
	assert.Equal(t, "done", resp.Response)

	select {
	case <-acked:
	case <-time.After(2 * time.Second):
		t.Fatal("ack never sent")
	}
	assert.Equal(t, before, testutil.ToFloat64(canceled))
	assert.Equal(t, 0, client.Pending())

	var chat, send sdktrace.ReadOnlySpan
	for _, s := range recorder.Ended() {
		switch s.Name() {
		case "gateway.chat":
			chat = s
		case "gateway.chat.send":
			send = s
		}
	}
	require.NotNil(t, chat)
	require.NotNil(t, send, "chat.send span must end before ChatSend returns")
	assert.Equal(t, chat.SpanContext().SpanID(), send.Parent().SpanID())
	assert.False(t, send.EndTime().After(chat.EndTime()))
	assert.NotEqual(t, codes.Error, send.Status().Code)

	superseded, ok := spanAttr(send, "gateway.superseded")
	require.True(t, ok)
	assert.True(t, superseded.AsBool())
}
