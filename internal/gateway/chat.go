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
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/agentdesk/agentdesk/internal/log"
	agenterrors "github.com/agentdesk/agentdesk/pkg/errors"
)

// ChatResponse is the aggregated result of one chat run.
type ChatResponse struct {
	// Response is the full assistant text.
	Response string `json:"response"`

	SessionKey string `json:"sessionKey"`
	RunID      string `json:"runId,omitempty"`

	// Usage is the gateway's usage metadata, when the final frame carries it.
	Usage json.RawMessage `json:"usage,omitempty"`

	StopReason string `json:"stopReason,omitempty"`
}

// ChatSend sends message to sessionKey and waits for the streamed reply to
// finish. Deltas are concatenated; the final frame's own text wins when it
// has any.
//
// The wait is bounded by ChatTimeout independently of the chat.send request
// timeout. ChatSend fails with ErrSessionBusy if this client already has a
// chat in flight for sessionKey, with a *ChatError if the run ends in the
// error state, with ErrChatAborted if it is aborted, and with a
// *errors.TimeoutError if the stream stalls. The chat listener is removed
// before ChatSend returns on every path.
func (c *Client) ChatSend(ctx context.Context, sessionKey, message string) (*ChatResponse, error) {
	if sessionKey == "" {
		return nil, &agenterrors.ValidationError{
			Field:      "sessionKey",
			Message:    "must not be empty",
			Suggestion: "Pass the session to send to, e.g. agent:main:main",
		}
	}
	if !c.claimSession(sessionKey) {
		return nil, fmt.Errorf("%w: %s", ErrSessionBusy, sessionKey)
	}
	defer c.releaseSession(sessionKey)

	ctx, span := c.tracer.Start(ctx, "gateway.chat",
		trace.WithAttributes(attribute.String("gateway.session_key", sessionKey)))
	defer span.End()

	logger := log.WithSession(c.logger, sessionKey)
	start := time.Now()

	resp, err := c.chatSend(ctx, sessionKey, message)
	chatStreamsTotal.WithLabelValues(outcome(err)).Inc()

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		kind, retryable := agenterrors.Classify(err)
		logger.Warn("chat failed",
			"error", err,
			"error_type", kind,
			"retryable", retryable,
			log.DurationKey, time.Since(start).Milliseconds())
		return nil, err
	}
	span.SetAttributes(attribute.String("gateway.run_id", resp.RunID))
	logger.Debug("chat completed",
		log.RunIDKey, resp.RunID,
		"chars", len(resp.Response),
		log.DurationKey, time.Since(start).Milliseconds())
	return resp, nil
}

func (c *Client) chatSend(ctx context.Context, sessionKey, message string) (*ChatResponse, error) {
	if err := c.Connect(ctx); err != nil {
		return nil, err
	}
	sess := c.current()
	if sess == nil {
		return nil, fmt.Errorf("%s: %w", MethodChatSend, ErrConnectionClosed)
	}

	stream := newChatStream(sessionKey)
	unsubscribe := c.On(EventChat, stream.handle)
	defer unsubscribe()

	// The chat.send call is waited for on every path, so its span ends
	// inside the chat span. When the stream finishes before the ack, the
	// call is cancelled as superseded.
	sendCtx, cancel := context.WithCancel(ctx)
	sendDone := make(chan struct{})
	defer func() {
		cancel()
		<-sendDone
	}()

	sendErr := make(chan error, 1)
	go func() {
		defer close(sendDone)
		payload, err := c.Request(sendCtx, MethodChatSend, ChatSendParams{
			SessionKey:     sessionKey,
			Message:        message,
			IdempotencyKey: uuid.NewString(),
		}, whenSuperseded(stream.isFinished))
		if err != nil {
			sendErr <- err
			return
		}
		var ack chatSendResult
		if err := json.Unmarshal(payload, &ack); err == nil && ack.RunID != "" {
			stream.lockRun(ack.RunID)
		}
	}()

	timer := time.NewTimer(c.config.ChatTimeout)
	defer timer.Stop()

	select {
	case <-stream.done:
		return stream.result()
	case err := <-sendErr:
		return nil, err
	case <-sess.done:
		return nil, fmt.Errorf("%s: %w", MethodChatSend, ErrConnectionClosed)
	case <-timer.C:
		return nil, &agenterrors.TimeoutError{
			Operation: "gateway chat stream",
			Duration:  c.config.ChatTimeout,
		}
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// claimSession marks sessionKey as having a chat in flight. It reports
// false if one already is.
func (c *Client) claimSession(sessionKey string) bool {
	c.chatMu.Lock()
	defer c.chatMu.Unlock()
	if _, busy := c.activeChats[sessionKey]; busy {
		return false
	}
	c.activeChats[sessionKey] = struct{}{}
	return true
}

func (c *Client) releaseSession(sessionKey string) {
	c.chatMu.Lock()
	delete(c.activeChats, sessionKey)
	c.chatMu.Unlock()
}

// chatStream reduces the chat events of one session into a ChatResponse.
// Once a run id is known, frames for other runs are ignored.
type chatStream struct {
	sessionKey string
	done       chan struct{}

	mu       sync.Mutex
	runID    string
	buf      strings.Builder
	finished bool
	resp     *ChatResponse
	err      error
}

func newChatStream(sessionKey string) *chatStream {
	return &chatStream{sessionKey: sessionKey, done: make(chan struct{})}
}

// lockRun pins the stream to the run id acknowledged by chat.send. Text
// buffered from a different run is discarded.
func (s *chatStream) lockRun(runID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finished || s.runID == runID {
		return
	}
	if s.runID != "" {
		s.buf.Reset()
	}
	s.runID = runID
}

// handle is the chat event listener.
func (s *chatStream) handle(ev Event) {
	var ce ChatEvent
	if err := json.Unmarshal(ev.Payload, &ce); err != nil {
		return
	}
	if ce.SessionKey != s.sessionKey {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.finished {
		return
	}
	if ce.RunID != "" {
		if s.runID == "" {
			s.runID = ce.RunID
		} else if ce.RunID != s.runID {
			return
		}
	}

	switch ce.State {
	case ChatStateDelta:
		s.buf.WriteString(ExtractText(ce.Message))

	case ChatStateFinal:
		text := ExtractText(ce.Message)
		if text == "" {
			text = s.buf.String()
		}
		s.finish(&ChatResponse{
			Response:   text,
			SessionKey: s.sessionKey,
			RunID:      s.runID,
			Usage:      ce.Usage,
			StopReason: ce.StopReason,
		}, nil)

	case ChatStateError:
		msg := ce.ErrorMessage
		if msg == "" {
			msg = "chat failed"
		}
		s.finish(nil, &ChatError{SessionKey: s.sessionKey, RunID: s.runID, Message: msg})

	case ChatStateAborted:
		s.finish(nil, fmt.Errorf("%w: session %s", ErrChatAborted, s.sessionKey))
	}
}

// finish records the outcome. Caller holds s.mu.
func (s *chatStream) finish(resp *ChatResponse, err error) {
	s.finished = true
	s.resp = resp
	s.err = err
	close(s.done)
}

// isFinished reports whether a terminal frame has been seen.
func (s *chatStream) isFinished() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.finished
}

func (s *chatStream) result() (*ChatResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resp, s.err
}
