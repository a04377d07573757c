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
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

const (
	// ProtocolVersion is the highest gateway protocol version this client speaks.
	ProtocolVersion = 3

	// MinProtocolVersion is the lowest gateway protocol version this client accepts.
	MinProtocolVersion = 3
)

// FrameType tags every frame on the wire.
type FrameType string

const (
	// FrameRequest is a client to server request.
	FrameRequest FrameType = "req"

	// FrameResponse answers a request and echoes its id.
	FrameResponse FrameType = "res"

	// FrameEvent is an unsolicited server push.
	FrameEvent FrameType = "event"
)

// Gateway methods used by this client.
const (
	MethodConnect      = "connect"
	MethodChatSend     = "chat.send"
	MethodChatHistory  = "chat.history"
	MethodChatAbort    = "chat.abort"
	MethodSessionsList = "sessions.list"
)

// EventChat is the event name carrying streamed chat output.
const EventChat = "chat"

// ErrorShape is the error object of a failed response.
type ErrorShape struct {
	Code         string          `json:"code"`
	Message      string          `json:"message"`
	Details      json.RawMessage `json:"details,omitempty"`
	Retryable    bool            `json:"retryable,omitempty"`
	RetryAfterMs int64           `json:"retryAfterMs,omitempty"`
}

// requestFrame is the only frame the client writes.
type requestFrame struct {
	Type   FrameType       `json:"type"`
	ID     string          `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`
}

// wireFrame is the loose shape used only to decode inbound bytes before they
// are narrowed to a concrete frame variant.
type wireFrame struct {
	Type    FrameType       `json:"type"`
	ID      string          `json:"id,omitempty"`
	OK      *bool           `json:"ok,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *ErrorShape     `json:"error,omitempty"`
	Event   string          `json:"event,omitempty"`
	Seq     *int64          `json:"seq,omitempty"`
}

// inboundFrame is the closed set of frames the receive loop acts on:
// *responseFrame or *eventFrame.
type inboundFrame interface {
	frameType() FrameType
}

// responseFrame settles one pending request.
type responseFrame struct {
	ID     string
	OK     bool
	Result json.RawMessage
	Error  *ErrorShape
}

func (*responseFrame) frameType() FrameType { return FrameResponse }

// eventFrame carries a server push to the dispatcher.
type eventFrame struct {
	Event Event
}

func (*eventFrame) frameType() FrameType { return FrameEvent }

// Event is a server-pushed notification delivered to listeners.
type Event struct {
	// Name is the event name, e.g. "chat".
	Name string

	// Payload is the raw event payload.
	Payload json.RawMessage

	// Seq is the server sequence number, when the gateway sends one.
	Seq *int64
}

// decodeFrame narrows raw bytes to a frame variant. Anything that is not
// valid JSON or does not match a known shape returns an error wrapping
// ErrMalformedFrame and must be dropped by the caller.
func decodeFrame(data []byte) (inboundFrame, error) {
	var wf wireFrame
	if err := json.Unmarshal(data, &wf); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}

	switch wf.Type {
	case FrameResponse:
		if wf.ID == "" {
			return nil, fmt.Errorf("%w: response without id", ErrMalformedFrame)
		}
		if wf.OK == nil {
			return nil, fmt.Errorf("%w: response %s without ok", ErrMalformedFrame, wf.ID)
		}
		result := wf.Payload
		if len(result) == 0 {
			result = wf.Result
		}
		return &responseFrame{ID: wf.ID, OK: *wf.OK, Result: result, Error: wf.Error}, nil

	case FrameEvent:
		if wf.Event == "" {
			return nil, fmt.Errorf("%w: event without name", ErrMalformedFrame)
		}
		return &eventFrame{Event: Event{Name: wf.Event, Payload: wf.Payload, Seq: wf.Seq}}, nil

	case "":
		return nil, fmt.Errorf("%w: missing type", ErrMalformedFrame)

	default:
		return nil, fmt.Errorf("%w: unsupported frame type %q", ErrMalformedFrame, wf.Type)
	}
}

// newRequestID returns a UUIDv7: a millisecond timestamp followed by random
// bits, unique for the life of any connection.
func newRequestID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// encodeRequest builds the wire bytes for a request frame.
func encodeRequest(id, method string, params any) ([]byte, error) {
	frame := requestFrame{Type: FrameRequest, ID: id, Method: method}
	if params != nil {
		data, err := json.Marshal(params)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal %s params: %w", method, err)
		}
		frame.Params = data
	}
	return json.Marshal(frame)
}

// ClientInfo identifies this client to the gateway during the handshake.
type ClientInfo struct {
	ID       string `json:"id"`
	Version  string `json:"version"`
	Platform string `json:"platform"`
	Mode     string `json:"mode"`
}

// ConnectAuth carries the handshake credentials.
type ConnectAuth struct {
	Token string `json:"token,omitempty"`
}

// ConnectParams are the params of the "connect" request.
type ConnectParams struct {
	MinProtocol int          `json:"minProtocol"`
	MaxProtocol int          `json:"maxProtocol"`
	Client      ClientInfo   `json:"client"`
	Auth        *ConnectAuth `json:"auth,omitempty"`
}

// HelloResult is the result of a successful handshake.
type HelloResult struct {
	Type     string `json:"type,omitempty"`
	Protocol int    `json:"protocol,omitempty"`
	ConnID   string `json:"connId,omitempty"`
	Server   struct {
		Version string `json:"version,omitempty"`
		ConnID  string `json:"connId,omitempty"`
	} `json:"server"`
}

// ConnectionID returns the server-assigned connection id, wherever the
// gateway chose to put it.
func (h *HelloResult) ConnectionID() string {
	if h.Server.ConnID != "" {
		return h.Server.ConnID
	}
	return h.ConnID
}

// ChatState is the state of a streamed chat event.
type ChatState string

const (
	ChatStateDelta   ChatState = "delta"
	ChatStateFinal   ChatState = "final"
	ChatStateAborted ChatState = "aborted"
	ChatStateError   ChatState = "error"
)

// ChatEvent is the payload of a "chat" event.
type ChatEvent struct {
	RunID        string          `json:"runId"`
	SessionKey   string          `json:"sessionKey"`
	Seq          int64           `json:"seq"`
	State        ChatState       `json:"state"`
	Message      json.RawMessage `json:"message,omitempty"`
	ErrorMessage string          `json:"errorMessage,omitempty"`
	Usage        json.RawMessage `json:"usage,omitempty"`
	StopReason   string          `json:"stopReason,omitempty"`
}

// ChatSendParams are the params of "chat.send".
type ChatSendParams struct {
	SessionKey     string `json:"sessionKey"`
	Message        string `json:"message"`
	IdempotencyKey string `json:"idempotencyKey"`
}

// ChatHistoryParams are the params of "chat.history".
type ChatHistoryParams struct {
	SessionKey string `json:"sessionKey"`
	Limit      int    `json:"limit,omitempty"`
}

// ChatAbortParams are the params of "chat.abort".
type ChatAbortParams struct {
	SessionKey string `json:"sessionKey"`
	RunID      string `json:"runId,omitempty"`
}

// chatSendResult is the acknowledgement of "chat.send". The gateway assigns
// the run id here, before or after the first event for it.
type chatSendResult struct {
	RunID  string `json:"runId"`
	Status string `json:"status"`
}
