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
	"errors"
	"fmt"
)

// kindError is a sentinel that also classifies itself.
type kindError struct {
	kind      string
	msg       string
	retryable bool
}

func (e *kindError) Error() string { return e.msg }

func (e *kindError) ErrorType() string { return e.kind }

func (e *kindError) IsRetryable() bool { return e.retryable }

var (
	// ErrConnectionClosed is returned to every pending request when the
	// transport closes, and to any request registered after that.
	ErrConnectionClosed error = &kindError{kind: "closed", msg: "gateway: connection closed", retryable: true}

	// ErrHandshakeRejected is wrapped by ConnectError when the gateway answers
	// the connect request with ok:false.
	ErrHandshakeRejected error = &kindError{kind: "handshake", msg: "gateway: handshake rejected"}

	// ErrUnsupportedProtocol is wrapped by ConnectError when the gateway
	// negotiates a protocol version outside the client's range.
	ErrUnsupportedProtocol error = &kindError{kind: "handshake", msg: "gateway: unsupported protocol version"}

	// ErrChatAborted is returned by ChatSend when the run ends in the
	// aborted state.
	ErrChatAborted error = &kindError{kind: "aborted", msg: "gateway: chat aborted"}

	// ErrSessionBusy is returned by ChatSend when the session already has a
	// chat in flight on this client.
	ErrSessionBusy error = &kindError{kind: "busy", msg: "gateway: session already has a chat in flight", retryable: true}

	// ErrMalformedFrame marks inbound bytes that could not be decoded.
	ErrMalformedFrame = errors.New("gateway: malformed frame")
)

// ConnectError reports a failed connection attempt: dial failure, handshake
// timeout, or handshake rejection.
type ConnectError struct {
	// URL is the gateway endpoint that was dialed.
	URL string

	// Cause is the underlying failure.
	Cause error
}

// Error implements the error interface.
func (e *ConnectError) Error() string {
	return fmt.Sprintf("gateway: connect to %s: %v", e.URL, e.Cause)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *ConnectError) Unwrap() error {
	return e.Cause
}

// ErrorType implements errors.ErrorClassifier.
func (e *ConnectError) ErrorType() string { return "connect" }

// IsRetryable implements errors.ErrorClassifier. A rejected handshake will be
// rejected again with the same credentials.
func (e *ConnectError) IsRetryable() bool {
	return !errors.Is(e.Cause, ErrHandshakeRejected) && !errors.Is(e.Cause, ErrUnsupportedProtocol)
}

// IsUserVisible implements errors.UserVisibleError.
func (e *ConnectError) IsUserVisible() bool { return true }

// UserMessage implements errors.UserVisibleError.
func (e *ConnectError) UserMessage() string {
	return "The assistant gateway is unreachable"
}

// Suggestion implements errors.UserVisibleError.
func (e *ConnectError) Suggestion() string {
	if errors.Is(e.Cause, ErrHandshakeRejected) {
		return "Check the gateway token (AGENTDESK_GATEWAY_TOKEN)"
	}
	return fmt.Sprintf("Check that the gateway is running at %s", e.URL)
}

// RequestError is a server-reported failure of a single request.
type RequestError struct {
	Method    string
	Code      string
	Message   string
	Details   json.RawMessage
	Retryable bool
}

// Error implements the error interface.
func (e *RequestError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("gateway: %s failed (%s): %s", e.Method, e.Code, e.Message)
	}
	return fmt.Sprintf("gateway: %s failed: %s", e.Method, e.Message)
}

// ErrorType implements errors.ErrorClassifier.
func (e *RequestError) ErrorType() string { return "request" }

// IsRetryable implements errors.ErrorClassifier using the gateway's hint.
func (e *RequestError) IsRetryable() bool { return e.Retryable }

// ChatError is returned by ChatSend when the run ends in the error state.
type ChatError struct {
	SessionKey string
	RunID      string

	// Message is the gateway's errorMessage, or a generic fallback.
	Message string
}

// Error implements the error interface.
func (e *ChatError) Error() string {
	return fmt.Sprintf("gateway: chat %s failed: %s", e.SessionKey, e.Message)
}

// ErrorType implements errors.ErrorClassifier.
func (e *ChatError) ErrorType() string { return "chat" }

// IsRetryable implements errors.ErrorClassifier.
func (e *ChatError) IsRetryable() bool { return false }

// toResult converts a response frame into the outcome delivered to the
// waiting caller.
func (f *responseFrame) toResult(method string) result {
	if f.OK {
		return result{payload: f.Result}
	}
	reqErr := &RequestError{Method: method, Message: "request failed"}
	if f.Error != nil {
		reqErr.Code = f.Error.Code
		reqErr.Details = f.Error.Details
		reqErr.Retryable = f.Error.Retryable
		if f.Error.Message != "" {
			reqErr.Message = f.Error.Message
		}
	}
	return result{err: reqErr}
}
