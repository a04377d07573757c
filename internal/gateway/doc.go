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
Package gateway is a client for the assistant gateway's WebSocket protocol.

One Client holds one persistent connection that many callers share. It dials
lazily, negotiates protocol version 3 with a single handshake even when many
callers race to connect, correlates requests with their responses, and fans
server events out to listeners.

# Overview

The client supports:

  - A versioned, token-authenticated handshake
  - Request/response messaging with correlation IDs and per-call timeouts
  - Named event subscriptions with unsubscribe functions
  - Aggregation of streamed chat deltas into one response

# Usage

	client := gateway.NewClient(&gateway.Config{
	    URL:    "ws://127.0.0.1:18789",
	    Token:  os.Getenv("AGENTDESK_GATEWAY_TOKEN"),
	    Logger: slog.Default(),
	})
	defer client.Close()

	resp, err := client.ChatSend(ctx, "agent:main:main", "hello")
	if err != nil {
	    return err
	}
	fmt.Println(resp.Response)

# Protocol

Every frame is a JSON text message tagged by "type":

	// Request
	{"type": "req", "id": "0190...", "method": "chat.send", "params": {...}}

	// Response
	{"type": "res", "id": "0190...", "ok": true, "payload": {...}}
	{"type": "res", "id": "0190...", "ok": false, "error": {"code": "...", "message": "..."}}

	// Event
	{"type": "event", "event": "chat", "payload": {...}, "seq": 42}

Inbound frames that fail to decode are dropped; the connection stays up.

# Failure Handling

A dropped connection fails every pending request with ErrConnectionClosed.
The client never reconnects on its own; the next call dials again. Errors
implement errors.ErrorClassifier so callers can decide between retrying and
falling back.
*/
package gateway
