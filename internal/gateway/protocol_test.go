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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeFrame(t *testing.T) {
	t.Run("response with payload", func(t *testing.T) {
		frame, err := decodeFrame([]byte(`{"type":"res","id":"a1","ok":true,"payload":{"x":1}}`))
		require.NoError(t, err)

		res, ok := frame.(*responseFrame)
		require.True(t, ok)
		assert.Equal(t, "a1", res.ID)
		assert.True(t, res.OK)
		assert.Equal(t, `{"x":1}`, string(res.Result))
	})

	t.Run("response with result", func(t *testing.T) {
		frame, err := decodeFrame([]byte(`{"type":"res","id":"a2","ok":true,"result":[1,2]}`))
		require.NoError(t, err)
		assert.Equal(t, `[1,2]`, string(frame.(*responseFrame).Result))
	})

	t.Run("failed response", func(t *testing.T) {
		frame, err := decodeFrame([]byte(`{"type":"res","id":"a3","ok":false,"error":{"code":"BAD","message":"nope","retryable":true}}`))
		require.NoError(t, err)

		res := frame.(*responseFrame)
		assert.False(t, res.OK)
		require.NotNil(t, res.Error)
		assert.Equal(t, "BAD", res.Error.Code)
		assert.Equal(t, "nope", res.Error.Message)
		assert.True(t, res.Error.Retryable)
	})

	t.Run("event", func(t *testing.T) {
		frame, err := decodeFrame([]byte(`{"type":"event","event":"chat","payload":{"state":"delta"},"seq":7}`))
		require.NoError(t, err)

		ev, ok := frame.(*eventFrame)
		require.True(t, ok)
		assert.Equal(t, "chat", ev.Event.Name)
		assert.Equal(t, `{"state":"delta"}`, string(ev.Event.Payload))
		require.NotNil(t, ev.Event.Seq)
		assert.Equal(t, int64(7), *ev.Event.Seq)
	})

	malformed := []struct {
		name string
		data string
	}{
		{"not json", `not json`},
		{"truncated", `{"type":"res","id":`},
		{"missing type", `{"id":"a1","ok":true}`},
		{"unknown type", `{"type":"ping"}`},
		{"request echoed back", `{"type":"req","id":"a1","method":"connect"}`},
		{"response without id", `{"type":"res","ok":true}`},
		{"response without ok", `{"type":"res","id":"a1"}`},
		{"event without name", `{"type":"event","payload":{}}`},
	}
	for _, tt := range malformed {
		t.Run("malformed "+tt.name, func(t *testing.T) {
			frame, err := decodeFrame([]byte(tt.data))
			assert.Nil(t, frame)
			assert.True(t, errors.Is(err, ErrMalformedFrame), "got %v", err)
		})
	}
}

func TestEncodeRequest(t *testing.T) {
	data, err := encodeRequest("id-1", MethodChatHistory, ChatHistoryParams{SessionKey: "s1", Limit: 5})
	require.NoError(t, err)

	var frame map[string]any
	require.NoError(t, json.Unmarshal(data, &frame))
	assert.Equal(t, "req", frame["type"])
	assert.Equal(t, "id-1", frame["id"])
	assert.Equal(t, "chat.history", frame["method"])
	assert.Equal(t, map[string]any{"sessionKey": "s1", "limit": float64(5)}, frame["params"])

	data, err = encodeRequest("id-2", MethodSessionsList, nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"req","id":"id-2","method":"sessions.list"}`, string(data))
}

func TestEncodeRequest_UnmarshalableParams(t *testing.T) {
	_, err := encodeRequest("id-1", "bad", map[string]any{"ch": make(chan int)})
	assert.Error(t, err)
}

func TestNewRequestID_Unique(t *testing.T) {
	seen := make(map[string]struct{}, 10000)
	for i := 0; i < 10000; i++ {
		id := newRequestID()
		_, dup := seen[id]
		require.False(t, dup, "duplicate id %s", id)
		seen[id] = struct{}{}
	}
}

func TestHelloResult_ConnectionID(t *testing.T) {
	var nested HelloResult
	require.NoError(t, json.Unmarshal([]byte(`{"type":"hello-ok","protocol":3,"server":{"connId":"c-1"}}`), &nested))
	assert.Equal(t, "c-1", nested.ConnectionID())

	var flat HelloResult
	require.NoError(t, json.Unmarshal([]byte(`{"protocol":3,"connId":"c-2"}`), &flat))
	assert.Equal(t, "c-2", flat.ConnectionID())
}

func TestResponseFrame_ToResult(t *testing.T) {
	ok := (&responseFrame{ID: "1", OK: true, Result: json.RawMessage(`"hi"`)}).toResult("m")
	assert.NoError(t, ok.err)
	assert.Equal(t, `"hi"`, string(ok.payload))

	bare := (&responseFrame{ID: "2", OK: false}).toResult("chat.abort")
	var reqErr *RequestError
	require.ErrorAs(t, bare.err, &reqErr)
	assert.Equal(t, "chat.abort", reqErr.Method)
	assert.Equal(t, "request failed", reqErr.Message)

	coded := (&responseFrame{ID: "3", OK: false, Error: &ErrorShape{Code: "NOT_FOUND", Message: "no such session"}}).toResult("chat.history")
	require.ErrorAs(t, coded.err, &reqErr)
	assert.Equal(t, "NOT_FOUND", reqErr.Code)
	assert.Equal(t, "gateway: chat.history failed (NOT_FOUND): no such session", reqErr.Error())
}
