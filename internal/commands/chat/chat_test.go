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

package chat

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentdesk/agentdesk/internal/commands/shared"
	"github.com/agentdesk/agentdesk/internal/gateway/gatewaytest"
)

// setupGateway starts a fake gateway and points the config at it.
func setupGateway(t *testing.T) *gatewaytest.Server {
	t.Helper()
	srv := gatewaytest.NewServer(t)
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("AGENTDESK_CONFIG", "")
	t.Setenv("AGENTDESK_GATEWAY_URL", srv.URL)
	t.Setenv("AGENTDESK_CONNECT_TIMEOUT", "2s")
	t.Setenv("AGENTDESK_CHAT_TIMEOUT", "2s")
	return srv
}

// execute runs the chat command under a root carrying the global flags.
func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	shared.ResetFlagsForTest()
	t.Cleanup(shared.ResetFlagsForTest)

	root := &cobra.Command{Use: "agentdesk", SilenceUsage: true, SilenceErrors: true}
	verbose, quiet, jsonOut, config := shared.RegisterFlagPointers()
	root.PersistentFlags().BoolVarP(verbose, "verbose", "v", false, "")
	root.PersistentFlags().BoolVarP(quiet, "quiet", "q", false, "")
	root.PersistentFlags().BoolVar(jsonOut, "json", false, "")
	root.PersistentFlags().StringVar(config, "config", "", "")
	root.AddCommand(NewCommand())

	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(append([]string{"chat"}, args...))

	err := root.Execute()
	return out.String(), err
}

func answer(text string) gatewaytest.HandlerFunc {
	return func(c *gatewaytest.Conn, req *gatewaytest.Request) {
		var params struct {
			SessionKey string `json:"sessionKey"`
		}
		_ = json.Unmarshal(req.Params, &params)
		_ = c.Respond(req.ID, map[string]any{"runId": "run-1", "status": "started"})
		_ = c.Event("chat", map[string]any{
			"sessionKey": params.SessionKey,
			"runId":      "run-1",
			"state":      "final",
			"message":    map[string]any{"role": "assistant", "content": text},
		})
	}
}

func TestSend_PrintsReply(t *testing.T) {
	srv := setupGateway(t)
	srv.Handle("chat.send", answer("Hello world"))

	out, err := execute(t, "", "send", "--session", "agent:main:cli", "hi", "there")
	require.NoError(t, err)
	assert.Equal(t, "Hello world\n", out)

	reqs := srv.Requests("chat.send")
	require.Len(t, reqs, 1)
	var params map[string]any
	require.NoError(t, json.Unmarshal(reqs[0].Params, &params))
	assert.Equal(t, "agent:main:cli", params["sessionKey"])
	assert.Equal(t, "hi there", params["message"])
	assert.NotEmpty(t, params["idempotencyKey"])
}

func TestSend_ReadsStdinAndDefaultSession(t *testing.T) {
	srv := setupGateway(t)
	srv.Handle("chat.send", answer("ok"))

	out, err := execute(t, "  from stdin\n", "send")
	require.NoError(t, err)
	assert.Equal(t, "ok\n", out)

	var params map[string]any
	require.NoError(t, json.Unmarshal(srv.Requests("chat.send")[0].Params, &params))
	assert.Equal(t, "agent:main:main", params["sessionKey"])
	assert.Equal(t, "from stdin", params["message"])
}

func TestSend_EmptyMessage(t *testing.T) {
	setupGateway(t)

	_, err := execute(t, "   ", "send")
	require.Error(t, err)
	assert.Equal(t, shared.ExitUsage, shared.ExitCode(err))
}

func TestSend_JSON(t *testing.T) {
	srv := setupGateway(t)
	srv.Handle("chat.send", answer("Hello world"))

	out, err := execute(t, "", "send", "--json", "hi")
	require.NoError(t, err)

	var resp struct {
		Command string `json:"command"`
		Success bool   `json:"success"`
		Result  struct {
			Response   string `json:"response"`
			SessionKey string `json:"sessionKey"`
			RunID      string `json:"runId"`
		} `json:"result"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "chat send", resp.Command)
	assert.True(t, resp.Success)
	assert.Equal(t, "Hello world", resp.Result.Response)
	assert.Equal(t, "run-1", resp.Result.RunID)
}

func TestSend_ChatError(t *testing.T) {
	srv := setupGateway(t)
	srv.Handle("chat.send", func(c *gatewaytest.Conn, req *gatewaytest.Request) {
		_ = c.Respond(req.ID, map[string]any{"runId": "run-1"})
		_ = c.Event("chat", map[string]any{
			"sessionKey":   "agent:main:main",
			"runId":        "run-1",
			"state":        "error",
			"errorMessage": "model overloaded",
		})
	})

	_, err := execute(t, "", "send", "hi")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "model overloaded")
	assert.Equal(t, shared.ExitFailed, shared.ExitCode(err))
}

func TestSend_GatewayDown(t *testing.T) {
	srv := setupGateway(t)
	srv.Close()

	_, err := execute(t, "", "send", "hi")
	require.Error(t, err)
	assert.Equal(t, shared.ExitGatewayUnavailable, shared.ExitCode(err))
}

func TestHistory_Text(t *testing.T) {
	srv := setupGateway(t)
	srv.Handle("chat.history", func(c *gatewaytest.Conn, req *gatewaytest.Request) {
		_ = c.Respond(req.ID, map[string]any{
			"messages": []any{
				map[string]any{"role": "user", "content": "hi"},
				map[string]any{"role": "assistant", "content": []any{
					map[string]any{"type": "text", "text": "hello"},
				}},
			},
		})
	})

	out, err := execute(t, "", "history", "--limit", "5")
	require.NoError(t, err)
	assert.Equal(t, "user: hi\nassistant: hello\n", out)

	var params map[string]any
	require.NoError(t, json.Unmarshal(srv.Requests("chat.history")[0].Params, &params))
	assert.Equal(t, float64(5), params["limit"])
}

func TestHistory_JQ(t *testing.T) {
	srv := setupGateway(t)
	srv.Handle("chat.history", func(c *gatewaytest.Conn, req *gatewaytest.Request) {
		_ = c.Respond(req.ID, map[string]any{
			"messages": []any{
				map[string]any{"role": "user", "content": "hi"},
				map[string]any{"role": "assistant", "content": "hello"},
			},
		})
	})

	out, err := execute(t, "", "history", "--jq", `.messages[] | select(.role == "assistant") | .content`)
	require.NoError(t, err)
	assert.Equal(t, "hello\n", out)
}

func TestHistory_UnknownShapePrintsJSON(t *testing.T) {
	srv := setupGateway(t)
	srv.Handle("chat.history", func(c *gatewaytest.Conn, req *gatewaytest.Request) {
		_ = c.Respond(req.ID, map[string]any{"entries": 3})
	})

	out, err := execute(t, "", "history")
	require.NoError(t, err)
	assert.JSONEq(t, `{"entries":3}`, out)
}

func TestHistory_NegativeLimit(t *testing.T) {
	setupGateway(t)

	_, err := execute(t, "", "history", "--limit", "-1")
	require.Error(t, err)
	assert.Equal(t, shared.ExitUsage, shared.ExitCode(err))
}

func TestAbort(t *testing.T) {
	srv := setupGateway(t)
	srv.Handle("chat.abort", func(c *gatewaytest.Conn, req *gatewaytest.Request) {
		_ = c.Respond(req.ID, map[string]any{"aborted": true})
	})

	out, err := execute(t, "", "abort", "--session", "agent:main:x", "--run", "run-9")
	require.NoError(t, err)
	assert.Equal(t, "Aborted agent:main:x\n", out)

	var params map[string]any
	require.NoError(t, json.Unmarshal(srv.Requests("chat.abort")[0].Params, &params))
	assert.Equal(t, "agent:main:x", params["sessionKey"])
	assert.Equal(t, "run-9", params["runId"])
}

func TestAbort_RequestError(t *testing.T) {
	srv := setupGateway(t)
	srv.Handle("chat.abort", func(c *gatewaytest.Conn, req *gatewaytest.Request) {
		_ = c.Fail(req.ID, "NOT_FOUND", "no active run")
	})

	out, err := execute(t, "", "abort", "--json")
	require.Error(t, err)
	assert.Equal(t, shared.ExitFailed, shared.ExitCode(err))

	var resp struct {
		Success bool               `json:"success"`
		Errors  []shared.JSONError `json:"errors"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.False(t, resp.Success)
	require.Len(t, resp.Errors, 1)
	assert.Equal(t, "request", resp.Errors[0].Code)
}
