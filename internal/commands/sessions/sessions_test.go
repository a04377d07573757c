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

package sessions

import (
	"bytes"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentdesk/agentdesk/internal/commands/shared"
	"github.com/agentdesk/agentdesk/internal/gateway/gatewaytest"
)

func execute(t *testing.T, srv *gatewaytest.Server, args ...string) (string, error) {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("AGENTDESK_CONFIG", "")
	t.Setenv("AGENTDESK_GATEWAY_URL", srv.URL)
	t.Setenv("AGENTDESK_CONNECT_TIMEOUT", "2s")
	shared.ResetFlagsForTest()
	t.Cleanup(shared.ResetFlagsForTest)

	root := &cobra.Command{Use: "agentdesk", SilenceUsage: true, SilenceErrors: true}
	_, _, jsonOut, _ := shared.RegisterFlagPointers()
	root.PersistentFlags().BoolVar(jsonOut, "json", false, "")
	root.AddCommand(NewCommand())

	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&bytes.Buffer{})
	root.SetArgs(append([]string{"sessions"}, args...))

	err := root.Execute()
	return out.String(), err
}

func TestList_Table(t *testing.T) {
	srv := gatewaytest.NewServer(t)
	srv.Handle("sessions.list", func(c *gatewaytest.Conn, req *gatewaytest.Request) {
		_ = c.Respond(req.ID, map[string]any{
			"sessions": []any{
				map[string]any{"key": "agent:main:main", "kind": "direct", "model": "opus", "totalTokens": 1200, "updatedAt": 0},
				map[string]any{"key": "agent:main:work"},
			},
		})
	})

	out, err := execute(t, srv, "list")
	require.NoError(t, err)

	lines := bytes.Split(bytes.TrimSpace([]byte(out)), []byte("\n"))
	require.Len(t, lines, 3)
	assert.Contains(t, string(lines[0]), "KEY")
	assert.Contains(t, string(lines[1]), "agent:main:main")
	assert.Contains(t, string(lines[1]), "opus")
	assert.Contains(t, string(lines[1]), "1200")
	assert.Contains(t, string(lines[2]), "agent:main:work")
}

func TestList_Empty(t *testing.T) {
	srv := gatewaytest.NewServer(t)
	srv.Handle("sessions.list", func(c *gatewaytest.Conn, req *gatewaytest.Request) {
		_ = c.Respond(req.ID, map[string]any{"sessions": []any{}})
	})

	out, err := execute(t, srv, "ls")
	require.NoError(t, err)
	assert.Equal(t, "No sessions.\n", out)
}

func TestList_JSONPassesPayloadThrough(t *testing.T) {
	srv := gatewaytest.NewServer(t)
	srv.Handle("sessions.list", func(c *gatewaytest.Conn, req *gatewaytest.Request) {
		_ = c.Respond(req.ID, map[string]any{"sessions": []any{map[string]any{"key": "k", "extra": true}}})
	})

	out, err := execute(t, srv, "list", "--json")
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"@version": "1.0",
		"command": "sessions list",
		"success": true,
		"result": {"sessions": [{"key": "k", "extra": true}]}
	}`, out)
}

func TestList_RequestError(t *testing.T) {
	srv := gatewaytest.NewServer(t)
	srv.Handle("sessions.list", func(c *gatewaytest.Conn, req *gatewaytest.Request) {
		_ = c.Fail(req.ID, "FORBIDDEN", "not allowed")
	})

	_, err := execute(t, srv, "list")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not allowed")
}

func TestUpdated(t *testing.T) {
	assert.Equal(t, "-", updated(0))
	assert.Equal(t, "2026-01-01T00:00:00Z", updated(1767225600000))
}

func TestList_JQ(t *testing.T) {
	srv := gatewaytest.NewServer(t)
	srv.Handle("sessions.list", func(c *gatewaytest.Conn, req *gatewaytest.Request) {
		_ = c.Respond(req.ID, map[string]any{
			"sessions": []any{
				map[string]any{"key": "agent:main:main", "totalTokens": 10},
				map[string]any{"key": "agent:main:work", "totalTokens": 32},
			},
		})
	})

	out, err := execute(t, srv, "list", "--jq", ".sessions[].key")
	require.NoError(t, err)
	assert.Equal(t, "agent:main:main\nagent:main:work\n", out)

	out, err = execute(t, srv, "list", "--jq", "[.sessions[].totalTokens] | add")
	require.NoError(t, err)
	assert.Equal(t, "42\n", out)
}

func TestList_InvalidJQ(t *testing.T) {
	srv := gatewaytest.NewServer(t)

	_, err := execute(t, srv, "list", "--jq", ".sessions[")
	require.Error(t, err)
	assert.Equal(t, shared.ExitUsage, shared.ExitCode(err))
	assert.Zero(t, srv.Connections())
}
