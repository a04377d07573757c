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

package token

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"

	"github.com/agentdesk/agentdesk/internal/commands/shared"
	"github.com/agentdesk/agentdesk/internal/secrets"
)

const testURL = "ws://127.0.0.1:18789"

func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("AGENTDESK_CONFIG", "")
	t.Setenv("AGENTDESK_GATEWAY_URL", testURL)
	t.Setenv("AGENTDESK_GATEWAY_TOKEN", "")
	shared.ResetFlagsForTest()
	t.Cleanup(shared.ResetFlagsForTest)

	root := &cobra.Command{Use: "agentdesk", SilenceUsage: true, SilenceErrors: true}
	_, _, jsonOut, _ := shared.RegisterFlagPointers()
	root.PersistentFlags().BoolVar(jsonOut, "json", false, "")
	root.AddCommand(NewCommand())

	var out bytes.Buffer
	root.SetIn(strings.NewReader(stdin))
	root.SetOut(&out)
	root.SetErr(&bytes.Buffer{})
	root.SetArgs(append([]string{"token"}, args...))

	err := root.Execute()
	return out.String(), err
}

func stored(t *testing.T, url string) (string, error) {
	t.Helper()
	return secrets.NewKeychain().Get(context.Background(), secrets.TokenKey(url))
}

func TestSet_FromStdin(t *testing.T) {
	keyring.MockInit()

	out, err := execute(t, "  tok-123456789  \n", "set")
	require.NoError(t, err)
	assert.Contains(t, out, "Token saved for "+testURL)

	got, err := stored(t, testURL)
	require.NoError(t, err)
	assert.Equal(t, "tok-123456789", got)
}

func TestSet_GatewayFlag(t *testing.T) {
	keyring.MockInit()

	_, err := execute(t, "other", "set", "--gateway", "wss://gw.example.com/ws")
	require.NoError(t, err)

	got, err := stored(t, "wss://gw.example.com/ws")
	require.NoError(t, err)
	assert.Equal(t, "other", got)

	_, err = stored(t, testURL)
	assert.ErrorIs(t, err, secrets.ErrSecretNotFound)
}

func TestSet_EmptyToken(t *testing.T) {
	keyring.MockInit()

	_, err := execute(t, "\n", "set")
	require.Error(t, err)
	assert.Equal(t, shared.ExitUsage, shared.ExitCode(err))
}

func TestStatus(t *testing.T) {
	keyring.MockInit()

	out, err := execute(t, "", "status")
	require.NoError(t, err)
	assert.Contains(t, out, "No token for "+testURL)

	_, err = execute(t, "tok-123456789", "set")
	require.NoError(t, err)

	out, err = execute(t, "", "status", "--json")
	require.NoError(t, err)

	var resp struct {
		Result Status `json:"result"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, SourceKeychain, resp.Result.Source)
	assert.Equal(t, "tok-...6789", resp.Result.Token)
}

func TestStatus_ConfigWins(t *testing.T) {
	keyring.MockInit()

	_, err := execute(t, "from-keychain", "set")
	require.NoError(t, err)

	t.Setenv("AGENTDESK_GATEWAY_TOKEN", "short")
	shared.ResetFlagsForTest()
	root := &cobra.Command{Use: "agentdesk", SilenceUsage: true, SilenceErrors: true}
	root.AddCommand(NewCommand())
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"token", "status"})

	require.NoError(t, root.Execute())
	assert.Contains(t, out.String(), "source: config")
	assert.Contains(t, out.String(), "****")
}

func TestClear(t *testing.T) {
	keyring.MockInit()

	_, err := execute(t, "tok", "set")
	require.NoError(t, err)

	out, err := execute(t, "", "clear")
	require.NoError(t, err)
	assert.Contains(t, out, "Token removed for "+testURL)

	_, err = stored(t, testURL)
	assert.ErrorIs(t, err, secrets.ErrSecretNotFound)

	out, err = execute(t, "", "clear")
	require.NoError(t, err)
	assert.Contains(t, out, "No token stored for "+testURL)
}

func TestMaskToken(t *testing.T) {
	assert.Equal(t, "****", maskToken("short"))
	assert.Equal(t, "abcd...mnop", maskToken("abcdefghijklmnop"))
}
