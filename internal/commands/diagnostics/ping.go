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

package diagnostics

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/agentdesk/agentdesk/internal/commands/shared"
)

// PingResult contains the ping health check result
type PingResult struct {
	URL       string `json:"url"`
	Connected bool   `json:"connected"`
	ConnID    string `json:"conn_id,omitempty"`
	LatencyMs int64  `json:"latency_ms"`
	Error     string `json:"error,omitempty"`
}

// NewPingCommand creates the ping command
func NewPingCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use: "ping",
		Annotations: map[string]string{
			"group": "diagnostics",
		},
		Short: "Check that the gateway accepts a handshake",
		Long: `Dial the configured gateway, complete the connect handshake, and report
the connection id the gateway assigned and how long it took.

Exit codes:
  0 - Gateway accepted the handshake
  4 - Gateway unreachable or handshake rejected
  5 - Handshake timed out`,
		Args: cobra.NoArgs,
		RunE: runPing,
	}

	return cmd
}

func runPing(cmd *cobra.Command, args []string) error {
	cfg, client, err := shared.OpenGateway(cmd)
	if err != nil {
		return err
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), cfg.Gateway.ConnectTimeout)
	defer cancel()

	start := time.Now()
	err = client.Connect(ctx)
	result := PingResult{
		URL:       client.URL(),
		Connected: err == nil,
		ConnID:    client.ConnID(),
		LatencyMs: time.Since(start).Milliseconds(),
	}
	if err != nil {
		result.Error = err.Error()
	}

	out := cmd.OutOrStdout()
	if shared.GetJSON() {
		if emitErr := shared.EmitJSON(out, result); emitErr != nil {
			return emitErr
		}
	} else if err == nil && !shared.GetQuiet() {
		styles := shared.NewStyles(out)
		fmt.Fprintln(out, styles.OK("Connected to "+result.URL))
		if result.ConnID != "" {
			fmt.Fprintf(out, "  %s %s\n", styles.Label("connection:"), result.ConnID)
		}
		fmt.Fprintf(out, "  %s %dms\n", styles.Label("latency:   "), result.LatencyMs)
	}

	if err != nil {
		return shared.NewGatewayError("ping failed", err)
	}
	return nil
}
