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
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/agentdesk/agentdesk/internal/commands/shared"
)

// NewCommand creates the sessions command.
func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Inspect gateway sessions",
		Annotations: map[string]string{
			"group": "chat",
		},
	}

	cmd.AddCommand(newListCommand())

	return cmd
}

func newListCommand() *cobra.Command {
	var filter string

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List the sessions known to the gateway",
		Example: `  agentdesk sessions list
  agentdesk sessions list --jq '.sessions[].key'`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := shared.ValidateJQ(filter); err != nil {
				return err
			}

			_, client, err := shared.OpenGateway(cmd)
			if err != nil {
				return err
			}
			defer client.Close()

			payload, err := client.SessionsList(cmd.Context())
			if err != nil {
				if shared.GetJSON() {
					_ = shared.EmitJSONError(cmd.OutOrStdout(), "sessions list", err)
				}
				return shared.NewGatewayError("sessions list failed", err)
			}

			out := cmd.OutOrStdout()
			if filter != "" {
				return shared.EmitJQ(cmd.Context(), out, filter, payload)
			}
			if shared.GetJSON() {
				return shared.EmitJSONResult(out, "sessions list", payload)
			}
			return printSessions(out, payload)
		},
	}

	shared.AddJQFlag(cmd, &filter)

	return cmd
}

// Session is the subset of a sessions.list entry shown in the table.
type Session struct {
	Key         string `json:"key"`
	Kind        string `json:"kind,omitempty"`
	DisplayName string `json:"displayName,omitempty"`
	Model       string `json:"model,omitempty"`
	UpdatedAt   int64  `json:"updatedAt,omitempty"`
	TotalTokens int    `json:"totalTokens,omitempty"`
}

type listPayload struct {
	Sessions []Session `json:"sessions"`
}

func printSessions(w io.Writer, payload json.RawMessage) error {
	var list listPayload
	if err := json.Unmarshal(payload, &list); err != nil || list.Sessions == nil {
		return shared.EmitJSON(w, payload)
	}
	if len(list.Sessions) == 0 {
		fmt.Fprintln(w, "No sessions.")
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "KEY\tKIND\tMODEL\tTOKENS\tUPDATED")
	for _, s := range list.Sessions {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n", s.Key, dash(s.Kind), dash(s.Model), s.TotalTokens, updated(s.UpdatedAt))
	}
	return tw.Flush()
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// updated formats a millisecond Unix timestamp.
func updated(ms int64) string {
	if ms <= 0 {
		return "-"
	}
	return time.UnixMilli(ms).UTC().Format(time.RFC3339)
}
