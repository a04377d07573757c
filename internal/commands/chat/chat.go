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

// Package chat implements the chat command group: send a turn and wait for
// the streamed reply, read a session's history, or abort a running turn.
package chat

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/agentdesk/agentdesk/internal/commands/shared"
	"github.com/agentdesk/agentdesk/internal/gateway"
)

// NewCommand creates the chat command.
func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Talk to an assistant session",
		Long: `Send chat turns to the gateway and manage their sessions.

Commands:
  send      Send a message and print the assistant's reply
  history   Show the transcript of a session
  abort     Abort the turn running in a session

Examples:
  agentdesk chat send "What's on my calendar today?"
  echo "Summarize this" | agentdesk chat send --session agent:main:work
  agentdesk chat history --limit 20
  agentdesk chat abort --session agent:main:work`,
		Annotations: map[string]string{
			"group": "chat",
		},
	}

	cmd.AddCommand(newSendCommand())
	cmd.AddCommand(newHistoryCommand())
	cmd.AddCommand(newAbortCommand())

	return cmd
}

func newSendCommand() *cobra.Command {
	var session string

	cmd := &cobra.Command{
		Use:   "send [message...]",
		Short: "Send a message and wait for the reply",
		Long: `Send a message to a session and wait for the assistant's final reply.

The message is taken from the arguments, or from standard input when no
arguments are given. The reply is printed once the turn completes.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			message, err := readMessage(cmd.InOrStdin(), args)
			if err != nil {
				return err
			}
			return runSend(cmd, session, message)
		},
	}

	cmd.Flags().StringVarP(&session, "session", "s", "", "Session key (defaults to server.default_session)")

	return cmd
}

func runSend(cmd *cobra.Command, session, message string) error {
	cfg, client, err := shared.OpenGateway(cmd)
	if err != nil {
		return err
	}
	defer client.Close()
	session = resolveSession(session, cfg.Server.DefaultSession)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	resp, err := client.ChatSend(ctx, session, message)
	if err != nil {
		return fail(cmd, "chat send", err)
	}

	out := cmd.OutOrStdout()
	if shared.GetJSON() {
		return shared.EmitJSONResult(out, "chat send", resp)
	}
	fmt.Fprintln(out, resp.Response)
	return nil
}

func newHistoryCommand() *cobra.Command {
	var (
		session string
		limit   int
		filter  string
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show a session transcript",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if limit < 0 {
				return shared.NewUsageError("--limit must not be negative", nil)
			}
			if err := shared.ValidateJQ(filter); err != nil {
				return err
			}

			cfg, client, err := shared.OpenGateway(cmd)
			if err != nil {
				return err
			}
			defer client.Close()

			key := resolveSession(session, cfg.Server.DefaultSession)

			payload, err := client.ChatHistory(cmd.Context(), key, limit)
			if err != nil {
				return fail(cmd, "chat history", err)
			}

			out := cmd.OutOrStdout()
			if filter != "" {
				return shared.EmitJQ(cmd.Context(), out, filter, payload)
			}
			if shared.GetJSON() {
				return shared.EmitJSONResult(out, "chat history", payload)
			}
			return printHistory(out, payload)
		},
	}

	cmd.Flags().StringVarP(&session, "session", "s", "", "Session key (defaults to server.default_session)")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum number of messages (0 for the gateway default)")
	shared.AddJQFlag(cmd, &filter)

	return cmd
}

func newAbortCommand() *cobra.Command {
	var session, runID string

	cmd := &cobra.Command{
		Use:   "abort",
		Short: "Abort the running turn in a session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, client, err := shared.OpenGateway(cmd)
			if err != nil {
				return err
			}
			defer client.Close()

			key := resolveSession(session, cfg.Server.DefaultSession)

			payload, err := client.ChatAbort(cmd.Context(), key, runID)
			if err != nil {
				return fail(cmd, "chat abort", err)
			}

			out := cmd.OutOrStdout()
			if shared.GetJSON() {
				return shared.EmitJSONResult(out, "chat abort", payload)
			}
			if !shared.GetQuiet() {
				fmt.Fprintf(out, "Aborted %s\n", key)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&session, "session", "s", "", "Session key (defaults to server.default_session)")
	cmd.Flags().StringVar(&runID, "run", "", "Only abort this run id")

	return cmd
}

// readMessage joins args, or reads all of r when there are none. An
// interactive terminal on r counts as no message rather than blocking.
func readMessage(r io.Reader, args []string) (string, error) {
	if len(args) > 0 {
		return strings.Join(args, " "), nil
	}
	if f, ok := r.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		return "", shared.NewUsageError("no message given", nil)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return "", shared.NewExecutionError("failed to read message from stdin", err)
	}
	message := strings.TrimSpace(string(data))
	if message == "" {
		return "", shared.NewUsageError("no message given", nil)
	}
	return message, nil
}

func resolveSession(flag, fallback string) string {
	if key := strings.TrimSpace(flag); key != "" {
		return key
	}
	return fallback
}

// fail reports err in the JSON envelope when --json is set and returns it
// with the exit code matching its class.
func fail(cmd *cobra.Command, command string, err error) error {
	if shared.GetJSON() {
		_ = shared.EmitJSONError(cmd.OutOrStdout(), command, err)
	}
	return shared.NewGatewayError(command+" failed", err)
}

type historyPayload struct {
	Messages []json.RawMessage `json:"messages"`
}

type historyMessage struct {
	Role string `json:"role"`
}

// printHistory renders one "role: text" line per message. Payloads that do
// not carry a messages array are printed as indented JSON.
func printHistory(w io.Writer, payload json.RawMessage) error {
	var history historyPayload
	if err := json.Unmarshal(payload, &history); err != nil || history.Messages == nil {
		return shared.EmitJSON(w, payload)
	}
	if len(history.Messages) == 0 {
		fmt.Fprintln(w, "No messages.")
		return nil
	}
	for _, raw := range history.Messages {
		var msg historyMessage
		_ = json.Unmarshal(raw, &msg)
		role := msg.Role
		if role == "" {
			role = "unknown"
		}
		fmt.Fprintf(w, "%s: %s\n", role, gateway.ExtractText(raw))
	}
	return nil
}
