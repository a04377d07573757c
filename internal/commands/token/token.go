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

// Package token manages the gateway token kept in the OS keychain.
package token

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/agentdesk/agentdesk/internal/commands/shared"
	"github.com/agentdesk/agentdesk/internal/config"
	"github.com/agentdesk/agentdesk/internal/secrets"
)

// Token sources reported by status.
const (
	SourceConfig   = "config"
	SourceKeychain = "keychain"
	SourceNone     = "none"
)

// Status describes where the token for a gateway comes from.
type Status struct {
	URL    string `json:"url"`
	Source string `json:"source"`
	Token  string `json:"token,omitempty"`
}

// NewCommand creates the token command.
func NewCommand() *cobra.Command {
	var gatewayURL string

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Manage the gateway token in the OS keychain",
		Long: `Store, inspect, or remove the token used for the gateway handshake.

A token set in the config file or AGENTDESK_GATEWAY_TOKEN takes precedence;
the keychain entry is used when neither is set. Tokens are stored per
gateway URL.

Examples:
  agentdesk token set
  echo "$TOKEN" | agentdesk token set --gateway wss://gw.example.com/ws
  agentdesk token status
  agentdesk token clear`,
		Annotations: map[string]string{
			"group": "config",
		},
	}

	cmd.PersistentFlags().StringVar(&gatewayURL, "gateway", "", "Gateway URL the token belongs to (defaults to gateway.url)")

	cmd.AddCommand(newSetCommand(&gatewayURL))
	cmd.AddCommand(newStatusCommand(&gatewayURL))
	cmd.AddCommand(newClearCommand(&gatewayURL))

	return cmd
}

func newSetCommand(gatewayURL *string) *cobra.Command {
	return &cobra.Command{
		Use:   "set",
		Short: "Store the gateway token",
		Long: `Store the gateway token in the OS keychain.

The token is read from a hidden prompt, or from standard input when it is
not a terminal. It is never taken from arguments.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			url, _, err := resolve(*gatewayURL)
			if err != nil {
				return err
			}

			value, err := readToken(cmd)
			if err != nil {
				return err
			}

			if err := secrets.NewKeychain().Set(cmd.Context(), secrets.TokenKey(url), value); err != nil {
				return shared.NewExecutionError("failed to store token", err)
			}

			if !shared.GetQuiet() {
				out := cmd.OutOrStdout()
				fmt.Fprintln(out, shared.NewStyles(out).OK("Token saved for "+url))
			}
			return nil
		},
	}
}

func newStatusCommand(gatewayURL *string) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show where the gateway token comes from",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			url, cfg, err := resolve(*gatewayURL)
			if err != nil {
				return err
			}

			status := Status{URL: url, Source: SourceNone}
			if cfg.Gateway.Token != "" && url == cfg.Gateway.URL {
				status.Source = SourceConfig
				status.Token = maskToken(cfg.Gateway.Token)
			} else {
				value, err := secrets.NewKeychain().Get(cmd.Context(), secrets.TokenKey(url))
				switch {
				case err == nil:
					status.Source = SourceKeychain
					status.Token = maskToken(value)
				case errors.Is(err, secrets.ErrSecretNotFound):
				default:
					return shared.NewExecutionError("failed to read token", err)
				}
			}

			out := cmd.OutOrStdout()
			if shared.GetJSON() {
				return shared.EmitJSONResult(out, "token status", status)
			}
			styles := shared.NewStyles(out)
			if status.Source == SourceNone {
				fmt.Fprintln(out, styles.Warn("No token for "+url))
				return nil
			}
			fmt.Fprintln(out, styles.OK("Token for "+url))
			fmt.Fprintf(out, "  %s %s\n", styles.Label("source:"), status.Source)
			fmt.Fprintf(out, "  %s  %s\n", styles.Label("token:"), status.Token)
			return nil
		},
	}
}

func newClearCommand(gatewayURL *string) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Remove the stored gateway token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			url, _, err := resolve(*gatewayURL)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			styles := shared.NewStyles(out)
			err = secrets.NewKeychain().Delete(cmd.Context(), secrets.TokenKey(url))
			switch {
			case errors.Is(err, secrets.ErrSecretNotFound):
				if !shared.GetQuiet() {
					fmt.Fprintln(out, styles.Warn("No token stored for "+url))
				}
				return nil
			case err != nil:
				return shared.NewExecutionError("failed to remove token", err)
			}

			if !shared.GetQuiet() {
				fmt.Fprintln(out, styles.OK("Token removed for "+url))
			}
			return nil
		},
	}
}

// resolve loads configuration without the keychain fallback and picks the
// gateway URL the command applies to.
func resolve(flagURL string) (string, *config.Config, error) {
	cfg, err := config.Load(config.ResolvePath(shared.GetConfigPath()))
	if err != nil {
		return "", nil, shared.NewConfigError("failed to load configuration", err)
	}
	url := strings.TrimSpace(flagURL)
	if url == "" {
		url = cfg.Gateway.URL
	}
	return url, cfg, nil
}

// readToken reads a token from a hidden terminal prompt or from stdin.
func readToken(cmd *cobra.Command) (string, error) {
	in := cmd.InOrStdin()
	var value string
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fmt.Fprint(cmd.ErrOrStderr(), "Gateway token (hidden): ")
		b, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(cmd.ErrOrStderr())
		if err != nil {
			return "", shared.NewExecutionError("failed to read token", err)
		}
		value = string(b)
	} else {
		data, err := io.ReadAll(in)
		if err != nil {
			return "", shared.NewExecutionError("failed to read token from stdin", err)
		}
		value = string(data)
	}

	value = strings.TrimSpace(value)
	if value == "" {
		return "", shared.NewUsageError("no token given", nil)
	}
	return value, nil
}

// maskToken masks a token for display.
func maskToken(value string) string {
	if len(value) <= 8 {
		return "****"
	}
	return value[:4] + "..." + value[len(value)-4:]
}
