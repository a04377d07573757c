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

package shared

import (
	"context"
	"io"
	"log/slog"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/agentdesk/agentdesk/internal/config"
	"github.com/agentdesk/agentdesk/internal/gateway"
	"github.com/agentdesk/agentdesk/internal/log"
	"github.com/agentdesk/agentdesk/internal/secrets"
)

// LoadConfig loads configuration from the --config flag, AGENTDESK_CONFIG,
// or the XDG config file, falling back to defaults plus environment. When
// neither sets a gateway token, the token stored in the keychain for the
// gateway URL is used.
func LoadConfig() (*config.Config, error) {
	cfg, err := config.Load(config.ResolvePath(GetConfigPath()))
	if err != nil {
		return nil, NewConfigError("failed to load configuration", err)
	}
	if cfg.Gateway.Token == "" {
		// Best effort: a missing or unreachable keychain leaves the token empty.
		if token, err := secrets.NewKeychain().Get(context.Background(), secrets.TokenKey(cfg.Gateway.URL)); err == nil {
			cfg.Gateway.Token = token
		}
	}
	return cfg, nil
}

// NewLogger builds the command logger. --verbose lowers the level to debug
// and --quiet raises it to error, overriding the configured level.
func NewLogger(cfg *config.Config, w io.Writer) *slog.Logger {
	logCfg := &log.Config{
		Level:     cfg.Log.Level,
		Format:    log.Format(cfg.Log.Format),
		AddSource: cfg.Log.AddSource,
		Output:    w,
	}
	// AGENTDESK_DEBUG and AGENTDESK_LOG_LEVEL beat the config file.
	if env := log.FromEnv(); env.Level != "info" {
		logCfg.Level = env.Level
		logCfg.AddSource = logCfg.AddSource || env.AddSource
	}
	switch {
	case GetVerbose():
		logCfg.Level = "debug"
	case GetQuiet():
		logCfg.Level = "error"
	}
	return log.New(logCfg)
}

// NewGatewayClient builds a gateway client from cfg.
func NewGatewayClient(cfg *config.Config, logger *slog.Logger) *gateway.Client {
	g := cfg.Gateway
	return gateway.NewClient(&gateway.Config{
		URL:   g.URL,
		Token: g.Token,
		Client: gateway.ClientInfo{
			ID:       g.ClientID,
			Version:  "agentdesk/" + version,
			Platform: runtime.GOOS,
			Mode:     g.ClientMode,
		},
		ConnectTimeout: g.ConnectTimeout,
		RequestTimeout: g.RequestTimeout,
		ChatTimeout:    g.ChatTimeout,
		Dialer: &gateway.WebSocketDialer{
			HandshakeTimeout: g.ConnectTimeout,
			PingInterval:     g.PingInterval,
		},
		Logger: logger,
	})
}

// OpenGateway loads configuration and builds a logger and gateway client for
// a single command run. Logs go to the command's stderr. The caller closes
// the client.
func OpenGateway(cmd *cobra.Command) (*config.Config, *gateway.Client, error) {
	cfg, err := LoadConfig()
	if err != nil {
		return nil, nil, err
	}
	logger := NewLogger(cfg, cmd.ErrOrStderr())
	return cfg, NewGatewayClient(cfg, logger), nil
}
