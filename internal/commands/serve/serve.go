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

// Package serve runs the HTTP chat proxy in front of the gateway.
package serve

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/agentdesk/agentdesk/internal/chatproxy"
	"github.com/agentdesk/agentdesk/internal/commands/shared"
	"github.com/agentdesk/agentdesk/internal/config"
	"github.com/agentdesk/agentdesk/internal/gateway"
	"github.com/agentdesk/agentdesk/internal/log"
)

const (
	// limiterSweepInterval is how often idle rate limiter buckets are dropped.
	limiterSweepInterval = time.Minute

	// limiterIdleAge is how long a client bucket may sit unused.
	limiterIdleAge = 10 * time.Minute
)

// NewCommand creates the serve command.
func NewCommand() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP chat API",
		Long: `Start an HTTP server that forwards chat requests to the gateway.

Routes:
  POST /api/chat            Send a message and wait for the reply
  GET  /api/chat/history    Read a session transcript
  POST /api/chat/abort      Abort a running turn
  GET  /api/sessions        List sessions
  GET  /health              Gateway connection status
  GET  /metrics             Prometheus metrics (server.metrics_enabled)

Chats the gateway cannot answer get the configured fallback message.`,
		Annotations: map[string]string{
			"group": "server",
		},
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := shared.LoadConfig()
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Server.Addr = addr
			}

			logger := shared.NewLogger(cfg, cmd.ErrOrStderr())
			client := shared.NewGatewayClient(cfg, logger)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			provider, err := shared.SetupTracing(ctx, cfg, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
				defer cancel()
				if err := provider.Shutdown(shutdownCtx); err != nil {
					logger.Warn("tracing shutdown failed", log.Error(err))
				}
			}()

			return Run(ctx, Options{
				Config:  cfg,
				Gateway: client,
				Logger:  logger,
			})
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (overrides server.addr)")

	return cmd
}

// Options configures Run.
type Options struct {
	Config  *config.Config
	Gateway *gateway.Client
	Logger  *slog.Logger

	// Ready, if set, is called with the bound address once the listener is up.
	Ready func(addr string)
}

// Run serves the chat proxy until ctx is canceled, then shuts the HTTP
// server down within Server.ShutdownTimeout and closes the gateway client.
func Run(ctx context.Context, opts Options) error {
	cfg := opts.Config
	logger := opts.Logger
	if logger == nil {
		logger = log.Discard()
	}

	proxyOpts := chatproxy.Options{
		DefaultSession: cfg.Server.DefaultSession,
		Fallback:       chatproxy.StaticResponder{Message: cfg.Server.FallbackMessage},
		RateLimit: chatproxy.RateLimitConfig{
			RequestsPerSecond: cfg.Server.RateLimit,
			BurstSize:         cfg.Server.RateBurst,
		},
		Logger: logger,
	}
	if cfg.Server.MetricsEnabled {
		proxyOpts.Metrics = promhttp.Handler()
	}
	proxy := chatproxy.New(opts.Gateway, proxyOpts)

	ln, err := net.Listen("tcp", cfg.Server.Addr)
	if err != nil {
		return shared.NewExecutionError(fmt.Sprintf("failed to listen on %s", cfg.Server.Addr), err)
	}

	server := &http.Server{
		Handler:           proxy,
		ReadHeaderTimeout: 10 * time.Second,
	}

	v, _, _ := shared.GetVersion()
	logger.Info("agentdesk serving",
		slog.String("addr", ln.Addr().String()),
		slog.String("gateway", opts.Gateway.URL()),
		slog.String("version", v))
	if opts.Ready != nil {
		opts.Ready(ln.Addr().String())
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	// Connect eagerly so the first chat does not pay for the handshake.
	// Failure is not fatal; requests connect on demand.
	g.Go(func() error {
		if err := opts.Gateway.Connect(gctx); err != nil && gctx.Err() == nil {
			logger.Warn("gateway not reachable yet", log.Error(err))
		}
		return nil
	})

	if proxy.Limiter().Enabled() {
		g.Go(func() error {
			ticker := time.NewTicker(limiterSweepInterval)
			defer ticker.Stop()
			for {
				select {
				case <-gctx.Done():
					return nil
				case <-ticker.C:
					if n := proxy.Limiter().Cleanup(limiterIdleAge); n > 0 {
						logger.Debug("dropped idle rate limit buckets", slog.Int("count", n))
					}
				}
			}
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		err := server.Shutdown(shutdownCtx)
		opts.Gateway.Close()
		if err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return shared.NewExecutionError("serve failed", err)
	}
	logger.Info("shutdown complete")
	return nil
}
