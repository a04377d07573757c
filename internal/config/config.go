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

package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	agenterrors "github.com/agentdesk/agentdesk/pkg/errors"
)

var (
	// ErrInvalidConfig is returned when configuration validation fails.
	ErrInvalidConfig = errors.New("config: invalid configuration")
)

// Config represents the complete agentdesk configuration.
type Config struct {
	Gateway GatewayConfig `yaml:"gateway"`
	Server  ServerConfig  `yaml:"server"`
	Log     LogConfig     `yaml:"log"`
	Tracing TracingConfig `yaml:"tracing"`
}

// GatewayConfig configures the connection to the assistant gateway.
type GatewayConfig struct {
	// URL is the gateway WebSocket endpoint.
	// Environment: AGENTDESK_GATEWAY_URL
	// Default: ws://127.0.0.1:18789
	URL string `yaml:"url"`

	// Token authenticates the handshake.
	// Environment: AGENTDESK_GATEWAY_TOKEN
	Token string `yaml:"token,omitempty"`

	// ClientID identifies this process in the handshake.
	// Default: gateway-client
	ClientID string `yaml:"client_id,omitempty"`

	// ClientMode is sent as client.mode in the handshake.
	// Default: backend
	ClientMode string `yaml:"client_mode,omitempty"`

	// ConnectTimeout bounds dial plus handshake.
	// Environment: AGENTDESK_CONNECT_TIMEOUT
	// Default: 10s
	ConnectTimeout time.Duration `yaml:"connect_timeout,omitempty"`

	// RequestTimeout is the default per-request timeout.
	// Environment: AGENTDESK_REQUEST_TIMEOUT
	// Default: 120s
	RequestTimeout time.Duration `yaml:"request_timeout,omitempty"`

	// ChatTimeout bounds a streamed chat reply.
	// Environment: AGENTDESK_CHAT_TIMEOUT
	// Default: 120s
	ChatTimeout time.Duration `yaml:"chat_timeout,omitempty"`

	// PingInterval is the WebSocket keepalive cadence.
	// Default: 30s
	PingInterval time.Duration `yaml:"ping_interval,omitempty"`
}

// ServerConfig configures the HTTP chat proxy.
type ServerConfig struct {
	// Addr is the listen address.
	// Environment: AGENTDESK_LISTEN_ADDR
	// Default: 127.0.0.1:8080
	Addr string `yaml:"addr"`

	// ShutdownTimeout is the maximum duration to wait for graceful shutdown.
	// Default: 5s
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout,omitempty"`

	// RateLimit is the sustained request rate per second across all
	// clients. Zero disables limiting.
	// Environment: AGENTDESK_RATE_LIMIT
	// Default: 10
	RateLimit float64 `yaml:"rate_limit"`

	// RateBurst is the burst size allowed above RateLimit.
	// Default: 20
	RateBurst int `yaml:"rate_burst,omitempty"`

	// DefaultSession is used when a chat request names no session.
	// Default: agent:main:main
	DefaultSession string `yaml:"default_session,omitempty"`

	// FallbackMessage is returned when the gateway cannot answer a chat.
	FallbackMessage string `yaml:"fallback_message,omitempty"`

	// MetricsEnabled exposes Prometheus metrics at /metrics.
	// Default: true
	MetricsEnabled bool `yaml:"metrics_enabled"`
}

// LogConfig configures logging behavior.
type LogConfig struct {
	// Level sets the minimum log level (trace, debug, info, warn, error).
	// Environment: LOG_LEVEL
	// Default: info
	Level string `yaml:"level"`

	// Format sets the output format (json, text).
	// Environment: LOG_FORMAT
	// Default: text
	Format string `yaml:"format"`

	// AddSource adds source file and line information to log entries.
	// Environment: LOG_SOURCE (1 or true)
	AddSource bool `yaml:"add_source"`
}

// TracingConfig configures OpenTelemetry span export.
type TracingConfig struct {
	// Enabled turns on span recording for gateway calls and HTTP requests.
	// Environment: AGENTDESK_TRACING (1 or true)
	Enabled bool `yaml:"enabled"`

	// Exporter is one of console, otlp (gRPC) or otlp-http.
	// Default: console
	Exporter string `yaml:"exporter,omitempty"`

	// Endpoint is the collector address for the otlp exporters.
	// Environment: OTEL_EXPORTER_OTLP_ENDPOINT
	Endpoint string `yaml:"endpoint,omitempty"`

	// Insecure disables TLS to the collector.
	Insecure bool `yaml:"insecure,omitempty"`

	// CACert is a PEM file used to verify the collector.
	CACert string `yaml:"ca_cert,omitempty"`

	// Headers are sent with every export request.
	Headers map[string]string `yaml:"headers,omitempty"`

	// SampleRate is the fraction of root spans kept, 0.0 to 1.0.
	// Default: 1.0
	SampleRate float64 `yaml:"sample_rate,omitempty"`
}

const (
	DefaultGatewayURL      = "ws://127.0.0.1:18789"
	DefaultListenAddr      = "127.0.0.1:8080"
	DefaultSessionKey      = "agent:main:main"
	DefaultFallbackMessage = "The assistant is unavailable right now. Please try again in a moment."
)

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Gateway: GatewayConfig{
			URL:            DefaultGatewayURL,
			ClientID:       "gateway-client",
			ClientMode:     "backend",
			ConnectTimeout: 10 * time.Second,
			RequestTimeout: 120 * time.Second,
			ChatTimeout:    120 * time.Second,
			PingInterval:   30 * time.Second,
		},
		Server: ServerConfig{
			Addr:            DefaultListenAddr,
			ShutdownTimeout: 5 * time.Second,
			RateLimit:       10,
			RateBurst:       20,
			DefaultSession:  DefaultSessionKey,
			FallbackMessage: DefaultFallbackMessage,
			MetricsEnabled:  true,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Tracing: TracingConfig{
			Exporter:   "console",
			SampleRate: 1.0,
		},
	}
}

// Load loads configuration from defaults, an optional YAML file, and
// environment variables, in that order, then validates the result.
func Load(configPath string) (*Config, error) {
	cfg := Default()

	if configPath != "" {
		if err := cfg.loadFromFile(configPath); err != nil {
			return nil, &agenterrors.ConfigError{
				Key:    "config_file",
				Reason: fmt.Sprintf("failed to load from %s", configPath),
				Cause:  err,
			}
		}
	}

	// Apply defaults to any zero values (handles minimal configs)
	cfg.applyDefaults()

	if err := cfg.loadFromEnv(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, &agenterrors.ConfigError{
			Key:    "validation",
			Reason: "configuration validation failed",
			Cause:  err,
		}
	}

	return cfg, nil
}

// applyDefaults fills zero values left by a partial config file.
func (c *Config) applyDefaults() {
	d := Default()

	if c.Gateway.URL == "" {
		c.Gateway.URL = d.Gateway.URL
	}
	if c.Gateway.ClientID == "" {
		c.Gateway.ClientID = d.Gateway.ClientID
	}
	if c.Gateway.ClientMode == "" {
		c.Gateway.ClientMode = d.Gateway.ClientMode
	}
	if c.Gateway.ConnectTimeout == 0 {
		c.Gateway.ConnectTimeout = d.Gateway.ConnectTimeout
	}
	if c.Gateway.RequestTimeout == 0 {
		c.Gateway.RequestTimeout = d.Gateway.RequestTimeout
	}
	if c.Gateway.ChatTimeout == 0 {
		c.Gateway.ChatTimeout = d.Gateway.ChatTimeout
	}
	if c.Gateway.PingInterval == 0 {
		c.Gateway.PingInterval = d.Gateway.PingInterval
	}

	if c.Server.Addr == "" {
		c.Server.Addr = d.Server.Addr
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = d.Server.ShutdownTimeout
	}
	if c.Server.RateBurst == 0 {
		c.Server.RateBurst = d.Server.RateBurst
	}
	if c.Server.DefaultSession == "" {
		c.Server.DefaultSession = d.Server.DefaultSession
	}
	if c.Server.FallbackMessage == "" {
		c.Server.FallbackMessage = d.Server.FallbackMessage
	}

	if c.Log.Level == "" {
		c.Log.Level = d.Log.Level
	}
	if c.Log.Format == "" {
		c.Log.Format = d.Log.Format
	}

	if c.Tracing.Exporter == "" {
		c.Tracing.Exporter = d.Tracing.Exporter
	}
	if c.Tracing.SampleRate == 0 {
		c.Tracing.SampleRate = d.Tracing.SampleRate
	}
}

// loadFromFile loads configuration from a YAML file.
func (c *Config) loadFromFile(path string) error {
	// Expand home directory if present
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("failed to get home directory: %w", err)
		}
		path = filepath.Join(home, path[2:])
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse YAML: %w", err)
	}

	return nil
}

// loadFromEnv overrides configuration from environment variables. Malformed
// numeric or duration values are reported rather than ignored.
func (c *Config) loadFromEnv() error {
	// Gateway configuration
	if val := os.Getenv("AGENTDESK_GATEWAY_URL"); val != "" {
		c.Gateway.URL = val
	}
	if val := os.Getenv("AGENTDESK_GATEWAY_TOKEN"); val != "" {
		c.Gateway.Token = val
	}
	if err := envDuration("AGENTDESK_CONNECT_TIMEOUT", &c.Gateway.ConnectTimeout); err != nil {
		return err
	}
	if err := envDuration("AGENTDESK_REQUEST_TIMEOUT", &c.Gateway.RequestTimeout); err != nil {
		return err
	}
	if err := envDuration("AGENTDESK_CHAT_TIMEOUT", &c.Gateway.ChatTimeout); err != nil {
		return err
	}

	// Server configuration
	if val := os.Getenv("AGENTDESK_LISTEN_ADDR"); val != "" {
		c.Server.Addr = val
	}
	if val := os.Getenv("AGENTDESK_RATE_LIMIT"); val != "" {
		rate, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return &agenterrors.ConfigError{Key: "AGENTDESK_RATE_LIMIT", Reason: "must be a number", Cause: err}
		}
		c.Server.RateLimit = rate
	}

	// Log configuration
	if val := os.Getenv("LOG_LEVEL"); val != "" {
		c.Log.Level = strings.ToLower(val)
	}
	if val := os.Getenv("LOG_FORMAT"); val != "" {
		c.Log.Format = strings.ToLower(val)
	}
	if val := os.Getenv("LOG_SOURCE"); val != "" {
		c.Log.AddSource = val == "1" || strings.ToLower(val) == "true"
	}

	// Tracing configuration
	if val := os.Getenv("AGENTDESK_TRACING"); val != "" {
		c.Tracing.Enabled = val == "1" || strings.ToLower(val) == "true"
	}
	if val := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); val != "" {
		c.Tracing.Endpoint = val
	}

	return nil
}

func envDuration(key string, dst *time.Duration) error {
	val := os.Getenv(key)
	if val == "" {
		return nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return &agenterrors.ConfigError{Key: key, Reason: fmt.Sprintf("invalid duration %q", val), Cause: err}
	}
	*dst = d
	return nil
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	var errs []string

	// Validate gateway configuration
	if u, err := url.Parse(c.Gateway.URL); err != nil || (u.Scheme != "ws" && u.Scheme != "wss") || u.Host == "" {
		errs = append(errs, fmt.Sprintf("gateway.url must be a ws:// or wss:// URL, got %q", c.Gateway.URL))
	}
	if c.Gateway.ConnectTimeout <= 0 {
		errs = append(errs, fmt.Sprintf("gateway.connect_timeout must be positive, got %v", c.Gateway.ConnectTimeout))
	}
	if c.Gateway.RequestTimeout <= 0 {
		errs = append(errs, fmt.Sprintf("gateway.request_timeout must be positive, got %v", c.Gateway.RequestTimeout))
	}
	if c.Gateway.ChatTimeout <= 0 {
		errs = append(errs, fmt.Sprintf("gateway.chat_timeout must be positive, got %v", c.Gateway.ChatTimeout))
	}
	if c.Gateway.PingInterval < 0 {
		errs = append(errs, fmt.Sprintf("gateway.ping_interval must not be negative, got %v", c.Gateway.PingInterval))
	}

	// Validate server configuration
	if c.Server.Addr == "" {
		errs = append(errs, "server.addr must not be empty")
	}
	if c.Server.ShutdownTimeout <= 0 {
		errs = append(errs, fmt.Sprintf("server.shutdown_timeout must be positive, got %v", c.Server.ShutdownTimeout))
	}
	if c.Server.RateLimit < 0 {
		errs = append(errs, fmt.Sprintf("server.rate_limit must not be negative, got %v", c.Server.RateLimit))
	}
	if c.Server.RateBurst < 1 {
		errs = append(errs, fmt.Sprintf("server.rate_burst must be at least 1, got %d", c.Server.RateBurst))
	}

	// Validate log configuration
	validLevels := map[string]bool{"trace": true, "debug": true, "info": true, "warn": true, "warning": true, "error": true}
	if !validLevels[c.Log.Level] {
		errs = append(errs, fmt.Sprintf("log.level must be one of [trace, debug, info, warn, warning, error], got %q", c.Log.Level))
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Log.Format] {
		errs = append(errs, fmt.Sprintf("log.format must be one of [json, text], got %q", c.Log.Format))
	}

	// Validate tracing configuration
	validExporters := map[string]bool{"console": true, "otlp": true, "otlp-http": true}
	if !validExporters[c.Tracing.Exporter] {
		errs = append(errs, fmt.Sprintf("tracing.exporter must be one of [console, otlp, otlp-http], got %q", c.Tracing.Exporter))
	}
	if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1 {
		errs = append(errs, fmt.Sprintf("tracing.sample_rate must be between 0 and 1, got %v", c.Tracing.SampleRate))
	}
	if c.Tracing.Enabled && c.Tracing.Exporter != "console" && c.Tracing.Endpoint == "" {
		errs = append(errs, "tracing.endpoint is required for otlp exporters")
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(errs, "; "))
	}

	return nil
}
