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

package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"github.com/agentdesk/agentdesk/internal/log"
	agenterrors "github.com/agentdesk/agentdesk/pkg/errors"
)

const (
	// DefaultURL is the gateway endpoint used when none is configured.
	DefaultURL = "ws://127.0.0.1:18789"

	// DefaultConnectTimeout bounds dial plus handshake.
	DefaultConnectTimeout = 10 * time.Second

	// DefaultRequestTimeout bounds a single request/response exchange.
	DefaultRequestTimeout = 120 * time.Second

	// DefaultChatTimeout bounds a streamed chat run, independent of the
	// chat.send request timeout.
	DefaultChatTimeout = 120 * time.Second
)

// Config configures a Client.
type Config struct {
	// URL is the gateway WebSocket endpoint.
	// Default: ws://127.0.0.1:18789
	URL string

	// Token is sent as auth.token in the handshake. Empty omits auth.
	Token string

	// Client identifies this process to the gateway.
	Client ClientInfo

	// ConnectTimeout bounds dial plus handshake.
	// Default: 10 seconds
	ConnectTimeout time.Duration

	// RequestTimeout is the per-request default.
	// Default: 120 seconds
	RequestTimeout time.Duration

	// ChatTimeout bounds a ChatSend stream.
	// Default: 120 seconds
	ChatTimeout time.Duration

	// Dialer opens the transport. Default: WebSocketDialer with keepalive.
	Dialer Dialer

	// Logger is the structured logger for client events.
	// If nil, logging is discarded.
	Logger *slog.Logger

	// TracerProvider creates the client's spans. If nil, the global
	// provider is used.
	TracerProvider trace.TracerProvider
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		URL:            DefaultURL,
		Client:         DefaultClientInfo(),
		ConnectTimeout: DefaultConnectTimeout,
		RequestTimeout: DefaultRequestTimeout,
		ChatTimeout:    DefaultChatTimeout,
	}
}

// DefaultClientInfo returns the identity sent when none is configured.
func DefaultClientInfo() ClientInfo {
	return ClientInfo{
		ID:       "gateway-client",
		Version:  "agentdesk/dev",
		Platform: runtime.GOOS,
		Mode:     "backend",
	}
}

// State is the lifecycle state of a Client's connection.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateHandshaking
	StateReady
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateHandshaking:
		return "handshaking"
	case StateReady:
		return "ready"
	default:
		return "disconnected"
	}
}

// session is one transport plus the requests pending on it.
type session struct {
	transport Transport
	pending   *pendingTable
	events    *eventQueue
	done      chan struct{}

	// set under Client.mu once the handshake succeeds
	ready    bool
	connID   string
	protocol int
}

// Client is a persistent gateway connection shared by many callers. It dials
// lazily, performs at most one handshake at a time, correlates requests with
// responses, and dispatches server events to listeners.
//
// A Client is safe for concurrent use. It never reconnects on its own: the
// next operation after a disconnect dials again.
type Client struct {
	config *Config
	logger *slog.Logger
	dialer Dialer
	tracer trace.Tracer

	mu    sync.Mutex
	sess  *session
	state State

	connectGroup singleflight.Group
	events       *dispatcher

	chatMu      sync.Mutex
	activeChats map[string]struct{}
}

// instrumentationName is the tracer scope for client spans.
const instrumentationName = "github.com/agentdesk/agentdesk/internal/gateway"

// NewClient creates a Client. It does not dial; the first operation does.
func NewClient(config *Config) *Client {
	if config == nil {
		config = DefaultConfig()
	}
	cfg := *config

	if cfg.URL == "" {
		cfg.URL = DefaultURL
	}
	if cfg.Client.ID == "" {
		cfg.Client = DefaultClientInfo()
	}
	if cfg.ConnectTimeout == 0 {
		cfg.ConnectTimeout = DefaultConnectTimeout
	}
	if cfg.RequestTimeout == 0 {
		cfg.RequestTimeout = DefaultRequestTimeout
	}
	if cfg.ChatTimeout == 0 {
		cfg.ChatTimeout = DefaultChatTimeout
	}
	if cfg.Dialer == nil {
		cfg.Dialer = &WebSocketDialer{
			HandshakeTimeout: cfg.ConnectTimeout,
			PingInterval:     DefaultPingInterval,
		}
	}
	if cfg.Logger == nil {
		cfg.Logger = log.Discard()
	}

	tp := cfg.TracerProvider
	if tp == nil {
		tp = otel.GetTracerProvider()
	}

	logger := log.WithComponent(cfg.Logger, "gateway")
	return &Client{
		config:      &cfg,
		logger:      logger,
		dialer:      cfg.Dialer,
		tracer:      tp.Tracer(instrumentationName),
		events:      newDispatcher(logger),
		activeChats: make(map[string]struct{}),
	}
}

// URL returns the configured gateway endpoint.
func (c *Client) URL() string {
	return c.config.URL
}

// IsConnected reports whether the transport is open and the handshake has
// completed.
func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sess != nil && c.sess.ready
}

// State returns the current connection state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// ConnID returns the server-assigned connection id, or "" when not connected.
func (c *Client) ConnID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sess == nil || !c.sess.ready {
		return ""
	}
	return c.sess.connID
}

// Pending returns the number of requests awaiting a response.
func (c *Client) Pending() int {
	c.mu.Lock()
	s := c.sess
	c.mu.Unlock()
	if s == nil {
		return 0
	}
	return s.pending.len()
}

// Connect ensures the client is connected and handshaken. Concurrent callers
// share one attempt and observe the same outcome. Cancelling ctx abandons
// this caller's wait; the shared attempt is bounded by ConnectTimeout.
func (c *Client) Connect(ctx context.Context) error {
	if c.IsConnected() {
		return nil
	}

	ch := c.connectGroup.DoChan("connect", func() (interface{}, error) {
		if c.IsConnected() {
			return nil, nil
		}
		return nil, c.dialAndHandshake()
	})

	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// dialAndHandshake runs one connection attempt under its own deadline.
func (c *Client) dialAndHandshake() error {
	ctx, cancel := context.WithTimeout(context.Background(), c.config.ConnectTimeout)
	defer cancel()

	start := time.Now()
	c.setState(StateConnecting)
	c.logger.Debug("connecting to gateway", "url", c.config.URL)

	transport, err := c.dialer.Dial(ctx, c.config.URL, nil)
	if err != nil {
		c.setState(StateDisconnected)
		connectsTotal.WithLabelValues("dial_error").Inc()
		return c.connectError(err)
	}

	s := &session{
		transport: transport,
		pending:   newPendingTable(),
		events:    newEventQueue(),
		done:      make(chan struct{}),
	}

	c.mu.Lock()
	c.sess = s
	c.state = StateHandshaking
	c.mu.Unlock()

	go c.readLoop(s)

	hello, err := c.handshake(ctx, s)
	if err != nil {
		c.detach(s)
		s.pending.closeAll(ErrConnectionClosed)
		_ = transport.Close()
		connectsTotal.WithLabelValues("handshake_error").Inc()
		c.logger.Warn("gateway handshake failed", "url", c.config.URL, log.Error(err))
		return c.connectError(err)
	}

	c.mu.Lock()
	if c.sess != s {
		// Disconnect or a transport close won the race.
		c.mu.Unlock()
		connectsTotal.WithLabelValues("handshake_error").Inc()
		return c.connectError(ErrConnectionClosed)
	}
	s.ready = true
	s.connID = hello.ConnectionID()
	s.protocol = hello.Protocol
	c.state = StateReady
	c.mu.Unlock()

	connectsTotal.WithLabelValues("ok").Inc()
	c.logger.Info("connected to gateway",
		"url", c.config.URL,
		log.ConnIDKey, s.connID,
		"protocol", s.protocol,
		log.DurationKey, time.Since(start).Milliseconds())
	return nil
}

// handshake sends the connect request and validates the hello result.
func (c *Client) handshake(ctx context.Context, s *session) (*HelloResult, error) {
	params := ConnectParams{
		MinProtocol: MinProtocolVersion,
		MaxProtocol: ProtocolVersion,
		Client:      c.config.Client,
	}
	if c.config.Token != "" {
		params.Auth = &ConnectAuth{Token: c.config.Token}
	}

	// ctx carries the attempt deadline.
	raw, err := s.call(ctx, MethodConnect, params, 0)
	if err != nil {
		var reqErr *RequestError
		if errors.As(err, &reqErr) {
			return nil, fmt.Errorf("%w: %w", ErrHandshakeRejected, reqErr)
		}
		return nil, err
	}

	hello := &HelloResult{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, hello); err != nil {
			c.logger.Debug("unrecognized hello payload", "error", err)
		}
	}
	if hello.Protocol != 0 && (hello.Protocol < MinProtocolVersion || hello.Protocol > ProtocolVersion) {
		return nil, fmt.Errorf("%w: server chose %d, client supports %d-%d",
			ErrUnsupportedProtocol, hello.Protocol, MinProtocolVersion, ProtocolVersion)
	}
	return hello, nil
}

// connectError wraps err as a ConnectError, turning deadline expiry into a
// TimeoutError.
func (c *Client) connectError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		err = &agenterrors.TimeoutError{
			Operation: "gateway handshake",
			Duration:  c.config.ConnectTimeout,
			Cause:     err,
		}
	}
	return &ConnectError{URL: c.config.URL, Cause: err}
}

// readLoop owns the read side of one session. Responses are settled here in
// arrival order; events are queued for the session's delivery goroutine so
// listeners never hold up a response. When the transport fails, every
// pending request on the session is failed in one sweep, and s.done closes
// once events received before the failure have been delivered.
func (c *Client) readLoop(s *session) {
	go s.events.run(c.events)

	defer func() {
		c.detach(s)
		failed := s.pending.closeAll(ErrConnectionClosed)
		_ = s.transport.Close()
		s.events.close(false)
		<-s.events.done
		close(s.done)
		c.logger.Info("gateway connection closed", "pending_failed", failed)
	}()

	for {
		data, err := s.transport.ReadMessage()
		if err != nil {
			c.logger.Debug("gateway read failed", log.Error(err))
			return
		}
		log.Trace(c.logger, "frame received", slog.Int("size", len(data)))

		frame, err := decodeFrame(data)
		if err != nil {
			framesDropped.WithLabelValues("malformed").Inc()
			c.logger.Debug("dropping malformed frame", "error", err)
			continue
		}

		switch f := frame.(type) {
		case *responseFrame:
			if !s.pending.resolve(f) {
				framesDropped.WithLabelValues("unmatched").Inc()
				c.logger.Debug("dropping response for unknown request", log.RequestIDKey, f.ID)
			}
		case *eventFrame:
			eventsTotal.WithLabelValues(f.Event.Name).Inc()
			if !s.events.push(f.Event) {
				framesDropped.WithLabelValues("closed").Inc()
			}
		}
	}
}

// detach forgets s if it is still the current session.
func (c *Client) detach(s *session) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sess == s {
		c.sess = nil
		c.state = StateDisconnected
	}
}

func (c *Client) setState(state State) {
	c.mu.Lock()
	c.state = state
	c.mu.Unlock()
}

// current returns the ready session, or nil.
func (c *Client) current() *session {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sess == nil || !c.sess.ready {
		return nil
	}
	return c.sess
}

// On registers listener for events named event and returns a function that
// removes it. Listeners survive reconnects but not Disconnect.
func (c *Client) On(event string, listener Listener) func() {
	return c.events.on(event, listener)
}

// ListenerCount returns the number of listeners registered for event.
func (c *Client) ListenerCount(event string) int {
	return c.events.count(event)
}

// Disconnect closes the transport, fails every pending request with
// ErrConnectionClosed, drops undelivered events and removes all listeners.
// The client may be used again afterwards; the next operation dials a new
// connection. Disconnect may be called from a listener.
func (c *Client) Disconnect() {
	c.mu.Lock()
	s := c.sess
	c.sess = nil
	c.state = StateDisconnected
	c.mu.Unlock()

	if s != nil {
		s.events.close(true)
		failed := s.pending.closeAll(ErrConnectionClosed)
		if err := s.transport.Close(); err != nil {
			c.logger.Debug("closing gateway transport", "error", err)
		}
		c.logger.Info("disconnected from gateway", "pending_failed", failed)
	}
	c.events.clear()
}

// Close implements io.Closer.
func (c *Client) Close() error {
	c.Disconnect()
	return nil
}
