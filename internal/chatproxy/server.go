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

// Package chatproxy serves the gateway client over HTTP. Chat turns that the
// gateway cannot answer are served from a fallback Responder instead of
// surfacing transport errors to the end user.
package chatproxy

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/agentdesk/agentdesk/internal/gateway"
	"github.com/agentdesk/agentdesk/internal/log"
	"github.com/agentdesk/agentdesk/internal/tracing"
	agenterrors "github.com/agentdesk/agentdesk/pkg/errors"
)

// Gateway is the part of *gateway.Client the proxy uses.
type Gateway interface {
	ChatSend(ctx context.Context, sessionKey, message string) (*gateway.ChatResponse, error)
	ChatHistory(ctx context.Context, sessionKey string, limit int) (json.RawMessage, error)
	ChatAbort(ctx context.Context, sessionKey, runID string) (json.RawMessage, error)
	SessionsList(ctx context.Context) (json.RawMessage, error)
	IsConnected() bool
}

// maxBodyBytes caps request bodies.
const maxBodyBytes = 1 << 20

// Options configures a Server.
type Options struct {
	// DefaultSession is used when a chat request names no session.
	DefaultSession string

	// Fallback answers chats the gateway could not. Required.
	Fallback Responder

	// RateLimit configures per-client limiting of /api routes.
	RateLimit RateLimitConfig

	// Metrics, when set, is mounted at /metrics.
	Metrics http.Handler

	// Logger is the structured logger. If nil, logging is discarded.
	Logger *slog.Logger
}

// Server is the HTTP chat proxy.
type Server struct {
	gw       Gateway
	fallback Responder
	session  string
	limiter  *RateLimiter
	logger   *slog.Logger
	router   chi.Router
}

// New creates a Server and builds its routes.
func New(gw Gateway, opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = log.Discard()
	}
	if opts.Fallback == nil {
		opts.Fallback = StaticResponder{Message: "The assistant is unavailable right now."}
	}

	s := &Server{
		gw:       gw,
		fallback: opts.Fallback,
		session:  opts.DefaultSession,
		limiter:  NewRateLimiter(opts.RateLimit),
		logger:   log.WithComponent(opts.Logger, "chatproxy"),
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(tracing.HTTPMiddleware)
	r.Use(log.HTTPMiddleware(s.logger))

	r.Get("/health", s.handleHealth)
	if opts.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", opts.Metrics)
	}

	r.Route("/api", func(api chi.Router) {
		api.Use(s.limiter.Middleware)
		api.Post("/chat", s.handleChat)
		api.Get("/chat/history", s.handleHistory)
		api.Post("/chat/abort", s.handleAbort)
		api.Get("/sessions", s.handleSessions)
	})

	s.router = r
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Limiter returns the server's rate limiter.
func (s *Server) Limiter() *RateLimiter {
	return s.limiter
}

// ChatRequest is the body of POST /api/chat.
type ChatRequest struct {
	SessionKey string `json:"sessionKey"`
	Message    string `json:"message"`
}

// ChatReply is the response of POST /api/chat.
type ChatReply struct {
	Response   string          `json:"response"`
	SessionKey string          `json:"sessionKey"`
	RunID      string          `json:"runId,omitempty"`
	Usage      json.RawMessage `json:"usage,omitempty"`
	Source     string          `json:"source"`
}

// AbortRequest is the body of POST /api/chat/abort.
type AbortRequest struct {
	SessionKey string `json:"sessionKey"`
	RunID      string `json:"runId,omitempty"`
}

const (
	sourceGateway  = "gateway"
	sourceFallback = "fallback"
)

// handleChat handles POST /api/chat.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Message == "" {
		writeError(w, http.StatusBadRequest, "message is required")
		return
	}
	if req.SessionKey == "" {
		req.SessionKey = s.session
	}

	logger := log.WithSession(log.WithRequestID(s.logger, middleware.GetReqID(r.Context())), req.SessionKey)

	resp, err := s.gw.ChatSend(r.Context(), req.SessionKey, req.Message)
	if err == nil {
		chatReplies.WithLabelValues(sourceGateway).Inc()
		writeJSON(w, http.StatusOK, ChatReply{
			Response:   resp.Response,
			SessionKey: resp.SessionKey,
			RunID:      resp.RunID,
			Usage:      resp.Usage,
			Source:     sourceGateway,
		})
		return
	}

	var validationErr *agenterrors.ValidationError
	if errors.As(err, &validationErr) {
		writeError(w, http.StatusBadRequest, validationErr.Error())
		return
	}

	kind, retryable := agenterrors.Classify(err)
	logger.Warn("gateway chat failed, using fallback",
		"error", err,
		"error_type", kind,
		"retryable", retryable)

	text, ferr := s.fallback.Respond(r.Context(), req.SessionKey, req.Message)
	if ferr != nil {
		logger.Error("fallback responder failed", "error", ferr)
		writeError(w, http.StatusBadGateway, "assistant unavailable")
		return
	}

	chatReplies.WithLabelValues(sourceFallback).Inc()
	writeJSON(w, http.StatusOK, ChatReply{
		Response:   text,
		SessionKey: req.SessionKey,
		Source:     sourceFallback,
	})
}

// handleHistory handles GET /api/chat/history.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	sessionKey := r.URL.Query().Get("sessionKey")
	if sessionKey == "" {
		sessionKey = s.session
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	history, err := s.gw.ChatHistory(r.Context(), sessionKey, limit)
	if err != nil {
		s.writeGatewayError(w, r, "chat history", err)
		return
	}
	writeJSON(w, http.StatusOK, history)
}

// handleAbort handles POST /api/chat/abort.
func (s *Server) handleAbort(w http.ResponseWriter, r *http.Request) {
	var req AbortRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.SessionKey == "" {
		req.SessionKey = s.session
	}

	result, err := s.gw.ChatAbort(r.Context(), req.SessionKey, req.RunID)
	if err != nil {
		s.writeGatewayError(w, r, "chat abort", err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handleSessions handles GET /api/sessions.
func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := s.gw.SessionsList(r.Context())
	if err != nil {
		s.writeGatewayError(w, r, "sessions list", err)
		return
	}
	writeJSON(w, http.StatusOK, sessions)
}

// HealthResponse is the response of GET /health.
type HealthResponse struct {
	Status  string `json:"status"`
	Gateway string `json:"gateway"`
}

// handleHealth handles GET /health. The proxy is healthy while the gateway
// is down because chats still get fallback replies.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	state := "disconnected"
	if s.gw.IsConnected() {
		state = "connected"
	}
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok", Gateway: state})
}

// writeGatewayError maps a gateway failure to an HTTP status.
func (s *Server) writeGatewayError(w http.ResponseWriter, r *http.Request, op string, err error) {
	status := statusFor(err)
	s.logger.Warn(op+" failed",
		log.RequestIDKey, middleware.GetReqID(r.Context()),
		"status", status,
		"error", err)

	message, _ := agenterrors.UserMessage(err)
	writeError(w, status, message)
}

func statusFor(err error) int {
	var validationErr *agenterrors.ValidationError
	var timeoutErr *agenterrors.TimeoutError
	var reqErr *gateway.RequestError
	switch {
	case errors.As(err, &validationErr):
		return http.StatusBadRequest
	case errors.As(err, &timeoutErr):
		return http.StatusGatewayTimeout
	case errors.As(err, &reqErr) && reqErr.Code == "NOT_FOUND":
		return http.StatusNotFound
	default:
		return http.StatusBadGateway
	}
}

// decodeBody decodes a JSON request body into v, writing a 400 on failure.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("Failed to write JSON response", slog.Any("error", err))
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{
		"error": message,
	})
}
