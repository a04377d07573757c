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

// Package gatewaytest provides an in-process fake gateway for tests.
//
// The fake speaks the gateway's JSON frame protocol over a real WebSocket
// served by httptest. Tests script it per method:
//
//	srv := gatewaytest.NewServer(t)
//	srv.Handle("sessions.list", func(c *gatewaytest.Conn, req *gatewaytest.Request) {
//	    c.Respond(req.ID, []string{"agent:main:main"})
//	})
//
// Handlers run on the connection's read goroutine, so frames they write are
// delivered in the order they are written.
package gatewaytest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gorilla/websocket"
)

// Request is a request frame received by the fake.
type Request struct {
	ID     string
	Method string
	Params json.RawMessage
	Conn   string
}

// HandlerFunc answers one request. It may reply zero or more times.
type HandlerFunc func(c *Conn, req *Request)

// Server is a fake gateway.
type Server struct {
	// URL is the ws:// endpoint to dial.
	URL string

	// Token, when set, is required as auth.token by the default connect
	// handler.
	Token string

	httpServer *httptest.Server
	upgrader   websocket.Upgrader

	mu       sync.Mutex
	handlers map[string]HandlerFunc
	requests []*Request
	conns    []*Conn
}

// NewServer starts a fake gateway that is closed when the test ends.
func NewServer(t testing.TB) *Server {
	t.Helper()

	s := &Server{
		handlers: make(map[string]HandlerFunc),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
	s.httpServer = httptest.NewServer(http.HandlerFunc(s.serveWS))
	s.URL = "ws" + strings.TrimPrefix(s.httpServer.URL, "http")
	t.Cleanup(s.Close)
	return s
}

// Handle replaces the handler for method. The "connect" method has a
// default handler that accepts the handshake.
func (s *Server) Handle(method string, h HandlerFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[method] = h
}

// Count returns how many requests for method have been received.
func (s *Server) Count(method string) int {
	return len(s.Requests(method))
}

// Requests returns the requests received for method, in arrival order.
func (s *Server) Requests(method string) []*Request {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*Request
	for _, r := range s.requests {
		if r.Method == method {
			out = append(out, r)
		}
	}
	return out
}

// Connections returns the number of WebSocket connections accepted so far.
func (s *Server) Connections() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

// CloseConnections drops every open connection without a close handshake.
func (s *Server) CloseConnections() {
	s.mu.Lock()
	conns := append([]*Conn(nil), s.conns...)
	s.mu.Unlock()

	for _, c := range conns {
		_ = c.Close()
	}
}

// Close drops all connections and stops the server.
func (s *Server) Close() {
	s.CloseConnections()
	s.httpServer.Close()
}

func (s *Server) serveWS(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	s.mu.Lock()
	conn := &Conn{ID: fmt.Sprintf("conn-%d", len(s.conns)+1), ws: ws, server: s}
	s.conns = append(s.conns, conn)
	s.mu.Unlock()

	defer conn.Close()

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			return
		}

		var frame struct {
			Type   string          `json:"type"`
			ID     string          `json:"id"`
			Method string          `json:"method"`
			Params json.RawMessage `json:"params"`
		}
		if err := json.Unmarshal(data, &frame); err != nil || frame.Type != "req" {
			continue
		}

		req := &Request{ID: frame.ID, Method: frame.Method, Params: frame.Params, Conn: conn.ID}
		s.mu.Lock()
		s.requests = append(s.requests, req)
		h, ok := s.handlers[req.Method]
		s.mu.Unlock()

		switch {
		case ok:
			h(conn, req)
		case req.Method == "connect":
			s.acceptHandshake(conn, req)
		default:
			_ = conn.Fail(req.ID, "UNKNOWN_METHOD", "unknown method "+req.Method)
		}
	}
}

// acceptHandshake is the default connect handler.
func (s *Server) acceptHandshake(c *Conn, req *Request) {
	if s.Token != "" {
		var params struct {
			Auth struct {
				Token string `json:"token"`
			} `json:"auth"`
		}
		_ = json.Unmarshal(req.Params, &params)
		if params.Auth.Token != s.Token {
			_ = c.Fail(req.ID, "UNAUTHORIZED", "invalid token")
			return
		}
	}
	_ = c.Respond(req.ID, Hello(c.ID))
}

// Hello returns a hello-ok payload for protocol 3.
func Hello(connID string) map[string]any {
	return map[string]any{
		"type":     "hello-ok",
		"protocol": 3,
		"server": map[string]any{
			"version": "gatewaytest",
			"connId":  connID,
		},
	}
}

// Conn is one client connection to the fake.
type Conn struct {
	ID string

	ws     *websocket.Conn
	server *Server

	writeMu sync.Mutex
	seq     int64
}

// Respond sends {ok:true, payload:result} for request id.
func (c *Conn) Respond(id string, result any) error {
	return c.writeJSON(map[string]any{
		"type":    "res",
		"id":      id,
		"ok":      true,
		"payload": result,
	})
}

// Fail sends {ok:false, error:{code, message}} for request id.
func (c *Conn) Fail(id, code, message string) error {
	return c.writeJSON(map[string]any{
		"type":  "res",
		"id":    id,
		"ok":    false,
		"error": map[string]any{"code": code, "message": message},
	})
}

// Event pushes a server event with the next sequence number.
func (c *Conn) Event(name string, payload any) error {
	c.writeMu.Lock()
	c.seq++
	seq := c.seq
	c.writeMu.Unlock()

	return c.writeJSON(map[string]any{
		"type":    "event",
		"event":   name,
		"payload": payload,
		"seq":     seq,
	})
}

// SendRaw writes data as a text frame without encoding it.
func (c *Conn) SendRaw(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.ws.WriteMessage(websocket.TextMessage, data)
}

// Close drops the connection.
func (c *Conn) Close() error {
	return c.ws.Close()
}

func (c *Conn) writeJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.SendRaw(data)
}
