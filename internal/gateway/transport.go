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
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Transport is a message-oriented, bidirectional connection to the gateway.
// ReadMessage is called from a single goroutine; WriteMessage and Close must
// be safe for concurrent use.
type Transport interface {
	ReadMessage() ([]byte, error)
	WriteMessage(data []byte) error
	Close() error
}

// Dialer opens transports.
type Dialer interface {
	Dial(ctx context.Context, url string, header http.Header) (Transport, error)
}

const (
	// writeWait bounds a single frame write.
	writeWait = 10 * time.Second

	// DefaultPingInterval is how often the WebSocket transport pings the gateway.
	DefaultPingInterval = 30 * time.Second
)

// WebSocketDialer dials the gateway over gorilla/websocket.
type WebSocketDialer struct {
	// HandshakeTimeout bounds the HTTP upgrade. The connect attempt's own
	// deadline still applies when shorter.
	HandshakeTimeout time.Duration

	// PingInterval enables keepalive pings. The read deadline is extended by
	// twice this interval on every pong. Zero disables keepalive.
	PingInterval time.Duration

	// ReadLimit caps inbound frame size in bytes. Zero means no limit.
	ReadLimit int64
}

// Dial implements Dialer.
func (d *WebSocketDialer) Dial(ctx context.Context, url string, header http.Header) (Transport, error) {
	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: d.HandshakeTimeout,
	}

	conn, resp, err := dialer.DialContext(ctx, url, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("websocket dial failed with HTTP %d: %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("websocket dial failed: %w", err)
	}

	if d.ReadLimit > 0 {
		conn.SetReadLimit(d.ReadLimit)
	}

	t := &wsTransport{conn: conn, done: make(chan struct{})}
	if d.PingInterval > 0 {
		pongWait := 2 * d.PingInterval
		conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		go t.pingLoop(d.PingInterval)
	}
	return t, nil
}

// wsTransport adapts *websocket.Conn to Transport.
type wsTransport struct {
	conn *websocket.Conn

	// gorilla allows one concurrent writer
	writeMu sync.Mutex

	closeOnce sync.Once
	done      chan struct{}
}

func (t *wsTransport) ReadMessage() ([]byte, error) {
	_, data, err := t.conn.ReadMessage()
	return data, err
}

func (t *wsTransport) WriteMessage(data []byte) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	if err := t.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return t.conn.WriteMessage(websocket.TextMessage, data)
}

func (t *wsTransport) Close() error {
	var err error
	t.closeOnce.Do(func() {
		close(t.done)
		_ = t.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		err = t.conn.Close()
	})
	return err
}

// pingLoop sends keepalive pings until the transport closes. A failed ping
// closes the connection so the read side observes the failure.
func (t *wsTransport) pingLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-t.done:
			return
		case <-ticker.C:
			if err := t.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				_ = t.conn.Close()
				return
			}
		}
	}
}
