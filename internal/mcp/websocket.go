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

package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/mark3labs/mcp-go/client/transport"
	"github.com/mark3labs/mcp-go/mcp"
)

// ErrWebSocketClosed is returned for requests on a closed websocket transport.
var ErrWebSocketClosed = errors.New("websocket transport closed")

const (
	wsSubprotocol = "mcp"
	wsCloseWait   = time.Second

	jsonrpcMethodNotFound = -32601
)

var _ transport.Interface = (*WebSocket)(nil)

// WebSocket is a JSON-RPC transport over a single websocket connection.
// Responses are matched to requests by id.
type WebSocket struct {
	url    string
	header http.Header
	dialer *websocket.Dialer

	conn    *websocket.Conn
	writeMu sync.Mutex

	mu      sync.Mutex
	pending map[string]chan *transport.JSONRPCResponse
	err     error

	handlerMu      sync.RWMutex
	onNotification func(mcp.JSONRPCNotification)

	done      chan struct{}
	closeOnce sync.Once
}

// NewWebSocket creates a transport for rawURL. It connects on Start.
func NewWebSocket(rawURL string, headers map[string]string) *WebSocket {
	h := make(http.Header, len(headers))
	for k, v := range headers {
		h.Set(k, v)
	}
	return &WebSocket{
		url:    rawURL,
		header: h,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: 30 * time.Second,
			Subprotocols:     []string{wsSubprotocol},
		},
		pending: make(map[string]chan *transport.JSONRPCResponse),
		done:    make(chan struct{}),
	}
}

// Start dials the server. ctx bounds the handshake only.
func (w *WebSocket) Start(ctx context.Context) error {
	conn, _, err := w.dialer.DialContext(ctx, w.url, w.header)
	if err != nil {
		return fmt.Errorf("websocket dial %s: %w", w.url, err)
	}
	w.conn = conn
	go w.readLoop()
	return nil
}

func (w *WebSocket) readLoop() {
	for {
		_, data, err := w.conn.ReadMessage()
		if err != nil {
			w.shutdown(fmt.Errorf("%w: %v", ErrWebSocketClosed, err))
			return
		}
		w.dispatch(data)
	}
}

func (w *WebSocket) dispatch(data []byte) {
	var envelope struct {
		ID     json.RawMessage `json:"id"`
		Method string          `json:"method"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return
	}

	hasID := len(envelope.ID) > 0 && !bytes.Equal(envelope.ID, []byte("null"))
	switch {
	case envelope.Method != "" && !hasID:
		var n mcp.JSONRPCNotification
		if err := json.Unmarshal(data, &n); err != nil {
			return
		}
		w.handlerMu.RLock()
		handler := w.onNotification
		w.handlerMu.RUnlock()
		if handler != nil {
			handler(n)
		}

	case envelope.Method != "":
		w.answerServerRequest(envelope.ID, envelope.Method)

	case hasID:
		var resp transport.JSONRPCResponse
		if err := json.Unmarshal(data, &resp); err != nil {
			return
		}
		key := idKey(envelope.ID)
		w.mu.Lock()
		ch, ok := w.pending[key]
		delete(w.pending, key)
		w.mu.Unlock()
		if ok {
			ch <- &resp
		}
	}
}

// answerServerRequest replies to requests initiated by the server. Only ping
// is supported.
func (w *WebSocket) answerServerRequest(id json.RawMessage, method string) {
	reply := map[string]any{
		"jsonrpc": mcp.JSONRPC_VERSION,
		"id":      id,
	}
	if method == "ping" {
		reply["result"] = struct{}{}
	} else {
		reply["error"] = map[string]any{
			"code":    jsonrpcMethodNotFound,
			"message": fmt.Sprintf("method %q not supported by client", method),
		}
	}
	_ = w.write(context.Background(), reply)
}

// SendRequest sends request and waits for the response with the same id.
func (w *WebSocket) SendRequest(ctx context.Context, request transport.JSONRPCRequest) (*transport.JSONRPCResponse, error) {
	rawID, err := json.Marshal(request.ID)
	if err != nil {
		return nil, fmt.Errorf("encode request id: %w", err)
	}
	key := idKey(rawID)
	ch := make(chan *transport.JSONRPCResponse, 1)

	w.mu.Lock()
	if w.err != nil {
		err := w.err
		w.mu.Unlock()
		return nil, err
	}
	w.pending[key] = ch
	w.mu.Unlock()

	defer func() {
		w.mu.Lock()
		delete(w.pending, key)
		w.mu.Unlock()
	}()

	if err := w.write(ctx, request); err != nil {
		return nil, err
	}

	select {
	case resp := <-ch:
		return resp, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-w.done:
		return nil, w.closeErr()
	}
}

// SendNotification sends a notification without waiting for a reply.
func (w *WebSocket) SendNotification(ctx context.Context, notification mcp.JSONRPCNotification) error {
	return w.write(ctx, notification)
}

// SetNotificationHandler sets the handler for server notifications.
func (w *WebSocket) SetNotificationHandler(handler func(notification mcp.JSONRPCNotification)) {
	w.handlerMu.Lock()
	w.onNotification = handler
	w.handlerMu.Unlock()
}

// GetSessionId returns an empty string: websocket sessions are the connection.
func (w *WebSocket) GetSessionId() string {
	return ""
}

// Close sends a close frame and closes the connection.
func (w *WebSocket) Close() error {
	var err error
	w.closeOnce.Do(func() {
		w.mu.Lock()
		if w.err == nil {
			w.err = ErrWebSocketClosed
		}
		w.mu.Unlock()
		close(w.done)

		if w.conn == nil {
			return
		}
		w.writeMu.Lock()
		_ = w.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(wsCloseWait))
		w.writeMu.Unlock()
		err = w.conn.Close()
	})
	return err
}

func (w *WebSocket) shutdown(cause error) {
	w.mu.Lock()
	if w.err == nil {
		w.err = cause
	}
	w.mu.Unlock()
	w.closeOnce.Do(func() {
		close(w.done)
		_ = w.conn.Close()
	})
}

func (w *WebSocket) closeErr() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err == nil {
		return ErrWebSocketClosed
	}
	return w.err
}

func (w *WebSocket) write(ctx context.Context, v any) error {
	if w.conn == nil {
		return fmt.Errorf("websocket transport not started")
	}
	select {
	case <-w.done:
		return w.closeErr()
	default:
	}

	w.writeMu.Lock()
	defer w.writeMu.Unlock()

	if deadline, ok := ctx.Deadline(); ok {
		_ = w.conn.SetWriteDeadline(deadline)
		defer func() { _ = w.conn.SetWriteDeadline(time.Time{}) }()
	}
	if err := w.conn.WriteJSON(v); err != nil {
		return fmt.Errorf("websocket write: %w", err)
	}
	return nil
}

func idKey(raw json.RawMessage) string {
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return string(raw)
	}
	return buf.String()
}
