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
	"log/slog"
	"sync"
	"time"
)

// EventType represents the type of server event.
type EventType string

const (
	// EventStarted indicates a connection finished initializing.
	EventStarted EventType = "started"
	// EventStopped indicates a connection was closed.
	EventStopped EventType = "stopped"
	// EventFailed indicates a connection could not be established.
	EventFailed EventType = "failed"
	// EventUnhealthy indicates a connection was evicted.
	EventUnhealthy EventType = "unhealthy"
	// EventRestarting indicates a replacement connection was launched.
	EventRestarting EventType = "restarting"
	// EventToolsChanged indicates a server's catalog entries changed.
	EventToolsChanged EventType = "tools_changed"
)

// defaultEventBuffer is the channel size of a subscription.
const defaultEventBuffer = 64

// ServerEvent is one lifecycle or catalog event for a server.
type ServerEvent struct {
	Type       EventType      `json:"type"`
	ServerName string         `json:"server_name"`
	Timestamp  time.Time      `json:"timestamp"`
	Message    string         `json:"message,omitempty"`
	Details    map[string]any `json:"details,omitempty"`
}

// EventEmitter logs server events and fans them out to subscribers. Emitting
// on a nil *EventEmitter does nothing.
type EventEmitter struct {
	logger *slog.Logger

	mu   sync.RWMutex
	subs map[int]chan ServerEvent
	next int
}

// NewEventEmitter creates an emitter.
func NewEventEmitter(logger *slog.Logger) *EventEmitter {
	if logger == nil {
		logger = slog.Default()
	}
	return &EventEmitter{
		logger: logger,
		subs:   make(map[int]chan ServerEvent),
	}
}

// Subscribe returns a channel of events and a function that ends the
// subscription and closes the channel. Events are dropped for subscribers
// whose buffer is full. A buffer of zero or less uses the default.
func (e *EventEmitter) Subscribe(buffer int) (<-chan ServerEvent, func()) {
	if buffer <= 0 {
		buffer = defaultEventBuffer
	}
	ch := make(chan ServerEvent, buffer)

	e.mu.Lock()
	id := e.next
	e.next++
	e.subs[id] = ch
	e.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			e.mu.Lock()
			delete(e.subs, id)
			e.mu.Unlock()
			close(ch)
		})
	}
}

// Emit logs event and delivers it to every subscriber.
func (e *EventEmitter) Emit(event ServerEvent) {
	if e == nil {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	attrs := []any{
		"server", event.ServerName,
		"type", string(event.Type),
	}
	if event.Message != "" {
		attrs = append(attrs, "message", event.Message)
	}
	for k, v := range event.Details {
		attrs = append(attrs, k, v)
	}
	e.logger.Info("MCP server event", attrs...)

	e.mu.RLock()
	defer e.mu.RUnlock()
	for _, ch := range e.subs {
		select {
		case ch <- event:
		default:
		}
	}
}

// EmitStarted emits a server started event.
func (e *EventEmitter) EmitStarted(serverName string, caps Capabilities) {
	e.Emit(ServerEvent{
		Type:       EventStarted,
		ServerName: serverName,
		Message:    "Server started successfully",
		Details: map[string]any{
			"server_name":    caps.ServerName,
			"server_version": caps.ServerVersion,
		},
	})
}

// EmitStopped emits a server stopped event.
func (e *EventEmitter) EmitStopped(serverName string) {
	e.Emit(ServerEvent{
		Type:       EventStopped,
		ServerName: serverName,
		Message:    "Server stopped",
	})
}

// EmitFailed emits a server failed event.
func (e *EventEmitter) EmitFailed(serverName string, err error) {
	e.Emit(ServerEvent{
		Type:       EventFailed,
		ServerName: serverName,
		Message:    "Server failed",
		Details: map[string]any{
			"error": err.Error(),
		},
	})
}

// EmitUnhealthy emits a server unhealthy event.
func (e *EventEmitter) EmitUnhealthy(serverName string, reason string) {
	e.Emit(ServerEvent{
		Type:       EventUnhealthy,
		ServerName: serverName,
		Message:    "Server is unhealthy",
		Details: map[string]any{
			"reason": reason,
		},
	})
}

// EmitRestarting emits a server restarting event.
func (e *EventEmitter) EmitRestarting(serverName string, delay time.Duration) {
	e.Emit(ServerEvent{
		Type:       EventRestarting,
		ServerName: serverName,
		Message:    "Server restarting",
		Details: map[string]any{
			"delay": delay.String(),
		},
	})
}

// EmitToolsChanged emits a tools changed event.
func (e *EventEmitter) EmitToolsChanged(serverName string, toolCount int) {
	e.Emit(ServerEvent{
		Type:       EventToolsChanged,
		ServerName: serverName,
		Message:    "Server tools changed",
		Details: map[string]any{
			"tool_count": toolCount,
		},
	})
}
