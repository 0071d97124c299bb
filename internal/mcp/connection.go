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
	"context"
	"sync"
	"time"
)

// ServerConnection is a managed, long-lived session with one server.
// Only the manager's lifecycle goroutine changes its session, capabilities
// and error.
type ServerConnection struct {
	ServerName string
	Config     ServerConnectionConfig

	mu        sync.RWMutex
	state     ConnectionState
	session   Session
	caps      *Capabilities
	hasErr    bool
	errMsg    string
	closeErr  error
	startedAt time.Time

	initialized  chan struct{}
	initOnce     sync.Once
	shutdown     chan struct{}
	shutdownOnce sync.Once
	done         chan struct{}
}

func newServerConnection(name string, cfg ServerConnectionConfig) *ServerConnection {
	return &ServerConnection{
		ServerName:  name,
		Config:      cfg,
		state:       StateUnstarted,
		initialized: make(chan struct{}),
		shutdown:    make(chan struct{}),
		done:        make(chan struct{}),
	}
}

// Session returns the open session, or nil.
func (c *ServerConnection) Session() Session {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.session
}

// Capabilities returns what the server advertised, or nil before initialize.
func (c *ServerConnection) Capabilities() *Capabilities {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.caps == nil {
		return nil
	}
	caps := *c.caps
	return &caps
}

func (c *ServerConnection) State() ConnectionState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Err returns the recorded error message, if any.
func (c *ServerConnection) Err() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.errMsg
}

// IsHealthy reports whether the session is open and no error was recorded.
func (c *ServerConnection) IsHealthy() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.session != nil && !c.hasErr
}

// Initialized is closed when initialization finishes, successfully or not.
func (c *ServerConnection) Initialized() <-chan struct{} {
	return c.initialized
}

// Done is closed when the lifecycle goroutine has exited.
func (c *ServerConnection) Done() <-chan struct{} {
	return c.done
}

// WaitInitialized blocks until initialization finishes or ctx is done.
func (c *ServerConnection) WaitInitialized(ctx context.Context) error {
	select {
	case <-c.initialized:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RequestShutdown asks the lifecycle goroutine to close the session.
// It is safe to call more than once.
func (c *ServerConnection) RequestShutdown() {
	c.shutdownOnce.Do(func() { close(c.shutdown) })
}

// Status returns a snapshot for display.
func (c *ServerConnection) Status() ServerStatus {
	c.mu.RLock()
	defer c.mu.RUnlock()
	st := ServerStatus{
		Name:  c.ServerName,
		State: c.state,
		Error: c.errMsg,
	}
	if c.state == StateInitialized {
		st.Uptime = time.Since(c.startedAt)
	}
	if c.caps != nil {
		caps := *c.caps
		st.Capabilities = &caps
	}
	return st
}

func (c *ServerConnection) pending() bool {
	select {
	case <-c.initialized:
		return false
	default:
		return true
	}
}

func (c *ServerConnection) setState(s ConnectionState) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

func (c *ServerConnection) ready(session Session, caps Capabilities) {
	c.mu.Lock()
	c.session = session
	c.caps = &caps
	c.state = StateInitialized
	c.startedAt = time.Now()
	c.mu.Unlock()
	c.markInitialized()
}

func (c *ServerConnection) fail(err error) {
	c.mu.Lock()
	c.hasErr = true
	c.errMsg = err.Error()
	c.state = StateError
	c.mu.Unlock()
	c.markInitialized()
}

// closed records the session as closed. The capabilities stay for display.
func (c *ServerConnection) closed(err error) {
	c.mu.Lock()
	c.session = nil
	c.closeErr = err
	c.state = StateClosed
	c.mu.Unlock()
	c.markInitialized()
}

func (c *ServerConnection) markInitialized() {
	c.initOnce.Do(func() { close(c.initialized) })
}

func (c *ServerConnection) closeError() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.closeErr
}
