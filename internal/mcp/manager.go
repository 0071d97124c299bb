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
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	// DefaultInitTimeout bounds the initialize handshake.
	DefaultInitTimeout = 30 * time.Second
	// DefaultStopTimeout bounds DisconnectAll.
	DefaultStopTimeout = 5 * time.Second
	// DefaultReconnectInterval is the minimum spacing of replacement launches
	// for one server.
	DefaultReconnectInterval = 500 * time.Millisecond
)

// ManagerConfig configures a ConnectionManager.
type ManagerConfig struct {
	// Registry opens and initializes sessions. Required.
	Registry *ServerRegistry

	Logger  *slog.Logger
	Metrics *Metrics

	// Events receives lifecycle events. Optional.
	Events *EventEmitter

	// InitTimeout defaults to 30s.
	InitTimeout time.Duration

	// StopTimeout defaults to 5s.
	StopTimeout time.Duration

	// ReconnectInterval throttles replacement of unhealthy connections.
	// Zero uses the default and a negative value disables throttling.
	ReconnectInterval time.Duration
}

// ConnectionManager owns long-lived server connections. Each connection is
// driven by one lifecycle goroutine.
type ConnectionManager struct {
	registry *ServerRegistry
	logger   *slog.Logger
	metrics  *Metrics
	events   *EventEmitter

	initTimeout    time.Duration
	stopTimeout    time.Duration
	reconnectLimit rate.Limit

	mu       sync.Mutex
	running  map[string]*ServerConnection
	limiters map[string]*rate.Limiter
	closed   bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewConnectionManager creates a manager. Sessions live until they are
// disconnected or the manager is closed.
func NewConnectionManager(cfg ManagerConfig) *ConnectionManager {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	initTimeout := cfg.InitTimeout
	if initTimeout == 0 {
		initTimeout = DefaultInitTimeout
	}
	stopTimeout := cfg.StopTimeout
	if stopTimeout == 0 {
		stopTimeout = DefaultStopTimeout
	}

	limit := rate.Every(DefaultReconnectInterval)
	switch {
	case cfg.ReconnectInterval < 0:
		limit = rate.Inf
	case cfg.ReconnectInterval > 0:
		limit = rate.Every(cfg.ReconnectInterval)
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &ConnectionManager{
		registry:       cfg.Registry,
		logger:         logger.With("component", "mcp-manager"),
		metrics:        cfg.Metrics,
		events:         cfg.Events,
		initTimeout:    initTimeout,
		stopTimeout:    stopTimeout,
		reconnectLimit: limit,
		running:        make(map[string]*ServerConnection),
		limiters:       make(map[string]*rate.Limiter),
		ctx:            ctx,
		cancel:         cancel,
	}
}

// LaunchServer starts a connection for name, or returns the one already
// running.
func (m *ConnectionManager) LaunchServer(ctx context.Context, name string) (*ServerConnection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	cfg, ok := m.registry.GetServerConfig(name)
	if !ok {
		return nil, ErrServerNotFound(name)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, ErrManagerClosed
	}
	if conn, ok := m.running[name]; ok {
		return conn, nil
	}
	return m.launchLocked(name, cfg, 0), nil
}

// GetServer returns a healthy connection for name, launching or replacing it
// as needed, and waits for initialization under ctx.
func (m *ConnectionManager) GetServer(ctx context.Context, name string) (*ServerConnection, error) {
	cfg, ok := m.registry.GetServerConfig(name)
	if !ok {
		return nil, ErrServerNotFound(name)
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, ErrManagerClosed
	}

	conn := m.running[name]
	switch {
	case conn == nil:
		conn = m.launchLocked(name, cfg, 0)
	case conn.IsHealthy():
		m.mu.Unlock()
		return conn, nil
	case conn.pending():
		// Another caller launched it; wait for the same connection.
	default:
		m.logger.Info("replacing unhealthy connection", "server", name, "state", conn.State(), "error", conn.Err())
		delete(m.running, name)
		conn.RequestShutdown()
		m.metrics.eviction(name)
		m.events.EmitUnhealthy(name, unhealthyReason(conn))
		delay := m.reconnectDelayLocked(name)
		m.events.EmitRestarting(name, delay)
		conn = m.launchLocked(name, cfg, delay)
	}
	m.mu.Unlock()

	if err := conn.WaitInitialized(ctx); err != nil {
		return nil, err
	}
	if !conn.IsHealthy() {
		msg := conn.Err()
		if msg == "" {
			msg = fmt.Sprintf("connection is %s", conn.State())
		}
		return nil, ErrInitialization(name, msg)
	}
	return conn, nil
}

// DisconnectServer shuts down the connection for name and waits for it
// to close.
func (m *ConnectionManager) DisconnectServer(ctx context.Context, name string) error {
	m.mu.Lock()
	conn, ok := m.running[name]
	delete(m.running, name)
	m.mu.Unlock()

	if !ok {
		return ErrServerNotConnected(name)
	}

	conn.RequestShutdown()
	select {
	case <-conn.Done():
		return conn.closeError()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// DisconnectAll shuts down every connection. It waits at most StopTimeout
// and returns the joined close errors.
func (m *ConnectionManager) DisconnectAll(ctx context.Context) error {
	m.mu.Lock()
	conns := slices.Collect(maps.Values(m.running))
	m.running = make(map[string]*ServerConnection)
	m.mu.Unlock()

	for _, conn := range conns {
		conn.RequestShutdown()
	}

	timer := time.NewTimer(m.stopTimeout)
	defer timer.Stop()

	var errs []error
wait:
	for _, conn := range conns {
		select {
		case <-conn.Done():
			if err := conn.closeError(); err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", conn.ServerName, err))
			}
		case <-timer.C:
			m.logger.Warn("timed out waiting for servers to stop", "timeout", m.stopTimeout)
			break wait
		case <-ctx.Done():
			m.logger.Warn("gave up waiting for servers to stop", "error", ctx.Err())
			break wait
		}
	}

	err := errors.Join(errs...)
	if err != nil {
		m.logger.Warn("errors while disconnecting servers", "error", err)
	}
	return err
}

// Close disconnects every server and rejects later launches.
func (m *ConnectionManager) Close(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	err := m.DisconnectAll(ctx)
	m.cancel()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(m.stopTimeout):
		m.logger.Warn("lifecycle goroutines still running after close", "timeout", m.stopTimeout)
	case <-ctx.Done():
	}
	return err
}

// Status returns a snapshot of every managed connection, sorted by name.
func (m *ConnectionManager) Status() []ServerStatus {
	m.mu.Lock()
	conns := slices.Collect(maps.Values(m.running))
	m.mu.Unlock()

	out := make([]ServerStatus, 0, len(conns))
	for _, conn := range conns {
		out = append(out, conn.Status())
	}
	slices.SortFunc(out, func(a, b ServerStatus) int {
		return strings.Compare(a.Name, b.Name)
	})
	return out
}

// reconnectDelayLocked reserves a replacement slot for name and returns how
// long the launch must wait.
func (m *ConnectionManager) reconnectDelayLocked(name string) time.Duration {
	lim, ok := m.limiters[name]
	if !ok {
		lim = rate.NewLimiter(m.reconnectLimit, 1)
		m.limiters[name] = lim
	}
	return lim.Reserve().Delay()
}

func (m *ConnectionManager) launchLocked(name string, cfg ServerConnectionConfig, delay time.Duration) *ServerConnection {
	conn := newServerConnection(name, cfg)
	m.running[name] = conn
	m.wg.Add(1)
	go m.lifecycle(conn, delay)
	return conn
}

func (m *ConnectionManager) lifecycle(conn *ServerConnection, delay time.Duration) {
	defer m.wg.Done()
	defer close(conn.done)

	name := conn.ServerName
	logger := m.logger.With("server", name)

	if delay > 0 {
		logger.Debug("delaying reconnect", "delay", delay)
		t := time.NewTimer(delay)
		select {
		case <-t.C:
		case <-conn.shutdown:
			t.Stop()
			conn.closed(nil)
			return
		case <-m.ctx.Done():
			t.Stop()
			conn.closed(nil)
			return
		}
	}

	conn.setState(StateConnecting)
	session, err := m.registry.Connect(m.ctx, name)
	if err != nil {
		logger.Error("failed to connect to server", "error", err)
		m.metrics.connectionAttempt(name, "error")
		m.events.EmitFailed(name, err)
		conn.fail(err)
		return
	}

	initCtx, cancel := context.WithTimeout(m.ctx, m.initTimeout)
	result, err := m.registry.Handshake(initCtx, name, session)
	cancel()
	if err == nil && result.HookErr != nil {
		err = ErrInitialization(name, "init hook failed: "+result.HookErr.Error()).WithCause(result.HookErr)
	}
	if err != nil {
		logger.Error("failed to initialize server", "error", err)
		m.metrics.connectionAttempt(name, "error")
		if cerr := session.Close(); cerr != nil {
			logger.Debug("error closing session", "error", cerr)
		}
		m.events.EmitFailed(name, err)
		conn.fail(err)
		return
	}

	conn.ready(session, result.Capabilities)
	m.metrics.connectionAttempt(name, "success")
	m.metrics.connectionOpened()
	m.events.EmitStarted(name, result.Capabilities)
	logger.Info("server connected",
		"server_name", result.Capabilities.ServerName,
		"server_version", result.Capabilities.ServerVersion,
	)

	select {
	case <-conn.shutdown:
	case <-m.ctx.Done():
	}

	conn.setState(StateShuttingDown)
	cerr := session.Close()
	if cerr != nil {
		logger.Warn("error closing session", "error", cerr)
	}
	conn.closed(cerr)
	m.metrics.connectionClosed()
	m.events.EmitStopped(name)
	logger.Debug("server disconnected")
}

func unhealthyReason(conn *ServerConnection) string {
	if msg := conn.Err(); msg != "" {
		return msg
	}
	return fmt.Sprintf("connection is %s", conn.State())
}
