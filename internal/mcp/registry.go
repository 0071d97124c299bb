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
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strings"
	"sync"
)

// InitHook runs after the initialize handshake, for example to authenticate
// at the application level. auth is nil when the server has none.
type InitHook func(ctx context.Context, name string, session Session, auth *AuthConfig) error

// InitResult is passed to InitializeServer callbacks.
type InitResult struct {
	Capabilities Capabilities
	// HookErr is the init hook's error, if any. The session is still open
	// and the callback decides whether to use it.
	HookErr error
}

// RegistryConfig configures a ServerRegistry.
type RegistryConfig struct {
	// Servers are the known server configurations keyed by name.
	Servers map[string]ServerConnectionConfig

	// Connector opens sessions. Defaults to DefaultConnector.
	Connector Connector

	// Secrets expands secret references in env, headers and auth.
	Secrets SecretExpander

	// InitHook runs after every successful initialize.
	InitHook InitHook

	Logger *slog.Logger
}

// ServerRegistry resolves server names to configurations and opens sessions.
type ServerRegistry struct {
	mu       sync.RWMutex
	servers  map[string]ServerConnectionConfig
	initHook InitHook

	connector Connector
	secrets   SecretExpander
	logger    *slog.Logger
}

// NewServerRegistry creates a registry.
func NewServerRegistry(cfg RegistryConfig) *ServerRegistry {
	connector := cfg.Connector
	if connector == nil {
		connector = DefaultConnector{}
	}
	secrets := cfg.Secrets
	if secrets == nil {
		secrets = noExpand{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := &ServerRegistry{
		connector: connector,
		secrets:   secrets,
		initHook:  cfg.InitHook,
		logger:    logger.With("component", "mcp-registry"),
	}
	r.SetConfigs(cfg.Servers)
	return r
}

// GetServerConfig returns the configuration for name.
func (r *ServerRegistry) GetServerConfig(name string) (ServerConnectionConfig, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cfg, ok := r.servers[name]
	return cfg, ok
}

// ServerNames returns the configured server names in sorted order.
func (r *ServerRegistry) ServerNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Sorted(maps.Keys(r.servers))
}

// SetConfigs replaces the known configurations. Open sessions are unaffected.
func (r *ServerRegistry) SetConfigs(servers map[string]ServerConnectionConfig) {
	next := make(map[string]ServerConnectionConfig, len(servers))
	for name, cfg := range servers {
		cfg.Name = name
		next[name] = cfg
	}
	r.mu.Lock()
	r.servers = next
	r.mu.Unlock()
}

// SetInitHook replaces the init hook.
func (r *ServerRegistry) SetInitHook(hook InitHook) {
	r.mu.Lock()
	r.initHook = hook
	r.mu.Unlock()
}

// Connect opens a session that stays open until the caller closes it.
// ctx bounds the session's lifetime for stdio servers.
func (r *ServerRegistry) Connect(ctx context.Context, name string) (Session, error) {
	cfg, err := r.resolve(ctx, name)
	if err != nil {
		return nil, err
	}

	session, err := r.connector.Connect(ctx, cfg)
	if err != nil {
		if mcpErr := GetMCPError(err); mcpErr != nil {
			return nil, mcpErr
		}
		return nil, ErrInitialization(name, err.Error()).WithCause(err)
	}
	return session, nil
}

// StartServer opens a session, runs fn and closes the session on return.
func (r *ServerRegistry) StartServer(ctx context.Context, name string, fn func(ctx context.Context, session Session) error) error {
	session, err := r.Connect(ctx, name)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := session.Close(); cerr != nil {
			r.logger.Debug("error closing session", "server", name, "error", cerr)
		}
	}()
	return fn(ctx, session)
}

// InitializeServer is StartServer followed by the initialize handshake and
// the init hook.
func (r *ServerRegistry) InitializeServer(ctx context.Context, name string, fn func(ctx context.Context, session Session, result InitResult) error) error {
	return r.StartServer(ctx, name, func(ctx context.Context, session Session) error {
		result, err := r.Handshake(ctx, name, session)
		if err != nil {
			return err
		}
		return fn(ctx, session, result)
	})
}

// Handshake initializes session and runs the init hook. Only the
// initialize failure is returned as an error.
func (r *ServerRegistry) Handshake(ctx context.Context, name string, session Session) (InitResult, error) {
	caps, err := session.Initialize(ctx)
	if err != nil {
		return InitResult{}, ErrInitialization(name, err.Error()).WithCause(err)
	}
	result := InitResult{Capabilities: caps}

	r.mu.RLock()
	hook := r.initHook
	cfg := r.servers[name]
	r.mu.RUnlock()

	if hook != nil {
		if err := hook(ctx, name, session, cfg.Auth); err != nil {
			r.logger.Warn("init hook failed", "server", name, "error", err)
			result.HookErr = err
		}
	}
	return result, nil
}

// resolve validates the configuration for name and expands its secrets.
func (r *ServerRegistry) resolve(ctx context.Context, name string) (ServerConnectionConfig, error) {
	cfg, ok := r.GetServerConfig(name)
	if !ok {
		return ServerConnectionConfig{}, ErrServerNotFound(name)
	}
	if err := cfg.Validate(); err != nil {
		return ServerConnectionConfig{}, err
	}

	if len(cfg.Env) > 0 {
		env := make([]string, len(cfg.Env))
		for i, kv := range cfg.Env {
			key, value, _ := strings.Cut(kv, "=")
			expanded, err := r.secrets.Expand(ctx, value)
			if err != nil {
				return ServerConnectionConfig{}, ErrInvalidConfig(name, fmt.Sprintf("env %s: %v", key, err)).WithCause(err)
			}
			env[i] = key + "=" + expanded
		}
		cfg.Env = env
	}

	headers := make(map[string]string, len(cfg.Headers))
	for k, v := range cfg.Headers {
		expanded, err := r.secrets.Expand(ctx, v)
		if err != nil {
			return ServerConnectionConfig{}, ErrInvalidConfig(name, fmt.Sprintf("header %s: %v", k, err)).WithCause(err)
		}
		headers[k] = expanded
	}

	authHeaders, err := AuthHeaders(ctx, cfg.Auth, r.secrets)
	if err != nil {
		return ServerConnectionConfig{}, ErrInvalidConfig(name, err.Error()).WithCause(err)
	}
	maps.Copy(headers, authHeaders)
	if len(headers) > 0 {
		cfg.Headers = headers
	}

	return cfg, nil
}
