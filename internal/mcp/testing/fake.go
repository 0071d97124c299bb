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

// Package testing provides an in-memory Connector for exercising the mcp
// package without real servers.
package testing

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	mcpgo "github.com/mark3labs/mcp-go/mcp"

	"github.com/ZhihaoAIRobotic/MetaAgent-sub000/internal/mcp"
)

// FakeServer describes how sessions for one server behave.
type FakeServer struct {
	Tools   []mcpgo.Tool
	Prompts []mcpgo.Prompt

	// Capabilities overrides the advertised capabilities. By default tools
	// and prompts are advertised when present.
	Capabilities *mcp.Capabilities

	// PageSize splits list results into pages. Zero returns one page.
	PageSize int

	// CallFunc handles tool calls. The default echoes "server:tool".
	CallFunc func(ctx context.Context, name string, args map[string]any) (*mcpgo.CallToolResult, error)

	ConnectErr    error
	InitializeErr error
	CloseErr      error

	// ConnectDelay is served before Connect returns.
	ConnectDelay time.Duration
}

// FakeConnector implements mcp.Connector over FakeServers.
type FakeConnector struct {
	// Fallback handles servers that were not added. Optional.
	Fallback mcp.Connector

	mu       sync.Mutex
	servers  map[string]*FakeServer
	connects map[string]int
	closes   map[string]int
	calls    map[string]int
	configs  map[string]mcp.ServerConnectionConfig
	open     int
}

// NewFakeConnector creates an empty connector.
func NewFakeConnector() *FakeConnector {
	return &FakeConnector{
		servers:  make(map[string]*FakeServer),
		connects: make(map[string]int),
		closes:   make(map[string]int),
		calls:    make(map[string]int),
		configs:  make(map[string]mcp.ServerConnectionConfig),
	}
}

// AddServer registers the behavior for name.
func (c *FakeConnector) AddServer(name string, s *FakeServer) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.servers[name] = s
}

// Connect implements mcp.Connector.
func (c *FakeConnector) Connect(ctx context.Context, cfg mcp.ServerConnectionConfig) (mcp.Session, error) {
	c.mu.Lock()
	s, ok := c.servers[cfg.Name]
	c.mu.Unlock()
	if !ok {
		if c.Fallback != nil {
			return c.Fallback.Connect(ctx, cfg)
		}
		return nil, fmt.Errorf("fake: no server %q", cfg.Name)
	}

	if s.ConnectDelay > 0 {
		select {
		case <-time.After(s.ConnectDelay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	c.mu.Lock()
	c.connects[cfg.Name]++
	c.configs[cfg.Name] = cfg
	c.mu.Unlock()

	if s.ConnectErr != nil {
		return nil, s.ConnectErr
	}

	c.mu.Lock()
	c.open++
	c.mu.Unlock()
	return &FakeSession{name: cfg.Name, server: s, connector: c}, nil
}

// Connects returns how many times name was connected.
func (c *FakeConnector) Connects(name string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connects[name]
}

// Closes returns how many sessions for name were closed.
func (c *FakeConnector) Closes(name string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closes[name]
}

// LastConfig returns the resolved configuration of the last connect to name.
func (c *FakeConnector) LastConfig(name string) (mcp.ServerConnectionConfig, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	cfg, ok := c.configs[name]
	return cfg, ok
}

// Calls returns how many tool calls reached name.
func (c *FakeConnector) Calls(name string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[name]
}

// Open returns the number of sessions not yet closed.
func (c *FakeConnector) Open() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.open
}

// FakeSession implements mcp.Session.
type FakeSession struct {
	name      string
	server    *FakeServer
	connector *FakeConnector
	closeOnce sync.Once
}

func (s *FakeSession) Initialize(ctx context.Context) (mcp.Capabilities, error) {
	if s.server.InitializeErr != nil {
		return mcp.Capabilities{}, s.server.InitializeErr
	}
	if s.server.Capabilities != nil {
		return *s.server.Capabilities, nil
	}
	return mcp.Capabilities{
		Tools:           len(s.server.Tools) > 0,
		Prompts:         len(s.server.Prompts) > 0,
		ServerName:      "fake-" + s.name,
		ServerVersion:   "1.0.0",
		ProtocolVersion: mcpgo.LATEST_PROTOCOL_VERSION,
	}, nil
}

func (s *FakeSession) ListTools(ctx context.Context, cursor string) ([]mcpgo.Tool, string, error) {
	return page(s.server.Tools, s.server.PageSize, cursor)
}

func (s *FakeSession) ListPrompts(ctx context.Context, cursor string) ([]mcpgo.Prompt, string, error) {
	return page(s.server.Prompts, s.server.PageSize, cursor)
}

func (s *FakeSession) CallTool(ctx context.Context, name string, args map[string]any) (*mcpgo.CallToolResult, error) {
	s.connector.mu.Lock()
	s.connector.calls[s.name]++
	s.connector.mu.Unlock()

	if s.server.CallFunc != nil {
		return s.server.CallFunc(ctx, name, args)
	}
	for _, t := range s.server.Tools {
		if t.Name == name {
			return mcpgo.NewToolResultText(s.name + ":" + name), nil
		}
	}
	return nil, fmt.Errorf("unknown tool %q", name)
}

func (s *FakeSession) GetPrompt(ctx context.Context, name string, args map[string]string) (*mcpgo.GetPromptResult, error) {
	for _, p := range s.server.Prompts {
		if p.Name != name {
			continue
		}
		text := p.Description
		if topic, ok := args["topic"]; ok {
			text += ": " + topic
		}
		return &mcpgo.GetPromptResult{
			Description: p.Description,
			Messages: []mcpgo.PromptMessage{
				mcpgo.NewPromptMessage(mcpgo.RoleUser, mcpgo.NewTextContent(text)),
			},
		}, nil
	}
	return nil, fmt.Errorf("unknown prompt %q", name)
}

func (s *FakeSession) Ping(ctx context.Context) error {
	return nil
}

func (s *FakeSession) Close() error {
	s.closeOnce.Do(func() {
		s.connector.mu.Lock()
		s.connector.closes[s.name]++
		s.connector.open--
		s.connector.mu.Unlock()
	})
	return s.server.CloseErr
}

func page[T any](items []T, size int, cursor string) ([]T, string, error) {
	start := 0
	if cursor != "" {
		n, err := strconv.Atoi(cursor)
		if err != nil || n < 0 || n > len(items) {
			return nil, "", fmt.Errorf("invalid cursor %q", cursor)
		}
		start = n
	}
	if size <= 0 || start+size >= len(items) {
		return items[start:], "", nil
	}
	end := start + size
	return items[start:end], strconv.Itoa(end), nil
}
