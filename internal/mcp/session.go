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
	"time"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"
)

// Session is an open client session with one MCP server.
type Session interface {
	// Initialize performs the protocol handshake.
	Initialize(ctx context.Context) (Capabilities, error)

	// ListTools returns one page of tools and the cursor for the next page.
	// An empty next cursor means there are no more pages.
	ListTools(ctx context.Context, cursor string) (tools []mcp.Tool, next string, err error)

	// ListPrompts returns one page of prompts and the cursor for the next page.
	ListPrompts(ctx context.Context, cursor string) (prompts []mcp.Prompt, next string, err error)

	CallTool(ctx context.Context, name string, args map[string]any) (*mcp.CallToolResult, error)
	GetPrompt(ctx context.Context, name string, args map[string]string) (*mcp.GetPromptResult, error)
	Ping(ctx context.Context) error
	Close() error
}

// clientSession adapts an mcp-go client to Session.
type clientSession struct {
	client      *client.Client
	readTimeout time.Duration
	info        mcp.Implementation
}

// NewClientSession wraps a started mcp-go client. Each request is bounded
// by readTimeout when it is positive.
func NewClientSession(c *client.Client, readTimeout time.Duration, info mcp.Implementation) Session {
	return &clientSession{client: c, readTimeout: readTimeout, info: info}
}

func (s *clientSession) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.readTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.readTimeout)
}

func (s *clientSession) Initialize(ctx context.Context) (Capabilities, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	req := mcp.InitializeRequest{}
	req.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	req.Params.ClientInfo = s.info

	result, err := s.client.Initialize(ctx, req)
	if err != nil {
		return Capabilities{}, fmt.Errorf("initialize request failed: %w", err)
	}

	return Capabilities{
		Tools:           result.Capabilities.Tools != nil,
		Prompts:         result.Capabilities.Prompts != nil,
		Resources:       result.Capabilities.Resources != nil,
		ServerName:      result.ServerInfo.Name,
		ServerVersion:   result.ServerInfo.Version,
		ProtocolVersion: result.ProtocolVersion,
	}, nil
}

func (s *clientSession) ListTools(ctx context.Context, cursor string) ([]mcp.Tool, string, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	req := mcp.ListToolsRequest{}
	req.Params.Cursor = mcp.Cursor(cursor)

	result, err := s.client.ListTools(ctx, req)
	if err != nil {
		return nil, "", fmt.Errorf("failed to list tools: %w", err)
	}
	return result.Tools, string(result.NextCursor), nil
}

func (s *clientSession) ListPrompts(ctx context.Context, cursor string) ([]mcp.Prompt, string, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	req := mcp.ListPromptsRequest{}
	req.Params.Cursor = mcp.Cursor(cursor)

	result, err := s.client.ListPrompts(ctx, req)
	if err != nil {
		return nil, "", fmt.Errorf("failed to list prompts: %w", err)
	}
	return result.Prompts, string(result.NextCursor), nil
}

func (s *clientSession) CallTool(ctx context.Context, name string, args map[string]any) (*mcp.CallToolResult, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args

	result, err := s.client.CallTool(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("tool call failed: %w", err)
	}
	return result, nil
}

func (s *clientSession) GetPrompt(ctx context.Context, name string, args map[string]string) (*mcp.GetPromptResult, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	req := mcp.GetPromptRequest{}
	req.Params.Name = name
	req.Params.Arguments = args

	result, err := s.client.GetPrompt(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("get prompt failed: %w", err)
	}
	return result, nil
}

func (s *clientSession) Ping(ctx context.Context) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	return s.client.Ping(ctx)
}

func (s *clientSession) Close() error {
	return s.client.Close()
}
