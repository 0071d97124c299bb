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

package mcp_test

import (
	"log/slog"
	"testing"

	mcpgo "github.com/mark3labs/mcp-go/mcp"

	"github.com/ZhihaoAIRobotic/MetaAgent-sub000/internal/mcp"
	mcptesting "github.com/ZhihaoAIRobotic/MetaAgent-sub000/internal/mcp/testing"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func stdioConfig() mcp.ServerConnectionConfig {
	return mcp.ServerConnectionConfig{Transport: mcp.TransportStdio, Command: "fake-server"}
}

func toolsNamed(names ...string) []mcpgo.Tool {
	out := make([]mcpgo.Tool, len(names))
	for i, n := range names {
		out[i] = mcpgo.NewTool(n, mcpgo.WithDescription(n+" tool"))
	}
	return out
}

// newRegistry returns a registry whose servers are all served by fc.
func newRegistry(t *testing.T, fc *mcptesting.FakeConnector, servers ...string) *mcp.ServerRegistry {
	t.Helper()
	configs := make(map[string]mcp.ServerConnectionConfig, len(servers))
	for _, name := range servers {
		configs[name] = stdioConfig()
	}
	return mcp.NewServerRegistry(mcp.RegistryConfig{
		Servers:   configs,
		Connector: fc,
		Logger:    discardLogger(),
	})
}

func newManager(reg *mcp.ServerRegistry) *mcp.ConnectionManager {
	return mcp.NewConnectionManager(mcp.ManagerConfig{
		Registry:          reg,
		Logger:            discardLogger(),
		ReconnectInterval: -1,
	})
}

func textOf(t *testing.T, r *mcpgo.CallToolResult) string {
	t.Helper()
	if r == nil || len(r.Content) == 0 {
		t.Fatalf("result has no content: %+v", r)
	}
	tc, ok := mcpgo.AsTextContent(r.Content[0])
	if !ok {
		t.Fatalf("content is not text: %+v", r.Content[0])
	}
	return tc.Text
}
