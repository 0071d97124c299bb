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

package app

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	mcpgo "github.com/mark3labs/mcp-go/mcp"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZhihaoAIRobotic/MetaAgent-sub000/internal/durable"
	"github.com/ZhihaoAIRobotic/MetaAgent-sub000/internal/executor"
	mcptesting "github.com/ZhihaoAIRobotic/MetaAgent-sub000/internal/mcp/testing"
	"github.com/ZhihaoAIRobotic/MetaAgent-sub000/internal/signal"
)

const serversYAML = `
servers:
  fetch:
    command: fetch-server
  filesystem:
    command: fs-server
`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func newTestContext(t *testing.T, configYAML string, fc *mcptesting.FakeConnector) *Context {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)

	c, err := New(context.Background(), Options{
		Version:       "test",
		ConfigPath:    writeFile(t, dir, "config.yaml", configYAML),
		MCPConfigPath: writeFile(t, dir, "mcp.yaml", serversYAML),
		LogOutput:     &bytes.Buffer{},
		Connector:     fc,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close(context.Background()) })
	return c
}

func TestNew_LocalEngine(t *testing.T) {
	c := newTestContext(t, "", mcptesting.NewFakeConnector())

	assert.Nil(t, c.Store)
	assert.IsType(t, &executor.Local{}, c.Executor)
	assert.IsType(t, &signal.LocalHandler{}, c.Signals)
	assert.Equal(t, []string{"fetch", "filesystem"}, c.Registry.ServerNames())
	assert.True(t, c.Config.Persistent())
}

func TestNew_DurableEngine(t *testing.T) {
	c := newTestContext(t, "execution_engine: durable\n", mcptesting.NewFakeConnector())

	require.NotNil(t, c.Store)
	assert.IsType(t, &durable.MemoryStore{}, c.Store)
	assert.IsType(t, &executor.Durable{}, c.Executor)
	assert.IsType(t, &signal.DurableHandler{}, c.Signals)
}

func TestNew_SQLiteStore(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "state.db")
	c := newTestContext(t, "execution_engine: durable\nexecutor:\n  store:\n    driver: sqlite\n    path: "+dbPath+"\n", mcptesting.NewFakeConnector())

	require.NotNil(t, c.Store)
	assert.FileExists(t, dbPath)
}

func TestNew_InvalidServers(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)

	_, err := New(context.Background(), Options{
		ConfigPath:    writeFile(t, dir, "config.yaml", ""),
		MCPConfigPath: writeFile(t, dir, "mcp.yaml", "servers:\n  broken:\n    transport: sse\n"),
		LogOutput:     &bytes.Buffer{},
	})
	require.Error(t, err)
}

func TestNewAggregator_UsesSharedServices(t *testing.T) {
	fc := mcptesting.NewFakeConnector()
	fc.AddServer("fetch", &mcptesting.FakeServer{Tools: []mcpgo.Tool{mcpgo.NewTool("fetch")}})
	fc.AddServer("filesystem", &mcptesting.FakeServer{Tools: []mcpgo.Tool{mcpgo.NewTool("read_file")}})
	c := newTestContext(t, "", fc)
	ctx := context.Background()

	first, err := c.NewAggregator(nil)
	require.NoError(t, err)
	require.NoError(t, first.Initialize(ctx))
	second, err := c.NewAggregator([]string{"fetch"})
	require.NoError(t, err)
	require.NoError(t, second.Initialize(ctx))

	assert.Len(t, first.ListTools(""), 2)
	assert.Len(t, second.ListTools(""), 1)
	assert.Equal(t, 2, c.Shared.Refs())
	assert.Equal(t, 1, fc.Connects("fetch"), "aggregators share one connection per server")

	result := second.CallTool(ctx, "fetch_fetch", nil)
	assert.False(t, result.IsError)

	require.NoError(t, first.Close(ctx))
	require.NoError(t, second.Close(ctx))
	assert.Equal(t, 0, c.Shared.Refs())
	assert.Nil(t, c.Shared.Manager())

	n, err := testutil.GatherAndCount(c.Prometheus, "metaagent_mcp_tool_calls_total")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestClose_Idempotent(t *testing.T) {
	c := newTestContext(t, "", mcptesting.NewFakeConnector())
	require.NoError(t, c.Close(context.Background()))
	require.NoError(t, c.Close(context.Background()))
}
