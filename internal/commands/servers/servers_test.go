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

package servers

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZhihaoAIRobotic/MetaAgent-sub000/internal/cli"
	"github.com/ZhihaoAIRobotic/MetaAgent-sub000/internal/cli/clitest"
	mcptesting "github.com/ZhihaoAIRobotic/MetaAgent-sub000/internal/mcp/testing"
)

const serversYAML = `
servers:
  fetch:
    command: uvx
    args: [mcp-server-fetch]
    env: [API_TOKEN=secret-value, MODE=fast]
  remote:
    transport: sse
    url: https://mcp.example.com/sse
`

func run(t *testing.T, h *clitest.Harness, args ...string) (string, error) {
	t.Helper()
	out, _, err := h.Run(context.Background(), []*cobra.Command{NewCommand(h.Runtime)}, args...)
	return out, err
}

func TestList(t *testing.T) {
	h := clitest.New(t, "", serversYAML)

	out, err := run(t, h, "servers", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "NAME")
	assert.Contains(t, out, "uvx mcp-server-fetch")
	assert.Contains(t, out, "https://mcp.example.com/sse")
	assert.Zero(t, h.Connector.Open(), "list does not connect")
}

func TestList_JSONRedactsSecrets(t *testing.T) {
	h := clitest.New(t, "", serversYAML)

	out, err := run(t, h, "servers", "list", "--json")
	require.NoError(t, err)

	var resp struct {
		Servers []serverInfo `json:"servers"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.Len(t, resp.Servers, 2)
	assert.Equal(t, "fetch", resp.Servers[0].Name)
	assert.NotContains(t, out, "secret-value")
	assert.Contains(t, resp.Servers[0].Env, "MODE=fast")
}

func TestList_Empty(t *testing.T) {
	h := clitest.New(t, "", "")

	out, err := run(t, h, "servers", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "No MCP servers configured.")
	assert.Contains(t, out, h.MCPConfigPath)
}

func TestCheck(t *testing.T) {
	h := clitest.New(t, "", "servers:\n  fetch:\n    command: fetch-server\n  broken:\n    command: broken-server\n")
	h.Connector.AddServer("fetch", &mcptesting.FakeServer{Tools: []mcp.Tool{mcp.NewTool("fetch")}})
	h.Connector.AddServer("broken", &mcptesting.FakeServer{ConnectErr: errors.New("executable not found")})

	out, err := run(t, h, "servers", "check", "fetch")
	require.NoError(t, err)
	assert.Contains(t, out, "fetch: INITIALIZED")
	assert.Contains(t, out, "capabilities: tools")
	assert.Contains(t, out, "fake-fetch")

	out, err = run(t, h, "servers", "check")
	var exitErr *cli.ExitError
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, cli.ExitFailed, exitErr.Code)
	assert.Contains(t, err.Error(), "1 of 2 servers failed")
	assert.Contains(t, out, "broken: ERROR")
	assert.Contains(t, out, "executable not found")
	assert.Contains(t, out, "fetch: INITIALIZED")
}

func TestCheck_UnknownServer(t *testing.T) {
	h := clitest.New(t, "", serversYAML)

	_, err := run(t, h, "servers", "check", "ghost")
	var exitErr *cli.ExitError
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, cli.ExitUsage, exitErr.Code)
}
