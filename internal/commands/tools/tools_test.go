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

package tools

import (
	"context"
	"encoding/json"
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
    command: fetch-server
  filesystem:
    command: fs-server
    exclude: ["delete_*"]
`

func newHarness(t *testing.T, configYAML string) *clitest.Harness {
	t.Helper()
	h := clitest.New(t, configYAML, serversYAML)
	h.Connector.AddServer("fetch", &mcptesting.FakeServer{
		Tools: []mcp.Tool{mcp.NewTool("fetch", mcp.WithDescription("Fetch a URL"))},
	})
	h.Connector.AddServer("filesystem", &mcptesting.FakeServer{
		Tools: []mcp.Tool{
			mcp.NewTool("read_file", mcp.WithDescription("Read a file")),
			mcp.NewTool("delete_file"),
		},
		CallFunc: func(ctx context.Context, name string, args map[string]any) (*mcp.CallToolResult, error) {
			path, _ := args["path"].(string)
			return mcp.NewToolResultText("contents of " + path), nil
		},
	})
	return h
}

func run(t *testing.T, h *clitest.Harness, args ...string) (string, error) {
	t.Helper()
	out, _, err := h.Run(context.Background(), []*cobra.Command{NewCommand(h.Runtime)}, args...)
	return out, err
}

func TestList(t *testing.T) {
	h := newHarness(t, "")

	out, err := run(t, h, "tools", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "fetch_fetch")
	assert.Contains(t, out, "filesystem_read_file")
	assert.Contains(t, out, "Fetch a URL")
	assert.NotContains(t, out, "filesystem_delete_file", "excluded by filter")
}

func TestList_Server(t *testing.T) {
	h := newHarness(t, "")

	out, err := run(t, h, "tools", "list", "--server", "filesystem", "--json")
	require.NoError(t, err)

	var resp struct {
		Tools []toolInfo `json:"tools"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.Len(t, resp.Tools, 1)
	assert.Equal(t, "filesystem_read_file", resp.Tools[0].Name)
	assert.Equal(t, "read_file", resp.Tools[0].Tool)
	assert.Zero(t, h.Connector.Connects("fetch"))
}

func TestList_JQ(t *testing.T) {
	h := newHarness(t, "")

	out, err := run(t, h, "tools", "list", "--jq", ".tools[].name")
	require.NoError(t, err)
	assert.Equal(t, "fetch_fetch\nfilesystem_read_file\n", out)
}

func TestList_UnknownServer(t *testing.T) {
	h := newHarness(t, "")

	_, err := run(t, h, "tools", "list", "--server", "ghost")
	var exitErr *cli.ExitError
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, cli.ExitUsage, exitErr.Code)
}

func TestCall(t *testing.T) {
	for name, configYAML := range map[string]string{
		"persistent": "",
		"temporary":  "connection_persistence: false\n",
	} {
		t.Run(name, func(t *testing.T) {
			h := newHarness(t, configYAML)

			out, err := run(t, h, "tools", "call", "filesystem_read_file", "--args", `{"path": "notes.txt"}`)
			require.NoError(t, err)
			assert.Equal(t, "contents of notes.txt\n", out)
			assert.Equal(t, 1, h.Connector.Calls("filesystem"))
		})
	}
}

func TestCall_JQ(t *testing.T) {
	h := newHarness(t, "")

	out, err := run(t, h, "tools", "call", "fetch_fetch", "--jq", ".content[0].text")
	require.NoError(t, err)
	assert.Equal(t, "fetch:fetch\n", out)
}

func TestCall_NotFound(t *testing.T) {
	h := newHarness(t, "")

	out, err := run(t, h, "tools", "call", "ghost_tool")
	var exitErr *cli.ExitError
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, cli.ExitFailed, exitErr.Code)
	assert.Contains(t, out, "not found")
}

func TestCall_BadArgs(t *testing.T) {
	h := newHarness(t, "")

	_, err := run(t, h, "tools", "call", "fetch_fetch", "--args", "[1, 2]")
	var exitErr *cli.ExitError
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, cli.ExitUsage, exitErr.Code)
	assert.Zero(t, h.Connector.Connects("fetch"), "arguments are checked before connecting")
}

func TestCall_Confirm(t *testing.T) {
	h := newHarness(t, "")
	prompter := &clitest.Prompter{Answer: false}
	h.Runtime.Prompter = prompter

	_, err := run(t, h, "tools", "call", "fetch_fetch", "--confirm")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cancelled")
	assert.Zero(t, h.Connector.Calls("fetch"))
	assert.Len(t, prompter.Asked, 1)

	prompter.Answer = true
	out, err := run(t, h, "tools", "call", "fetch_fetch", "--confirm")
	require.NoError(t, err)
	assert.Equal(t, "fetch:fetch\n", out)
	assert.Equal(t, 1, h.Connector.Calls("fetch"))
}
