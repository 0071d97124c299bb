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

// Package clitest runs metaagent commands against fake MCP servers.
package clitest

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"

	"github.com/ZhihaoAIRobotic/MetaAgent-sub000/internal/app"
	"github.com/ZhihaoAIRobotic/MetaAgent-sub000/internal/cli"
	mcptesting "github.com/ZhihaoAIRobotic/MetaAgent-sub000/internal/mcp/testing"
)

// Harness holds a Runtime wired to a FakeConnector and temporary config files.
type Harness struct {
	Runtime   *cli.Runtime
	Connector *mcptesting.FakeConnector

	ConfigPath    string
	MCPConfigPath string
}

// New writes configYAML and serversYAML to a temp config dir and returns a
// harness over them. The runtime is closed when the test ends.
func New(t *testing.T, configYAML, serversYAML string) *Harness {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)
	t.Setenv("METAAGENT_NON_INTERACTIVE", "true")

	h := &Harness{
		Connector:     mcptesting.NewFakeConnector(),
		ConfigPath:    filepath.Join(dir, "config.yaml"),
		MCPConfigPath: filepath.Join(dir, "mcp.yaml"),
	}
	require.NoError(t, os.WriteFile(h.ConfigPath, []byte(configYAML), 0o600))
	require.NoError(t, os.WriteFile(h.MCPConfigPath, []byte(serversYAML), 0o600))

	h.Runtime = cli.NewRuntime("test")
	h.Runtime.Base = app.Options{
		ConfigPath:    h.ConfigPath,
		MCPConfigPath: h.MCPConfigPath,
		LogOutput:     io.Discard,
		Connector:     h.Connector,
	}
	t.Cleanup(func() { _ = h.Runtime.Close(context.Background()) })
	return h
}

// Run executes args under a root command with commands attached and
// returns what was written to stdout and stderr.
func (h *Harness) Run(ctx context.Context, commands []*cobra.Command, args ...string) (stdout, stderr string, err error) {
	root := cli.NewRootCommand(h.Runtime)
	root.AddCommand(commands...)
	root.SetArgs(args)

	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	err = root.ExecuteContext(ctx)
	return out.String(), errOut.String(), err
}

// Prompter answers every confirmation with Answer and counts the questions.
type Prompter struct {
	Answer bool
	Err    error
	Asked  []string
}

// Confirm implements cli.Prompter.
func (p *Prompter) Confirm(ctx context.Context, title, description string) (bool, error) {
	p.Asked = append(p.Asked, title)
	return p.Answer, p.Err
}
