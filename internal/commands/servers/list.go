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
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ZhihaoAIRobotic/MetaAgent-sub000/internal/cli"
	"github.com/ZhihaoAIRobotic/MetaAgent-sub000/internal/mcp"
)

type serverInfo struct {
	Name        string            `json:"name"`
	Transport   mcp.TransportKind `json:"transport"`
	Command     string            `json:"command,omitempty"`
	Args        []string          `json:"args,omitempty"`
	Env         []string          `json:"env,omitempty"`
	URL         string            `json:"url,omitempty"`
	ReadTimeout time.Duration     `json:"read_timeout,omitempty"`
	Auth        mcp.AuthType      `json:"auth,omitempty"`
	Include     []string          `json:"include,omitempty"`
	Exclude     []string          `json:"exclude,omitempty"`
}

func newListCommand(rt *cli.Runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List configured servers",
		Long: `List the servers configured in mcp.yaml. Nothing is started.

Secret-looking environment values are redacted.`,
		Example: `  # List servers
  metaagent servers list

  # Get the list as JSON
  metaagent servers list --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runList(cmd, rt)
		},
	}
}

func runList(cmd *cobra.Command, rt *cli.Runtime) error {
	a, err := rt.App(cmd.Context())
	if err != nil {
		return err
	}

	var servers []serverInfo
	for _, name := range a.Registry.ServerNames() {
		cfg, _ := a.Registry.GetServerConfig(name)
		info := serverInfo{
			Name:        name,
			Transport:   cfg.Transport,
			Command:     cfg.Command,
			Args:        cfg.Args,
			Env:         mcp.RedactEnv(cfg.Env),
			URL:         cfg.URL,
			ReadTimeout: cfg.ReadTimeout,
			Include:     cfg.Include,
			Exclude:     cfg.Exclude,
		}
		if cfg.Auth != nil {
			info.Auth = cfg.Auth.Type
		}
		servers = append(servers, info)
	}

	return rt.Emit(cmd, "", map[string]any{"servers": servers}, func(w io.Writer) error {
		if len(servers) == 0 {
			fmt.Fprintln(w, "No MCP servers configured.")
			fmt.Fprintf(w, "\nAdd servers to %s\n", a.MCPConfigPath)
			return nil
		}

		fmt.Fprintln(w, cli.Header.Render(fmt.Sprintf("%-20s %-16s %s", "NAME", "TRANSPORT", "TARGET")))
		fmt.Fprintln(w, strings.Repeat("-", 70))
		for _, s := range servers {
			fmt.Fprintf(w, "%-20s %-16s %s\n", cli.Truncate(s.Name, 20), s.Transport, target(s))
		}
		return nil
	})
}

func target(s serverInfo) string {
	if s.Transport == mcp.TransportStdio {
		return strings.TrimSpace(s.Command + " " + strings.Join(s.Args, " "))
	}
	return s.URL
}
