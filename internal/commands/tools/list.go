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
	"fmt"
	"io"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/spf13/cobra"

	"github.com/ZhihaoAIRobotic/MetaAgent-sub000/internal/cli"
)

type toolInfo struct {
	Name        string              `json:"name"`
	Server      string              `json:"server"`
	Tool        string              `json:"tool"`
	Description string              `json:"description,omitempty"`
	InputSchema mcp.ToolInputSchema `json:"input_schema"`
}

func newListCommand(rt *cli.Runtime) *cobra.Command {
	var (
		server string
		jqExpr string
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tools",
		Example: `  # List every tool
  metaagent tools list

  # Only one server's tools
  metaagent tools list --server filesystem

  # Print just the names
  metaagent tools list --jq '.tools[].name'`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runList(cmd, rt, server, jqExpr)
		},
	}

	cmd.Flags().StringVar(&server, "server", "", "Only list tools from this server")
	cmd.Flags().StringVar(&jqExpr, "jq", "", "Filter the JSON output with a jq expression")

	return cmd
}

func runList(cmd *cobra.Command, rt *cli.Runtime, server, jqExpr string) error {
	ctx := cmd.Context()
	var servers []string
	if server != "" {
		servers = []string{server}
	}
	agg, err := rt.OpenAggregator(ctx, servers)
	if err != nil {
		return err
	}
	defer func() { _ = agg.Close(context.WithoutCancel(ctx)) }()

	catalog := agg.ListTools("")
	infos := make([]toolInfo, len(catalog))
	for i, t := range catalog {
		infos[i] = toolInfo{
			Name:        t.NamespacedName,
			Server:      t.ServerName,
			Tool:        t.Item.Name,
			Description: t.Item.Description,
			InputSchema: t.Item.InputSchema,
		}
	}

	return rt.Emit(cmd, jqExpr, map[string]any{"tools": infos}, func(w io.Writer) error {
		if len(infos) == 0 {
			fmt.Fprintln(w, "No tools available.")
			return nil
		}
		fmt.Fprintln(w, cli.Header.Render(fmt.Sprintf("%-36s %-16s %s", "NAME", "SERVER", "DESCRIPTION")))
		fmt.Fprintln(w, strings.Repeat("-", 90))
		for _, t := range infos {
			desc := strings.SplitN(t.Description, "\n", 2)[0]
			fmt.Fprintf(w, "%-36s %-16s %s\n", cli.Truncate(t.Name, 36), cli.Truncate(t.Server, 16), cli.Truncate(desc, 60))
		}
		return nil
	})
}
