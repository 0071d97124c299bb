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

// Package tools implements the 'tools' commands.
package tools

import (
	"github.com/spf13/cobra"

	"github.com/ZhihaoAIRobotic/MetaAgent-sub000/internal/cli"
)

// NewCommand creates the tools command group.
func NewCommand(rt *cli.Runtime) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tools",
		Short: "List and call tools from the aggregated catalog",
		Long: `List and call the tools of every configured MCP server.

Tools are named <server>_<tool>, for example "filesystem_read_file".

Commands:
  list  List tools
  call  Call a tool`,
	}

	cmd.AddCommand(newListCommand(rt))
	cmd.AddCommand(newCallCommand(rt))

	return cmd
}
