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

// Package servers implements the 'servers' commands.
package servers

import (
	"github.com/spf13/cobra"

	"github.com/ZhihaoAIRobotic/MetaAgent-sub000/internal/cli"
)

// NewCommand creates the servers command group.
func NewCommand(rt *cli.Runtime) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "servers",
		Short: "Inspect the configured MCP servers",
		Long: `Inspect the MCP servers configured in mcp.yaml.

Commands:
  list   List configured servers
  check  Connect to servers and report their state`,
	}

	cmd.AddCommand(newListCommand(rt))
	cmd.AddCommand(newCheckCommand(rt))

	return cmd
}
