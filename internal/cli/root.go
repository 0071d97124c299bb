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

package cli

import (
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// NewRootCommand creates the root command. Subcommands are added by main.
func NewRootCommand(rt *Runtime) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "metaagent",
		Short: "MetaAgent - one catalog over many MCP servers",
		Long: `MetaAgent connects to the MCP servers listed in mcp.yaml and presents
their tools and prompts as one namespaced catalog. A tool "fetch" on the
server "web" is called as "web_fetch".

Run 'metaagent servers check' to verify your servers can be reached.`,
		Version:       rt.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rt.Flags.Register(cmd.PersistentFlags())

	return cmd
}

// Register binds the global flags to fs.
func (f *Flags) Register(fs *pflag.FlagSet) {
	fs.StringVar(&f.ConfigPath, "config", "", "Path to config file (default: ~/.config/metaagent/config.yaml)")
	fs.StringVar(&f.MCPConfigPath, "mcp-config", "", "Path to MCP server file (default: ~/.config/metaagent/mcp.yaml)")
	fs.BoolVar(&f.JSON, "json", false, "Output in JSON format")
	fs.BoolVarP(&f.Verbose, "verbose", "v", false, "Enable verbose output")
}
