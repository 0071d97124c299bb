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

/*
Package cli provides the root command and the helpers shared by every
metaagent command.

# Command Tree

	metaagent
	├── servers   list, check
	├── tools     list, call
	├── prompts   list, get
	└── watch     keep the catalog live and serve /metrics

# Usage

From main.go:

	rt := cli.NewRuntime(version)
	defer rt.Close(ctx)
	root := cli.NewRootCommand(rt)
	root.AddCommand(servers.NewCommand(rt), ...)
	if err := root.ExecuteContext(ctx); err != nil {
	    os.Exit(cli.HandleExitError(root.ErrOrStderr(), err))
	}

# Global Flags

	--config        Path to config.yaml
	--mcp-config    Path to mcp.yaml
	--json          Output in JSON format
	--verbose, -v   Enable debug logging

# Exit Codes

  - 0: success
  - 1: the operation failed (including error results from a tool)
  - 2: invalid usage or configuration
*/
package cli
