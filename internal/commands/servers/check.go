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
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ZhihaoAIRobotic/MetaAgent-sub000/internal/cli"
	"github.com/ZhihaoAIRobotic/MetaAgent-sub000/internal/durable"
	"github.com/ZhihaoAIRobotic/MetaAgent-sub000/internal/executor"
	"github.com/ZhihaoAIRobotic/MetaAgent-sub000/internal/mcp"
)

func newCheckCommand(rt *cli.Runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "check [name...]",
		Short: "Connect to servers and report their state",
		Long: `Connect to each named server (all servers by default), run the MCP
initialize handshake and print the resulting state, capabilities and error.

Exits with status 1 if any server fails.`,
		Example: `  # Check every server
  metaagent servers check

  # Check two servers
  metaagent servers check fetch filesystem`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheck(cmd, rt, args)
		},
	}
}

func runCheck(cmd *cobra.Command, rt *cli.Runtime, names []string) error {
	ctx := cmd.Context()
	a, err := rt.App(ctx)
	if err != nil {
		return err
	}
	if len(names) == 0 {
		names = a.Registry.ServerNames()
	}
	for _, name := range names {
		if _, ok := a.Registry.GetServerConfig(name); !ok {
			return cli.NewUsageError("unknown server", mcp.ErrServerNotFound(name))
		}
	}

	manager := a.Shared.Acquire()
	defer func() { _, _ = a.Shared.Release(context.WithoutCancel(ctx)) }()

	results, err := executor.Map(durable.WithWorkflow(ctx, durable.NewWorkflowID()), a.Executor, names,
		func(ctx context.Context, name string) (any, error) {
			_, err := manager.GetServer(ctx, name)
			return name, err
		})
	if err != nil {
		return cli.NewExecutionError("check failed", err)
	}

	byName := make(map[string]mcp.ServerStatus)
	for _, st := range manager.Status() {
		byName[st.Name] = st
	}
	statuses := make([]mcp.ServerStatus, len(names))
	failed := 0
	for i, name := range names {
		st, ok := byName[name]
		if !ok {
			st = mcp.ServerStatus{Name: name, State: mcp.StateError}
		}
		if err := results[i].Err; err != nil {
			failed++
			if st.Error == "" {
				st.Error = err.Error()
			}
			st.State = mcp.StateError
		}
		statuses[i] = st
	}

	err = rt.Emit(cmd, "", map[string]any{"servers": statuses}, func(w io.Writer) error {
		for _, st := range statuses {
			printStatus(w, st)
		}
		return nil
	})
	if err != nil {
		return err
	}
	if failed > 0 {
		return cli.NewExecutionError(fmt.Sprintf("%d of %d servers failed", failed, len(names)), nil)
	}
	return nil
}

func printStatus(w io.Writer, st mcp.ServerStatus) {
	if st.State != mcp.StateInitialized {
		fmt.Fprintln(w, cli.RenderError(fmt.Sprintf("%s: %s", st.Name, st.State)))
		if st.Error != "" {
			fmt.Fprintf(w, "    %s\n", cli.Muted.Render(st.Error))
		}
		return
	}

	fmt.Fprintln(w, cli.RenderOK(fmt.Sprintf("%s: %s", st.Name, st.State)))
	if caps := st.Capabilities; caps != nil {
		if caps.ServerName != "" {
			fmt.Fprintf(w, "    server:       %s %s\n", caps.ServerName, caps.ServerVersion)
		}
		var offered []string
		if caps.Tools {
			offered = append(offered, "tools")
		}
		if caps.Prompts {
			offered = append(offered, "prompts")
		}
		if caps.Resources {
			offered = append(offered, "resources")
		}
		if len(offered) == 0 {
			offered = append(offered, "none")
		}
		fmt.Fprintf(w, "    capabilities: %s\n", strings.Join(offered, ", "))
	}
	if st.Uptime > 0 {
		fmt.Fprintf(w, "    uptime:       %s\n", st.Uptime.Round(time.Millisecond))
	}
}
