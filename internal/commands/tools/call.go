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
	"fmt"
	"io"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/spf13/cobra"

	"github.com/ZhihaoAIRobotic/MetaAgent-sub000/internal/cli"
)

func newCallCommand(rt *cli.Runtime) *cobra.Command {
	var (
		argsJSON string
		confirm  bool
		jqExpr   string
	)

	cmd := &cobra.Command{
		Use:   "call <name>",
		Short: "Call a tool",
		Long: `Call a tool by its namespaced name. Arguments are a JSON object.

A tool that reports an error prints it and exits with status 1.`,
		Example: `  # Fetch a page
  metaagent tools call fetch_fetch --args '{"url": "https://example.com"}'

  # Ask before calling
  metaagent tools call filesystem_write_file --args '{"path": "a.txt", "content": "hi"}' --confirm`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCall(cmd, rt, args[0], argsJSON, confirm, jqExpr)
		},
	}

	cmd.Flags().StringVar(&argsJSON, "args", "", "Tool arguments as a JSON object")
	cmd.Flags().BoolVar(&confirm, "confirm", false, "Ask for confirmation before calling")
	cmd.Flags().StringVar(&jqExpr, "jq", "", "Filter the JSON result with a jq expression")

	return cmd
}

func runCall(cmd *cobra.Command, rt *cli.Runtime, name, argsJSON string, confirm bool, jqExpr string) error {
	ctx := cmd.Context()

	var args map[string]any
	if argsJSON != "" {
		if err := json.Unmarshal([]byte(argsJSON), &args); err != nil {
			return cli.NewUsageError("--args must be a JSON object", err)
		}
	}

	agg, err := rt.OpenAggregator(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = agg.Close(context.WithoutCancel(ctx)) }()

	if confirm {
		desc := "No arguments."
		if argsJSON != "" {
			desc = "Arguments: " + argsJSON
		}
		ok, err := rt.Confirm(ctx, fmt.Sprintf("Call tool %s?", name), desc)
		if err != nil {
			return cli.NewExecutionError("confirmation failed", err)
		}
		if !ok {
			return cli.NewExecutionError("tool call cancelled", nil)
		}
	}

	result := agg.CallTool(ctx, name, args)
	if err := rt.Emit(cmd, jqExpr, result, func(w io.Writer) error {
		return printContent(w, result.Content)
	}); err != nil {
		return err
	}
	if result.IsError {
		return cli.NewExecutionError(fmt.Sprintf("tool %s returned an error", name), nil)
	}
	return nil
}

func printContent(w io.Writer, content []mcp.Content) error {
	for _, c := range content {
		if text, ok := mcp.AsTextContent(c); ok {
			fmt.Fprintln(w, text.Text)
			continue
		}
		if err := cli.EmitJSON(w, c); err != nil {
			return err
		}
	}
	return nil
}
