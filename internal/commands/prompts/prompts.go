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

// Package prompts implements the 'prompts' commands.
package prompts

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/spf13/cobra"

	"github.com/ZhihaoAIRobotic/MetaAgent-sub000/internal/cli"
)

// NewCommand creates the prompts command group.
func NewCommand(rt *cli.Runtime) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "prompts",
		Short: "List and render prompts from the aggregated catalog",
	}

	cmd.AddCommand(newListCommand(rt))
	cmd.AddCommand(newGetCommand(rt))

	return cmd
}

type promptInfo struct {
	Name        string               `json:"name"`
	Server      string               `json:"server"`
	Prompt      string               `json:"prompt"`
	Description string               `json:"description,omitempty"`
	Arguments   []mcp.PromptArgument `json:"arguments,omitempty"`
}

func newListCommand(rt *cli.Runtime) *cobra.Command {
	var server string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List prompts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
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

			catalog := agg.ListPrompts("")
			infos := make([]promptInfo, len(catalog))
			for i, p := range catalog {
				infos[i] = promptInfo{
					Name:        p.NamespacedName,
					Server:      p.ServerName,
					Prompt:      p.Item.Name,
					Description: p.Item.Description,
					Arguments:   p.Item.Arguments,
				}
			}

			return rt.Emit(cmd, "", map[string]any{"prompts": infos}, func(w io.Writer) error {
				if len(infos) == 0 {
					fmt.Fprintln(w, "No prompts available.")
					return nil
				}
				fmt.Fprintln(w, cli.Header.Render(fmt.Sprintf("%-36s %-24s %s", "NAME", "ARGUMENTS", "DESCRIPTION")))
				fmt.Fprintln(w, strings.Repeat("-", 90))
				for _, p := range infos {
					fmt.Fprintf(w, "%-36s %-24s %s\n", cli.Truncate(p.Name, 36), cli.Truncate(argNames(p.Arguments), 24), cli.Truncate(p.Description, 40))
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&server, "server", "", "Only list prompts from this server")

	return cmd
}

func argNames(args []mcp.PromptArgument) string {
	names := make([]string, len(args))
	for i, a := range args {
		names[i] = a.Name
		if a.Required {
			names[i] += "*"
		}
	}
	return strings.Join(names, ",")
}

func newGetCommand(rt *cli.Runtime) *cobra.Command {
	var args map[string]string

	cmd := &cobra.Command{
		Use:   "get <name>",
		Short: "Render a prompt",
		Example: `  # Render a prompt with arguments
  metaagent prompts get docs_summarize --arg topic=mcp --arg length=short`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, positional []string) error {
			ctx := cmd.Context()
			agg, err := rt.OpenAggregator(ctx, nil)
			if err != nil {
				return err
			}
			defer func() { _ = agg.Close(context.WithoutCancel(ctx)) }()

			result := agg.GetPrompt(ctx, positional[0], args)
			if err := rt.Emit(cmd, "", result, func(w io.Writer) error {
				if result.IsError {
					fmt.Fprintln(w, cli.RenderError(result.Error))
					return nil
				}
				if result.Description != "" {
					fmt.Fprintln(w, cli.Muted.Render(result.Description))
				}
				for _, m := range result.Messages {
					fmt.Fprintf(w, "[%s] ", m.Role)
					if text, ok := mcp.AsTextContent(m.Content); ok {
						fmt.Fprintln(w, text.Text)
						continue
					}
					if err := cli.EmitJSON(w, m.Content); err != nil {
						return err
					}
				}
				return nil
			}); err != nil {
				return err
			}
			if result.IsError {
				return cli.NewExecutionError(fmt.Sprintf("prompt %s failed", positional[0]), nil)
			}
			return nil
		},
	}

	cmd.Flags().StringToStringVar(&args, "arg", nil, "Prompt argument as key=value (repeatable)")

	return cmd
}
