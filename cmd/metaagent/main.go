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

package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ZhihaoAIRobotic/MetaAgent-sub000/internal/cli"
	"github.com/ZhihaoAIRobotic/MetaAgent-sub000/internal/commands/prompts"
	"github.com/ZhihaoAIRobotic/MetaAgent-sub000/internal/commands/servers"
	"github.com/ZhihaoAIRobotic/MetaAgent-sub000/internal/commands/tools"
	"github.com/ZhihaoAIRobotic/MetaAgent-sub000/internal/commands/watch"
)

// Version information (injected via ldflags at build time)
var version = "dev"

const shutdownTimeout = 10 * time.Second

func main() {
	os.Exit(run())
}

func run() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt := cli.NewRuntime(version)
	rootCmd := cli.NewRootCommand(rt)
	rootCmd.AddCommand(servers.NewCommand(rt))
	rootCmd.AddCommand(tools.NewCommand(rt))
	rootCmd.AddCommand(prompts.NewCommand(rt))
	rootCmd.AddCommand(watch.NewCommand(rt))

	err := rootCmd.ExecuteContext(ctx)

	closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if cerr := rt.Close(closeCtx); cerr != nil && err == nil {
		err = cerr
	}
	return cli.HandleExitError(rootCmd.ErrOrStderr(), err)
}
