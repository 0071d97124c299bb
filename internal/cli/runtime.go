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
	"context"
	"fmt"
	"sync"

	"github.com/ZhihaoAIRobotic/MetaAgent-sub000/internal/app"
	"github.com/ZhihaoAIRobotic/MetaAgent-sub000/internal/mcp"
)

// Flags holds the persistent root flags.
type Flags struct {
	ConfigPath    string
	MCPConfigPath string
	JSON          bool
	Verbose       bool
}

// Runtime carries the root flags and the application context to every
// command. The context is built on first use, after flags are parsed.
type Runtime struct {
	Flags   Flags
	Version string

	// Base is merged with Flags when the application context is built.
	// Tests use it to inject a connector.
	Base app.Options

	// Prompter answers confirmation prompts. Defaults to a huh form.
	Prompter Prompter

	mu  sync.Mutex
	app *app.Context
}

// NewRuntime creates a Runtime for the given build version.
func NewRuntime(version string) *Runtime {
	return &Runtime{Version: version}
}

// App returns the application context, building it on the first call.
func (r *Runtime) App(ctx context.Context) (*app.Context, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.app != nil {
		return r.app, nil
	}

	opts := r.Base
	opts.Version = r.Version
	if r.Flags.ConfigPath != "" {
		opts.ConfigPath = r.Flags.ConfigPath
	}
	if r.Flags.MCPConfigPath != "" {
		opts.MCPConfigPath = r.Flags.MCPConfigPath
	}
	opts.Verbose = opts.Verbose || r.Flags.Verbose

	a, err := app.New(ctx, opts)
	if err != nil {
		return nil, NewConfigError("failed to load configuration", err)
	}
	r.app = a
	return a, nil
}

// Close releases the application context if one was built.
func (r *Runtime) Close(ctx context.Context) error {
	r.mu.Lock()
	a := r.app
	r.app = nil
	r.mu.Unlock()
	if a == nil {
		return nil
	}
	if err := a.Close(ctx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// OpenAggregator builds and initializes an aggregator over servers, or over
// every configured server when servers is empty. The caller closes it.
func (r *Runtime) OpenAggregator(ctx context.Context, servers []string) (*mcp.Aggregator, error) {
	a, err := r.App(ctx)
	if err != nil {
		return nil, err
	}
	for _, name := range servers {
		if _, ok := a.Registry.GetServerConfig(name); !ok {
			return nil, NewUsageError("unknown server", mcp.ErrServerNotFound(name))
		}
	}

	agg, err := a.NewAggregator(servers)
	if err != nil {
		return nil, err
	}
	if err := agg.Initialize(ctx); err != nil {
		_ = agg.Close(ctx)
		return nil, NewExecutionError("failed to load servers", err)
	}
	return agg, nil
}

// prompter returns the configured Prompter or the interactive default.
func (r *Runtime) prompter() Prompter {
	if r.Prompter != nil {
		return r.Prompter
	}
	return formPrompter{}
}
