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

package mcp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"golang.org/x/sync/errgroup"
)

// DefaultMaxParallelLoads caps concurrent server loads.
const DefaultMaxParallelLoads = 8

// maxListPages guards against servers that never stop returning cursors.
const maxListPages = 1000

var (
	errNotInitialized = errors.New("aggregator is not initialized")
	errClosed         = errors.New("aggregator is closed")
)

// AggregatorConfig configures an Aggregator.
type AggregatorConfig struct {
	// Registry is required.
	Registry *ServerRegistry

	// Shared provides the connection manager in persistent mode.
	Shared *SharedManager

	// ServerNames limits the aggregator to these servers. Empty means every
	// server in the registry.
	ServerNames []string

	// Persistent keeps sessions open through the shared manager. Otherwise
	// each operation opens and closes its own session.
	Persistent bool

	// Separator defaults to "_".
	Separator string

	// MaxParallelLoads defaults to 8.
	MaxParallelLoads int

	Logger  *slog.Logger
	Tracer  trace.Tracer
	Metrics *Metrics

	// Events receives tools_changed events. Optional.
	Events *EventEmitter
}

// Aggregator presents the tools and prompts of several servers as one
// namespaced catalog and routes calls to the owning server.
type Aggregator struct {
	registry   *ServerRegistry
	shared     *SharedManager
	servers    []string
	persistent bool
	sep        string
	maxLoads   int
	logger     *slog.Logger
	tracer     trace.Tracer
	metrics    *Metrics
	events     *EventEmitter

	tools   *catalog[mcp.Tool]
	prompts *catalog[mcp.Prompt]

	capsMu sync.RWMutex
	caps   map[string]Capabilities

	// startMu serializes Initialize across the whole load.
	startMu     sync.Mutex
	initialized bool

	initMu  sync.Mutex
	manager *ConnectionManager
	closed  bool

	loadMu sync.Mutex
	loaded bool

	closeOnce sync.Once
	closeErr  error
}

// NewAggregator creates an aggregator. Call Initialize before use.
func NewAggregator(cfg AggregatorConfig) (*Aggregator, error) {
	if cfg.Registry == nil {
		return nil, fmt.Errorf("registry is required")
	}
	if cfg.Persistent && cfg.Shared == nil {
		return nil, fmt.Errorf("shared manager is required in persistent mode")
	}

	sep := cfg.Separator
	if sep == "" {
		sep = DefaultSeparator
	}
	maxLoads := cfg.MaxParallelLoads
	if maxLoads <= 0 {
		maxLoads = DefaultMaxParallelLoads
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	tracer := cfg.Tracer
	if tracer == nil {
		tracer = tracenoop.NewTracerProvider().Tracer("metaagent/mcp")
	}

	return &Aggregator{
		registry:   cfg.Registry,
		shared:     cfg.Shared,
		servers:    slices.Clone(cfg.ServerNames),
		persistent: cfg.Persistent,
		sep:        sep,
		maxLoads:   maxLoads,
		logger:     logger.With("component", "mcp-aggregator"),
		tracer:     tracer,
		metrics:    cfg.Metrics,
		events:     cfg.Events,
		tools:      newCatalog("tool", func(t mcp.Tool) string { return t.Name }),
		prompts:    newCatalog("prompt", func(p mcp.Prompt) string { return p.Name }),
		caps:       make(map[string]Capabilities),
	}, nil
}

// Initialize acquires the shared manager in persistent mode and loads every
// server. It returns once the catalog is loaded. After a failed load the next
// call tries again; after a successful one later calls do nothing.
func (a *Aggregator) Initialize(ctx context.Context) error {
	a.startMu.Lock()
	defer a.startMu.Unlock()

	if a.initialized {
		return nil
	}

	a.initMu.Lock()
	if a.closed {
		a.initMu.Unlock()
		return errClosed
	}
	if a.persistent && a.manager == nil {
		a.manager = a.shared.Acquire()
	}
	a.initMu.Unlock()

	if err := a.LoadServers(ctx, false); err != nil {
		return err
	}
	a.initialized = true
	return nil
}

// ListServers returns the servers this aggregator covers, sorted.
func (a *Aggregator) ListServers() []string {
	if len(a.servers) > 0 {
		return slices.Sorted(slices.Values(a.servers))
	}
	return a.registry.ServerNames()
}

// serverLoad is what one server contributed at load time.
type serverLoad struct {
	name    string
	caps    Capabilities
	tools   []mcp.Tool
	prompts []mcp.Prompt
}

// LoadServers loads every server concurrently. It is a no-op once loaded
// unless force is set. Failures are logged and the server is skipped.
//
// The new catalog is built aside and swapped in when every load is done, so
// readers see either the previous catalog or the complete new one.
func (a *Aggregator) LoadServers(ctx context.Context, force bool) error {
	a.loadMu.Lock()
	defer a.loadMu.Unlock()

	if a.loaded && !force {
		return nil
	}

	servers := a.ListServers()
	results := make([]*serverLoad, len(servers))

	var g errgroup.Group
	g.SetLimit(a.maxLoads)
	for i, name := range servers {
		g.Go(func() error {
			load, err := a.fetchServer(ctx, name)
			if err != nil {
				a.logger.Warn("failed to load server", "server", name, "error", err)
				return nil
			}
			results[i] = load
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return err
	}

	// Merge in ownership order so collisions resolve the same way on every
	// reload.
	slices.SortFunc(results, func(x, y *serverLoad) int {
		switch {
		case x == nil && y == nil:
			return 0
		case x == nil:
			return 1
		case y == nil:
			return -1
		case ownsBefore(x.name, y.name):
			return -1
		case ownsBefore(y.name, x.name):
			return 1
		}
		return 0
	})

	tools := newCatalog("tool", func(t mcp.Tool) string { return t.Name })
	prompts := newCatalog("prompt", func(p mcp.Prompt) string { return p.Name })
	caps := make(map[string]Capabilities, len(results))
	for _, load := range results {
		if load == nil {
			continue
		}
		nt := tools.replace(load.name, a.sep, load.tools, a.logger)
		np := prompts.replace(load.name, a.sep, load.prompts, a.logger)
		caps[load.name] = load.caps
		a.logger.Debug("server loaded", "server", load.name, "tools", nt, "prompts", np)
	}

	// Servers dropped from the configuration count as changed too.
	affected := slices.Clone(servers)
	for _, e := range a.tools.list("") {
		if !slices.Contains(affected, e.ServerName) {
			affected = append(affected, e.ServerName)
		}
	}
	slices.Sort(affected)

	changed := make(map[string]int)
	for _, name := range affected {
		before := a.tools.list(name)
		after := tools.list(name)
		if !sameEntries(before, after) {
			changed[name] = len(after)
		}
	}

	a.tools.swap(tools)
	a.prompts.swap(prompts)
	a.capsMu.Lock()
	a.caps = caps
	a.capsMu.Unlock()

	for _, name := range affected {
		if n, ok := changed[name]; ok {
			a.events.EmitToolsChanged(name, n)
		}
	}

	a.loaded = true
	return nil
}

// LoadServer refreshes the catalog entries of one server.
func (a *Aggregator) LoadServer(ctx context.Context, name string) error {
	load, err := a.fetchServer(ctx, name)
	if err != nil {
		return err
	}

	before := a.tools.list(name)
	nt := a.tools.replace(name, a.sep, load.tools, a.logger)
	np := a.prompts.replace(name, a.sep, load.prompts, a.logger)
	a.capsMu.Lock()
	a.caps[name] = load.caps
	a.capsMu.Unlock()

	if !sameEntries(before, a.tools.list(name)) {
		a.events.EmitToolsChanged(name, nt)
	}
	a.logger.Debug("server loaded", "server", name, "tools", nt, "prompts", np)
	return nil
}

// sameEntries reports whether two sorted listings hold the same names.
func sameEntries(a, b []NamespacedTool) bool {
	return slices.EqualFunc(a, b, func(x, y NamespacedTool) bool {
		return x.NamespacedName == y.NamespacedName
	})
}

// fetchServer lists the tools and prompts of one server without touching the
// catalog.
func (a *Aggregator) fetchServer(ctx context.Context, name string) (*serverLoad, error) {
	cfg, ok := a.registry.GetServerConfig(name)
	if !ok {
		return nil, ErrServerNotFound(name)
	}
	filter, err := NewToolFilter(cfg.Include, cfg.Exclude)
	if err != nil {
		return nil, ErrInvalidConfig(name, err.Error())
	}

	load := &serverLoad{name: name}
	fetch := func(ctx context.Context, session Session, c Capabilities) error {
		load.caps = c
		if c.Tools {
			all, err := listAll(ctx, session.ListTools)
			if err != nil {
				return err
			}
			for _, t := range all {
				if filter.Allow(t.Name) {
					load.tools = append(load.tools, t)
				}
			}
		}
		if c.Prompts {
			all, err := listAll(ctx, session.ListPrompts)
			if err != nil {
				return err
			}
			load.prompts = all
		}
		return nil
	}

	if err := a.withSessionCaps(ctx, name, fetch); err != nil {
		return nil, err
	}
	return load, nil
}

// Refresh reloads one server, or every server when server is empty.
func (a *Aggregator) Refresh(ctx context.Context, server string) error {
	if server == "" {
		return a.LoadServers(ctx, true)
	}
	return a.LoadServer(ctx, server)
}

// Capabilities returns what server advertised at its last load.
func (a *Aggregator) Capabilities(server string) (Capabilities, bool) {
	a.capsMu.RLock()
	defer a.capsMu.RUnlock()
	c, ok := a.caps[server]
	return c, ok
}

// ListTools returns the tools of server, or the merged catalog when server
// is empty.
func (a *Aggregator) ListTools(server string) []NamespacedTool {
	return a.tools.list(server)
}

// ListPrompts returns the prompts of server, or the merged catalog when
// server is empty.
func (a *Aggregator) ListPrompts(server string) []NamespacedPrompt {
	return a.prompts.list(server)
}

// CallTool invokes a tool by namespaced or local name. Failures are returned
// as error results.
func (a *Aggregator) CallTool(ctx context.Context, name string, args map[string]any) *mcp.CallToolResult {
	ctx, span := a.tracer.Start(ctx, "mcp.call_tool",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("mcp.tool.name", name)),
	)
	defer span.End()

	server, local, ok := a.tools.resolve(name, a.sep, a.ListServers())
	if !ok {
		span.SetStatus(codes.Error, "tool not found")
		return mcp.NewToolResultError(fmt.Sprintf("tool '%s' not found", name))
	}
	span.SetAttributes(
		attribute.String("mcp.server", server),
		attribute.String("mcp.tool.local_name", local),
	)

	start := time.Now()
	var result *mcp.CallToolResult
	err := a.withSession(ctx, server, func(ctx context.Context, session Session) error {
		r, err := session.CallTool(ctx, local, args)
		result = r
		return err
	})

	outcome := "success"
	switch {
	case err != nil:
		outcome = "error"
	case result != nil && result.IsError:
		outcome = "tool_error"
	}
	a.metrics.toolCall(server, outcome, time.Since(start))

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		a.logger.Warn("tool call failed", "server", server, "tool", local, "error", err)
		return mcp.NewToolResultError(fmt.Sprintf("failed to call tool '%s' on server '%s': %v", local, server, err))
	}
	if result == nil {
		result = &mcp.CallToolResult{}
	}
	if result.IsError {
		span.SetStatus(codes.Error, "tool returned an error result")
	}
	return result
}

// GetPrompt fetches a prompt by namespaced or local name. Failures are
// returned with IsError set.
func (a *Aggregator) GetPrompt(ctx context.Context, name string, args map[string]string) *PromptResult {
	server, local, ok := a.prompts.resolve(name, a.sep, a.ListServers())
	if !ok {
		msg := fmt.Sprintf("prompt '%s' not found", name)
		return &PromptResult{NamespacedName: name, IsError: true, Error: msg, Description: msg}
	}

	out := &PromptResult{
		ServerName:     server,
		PromptName:     local,
		NamespacedName: server + a.sep + local,
	}
	err := a.withSession(ctx, server, func(ctx context.Context, session Session) error {
		r, err := session.GetPrompt(ctx, local, args)
		if err != nil {
			return err
		}
		out.Description = r.Description
		out.Messages = r.Messages
		return nil
	})
	if err != nil {
		a.logger.Warn("get prompt failed", "server", server, "prompt", local, "error", err)
		out.IsError = true
		out.Error = fmt.Sprintf("failed to get prompt '%s' from server '%s': %v", local, server, err)
		out.Description = out.Error
		out.Messages = nil
	}
	return out
}

// Close releases the shared manager. It is safe to call more than once.
func (a *Aggregator) Close(ctx context.Context) error {
	a.closeOnce.Do(func() {
		a.initMu.Lock()
		held := a.manager != nil
		a.manager = nil
		a.closed = true
		a.initMu.Unlock()

		if held {
			last, err := a.shared.Release(ctx)
			if last {
				a.logger.Debug("released last reference to connection manager")
			}
			a.closeErr = err
		}
	})
	return a.closeErr
}

func (a *Aggregator) currentManager() *ConnectionManager {
	a.initMu.Lock()
	defer a.initMu.Unlock()
	return a.manager
}

func (a *Aggregator) withSession(ctx context.Context, server string, fn func(ctx context.Context, session Session) error) error {
	return a.withSessionCaps(ctx, server, func(ctx context.Context, session Session, _ Capabilities) error {
		return fn(ctx, session)
	})
}

// withSessionCaps runs fn with a session for server: the managed connection
// in persistent mode, otherwise a temporary session.
func (a *Aggregator) withSessionCaps(ctx context.Context, server string, fn func(ctx context.Context, session Session, caps Capabilities) error) error {
	if a.persistent {
		m := a.currentManager()
		if m == nil {
			return errNotInitialized
		}
		conn, err := m.GetServer(ctx, server)
		if err != nil {
			return err
		}
		session := conn.Session()
		caps := conn.Capabilities()
		if session == nil || caps == nil {
			return ErrConnectionClosed(server)
		}
		return fn(ctx, session, *caps)
	}

	return a.registry.InitializeServer(ctx, server, func(ctx context.Context, session Session, result InitResult) error {
		if result.HookErr != nil {
			return ErrInitialization(server, "init hook failed: "+result.HookErr.Error()).WithCause(result.HookErr)
		}
		return fn(ctx, session, result.Capabilities)
	})
}

// listAll follows cursors until the server returns an empty one.
func listAll[T any](ctx context.Context, page func(ctx context.Context, cursor string) ([]T, string, error)) ([]T, error) {
	var (
		all    []T
		cursor string
	)
	for range maxListPages {
		items, next, err := page(ctx, cursor)
		if err != nil {
			return nil, err
		}
		all = append(all, items...)
		if next == "" || next == cursor {
			return all, nil
		}
		cursor = next
	}
	return all, nil
}
