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

// Package app builds the services shared by every metaagent command.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/ZhihaoAIRobotic/MetaAgent-sub000/internal/config"
	"github.com/ZhihaoAIRobotic/MetaAgent-sub000/internal/durable"
	"github.com/ZhihaoAIRobotic/MetaAgent-sub000/internal/durable/sqlite"
	"github.com/ZhihaoAIRobotic/MetaAgent-sub000/internal/executor"
	internallog "github.com/ZhihaoAIRobotic/MetaAgent-sub000/internal/log"
	"github.com/ZhihaoAIRobotic/MetaAgent-sub000/internal/mcp"
	"github.com/ZhihaoAIRobotic/MetaAgent-sub000/internal/secrets"
	"github.com/ZhihaoAIRobotic/MetaAgent-sub000/internal/signal"
	"github.com/ZhihaoAIRobotic/MetaAgent-sub000/internal/tracing"

	mcpgo "github.com/mark3labs/mcp-go/mcp"
)

// Options contains the process-level settings used to build a Context.
type Options struct {
	Version string

	// ConfigPath overrides the location of config.yaml.
	ConfigPath string

	// MCPConfigPath overrides the location of mcp.yaml.
	MCPConfigPath string

	// Verbose forces debug logging.
	Verbose bool

	// LogOutput defaults to os.Stderr.
	LogOutput io.Writer

	// Connector replaces the transport layer. Used by tests.
	Connector mcp.Connector
}

// Context holds the shared services. It is built once per process and
// passed explicitly to whatever needs it.
type Context struct {
	Config        *config.Config
	Servers       *mcp.ServersFile
	MCPConfigPath string
	Version       string

	Logger   *slog.Logger
	Secrets  *secrets.Resolver
	Registry *mcp.ServerRegistry
	Shared   *mcp.SharedManager
	Events   *mcp.EventEmitter

	Prometheus *prometheus.Registry
	Metrics    *mcp.Metrics
	Tracing    *tracing.Provider

	// Store is nil unless the durable engine is selected.
	Store    durable.Store
	Signals  signal.Handler
	Executor executor.Executor

	closers []func(context.Context) error
}

// New loads configuration and wires every service.
func New(ctx context.Context, opts Options) (*Context, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, err
	}

	mcpPath := opts.MCPConfigPath
	if mcpPath == "" {
		mcpPath, err = mcp.DefaultServersPath()
		if err != nil {
			return nil, fmt.Errorf("failed to get mcp config path: %w", err)
		}
	}
	servers, err := mcp.LoadServersFile(mcpPath)
	if err != nil {
		return nil, err
	}
	if err := servers.Validate(); err != nil {
		return nil, err
	}

	logCfg := internallog.Merge(cfg.Log.Level, cfg.Log.Format)
	if opts.Verbose {
		logCfg.Level = "debug"
	}
	logCfg.Output = opts.LogOutput
	if logCfg.Output == nil {
		logCfg.Output = os.Stderr
	}
	logger := internallog.New(logCfg)

	c := &Context{
		Config:        cfg,
		Servers:       servers,
		MCPConfigPath: mcpPath,
		Version:       opts.Version,
		Logger:        logger,
		Secrets:       secrets.NewDefaultResolver(),
		Prometheus:    prometheus.NewRegistry(),
	}

	if err := c.initTelemetry(ctx, logCfg.Output); err != nil {
		return nil, err
	}
	if err := c.initExecution(ctx); err != nil {
		_ = c.Close(ctx)
		return nil, err
	}
	c.initMCP(opts.Connector)
	return c, nil
}

func (c *Context) initTelemetry(ctx context.Context, traceOut io.Writer) error {
	provider, err := tracing.NewProvider(ctx, c.Config.Tracing, tracing.Options{
		ServiceName:    "metaagent",
		ServiceVersion: c.Version,
		Registry:       c.Prometheus,
		Writer:         traceOut,
	})
	if err != nil {
		return fmt.Errorf("failed to create tracing provider: %w", err)
	}
	c.Tracing = provider
	c.Metrics = mcp.NewMetrics(c.Prometheus)
	c.closers = append(c.closers, provider.Shutdown)
	return nil
}

func (c *Context) initExecution(ctx context.Context) error {
	execCfg := executor.Config{
		MaxConcurrency: c.Config.Executor.MaxConcurrency,
		PoolSize:       c.Config.Executor.PoolSize,
		Logger:         internallog.WithComponent(c.Logger, "executor"),
		MeterProvider:  c.Tracing.MeterProvider(),
	}
	signalLogger := internallog.WithComponent(c.Logger, "signal")

	switch c.Config.ExecutionEngine {
	case config.EngineDurable:
		store, err := openStore(ctx, c.Config.Executor.Store)
		if err != nil {
			return err
		}
		c.Store = store
		c.closers = append(c.closers, func(context.Context) error { return store.Close() })

		handler, err := signal.NewDurable(signal.DurableConfig{Store: store, Logger: signalLogger})
		if err != nil {
			return err
		}
		c.Signals = handler
		c.closers = append(c.closers, func(context.Context) error { return handler.Close() })

		execCfg.Signals = handler
		r := c.Config.Executor.Retry
		ex, err := executor.NewDurable(executor.DurableConfig{
			Config: execCfg,
			Store:  store,
			Retry: executor.RetryPolicy{
				MaxAttempts:        r.MaxAttempts,
				InitialInterval:    r.InitialInterval,
				BackoffCoefficient: r.BackoffCoefficient,
				MaxInterval:        r.MaxInterval,
			},
		})
		if err != nil {
			return fmt.Errorf("failed to create durable executor: %w", err)
		}
		c.Executor = ex
	default:
		handler := signal.NewLocal(signal.Config{Logger: signalLogger})
		c.Signals = handler
		c.closers = append(c.closers, func(context.Context) error { return handler.Close() })

		execCfg.Signals = handler
		ex, err := executor.NewLocal(execCfg)
		if err != nil {
			return fmt.Errorf("failed to create executor: %w", err)
		}
		c.Executor = ex
	}
	ex := c.Executor
	c.closers = append(c.closers, func(context.Context) error { return ex.Close() })
	return nil
}

func openStore(ctx context.Context, cfg config.StoreConfig) (durable.Store, error) {
	switch cfg.Driver {
	case config.StoreSQLite:
		path := cfg.Path
		if path == "" {
			p, err := config.DataPath("durable.db")
			if err != nil {
				return nil, fmt.Errorf("failed to get store path: %w", err)
			}
			path = p
		}
		store, err := sqlite.Open(ctx, sqlite.Config{Path: path, WAL: true})
		if err != nil {
			return nil, fmt.Errorf("failed to open durable store: %w", err)
		}
		return store, nil
	default:
		return durable.NewMemoryStore(), nil
	}
}

func (c *Context) initMCP(connector mcp.Connector) {
	if connector == nil {
		connector = mcp.DefaultConnector{
			ClientInfo: mcpgo.Implementation{Name: "metaagent", Version: c.Version},
		}
	}
	mcpLogger := internallog.WithComponent(c.Logger, "mcp")
	c.Events = mcp.NewEventEmitter(internallog.WithComponent(c.Logger, "mcp-events"))
	c.Registry = mcp.NewServerRegistry(mcp.RegistryConfig{
		Servers:   c.Servers.Configs(),
		Connector: connector,
		Secrets:   c.Secrets,
		Logger:    mcpLogger,
	})
	c.Shared = mcp.NewSharedManager(func() *mcp.ConnectionManager {
		return mcp.NewConnectionManager(mcp.ManagerConfig{
			Registry: c.Registry,
			Logger:   mcpLogger,
			Metrics:  c.Metrics,
			Events:   c.Events,
		})
	})
	c.closers = append(c.closers, func(ctx context.Context) error {
		if m := c.Shared.Manager(); m != nil {
			return m.Close(ctx)
		}
		return nil
	})
}

// NewAggregator returns an aggregator over serverNames, or over every
// configured server when serverNames is empty. The caller must Initialize
// and Close it.
func (c *Context) NewAggregator(serverNames []string) (*mcp.Aggregator, error) {
	return mcp.NewAggregator(mcp.AggregatorConfig{
		Registry:    c.Registry,
		Shared:      c.Shared,
		ServerNames: serverNames,
		Persistent:  c.Config.Persistent(),
		Separator:   c.Config.Separator,
		Logger:      internallog.WithComponent(c.Logger, "aggregator"),
		Tracer:      c.Tracing.Tracer("github.com/ZhihaoAIRobotic/MetaAgent-sub000/internal/mcp"),
		Metrics:     c.Metrics,
		Events:      c.Events,
	})
}

// Close releases services in reverse order of creation.
func (c *Context) Close(ctx context.Context) error {
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	c.closers = nil
	return errors.Join(errs...)
}
