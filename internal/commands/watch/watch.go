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

// Package watch implements the 'watch' command.
package watch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/ZhihaoAIRobotic/MetaAgent-sub000/internal/cli"
	internallog "github.com/ZhihaoAIRobotic/MetaAgent-sub000/internal/log"
	"github.com/ZhihaoAIRobotic/MetaAgent-sub000/internal/mcp"
)

const shutdownTimeout = 5 * time.Second

// NewCommand creates the watch command.
func NewCommand(rt *cli.Runtime) *cobra.Command {
	var metricsAddr string

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Keep the catalog loaded and reload it when mcp.yaml changes",
		Long: `Connect to every configured server and keep the sessions open. When
mcp.yaml changes the catalog is rebuilt from the new configuration.
Server events (started, stopped, failed, tools changed) are printed as
they happen.

With --metrics-addr, Prometheus metrics are served at /metrics.`,
		Example: `  # Watch and expose metrics on port 9090
  metaagent watch --metrics-addr :9090`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, rt, metricsAddr)
		},
	}

	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address")

	return cmd
}

func run(cmd *cobra.Command, rt *cli.Runtime, metricsAddr string) error {
	ctx := cmd.Context()
	a, err := rt.App(ctx)
	if err != nil {
		return err
	}
	logger := internallog.WithComponent(a.Logger, "watch")

	events, unsubscribe := a.Events.Subscribe(0)
	printed := make(chan struct{})
	go func() {
		defer close(printed)
		printEvents(cmd.OutOrStdout(), events)
	}()
	defer func() {
		unsubscribe()
		<-printed
	}()

	agg, err := rt.OpenAggregator(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = agg.Close(context.WithoutCancel(ctx)) }()

	watcher, err := mcp.NewConfigWatcher(ctx, mcp.ConfigWatcherConfig{
		Path:     a.MCPConfigPath,
		Registry: a.Registry,
		Logger:   a.Logger,
		OnReload: func(ctx context.Context, servers map[string]mcp.ServerConnectionConfig) {
			if err := agg.LoadServers(ctx, true); err != nil {
				logger.Error("reload failed", internallog.Error(err))
				return
			}
			logger.Info("catalog reloaded",
				slog.Int("servers", len(servers)),
				slog.Int("tools", len(agg.ListTools(""))))
		},
	})
	if err != nil {
		return cli.NewExecutionError("failed to watch config", err)
	}
	defer watcher.Close()

	if metricsAddr != "" {
		addr, stop, err := serveMetrics(metricsAddr, a.Tracing.MetricsHandler(), logger)
		if err != nil {
			return cli.NewExecutionError("failed to serve metrics", err)
		}
		defer stop()
		fmt.Fprintf(cmd.ErrOrStderr(), "Serving metrics on http://%s/metrics\n", addr)
	}

	fmt.Fprintln(cmd.ErrOrStderr(), cli.RenderOK(fmt.Sprintf("Watching %d servers (%d tools). Press Ctrl+C to stop.",
		len(agg.ListServers()), len(agg.ListTools("")))))

	<-ctx.Done()
	return nil
}

// printEvents writes one line per event until events is closed.
func printEvents(w io.Writer, events <-chan mcp.ServerEvent) {
	for ev := range events {
		line := fmt.Sprintf("%s %s: %s", ev.Timestamp.Format(time.TimeOnly), ev.ServerName, ev.Type)
		switch ev.Type {
		case mcp.EventFailed, mcp.EventUnhealthy:
			line = cli.RenderError(line)
		case mcp.EventToolsChanged:
			line = fmt.Sprintf("%s (%v tools)", line, ev.Details["tool_count"])
		}
		fmt.Fprintln(w, line)
	}
}

// serveMetrics listens on addr and serves handler at /metrics. The returned
// function shuts the server down.
func serveMetrics(addr string, handler http.Handler, logger *slog.Logger) (net.Addr, func(), error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, nil, err
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", handler)
	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", internallog.Error(err))
		}
	}()

	stop := func() {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = srv.Shutdown(ctx)
		<-done
	}
	return ln.Addr(), stop, nil
}
