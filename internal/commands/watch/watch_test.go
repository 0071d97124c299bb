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

package watch

import (
	"context"
	"io"
	"net/http"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZhihaoAIRobotic/MetaAgent-sub000/internal/cli/clitest"
	internallog "github.com/ZhihaoAIRobotic/MetaAgent-sub000/internal/log"
	mcptesting "github.com/ZhihaoAIRobotic/MetaAgent-sub000/internal/mcp/testing"
)

func TestWatch_ReloadsOnChange(t *testing.T) {
	h := clitest.New(t, "", "servers:\n  fetch:\n    command: fetch-server\n")
	h.Connector.AddServer("fetch", &mcptesting.FakeServer{Tools: []mcp.Tool{mcp.NewTool("fetch")}})
	h.Connector.AddServer("git", &mcptesting.FakeServer{Tools: []mcp.Tool{mcp.NewTool("log")}})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	var stdout string
	go func() {
		out, _, err := h.Run(ctx, []*cobra.Command{NewCommand(h.Runtime)}, "watch")
		stdout = out
		done <- err
	}()

	require.Eventually(t, func() bool {
		return h.Connector.Connects("fetch") == 1
	}, 5*time.Second, 10*time.Millisecond)

	// Rewrite until seen; the watcher may start after the first load.
	updated := "servers:\n  fetch:\n    command: fetch-server\n  git:\n    command: git-server\n"
	require.Eventually(t, func() bool {
		_ = os.WriteFile(h.MCPConfigPath, []byte(updated), 0o600)
		return h.Connector.Connects("git") >= 1
	}, 5*time.Second, 250*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("watch did not stop after cancel")
	}
	assert.Zero(t, h.Connector.Open(), "sessions are closed on exit")

	assert.Contains(t, stdout, "fetch: started")
	assert.Contains(t, stdout, "git: started")
	assert.Contains(t, stdout, "git: tools_changed (1 tools)")
}

func TestServeMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "metaagent_test_total", Help: "test"})
	reg.MustRegister(counter)
	counter.Inc()

	addr, stop, err := serveMetrics("127.0.0.1:0", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), internallog.Discard())
	require.NoError(t, err)
	defer stop()

	resp, err := http.Get("http://" + addr.String() + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, strings.Contains(string(body), "metaagent_test_total 1"))
}
