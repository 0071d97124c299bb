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

package mcp_test

import (
	"context"
	"errors"
	"testing"

	mcpgo "github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZhihaoAIRobotic/MetaAgent-sub000/internal/mcp"
	mcptesting "github.com/ZhihaoAIRobotic/MetaAgent-sub000/internal/mcp/testing"
)

func drainEvents(ch <-chan mcp.ServerEvent) []mcp.ServerEvent {
	var out []mcp.ServerEvent
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return out
			}
			out = append(out, ev)
		default:
			return out
		}
	}
}

func eventTypes(events []mcp.ServerEvent) []mcp.EventType {
	out := make([]mcp.EventType, len(events))
	for i, ev := range events {
		out[i] = ev.Type
	}
	return out
}

func TestEventEmitterSubscribe(t *testing.T) {
	e := mcp.NewEventEmitter(discardLogger())
	events, unsubscribe := e.Subscribe(0)

	e.EmitFailed("fs", errors.New("refused"))
	got := drainEvents(events)
	require.Len(t, got, 1)
	assert.Equal(t, mcp.EventFailed, got[0].Type)
	assert.Equal(t, "fs", got[0].ServerName)
	assert.Equal(t, "refused", got[0].Details["error"])
	assert.False(t, got[0].Timestamp.IsZero())

	unsubscribe()
	unsubscribe()
	_, open := <-events
	assert.False(t, open)

	e.EmitStopped("fs")
}

func TestEventEmitterDropsWhenFull(t *testing.T) {
	e := mcp.NewEventEmitter(discardLogger())
	events, unsubscribe := e.Subscribe(1)
	defer unsubscribe()

	for range 3 {
		e.EmitStopped("fs")
	}
	assert.Len(t, drainEvents(events), 1)
}

func TestNilEventEmitter(t *testing.T) {
	var e *mcp.EventEmitter
	assert.NotPanics(t, func() {
		e.EmitStarted("fs", mcp.Capabilities{})
		e.EmitToolsChanged("fs", 1)
	})
}

func TestManagerEmitsLifecycleEvents(t *testing.T) {
	fc := mcptesting.NewFakeConnector()
	fc.AddServer("flaky", &mcptesting.FakeServer{ConnectErr: errors.New("refused")})
	emitter := mcp.NewEventEmitter(discardLogger())
	events, unsubscribe := emitter.Subscribe(0)
	defer unsubscribe()

	m := mcp.NewConnectionManager(mcp.ManagerConfig{
		Registry:          newRegistry(t, fc, "flaky"),
		Logger:            discardLogger(),
		Events:            emitter,
		ReconnectInterval: -1,
	})

	ctx := context.Background()
	_, err := m.GetServer(ctx, "flaky")
	require.Error(t, err)

	fc.AddServer("flaky", &mcptesting.FakeServer{Tools: toolsNamed("ping")})
	_, err = m.GetServer(ctx, "flaky")
	require.NoError(t, err)
	require.NoError(t, m.Close(ctx))

	got := drainEvents(events)
	assert.Equal(t, []mcp.EventType{
		mcp.EventFailed,
		mcp.EventUnhealthy,
		mcp.EventRestarting,
		mcp.EventStarted,
		mcp.EventStopped,
	}, eventTypes(got))
	for _, ev := range got {
		assert.Equal(t, "flaky", ev.ServerName)
	}
	assert.Contains(t, got[1].Details["reason"], "refused")
}

func TestAggregatorEmitsToolsChanged(t *testing.T) {
	fc := fetchAndFilesystem()
	emitter := mcp.NewEventEmitter(discardLogger())
	events, unsubscribe := emitter.Subscribe(0)
	defer unsubscribe()

	agg, _ := newAggregator(t, newRegistry(t, fc, "fetch", "filesystem"), false, func(cfg *mcp.AggregatorConfig) {
		cfg.Events = emitter
	})
	ctx := context.Background()

	got := drainEvents(events)
	require.Len(t, got, 2)
	assert.Equal(t, "fetch", got[0].ServerName)
	assert.Equal(t, 1, got[0].Details["tool_count"])
	assert.Equal(t, "filesystem", got[1].ServerName)
	assert.Equal(t, 3, got[1].Details["tool_count"])

	require.NoError(t, agg.LoadServers(ctx, true))
	assert.Empty(t, drainEvents(events), "unchanged reload emits nothing")

	fc.AddServer("filesystem", &mcptesting.FakeServer{Tools: []mcpgo.Tool{
		mcpgo.NewTool("read_file"),
		mcpgo.NewTool("write_file"),
		mcpgo.NewTool("list_directory"),
		mcpgo.NewTool("move_file"),
	}})
	require.NoError(t, agg.LoadServers(ctx, true))

	got = drainEvents(events)
	require.Len(t, got, 1)
	assert.Equal(t, mcp.EventToolsChanged, got[0].Type)
	assert.Equal(t, "filesystem", got[0].ServerName)
	assert.Equal(t, 4, got[0].Details["tool_count"])
}
