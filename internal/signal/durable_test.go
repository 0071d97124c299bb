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

package signal

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZhihaoAIRobotic/MetaAgent-sub000/internal/durable"
)

func newTestDurable(t *testing.T, store durable.SignalStore) *DurableHandler {
	t.Helper()
	h, err := NewDurable(DurableConfig{
		Store:        store,
		PollInterval: 10 * time.Millisecond,
		Logger:       slog.New(slog.DiscardHandler),
	})
	require.NoError(t, err)
	return h
}

func TestNewDurable_RequiresStore(t *testing.T) {
	_, err := NewDurable(DurableConfig{})
	assert.Error(t, err)
}

func TestDurableHandler_RequiresWorkflowID(t *testing.T) {
	h := newTestDurable(t, durable.NewMemoryStore())

	_, err := h.WaitForSignal(context.Background(), "approve")
	assert.ErrorIs(t, err, ErrMissingWorkflowID)

	err = h.Signal(context.Background(), Signal{Name: "approve"})
	assert.ErrorIs(t, err, ErrMissingWorkflowID)
}

func TestDurableHandler_WorkflowFromContext(t *testing.T) {
	h := newTestDurable(t, durable.NewMemoryStore())
	ctx := durable.WithWorkflow(context.Background(), "wf-1")

	got := make(chan any, 1)
	go func() {
		v, err := h.WaitForSignal(ctx, "approve", WithTimeout(5*time.Second))
		assert.NoError(t, err)
		got <- v
	}()

	require.Eventually(t, func() bool { return h.Pending("approve") == 1 }, time.Second, 5*time.Millisecond)
	require.NoError(t, h.Signal(ctx, Signal{Name: "approve", Payload: map[string]any{"ok": true}}))

	select {
	case v := <-got:
		assert.Equal(t, map[string]any{"ok": true}, v)
	case <-time.After(2 * time.Second):
		t.Fatal("waiter was not woken")
	}
}

func TestDurableHandler_CrossHandlerDelivery(t *testing.T) {
	// Two handlers over one store stand in for two processes.
	store := durable.NewMemoryStore()
	waiterSide := newTestDurable(t, store)
	emitterSide := newTestDurable(t, store)

	got := make(chan any, 1)
	go func() {
		v, err := waiterSide.WaitForSignal(context.Background(), "resume",
			WithWorkflowID("wf-x"), WithTimeout(5*time.Second))
		assert.NoError(t, err)
		got <- v
	}()

	require.Eventually(t, func() bool {
		ws, err := store.ListWaiters(context.Background(), "wf-x", "resume")
		return err == nil && len(ws) == 1
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, emitterSide.Signal(context.Background(),
		Signal{Name: "resume", WorkflowID: "wf-x", Payload: "go"}))

	select {
	case v := <-got:
		assert.Equal(t, "go", v)
	case <-time.After(2 * time.Second):
		t.Fatal("waiter was not woken by the other handler")
	}

	assert.Eventually(t, func() bool {
		ws, err := store.ListWaiters(context.Background(), "wf-x", "resume")
		return err == nil && len(ws) == 0
	}, time.Second, 5*time.Millisecond)
}

func TestDurableHandler_BuffersSignalWithoutWaiters(t *testing.T) {
	h := newTestDurable(t, durable.NewMemoryStore())
	ctx := durable.WithWorkflow(context.Background(), "wf-2")

	require.NoError(t, h.Signal(ctx, Signal{Name: "early", Payload: 7}))

	v, err := h.WaitForSignal(ctx, "early", WithTimeout(time.Second))
	require.NoError(t, err)
	assert.Equal(t, float64(7), v)
}

func TestDurableHandler_Timeout(t *testing.T) {
	store := durable.NewMemoryStore()
	h := newTestDurable(t, store)

	_, err := h.WaitForSignal(context.Background(), "never",
		WithWorkflowID("wf-3"), WithTimeout(30*time.Millisecond))
	assert.ErrorIs(t, err, ErrSignalTimeout)
	assert.Equal(t, 0, h.Pending("never"))

	ws, err := store.ListWaiters(context.Background(), "wf-3", "never")
	require.NoError(t, err)
	assert.Empty(t, ws)
}

func TestDurableHandler_WorkflowsAreIsolated(t *testing.T) {
	h := newTestDurable(t, durable.NewMemoryStore())

	require.NoError(t, h.Signal(context.Background(), Signal{Name: "s", WorkflowID: "wf-a"}))

	_, err := h.WaitForSignal(context.Background(), "s",
		WithWorkflowID("wf-b"), WithTimeout(30*time.Millisecond))
	assert.ErrorIs(t, err, ErrSignalTimeout)
}
