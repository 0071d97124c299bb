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

// Package storetest holds the behavior every durable.Store implementation
// must satisfy. Backends call Run from their own tests.
package storetest

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZhihaoAIRobotic/MetaAgent-sub000/internal/durable"
)

// Run exercises a store created by newStore.
func Run(t *testing.T, newStore func(t *testing.T) durable.Store) {
	t.Run("activity roundtrip", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		_, err := s.GetActivity(ctx, "wf", "1")
		require.True(t, errors.Is(err, durable.ErrNotFound))

		a := &durable.Activity{WorkflowID: "wf", ActivityID: "1", Status: durable.ActivityRunning, Attempts: 1}
		require.NoError(t, s.SaveActivity(ctx, a))

		a.Status = durable.ActivityCompleted
		a.Result = json.RawMessage(`{"ok":true}`)
		require.NoError(t, s.SaveActivity(ctx, a))

		got, err := s.GetActivity(ctx, "wf", "1")
		require.NoError(t, err)
		assert.Equal(t, durable.ActivityCompleted, got.Status)
		assert.Equal(t, 1, got.Attempts)
		assert.JSONEq(t, `{"ok":true}`, string(got.Result))
		assert.True(t, got.Done())
	})

	t.Run("activities are scoped by workflow", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		for _, id := range []string{"1", "2", "3"} {
			require.NoError(t, s.SaveActivity(ctx, &durable.Activity{WorkflowID: "a", ActivityID: id, Status: durable.ActivityScheduled}))
		}
		require.NoError(t, s.SaveActivity(ctx, &durable.Activity{WorkflowID: "b", ActivityID: "1", Status: durable.ActivityScheduled}))

		list, err := s.ListActivities(ctx, "a")
		require.NoError(t, err)
		require.Len(t, list, 3)
		assert.Equal(t, "1", list[0].ActivityID)
		assert.Equal(t, "3", list[2].ActivityID)
	})

	t.Run("signals are delivered oldest first", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		require.NoError(t, s.PutSignal(ctx, &durable.SignalRecord{WorkflowID: "wf", Name: "approve", Payload: json.RawMessage(`1`)}))
		require.NoError(t, s.PutSignal(ctx, &durable.SignalRecord{WorkflowID: "wf", Name: "approve", Payload: json.RawMessage(`2`)}))
		require.NoError(t, s.PutSignal(ctx, &durable.SignalRecord{WorkflowID: "other", Name: "approve", Payload: json.RawMessage(`3`)}))

		first, err := s.TakeSignal(ctx, "wf", "approve", "w1")
		require.NoError(t, err)
		assert.JSONEq(t, `1`, string(first.Payload))

		second, err := s.TakeSignal(ctx, "wf", "approve", "w1")
		require.NoError(t, err)
		assert.JSONEq(t, `2`, string(second.Payload))

		_, err = s.TakeSignal(ctx, "wf", "approve", "w1")
		assert.True(t, errors.Is(err, durable.ErrNotFound))
	})

	t.Run("addressed signals only reach their waiter", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		require.NoError(t, s.PutSignal(ctx, &durable.SignalRecord{WorkflowID: "wf", Name: "go", WaiterID: "w2"}))

		_, err := s.TakeSignal(ctx, "wf", "go", "w1")
		assert.True(t, errors.Is(err, durable.ErrNotFound))

		rec, err := s.TakeSignal(ctx, "wf", "go", "w2")
		require.NoError(t, err)
		assert.Equal(t, "w2", rec.WaiterID)
	})

	t.Run("waiter registration", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		now := time.Now()
		require.NoError(t, s.RegisterWaiter(ctx, durable.Waiter{ID: "w1", WorkflowID: "wf", Name: "go", CreatedAt: now}))
		require.NoError(t, s.RegisterWaiter(ctx, durable.Waiter{ID: "w2", WorkflowID: "wf", Name: "go", CreatedAt: now.Add(time.Millisecond)}))
		require.NoError(t, s.PutSignal(ctx, &durable.SignalRecord{WorkflowID: "wf", Name: "go", WaiterID: "w1"}))

		waiters, err := s.ListWaiters(ctx, "wf", "go")
		require.NoError(t, err)
		require.Len(t, waiters, 2)
		assert.Equal(t, "w1", waiters[0].ID)

		require.NoError(t, s.RemoveWaiter(ctx, "w1"))
		waiters, err = s.ListWaiters(ctx, "wf", "go")
		require.NoError(t, err)
		require.Len(t, waiters, 1)

		// Signals addressed to a removed waiter go with it.
		_, err = s.TakeSignal(ctx, "wf", "go", "w1")
		assert.True(t, errors.Is(err, durable.ErrNotFound))
	})
}
