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

package executor

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZhihaoAIRobotic/MetaAgent-sub000/internal/signal"
)

func newTestLocal(t *testing.T, cfg Config) *Local {
	t.Helper()
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	e, err := NewLocal(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })
	return e
}

func TestLocal_ExecutePreservesOrder(t *testing.T) {
	e := newTestLocal(t, Config{})

	tasks := []Task{
		Go(func(ctx context.Context) (any, error) {
			time.Sleep(30 * time.Millisecond)
			return "slow", nil
		}),
		Func(func() (any, error) { return "pool", nil }),
		Go(func(ctx context.Context) (any, error) { return "fast", nil }),
	}

	results, err := e.Execute(context.Background(), tasks...)
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.Equal(t, []any{"slow", "pool", "fast"}, []any{results[0].Value, results[1].Value, results[2].Value})
	for i, r := range results {
		assert.Equal(t, i, r.Index)
		assert.NoError(t, r.Err)
	}
}

func TestLocal_ErrorsAndPanicsStayInTheirSlot(t *testing.T) {
	e := newTestLocal(t, Config{})
	boom := errors.New("boom")

	results, err := e.Execute(context.Background(),
		Go(func(ctx context.Context) (any, error) { return 1, nil }),
		Go(func(ctx context.Context) (any, error) { return nil, boom }),
		Func(func() (any, error) { panic("pool panic") }),
		Go(func(ctx context.Context) (any, error) { panic("go panic") }),
	)
	require.NoError(t, err)

	assert.Equal(t, 1, results[0].Value)
	assert.ErrorIs(t, results[1].Err, boom)

	var panicErr *TaskPanicError
	require.ErrorAs(t, results[2].Err, &panicErr)
	assert.Equal(t, "pool panic", panicErr.Value)
	assert.NotEmpty(t, panicErr.Stack)

	require.ErrorAs(t, results[3].Err, &panicErr)
	assert.Equal(t, "go panic", panicErr.Value)
}

func TestLocal_MaxConcurrency(t *testing.T) {
	const limit = 2
	e := newTestLocal(t, Config{MaxConcurrency: limit})

	var running, peak atomic.Int32
	tasks := make([]Task, 10)
	for i := range tasks {
		tasks[i] = Go(func(ctx context.Context) (any, error) {
			n := running.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(10 * time.Millisecond)
			running.Add(-1)
			return nil, nil
		})
	}

	results, err := e.Execute(context.Background(), tasks...)
	require.NoError(t, err)
	require.Len(t, results, 10)
	assert.LessOrEqual(t, peak.Load(), int32(limit))
	assert.Equal(t, int32(limit), peak.Load())
}

func TestLocal_ExecuteStreaming(t *testing.T) {
	e := newTestLocal(t, Config{})

	ch, err := e.ExecuteStreaming(context.Background(),
		Go(func(ctx context.Context) (any, error) {
			time.Sleep(50 * time.Millisecond)
			return "second", nil
		}),
		Go(func(ctx context.Context) (any, error) { return "first", nil }),
	)
	require.NoError(t, err)

	var got []Result
	for r := range ch {
		got = append(got, r)
	}
	require.Len(t, got, 2)
	assert.Equal(t, 1, got[0].Index)
	assert.Equal(t, "first", got[0].Value)
	assert.Equal(t, 0, got[1].Index)
}

func TestLocal_Await(t *testing.T) {
	e := newTestLocal(t, Config{})

	f := NewFuture()
	go func() {
		time.Sleep(10 * time.Millisecond)
		f.Resolve("resolved", nil)
		f.Resolve("ignored", nil)
	}()

	results, err := e.Execute(context.Background(), Await(f))
	require.NoError(t, err)
	assert.Equal(t, "resolved", results[0].Value)
}

func TestLocal_AwaitNilFuture(t *testing.T) {
	e := newTestLocal(t, Config{})

	results, err := e.Execute(context.Background(), Await(nil), Func(func() (any, error) { return "ok", nil }))
	require.NoError(t, err)
	assert.ErrorIs(t, results[0].Err, ErrUnsupportedTask)
	assert.Equal(t, "ok", results[1].Value)
}

func TestLocal_ContextCancellation(t *testing.T) {
	e := newTestLocal(t, Config{})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	results, err := e.Execute(ctx, Await(NewFuture()))
	require.NoError(t, err)
	assert.ErrorIs(t, results[0].Err, context.DeadlineExceeded)
}

func TestLocal_Closed(t *testing.T) {
	e, err := NewLocal(Config{Logger: slog.New(slog.DiscardHandler)})
	require.NoError(t, err)
	require.NoError(t, e.Close())
	require.NoError(t, e.Close())

	_, err = e.Execute(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
	_, err = e.ExecuteStreaming(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
}

func TestMap(t *testing.T) {
	e := newTestLocal(t, Config{MaxConcurrency: 3})

	results, err := Map(context.Background(), e, []int{1, 2, 3, 4}, func(ctx context.Context, n int) (any, error) {
		return n * n, nil
	})
	require.NoError(t, err)

	values := make([]any, len(results))
	for i, r := range results {
		values[i] = r.Value
	}
	assert.Equal(t, []any{1, 4, 9, 16}, values)
}

func TestLocal_SignalPassThrough(t *testing.T) {
	handler := signal.NewLocal(signal.Config{Logger: slog.New(slog.DiscardHandler)})
	e := newTestLocal(t, Config{Signals: handler})

	got := make(chan any, 1)
	go func() {
		v, err := e.WaitForSignal(context.Background(), "approve", signal.WithTimeout(5*time.Second))
		assert.NoError(t, err)
		got <- v
	}()

	require.Eventually(t, func() bool { return handler.Pending("approve") == 1 }, time.Second, 5*time.Millisecond)
	require.NoError(t, e.Signal(context.Background(), signal.Signal{Name: "approve", Payload: "yes"}))
	assert.Equal(t, "yes", <-got)
}
