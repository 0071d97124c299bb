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
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/panjf2000/ants/v2"
	"golang.org/x/sync/semaphore"

	"github.com/ZhihaoAIRobotic/MetaAgent-sub000/internal/signal"
)

// unitFunc runs the task at index i.
type unitFunc func(ctx context.Context, i int, t Task) (any, error)

// base holds the scheduling machinery shared by the backends.
type base struct {
	pool    *ants.Pool
	sem     *semaphore.Weighted
	signals signal.Handler
	logger  *slog.Logger
	metrics *metrics
	closed  atomic.Bool
}

func newBase(cfg Config) (*base, error) {
	size := cfg.PoolSize
	if size <= 0 {
		size = DefaultPoolSize
	}
	pool, err := ants.NewPool(size)
	if err != nil {
		return nil, fmt.Errorf("create worker pool: %w", err)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	m, err := newMetrics(cfg.MeterProvider)
	if err != nil {
		pool.Release()
		return nil, err
	}

	signals := cfg.Signals
	if signals == nil {
		signals = signal.NewLocal(signal.Config{Logger: logger})
	}

	b := &base{
		pool:    pool,
		signals: signals,
		logger:  logger,
		metrics: m,
	}
	if cfg.MaxConcurrency > 0 {
		b.sem = semaphore.NewWeighted(int64(cfg.MaxConcurrency))
	}
	return b, nil
}

// Signal delegates to the signal handler.
func (b *base) Signal(ctx context.Context, sig signal.Signal) error {
	return b.signals.Signal(ctx, sig)
}

// WaitForSignal delegates to the signal handler.
func (b *base) WaitForSignal(ctx context.Context, name string, opts ...signal.WaitOption) (any, error) {
	return b.signals.WaitForSignal(ctx, name, opts...)
}

// Close releases the worker pool. Calling it again is a no-op.
func (b *base) Close() error {
	if b.closed.Swap(true) {
		return nil
	}
	b.pool.Release()
	return nil
}

func (b *base) collect(ctx context.Context, tasks []Task, run unitFunc) []Result {
	results := make([]Result, len(tasks))
	// Each goroutine writes only its own slot.
	b.schedule(ctx, tasks, run, func(r Result) { results[r.Index] = r })
	return results
}

func (b *base) stream(ctx context.Context, tasks []Task, run unitFunc) <-chan Result {
	out := make(chan Result, len(tasks))
	go func() {
		defer close(out)
		b.schedule(ctx, tasks, run, func(r Result) { out <- r })
	}()
	return out
}

// schedule starts one goroutine per task, gated by the semaphore, and
// returns after every result has been emitted.
func (b *base) schedule(ctx context.Context, tasks []Task, run unitFunc, emit func(Result)) {
	start := time.Now()
	b.logger.Debug("executing tasks", "count", len(tasks))

	var wg sync.WaitGroup
	for i, t := range tasks {
		wg.Add(1)
		go func() {
			defer wg.Done()

			if b.sem != nil {
				if err := b.sem.Acquire(ctx, 1); err != nil {
					emit(Result{Index: i, Err: err})
					return
				}
				defer b.sem.Release(1)
			}

			taskStart := time.Now()
			value, err := run(ctx, i, t)
			b.metrics.recordTask(ctx, t.kind, err, time.Since(taskStart))
			emit(Result{Index: i, Value: value, Err: err})
		}()
	}
	wg.Wait()

	b.logger.Debug("tasks complete", "count", len(tasks), "duration", time.Since(start))
}

// runTask executes one task according to its kind.
func (b *base) runTask(ctx context.Context, t Task) (any, error) {
	switch t.kind {
	case KindFunc:
		return b.runOnPool(ctx, t.fn)
	case KindGo:
		return protect(func() (any, error) { return t.ctxFn(ctx) })
	case KindAwait:
		if t.future == nil {
			return nil, fmt.Errorf("%w: await without a future", ErrUnsupportedTask)
		}
		return t.future.Wait(ctx)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedTask, t.kind)
	}
}

// runOnPool offloads fn to a pool worker so the caller's goroutine only waits.
func (b *base) runOnPool(ctx context.Context, fn func() (any, error)) (any, error) {
	type outcome struct {
		value any
		err   error
	}
	done := make(chan outcome, 1)
	err := b.pool.Submit(func() {
		v, err := protect(fn)
		done <- outcome{v, err}
	})
	if err != nil {
		return nil, fmt.Errorf("submit to worker pool: %w", err)
	}

	select {
	case o := <-done:
		return o.value, o.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func protect(fn func() (any, error)) (value any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &TaskPanicError{Value: r, Stack: debug.Stack()}
		}
	}()
	return fn()
}
