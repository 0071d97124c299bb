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
	"fmt"
	"sync"
)

var (
	// ErrNoWorkflowContext is returned by the durable backend when the
	// context carries no workflow id.
	ErrNoWorkflowContext = errors.New("durable execution requires a workflow context")

	// ErrUnsupportedTask is recorded in a result slot whose task the backend cannot run.
	ErrUnsupportedTask = errors.New("unsupported task")

	// ErrClosed is returned once the executor has been closed.
	ErrClosed = errors.New("executor is closed")
)

// TaskKind identifies the variant held by a Task.
type TaskKind int

const (
	// KindFunc is a plain blocking callable run on the worker pool.
	KindFunc TaskKind = iota + 1
	// KindGo is a context-aware function run on its own goroutine.
	KindGo
	// KindAwait is work already in flight, represented by a Future.
	KindAwait
)

func (k TaskKind) String() string {
	switch k {
	case KindFunc:
		return "func"
	case KindGo:
		return "go"
	case KindAwait:
		return "await"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Task is one unit of work. Build it with Func, Go or Await.
type Task struct {
	kind   TaskKind
	fn     func() (any, error)
	ctxFn  func(context.Context) (any, error)
	future *Future
}

// Func wraps a blocking callable. It runs on the executor's worker pool.
func Func(fn func() (any, error)) Task {
	return Task{kind: KindFunc, fn: fn}
}

// Go wraps a context-aware function.
func Go(fn func(ctx context.Context) (any, error)) Task {
	return Task{kind: KindGo, ctxFn: fn}
}

// Await wraps a future that some other goroutine resolves.
func Await(f *Future) Task {
	return Task{kind: KindAwait, future: f}
}

// Kind returns the task's variant.
func (t Task) Kind() TaskKind {
	return t.kind
}

// Result is the outcome of the task at Index.
type Result struct {
	Index int
	Value any
	Err   error
}

// TaskPanicError is the error recorded for a task that panicked.
type TaskPanicError struct {
	Value any
	Stack []byte
}

func (e *TaskPanicError) Error() string {
	return fmt.Sprintf("task panicked: %v", e.Value)
}

// Future is a value that becomes available later.
type Future struct {
	done  chan struct{}
	once  sync.Once
	value any
	err   error
}

// NewFuture returns an unresolved future.
func NewFuture() *Future {
	return &Future{done: make(chan struct{})}
}

// Resolve sets the outcome. Only the first call has an effect.
func (f *Future) Resolve(value any, err error) {
	f.once.Do(func() {
		f.value = value
		f.err = err
		close(f.done)
	})
}

// Done is closed once the future resolves.
func (f *Future) Done() <-chan struct{} {
	return f.done
}

// Wait blocks until the future resolves or ctx is done.
func (f *Future) Wait(ctx context.Context) (any, error) {
	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
