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

// Package executor runs units of work concurrently and collects their
// results, either in input order or as they complete.
//
// Two backends implement Executor:
//
//   - Local schedules tasks in-process.
//   - Durable records each task as an activity in a durable.ActivityStore
//     so a resumed workflow replays completed work instead of re-running it.
//
// Both pass signals through to a signal.Handler, which is how a running
// workflow pauses for human input.
package executor

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel/metric"

	"github.com/ZhihaoAIRobotic/MetaAgent-sub000/internal/signal"
)

// Executor runs tasks and relays signals.
type Executor interface {
	// Execute runs all tasks concurrently. Slot i of the result holds task
	// i's value or error. The returned error is for executor-level failures.
	Execute(ctx context.Context, tasks ...Task) ([]Result, error)

	// ExecuteStreaming yields each result as soon as its task completes.
	// The channel is closed after the last result.
	ExecuteStreaming(ctx context.Context, tasks ...Task) (<-chan Result, error)

	// Signal emits a signal through the configured handler.
	Signal(ctx context.Context, sig signal.Signal) error

	// WaitForSignal blocks on the configured handler.
	WaitForSignal(ctx context.Context, name string, opts ...signal.WaitOption) (any, error)

	// Close releases the worker pool.
	Close() error
}

// DefaultPoolSize is the worker pool size used when Config.PoolSize is zero.
const DefaultPoolSize = 16

// Config holds settings shared by both backends.
type Config struct {
	// MaxConcurrency caps how many tasks run at once. Zero means unlimited.
	MaxConcurrency int

	// PoolSize is the number of workers for Func tasks.
	PoolSize int

	// Signals receives Signal and WaitForSignal. Defaults to a local handler.
	Signals signal.Handler

	// Logger is used for structured logging (optional)
	Logger *slog.Logger

	// MeterProvider records task metrics (optional)
	MeterProvider metric.MeterProvider
}

// Map applies fn to every item through ex. Results are in input order.
func Map[T any](ctx context.Context, ex Executor, items []T, fn func(context.Context, T) (any, error)) ([]Result, error) {
	tasks := make([]Task, len(items))
	for i, item := range items {
		tasks[i] = Go(func(ctx context.Context) (any, error) {
			return fn(ctx, item)
		})
	}
	return ex.Execute(ctx, tasks...)
}
