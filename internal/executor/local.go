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
)

// Compile-time interface assertion.
var _ Executor = (*Local)(nil)

// Local runs tasks in-process.
type Local struct {
	*base
}

// NewLocal creates a local executor.
func NewLocal(cfg Config) (*Local, error) {
	b, err := newBase(cfg)
	if err != nil {
		return nil, err
	}
	return &Local{base: b}, nil
}

// Execute runs all tasks and returns their results in input order.
func (e *Local) Execute(ctx context.Context, tasks ...Task) ([]Result, error) {
	if e.closed.Load() {
		return nil, ErrClosed
	}
	return e.collect(ctx, tasks, e.run), nil
}

// ExecuteStreaming yields results in completion order.
func (e *Local) ExecuteStreaming(ctx context.Context, tasks ...Task) (<-chan Result, error) {
	if e.closed.Load() {
		return nil, ErrClosed
	}
	return e.stream(ctx, tasks, e.run), nil
}

func (e *Local) run(ctx context.Context, _ int, t Task) (any, error) {
	return e.runTask(ctx, t)
}
