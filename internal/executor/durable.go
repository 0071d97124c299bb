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
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/ZhihaoAIRobotic/MetaAgent-sub000/internal/durable"
)

// Compile-time interface assertion.
var _ Executor = (*Durable)(nil)

// RetryPolicy controls how a failed activity is retried.
type RetryPolicy struct {
	// MaxAttempts includes the first attempt. Values below 1 mean 1.
	MaxAttempts        int
	InitialInterval    time.Duration
	BackoffCoefficient float64
	MaxInterval        time.Duration
}

// DefaultRetryPolicy returns three attempts with exponential backoff from 1s.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:        3,
		InitialInterval:    time.Second,
		BackoffCoefficient: 2,
		MaxInterval:        30 * time.Second,
	}
}

// Backoff returns the delay after the given failed attempt (1-based).
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	coef := p.BackoffCoefficient
	if coef < 1 {
		coef = 1
	}
	d := float64(p.InitialInterval) * math.Pow(coef, float64(attempt-1))
	if p.MaxInterval > 0 && d > float64(p.MaxInterval) {
		return p.MaxInterval
	}
	return time.Duration(d)
}

func (p RetryPolicy) attempts() int {
	return max(p.MaxAttempts, 1)
}

// ActivityError is recorded for an activity that exhausted its retries.
type ActivityError struct {
	WorkflowID string
	ActivityID string
	Attempts   int
	Err        error
}

func (e *ActivityError) Error() string {
	return fmt.Sprintf("activity %s in workflow %s failed after %d attempt(s): %v",
		e.ActivityID, e.WorkflowID, e.Attempts, e.Err)
}

func (e *ActivityError) Unwrap() error {
	return e.Err
}

// DurableConfig configures a Durable executor.
type DurableConfig struct {
	Config

	// Store persists activity records. Required.
	Store durable.ActivityStore

	// Retry defaults to DefaultRetryPolicy when MaxAttempts is zero.
	Retry RetryPolicy
}

// Durable runs every task as an activity of the workflow bound to the
// context with durable.WithWorkflow.
//
// Activity ids are a per-workflow sequence assigned in call order, so a
// workflow that re-issues the same calls after a restart finds its
// completed activities and gets their stored results back. Replayed values
// are decoded from JSON into generic values. Activities that did not
// complete, including ones that failed, run again.
type Durable struct {
	*base
	store durable.ActivityStore
	retry RetryPolicy

	mu  sync.Mutex
	seq map[string]int
}

// NewDurable creates a durable executor.
func NewDurable(cfg DurableConfig) (*Durable, error) {
	if cfg.Store == nil {
		return nil, errors.New("activity store is required")
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = DefaultRetryPolicy()
	}
	b, err := newBase(cfg.Config)
	if err != nil {
		return nil, err
	}
	return &Durable{
		base:  b,
		store: cfg.Store,
		retry: cfg.Retry,
		seq:   make(map[string]int),
	}, nil
}

// Execute runs all tasks as activities and returns results in input order.
func (e *Durable) Execute(ctx context.Context, tasks ...Task) ([]Result, error) {
	run, err := e.prepare(ctx, len(tasks))
	if err != nil {
		return nil, err
	}
	return e.collect(ctx, tasks, run), nil
}

// ExecuteStreaming runs all tasks as activities and yields results as they complete.
func (e *Durable) ExecuteStreaming(ctx context.Context, tasks ...Task) (<-chan Result, error) {
	run, err := e.prepare(ctx, len(tasks))
	if err != nil {
		return nil, err
	}
	return e.stream(ctx, tasks, run), nil
}

// prepare resolves the workflow and reserves n activity ids before any
// task starts, so ids follow input order rather than completion order.
func (e *Durable) prepare(ctx context.Context, n int) (unitFunc, error) {
	if e.closed.Load() {
		return nil, ErrClosed
	}
	workflowID, ok := durable.WorkflowFrom(ctx)
	if !ok {
		return nil, ErrNoWorkflowContext
	}

	e.mu.Lock()
	first := e.seq[workflowID]
	e.seq[workflowID] = first + n
	e.mu.Unlock()

	return func(ctx context.Context, i int, t Task) (any, error) {
		return e.runActivity(ctx, workflowID, activityID(first+i), t)
	}, nil
}

func activityID(seq int) string {
	return fmt.Sprintf("activity-%d", seq)
}

func (e *Durable) runActivity(ctx context.Context, workflowID, id string, t Task) (any, error) {
	if t.kind == KindAwait {
		return nil, fmt.Errorf("%w: await tasks cannot be made durable", ErrUnsupportedTask)
	}

	logger := e.logger.With("workflow_id", workflowID, "activity", id)

	act, err := e.store.GetActivity(ctx, workflowID, id)
	switch {
	case err == nil && act.Status == durable.ActivityCompleted:
		logger.Debug("replaying completed activity")
		e.metrics.recordReplay(ctx)
		return decodeResult(act.Result)
	case err == nil:
		// Left over from an earlier run that did not complete.
	case errors.Is(err, durable.ErrNotFound):
		now := time.Now()
		act = &durable.Activity{
			WorkflowID: workflowID,
			ActivityID: id,
			Status:     durable.ActivityScheduled,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
	default:
		return nil, fmt.Errorf("load activity %s: %w", id, err)
	}

	maxAttempts := e.retry.attempts()
	for attempt := 1; ; attempt++ {
		act.Attempts++
		act.Status = durable.ActivityRunning
		if err := e.save(ctx, act); err != nil {
			return nil, err
		}

		value, runErr := e.runTask(ctx, t)
		if runErr == nil {
			raw, err := json.Marshal(value)
			if err != nil {
				act.Status = durable.ActivityFailed
				act.Error = fmt.Sprintf("encode result: %v", err)
				_ = e.save(ctx, act)
				return nil, fmt.Errorf("activity %s: encode result: %w", id, err)
			}
			act.Status = durable.ActivityCompleted
			act.Result = raw
			act.Error = ""
			if err := e.save(ctx, act); err != nil {
				return nil, err
			}
			return value, nil
		}

		act.Error = runErr.Error()
		if attempt >= maxAttempts || ctx.Err() != nil {
			act.Status = durable.ActivityFailed
			if err := e.save(context.WithoutCancel(ctx), act); err != nil {
				logger.Warn("failed to record activity failure", "error", err)
			}
			return nil, &ActivityError{
				WorkflowID: workflowID,
				ActivityID: id,
				Attempts:   act.Attempts,
				Err:        runErr,
			}
		}

		delay := e.retry.Backoff(attempt)
		logger.Debug("retrying activity", "attempt", attempt, "delay", delay, "error", runErr)
		if err := e.save(ctx, act); err != nil {
			return nil, err
		}

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func (e *Durable) save(ctx context.Context, act *durable.Activity) error {
	act.UpdatedAt = time.Now()
	if err := e.store.SaveActivity(ctx, act); err != nil {
		return fmt.Errorf("save activity %s: %w", act.ActivityID, err)
	}
	return nil
}

func decodeResult(raw json.RawMessage) (any, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("decode activity result: %w", err)
	}
	return v, nil
}
