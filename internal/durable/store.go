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

// Package durable provides the persistence used by the durable execution
// engine: workflow-scoped activity records and signal mailboxes.
//
// # Interface Hierarchy
//
//   - ActivityStore: GetActivity, SaveActivity, ListActivities
//   - SignalStore: PutSignal, TakeSignal, waiter registration
//   - Store: both, plus io.Closer
//
// The executor only needs an ActivityStore and the signal handler only a
// SignalStore; the memory and sqlite implementations provide both.
package durable

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"time"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("not found")

// ActivityStatus is the lifecycle state of an activity.
type ActivityStatus string

const (
	ActivityScheduled ActivityStatus = "scheduled"
	ActivityRunning   ActivityStatus = "running"
	ActivityCompleted ActivityStatus = "completed"
	ActivityFailed    ActivityStatus = "failed"
)

// Activity is one durable unit of work within a workflow.
type Activity struct {
	WorkflowID string
	ActivityID string
	Status     ActivityStatus
	Attempts   int
	// Result is the JSON encoding of the unit's value once completed.
	Result json.RawMessage
	// Error is the last failure message.
	Error     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Done reports whether the activity reached a terminal state.
func (a *Activity) Done() bool {
	return a.Status == ActivityCompleted || a.Status == ActivityFailed
}

// SignalRecord is a signal waiting in a workflow's mailbox.
type SignalRecord struct {
	ID         int64
	WorkflowID string
	Name       string
	// WaiterID addresses the record to one registered waiter. Empty means
	// any waiter may consume it.
	WaiterID    string
	Payload     json.RawMessage
	Description string
	CreatedAt   time.Time
}

// Waiter is a registered wait_for_signal call.
type Waiter struct {
	ID         string
	WorkflowID string
	Name       string
	CreatedAt  time.Time
}

// ActivityStore persists activity records.
type ActivityStore interface {
	// GetActivity returns ErrNotFound if the activity was never saved.
	GetActivity(ctx context.Context, workflowID, activityID string) (*Activity, error)

	// SaveActivity inserts or replaces an activity.
	SaveActivity(ctx context.Context, activity *Activity) error

	// ListActivities returns a workflow's activities ordered by creation.
	ListActivities(ctx context.Context, workflowID string) ([]*Activity, error)
}

// SignalStore persists signals and waiter registrations.
type SignalStore interface {
	// PutSignal appends a signal to the mailbox and assigns its ID.
	PutSignal(ctx context.Context, sig *SignalRecord) error

	// TakeSignal removes and returns the oldest signal for (workflowID, name)
	// that is unaddressed or addressed to waiterID. Returns ErrNotFound when
	// the mailbox holds nothing deliverable.
	TakeSignal(ctx context.Context, workflowID, name, waiterID string) (*SignalRecord, error)

	// RegisterWaiter records a waiter.
	RegisterWaiter(ctx context.Context, w Waiter) error

	// RemoveWaiter deletes a waiter and any signals addressed to it.
	RemoveWaiter(ctx context.Context, id string) error

	// ListWaiters returns the waiters registered for (workflowID, name).
	ListWaiters(ctx context.Context, workflowID, name string) ([]Waiter, error)
}

// Store is the full durable store.
type Store interface {
	ActivityStore
	SignalStore
	io.Closer
}
