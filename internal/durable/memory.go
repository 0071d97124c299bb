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

package durable

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Compile-time interface assertion.
var _ Store = (*MemoryStore)(nil)

// MemoryStore is an in-process Store. State does not survive a restart, so
// it is meant for tests and single-run CLI invocations.
type MemoryStore struct {
	mu         sync.Mutex
	activities map[string]*Activity
	order      []string
	signals    []*SignalRecord
	waiters    map[string]Waiter
	nextID     int64
}

// NewMemoryStore creates an empty memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		activities: make(map[string]*Activity),
		waiters:    make(map[string]Waiter),
	}
}

func activityKey(workflowID, activityID string) string {
	return workflowID + "\x00" + activityID
}

// GetActivity returns a copy of the stored activity.
func (s *MemoryStore) GetActivity(ctx context.Context, workflowID, activityID string) (*Activity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.activities[activityKey(workflowID, activityID)]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *a
	return &cp, nil
}

// SaveActivity stores a copy of the activity.
func (s *MemoryStore) SaveActivity(ctx context.Context, activity *Activity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := activityKey(activity.WorkflowID, activity.ActivityID)
	now := time.Now()
	cp := *activity
	if existing, ok := s.activities[key]; ok {
		cp.CreatedAt = existing.CreatedAt
	} else {
		if cp.CreatedAt.IsZero() {
			cp.CreatedAt = now
		}
		s.order = append(s.order, key)
	}
	cp.UpdatedAt = now
	s.activities[key] = &cp
	return nil
}

// ListActivities returns a workflow's activities in insertion order.
func (s *MemoryStore) ListActivities(ctx context.Context, workflowID string) ([]*Activity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*Activity
	for _, key := range s.order {
		a := s.activities[key]
		if a.WorkflowID == workflowID {
			cp := *a
			out = append(out, &cp)
		}
	}
	return out, nil
}

// PutSignal appends a signal to the mailbox.
func (s *MemoryStore) PutSignal(ctx context.Context, sig *SignalRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	sig.ID = s.nextID
	if sig.CreatedAt.IsZero() {
		sig.CreatedAt = time.Now()
	}
	cp := *sig
	s.signals = append(s.signals, &cp)
	return nil
}

// TakeSignal removes the oldest deliverable signal.
func (s *MemoryStore) TakeSignal(ctx context.Context, workflowID, name, waiterID string) (*SignalRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, sig := range s.signals {
		if sig.WorkflowID != workflowID || sig.Name != name {
			continue
		}
		if sig.WaiterID != "" && sig.WaiterID != waiterID {
			continue
		}
		s.signals = append(s.signals[:i], s.signals[i+1:]...)
		return sig, nil
	}
	return nil, ErrNotFound
}

// RegisterWaiter records a waiter.
func (s *MemoryStore) RegisterWaiter(ctx context.Context, w Waiter) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if w.CreatedAt.IsZero() {
		w.CreatedAt = time.Now()
	}
	s.waiters[w.ID] = w
	return nil
}

// RemoveWaiter deletes a waiter and the signals addressed to it.
func (s *MemoryStore) RemoveWaiter(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.waiters, id)
	kept := s.signals[:0]
	for _, sig := range s.signals {
		if sig.WaiterID != id {
			kept = append(kept, sig)
		}
	}
	s.signals = kept
	return nil
}

// ListWaiters returns the waiters for (workflowID, name), oldest first.
func (s *MemoryStore) ListWaiters(ctx context.Context, workflowID, name string) ([]Waiter, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Waiter
	for _, w := range s.waiters {
		if w.WorkflowID == workflowID && w.Name == name {
			out = append(out, w)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// Close is a no-op.
func (s *MemoryStore) Close() error {
	return nil
}
