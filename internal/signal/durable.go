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
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ZhihaoAIRobotic/MetaAgent-sub000/internal/durable"
)

// Compile-time interface assertion.
var _ Handler = (*DurableHandler)(nil)

// DefaultPollInterval is how often a durable waiter re-checks its mailbox
// when no in-process wakeup arrives.
const DefaultPollInterval = 200 * time.Millisecond

// DurableConfig configures a DurableHandler.
type DurableConfig struct {
	Store durable.SignalStore

	// PollInterval defaults to DefaultPollInterval.
	PollInterval time.Duration

	// Logger is used for structured logging (optional)
	Logger *slog.Logger
}

// DurableHandler is a Handler whose waiters and undelivered signals live in
// a durable.SignalStore, so a signal can cross processes. Every call must be
// scoped to a workflow, either through WithWorkflowID, Signal.WorkflowID or
// durable.WithWorkflow on the context.
//
// Payloads are stored as JSON and come back from WaitForSignal decoded into
// generic values (maps, slices, float64, string, bool).
type DurableHandler struct {
	store        durable.SignalStore
	pollInterval time.Duration
	callbacks    *callbackSet
	logger       *slog.Logger

	mu      sync.Mutex
	wake    chan struct{}
	pending map[string]int

	done      chan struct{}
	closeOnce sync.Once
}

// NewDurable creates a durable signal handler.
func NewDurable(cfg DurableConfig) (*DurableHandler, error) {
	if cfg.Store == nil {
		return nil, errors.New("signal store is required")
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &DurableHandler{
		store:        cfg.Store,
		pollInterval: cfg.PollInterval,
		callbacks:    newCallbackSet(),
		logger:       logger,
		wake:         make(chan struct{}),
		pending:      make(map[string]int),
		done:         make(chan struct{}),
	}, nil
}

// Signal addresses one record to each waiter registered at this moment.
// With no waiters, a single unaddressed record is buffered for the next one.
func (h *DurableHandler) Signal(ctx context.Context, sig Signal) error {
	if sig.Name == "" {
		return ErrEmptyName
	}
	if h.isClosed() {
		return ErrHandlerClosed
	}
	workflowID, err := resolveWorkflow(ctx, sig.WorkflowID)
	if err != nil {
		return err
	}
	sig.WorkflowID = workflowID

	payload, err := json.Marshal(sig.Payload)
	if err != nil {
		return fmt.Errorf("encode signal payload: %w", err)
	}

	waiters, err := h.store.ListWaiters(ctx, workflowID, sig.Name)
	if err != nil {
		return fmt.Errorf("list waiters: %w", err)
	}

	records := make([]*durable.SignalRecord, 0, max(len(waiters), 1))
	if len(waiters) == 0 {
		records = append(records, &durable.SignalRecord{})
	}
	for _, w := range waiters {
		records = append(records, &durable.SignalRecord{WaiterID: w.ID})
	}
	for _, rec := range records {
		rec.WorkflowID = workflowID
		rec.Name = sig.Name
		rec.Payload = payload
		rec.Description = sig.Description
		if err := h.store.PutSignal(ctx, rec); err != nil {
			return fmt.Errorf("store signal: %w", err)
		}
	}

	h.broadcast()
	h.logger.Debug("durable signal emitted",
		"signal", sig.Name,
		"workflow_id", workflowID,
		"waiters", len(waiters),
	)
	h.callbacks.dispatch(ctx, h.logger, sig)
	return nil
}

// WaitForSignal registers a waiter in the store and polls its mailbox.
func (h *DurableHandler) WaitForSignal(ctx context.Context, name string, opts ...WaitOption) (any, error) {
	if name == "" {
		return nil, ErrEmptyName
	}
	if h.isClosed() {
		return nil, ErrHandlerClosed
	}
	o := applyOptions(opts)
	workflowID, err := resolveWorkflow(ctx, o.workflowID)
	if err != nil {
		return nil, err
	}

	waiter := durable.Waiter{
		ID:         uuid.NewString(),
		WorkflowID: workflowID,
		Name:       name,
		CreatedAt:  time.Now(),
	}
	if err := h.store.RegisterWaiter(ctx, waiter); err != nil {
		return nil, fmt.Errorf("register waiter: %w", err)
	}
	h.addPending(name, 1)
	defer func() {
		h.addPending(name, -1)
		if err := h.store.RemoveWaiter(context.WithoutCancel(ctx), waiter.ID); err != nil {
			h.logger.Warn("failed to remove signal waiter", "signal", name, "waiter", waiter.ID, "error", err)
		}
	}()

	h.logger.Debug("waiting for durable signal",
		"signal", name,
		"workflow_id", workflowID,
		"description", o.description,
	)

	timeoutC, stop := timer(o.timeout)
	defer stop()
	ticker := time.NewTicker(h.pollInterval)
	defer ticker.Stop()

	for {
		wake := h.wakeChan()

		rec, err := h.store.TakeSignal(ctx, workflowID, name, waiter.ID)
		switch {
		case err == nil:
			return decodePayload(rec.Payload)
		case !errors.Is(err, durable.ErrNotFound):
			return nil, fmt.Errorf("take signal: %w", err)
		}

		select {
		case <-wake:
		case <-ticker.C:
		case <-timeoutC:
			return nil, timeoutError(name, o.timeout)
		case <-h.done:
			return nil, ErrHandlerClosed
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// OnSignal registers a callback for signals emitted through this handler.
func (h *DurableHandler) OnSignal(name string, cb Callback) func() {
	return h.callbacks.add(name, cb)
}

// Pending returns the number of waits for name in progress in this process.
func (h *DurableHandler) Pending(name string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.pending[name]
}

// Close wakes blocked waiters with ErrHandlerClosed. Buffered signals stay
// in the store. The store itself is not closed.
func (h *DurableHandler) Close() error {
	h.closeOnce.Do(func() { close(h.done) })
	return nil
}

func (h *DurableHandler) isClosed() bool {
	select {
	case <-h.done:
		return true
	default:
		return false
	}
}

func (h *DurableHandler) addPending(name string, delta int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.pending[name] += delta
	if h.pending[name] <= 0 {
		delete(h.pending, name)
	}
}

func (h *DurableHandler) wakeChan() <-chan struct{} {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.wake
}

// broadcast wakes every in-process waiter so it re-checks the store
// without waiting for its next poll.
func (h *DurableHandler) broadcast() {
	h.mu.Lock()
	defer h.mu.Unlock()
	close(h.wake)
	h.wake = make(chan struct{})
}

func resolveWorkflow(ctx context.Context, explicit string) (string, error) {
	if explicit != "" {
		return explicit, nil
	}
	if id, ok := durable.WorkflowFrom(ctx); ok {
		return id, nil
	}
	return "", ErrMissingWorkflowID
}

func decodePayload(raw json.RawMessage) (any, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("decode signal payload: %w", err)
	}
	return v, nil
}
