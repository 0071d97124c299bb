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
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// Compile-time interface assertion.
var _ Handler = (*LocalHandler)(nil)

// Config configures a handler.
type Config struct {
	// Logger is used for structured logging (optional)
	Logger *slog.Logger
}

// registration is one pending WaitForSignal call.
type registration struct {
	id         string
	workflowID string
	ch         chan any
}

// LocalHandler is the in-process Handler.
type LocalHandler struct {
	mu        sync.Mutex
	waiters   map[string]map[string]*registration
	callbacks *callbackSet
	logger    *slog.Logger
	done      chan struct{}
	closeOnce sync.Once
}

// NewLocal creates an in-process signal handler.
func NewLocal(cfg Config) *LocalHandler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &LocalHandler{
		waiters:   make(map[string]map[string]*registration),
		callbacks: newCallbackSet(),
		logger:    logger,
		done:      make(chan struct{}),
	}
}

// Signal wakes every current waiter for sig.Name. A waiter scoped to a
// workflow is skipped when the signal names a different workflow.
func (h *LocalHandler) Signal(ctx context.Context, sig Signal) error {
	if sig.Name == "" {
		return ErrEmptyName
	}
	if h.isClosed() {
		return ErrHandlerClosed
	}

	h.mu.Lock()
	woken := 0
	for _, reg := range h.waiters[sig.Name] {
		if reg.workflowID != "" && sig.WorkflowID != "" && reg.workflowID != sig.WorkflowID {
			continue
		}
		select {
		case reg.ch <- sig.Payload:
			woken++
		default:
			// Already holds an undelivered payload.
		}
	}
	h.mu.Unlock()

	h.logger.Debug("signal emitted", "signal", sig.Name, "workflow_id", sig.WorkflowID, "woken", woken)
	h.callbacks.dispatch(ctx, h.logger, sig)
	return nil
}

// WaitForSignal blocks until a matching signal, the timeout, or ctx.
func (h *LocalHandler) WaitForSignal(ctx context.Context, name string, opts ...WaitOption) (any, error) {
	if name == "" {
		return nil, ErrEmptyName
	}
	if h.isClosed() {
		return nil, ErrHandlerClosed
	}
	o := applyOptions(opts)

	reg := &registration{
		id:         uuid.NewString(),
		workflowID: o.workflowID,
		ch:         make(chan any, 1),
	}
	h.register(name, reg)
	defer h.unregister(name, reg.id)

	h.logger.Debug("waiting for signal", "signal", name, "workflow_id", o.workflowID, "description", o.description)

	timeoutC, stop := timer(o.timeout)
	defer stop()

	select {
	case payload := <-reg.ch:
		return payload, nil
	case <-timeoutC:
		// A signal that raced the timer still wins.
		select {
		case payload := <-reg.ch:
			return payload, nil
		default:
		}
		return nil, timeoutError(name, o.timeout)
	case <-h.done:
		return nil, ErrHandlerClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close wakes every blocked waiter with ErrHandlerClosed and rejects later calls.
func (h *LocalHandler) Close() error {
	h.closeOnce.Do(func() { close(h.done) })
	return nil
}

func (h *LocalHandler) isClosed() bool {
	select {
	case <-h.done:
		return true
	default:
		return false
	}
}

// OnSignal registers a persistent callback for name.
func (h *LocalHandler) OnSignal(name string, cb Callback) func() {
	return h.callbacks.add(name, cb)
}

// Pending returns the number of live registrations for name.
func (h *LocalHandler) Pending(name string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.waiters[name])
}

func (h *LocalHandler) register(name string, reg *registration) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.waiters[name] == nil {
		h.waiters[name] = make(map[string]*registration)
	}
	h.waiters[name][reg.id] = reg
}

func (h *LocalHandler) unregister(name, id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.waiters[name], id)
	if len(h.waiters[name]) == 0 {
		delete(h.waiters, name)
	}
}
