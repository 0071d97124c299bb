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

// Package signal lets one goroutine block until another emits a named
// signal, optionally scoped to a workflow instance. It is how paused
// human-in-the-loop steps are resumed.
package signal

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrSignalTimeout is returned by WaitForSignal when the timeout elapses
	// before a matching signal arrives.
	ErrSignalTimeout = errors.New("timed out waiting for signal")

	// ErrMissingWorkflowID is returned by the durable handler when neither
	// the call nor the context carries a workflow id.
	ErrMissingWorkflowID = errors.New("workflow id is required")

	// ErrEmptyName is returned for signals or waits without a name.
	ErrEmptyName = errors.New("signal name is required")

	// ErrHandlerClosed is returned by a handler after Close, and to any
	// waiter still blocked when Close is called.
	ErrHandlerClosed = errors.New("signal handler is closed")
)

// Signal is a named message that wakes waiters.
type Signal struct {
	Name        string
	Payload     any
	WorkflowID  string
	Description string
}

// Callback is invoked for every emitted signal matching its name. Errors
// and panics are logged, never returned to the emitter.
type Callback func(ctx context.Context, sig Signal) error

// Handler is the publish/wait contract shared by the local and durable
// implementations.
type Handler interface {
	// Signal wakes all current waiters for sig.Name and runs callbacks.
	Signal(ctx context.Context, sig Signal) error

	// WaitForSignal blocks until a matching signal arrives and returns its payload.
	WaitForSignal(ctx context.Context, name string, opts ...WaitOption) (any, error)

	// OnSignal registers a persistent callback and returns a function that removes it.
	OnSignal(name string, cb Callback) (unsubscribe func())

	// Pending returns the number of live wait registrations for name in this process.
	Pending(name string) int
}

// WaitOption configures a WaitForSignal call.
type WaitOption func(*waitOptions)

type waitOptions struct {
	timeout     time.Duration
	workflowID  string
	description string
}

// WithTimeout bounds the wait. Zero means wait until the context is done.
func WithTimeout(d time.Duration) WaitOption {
	return func(o *waitOptions) { o.timeout = d }
}

// WithWorkflowID scopes the wait to one workflow instance.
func WithWorkflowID(id string) WaitOption {
	return func(o *waitOptions) { o.workflowID = id }
}

// WithDescription attaches a human-readable description, used in logs.
func WithDescription(desc string) WaitOption {
	return func(o *waitOptions) { o.description = desc }
}

func applyOptions(opts []WaitOption) waitOptions {
	var o waitOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func timeoutError(name string, d time.Duration) error {
	return fmt.Errorf("%w %q after %s", ErrSignalTimeout, name, d)
}

// timer returns a channel that fires after d, or nil (never fires) when d is zero.
func timer(d time.Duration) (<-chan time.Time, func()) {
	if d <= 0 {
		return nil, func() {}
	}
	t := time.NewTimer(d)
	return t.C, func() { t.Stop() }
}
