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
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// callbackSet holds OnSignal registrations.
type callbackSet struct {
	mu     sync.RWMutex
	byName map[string]map[string]Callback
}

func newCallbackSet() *callbackSet {
	return &callbackSet{byName: make(map[string]map[string]Callback)}
}

func (c *callbackSet) add(name string, cb Callback) func() {
	id := uuid.NewString()

	c.mu.Lock()
	if c.byName[name] == nil {
		c.byName[name] = make(map[string]Callback)
	}
	c.byName[name][id] = cb
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.byName[name], id)
		if len(c.byName[name]) == 0 {
			delete(c.byName, name)
		}
	}
}

// dispatch runs callbacks outside the lock so a callback may itself
// register or emit.
func (c *callbackSet) dispatch(ctx context.Context, logger *slog.Logger, sig Signal) {
	c.mu.RLock()
	cbs := make([]Callback, 0, len(c.byName[sig.Name]))
	for _, cb := range c.byName[sig.Name] {
		cbs = append(cbs, cb)
	}
	c.mu.RUnlock()

	for _, cb := range cbs {
		if err := safeCall(ctx, cb, sig); err != nil {
			logger.Error("signal callback failed",
				"signal", sig.Name,
				"workflow_id", sig.WorkflowID,
				"error", err,
			)
		}
	}
}

func safeCall(ctx context.Context, cb Callback, sig Signal) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("callback panicked: %v", r)
		}
	}()
	return cb(ctx, sig)
}
