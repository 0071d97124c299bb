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

package mcp

import (
	"context"
	"sync"
)

// SharedManager reference-counts one ConnectionManager across aggregators.
// The manager is created on the first Acquire and closed by the Release
// that drops the count to zero.
type SharedManager struct {
	mu         sync.Mutex
	newManager func() *ConnectionManager
	manager    *ConnectionManager
	refs       int
}

// NewSharedManager creates a SharedManager that builds managers with factory.
func NewSharedManager(factory func() *ConnectionManager) *SharedManager {
	return &SharedManager{newManager: factory}
}

// Acquire returns the shared manager, creating it if needed.
func (s *SharedManager) Acquire() *ConnectionManager {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.manager == nil {
		s.manager = s.newManager()
	}
	s.refs++
	return s.manager
}

// Release drops one reference. The caller that drops the last one gets
// last == true and the manager's close error.
func (s *SharedManager) Release(ctx context.Context) (last bool, err error) {
	s.mu.Lock()
	if s.refs == 0 {
		s.mu.Unlock()
		return false, ErrNotAcquired
	}
	s.refs--
	if s.refs > 0 {
		s.mu.Unlock()
		return false, nil
	}
	m := s.manager
	s.manager = nil
	s.mu.Unlock()

	return true, m.Close(ctx)
}

// Refs returns the current reference count.
func (s *SharedManager) Refs() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refs
}

// Manager returns the current manager, or nil when no reference is held.
func (s *SharedManager) Manager() *ConnectionManager {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.manager
}
