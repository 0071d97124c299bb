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

package mcp_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ZhihaoAIRobotic/MetaAgent-sub000/internal/mcp"
	mcptesting "github.com/ZhihaoAIRobotic/MetaAgent-sub000/internal/mcp/testing"
)

// TestSharedManagerExactlyOneLastRelease releases concurrently and checks
// that exactly one caller sees the count reach zero.
func TestSharedManagerExactlyOneLastRelease(t *testing.T) {
	for range 20 {
		shared, _ := newShared(t, mcptesting.NewFakeConnector())

		const holders = 32
		for range holders {
			shared.Acquire()
		}

		var (
			lasts     atomic.Int32
			underflow atomic.Int32
			wg        sync.WaitGroup
			start     = make(chan struct{})
		)
		// Two extra releasers must be rejected rather than driving the count negative.
		for range holders + 2 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				<-start
				last, err := shared.Release(context.Background())
				if err != nil {
					assert.ErrorIs(t, err, mcp.ErrNotAcquired)
					underflow.Add(1)
				}
				if last {
					lasts.Add(1)
				}
			}()
		}
		close(start)
		wg.Wait()

		assert.Equal(t, int32(1), lasts.Load())
		assert.Equal(t, int32(2), underflow.Load())
		assert.Equal(t, 0, shared.Refs())
		assert.Nil(t, shared.Manager())
	}
}

func TestSharedManagerConcurrentAcquireRelease(t *testing.T) {
	shared, _ := newShared(t, mcptesting.NewFakeConnector())

	var (
		lasts atomic.Int32
		wg    sync.WaitGroup
	)
	for range 64 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m := shared.Acquire()
			_ = m.Status()
			last, err := shared.Release(context.Background())
			assert.NoError(t, err)
			if last {
				lasts.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.GreaterOrEqual(t, lasts.Load(), int32(1))
	assert.Equal(t, 0, shared.Refs())
	assert.Nil(t, shared.Manager())
}
