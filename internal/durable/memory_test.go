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

package durable_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ZhihaoAIRobotic/MetaAgent-sub000/internal/durable"
	"github.com/ZhihaoAIRobotic/MetaAgent-sub000/internal/durable/storetest"
)

func TestMemoryStore(t *testing.T) {
	storetest.Run(t, func(t *testing.T) durable.Store {
		return durable.NewMemoryStore()
	})
}

func TestWorkflowContext(t *testing.T) {
	_, ok := durable.WorkflowFrom(context.Background())
	assert.False(t, ok)

	ctx := durable.WithWorkflow(context.Background(), "wf-1")
	id, ok := durable.WorkflowFrom(ctx)
	assert.True(t, ok)
	assert.Equal(t, "wf-1", id)

	_, ok = durable.WorkflowFrom(durable.WithWorkflow(context.Background(), ""))
	assert.False(t, ok)

	assert.NotEqual(t, durable.NewWorkflowID(), durable.NewWorkflowID())
}
