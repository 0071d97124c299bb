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

	"github.com/google/uuid"
)

type workflowKey struct{}

// WithWorkflow returns a context bound to the given workflow id. Durable
// activities and durable signals scheduled under it are recorded against
// that workflow.
func WithWorkflow(ctx context.Context, workflowID string) context.Context {
	return context.WithValue(ctx, workflowKey{}, workflowID)
}

// WorkflowFrom returns the workflow id bound to ctx.
func WorkflowFrom(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(workflowKey{}).(string)
	return id, ok && id != ""
}

// NewWorkflowID returns a fresh workflow id.
func NewWorkflowID() string {
	return "wf-" + uuid.NewString()
}
