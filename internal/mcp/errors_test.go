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
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMCPErrorIsByCode(t *testing.T) {
	err := fmt.Errorf("load: %w", ErrServerNotFound("fetch"))

	assert.True(t, errors.Is(err, &MCPError{Code: ErrorCodeNotFound}))
	assert.False(t, errors.Is(err, &MCPError{Code: ErrorCodeConfig}))
	assert.True(t, errors.Is(ErrManagerClosed, ErrManagerClosed))
}

func TestMCPErrorUnwrap(t *testing.T) {
	cause := errors.New("exec: not found")
	err := ErrInitialization("bad", cause.Error()).WithCause(cause)

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "Failed to initialize MCP server 'bad': exec: not found", err.Error())
	assert.Contains(t, err.Verbose(), "metaagent servers check bad")
}

func TestGetMCPError(t *testing.T) {
	wrapped := fmt.Errorf("outer: %w", ErrTimeout("initialize", 30*time.Second))
	got := GetMCPError(wrapped)
	require.NotNil(t, got)
	assert.Equal(t, ErrorCodeTimeout, got.Code)

	assert.Nil(t, GetMCPError(errors.New("plain")))
}

func TestWrapError(t *testing.T) {
	orig := ErrServerNotFound("x")
	assert.Same(t, orig, WrapError(orig, ErrorCodeInternalError, "ignored"))

	plain := errors.New("disk full")
	wrapped := WrapError(plain, ErrorCodeInternalError, "save failed")
	assert.Equal(t, ErrorCodeInternalError, wrapped.Code)
	assert.ErrorIs(t, wrapped, plain)
}
