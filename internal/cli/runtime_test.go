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

package cli_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZhihaoAIRobotic/MetaAgent-sub000/internal/cli/clitest"
)

func TestConfirm(t *testing.T) {
	engines := map[string]string{
		"local":   "",
		"durable": "execution_engine: durable\n",
	}

	for name, configYAML := range engines {
		t.Run(name, func(t *testing.T) {
			for _, answer := range []bool{true, false} {
				h := clitest.New(t, configYAML, "")
				prompter := &clitest.Prompter{Answer: answer}
				h.Runtime.Prompter = prompter

				ok, err := h.Runtime.Confirm(context.Background(), "Call tool fetch_fetch?", "No arguments.")
				require.NoError(t, err)
				assert.Equal(t, answer, ok)
				assert.Equal(t, []string{"Call tool fetch_fetch?"}, prompter.Asked)

				a, err := h.Runtime.App(context.Background())
				require.NoError(t, err)
				assert.Zero(t, a.Signals.Pending("confirm"), "waiter is released")
			}
		})
	}
}

func TestConfirm_PromptError(t *testing.T) {
	h := clitest.New(t, "", "")
	boom := errors.New("terminal closed")
	h.Runtime.Prompter = &clitest.Prompter{Err: boom}

	ok, err := h.Runtime.Confirm(context.Background(), "Proceed?", "")
	assert.False(t, ok)
	assert.ErrorIs(t, err, boom)
}

func TestOpenAggregator_UnknownServer(t *testing.T) {
	h := clitest.New(t, "", "servers:\n  fetch:\n    command: fetch-server\n")

	_, err := h.Runtime.OpenAggregator(context.Background(), []string{"ghost"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ghost")
}

func TestApp_BuiltOnce(t *testing.T) {
	h := clitest.New(t, "", "")
	first, err := h.Runtime.App(context.Background())
	require.NoError(t, err)
	second, err := h.Runtime.App(context.Background())
	require.NoError(t, err)
	assert.Same(t, first, second)
}
