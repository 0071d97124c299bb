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

package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/charmbracelet/huh"
	"golang.org/x/term"

	"github.com/ZhihaoAIRobotic/MetaAgent-sub000/internal/durable"
	"github.com/ZhihaoAIRobotic/MetaAgent-sub000/internal/executor"
	"github.com/ZhihaoAIRobotic/MetaAgent-sub000/internal/signal"
)

// ConfirmSignal is the signal that carries a confirmation answer.
const ConfirmSignal = "confirm"

// ErrNonInteractive is returned when a prompt is needed but there is no
// terminal to ask on.
var ErrNonInteractive = errors.New("confirmation requires an interactive terminal")

// Prompter asks the user a yes/no question.
type Prompter interface {
	Confirm(ctx context.Context, title, description string) (bool, error)
}

// formPrompter asks through a huh form on the terminal.
type formPrompter struct{}

func (formPrompter) Confirm(ctx context.Context, title, description string) (bool, error) {
	if IsNonInteractive() {
		return false, ErrNonInteractive
	}
	var ok bool
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title(title).
				Description(description).
				Affirmative("Yes").
				Negative("No").
				Value(&ok),
		),
	)
	if err := form.RunWithContext(ctx); err != nil {
		return false, err
	}
	return ok, nil
}

// IsNonInteractive reports whether prompting is impossible:
// METAAGENT_NON_INTERACTIVE=true, a CI environment, or stdin not a TTY.
func IsNonInteractive() bool {
	if os.Getenv("METAAGENT_NON_INTERACTIVE") == "true" {
		return true
	}
	if isCIEnvironment() {
		return true
	}
	return !term.IsTerminal(int(os.Stdin.Fd()))
}

func isCIEnvironment() bool {
	for _, envVar := range []string{"CI", "GITHUB_ACTIONS", "GITLAB_CI", "CIRCLECI"} {
		if v := os.Getenv(envVar); v == "true" || v == "1" {
			return true
		}
	}
	// JENKINS_HOME is set to a path
	return os.Getenv("JENKINS_HOME") != ""
}

// Confirm asks a yes/no question and delivers the answer as a signal. The
// waiting side runs on the executor so the durable engine records the
// decision as an activity of a fresh workflow.
func (r *Runtime) Confirm(ctx context.Context, title, description string) (bool, error) {
	a, err := r.App(ctx)
	if err != nil {
		return false, err
	}
	ctx = durable.WithWorkflow(ctx, durable.NewWorkflowID())

	results, err := a.Executor.ExecuteStreaming(ctx, executor.Go(func(ctx context.Context) (any, error) {
		return a.Executor.WaitForSignal(ctx, ConfirmSignal, signal.WithDescription(title))
	}))
	if err != nil {
		return false, err
	}

	// A local signal sent before the waiter registers is dropped.
	early, err := awaitWaiter(ctx, a.Signals, results)
	if err != nil {
		return false, err
	}
	if early != nil {
		if early.Err != nil {
			return false, early.Err
		}
		return false, errors.New("confirmation waiter exited without an answer")
	}

	answer, askErr := r.prompter().Confirm(ctx, title, description)
	if err := a.Executor.Signal(ctx, signal.Signal{Name: ConfirmSignal, Payload: answer && askErr == nil}); err != nil {
		return false, fmt.Errorf("deliver confirmation: %w", err)
	}

	res := <-results
	if askErr != nil {
		return false, askErr
	}
	if res.Err != nil {
		return false, res.Err
	}
	ok, _ := res.Value.(bool)
	return ok, nil
}

// awaitWaiter blocks until a confirmation waiter is registered. If the
// waiting task finishes first its result is returned instead.
func awaitWaiter(ctx context.Context, signals signal.Handler, results <-chan executor.Result) (*executor.Result, error) {
	ticker := time.NewTicker(5 * time.Millisecond)
	defer ticker.Stop()
	for signals.Pending(ConfirmSignal) == 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case res, ok := <-results:
			if !ok {
				return nil, errors.New("confirmation waiter exited")
			}
			return &res, nil
		case <-ticker.C:
		}
	}
	return nil, nil
}
