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

// Package secrets resolves secret references used in MCP server
// configuration (stdio env values, HTTP headers, auth credentials).
package secrets

import (
	"context"
	"errors"
)

var (
	// ErrSecretNotFound is returned when a secret key does not exist in a backend.
	ErrSecretNotFound = errors.New("secret not found")

	// ErrBackendUnavailable is returned when a backend cannot be used in the current environment.
	ErrBackendUnavailable = errors.New("backend unavailable")
)

// Backend looks up secret values by key.
type Backend interface {
	// Name returns the backend identifier, e.g. "env" or "keychain".
	Name() string

	// Get retrieves a secret. Returns ErrSecretNotFound if not present.
	Get(ctx context.Context, key string) (string, error)

	// Available reports whether the backend is usable here.
	Available() bool

	// Priority orders backends; higher is consulted first.
	Priority() int
}
