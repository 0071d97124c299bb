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

package secrets

import (
	"context"
	"fmt"
	"os"
	"strings"
)

const (
	// EnvBackendPriority is the highest priority so environment overrides win.
	EnvBackendPriority = 100

	envSecretPrefix = "METAAGENT_SECRET_"
)

// EnvBackend reads secrets from METAAGENT_SECRET_<KEY> environment variables.
// Keys are upper-cased and dots/dashes/slashes become underscores, so
// "servers.github-token" is read from METAAGENT_SECRET_SERVERS_GITHUB_TOKEN.
type EnvBackend struct {
	lookup func(string) (string, bool)
}

// NewEnvBackend creates a new environment variable backend.
func NewEnvBackend() *EnvBackend {
	return &EnvBackend{lookup: os.LookupEnv}
}

// Name returns the backend identifier.
func (e *EnvBackend) Name() string {
	return "env"
}

// Get retrieves a secret from the environment.
func (e *EnvBackend) Get(ctx context.Context, key string) (string, error) {
	if value, ok := e.lookup(EnvKey(key)); ok && value != "" {
		return value, nil
	}
	return "", fmt.Errorf("%w: %s not set", ErrSecretNotFound, EnvKey(key))
}

// Available always returns true.
func (e *EnvBackend) Available() bool {
	return true
}

// Priority returns the backend priority.
func (e *EnvBackend) Priority() int {
	return EnvBackendPriority
}

// EnvKey returns the environment variable name holding the secret key.
func EnvKey(key string) string {
	r := strings.NewReplacer(".", "_", "-", "_", "/", "_")
	return envSecretPrefix + strings.ToUpper(r.Replace(key))
}
