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
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"
)

type staticBackend struct {
	name     string
	priority int
	values   map[string]string
	err      error
}

func (s *staticBackend) Name() string { return s.name }
func (s *staticBackend) Available() bool { return true }
func (s *staticBackend) Priority() int { return s.priority }
func (s *staticBackend) Get(_ context.Context, key string) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	if v, ok := s.values[key]; ok {
		return v, nil
	}
	return "", ErrSecretNotFound
}

func TestResolver_PriorityOrder(t *testing.T) {
	low := &staticBackend{name: "low", priority: 1, values: map[string]string{"token": "low"}}
	high := &staticBackend{name: "high", priority: 10, values: map[string]string{"token": "high"}}

	r := NewResolver(low, high)
	v, err := r.Get(context.Background(), "token")
	require.NoError(t, err)
	assert.Equal(t, "high", v)
}

func TestResolver_NotFound(t *testing.T) {
	r := NewResolver(&staticBackend{name: "a", values: map[string]string{}})
	_, err := r.Get(context.Background(), "missing")
	assert.True(t, errors.Is(err, ErrSecretNotFound))
}

func TestResolver_BackendErrorSurfaces(t *testing.T) {
	boom := errors.New("boom")
	r := NewResolver(&staticBackend{name: "a", err: boom})
	_, err := r.Get(context.Background(), "x")
	assert.ErrorIs(t, err, boom)
}

func TestResolver_Expand(t *testing.T) {
	r := NewResolver(&staticBackend{name: "s", values: map[string]string{"gh.token": "abc123"}})
	r.getenv = func(k string) string {
		if k == "HOME_DIR" {
			return "/home/me"
		}
		return ""
	}

	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "plain", want: "plain"},
		{in: "Bearer ${secret:gh.token}", want: "Bearer abc123"},
		{in: "${HOME_DIR}/data", want: "/home/me/data"},
		{in: "${env:HOME_DIR}", want: "/home/me"},
		{in: "${UNSET_VAR}", want: ""},
		{in: "${secret:nope}", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := r.Expand(context.Background(), tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrSecretNotFound)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEnvBackend(t *testing.T) {
	t.Setenv("METAAGENT_SECRET_SERVERS_GITHUB_TOKEN", "ghp_x")

	b := NewEnvBackend()
	v, err := b.Get(context.Background(), "servers.github-token")
	require.NoError(t, err)
	assert.Equal(t, "ghp_x", v)

	_, err = b.Get(context.Background(), "absent")
	assert.ErrorIs(t, err, ErrSecretNotFound)
}

func TestKeychainBackend_WithMockKeyring(t *testing.T) {
	keyring.MockInit()

	b := NewKeychainBackend()
	require.True(t, b.Available())

	require.NoError(t, b.Set("api", "s3cret"))
	v, err := b.Get(context.Background(), "api")
	require.NoError(t, err)
	assert.Equal(t, "s3cret", v)

	_, err = b.Get(context.Background(), "other")
	assert.ErrorIs(t, err, ErrSecretNotFound)
}
