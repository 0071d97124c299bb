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
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mapExpander map[string]string

func (m mapExpander) Expand(_ context.Context, s string) (string, error) {
	if v, ok := m[s]; ok {
		return v, nil
	}
	return s, nil
}

func TestAuthHeadersNil(t *testing.T) {
	h, err := AuthHeaders(context.Background(), nil, nil)
	require.NoError(t, err)
	assert.Nil(t, h)
}

func TestAuthHeadersBearer(t *testing.T) {
	auth := &AuthConfig{Type: AuthBearer, Token: "${env:TOKEN}"}
	h, err := AuthHeaders(context.Background(), auth, mapExpander{"${env:TOKEN}": "s3cret"})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"Authorization": "Bearer s3cret"}, h)
}

func TestAuthHeadersCustomHeader(t *testing.T) {
	auth := &AuthConfig{Type: AuthBearer, Token: "abc", Header: "X-Api-Key"}
	h, err := AuthHeaders(context.Background(), auth, nil)
	require.NoError(t, err)
	assert.Equal(t, "Bearer abc", h["X-Api-Key"])
}

func TestAuthHeadersJWT(t *testing.T) {
	auth := &AuthConfig{
		Type:     AuthJWT,
		Secret:   "shared",
		Issuer:   "metaagent",
		Subject:  "agent-1",
		Audience: []string{"tools"},
		TTL:      time.Minute,
	}

	h, err := AuthHeaders(context.Background(), auth, nil)
	require.NoError(t, err)

	raw, ok := strings.CutPrefix(h["Authorization"], "Bearer ")
	require.True(t, ok)

	claims := &jwt.RegisteredClaims{}
	tok, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return []byte("shared"), nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	require.NoError(t, err)
	require.True(t, tok.Valid)

	assert.Equal(t, "metaagent", claims.Issuer)
	assert.Equal(t, "agent-1", claims.Subject)
	assert.Equal(t, jwt.ClaimStrings{"tools"}, claims.Audience)
	assert.NotEmpty(t, claims.ID)
	assert.WithinDuration(t, time.Now().Add(time.Minute), claims.ExpiresAt.Time, 5*time.Second)
}

func TestAuthHeadersOAuth2(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		if r.Form.Get("grant_type") != "client_credentials" {
			http.Error(w, "bad grant", http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": "tok-123",
			"token_type":   "bearer",
			"expires_in":   3600,
		})
	}))
	defer srv.Close()

	auth := &AuthConfig{
		Type:         AuthOAuth2,
		TokenURL:     srv.URL,
		ClientID:     "client",
		ClientSecret: "${secret:oauth}",
		Scopes:       []string{"tools.read"},
	}
	h, err := AuthHeaders(context.Background(), auth, mapExpander{"${secret:oauth}": "pw"})
	require.NoError(t, err)
	assert.Equal(t, "Bearer tok-123", h["Authorization"])
}

func TestAuthConfigValidate(t *testing.T) {
	assert.NoError(t, (&AuthConfig{Type: AuthBearer, Token: "x"}).Validate())
	assert.Error(t, (&AuthConfig{Type: AuthBearer}).Validate())
	assert.Error(t, (&AuthConfig{Type: AuthJWT}).Validate())
	assert.Error(t, (&AuthConfig{Type: AuthOAuth2, ClientID: "c"}).Validate())
	assert.Error(t, (&AuthConfig{Type: "basic"}).Validate())
}
