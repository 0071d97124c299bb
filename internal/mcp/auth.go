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
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/oauth2/clientcredentials"
)

// AuthType selects how credentials are turned into request headers.
type AuthType string

const (
	// AuthBearer sends a static token.
	AuthBearer AuthType = "bearer"
	// AuthJWT mints an HS256 token per connection.
	AuthJWT AuthType = "jwt"
	// AuthOAuth2 fetches a token with the client credentials grant.
	AuthOAuth2 AuthType = "oauth2"
)

// DefaultJWTTTL is the lifetime of minted tokens when TTL is unset.
const DefaultJWTTTL = 5 * time.Minute

// AuthConfig configures credentials for network transports.
// String fields may hold secret references.
type AuthConfig struct {
	Type AuthType `yaml:"type"`

	// Header defaults to Authorization.
	Header string `yaml:"header,omitempty"`

	// bearer
	Token string `yaml:"token,omitempty"`

	// jwt
	Secret   string        `yaml:"secret,omitempty"`
	Issuer   string        `yaml:"issuer,omitempty"`
	Subject  string        `yaml:"subject,omitempty"`
	Audience []string      `yaml:"audience,omitempty"`
	TTL      time.Duration `yaml:"ttl,omitempty"`

	// oauth2
	TokenURL     string   `yaml:"token_url,omitempty"`
	ClientID     string   `yaml:"client_id,omitempty"`
	ClientSecret string   `yaml:"client_secret,omitempty"`
	Scopes       []string `yaml:"scopes,omitempty"`
}

// Validate checks that the fields required by Type are present.
func (a *AuthConfig) Validate() error {
	switch a.Type {
	case AuthBearer:
		if a.Token == "" {
			return fmt.Errorf("auth: token is required for bearer auth")
		}
	case AuthJWT:
		if a.Secret == "" {
			return fmt.Errorf("auth: secret is required for jwt auth")
		}
		if a.TTL < 0 {
			return fmt.Errorf("auth: ttl must be non-negative")
		}
	case AuthOAuth2:
		if a.TokenURL == "" || a.ClientID == "" {
			return fmt.Errorf("auth: token_url and client_id are required for oauth2 auth")
		}
	default:
		return fmt.Errorf("auth: unknown type %q", a.Type)
	}
	return nil
}

// SecretExpander replaces secret references in a string.
type SecretExpander interface {
	Expand(ctx context.Context, s string) (string, error)
}

type noExpand struct{}

func (noExpand) Expand(_ context.Context, s string) (string, error) { return s, nil }

// AuthHeaders resolves auth into the headers to send with each request.
func AuthHeaders(ctx context.Context, auth *AuthConfig, secrets SecretExpander) (map[string]string, error) {
	if auth == nil {
		return nil, nil
	}
	if secrets == nil {
		secrets = noExpand{}
	}

	header := auth.Header
	if header == "" {
		header = "Authorization"
	}

	var value string
	switch auth.Type {
	case AuthBearer:
		token, err := secrets.Expand(ctx, auth.Token)
		if err != nil {
			return nil, fmt.Errorf("resolve bearer token: %w", err)
		}
		value = "Bearer " + token

	case AuthJWT:
		secret, err := secrets.Expand(ctx, auth.Secret)
		if err != nil {
			return nil, fmt.Errorf("resolve jwt secret: %w", err)
		}
		token, err := mintJWT(auth, []byte(secret), time.Now())
		if err != nil {
			return nil, err
		}
		value = "Bearer " + token

	case AuthOAuth2:
		clientSecret, err := secrets.Expand(ctx, auth.ClientSecret)
		if err != nil {
			return nil, fmt.Errorf("resolve oauth2 client secret: %w", err)
		}
		cc := clientcredentials.Config{
			ClientID:     auth.ClientID,
			ClientSecret: clientSecret,
			TokenURL:     auth.TokenURL,
			Scopes:       auth.Scopes,
		}
		tok, err := cc.Token(ctx)
		if err != nil {
			return nil, fmt.Errorf("fetch oauth2 token: %w", err)
		}
		value = tok.Type() + " " + tok.AccessToken

	default:
		return nil, fmt.Errorf("auth: unknown type %q", auth.Type)
	}

	return map[string]string{header: value}, nil
}

func mintJWT(auth *AuthConfig, secret []byte, now time.Time) (string, error) {
	ttl := auth.TTL
	if ttl == 0 {
		ttl = DefaultJWTTTL
	}
	claims := jwt.RegisteredClaims{
		ID:        uuid.NewString(),
		Issuer:    auth.Issuer,
		Subject:   auth.Subject,
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	if len(auth.Audience) > 0 {
		claims.Audience = jwt.ClaimStrings(auth.Audience)
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("sign jwt: %w", err)
	}
	return signed, nil
}
