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
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateServerName(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"valid simple", "myserver", false},
		{"valid with hyphen", "my-server", false},
		{"valid with underscore", "my_server", false},
		{"valid mixed", "my-server_v2", false},
		{"empty", "", true},
		{"starts with number", "123server", true},
		{"starts with underscore", "_server", true},
		{"contains dot", "my.server", true},
		{"too long", "a" + strings.Repeat("b", 64), true},
		{"max length", "a" + strings.Repeat("b", 63), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateServerName(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateServerName(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
		})
	}
}

func TestValidateArg(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"simple arg", "value", false},
		{"path arg", "/path/to/file", false},
		{"flag arg", "--verbose", false},
		{"contains semicolon", "cmd;rm -rf", true},
		{"contains pipe", "cmd|cat", true},
		{"contains subshell", "$(rm -rf)", true},
		{"contains var expansion", "${HOME}", true},
		{"contains newline", "cmd\nrm", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateArg(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateArg(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
		})
	}
}

func TestValidateEnv(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"simple", "FOO=bar", false},
		{"empty value", "FOO=", false},
		{"secret reference", "TOKEN=${secret:github/token}", false},
		{"no equals", "FOO", true},
		{"empty key", "=bar", true},
		{"bad key", "1FOO=bar", true},
		{"subshell in value", "FOO=$(whoami)", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateEnv(tt.input)
			assert.Equal(t, tt.wantErr, err != nil, "ValidateEnv(%q) = %v", tt.input, err)
		})
	}
}

func TestServerConnectionConfigValidate(t *testing.T) {
	tests := []struct {
		name     string
		cfg      ServerConnectionConfig
		wantCode MCPErrorCode
	}{
		{
			name: "stdio ok",
			cfg:  ServerConnectionConfig{Name: "fs", Transport: TransportStdio, Command: "npx", Args: []string{"-y", "server-filesystem"}},
		},
		{
			name:     "stdio without command",
			cfg:      ServerConnectionConfig{Name: "fs", Transport: TransportStdio},
			wantCode: ErrorCodeConfig,
		},
		{
			name:     "stdio with unsafe arg",
			cfg:      ServerConnectionConfig{Name: "fs", Transport: TransportStdio, Command: "sh", Args: []string{"a;b"}},
			wantCode: ErrorCodeConfig,
		},
		{
			name: "sse ok",
			cfg:  ServerConnectionConfig{Name: "remote", Transport: TransportSSE, URL: "https://example.com/sse"},
		},
		{
			name:     "sse without url",
			cfg:      ServerConnectionConfig{Name: "remote", Transport: TransportSSE},
			wantCode: ErrorCodeConfig,
		},
		{
			name:     "websocket with http url",
			cfg:      ServerConnectionConfig{Name: "ws", Transport: TransportWebSocket, URL: "http://example.com"},
			wantCode: ErrorCodeConfig,
		},
		{
			name: "websocket ok",
			cfg:  ServerConnectionConfig{Name: "ws", Transport: TransportWebSocket, URL: "wss://example.com/mcp"},
		},
		{
			name: "streamable http ok",
			cfg:  ServerConnectionConfig{Name: "web", Transport: TransportStreamableHTTP, URL: "http://localhost:8080/mcp"},
		},
		{
			name:     "unknown transport",
			cfg:      ServerConnectionConfig{Name: "x", Transport: "carrier-pigeon", Command: "coo"},
			wantCode: ErrorCodeUnsupportedTransport,
		},
		{
			name:     "invalid name",
			cfg:      ServerConnectionConfig{Name: "1bad", Transport: TransportStdio, Command: "x"},
			wantCode: ErrorCodeValidation,
		},
		{
			name:     "negative read timeout",
			cfg:      ServerConnectionConfig{Name: "fs", Transport: TransportStdio, Command: "x", ReadTimeout: -time.Second},
			wantCode: ErrorCodeConfig,
		},
		{
			name:     "auth on stdio",
			cfg:      ServerConnectionConfig{Name: "fs", Transport: TransportStdio, Command: "x", Auth: &AuthConfig{Type: AuthBearer, Token: "t"}},
			wantCode: ErrorCodeConfig,
		},
		{
			name:     "bad filter pattern",
			cfg:      ServerConnectionConfig{Name: "fs", Transport: TransportStdio, Command: "x", Include: []string{"read_["}},
			wantCode: ErrorCodeConfig,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantCode == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			mcpErr := GetMCPError(err)
			require.NotNil(t, mcpErr)
			assert.Equal(t, tt.wantCode, mcpErr.Code)
		})
	}
}

func TestParseServersFile(t *testing.T) {
	data := []byte(`
defaults:
  read_timeout: 45s
servers:
  filesystem:
    command: npx
    args: ["-y", "@modelcontextprotocol/server-filesystem", "/tmp"]
    env:
      - GITHUB_TOKEN=${secret:github}
    exclude: ["write_*"]
  remote:
    transport: sse
    url: https://example.com/sse
    read_timeout: 5s
    headers:
      X-Team: agents
    auth:
      type: bearer
      token: ${env:REMOTE_TOKEN}
`)

	f, err := ParseServersFile(data)
	require.NoError(t, err)
	require.NoError(t, f.Validate())

	configs := f.Configs()
	require.Len(t, configs, 2)

	fs := configs["filesystem"]
	assert.Equal(t, "filesystem", fs.Name)
	assert.Equal(t, TransportStdio, fs.Transport)
	assert.Equal(t, 45*time.Second, fs.ReadTimeout)
	assert.Equal(t, []string{"write_*"}, fs.Exclude)

	remote := configs["remote"]
	assert.Equal(t, TransportSSE, remote.Transport)
	assert.Equal(t, 5*time.Second, remote.ReadTimeout)
	assert.Equal(t, "agents", remote.Headers["X-Team"])
	require.NotNil(t, remote.Auth)
	assert.Equal(t, AuthBearer, remote.Auth.Type)
}

func TestServersFileValidateJoinsErrors(t *testing.T) {
	f, err := ParseServersFile([]byte(`
servers:
  one: {}
  two:
    transport: websocket
`))
	require.NoError(t, err)

	err = f.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "'one'")
	assert.Contains(t, err.Error(), "'two'")
	assert.True(t, errors.Is(err, &MCPError{Code: ErrorCodeConfig}))
}

func TestLoadServersFileMissing(t *testing.T) {
	f, err := LoadServersFile(filepath.Join(t.TempDir(), "mcp.yaml"))
	require.NoError(t, err)
	assert.Empty(t, f.Servers)
}

func TestLoadServersFileInvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mcp.yaml")
	require.NoError(t, os.WriteFile(path, []byte("servers: [unclosed"), 0o600))

	_, err := LoadServersFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse mcp config")
}

func TestRedactEnv(t *testing.T) {
	got := RedactEnv([]string{"PATH=/usr/bin", "GITHUB_TOKEN=abc", "API_KEY=xyz", "MALFORMED"})
	assert.Equal(t, []string{"PATH=/usr/bin", "GITHUB_TOKEN=***REDACTED***", "API_KEY=***REDACTED***", "MALFORMED"}, got)
}
