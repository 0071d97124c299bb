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
	"net/url"
	"os"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"gopkg.in/yaml.v3"

	"github.com/ZhihaoAIRobotic/MetaAgent-sub000/internal/config"
)

// ServerNameRegex validates MCP server names.
// Names must start with a letter and contain only letters, numbers, hyphens, and underscores.
// Maximum length is 64 characters.
var ServerNameRegex = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_-]{0,63}$`)

var envKeyRegex = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// TransportKind selects how a session reaches its server.
type TransportKind string

const (
	// TransportStdio spawns the server as a subprocess.
	TransportStdio TransportKind = "stdio"
	// TransportSSE connects over HTTP server-sent events.
	TransportSSE TransportKind = "sse"
	// TransportWebSocket connects over a websocket.
	TransportWebSocket TransportKind = "websocket"
	// TransportStreamableHTTP connects over streamable HTTP.
	TransportStreamableHTTP TransportKind = "streamable-http"
)

// ServerConnectionConfig is the configuration for one MCP server.
// It is read from mcp.yaml and not modified afterwards.
type ServerConnectionConfig struct {
	// Name is the map key in mcp.yaml.
	Name string `yaml:"-"`

	// Transport defaults to stdio.
	Transport TransportKind `yaml:"transport,omitempty"`

	// Command is the executable to run for stdio servers.
	Command string `yaml:"command,omitempty"`

	// Args are command-line arguments.
	Args []string `yaml:"args,omitempty"`

	// Env are environment variables in KEY=VALUE format.
	// Values may reference secrets with ${env:NAME}, ${secret:key} or ${NAME}.
	Env []string `yaml:"env,omitempty"`

	// URL is the endpoint for network transports.
	URL string `yaml:"url,omitempty"`

	// Headers are sent with every HTTP or websocket request.
	Headers map[string]string `yaml:"headers,omitempty"`

	// ReadTimeout bounds each request to the server. Zero means no limit.
	ReadTimeout time.Duration `yaml:"read_timeout,omitempty"`

	// Auth configures credentials for network transports.
	Auth *AuthConfig `yaml:"auth,omitempty"`

	// Include keeps only tools matching one of these globs.
	Include []string `yaml:"include,omitempty"`

	// Exclude drops tools matching any of these globs.
	Exclude []string `yaml:"exclude,omitempty"`
}

// Validate checks the configuration without touching the network or the
// filesystem. A missing executable is reported when the server is connected.
func (c *ServerConnectionConfig) Validate() error {
	if err := ValidateServerName(c.Name); err != nil {
		return ErrInvalidServerName(c.Name).WithCause(err)
	}

	switch c.Transport {
	case TransportStdio:
		if c.Command == "" {
			return ErrInvalidConfig(c.Name, "command is required for stdio transport")
		}
		for i, arg := range c.Args {
			if err := ValidateArg(arg); err != nil {
				return ErrInvalidConfig(c.Name, fmt.Sprintf("args[%d]: %v", i, err))
			}
		}
		for i, env := range c.Env {
			if err := ValidateEnv(env); err != nil {
				return ErrInvalidConfig(c.Name, fmt.Sprintf("env[%d]: %v", i, err))
			}
		}
	case TransportSSE, TransportStreamableHTTP:
		if err := validateURL(c.URL, "http", "https"); err != nil {
			return ErrInvalidConfig(c.Name, err.Error())
		}
	case TransportWebSocket:
		if err := validateURL(c.URL, "ws", "wss"); err != nil {
			return ErrInvalidConfig(c.Name, err.Error())
		}
	default:
		return ErrUnsupportedTransport(c.Name, c.Transport)
	}

	if c.ReadTimeout < 0 {
		return ErrInvalidConfig(c.Name, "read_timeout must be non-negative")
	}

	if c.Auth != nil {
		if c.Transport == TransportStdio {
			return ErrInvalidConfig(c.Name, "auth is only supported for network transports")
		}
		if err := c.Auth.Validate(); err != nil {
			return ErrInvalidConfig(c.Name, err.Error())
		}
	}

	for _, p := range append(append([]string(nil), c.Include...), c.Exclude...) {
		if !doublestar.ValidatePattern(p) {
			return ErrInvalidConfig(c.Name, fmt.Sprintf("invalid tool filter pattern %q", p))
		}
	}

	return nil
}

func validateURL(raw string, schemes ...string) error {
	if raw == "" {
		return fmt.Errorf("url is required")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid url: %w", err)
	}
	for _, s := range schemes {
		if u.Scheme == s {
			if u.Host == "" {
				return fmt.Errorf("url %q has no host", raw)
			}
			return nil
		}
	}
	return fmt.Errorf("url scheme must be one of %s, got %q", strings.Join(schemes, ", "), u.Scheme)
}

// ServerDefaults are applied to servers that leave a field unset.
type ServerDefaults struct {
	ReadTimeout time.Duration `yaml:"read_timeout,omitempty"`
	Transport   TransportKind `yaml:"transport,omitempty"`
}

// ServersFile is the parsed form of mcp.yaml.
type ServersFile struct {
	Servers  map[string]*ServerConnectionConfig `yaml:"servers,omitempty"`
	Defaults ServerDefaults                     `yaml:"defaults,omitempty"`
}

// DefaultServersPath returns the mcp.yaml path in the config directory.
func DefaultServersPath() (string, error) {
	return config.MCPConfigPath()
}

// LoadServersFile reads mcp.yaml from path.
// Returns an empty file if path doesn't exist.
func LoadServersFile(path string) (*ServersFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &ServersFile{Servers: make(map[string]*ServerConnectionConfig)}, nil
		}
		return nil, fmt.Errorf("failed to read mcp config: %w", err)
	}
	return ParseServersFile(data)
}

// ParseServersFile parses mcp.yaml content and applies defaults.
func ParseServersFile(data []byte) (*ServersFile, error) {
	var f ServersFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse mcp config: %w", err)
	}
	if f.Servers == nil {
		f.Servers = make(map[string]*ServerConnectionConfig)
	}
	f.applyDefaults()
	return &f, nil
}

func (f *ServersFile) applyDefaults() {
	for name, entry := range f.Servers {
		if entry == nil {
			entry = &ServerConnectionConfig{}
			f.Servers[name] = entry
		}
		entry.Name = name
		if entry.Transport == "" {
			entry.Transport = f.Defaults.Transport
		}
		if entry.Transport == "" {
			entry.Transport = TransportStdio
		}
		if entry.ReadTimeout == 0 {
			entry.ReadTimeout = f.Defaults.ReadTimeout
		}
	}
}

// Validate validates every server and joins the failures.
func (f *ServersFile) Validate() error {
	var errs []error
	for _, name := range f.names() {
		if err := f.Servers[name].Validate(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Configs returns a copy of the server configurations keyed by name.
func (f *ServersFile) Configs() map[string]ServerConnectionConfig {
	out := make(map[string]ServerConnectionConfig, len(f.Servers))
	for name, entry := range f.Servers {
		out[name] = *entry
	}
	return out
}

func (f *ServersFile) names() []string {
	names := make([]string, 0, len(f.Servers))
	for name := range f.Servers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ValidateServerName validates an MCP server name.
func ValidateServerName(name string) error {
	if name == "" {
		return fmt.Errorf("server name is required")
	}
	if len(name) > 64 {
		return fmt.Errorf("server name exceeds 64 character limit")
	}
	if !ServerNameRegex.MatchString(name) {
		return fmt.Errorf("server name must start with a letter and contain only letters, numbers, hyphens, and underscores")
	}
	return nil
}

// shellInjectionPatterns are patterns that could indicate shell injection attempts.
var shellInjectionPatterns = []string{
	";", "&&", "||", "|", "`", "$(", "${", "\n", "\r",
}

// ValidateArg validates a command argument for shell injection.
func ValidateArg(arg string) error {
	for _, pattern := range shellInjectionPatterns {
		if strings.Contains(arg, pattern) {
			return fmt.Errorf("argument contains potentially unsafe pattern %q", pattern)
		}
	}
	return nil
}

// ValidateEnv validates an environment variable in KEY=VALUE form.
func ValidateEnv(env string) error {
	key, value, ok := strings.Cut(env, "=")
	if !ok {
		return fmt.Errorf("environment variable must be in KEY=VALUE format")
	}
	if key == "" {
		return fmt.Errorf("environment variable key is required")
	}
	if !envKeyRegex.MatchString(key) {
		return fmt.Errorf("invalid environment variable key: %s", key)
	}

	// ${...} is a secret reference, everything else is checked.
	for _, pattern := range shellInjectionPatterns {
		if pattern == "${" {
			continue
		}
		if strings.Contains(value, pattern) {
			return fmt.Errorf("environment value contains potentially unsafe pattern %q", pattern)
		}
	}
	return nil
}

// sensitiveKeyPatterns are patterns that indicate a sensitive value.
var sensitiveKeyPatterns = []string{
	"SECRET", "TOKEN", "KEY", "PASSWORD", "CREDENTIAL", "AUTH",
}

// IsSensitiveEnvKey returns true if the key appears to contain sensitive data.
func IsSensitiveEnvKey(key string) bool {
	upperKey := strings.ToUpper(key)
	for _, pattern := range sensitiveKeyPatterns {
		if strings.Contains(upperKey, pattern) {
			return true
		}
	}
	return false
}

// RedactEnv redacts sensitive values from an environment variable list.
func RedactEnv(envs []string) []string {
	result := make([]string, len(envs))
	for i, env := range envs {
		key, _, ok := strings.Cut(env, "=")
		if ok && IsSensitiveEnvKey(key) {
			result[i] = key + "=***REDACTED***"
		} else {
			result[i] = env
		}
	}
	return result
}
