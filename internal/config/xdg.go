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

package config

import (
	"os"
	"path/filepath"
)

// appDirName is the directory name used under the XDG config home.
const appDirName = "metaagent"

// ConfigDir returns the XDG config directory for metaagent, creating it
// if needed. XDG_CONFIG_HOME is honored; otherwise ~/.config is used on
// every platform, macOS included.
func ConfigDir() (string, error) {
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		base = filepath.Join(home, ".config")
	}

	dir := filepath.Join(base, appDirName)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return "", err
	}
	return dir, nil
}

// ConfigPath returns the full path to the application config file.
func ConfigPath() (string, error) {
	return pathInConfigDir("config.yaml")
}

// MCPConfigPath returns the full path to the MCP server config file.
func MCPConfigPath() (string, error) {
	return pathInConfigDir("mcp.yaml")
}

// DataPath returns a path for runtime data (e.g. the durable store) inside
// the config directory.
func DataPath(name string) (string, error) {
	return pathInConfigDir(name)
}

func pathInConfigDir(name string) (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, name), nil
}
