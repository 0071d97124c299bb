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
	"time"

	"github.com/mark3labs/mcp-go/mcp"
)

// Capabilities is what a server advertised during initialize.
type Capabilities struct {
	Tools     bool `json:"tools"`
	Prompts   bool `json:"prompts"`
	Resources bool `json:"resources"`

	ServerName      string `json:"server_name,omitempty"`
	ServerVersion   string `json:"server_version,omitempty"`
	ProtocolVersion string `json:"protocol_version,omitempty"`
}

// ConnectionState is the lifecycle state of a ServerConnection.
type ConnectionState string

const (
	StateUnstarted    ConnectionState = "UNSTARTED"
	StateConnecting   ConnectionState = "CONNECTING"
	StateInitialized  ConnectionState = "INITIALIZED"
	StateShuttingDown ConnectionState = "SHUTTING_DOWN"
	StateClosed       ConnectionState = "CLOSED"
	StateError        ConnectionState = "ERROR"
)

// Namespaced pairs a server item with its catalog name.
type Namespaced[T any] struct {
	// Item is the tool or prompt as the server reported it.
	Item T `json:"item"`
	// ServerName owns the item.
	ServerName string `json:"server"`
	// NamespacedName is ServerName + separator + the item's own name.
	NamespacedName string `json:"name"`
}

// NamespacedTool is a tool in the aggregated catalog.
type NamespacedTool = Namespaced[mcp.Tool]

// NamespacedPrompt is a prompt in the aggregated catalog.
type NamespacedPrompt = Namespaced[mcp.Prompt]

// PromptResult is the outcome of Aggregator.GetPrompt.
type PromptResult struct {
	Description    string              `json:"description,omitempty"`
	Messages       []mcp.PromptMessage `json:"messages"`
	ServerName     string              `json:"server,omitempty"`
	PromptName     string              `json:"prompt,omitempty"`
	NamespacedName string              `json:"name"`
	IsError        bool                `json:"is_error,omitempty"`
	Error          string              `json:"error,omitempty"`
}

// ServerStatus summarizes one managed connection.
type ServerStatus struct {
	Name         string          `json:"name"`
	State        ConnectionState `json:"state"`
	Error        string          `json:"error,omitempty"`
	Uptime       time.Duration   `json:"uptime,omitempty"`
	Capabilities *Capabilities   `json:"capabilities,omitempty"`
}
