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
	"strings"
)

// MCPErrorCode represents a category of MCP error.
type MCPErrorCode string

const (
	// ErrorCodeNotFound indicates a server or connection was not found.
	ErrorCodeNotFound MCPErrorCode = "NOT_FOUND"
	// ErrorCodeConfig indicates a configuration error.
	ErrorCodeConfig MCPErrorCode = "CONFIG"
	// ErrorCodeValidation indicates a validation error.
	ErrorCodeValidation MCPErrorCode = "VALIDATION"
	// ErrorCodeUnsupportedTransport indicates an unknown transport kind.
	ErrorCodeUnsupportedTransport MCPErrorCode = "UNSUPPORTED_TRANSPORT"
	// ErrorCodeInitialization indicates the transport or handshake failed.
	ErrorCodeInitialization MCPErrorCode = "INITIALIZATION_FAILED"
	// ErrorCodeConnectionClosed indicates the server connection closed.
	ErrorCodeConnectionClosed MCPErrorCode = "CONNECTION_CLOSED"
	// ErrorCodeTimeout indicates a timeout occurred.
	ErrorCodeTimeout MCPErrorCode = "TIMEOUT"
	// ErrorCodeManagerClosed indicates the connection manager was closed.
	ErrorCodeManagerClosed MCPErrorCode = "MANAGER_CLOSED"
	// ErrorCodeInternalError indicates an internal error.
	ErrorCodeInternalError MCPErrorCode = "INTERNAL"
)

// MCPError is an error type that includes suggestions for resolution.
type MCPError struct {
	// Code is the error category.
	Code MCPErrorCode
	// Message is the primary error message.
	Message string
	// Detail provides additional context.
	Detail string
	// Suggestions are actionable steps to resolve the error.
	Suggestions []string
	// Cause is the underlying error, if any.
	Cause error
}

// Error implements the error interface.
func (e *MCPError) Error() string {
	var sb strings.Builder

	sb.WriteString(e.Message)
	if e.Detail != "" {
		sb.WriteString(": ")
		sb.WriteString(e.Detail)
	}

	return sb.String()
}

// Verbose renders the error with its suggestions, for terminal output.
func (e *MCPError) Verbose() string {
	var sb strings.Builder

	sb.WriteString("Error: ")
	sb.WriteString(e.Message)
	sb.WriteString("\n")

	if e.Detail != "" {
		sb.WriteString("  → ")
		sb.WriteString(e.Detail)
		sb.WriteString("\n")
	}

	if len(e.Suggestions) > 0 {
		sb.WriteString("\n  Suggestions:\n")
		for _, s := range e.Suggestions {
			sb.WriteString("  - ")
			sb.WriteString(s)
			sb.WriteString("\n")
		}
	}

	return sb.String()
}

// Unwrap returns the underlying error.
func (e *MCPError) Unwrap() error {
	return e.Cause
}

// Is reports whether target is an MCPError with the same code.
func (e *MCPError) Is(target error) bool {
	t, ok := target.(*MCPError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// NewMCPError creates a new MCPError.
func NewMCPError(code MCPErrorCode, message string) *MCPError {
	return &MCPError{
		Code:    code,
		Message: message,
	}
}

// WithDetail adds detail to the error.
func (e *MCPError) WithDetail(detail string) *MCPError {
	e.Detail = detail
	return e
}

// WithSuggestions adds suggestions to the error.
func (e *MCPError) WithSuggestions(suggestions ...string) *MCPError {
	e.Suggestions = suggestions
	return e
}

// WithCause adds an underlying cause to the error.
func (e *MCPError) WithCause(cause error) *MCPError {
	e.Cause = cause
	return e
}

// ErrManagerClosed is returned by a ConnectionManager after Close.
var ErrManagerClosed = NewMCPError(ErrorCodeManagerClosed, "connection manager is closed")

// ErrNotAcquired is returned when a SharedManager is released more times
// than it was acquired.
var ErrNotAcquired = errors.New("shared manager released without a matching acquire")

// ErrServerNotFound creates an error for when a server is not configured.
func ErrServerNotFound(name string) *MCPError {
	return NewMCPError(ErrorCodeNotFound, fmt.Sprintf("MCP server '%s' not found", name)).
		WithSuggestions(
			"List configured servers: metaagent servers list",
			fmt.Sprintf("Add '%s' under servers: in mcp.yaml", name),
		)
}

// ErrServerNotConnected creates an error for disconnecting a server that has
// no running connection.
func ErrServerNotConnected(name string) *MCPError {
	return NewMCPError(ErrorCodeNotFound, fmt.Sprintf("MCP server '%s' is not connected", name))
}

// ErrInvalidServerName creates an error for an invalid server name.
func ErrInvalidServerName(name string) *MCPError {
	return NewMCPError(ErrorCodeValidation, fmt.Sprintf("Invalid server name '%s'", name)).
		WithDetail("names must start with a letter, contain only letters/numbers/hyphens/underscores, and be at most 64 characters").
		WithSuggestions(
			"Use only letters, numbers, hyphens (-), and underscores (_)",
			"Start the name with a letter",
		)
}

// ErrInvalidConfig creates an error for invalid configuration.
func ErrInvalidConfig(name, detail string) *MCPError {
	return NewMCPError(ErrorCodeConfig, fmt.Sprintf("Invalid configuration for MCP server '%s'", name)).
		WithDetail(detail).
		WithSuggestions(
			"Check the configuration syntax in mcp.yaml",
			fmt.Sprintf("Validate the server: metaagent servers check %s", name),
		)
}

// ErrUnsupportedTransport creates an error for an unknown transport kind.
func ErrUnsupportedTransport(name string, kind TransportKind) *MCPError {
	return NewMCPError(ErrorCodeUnsupportedTransport, fmt.Sprintf("MCP server '%s' uses unsupported transport '%s'", name, kind)).
		WithSuggestions("Use one of: stdio, sse, websocket, streamable-http")
}

// ErrInitialization creates an error for a server that failed to connect
// or complete the initialize handshake.
func ErrInitialization(name, detail string) *MCPError {
	return NewMCPError(ErrorCodeInitialization, fmt.Sprintf("Failed to initialize MCP server '%s'", name)).
		WithDetail(detail).
		WithSuggestions(
			"Verify the command and arguments are correct",
			"Ensure required environment variables are set",
			fmt.Sprintf("Check the server: metaagent servers check %s", name),
		)
}

// ErrConnectionClosed creates an error for when a server connection is closed.
func ErrConnectionClosed(name string) *MCPError {
	return NewMCPError(ErrorCodeConnectionClosed, fmt.Sprintf("Connection to MCP server '%s' closed", name)).
		WithSuggestions(fmt.Sprintf("Check the server: metaagent servers check %s", name))
}

// ErrTimeout creates an error for a timeout.
func ErrTimeout(operation string, d fmt.Stringer) *MCPError {
	return NewMCPError(ErrorCodeTimeout, fmt.Sprintf("Operation '%s' timed out after %s", operation, d)).
		WithSuggestions(
			"Check if the server is responding",
			"Try increasing read_timeout in mcp.yaml",
		)
}

// WrapError wraps a standard error in an MCPError if it isn't one already.
func WrapError(err error, code MCPErrorCode, message string) *MCPError {
	if mcpErr := GetMCPError(err); mcpErr != nil {
		return mcpErr
	}
	return NewMCPError(code, message).WithDetail(err.Error()).WithCause(err)
}

// GetMCPError extracts an MCPError from an error chain.
func GetMCPError(err error) *MCPError {
	var mcpErr *MCPError
	if errors.As(err, &mcpErr) {
		return mcpErr
	}
	return nil
}
