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

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	"github.com/mark3labs/mcp-go/mcp"
)

// Connector opens sessions for resolved server configurations.
type Connector interface {
	Connect(ctx context.Context, cfg ServerConnectionConfig) (Session, error)
}

// DefaultConnector connects with mcp-go transports.
type DefaultConnector struct {
	// ClientInfo is sent during initialize.
	ClientInfo mcp.Implementation
}

// Connect starts the transport for cfg. For stdio servers ctx bounds the
// lifetime of the subprocess.
func (c DefaultConnector) Connect(ctx context.Context, cfg ServerConnectionConfig) (Session, error) {
	t, err := newTransport(cfg)
	if err != nil {
		return nil, err
	}

	mcpClient, err := startClient(ctx, t)
	if err != nil {
		return nil, fmt.Errorf("failed to start %s transport: %w", cfg.Transport, err)
	}

	return NewClientSession(mcpClient, cfg.ReadTimeout, c.ClientInfo), nil
}

// startClient starts a client over t. A transport that fails to start is
// closed before returning.
func startClient(ctx context.Context, t transport.Interface) (*client.Client, error) {
	mcpClient := client.NewClient(t)
	if err := mcpClient.Start(ctx); err != nil {
		_ = mcpClient.Close()
		return nil, err
	}
	return mcpClient, nil
}

func newTransport(cfg ServerConnectionConfig) (transport.Interface, error) {
	switch cfg.Transport {
	case TransportStdio:
		return transport.NewStdio(cfg.Command, cfg.Env, cfg.Args...), nil
	case TransportSSE:
		t, err := transport.NewSSE(cfg.URL, transport.WithHeaders(cfg.Headers))
		if err != nil {
			return nil, fmt.Errorf("failed to create sse transport: %w", err)
		}
		return t, nil
	case TransportStreamableHTTP:
		t, err := transport.NewStreamableHTTP(cfg.URL, transport.WithHTTPHeaders(cfg.Headers))
		if err != nil {
			return nil, fmt.Errorf("failed to create streamable-http transport: %w", err)
		}
		return t, nil
	case TransportWebSocket:
		return NewWebSocket(cfg.URL, cfg.Headers), nil
	default:
		return nil, ErrUnsupportedTransport(cfg.Name, cfg.Transport)
	}
}
