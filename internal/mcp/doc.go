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

// Package mcp connects to Model Context Protocol servers and aggregates
// their tools and prompts into a single namespaced catalog.
//
// The package has three layers:
//
//   - ServerRegistry resolves configured servers and opens sessions over
//     stdio, sse, websocket or streamable-http.
//   - ConnectionManager keeps long-lived sessions, one lifecycle goroutine
//     per server, and replaces unhealthy connections on demand.
//   - Aggregator lists tools and prompts across servers, exposes them as
//     server_name, and routes calls back to the owning server.
//
// SharedManager lets several aggregators share one ConnectionManager. The
// manager is closed when the last aggregator releases it.
package mcp
