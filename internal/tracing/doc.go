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

/*
Package tracing wires OpenTelemetry tracing and metrics for metaagent.

A Provider owns an SDK tracer provider, whose exporter is chosen by
config.TracingConfig, and a meter provider that exports through the
OpenTelemetry Prometheus bridge into a caller-supplied registry. The same
registry backs the watch command's /metrics endpoint.

	provider, err := tracing.NewProvider(ctx, cfg.Tracing, tracing.Options{
	    ServiceName: "metaagent",
	    Registry:    registry,
	})
	defer provider.Shutdown(ctx)

	tracer := provider.Tracer("metaagent/mcp")

When tracing is disabled the tracer is a no-op, but metrics still flow.
*/
package tracing
