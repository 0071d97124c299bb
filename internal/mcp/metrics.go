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

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics records connection and tool call metrics. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	connectionAttempts *prometheus.CounterVec
	activeConnections  prometheus.Gauge
	evictions          *prometheus.CounterVec
	toolCalls          *prometheus.CounterVec
	toolCallDuration   *prometheus.HistogramVec
}

// NewMetrics registers the mcp metrics on reg. A nil reg creates
// unregistered collectors.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		connectionAttempts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "metaagent",
			Subsystem: "mcp",
			Name:      "connection_attempts_total",
			Help:      "Connection attempts by server and outcome.",
		}, []string{"server", "outcome"}),
		activeConnections: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "metaagent",
			Subsystem: "mcp",
			Name:      "active_connections",
			Help:      "Currently initialized server connections.",
		}),
		evictions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "metaagent",
			Subsystem: "mcp",
			Name:      "evictions_total",
			Help:      "Unhealthy connections replaced, by server.",
		}, []string{"server"}),
		toolCalls: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "metaagent",
			Subsystem: "mcp",
			Name:      "tool_calls_total",
			Help:      "Tool calls by server and outcome.",
		}, []string{"server", "outcome"}),
		toolCallDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "metaagent",
			Subsystem: "mcp",
			Name:      "tool_call_duration_seconds",
			Help:      "Tool call latency by server.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"server"}),
	}
}

func (m *Metrics) connectionAttempt(server, outcome string) {
	if m == nil {
		return
	}
	m.connectionAttempts.WithLabelValues(server, outcome).Inc()
}

func (m *Metrics) connectionOpened() {
	if m == nil {
		return
	}
	m.activeConnections.Inc()
}

func (m *Metrics) connectionClosed() {
	if m == nil {
		return
	}
	m.activeConnections.Dec()
}

func (m *Metrics) eviction(server string) {
	if m == nil {
		return
	}
	m.evictions.WithLabelValues(server).Inc()
}

func (m *Metrics) toolCall(server, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.toolCalls.WithLabelValues(server, outcome).Inc()
	m.toolCallDuration.WithLabelValues(server).Observe(d.Seconds())
}
