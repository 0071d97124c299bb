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

package executor

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

const meterName = "metaagent/executor"

// metrics records task outcomes through an OpenTelemetry meter.
type metrics struct {
	tasksTotal   metric.Int64Counter
	taskDuration metric.Float64Histogram
	replaysTotal metric.Int64Counter
}

func newMetrics(provider metric.MeterProvider) (*metrics, error) {
	if provider == nil {
		provider = noop.NewMeterProvider()
	}
	meter := provider.Meter(meterName)

	m := &metrics{}
	var err error

	m.tasksTotal, err = meter.Int64Counter(
		"metaagent_executor_tasks_total",
		metric.WithDescription("Total number of executor tasks by kind and outcome"),
		metric.WithUnit("{task}"),
	)
	if err != nil {
		return nil, err
	}

	m.taskDuration, err = meter.Float64Histogram(
		"metaagent_executor_task_duration_seconds",
		metric.WithDescription("Executor task duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	m.replaysTotal, err = meter.Int64Counter(
		"metaagent_executor_activity_replays_total",
		metric.WithDescription("Durable activities served from the store instead of re-running"),
		metric.WithUnit("{activity}"),
	)
	if err != nil {
		return nil, err
	}

	return m, nil
}

func (m *metrics) recordTask(ctx context.Context, kind TaskKind, err error, d time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String("kind", kind.String()),
		attribute.String("outcome", outcome(err)),
	)
	m.tasksTotal.Add(ctx, 1, attrs)
	m.taskDuration.Record(ctx, d.Seconds(), attrs)
}

func (m *metrics) recordReplay(ctx context.Context) {
	m.replaysTotal.Add(ctx, 1)
}

func outcome(err error) string {
	var panicErr *TaskPanicError
	switch {
	case err == nil:
		return "success"
	case errors.As(err, &panicErr):
		return "panic"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	default:
		return "error"
	}
}
