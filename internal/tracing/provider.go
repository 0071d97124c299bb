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

package tracing

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	"github.com/ZhihaoAIRobotic/MetaAgent-sub000/internal/config"
)

// Options carries the process-level details a Provider needs beyond config.
type Options struct {
	ServiceName    string
	ServiceVersion string

	// Registry receives exported metrics. A fresh registry is created if nil.
	Registry *prometheus.Registry

	// Writer is where the stdout exporter writes. Defaults to io.Discard.
	Writer io.Writer
}

// Provider owns the tracer and meter providers.
type Provider struct {
	tracerProvider trace.TracerProvider
	sdkTracer      *sdktrace.TracerProvider
	meterProvider  *sdkmetric.MeterProvider
	registry       *prometheus.Registry
}

// NewProvider builds a Provider from cfg.
func NewProvider(ctx context.Context, cfg config.TracingConfig, opts Options) (*Provider, error) {
	if opts.ServiceName == "" {
		opts.ServiceName = "metaagent"
	}
	if opts.Registry == nil {
		opts.Registry = prometheus.NewRegistry()
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			"", // empty schema URL avoids a conflict with the default resource
			semconv.ServiceName(opts.ServiceName),
			semconv.ServiceVersion(opts.ServiceVersion),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	promExporter, err := otelprom.New(otelprom.WithRegisterer(opts.Registry))
	if err != nil {
		return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(promExporter),
	)

	p := &Provider{
		tracerProvider: tracenoop.NewTracerProvider(),
		meterProvider:  mp,
		registry:       opts.Registry,
	}
	if !cfg.Enabled {
		return p, nil
	}

	exporter, err := NewExporter(ctx, cfg, opts.Writer)
	if err != nil {
		_ = mp.Shutdown(ctx)
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithSampler(NewSampler(SamplerConfig{
			Rate:               cfg.SampleRate,
			AlwaysSampleErrors: cfg.AlwaysSampleErrors,
		})),
		sdktrace.WithBatcher(exporter),
	)
	p.sdkTracer = tp
	p.tracerProvider = tp
	return p, nil
}

// Tracer returns a tracer for the given instrumentation scope.
func (p *Provider) Tracer(name string) trace.Tracer {
	return p.tracerProvider.Tracer(name)
}

// MeterProvider returns the meter provider backed by the Prometheus registry.
func (p *Provider) MeterProvider() metric.MeterProvider {
	return p.meterProvider
}

// Registry returns the Prometheus registry metrics are exported into.
func (p *Provider) Registry() *prometheus.Registry {
	return p.registry
}

// MetricsHandler serves the registry in the Prometheus text format.
func (p *Provider) MetricsHandler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}

// ForceFlush exports pending spans and metrics synchronously.
func (p *Provider) ForceFlush(ctx context.Context) error {
	var errs []error
	if p.sdkTracer != nil {
		errs = append(errs, p.sdkTracer.ForceFlush(ctx))
	}
	errs = append(errs, p.meterProvider.ForceFlush(ctx))
	return errors.Join(errs...)
}

// Shutdown flushes pending spans and releases exporters.
func (p *Provider) Shutdown(ctx context.Context) error {
	var errs []error
	if p.sdkTracer != nil {
		errs = append(errs, p.sdkTracer.Shutdown(ctx))
	}
	errs = append(errs, p.meterProvider.Shutdown(ctx))
	return errors.Join(errs...)
}
