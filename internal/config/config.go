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

// Package config loads the application configuration file and resolves
// the XDG directories metaagent keeps its files in.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// ExecutionEngine selects the executor backend.
type ExecutionEngine string

const (
	// EngineLocal runs units of work in-process.
	EngineLocal ExecutionEngine = "local"
	// EngineDurable records units of work as retryable activities in the durable store.
	EngineDurable ExecutionEngine = "durable"
)

// StoreDriver selects the durable store implementation.
type StoreDriver string

const (
	// StoreMemory keeps durable state in process memory.
	StoreMemory StoreDriver = "memory"
	// StoreSQLite keeps durable state in a SQLite database file.
	StoreSQLite StoreDriver = "sqlite"
)

// TraceExporter selects where spans are sent.
type TraceExporter string

const (
	ExporterStdout   TraceExporter = "stdout"
	ExporterOTLPHTTP TraceExporter = "otlp-http"
	ExporterOTLPGRPC TraceExporter = "otlp-grpc"
)

// Config is the application configuration stored in config.yaml.
type Config struct {
	// ExecutionEngine is "local" (default) or "durable".
	ExecutionEngine ExecutionEngine `yaml:"execution_engine,omitempty"`

	// Executor tunes the executor backend.
	Executor ExecutorConfig `yaml:"executor,omitempty"`

	// ConnectionPersistence keeps server connections open across calls.
	// Defaults to true.
	ConnectionPersistence *bool `yaml:"connection_persistence,omitempty"`

	// Separator joins server names and tool names in the namespaced catalog.
	Separator string `yaml:"separator,omitempty"`

	// Tracing configures OpenTelemetry export.
	Tracing TracingConfig `yaml:"tracing,omitempty"`

	// Log configures structured logging. Environment variables take precedence.
	Log LogConfig `yaml:"log,omitempty"`
}

// ExecutorConfig tunes the executor.
type ExecutorConfig struct {
	// MaxConcurrency caps the number of units running at once. 0 means unlimited.
	MaxConcurrency int `yaml:"max_concurrency,omitempty"`

	// PoolSize is the size of the worker pool used for blocking callables.
	PoolSize int `yaml:"pool_size,omitempty"`

	// Retry is the activity retry policy for the durable engine.
	Retry RetryConfig `yaml:"retry,omitempty"`

	// Store configures the durable store.
	Store StoreConfig `yaml:"store,omitempty"`
}

// RetryConfig mirrors executor.RetryPolicy in YAML form.
type RetryConfig struct {
	MaxAttempts        int           `yaml:"max_attempts,omitempty"`
	InitialInterval    time.Duration `yaml:"initial_interval,omitempty"`
	BackoffCoefficient float64       `yaml:"backoff_coefficient,omitempty"`
	MaxInterval        time.Duration `yaml:"max_interval,omitempty"`
}

// StoreConfig configures the durable store.
type StoreConfig struct {
	Driver StoreDriver `yaml:"driver,omitempty"`
	// Path is the SQLite database file. Defaults to durable.db in the config dir.
	Path string `yaml:"path,omitempty"`
}

// TracingConfig configures OpenTelemetry tracing.
type TracingConfig struct {
	Enabled  bool              `yaml:"enabled,omitempty"`
	Exporter TraceExporter     `yaml:"exporter,omitempty"`
	Endpoint string            `yaml:"endpoint,omitempty"`
	Insecure bool              `yaml:"insecure,omitempty"`
	Headers  map[string]string `yaml:"headers,omitempty"`

	// SampleRate is the fraction of traces recorded, in (0, 1]. Defaults to 1.
	SampleRate float64 `yaml:"sample_rate,omitempty"`

	// AlwaysSampleErrors records spans flagged as errors regardless of SampleRate.
	AlwaysSampleErrors bool `yaml:"always_sample_errors,omitempty"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level,omitempty"`
	Format string `yaml:"format,omitempty"`
}

// Default returns a configuration with defaults applied.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// Load reads the configuration from path. A missing file yields the defaults.
// An empty path resolves to config.yaml in the XDG config directory.
func Load(path string) (*Config, error) {
	if path == "" {
		p, err := ConfigPath()
		if err != nil {
			return nil, fmt.Errorf("failed to get config path: %w", err)
		}
		path = p
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return &cfg, nil
}

// Persistent reports whether connection persistence is enabled.
func (c *Config) Persistent() bool {
	return c.ConnectionPersistence == nil || *c.ConnectionPersistence
}

func (c *Config) applyDefaults() {
	if c.ExecutionEngine == "" {
		c.ExecutionEngine = EngineLocal
	}
	if c.Separator == "" {
		c.Separator = "_"
	}
	if c.Executor.PoolSize == 0 {
		c.Executor.PoolSize = 16
	}
	if c.Executor.Store.Driver == "" {
		c.Executor.Store.Driver = StoreMemory
	}
	r := &c.Executor.Retry
	if r.MaxAttempts == 0 {
		r.MaxAttempts = 3
	}
	if r.InitialInterval == 0 {
		r.InitialInterval = time.Second
	}
	if r.BackoffCoefficient == 0 {
		r.BackoffCoefficient = 2
	}
	if r.MaxInterval == 0 {
		r.MaxInterval = 30 * time.Second
	}
	if c.Tracing.Exporter == "" {
		c.Tracing.Exporter = ExporterStdout
	}
	if c.Tracing.SampleRate == 0 {
		c.Tracing.SampleRate = 1
	}
}

// Validate checks enum fields and numeric bounds.
func (c *Config) Validate() error {
	switch c.ExecutionEngine {
	case EngineLocal, EngineDurable:
	default:
		return fmt.Errorf("invalid execution_engine: %s (must be 'local' or 'durable')", c.ExecutionEngine)
	}

	switch c.Executor.Store.Driver {
	case StoreMemory, StoreSQLite:
	default:
		return fmt.Errorf("invalid executor.store.driver: %s (must be 'memory' or 'sqlite')", c.Executor.Store.Driver)
	}

	switch c.Tracing.Exporter {
	case ExporterStdout, ExporterOTLPHTTP, ExporterOTLPGRPC:
	default:
		return fmt.Errorf("invalid tracing.exporter: %s", c.Tracing.Exporter)
	}
	if c.Tracing.Enabled && c.Tracing.Exporter != ExporterStdout && c.Tracing.Endpoint == "" {
		return fmt.Errorf("tracing.endpoint is required for exporter %s", c.Tracing.Exporter)
	}
	if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1 {
		return fmt.Errorf("tracing.sample_rate must be between 0 and 1")
	}

	if c.Executor.MaxConcurrency < 0 {
		return fmt.Errorf("executor.max_concurrency must be non-negative")
	}
	if c.Executor.PoolSize < 0 {
		return fmt.Errorf("executor.pool_size must be non-negative")
	}
	if c.Executor.Retry.MaxAttempts < 1 {
		return fmt.Errorf("executor.retry.max_attempts must be at least 1")
	}
	if c.Executor.Retry.BackoffCoefficient < 1 {
		return fmt.Errorf("executor.retry.backoff_coefficient must be at least 1")
	}
	return nil
}
