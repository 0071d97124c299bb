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
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounceDelay is how long the watcher waits for writes to settle.
const DefaultDebounceDelay = 200 * time.Millisecond

// ReloadFunc is called after a changed mcp.yaml has been applied to the
// registry.
type ReloadFunc func(ctx context.Context, servers map[string]ServerConnectionConfig)

// ConfigWatcherConfig configures a ConfigWatcher.
type ConfigWatcherConfig struct {
	// Path is the mcp.yaml file to watch. Required.
	Path string

	// Registry receives the reloaded configurations. Required.
	Registry *ServerRegistry

	// OnReload is optional.
	OnReload ReloadFunc

	Logger *slog.Logger

	// DebounceDelay defaults to 200ms.
	DebounceDelay time.Duration
}

// ConfigWatcher reloads mcp.yaml when it changes.
type ConfigWatcher struct {
	fsWatcher *fsnotify.Watcher
	path      string
	registry  *ServerRegistry
	onReload  ReloadFunc
	logger    *slog.Logger
	debounce  time.Duration

	// mu protects pending
	mu      sync.Mutex
	pending *time.Timer

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewConfigWatcher starts watching cfg.Path until ctx is done or Close is
// called. The parent directory is watched so that editors that replace the
// file are seen.
func NewConfigWatcher(ctx context.Context, cfg ConfigWatcherConfig) (*ConfigWatcher, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("path is required")
	}
	if cfg.Registry == nil {
		return nil, fmt.Errorf("registry is required")
	}

	path, err := filepath.Abs(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", cfg.Path, err)
	}

	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	if err := fsWatcher.Add(filepath.Dir(path)); err != nil {
		fsWatcher.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", filepath.Dir(path), err)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	debounce := cfg.DebounceDelay
	if debounce == 0 {
		debounce = DefaultDebounceDelay
	}

	wctx, cancel := context.WithCancel(ctx)
	w := &ConfigWatcher{
		fsWatcher: fsWatcher,
		path:      path,
		registry:  cfg.Registry,
		onReload:  cfg.OnReload,
		logger:    logger.With("component", "mcp-config-watcher"),
		debounce:  debounce,
		ctx:       wctx,
		cancel:    cancel,
	}

	w.wg.Add(1)
	go w.processEvents()

	return w, nil
}

func (w *ConfigWatcher) processEvents() {
	defer w.wg.Done()

	for {
		select {
		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
				w.scheduleReload()
			}

		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("file watcher error", "error", err)

		case <-w.ctx.Done():
			return
		}
	}
}

func (w *ConfigWatcher) scheduleReload() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.pending != nil {
		w.pending.Stop()
	}
	w.pending = time.AfterFunc(w.debounce, w.reload)
}

// reload keeps the previous configuration when the file is unreadable or
// invalid.
func (w *ConfigWatcher) reload() {
	if w.ctx.Err() != nil {
		return
	}

	file, err := LoadServersFile(w.path)
	if err != nil {
		w.logger.Error("failed to reload mcp config", "path", w.path, "error", err)
		return
	}
	if err := file.Validate(); err != nil {
		w.logger.Error("reloaded mcp config is invalid, keeping previous", "path", w.path, "error", err)
		return
	}

	servers := file.Configs()
	w.registry.SetConfigs(servers)
	w.logger.Info("mcp config reloaded", "path", w.path, "servers", len(servers))

	if w.onReload != nil {
		w.onReload(w.ctx, servers)
	}
}

// Close stops the watcher.
func (w *ConfigWatcher) Close() error {
	w.cancel()

	w.mu.Lock()
	if w.pending != nil {
		w.pending.Stop()
	}
	w.mu.Unlock()

	w.wg.Wait()
	return w.fsWatcher.Close()
}
