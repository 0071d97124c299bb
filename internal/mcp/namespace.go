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
	"log/slog"
	"maps"
	"slices"
	"strings"
	"sync"
)

// DefaultSeparator joins server names and item names.
const DefaultSeparator = "_"

// catalog indexes one kind of server item by namespaced name and by server.
type catalog[T any] struct {
	kind   string
	nameOf func(T) string

	mu       sync.RWMutex
	byName   map[string]Namespaced[T]
	byServer map[string]map[string]Namespaced[T]
}

func newCatalog[T any](kind string, nameOf func(T) string) *catalog[T] {
	return &catalog[T]{
		kind:     kind,
		nameOf:   nameOf,
		byName:   make(map[string]Namespaced[T]),
		byServer: make(map[string]map[string]Namespaced[T]),
	}
}

// replace swaps the entries of one server. When a namespaced name is
// claimed by two servers the longer server name owns it, matching prefix
// routing, and ties go to the lexically smaller name.
func (c *catalog[T]) replace(server, sep string, items []T, logger *slog.Logger) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, e := range c.byServer[server] {
		delete(c.byName, e.NamespacedName)
	}

	local := make(map[string]Namespaced[T], len(items))
	for _, item := range items {
		name := c.nameOf(item)
		if _, dup := local[name]; dup {
			logger.Warn("duplicate "+c.kind+" name from server", "server", server, c.kind, name)
			continue
		}
		nn := server + sep + name
		if existing, ok := c.byName[nn]; ok {
			if !ownsBefore(server, existing.ServerName) {
				logger.Warn("namespaced "+c.kind+" name collision, dropping entry",
					"name", nn, "server", server, "owner", existing.ServerName)
				continue
			}
			logger.Warn("namespaced "+c.kind+" name collision, dropping entry",
				"name", nn, "server", existing.ServerName, "owner", server)
			delete(c.byServer[existing.ServerName], c.nameOf(existing.Item))
		}
		e := Namespaced[T]{Item: item, ServerName: server, NamespacedName: nn}
		local[name] = e
		c.byName[nn] = e
	}
	c.byServer[server] = local
	return len(local)
}

// swap replaces the contents of c with those of next.
func (c *catalog[T]) swap(next *catalog[T]) {
	next.mu.RLock()
	byName, byServer := next.byName, next.byServer
	next.mu.RUnlock()

	c.mu.Lock()
	c.byName = byName
	c.byServer = byServer
	c.mu.Unlock()
}

// ownsBefore reports whether server s takes precedence over t for a shared
// namespaced name.
func ownsBefore(s, t string) bool {
	if len(s) != len(t) {
		return len(s) > len(t)
	}
	return s < t
}

// list returns the entries of server, or all entries when server is empty,
// sorted by namespaced name.
func (c *catalog[T]) list(server string) []Namespaced[T] {
	c.mu.RLock()
	var out []Namespaced[T]
	if server == "" {
		out = slices.Collect(maps.Values(c.byName))
	} else {
		out = slices.Collect(maps.Values(c.byServer[server]))
	}
	c.mu.RUnlock()

	slices.SortFunc(out, func(a, b Namespaced[T]) int {
		return strings.Compare(a.NamespacedName, b.NamespacedName)
	})
	return out
}

// resolve maps a catalog name to its server and the server's own name for it.
//
// An exact namespaced hit wins. Otherwise the longest server name followed by
// sep is taken as the prefix. Otherwise servers are searched in sorted order
// for an item with that local name.
func (c *catalog[T]) resolve(name, sep string, servers []string) (server, local string, ok bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if e, ok := c.byName[name]; ok {
		return e.ServerName, c.nameOf(e.Item), true
	}

	if server, local, ok := splitServerPrefix(name, sep, servers); ok {
		return server, local, true
	}

	for _, s := range slices.Sorted(slices.Values(servers)) {
		if _, ok := c.byServer[s][name]; ok {
			return s, name, true
		}
	}
	return "", "", false
}

func splitServerPrefix(name, sep string, servers []string) (string, string, bool) {
	best := ""
	for _, s := range servers {
		prefix := s + sep
		if len(s) > len(best) && len(name) > len(prefix) && strings.HasPrefix(name, prefix) {
			best = s
		}
	}
	if best == "" {
		return "", "", false
	}
	return best, name[len(best)+len(sep):], true
}
