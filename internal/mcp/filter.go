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
	"fmt"

	"github.com/bmatcuk/doublestar/v4"
)

// ToolFilter keeps tools whose names match the include globs and none of the
// exclude globs. An empty include list keeps everything.
type ToolFilter struct {
	include []string
	exclude []string
}

// NewToolFilter validates the patterns and builds a filter.
func NewToolFilter(include, exclude []string) (*ToolFilter, error) {
	for _, p := range append(append([]string(nil), include...), exclude...) {
		if !doublestar.ValidatePattern(p) {
			return nil, fmt.Errorf("invalid tool filter pattern %q", p)
		}
	}
	return &ToolFilter{include: include, exclude: exclude}, nil
}

// Allow reports whether the tool name passes the filter.
func (f *ToolFilter) Allow(name string) bool {
	if f == nil {
		return true
	}
	if len(f.include) > 0 && !matchAny(f.include, name) {
		return false
	}
	return !matchAny(f.exclude, name)
}

func matchAny(patterns []string, name string) bool {
	for _, p := range patterns {
		if ok, _ := doublestar.Match(p, name); ok {
			return true
		}
	}
	return false
}
