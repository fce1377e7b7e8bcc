package filtering

import (
	"fmt"
	"strings"
	"sync"

	"github.com/gobwas/glob"
)

// NameFilter handles item name filtering using glob patterns
type NameFilter interface {
	// ShouldInclude determines if an item name passes the include/exclude patterns
	// Returns (shouldInclude bool, reason string)
	ShouldInclude(name string, include, exclude []string) (bool, string)
}

// defaultNameFilter matches with gobwas/glob and keeps compiled patterns
type defaultNameFilter struct {
	mu       sync.Mutex
	compiled map[string]glob.Glob
}

var _ NameFilter = (*defaultNameFilter)(nil)

// NewDefaultNameFilter creates a new defaultNameFilter
func NewDefaultNameFilter() NameFilter {
	return &defaultNameFilter{compiled: make(map[string]glob.Glob)}
}

// CompilePattern compiles an item name pattern. Matching is case-insensitive and,
// since no separators are passed to gobwas/glob, '*' matches across '/'.
func CompilePattern(pattern string) (glob.Glob, error) {
	if pattern == "" {
		return nil, fmt.Errorf("pattern must not be empty")
	}
	g, err := glob.Compile(strings.ToLower(pattern))
	if err != nil {
		return nil, fmt.Errorf("invalid glob pattern %q: %w", pattern, err)
	}
	return g, nil
}

func (f *defaultNameFilter) match(pattern, name string) (bool, error) {
	f.mu.Lock()
	g, ok := f.compiled[pattern]
	f.mu.Unlock()

	if !ok {
		var err error
		g, err = CompilePattern(pattern)
		if err != nil {
			return false, err
		}
		f.mu.Lock()
		f.compiled[pattern] = g
		f.mu.Unlock()
	}
	return g.Match(strings.ToLower(name)), nil
}

// ShouldInclude determines if an item name passes the include/exclude patterns.
// Exclude patterns take precedence; an invalid pattern drops the item.
func (f *defaultNameFilter) ShouldInclude(name string, include, exclude []string) (bool, string) {
	for _, pattern := range exclude {
		matches, err := f.match(pattern, name)
		if err != nil {
			return false, fmt.Sprintf("invalid exclude pattern: %v", err)
		}
		if matches {
			return false, fmt.Sprintf("excluded by pattern '%s'", pattern)
		}
	}

	if len(include) == 0 {
		return true, "no include patterns"
	}

	for _, pattern := range include {
		matches, err := f.match(pattern, name)
		if err != nil {
			return false, fmt.Sprintf("invalid include pattern: %v", err)
		}
		if matches {
			return true, fmt.Sprintf("included by pattern '%s'", pattern)
		}
	}
	return false, fmt.Sprintf("no match found in include patterns %v", include)
}
