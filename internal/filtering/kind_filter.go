package filtering

import (
	"fmt"
	"slices"

	"github.com/civicportal/portal-sync/internal/model"
)

// KindFilter handles item kind filtering using exact matching
type KindFilter interface {
	// ShouldInclude determines if an item of the given kind passes the include/exclude lists
	// Returns (shouldInclude bool, reason string)
	ShouldInclude(kind model.Kind, include, exclude []string) (bool, string)
}

// defaultKindFilter implements KindFilter
type defaultKindFilter struct{}

var _ KindFilter = defaultKindFilter{}

// NewDefaultKindFilter creates a new defaultKindFilter
func NewDefaultKindFilter() KindFilter {
	return defaultKindFilter{}
}

// ShouldInclude determines if an item of the given kind passes the include/exclude lists
func (defaultKindFilter) ShouldInclude(kind model.Kind, include, exclude []string) (bool, string) {
	if slices.Contains(exclude, string(kind)) {
		return false, fmt.Sprintf("excluded kind '%s'", kind)
	}
	if len(include) == 0 {
		return true, "no include kinds"
	}
	if slices.Contains(include, string(kind)) {
		return true, fmt.Sprintf("included kind '%s'", kind)
	}
	return false, fmt.Sprintf("kind '%s' not in include list %v", kind, include)
}
