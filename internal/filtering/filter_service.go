package filtering

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/civicportal/portal-sync/internal/config"
	"github.com/civicportal/portal-sync/internal/model"
)

// FilterService applies a folder's filter rules to a container listing
type FilterService interface {
	// Apply returns the items passing the filter, in their original order.
	// A nil filter keeps every item.
	Apply(ctx context.Context, items []model.ItemRef, filter *config.FilterConfig) []model.ItemRef
}

// defaultFilterService combines a name and a kind filter
type defaultFilterService struct {
	nameFilter NameFilter
	kindFilter KindFilter
}

// NewDefaultFilterService creates a new defaultFilterService with default filter implementations
func NewDefaultFilterService() FilterService {
	return &defaultFilterService{
		nameFilter: NewDefaultNameFilter(),
		kindFilter: NewDefaultKindFilter(),
	}
}

// NewFilterService creates a new defaultFilterService with custom filter implementations
func NewFilterService(nameFilter NameFilter, kindFilter KindFilter) FilterService {
	return &defaultFilterService{
		nameFilter: nameFilter,
		kindFilter: kindFilter,
	}
}

// Apply returns the items passing both the name and the kind rules
func (s *defaultFilterService) Apply(
	ctx context.Context,
	items []model.ItemRef,
	filter *config.FilterConfig,
) []model.ItemRef {
	if filter == nil {
		return items
	}

	var nameInclude, nameExclude, kindInclude, kindExclude []string
	if filter.Names != nil {
		nameInclude = filter.Names.Include
		nameExclude = filter.Names.Exclude
	}
	if filter.Kinds != nil {
		kindInclude = filter.Kinds.Include
		kindExclude = filter.Kinds.Exclude
	}

	kept := make([]model.ItemRef, 0, len(items))
	for _, item := range items {
		included, reason := s.shouldInclude(item, nameInclude, nameExclude, kindInclude, kindExclude)
		if !included {
			slog.DebugContext(ctx, "Excluding item",
				"external_id", item.ExternalID,
				"name", item.Name,
				"kind", item.Kind,
				"reason", reason)
			continue
		}
		kept = append(kept, item)
	}

	if excluded := len(items) - len(kept); excluded > 0 {
		slog.DebugContext(ctx, "Folder filter applied",
			"listed", len(items),
			"excluded", excluded)
	}
	return kept
}

// shouldInclude requires both the name and the kind rules to pass
func (s *defaultFilterService) shouldInclude(
	item model.ItemRef,
	nameInclude, nameExclude, kindInclude, kindExclude []string,
) (bool, string) {
	if ok, reason := s.nameFilter.ShouldInclude(item.Name, nameInclude, nameExclude); !ok {
		return false, fmt.Sprintf("name filter: %s", reason)
	}
	if ok, reason := s.kindFilter.ShouldInclude(item.Kind, kindInclude, kindExclude); !ok {
		return false, fmt.Sprintf("kind filter: %s", reason)
	}
	return true, "passed all filters"
}
