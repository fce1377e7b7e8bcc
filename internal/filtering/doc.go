// Package filtering selects which listed items of a folder take part in a sync pass.
//
// A folder may carry include and exclude rules on item names and on item kinds:
//
//   - NameFilter matches item names against glob patterns
//   - KindFilter matches item kinds exactly
//   - FilterService applies both to a container listing
//
// # Name Filtering
//
// Patterns are matched case-insensitively with gobwas/glob, where '*' also
// matches across '/'. Examples:
//
//   - "~$*" matches editor lock files such as "~$budget.docx"
//   - "*.tmp" matches "upload.tmp" and "drafts/upload.tmp"
//   - "minutes-202[34]-*" matches "minutes-2023-01.pdf" but not "minutes-2022-12.pdf"
//
// # Filtering Logic
//
// Name and kind rules follow the same precedence:
//
//  1. An item matching an exclude rule is dropped
//  2. An item matching an include rule is kept
//  3. When include rules exist and none matched, the item is dropped
//  4. Otherwise the item is kept
//
// An item must pass both the name and the kind rules to be kept.
//
// Dropped items are treated as not listed: records created for them before the
// rule was added are marked deleted on the next pass.
//
// # Usage Example
//
//	service := NewDefaultFilterService()
//	kept := service.Apply(ctx, items, &config.FilterConfig{
//		Names: &config.NameFilterConfig{Exclude: []string{"~$*", "*.tmp"}},
//		Kinds: &config.KindFilterConfig{Exclude: []string{"video"}},
//	})
package filtering
