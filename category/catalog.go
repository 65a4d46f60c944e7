package category

import (
	"strings"

	"github.com/google/uuid"

	"github.com/wote-dev/simplr-sub001/domain"
)

// The built-in catalog. IDs are fixed forever: persisted task references
// depend on them surviving upgrades, and the migration in Reload remaps
// anything that was ever persisted under a different ID. Slice order is
// the priority hierarchy used when grouping.
var predefined = []domain.Category{
	{ID: uuid.MustParse("c4f81d2a-6b3e-4d19-9a75-2e8f0c641b37"), Name: "Urgent", Color: "#FF3B30"},
	{ID: uuid.MustParse("7a2e9b50-1c4d-48f2-b6e8-93d05a7c12f4"), Name: "Important", Color: "#FF9500"},
	{ID: uuid.MustParse("3f6b0e8c-9d21-4c57-8b4a-e15f72d9c063"), Name: "Work", Color: "#007AFF"},
	{ID: uuid.MustParse("e91c5d74-2f8a-4b3c-a6d0-58b1f4e72c95"), Name: "Personal", Color: "#AF52DE"},
	{ID: uuid.MustParse("58d20f9b-7e46-4a81-b3c7-d4a9621e0f58"), Name: "Health", Color: "#34C759"},
	{ID: uuid.MustParse("b06e3c17-4a92-4f5d-98e2-6c70d1b5a3e9"), Name: "Learning", Color: "#5856D6"},
	{ID: uuid.MustParse("92a7f4d3-0b58-4e26-ad19-7f3c68b0e542"), Name: "Shopping", Color: "#FF2D55"},
}

const (
	priorityCustom        = 1 << 10
	priorityUncategorized = 1 << 20
)

var priorityByName = func() map[string]int {
	m := make(map[string]int, len(predefined))
	for i, c := range predefined {
		m[strings.ToLower(c.Name)] = i
	}
	return m
}()

// Predefined returns a fresh copy of the built-in catalog.
func Predefined() []domain.Category {
	out := make([]domain.Category, len(predefined))
	copy(out, predefined)
	return out
}

// Priority ranks a category for deterministic grouping: built-ins first in
// catalog order, then custom categories, then the uncategorized bucket.
// Pass nil for uncategorized.
func Priority(c *domain.Category) int {
	if c == nil {
		return priorityUncategorized
	}
	if !c.Custom {
		if rank, ok := priorityByName[strings.ToLower(c.Name)]; ok {
			return rank
		}
	}
	return priorityCustom
}

func isPredefinedName(name string) bool {
	_, ok := priorityByName[strings.ToLower(strings.TrimSpace(name))]
	return ok
}

// mergeCatalog reconciles a persisted category list with the built-in
// table. It returns the merged list plus the ID remapping for any
// predefined category that was persisted under a stale ID. Custom
// categories pass through untouched; duplicates (by ID or name) collapse
// to the first occurrence. Running the merge twice is idempotent.
func mergeCatalog(persisted []domain.Category) ([]domain.Category, map[uuid.UUID]uuid.UUID) {
	remap := make(map[uuid.UUID]uuid.UUID)
	merged := make([]domain.Category, 0, len(persisted)+len(predefined))
	seenID := make(map[uuid.UUID]struct{}, len(persisted)+len(predefined))
	seenName := make(map[string]struct{}, len(persisted)+len(predefined))

	for _, p := range predefined {
		for _, c := range persisted {
			if domain.EqualName(c.Name, p.Name) && c.ID != p.ID {
				remap[c.ID] = p.ID
			}
		}
		merged = append(merged, p)
		seenID[p.ID] = struct{}{}
		seenName[strings.ToLower(p.Name)] = struct{}{}
	}

	for _, c := range persisted {
		if isPredefinedName(c.Name) {
			// Absorbed by the canonical entry above.
			continue
		}
		if _, dup := seenID[c.ID]; dup {
			continue
		}
		key := strings.ToLower(strings.TrimSpace(c.Name))
		if _, dup := seenName[key]; dup {
			continue
		}
		// A built-in that is no longer shipped becomes custom so the user
		// can delete it.
		c.Custom = true
		merged = append(merged, c)
		seenID[c.ID] = struct{}{}
		seenName[key] = struct{}{}
	}

	return merged, remap
}
