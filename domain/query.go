package domain

import "github.com/google/uuid"

// FilterOption narrows a task query by completion state.
type FilterOption string

const (
	FilterAll       FilterOption = "all"
	FilterPending   FilterOption = "pending"
	FilterCompleted FilterOption = "completed"
	FilterOverdue   FilterOption = "overdue"
)

// SortOption orders query results. SortCreated (ascending creation time)
// is the canonical fallback when the caller requests nothing.
type SortOption string

const (
	SortCreated SortOption = "created"
	SortDueDate SortOption = "dueDate"
	SortTitle   SortOption = "title"
)

// Query selects tasks for presentation. The zero value means everything:
// all categories, no search, any completion state, canonical order.
type Query struct {
	// CategoryID filters to one category. Nil means all categories, not
	// "uncategorized"; uncategorized tasks are only reachable by grouping.
	CategoryID *uuid.UUID
	// Search is matched case-insensitively against title and description.
	// Text shorter than the store's minimum length counts as no search.
	Search string
	Filter FilterOption
	Sort   SortOption
}
