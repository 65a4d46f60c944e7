package domain

import (
	"errors"
	"strings"

	"github.com/google/uuid"
)

var (
	// ErrInvalidCategoryName rejects empty or whitespace-only names.
	ErrInvalidCategoryName = errors.New("category name must not be empty")
	// ErrDuplicateCategoryName rejects names already taken, ignoring case.
	ErrDuplicateCategoryName = errors.New("category name already exists")
	// ErrPredefinedCategory guards built-in categories from rename/delete.
	ErrPredefinedCategory = errors.New("predefined categories cannot be modified")
)

// UncategorizedName is the display bucket for tasks without a category.
// It participates in collapse state but is not a real category.
const UncategorizedName = "Uncategorized"

// Category classifies tasks. Predefined categories ship with fixed IDs that
// survive upgrades; custom ones get their ID at creation.
type Category struct {
	ID     uuid.UUID `json:"id"`
	Name   string    `json:"name"`
	Color  string    `json:"color"`
	Custom bool      `json:"isCustom"`
}

// EqualName compares category names case-insensitively.
func EqualName(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}

// UIState carries the persisted view-adjacent state of one profile: the
// selected category filter and the set of collapsed category names.
type UIState struct {
	SelectedFilter *uuid.UUID `json:"selectedFilter,omitempty"`
	Collapsed      []string   `json:"collapsedCategories,omitempty"`
}
