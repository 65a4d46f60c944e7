package tasks

import (
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/wote-dev/simplr-sub001/category"
	"github.com/wote-dev/simplr-sub001/domain"
)

// FilteredTasks applies the query in category, completion, search, sort
// order and returns copies. A zero query returns everything in canonical
// order, oldest first.
func (s *Store) FilteredTasks(q domain.Query) []domain.Task {
	s.mu.Lock()
	list := domain.CloneTasks(s.items)
	s.mu.Unlock()

	now := time.Now()
	filtered := list[:0]
	for _, t := range list {
		if q.CategoryID != nil && (t.CategoryID == nil || *t.CategoryID != *q.CategoryID) {
			continue
		}
		switch q.Filter {
		case domain.FilterPending:
			if t.Completed {
				continue
			}
		case domain.FilterCompleted:
			if !t.Completed {
				continue
			}
		case domain.FilterOverdue:
			if !t.Overdue(now) {
				continue
			}
		}
		filtered = append(filtered, t)
	}

	filtered = s.applySearch(filtered, q.Search)
	sortTasks(filtered, q.Sort)
	return filtered
}

// GroupedTasks filters, then partitions the result by category in
// priority order, uncategorized last.
func (s *Store) GroupedTasks(q domain.Query) []category.Group {
	return s.index.GroupByCategory(s.FilteredTasks(q))
}

// applySearch narrows the list to tasks whose title or description
// contains the query, ignoring case. Category names are not searched;
// narrowing by category is the CategoryID filter's job. Queries shorter
// than the configured minimum are treated as absent so single keystrokes
// do not blank the list.
func (s *Store) applySearch(list []domain.Task, query string) []domain.Task {
	needle := strings.ToLower(strings.TrimSpace(query))
	if utf8.RuneCountInString(needle) < s.opts.SearchMinLength {
		return list
	}

	out := list[:0]
	for _, t := range list {
		if strings.Contains(strings.ToLower(t.Title), needle) ||
			strings.Contains(strings.ToLower(t.Description), needle) {
			out = append(out, t)
		}
	}
	return out
}

func sortTasks(list []domain.Task, opt domain.SortOption) {
	switch opt {
	case domain.SortDueDate:
		sort.SliceStable(list, func(i, j int) bool {
			a, b := list[i].DueDate, list[j].DueDate
			switch {
			case a == nil && b == nil:
				return createdBefore(list[i], list[j])
			case a == nil:
				return false
			case b == nil:
				return true
			case a.Equal(*b):
				return createdBefore(list[i], list[j])
			default:
				return a.Before(*b)
			}
		})
	case domain.SortTitle:
		sort.SliceStable(list, func(i, j int) bool {
			ti, tj := strings.ToLower(list[i].Title), strings.ToLower(list[j].Title)
			if ti != tj {
				return ti < tj
			}
			return createdBefore(list[i], list[j])
		})
	default:
		// SortCreated, and the canonical fallback for the zero value.
		sort.SliceStable(list, func(i, j int) bool {
			return createdBefore(list[i], list[j])
		})
	}
}

// createdBefore is the canonical tiebreak: creation time, then ID, so
// equal-time tasks still sort deterministically.
func createdBefore(a, b domain.Task) bool {
	if a.CreatedAt.Equal(b.CreatedAt) {
		return a.ID.String() < b.ID.String()
	}
	return a.CreatedAt.Before(b.CreatedAt)
}
