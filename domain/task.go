package domain

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrEmptyTitle rejects tasks whose title is empty after trimming.
var ErrEmptyTitle = errors.New("task title must not be empty")

// ChecklistItem is one sub-step inside a task's checklist.
type ChecklistItem struct {
	ID    uuid.UUID `json:"id"`
	Title string    `json:"title"`
	Done  bool      `json:"isCompleted"`
}

// Task represents a single tracked item owned by one profile.
type Task struct {
	ID           uuid.UUID       `json:"id"`
	Title        string          `json:"title"`
	Description  string          `json:"description,omitempty"`
	DueDate      *time.Time      `json:"dueDate,omitempty"`
	HasReminder  bool            `json:"hasReminder,omitempty"`
	ReminderDate *time.Time      `json:"reminderDate,omitempty"`
	CategoryID   *uuid.UUID      `json:"categoryId,omitempty"`
	Checklist    []ChecklistItem `json:"checklist,omitempty"`
	Completed    bool            `json:"isCompleted"`
	CreatedAt    time.Time       `json:"createdAt"`
	CompletedAt  *time.Time      `json:"completedAt,omitempty"`
	Profile      string          `json:"profile,omitempty"`
}

// Validate reports whether the task is acceptable for storage.
func (t Task) Validate() error {
	if strings.TrimSpace(t.Title) == "" {
		return ErrEmptyTitle
	}
	return nil
}

// Normalize trims the title and restores the completion invariant:
// CompletedAt is set iff Completed is true. The given time is used when a
// completed task is missing its timestamp.
func (t *Task) Normalize(now time.Time) {
	t.Title = strings.TrimSpace(t.Title)
	if t.Completed {
		if t.CompletedAt == nil {
			ts := now
			t.CompletedAt = &ts
		}
	} else {
		t.CompletedAt = nil
	}
}

// Overdue reports whether the task is pending with a due date in the past.
// Tasks without a due date are never overdue.
func (t Task) Overdue(now time.Time) bool {
	return !t.Completed && t.DueDate != nil && t.DueDate.Before(now)
}

// ReminderAt resolves when a reminder should fire: the explicit reminder
// date when present, otherwise the due date. Returns false when the task
// has no reminder enabled or no usable date.
func (t Task) ReminderAt() (time.Time, bool) {
	if !t.HasReminder {
		return time.Time{}, false
	}
	if t.ReminderDate != nil {
		return *t.ReminderDate, true
	}
	if t.DueDate != nil {
		return *t.DueDate, true
	}
	return time.Time{}, false
}

// Clone returns a deep copy so callers can hand out tasks without exposing
// the store's internal slices and pointers.
func (t Task) Clone() Task {
	cpy := t
	if t.DueDate != nil {
		d := *t.DueDate
		cpy.DueDate = &d
	}
	if t.ReminderDate != nil {
		r := *t.ReminderDate
		cpy.ReminderDate = &r
	}
	if t.CompletedAt != nil {
		c := *t.CompletedAt
		cpy.CompletedAt = &c
	}
	if t.CategoryID != nil {
		id := *t.CategoryID
		cpy.CategoryID = &id
	}
	if len(t.Checklist) > 0 {
		cpy.Checklist = make([]ChecklistItem, len(t.Checklist))
		copy(cpy.Checklist, t.Checklist)
	}
	return cpy
}

// CloneTasks deep-copies a task slice.
func CloneTasks(tasks []Task) []Task {
	if tasks == nil {
		return nil
	}
	out := make([]Task, len(tasks))
	for i, t := range tasks {
		out[i] = t.Clone()
	}
	return out
}
