package tasks

import (
	"context"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/wote-dev/simplr-sub001/domain"
	"github.com/wote-dev/simplr-sub001/search"
)

// ReminderScheduler mirrors the reminder schedule for pending tasks.
type ReminderScheduler interface {
	Schedule(ctx context.Context, profile string, taskID uuid.UUID, at time.Time) error
	Cancel(ctx context.Context, profile string, taskID uuid.UUID) error
}

// SearchIndex mirrors task text into an external index.
type SearchIndex interface {
	Upsert(ctx context.Context, profile string, entries ...search.Entry) error
	Remove(ctx context.Context, profile string, taskID uuid.UUID) error
}

// Collaborator calls run after the in-memory mutation has already
// committed and never block or fail it. A failed call parks the task ID
// in a pending set; PerformMaintenance drives those again.

func (s *Store) dispatchReminder(t domain.Task) {
	if s.reminders == nil {
		return
	}
	s.dispatchWG.Add(1)
	go func() {
		defer s.dispatchWG.Done()
		ctx, cancel := context.WithTimeout(context.Background(), s.opts.DispatchTimeout)
		defer cancel()
		if err := s.syncReminder(ctx, t); err != nil {
			s.logger.WithError(err).WithFields(log.Fields{
				"task":    t.ID,
				"profile": t.Profile,
			}).Warn("reminder dispatch failed")
			s.markPending(pendingKindReminder, t.ID, true)
			return
		}
		s.markPending(pendingKindReminder, t.ID, false)
	}()
}

func (s *Store) dispatchSearch(t domain.Task) {
	if s.searchIdx == nil {
		return
	}
	s.dispatchWG.Add(1)
	go func() {
		defer s.dispatchWG.Done()
		ctx, cancel := context.WithTimeout(context.Background(), s.opts.DispatchTimeout)
		defer cancel()
		if err := s.syncSearch(ctx, t); err != nil {
			s.logger.WithError(err).WithFields(log.Fields{
				"task":    t.ID,
				"profile": t.Profile,
			}).Warn("search index dispatch failed")
			s.markPending(pendingKindSearch, t.ID, true)
			return
		}
		s.markPending(pendingKindSearch, t.ID, false)
	}()
}

// dispatchRemoval unhooks a deleted task from both collaborators.
func (s *Store) dispatchRemoval(t domain.Task) {
	if s.reminders != nil {
		s.dispatchWG.Add(1)
		go func() {
			defer s.dispatchWG.Done()
			ctx, cancel := context.WithTimeout(context.Background(), s.opts.DispatchTimeout)
			defer cancel()
			if err := s.reminders.Cancel(ctx, t.Profile, t.ID); err != nil {
				s.logger.WithError(err).WithField("task", t.ID).Warn("reminder cancel failed")
				s.markPending(pendingKindReminder, t.ID, true)
			}
		}()
	}
	if s.searchIdx != nil {
		s.dispatchWG.Add(1)
		go func() {
			defer s.dispatchWG.Done()
			ctx, cancel := context.WithTimeout(context.Background(), s.opts.DispatchTimeout)
			defer cancel()
			if err := s.searchIdx.Remove(ctx, t.Profile, t.ID); err != nil {
				s.logger.WithError(err).WithField("task", t.ID).Warn("search index removal failed")
				s.markPending(pendingKindSearch, t.ID, true)
			}
		}()
	}
}

// syncReminder converges the reminder schedule with one task's state:
// pending tasks with a reminder are scheduled, everything else is
// cancelled.
func (s *Store) syncReminder(ctx context.Context, t domain.Task) error {
	at, ok := t.ReminderAt()
	if ok && !t.Completed {
		return s.reminders.Schedule(ctx, t.Profile, t.ID, at)
	}
	return s.reminders.Cancel(ctx, t.Profile, t.ID)
}

// syncSearch reindexes one task. The category name is resolved here,
// outside the store lock.
func (s *Store) syncSearch(ctx context.Context, t domain.Task) error {
	name := s.index.NameOf(t.CategoryID)
	if name == domain.UncategorizedName {
		name = ""
	}
	return s.searchIdx.Upsert(ctx, t.Profile, search.Entry{
		TaskID:       t.ID,
		Title:        t.Title,
		Description:  t.Description,
		CategoryName: name,
		Completed:    t.Completed,
	})
}

type pendingKind int

const (
	pendingKindReminder pendingKind = iota
	pendingKindSearch
)

func (s *Store) markPending(kind pendingKind, id uuid.UUID, failed bool) {
	s.pendingMu.Lock()
	defer s.pendingMu.Unlock()
	m := s.pendingReminder
	if kind == pendingKindSearch {
		m = s.pendingSearch
	}
	if failed {
		m[id] = struct{}{}
		return
	}
	delete(m, id)
}

func (s *Store) clearPending(id uuid.UUID) {
	s.pendingMu.Lock()
	delete(s.pendingReminder, id)
	delete(s.pendingSearch, id)
	s.pendingMu.Unlock()
}

func (s *Store) pendingCount() int {
	s.pendingMu.Lock()
	defer s.pendingMu.Unlock()
	return len(s.pendingReminder) + len(s.pendingSearch)
}

func (s *Store) pendingIDs() (reminders, searches []uuid.UUID) {
	s.pendingMu.Lock()
	defer s.pendingMu.Unlock()
	for id := range s.pendingReminder {
		reminders = append(reminders, id)
	}
	for id := range s.pendingSearch {
		searches = append(searches, id)
	}
	return reminders, searches
}
