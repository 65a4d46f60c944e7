package tasks

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/wote-dev/simplr-sub001/domain"
)

// CheckForOverdueTasks publishes a TaskOverdue event for every pending
// task whose due date has passed and that was not already announced.
// A task becomes announceable again once it stops being overdue, so
// pushing the due date out and missing it again notifies again. Returns
// how many tasks were newly flagged.
func (s *Store) CheckForOverdueTasks(ctx context.Context) int {
	m, _ := newSweepMetrics(ctx, s.logger)
	now := time.Now()

	s.mu.Lock()
	scanned := len(s.items)
	flagged := 0
	for i := range s.items {
		t := &s.items[i]
		if !t.Overdue(now) {
			delete(s.announced, t.ID)
			continue
		}
		if _, seen := s.announced[t.ID]; seen {
			continue
		}
		s.announced[t.ID] = struct{}{}
		s.publishLocked(domain.TaskOverdue, t.Clone())
		flagged++
	}
	s.mu.Unlock()

	m.SetScanned(scanned)
	m.SetFlagged(flagged)
	m.Log(nil)
	return flagged
}

// PerformMaintenance reconciles derived state with the task list: it runs
// the overdue sweep, clears references to categories that no longer
// exist, retries failed collaborator calls, and prunes stale collapse
// entries. Safe to run at any time; every step is idempotent.
func (s *Store) PerformMaintenance(ctx context.Context) error {
	m, ctx := newMaintenanceMetrics(ctx, s.logger)

	s.CheckForOverdueTasks(ctx)
	orphans := s.clearOrphanedReferences()
	redriven, err := s.redrivePending(ctx)
	pruned := s.index.ValidateCollapsedState()

	m.SetOrphansCleared(orphans)
	m.SetRedriven(redriven)
	m.SetCollapsePruned(pruned)
	m.SetPendingLeft(s.pendingCount())
	m.Log(err)
	return err
}

// clearOrphanedReferences moves tasks whose category vanished back to
// uncategorized. Tasks are never dropped, whatever state the catalog is
// in.
func (s *Store) clearOrphanedReferences() int {
	s.mu.Lock()
	refs := make(map[uuid.UUID]struct{})
	for i := range s.items {
		if cid := s.items[i].CategoryID; cid != nil {
			refs[*cid] = struct{}{}
		}
	}
	s.mu.Unlock()

	if len(refs) == 0 {
		return 0
	}
	orphaned := make(map[uuid.UUID]struct{})
	for cid := range refs {
		if !s.index.Has(cid) {
			orphaned[cid] = struct{}{}
		}
	}
	if len(orphaned) == 0 {
		return 0
	}

	s.mu.Lock()
	var updated []domain.Task
	for i := range s.items {
		cid := s.items[i].CategoryID
		if cid == nil {
			continue
		}
		if _, gone := orphaned[*cid]; !gone {
			continue
		}
		s.items[i].CategoryID = nil
		updated = append(updated, s.items[i].Clone())
	}
	for _, t := range updated {
		s.publishLocked(domain.TaskUpdated, t)
	}
	if len(updated) > 0 {
		s.schedulePersistLocked()
	}
	s.mu.Unlock()

	for _, t := range updated {
		s.dispatchSearch(t)
	}
	return len(updated)
}

// redrivePending retries collaborator calls that failed on their
// fire-and-forget dispatch. Tasks deleted since the failure are converged
// by cancelling and removing instead.
func (s *Store) redrivePending(ctx context.Context) (int, error) {
	remIDs, srchIDs := s.pendingIDs()
	profile := s.ActiveProfile()

	redriven := 0
	var errs []error
	for _, id := range remIDs {
		if s.reminders == nil {
			s.markPending(pendingKindReminder, id, false)
			continue
		}
		var err error
		if t, ok := s.TaskByID(id); ok {
			err = s.syncReminder(ctx, t)
		} else {
			err = s.reminders.Cancel(ctx, profile, id)
		}
		if err != nil {
			errs = append(errs, err)
			continue
		}
		s.markPending(pendingKindReminder, id, false)
		redriven++
	}
	for _, id := range srchIDs {
		if s.searchIdx == nil {
			s.markPending(pendingKindSearch, id, false)
			continue
		}
		var err error
		if t, ok := s.TaskByID(id); ok {
			err = s.syncSearch(ctx, t)
		} else {
			err = s.searchIdx.Remove(ctx, profile, id)
		}
		if err != nil {
			errs = append(errs, err)
			continue
		}
		s.markPending(pendingKindSearch, id, false)
		redriven++
	}
	return redriven, errors.Join(errs...)
}
