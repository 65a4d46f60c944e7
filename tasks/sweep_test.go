package tasks

import (
	"context"
	"testing"
	"time"

	"github.com/wote-dev/simplr-sub001/domain"
)

func TestCheckForOverdueTasksAnnouncesOnce(t *testing.T) {
	s, _, _, _ := newTestStore(t, Options{})
	events, cancel := s.Subscribe()
	defer cancel()

	yesterday := time.Now().Add(-24 * time.Hour)
	overdue, _ := s.Add(domain.Task{Title: "Quarterly report", DueDate: &yesterday})
	s.Add(domain.Task{Title: "No due date"})

	if got := s.CheckForOverdueTasks(context.Background()); got != 1 {
		t.Fatalf("first sweep flagged %d, want 1", got)
	}
	ev := waitForEvent(t, events, domain.TaskOverdue)
	if ev.Task == nil || ev.Task.ID != overdue.ID {
		t.Fatalf("wrong task announced: %+v", ev)
	}

	// Repeat sweeps stay quiet about the same task.
	for i := 0; i < 3; i++ {
		if got := s.CheckForOverdueTasks(context.Background()); got != 0 {
			t.Fatalf("sweep %d flagged %d, want 0", i, got)
		}
	}
}

func TestOverdueAnnouncesAgainAfterRecovery(t *testing.T) {
	s, _, _, _ := newTestStore(t, Options{})

	yesterday := time.Now().Add(-24 * time.Hour)
	task, _ := s.Add(domain.Task{Title: "Quarterly report", DueDate: &yesterday})
	if got := s.CheckForOverdueTasks(context.Background()); got != 1 {
		t.Fatalf("flagged %d, want 1", got)
	}

	// Pushing the due date out clears the announcement...
	tomorrow := time.Now().Add(24 * time.Hour)
	task.DueDate = &tomorrow
	if err := s.Update(task); err != nil {
		t.Fatalf("update: %v", err)
	}
	if got := s.CheckForOverdueTasks(context.Background()); got != 0 {
		t.Fatalf("future-dated task flagged %d", got)
	}

	// ...so missing the new date announces again.
	past := time.Now().Add(-time.Minute)
	task.DueDate = &past
	if err := s.Update(task); err != nil {
		t.Fatalf("update: %v", err)
	}
	if got := s.CheckForOverdueTasks(context.Background()); got != 1 {
		t.Fatalf("second miss flagged %d, want 1", got)
	}
}

func TestCompletingOverdueTaskMakesItAnnounceableAgain(t *testing.T) {
	s, _, _, _ := newTestStore(t, Options{})

	yesterday := time.Now().Add(-24 * time.Hour)
	task, _ := s.Add(domain.Task{Title: "Quarterly report", DueDate: &yesterday})
	s.CheckForOverdueTasks(context.Background())

	// Complete, then reopen with the due date still in the past.
	s.ToggleCompletion(task.ID)
	if got := s.CheckForOverdueTasks(context.Background()); got != 0 {
		t.Fatalf("completed task flagged %d", got)
	}
	s.ToggleCompletion(task.ID)
	if got := s.CheckForOverdueTasks(context.Background()); got != 1 {
		t.Fatalf("reopened task flagged %d, want 1", got)
	}
}

func TestMaintenanceClearsOrphanedReferences(t *testing.T) {
	s, _, idx, st := newTestStore(t, Options{})

	errands, err := s.Index().AddCategory("Errands", "#FFCC00")
	if err != nil {
		t.Fatalf("add category: %v", err)
	}
	task, _ := s.Add(domain.Task{Title: "Buy milk", CategoryID: &errands.ID})
	waitFor(t, 2*time.Second, func() bool {
		e, ok := idx.entry(task.ID)
		return ok && e.CategoryName == "Errands"
	})

	if err := s.Index().DeleteCategory(errands.ID); err != nil {
		t.Fatalf("delete category: %v", err)
	}
	if err := s.PerformMaintenance(context.Background()); err != nil {
		t.Fatalf("maintenance: %v", err)
	}

	got, _ := s.TaskByID(task.ID)
	if got.CategoryID != nil {
		t.Fatalf("orphaned reference survived maintenance: %v", got.CategoryID)
	}

	// The cleared reference is persisted and reindexed.
	waitFor(t, 2*time.Second, func() bool {
		persisted, err := st.LoadTasks(domain.ProfilePersonal)
		return err == nil && len(persisted) == 1 && persisted[0].CategoryID == nil
	})
	waitFor(t, 2*time.Second, func() bool {
		e, ok := idx.entry(task.ID)
		return ok && e.CategoryName == ""
	})

	// A second run finds nothing to do.
	if err := s.PerformMaintenance(context.Background()); err != nil {
		t.Fatalf("second maintenance: %v", err)
	}
}

func TestMaintenancePrunesStaleCollapseState(t *testing.T) {
	s, _, _, _ := newTestStore(t, Options{})

	errands, err := s.Index().AddCategory("Errands", "#FFCC00")
	if err != nil {
		t.Fatalf("add category: %v", err)
	}
	s.Index().ToggleCollapsed("Errands")
	if err := s.Index().DeleteCategory(errands.ID); err != nil {
		t.Fatalf("delete category: %v", err)
	}

	if err := s.PerformMaintenance(context.Background()); err != nil {
		t.Fatalf("maintenance: %v", err)
	}
	if s.Index().IsCollapsed("Errands") {
		t.Fatal("stale collapse entry survived maintenance")
	}
}
