// Package tasks is the single owner of task state for the active profile.
// All mutations run through the Store: it updates the in-memory list
// first, publishes an event, schedules the coalesced snapshot write, and
// hands reminder and search updates to collaborators without blocking.
package tasks

import (
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/wote-dev/simplr-sub001/category"
	"github.com/wote-dev/simplr-sub001/domain"
	"github.com/wote-dev/simplr-sub001/pubsub"
	"github.com/wote-dev/simplr-sub001/storage"
)

// Persistence is the slice of the storage layer the store needs.
type Persistence interface {
	LoadTasks(profile string) ([]domain.Task, error)
	SaveTasks(profile string, tasks []domain.Task) error
	LoadCategories(profile string) ([]domain.Category, error)
	SaveCategories(profile string, cats []domain.Category) error
	LoadUIState(profile string) (domain.UIState, error)
	SaveUIState(profile string, st domain.UIState) error
	LoadProfiles() (domain.ProfileState, error)
	SaveProfiles(st domain.ProfileState) error
}

// Store coordinates tasks, categories, persistence, and collaborators.
//
// Lock order: s.mu is never held while calling into the category index;
// the index may call back into the store during catalog migration.
type Store struct {
	store     Persistence
	reminders ReminderScheduler
	searchIdx SearchIndex
	logger    *log.Logger
	opts      Options

	bus   *pubsub.Bus
	saver *storage.Saver
	index *category.Index

	mu          sync.Mutex
	profile     string
	known       []string
	activeSaved string
	items       []domain.Task
	byID        map[uuid.UUID]int
	announced   map[uuid.UUID]struct{}

	pendingMu       sync.Mutex
	pendingReminder map[uuid.UUID]struct{}
	pendingSearch   map[uuid.UUID]struct{}

	dispatchWG sync.WaitGroup
	closed     atomic.Bool
}

// New builds the store and loads the active profile. Load failures are
// logged and leave the store running on empty state; persisted data is
// never a startup precondition. reminders and searchIdx may be nil to
// disable those collaborators.
func New(store Persistence, reminders ReminderScheduler, searchIdx SearchIndex, opts Options, logger *log.Logger) *Store {
	if store == nil {
		panic("tasks.New: persistence is required")
	}
	if logger == nil {
		panic("tasks.New: logger is required")
	}
	opts.withDefaults()

	s := &Store{
		store:           store,
		reminders:       reminders,
		searchIdx:       searchIdx,
		logger:          logger,
		opts:            opts,
		byID:            make(map[uuid.UUID]int),
		announced:       make(map[uuid.UUID]struct{}),
		pendingReminder: make(map[uuid.UUID]struct{}),
		pendingSearch:   make(map[uuid.UUID]struct{}),
	}
	s.bus = pubsub.New(logger, opts.EventBuffer)
	s.saver = storage.NewSaver(storage.SaverConfig{
		Delay:        opts.SaveDelay,
		RetryInitial: opts.RetryInitial,
		RetryMax:     opts.RetryMax,
	}, logger)
	s.index = category.NewIndex(store, s.saver, category.Options{
		CacheTTL:   opts.CategoryCacheTTL,
		Publish:    s.bus.Publish,
		RemapTasks: s.remapCategories,
	}, logger)

	reg, err := store.LoadProfiles()
	if err != nil {
		logger.WithError(err).Warn("profile registry load failed, starting fresh")
		reg = domain.ProfileState{}
	}
	active := opts.Profile
	if a := domain.NormalizeProfile(reg.Active); a != "" {
		active = a
	}
	s.known = reg.Known
	s.activeSaved = domain.NormalizeProfile(reg.Active)

	s.activate(active)
	s.registerProfile(active)
	return s
}

// Index exposes the category catalog. The store and index share one saver
// and one event bus.
func (s *Store) Index() *category.Index { return s.index }

// Subscribe registers an event listener. The returned cancel releases it.
func (s *Store) Subscribe() (<-chan domain.Event, func()) { return s.bus.Subscribe() }

// SaverStats reports durability health.
func (s *Store) SaverStats() storage.SaverStats { return s.saver.Stats() }

// Add stores a task. A zero ID gets a fresh one; a known ID takes the
// update path so re-adding an imported task cannot duplicate it. Returns
// the stored copy.
func (s *Store) Add(t domain.Task) (domain.Task, error) {
	if err := t.Validate(); err != nil {
		return domain.Task{}, err
	}
	now := time.Now()

	s.mu.Lock()
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	} else if idx, ok := s.byID[t.ID]; ok {
		prev := s.items[idx]
		stored := s.applyUpdateLocked(idx, t, now)
		s.mu.Unlock()
		if reminderChanged(prev, stored) {
			s.dispatchReminder(stored)
		}
		s.dispatchSearch(stored)
		return stored, nil
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	t.Profile = s.profile
	t.Normalize(now)
	s.items = append(s.items, t)
	s.byID[t.ID] = len(s.items) - 1
	stored := t.Clone()
	s.publishLocked(domain.TaskCreated, stored)
	s.schedulePersistLocked()
	s.mu.Unlock()

	s.dispatchReminder(stored)
	s.dispatchSearch(stored)
	return stored, nil
}

// Update replaces a task's contents, keeping its creation time. Updating
// an unknown ID is a silent no-op so stale UI writes cannot resurrect
// deleted tasks.
func (s *Store) Update(t domain.Task) error {
	if err := t.Validate(); err != nil {
		return err
	}
	now := time.Now()

	s.mu.Lock()
	idx, ok := s.byID[t.ID]
	if !ok {
		s.mu.Unlock()
		return nil
	}
	prev := s.items[idx]
	stored := s.applyUpdateLocked(idx, t, now)
	s.mu.Unlock()

	if reminderChanged(prev, stored) {
		s.dispatchReminder(stored)
	}
	s.dispatchSearch(stored)
	return nil
}

// applyUpdateLocked overwrites the task at idx, preserving identity
// fields and the completion timestamp of an already-completed task.
func (s *Store) applyUpdateLocked(idx int, t domain.Task, now time.Time) domain.Task {
	cur := s.items[idx]
	t.CreatedAt = cur.CreatedAt
	t.Profile = s.profile
	if t.Completed && t.CompletedAt == nil && cur.CompletedAt != nil {
		t.CompletedAt = cur.CompletedAt
	}
	t.Normalize(now)
	s.items[idx] = t
	stored := t.Clone()
	s.publishLocked(domain.TaskUpdated, stored)
	s.schedulePersistLocked()
	return stored
}

// ToggleCompletion flips a task between pending and completed, stamping
// or clearing CompletedAt in the same step. Unknown IDs report false.
func (s *Store) ToggleCompletion(id uuid.UUID) (domain.Task, bool) {
	now := time.Now()

	s.mu.Lock()
	idx, ok := s.byID[id]
	if !ok {
		s.mu.Unlock()
		return domain.Task{}, false
	}
	t := &s.items[idx]
	var evType string
	if t.Completed {
		t.Completed = false
		t.CompletedAt = nil
		evType = domain.TaskReopened
	} else {
		t.Completed = true
		ts := now
		t.CompletedAt = &ts
		delete(s.announced, id)
		evType = domain.TaskCompleted
	}
	stored := t.Clone()
	s.publishLocked(evType, stored)
	s.schedulePersistLocked()
	s.mu.Unlock()

	s.dispatchReminder(stored)
	s.dispatchSearch(stored)
	return stored, true
}

// ToggleChecklistItem flips one checklist entry. Reports false when the
// task or item is unknown.
func (s *Store) ToggleChecklistItem(taskID, itemID uuid.UUID) (domain.Task, bool) {
	s.mu.Lock()
	idx, ok := s.byID[taskID]
	if !ok {
		s.mu.Unlock()
		return domain.Task{}, false
	}
	t := &s.items[idx]
	found := false
	for i := range t.Checklist {
		if t.Checklist[i].ID == itemID {
			t.Checklist[i].Done = !t.Checklist[i].Done
			found = true
			break
		}
	}
	if !found {
		s.mu.Unlock()
		return domain.Task{}, false
	}
	stored := t.Clone()
	s.publishLocked(domain.TaskUpdated, stored)
	s.schedulePersistLocked()
	s.mu.Unlock()

	return stored, true
}

// Delete removes a task everywhere: list, reminder schedule, and search
// index. Deleting an unknown ID reports false.
func (s *Store) Delete(id uuid.UUID) bool {
	s.mu.Lock()
	idx, ok := s.byID[id]
	if !ok {
		s.mu.Unlock()
		return false
	}
	stored := s.items[idx].Clone()
	s.items = append(s.items[:idx], s.items[idx+1:]...)
	delete(s.byID, id)
	for i := idx; i < len(s.items); i++ {
		s.byID[s.items[i].ID] = i
	}
	delete(s.announced, id)
	s.publishLocked(domain.TaskDeleted, stored)
	s.schedulePersistLocked()
	s.mu.Unlock()

	s.clearPending(id)
	s.dispatchRemoval(stored)
	return true
}

// ClearCompleted deletes every completed task and returns how many went.
func (s *Store) ClearCompleted() int {
	s.mu.Lock()
	var removed []domain.Task
	kept := s.items[:0]
	for _, t := range s.items {
		if t.Completed {
			removed = append(removed, t.Clone())
			continue
		}
		kept = append(kept, t)
	}
	if len(removed) == 0 {
		s.mu.Unlock()
		return 0
	}
	s.items = kept
	s.byID = make(map[uuid.UUID]int, len(kept))
	for i := range kept {
		s.byID[kept[i].ID] = i
	}
	for _, t := range removed {
		delete(s.announced, t.ID)
		s.publishLocked(domain.TaskDeleted, t)
	}
	s.schedulePersistLocked()
	s.mu.Unlock()

	for _, t := range removed {
		s.clearPending(t.ID)
		s.dispatchRemoval(t)
	}
	return len(removed)
}

// TaskByID returns a copy of one task.
func (s *Store) TaskByID(id uuid.UUID) (domain.Task, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx, ok := s.byID[id]
	if !ok {
		return domain.Task{}, false
	}
	return s.items[idx].Clone(), true
}

// Tasks returns a copy of every task in the active profile, in insertion
// order.
func (s *Store) Tasks() []domain.Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	return domain.CloneTasks(s.items)
}

// ActiveProfile returns the profile currently loaded.
func (s *Store) ActiveProfile() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.profile
}

// Profiles lists every profile that was ever activated.
func (s *Store) Profiles() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.known...)
}

// SwitchProfile flushes pending writes, then swaps the whole working set
// to another namespace. All state is reloaded from disk; nothing leaks
// between profiles.
func (s *Store) SwitchProfile(name string) error {
	p := domain.NormalizeProfile(name)
	if p == "" || p == "." || p == ".." || strings.ContainsAny(p, `/\`) {
		return domain.ErrInvalidProfile
	}

	if err := s.saver.Flush(); err != nil {
		s.logger.WithError(err).Warn("flush before profile switch failed, freezing snapshot for retry")
		s.rescueSnapshot()
	}

	s.activate(p)
	s.registerProfile(p)
	s.bus.Publish(domain.Event{Type: domain.ProfileSwitched, Profile: p})
	return nil
}

// Close waits for in-flight collaborator calls, writes everything pending
// to disk, and shuts the event bus. Safe to call more than once.
func (s *Store) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	s.dispatchWG.Wait()
	err := s.saver.Close()
	s.bus.Close()
	return err
}

// activate loads a profile's tasks and categories into memory. It owns
// the only assignment of s.profile.
func (s *Store) activate(profile string) {
	list, err := s.store.LoadTasks(profile)
	if err != nil {
		s.logger.WithError(err).WithField("profile", profile).
			Warn("task load failed, starting with an empty list")
		list = nil
	}

	now := time.Now()
	items := make([]domain.Task, 0, len(list))
	byID := make(map[uuid.UUID]int, len(list))
	for _, t := range list {
		if _, dup := byID[t.ID]; dup {
			continue
		}
		t.Profile = profile
		t.Normalize(now)
		byID[t.ID] = len(items)
		items = append(items, t)
	}

	s.mu.Lock()
	s.profile = profile
	s.items = items
	s.byID = byID
	s.announced = make(map[uuid.UUID]struct{})
	s.mu.Unlock()

	s.pendingMu.Lock()
	s.pendingReminder = make(map[uuid.UUID]struct{})
	s.pendingSearch = make(map[uuid.UUID]struct{})
	s.pendingMu.Unlock()

	s.index.Reload(profile)
}

// registerProfile records the active profile in the persisted registry.
// The built-in workspaces are always registered so a fresh install
// already lists them.
func (s *Store) registerProfile(p string) {
	s.mu.Lock()
	st := domain.ProfileState{Active: p, Known: s.known}.
		WithKnown(domain.ProfilePersonal).
		WithKnown(domain.ProfileWork).
		WithKnown(p)
	changed := s.activeSaved != p || len(st.Known) != len(s.known)
	s.known = st.Known
	s.activeSaved = p
	s.mu.Unlock()

	if !changed {
		return
	}
	s.saver.Schedule("profiles", func() error {
		return s.store.SaveProfiles(st)
	})
}

// remapCategories rewrites task references when predefined category IDs
// migrate. Invoked by the index during Reload, never under s.mu.
func (s *Store) remapCategories(remap map[uuid.UUID]uuid.UUID) int {
	s.mu.Lock()
	moved := 0
	for i := range s.items {
		cid := s.items[i].CategoryID
		if cid == nil {
			continue
		}
		if to, ok := remap[*cid]; ok {
			v := to
			s.items[i].CategoryID = &v
			moved++
		}
	}
	if moved > 0 {
		s.schedulePersistLocked()
	}
	s.mu.Unlock()
	return moved
}

// schedulePersistLocked queues the snapshot write for the active profile.
// The closure re-reads state at flush time so coalesced writes always
// persist the newest list, and skips itself if the profile changed
// underneath it; SwitchProfile flushes beforehand so that skip never
// drops data.
func (s *Store) schedulePersistLocked() {
	profile := s.profile
	s.saver.Schedule("tasks/"+profile, func() error {
		s.mu.Lock()
		if s.profile != profile {
			s.mu.Unlock()
			return nil
		}
		snapshot := domain.CloneTasks(s.items)
		s.mu.Unlock()
		return s.store.SaveTasks(profile, snapshot)
	})
}

// rescueSnapshot freezes the current list into a pending write that no
// longer depends on the store's live state. Used when the pre-switch
// flush failed and the live state is about to be replaced.
func (s *Store) rescueSnapshot() {
	s.mu.Lock()
	profile := s.profile
	snapshot := domain.CloneTasks(s.items)
	s.mu.Unlock()

	s.saver.Schedule("tasks/"+profile, func() error {
		return s.store.SaveTasks(profile, snapshot)
	})
}

func (s *Store) publishLocked(evType string, t domain.Task) {
	s.bus.Publish(domain.Event{Type: evType, Task: &t, Profile: s.profile})
}

func reminderChanged(a, b domain.Task) bool {
	return a.HasReminder != b.HasReminder ||
		a.Completed != b.Completed ||
		!timePtrEqual(a.ReminderDate, b.ReminderDate) ||
		!timePtrEqual(a.DueDate, b.DueDate)
}

func timePtrEqual(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}
