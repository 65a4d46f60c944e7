// Package category owns the category catalog: predefined seeding, the
// UUID lookup cache, priority-ordered grouping, collapse/expand state, and
// the one-time migration of stale predefined IDs.
package category

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/wote-dev/simplr-sub001/domain"
)

// Persistence is the slice of the storage layer the index needs.
type Persistence interface {
	LoadCategories(profile string) ([]domain.Category, error)
	SaveCategories(profile string, cats []domain.Category) error
	LoadUIState(profile string) (domain.UIState, error)
	SaveUIState(profile string, st domain.UIState) error
}

// Writer schedules durable writes; the store's saver implements it.
type Writer interface {
	Schedule(key string, fn func() error)
}

// TaskRemapper rewrites task category references when predefined IDs
// migrate, returning how many tasks changed.
type TaskRemapper func(remap map[uuid.UUID]uuid.UUID) int

// Options wires the index to its collaborators.
type Options struct {
	// CacheTTL bounds how long the UUID lookup cache is trusted before it
	// is rebuilt from the authoritative list.
	CacheTTL time.Duration
	// Publish, when set, receives a CategoriesChanged event after every
	// catalog mutation.
	Publish func(domain.Event)
	// RemapTasks, when set, is invoked with the stale-to-canonical ID map
	// during Reload migrations.
	RemapTasks TaskRemapper
}

// Index is the single owner of category state for the active profile.
type Index struct {
	store  Persistence
	saver  Writer
	logger *log.Logger
	opts   Options

	mu          sync.Mutex
	profile     string
	cats        []domain.Category
	collapsed   map[string]struct{}
	selected    *uuid.UUID
	cache       map[uuid.UUID]domain.Category
	cacheExpiry time.Time
}

// NewIndex creates an empty index; call Reload to populate it.
func NewIndex(store Persistence, saver Writer, opts Options, logger *log.Logger) *Index {
	if store == nil {
		panic("category.NewIndex: persistence is required")
	}
	if logger == nil {
		panic("category.NewIndex: logger is required")
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = 5 * time.Second
	}
	return &Index{
		store:     store,
		saver:     saver,
		logger:    logger,
		opts:      opts,
		collapsed: make(map[string]struct{}),
	}
}

// Reload loads the catalog and UI state for profile, seeds missing
// predefined categories, migrates stale predefined IDs, and prunes
// dangling UI references. Safe to run on every launch: when nothing
// changed it schedules no writes.
func (ix *Index) Reload(profile string) {
	persisted, err := ix.store.LoadCategories(profile)
	if err != nil {
		ix.logger.WithError(err).WithField("profile", profile).
			Warn("category load failed, reseeding built-in catalog")
		persisted = nil
	}
	merged, remap := mergeCatalog(persisted)
	catsDirty := !equalCategories(persisted, merged)

	st, err := ix.store.LoadUIState(profile)
	if err != nil {
		ix.logger.WithError(err).WithField("profile", profile).
			Warn("ui state load failed, starting clean")
		st = domain.UIState{}
	}

	ix.mu.Lock()
	ix.profile = profile
	ix.cats = merged
	ix.selected = nil
	if st.SelectedFilter != nil {
		sel := *st.SelectedFilter
		if canonical, ok := remap[sel]; ok {
			sel = canonical
		}
		ix.selected = &sel
	}
	ix.collapsed = make(map[string]struct{}, len(st.Collapsed))
	for _, name := range st.Collapsed {
		ix.collapsed[name] = struct{}{}
	}
	uiDirty := st.SelectedFilter != nil && ix.selected != nil && *ix.selected != *st.SelectedFilter
	if ix.selected != nil && !ix.hasLocked(*ix.selected) {
		ix.selected = nil
		uiDirty = true
	}
	if ix.pruneCollapsedLocked() > 0 {
		uiDirty = true
	}
	ix.rebuildCacheLocked(time.Now())
	ix.mu.Unlock()

	if len(remap) > 0 && ix.opts.RemapTasks != nil {
		moved := ix.opts.RemapTasks(remap)
		ix.logger.WithFields(log.Fields{
			"profile":    profile,
			"categories": len(remap),
			"tasks":      moved,
		}).Info("migrated stale predefined category ids")
	}
	if catsDirty {
		ix.persistCategories()
	}
	if uiDirty {
		ix.persistUIState()
	}
}

// Lookup resolves a category by ID through the TTL cache. On staleness or
// miss it rebuilds the cache from the authoritative list; unknown IDs
// report false, never an error.
func (ix *Index) Lookup(id uuid.UUID) (domain.Category, bool) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	now := time.Now()
	if ix.cache != nil && now.Before(ix.cacheExpiry) {
		if c, ok := ix.cache[id]; ok {
			return c, true
		}
	}
	ix.rebuildCacheLocked(now)
	c, ok := ix.cache[id]
	return c, ok
}

// NameOf resolves the display name for a task's category reference. Nil
// and orphaned references resolve to the uncategorized bucket.
func (ix *Index) NameOf(id *uuid.UUID) string {
	if id == nil {
		return domain.UncategorizedName
	}
	if c, ok := ix.Lookup(*id); ok {
		return c.Name
	}
	return domain.UncategorizedName
}

// Categories returns the catalog ordered by priority, built-ins first.
func (ix *Index) Categories() []domain.Category {
	ix.mu.Lock()
	out := append([]domain.Category(nil), ix.cats...)
	ix.mu.Unlock()

	sort.SliceStable(out, func(i, j int) bool {
		pi, pj := Priority(&out[i]), Priority(&out[j])
		if pi != pj {
			return pi < pj
		}
		return strings.ToLower(out[i].Name) < strings.ToLower(out[j].Name)
	})
	return out
}

// Group pairs a category with its tasks; a nil Category is the
// uncategorized bucket, always ordered last.
type Group struct {
	Category *domain.Category
	Tasks    []domain.Task
}

// GroupByCategory partitions tasks by resolved category and orders the
// groups by Priority. Task order within a group is preserved from the
// input; orphaned references land in the uncategorized bucket.
func (ix *Index) GroupByCategory(tasks []domain.Task) []Group {
	ix.mu.Lock()
	byID := make(map[uuid.UUID]domain.Category, len(ix.cats))
	for _, c := range ix.cats {
		byID[c.ID] = c
	}
	ix.mu.Unlock()

	var order []uuid.UUID
	buckets := make(map[uuid.UUID][]domain.Task)
	var uncategorized []domain.Task
	for _, t := range tasks {
		if t.CategoryID == nil {
			uncategorized = append(uncategorized, t)
			continue
		}
		c, ok := byID[*t.CategoryID]
		if !ok {
			uncategorized = append(uncategorized, t)
			continue
		}
		if _, seen := buckets[c.ID]; !seen {
			order = append(order, c.ID)
		}
		buckets[c.ID] = append(buckets[c.ID], t)
	}

	groups := make([]Group, 0, len(order)+1)
	for _, id := range order {
		c := byID[id]
		groups = append(groups, Group{Category: &c, Tasks: buckets[id]})
	}
	sort.SliceStable(groups, func(i, j int) bool {
		pi, pj := Priority(groups[i].Category), Priority(groups[j].Category)
		if pi != pj {
			return pi < pj
		}
		return strings.ToLower(groups[i].Category.Name) < strings.ToLower(groups[j].Category.Name)
	})
	if len(uncategorized) > 0 {
		groups = append(groups, Group{Tasks: uncategorized})
	}
	return groups
}

// AddCategory creates a custom category. Names must be unique among all
// categories, ignoring case.
func (ix *Index) AddCategory(name, color string) (domain.Category, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return domain.Category{}, domain.ErrInvalidCategoryName
	}

	ix.mu.Lock()
	if ix.indexOfNameLocked(name) >= 0 {
		ix.mu.Unlock()
		return domain.Category{}, domain.ErrDuplicateCategoryName
	}
	cat := domain.Category{ID: uuid.New(), Name: name, Color: color, Custom: true}
	ix.cats = append(ix.cats, cat)
	ix.rebuildCacheLocked(time.Now())
	ix.mu.Unlock()

	ix.persistCategories()
	ix.notify(cat)
	return cat, nil
}

// RenameCategory renames a custom category; collapse state follows the
// new name. Renaming a vanished category is a no-op.
func (ix *Index) RenameCategory(id uuid.UUID, newName string) error {
	newName = strings.TrimSpace(newName)
	if newName == "" {
		return domain.ErrInvalidCategoryName
	}

	ix.mu.Lock()
	idx := ix.indexOfLocked(id)
	if idx < 0 {
		ix.mu.Unlock()
		return nil
	}
	if !ix.cats[idx].Custom {
		ix.mu.Unlock()
		return domain.ErrPredefinedCategory
	}
	if other := ix.indexOfNameLocked(newName); other >= 0 && other != idx {
		ix.mu.Unlock()
		return domain.ErrDuplicateCategoryName
	}
	oldName := ix.cats[idx].Name
	ix.cats[idx].Name = newName
	if key, ok := ix.collapsedKeyLocked(oldName); ok {
		delete(ix.collapsed, key)
		ix.collapsed[newName] = struct{}{}
	}
	ix.pruneCollapsedLocked()
	ix.rebuildCacheLocked(time.Now())
	cat := ix.cats[idx]
	ix.mu.Unlock()

	ix.persistCategories()
	ix.persistUIState()
	ix.notify(cat)
	return nil
}

// DeleteCategory removes a custom category. Tasks keep their now-orphaned
// reference and regroup under uncategorized; the selected filter is
// cleared when it pointed at the deleted category. Deleting a vanished
// category is a no-op.
func (ix *Index) DeleteCategory(id uuid.UUID) error {
	ix.mu.Lock()
	idx := ix.indexOfLocked(id)
	if idx < 0 {
		ix.mu.Unlock()
		return nil
	}
	if !ix.cats[idx].Custom {
		ix.mu.Unlock()
		return domain.ErrPredefinedCategory
	}
	cat := ix.cats[idx]
	ix.cats = append(ix.cats[:idx], ix.cats[idx+1:]...)
	if ix.selected != nil && *ix.selected == id {
		ix.selected = nil
	}
	ix.pruneCollapsedLocked()
	ix.rebuildCacheLocked(time.Now())
	ix.mu.Unlock()

	ix.persistCategories()
	ix.persistUIState()
	ix.notify(cat)
	return nil
}

// ToggleCollapsed flips the collapsed state for a category name and
// persists it. Each call flips exactly once under the lock, so rapid
// repeated invocations cannot lose updates. Returns the new state.
func (ix *Index) ToggleCollapsed(name string) bool {
	name = strings.TrimSpace(name)
	if name == "" {
		return false
	}

	ix.mu.Lock()
	var collapsed bool
	if key, ok := ix.collapsedKeyLocked(name); ok {
		delete(ix.collapsed, key)
		collapsed = false
	} else {
		ix.collapsed[name] = struct{}{}
		collapsed = true
	}
	ix.mu.Unlock()

	ix.persistUIState()
	return collapsed
}

// IsCollapsed reports the collapsed state for a category name.
func (ix *Index) IsCollapsed(name string) bool {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	_, ok := ix.collapsedKeyLocked(strings.TrimSpace(name))
	return ok
}

// ValidateCollapsedState prunes collapse entries whose category name no
// longer exists among current categories plus the uncategorized bucket.
// Returns how many entries were removed.
func (ix *Index) ValidateCollapsedState() int {
	ix.mu.Lock()
	pruned := ix.pruneCollapsedLocked()
	ix.mu.Unlock()

	if pruned > 0 {
		ix.persistUIState()
	}
	return pruned
}

// SelectedFilter returns the persisted category filter, nil for none.
func (ix *Index) SelectedFilter() *uuid.UUID {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if ix.selected == nil {
		return nil
	}
	id := *ix.selected
	return &id
}

// SetSelectedFilter persists the category the UI filters by. Unknown IDs
// clear the filter instead of storing a dangling reference.
func (ix *Index) SetSelectedFilter(id *uuid.UUID) {
	ix.mu.Lock()
	if id != nil && ix.hasLocked(*id) {
		v := *id
		ix.selected = &v
	} else {
		ix.selected = nil
	}
	ix.mu.Unlock()

	ix.persistUIState()
}

// Has reports whether a category with the given ID exists.
func (ix *Index) Has(id uuid.UUID) bool {
	_, ok := ix.Lookup(id)
	return ok
}

func (ix *Index) hasLocked(id uuid.UUID) bool {
	return ix.indexOfLocked(id) >= 0
}

func (ix *Index) indexOfLocked(id uuid.UUID) int {
	for i := range ix.cats {
		if ix.cats[i].ID == id {
			return i
		}
	}
	return -1
}

func (ix *Index) indexOfNameLocked(name string) int {
	for i := range ix.cats {
		if domain.EqualName(ix.cats[i].Name, name) {
			return i
		}
	}
	return -1
}

// collapsedKeyLocked finds the stored key matching name, ignoring case.
func (ix *Index) collapsedKeyLocked(name string) (string, bool) {
	for key := range ix.collapsed {
		if strings.EqualFold(key, name) {
			return key, true
		}
	}
	return "", false
}

func (ix *Index) pruneCollapsedLocked() int {
	valid := make(map[string]struct{}, len(ix.cats)+1)
	for _, c := range ix.cats {
		valid[strings.ToLower(c.Name)] = struct{}{}
	}
	valid[strings.ToLower(domain.UncategorizedName)] = struct{}{}

	pruned := 0
	for name := range ix.collapsed {
		if _, ok := valid[strings.ToLower(name)]; !ok {
			delete(ix.collapsed, name)
			pruned++
		}
	}
	return pruned
}

func (ix *Index) rebuildCacheLocked(now time.Time) {
	cache := make(map[uuid.UUID]domain.Category, len(ix.cats))
	for _, c := range ix.cats {
		cache[c.ID] = c
	}
	ix.cache = cache
	ix.cacheExpiry = now.Add(ix.opts.CacheTTL)
}

func (ix *Index) persistCategories() {
	if ix.saver == nil {
		return
	}
	ix.mu.Lock()
	profile := ix.profile
	snapshot := append([]domain.Category(nil), ix.cats...)
	ix.mu.Unlock()

	ix.saver.Schedule("categories/"+profile, func() error {
		return ix.store.SaveCategories(profile, snapshot)
	})
}

func (ix *Index) persistUIState() {
	if ix.saver == nil {
		return
	}
	ix.mu.Lock()
	profile := ix.profile
	st := ix.uiStateLocked()
	ix.mu.Unlock()

	ix.saver.Schedule("uistate/"+profile, func() error {
		return ix.store.SaveUIState(profile, st)
	})
}

func (ix *Index) uiStateLocked() domain.UIState {
	st := domain.UIState{}
	if ix.selected != nil {
		id := *ix.selected
		st.SelectedFilter = &id
	}
	if len(ix.collapsed) > 0 {
		names := make([]string, 0, len(ix.collapsed))
		for name := range ix.collapsed {
			names = append(names, name)
		}
		sort.Strings(names)
		st.Collapsed = names
	}
	return st
}

func (ix *Index) notify(cat domain.Category) {
	if ix.opts.Publish == nil {
		return
	}
	ix.mu.Lock()
	profile := ix.profile
	ix.mu.Unlock()
	c := cat
	ix.opts.Publish(domain.Event{Type: domain.CategoriesChanged, Category: &c, Profile: profile})
}

func equalCategories(a, b []domain.Category) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
